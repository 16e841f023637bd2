package conn

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/pg-sharding/pglink/pkg/pgerror"
	"github.com/pg-sharding/pglink/pkg/pglog"
	"github.com/pg-sharding/pglink/pkg/proto"
	"github.com/pg-sharding/pglink/pkg/txstatus"
	"github.com/xdg-go/scram"
)

const scramMechanism = "SCRAM-SHA-256"

// startup sends the startup packet and runs the authentication exchange
// until the backend reports ReadyForQuery.
func (c *Conn) startup(ctx context.Context) error {
	c.frontend.Send(&proto.StartupMessage{
		ProtocolVersion: proto.ProtocolVersionNumber,
		Parameters:      c.cfg.StartupParameters(),
	})
	if err := c.frontend.Flush(); err != nil {
		return &pgerror.TransportError{Err: err}
	}

	c.status = StatusAuthenticating

	for {
		msg, err := c.receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &pgerror.TransportError{Err: err}
		}

		switch msg := msg.(type) {
		case *proto.AuthenticationOk:

		case *proto.AuthenticationCleartextPassword:
			c.frontend.Send(&proto.PasswordMessage{Password: c.cfg.Password})
			if err := c.frontend.Flush(); err != nil {
				return &pgerror.TransportError{Err: err}
			}

		case *proto.AuthenticationMD5Password:
			c.frontend.Send(&proto.PasswordMessage{
				Password: md5Password(c.cfg.User, c.cfg.Password, msg.Salt),
			})
			if err := c.frontend.Flush(); err != nil {
				return &pgerror.TransportError{Err: err}
			}

		case *proto.AuthenticationSASL:
			if err := c.authSASL(ctx, msg); err != nil {
				return err
			}

		case *proto.BackendKeyData:
			c.pid = msg.ProcessID
			c.secretKey = msg.SecretKey

		case *proto.ParameterStatus:
			c.params[msg.Name] = msg.Value

		case *proto.NoticeResponse:
			c.handleNotice(msg)

		case *proto.ErrorResponse:
			serr := serverError(msg)
			if len(serr.Code) >= 2 && serr.Code[:2] == "28" {
				return &pgerror.AuthError{Method: "password", Err: serr}
			}
			return serr

		case *proto.ReadyForQuery:
			c.txStatus = txstatus.TXStatus(msg.TxStatus)
			c.status = StatusReady
			return nil

		default:
			return &pgerror.ProtocolViolation{
				State: StatusAuthenticating.String(),
				Got:   messageName(msg),
			}
		}
	}
}

// md5Password derives the md5 password response: the double hash
// md5(md5(password + user) + salt) with the "md5" prefix.
func md5Password(user, password string, salt [4]byte) string {
	inner := md5.Sum([]byte(password + user))
	outer := md5.Sum(append([]byte(hex.EncodeToString(inner[:])), salt[:]...))
	return "md5" + hex.EncodeToString(outer[:])
}

// authSASL runs the SCRAM-SHA-256 exchange. Channel binding variants are
// not offered, so SCRAM-SHA-256-PLUS is never selected.
func (c *Conn) authSASL(ctx context.Context, req *proto.AuthenticationSASL) error {
	supported := false
	for _, m := range req.AuthMechanisms {
		if m == scramMechanism {
			supported = true
			break
		}
	}
	if !supported {
		return &pgerror.AuthError{
			Method: "scram",
			Err:    fmt.Errorf("no common mechanism, server offers %v", req.AuthMechanisms),
		}
	}

	client, err := scram.SHA256.NewClient(c.cfg.User, c.cfg.Password, "")
	if err != nil {
		return &pgerror.AuthError{Method: "scram", Err: err}
	}
	conv := client.NewConversation()

	first, err := conv.Step("")
	if err != nil {
		return &pgerror.AuthError{Method: "scram", Err: err}
	}

	c.frontend.Send(&proto.SASLInitialResponse{
		AuthMechanism: scramMechanism,
		Data:          []byte(first),
	})
	if err := c.frontend.Flush(); err != nil {
		return &pgerror.TransportError{Err: err}
	}

	pglog.Zero.Debug().Str("mechanism", scramMechanism).Msg("sasl exchange started")

	for {
		msg, err := c.receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &pgerror.TransportError{Err: err}
		}

		switch msg := msg.(type) {
		case *proto.AuthenticationSASLContinue:
			reply, err := conv.Step(string(msg.Data))
			if err != nil {
				return &pgerror.AuthError{Method: "scram", Err: err}
			}
			c.frontend.Send(&proto.SASLResponse{Data: []byte(reply)})
			if err := c.frontend.Flush(); err != nil {
				return &pgerror.TransportError{Err: err}
			}

		case *proto.AuthenticationSASLFinal:
			if _, err := conv.Step(string(msg.Data)); err != nil {
				return &pgerror.AuthError{Method: "scram", Err: err}
			}
			if !conv.Valid() {
				return &pgerror.AuthError{
					Method: "scram",
					Err:    fmt.Errorf("server signature not verified"),
				}
			}
			return nil

		case *proto.ErrorResponse:
			return &pgerror.AuthError{Method: "scram", Err: serverError(msg)}

		default:
			return &pgerror.ProtocolViolation{
				State: StatusAuthenticating.String(),
				Got:   messageName(msg),
			}
		}
	}
}
