// Package conn implements the connection state machine and the request
// pipeline of the protocol engine.
//
// One Conn owns one byte stream. Writes go through a single-writer
// mutex and each operation's messages are flushed as one atomic
// sequence; reads are drained only by the response routing loop, driven
// by whichever caller is currently waiting. Backend responses arrive in
// submission order, so every message is attributed to the front entry
// of the in-flight queue.
package conn

import (
	"container/list"
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/pg-sharding/pglink/pkg/config"
	"github.com/pg-sharding/pglink/pkg/pgerror"
	"github.com/pg-sharding/pglink/pkg/pglog"
	"github.com/pg-sharding/pglink/pkg/pgtype"
	"github.com/pg-sharding/pglink/pkg/proto"
	"github.com/pg-sharding/pglink/pkg/stmtcache"
	"github.com/pg-sharding/pglink/pkg/txstatus"
	"golang.org/x/sync/singleflight"
)

// Status is the connection state machine's state.
type Status int32

const (
	StatusConnecting Status = iota
	StatusStartup
	StatusAuthenticating
	StatusReady
	StatusBusy
	StatusClosing
	StatusClosed
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "CONNECTING"
	case StatusStartup:
		return "STARTUP"
	case StatusAuthenticating:
		return "AUTHENTICATING"
	case StatusReady:
		return "READY"
	case StatusBusy:
		return "BUSY"
	case StatusClosing:
		return "CLOSING"
	case StatusClosed:
		return "CLOSED"
	case StatusFailed:
		return "FAILED"
	}
	return "invalid"
}

// Notification is an out-of-band LISTEN/NOTIFY push.
type Notification struct {
	PID     uint32
	Channel string
	Payload string
}

// NotificationHandler consumes notifications. It must not call query
// methods on the connection that delivered the notification.
type NotificationHandler func(*Notification)

// NoticeHandler consumes NoticeResponse messages.
type NoticeHandler func(*pgerror.ServerError)

// Conn is one logical session over one physical byte stream.
type Conn struct {
	cfg      *config.Config
	nc       net.Conn
	frontend *proto.Frontend

	// mu guards status, fatalErr, queue, params and txStatus.
	mu       sync.Mutex
	status   Status
	fatalErr error
	queue    *list.List

	// writeMu is the single-writer discipline: one operation's messages
	// reach the stream as one uninterrupted sequence. It is never held
	// for a full round trip.
	writeMu sync.Mutex

	// readMu makes the routing loop single-consumer: whoever holds it
	// is the one goroutine reading from the stream.
	readMu sync.Mutex

	txStatus  txstatus.TXStatus
	params    map[string]string
	pid       uint32
	secretKey uint32

	typeMap     *pgtype.Map
	typeLoads   singleflight.Group
	cache       *stmtcache.Cache
	tlsUpgraded bool

	notificationHandler NotificationHandler
	noticeHandler       NoticeHandler
}

// Connect dials the configured endpoint, optionally upgrades the stream
// to TLS, and performs startup and authentication. On success the
// connection is in the ready state.
func Connect(ctx context.Context, cfg *config.Config) (*Conn, error) {
	c := &Conn{
		cfg:      cfg,
		status:   StatusConnecting,
		queue:    list.New(),
		params:   map[string]string{},
		typeMap:  pgtype.DefaultMap().Clone(),
		cache:    stmtcache.New(),
		txStatus: txstatus.TXIDLE,
	}

	dial := cfg.DialFunc
	if dial == nil {
		d := &net.Dialer{Timeout: cfg.DialTimeout}
		dial = d.DialContext
	}

	nc, err := dial(ctx, "tcp", cfg.Addr())
	if err != nil {
		return nil, &pgerror.TransportError{Err: err}
	}
	c.nc = nc

	tlsCfg, err := cfg.TLS.Init(cfg.Host)
	if err != nil {
		nc.Close()
		return nil, err
	}
	if tlsCfg != nil {
		if err := c.upgradeTLS(ctx, tlsCfg); err != nil {
			nc.Close()
			return nil, err
		}
	}

	c.frontend = proto.NewFrontend(c.nc, c.nc)

	c.status = StatusStartup
	if err := c.startup(ctx); err != nil {
		c.nc.Close()
		c.status = StatusFailed
		c.fatalErr = err
		return nil, err
	}

	pglog.Zero.Debug().
		Str("host", cfg.Host).
		Uint32("pid", c.pid).
		Msg("connection ready")
	return c, nil
}

// upgradeTLS sends the SSLRequest and, on acceptance, swaps the stream
// for an encrypted one. It runs before any startup bytes and never
// twice on the same connection.
func (c *Conn) upgradeTLS(ctx context.Context, tlsCfg *tls.Config) error {
	if c.tlsUpgraded {
		return &pgerror.ProtocolViolation{State: c.status.String(), Got: "duplicate ssl request"}
	}

	req, err := (&proto.SSLRequest{}).Encode(nil)
	if err != nil {
		return err
	}
	if _, err := c.nc.Write(req); err != nil {
		return &pgerror.TransportError{Err: err}
	}

	resp := make([]byte, 1)
	if _, err := c.nc.Read(resp); err != nil {
		return &pgerror.TransportError{Err: err}
	}

	switch resp[0] {
	case 'S':
	case 'N':
		switch c.cfg.TLS.SslMode {
		case "allow", "prefer":
			// Server declined, plaintext is acceptable at this level.
			return nil
		default:
			return &pgerror.AuthError{Method: "tls", Err: errSSLDeclined}
		}
	default:
		return &pgerror.ProtocolViolation{State: "STARTUP", Got: "invalid ssl negotiation response"}
	}

	upgrade := c.cfg.TLSUpgrader
	if upgrade == nil {
		upgrade = func(ctx context.Context, raw net.Conn, cfg *tls.Config) (net.Conn, error) {
			tc := tls.Client(raw, cfg)
			if err := tc.HandshakeContext(ctx); err != nil {
				return nil, err
			}
			return tc, nil
		}
	}

	upgraded, err := upgrade(ctx, c.nc, tlsCfg)
	if err != nil {
		return &pgerror.AuthError{Method: "tls", Err: err}
	}
	c.nc = upgraded
	c.tlsUpgraded = true
	return nil
}

// Status returns the current state machine state.
func (c *Conn) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// TxStatus is the transaction indicator from the last ReadyForQuery.
func (c *Conn) TxStatus() txstatus.TXStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txStatus
}

// ParameterStatus returns the last reported value of a server parameter.
func (c *Conn) ParameterStatus(name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params[name]
}

// BackendPID is the server process id of this session.
func (c *Conn) BackendPID() uint32 { return c.pid }

// TypeMap is the connection-local type registry.
func (c *Conn) TypeMap() *pgtype.Map { return c.typeMap }

// StatementCache exposes the connection's prepared statement cache.
func (c *Conn) StatementCache() *stmtcache.Cache { return c.cache }

// SetNotificationHandler registers the sink for LISTEN/NOTIFY pushes.
// A nil handler drops notifications.
func (c *Conn) SetNotificationHandler(h NotificationHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notificationHandler = h
}

// SetNoticeHandler registers the sink for NoticeResponse messages.
func (c *Conn) SetNoticeHandler(h NoticeHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.noticeHandler = h
}

// Close performs an orderly shutdown: Terminate, then stream close.
func (c *Conn) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.status == StatusClosed || c.status == StatusFailed {
		c.mu.Unlock()
		return nil
	}
	c.status = StatusClosing
	c.mu.Unlock()

	c.writeMu.Lock()
	c.frontend.Send(&proto.Terminate{})
	_ = c.frontend.Flush()
	c.writeMu.Unlock()

	err := c.nc.Close()

	c.mu.Lock()
	c.status = StatusClosed
	c.failPendingLocked(errConnClosed)
	c.mu.Unlock()
	c.cache.Clear()
	return err
}

// fail latches the connection into the failed state. Every pending and
// future request is answered with the same terminal error.
func (c *Conn) fail(err error) {
	c.mu.Lock()
	if c.status == StatusFailed || c.status == StatusClosed {
		c.mu.Unlock()
		return
	}
	c.status = StatusFailed
	c.fatalErr = err
	c.failPendingLocked(err)
	c.mu.Unlock()

	c.nc.Close()
	c.cache.Clear()
	pglog.Zero.Error().Err(err).Msg("connection failed")
}

func (c *Conn) failPendingLocked(err error) {
	for e := c.queue.Front(); e != nil; e = e.Next() {
		e.Value.(*pending).complete(err)
	}
	c.queue.Init()
}

// terminalError reports the latched error for a dead connection, or nil.
func (c *Conn) terminalError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.status {
	case StatusClosed, StatusClosing:
		return errConnClosed
	case StatusFailed:
		return c.fatalErr
	}
	return nil
}

// receive blocks for the next backend message. Context cancellation
// interrupts the read via a deadline; partially read frames stay
// buffered, so the stream is not desynchronized and a later receive
// resumes cleanly.
func (c *Conn) receive(ctx context.Context) (proto.BackendMessage, error) {
	// Clear any deadline poisoned by an earlier cancellation.
	_ = c.nc.SetReadDeadline(time.Time{})

	if ctx.Done() == nil {
		return c.frontend.Receive()
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-ctx.Done():
			_ = c.nc.SetReadDeadline(time.Now())
		case <-stop:
		}
	}()

	msg, err := c.frontend.Receive()
	close(stop)
	<-done

	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return msg, err
}
