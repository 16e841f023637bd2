package conn

import (
	"context"
	"io"
	"net"

	"github.com/pg-sharding/pglink/pkg/pgerror"
	"github.com/pg-sharding/pglink/pkg/pglog"
	"github.com/pg-sharding/pglink/pkg/proto"
)

// CancelRequest asks the server to interrupt whatever this session is
// executing. The request travels over a second, short-lived connection
// carrying the key data from startup; it is delivered best-effort and
// the server may ignore it. The cancelled operation, if any, still fails
// through the normal path with a 57014 server error.
func (c *Conn) CancelRequest(ctx context.Context) error {
	dial := c.cfg.DialFunc
	if dial == nil {
		d := &net.Dialer{Timeout: c.cfg.DialTimeout}
		dial = d.DialContext
	}

	nc, err := dial(ctx, "tcp", c.cfg.Addr())
	if err != nil {
		return &pgerror.TransportError{Err: err}
	}
	defer nc.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = nc.SetDeadline(deadline)
	}

	buf, err := (&proto.CancelRequest{
		ProcessID: c.pid,
		SecretKey: c.secretKey,
	}).Encode(nil)
	if err != nil {
		return err
	}
	if _, err := nc.Write(buf); err != nil {
		return &pgerror.TransportError{Err: err}
	}

	// The server closes without replying; wait for EOF so the write is
	// known to have been seen.
	if _, err := nc.Read(make([]byte, 1)); err != nil && err != io.EOF {
		return &pgerror.TransportError{Err: err}
	}

	pglog.Zero.Debug().Uint32("pid", c.pid).Msg("cancel request delivered")
	return nil
}
