package conn

import (
	"context"

	"github.com/pg-sharding/pglink/pkg/proto"
	"github.com/pg-sharding/pglink/pkg/stmtcache"
)

// PendingResult is a handle to one pipelined request's eventual outcome.
type PendingResult struct {
	c *Conn
	p *pending
}

// Wait blocks until the request completed and returns its buffered
// results. A request queued behind a failed batch member reports a
// BatchAbortError wrapping the original failure.
func (pr *PendingResult) Wait(ctx context.Context) ([]*Result, error) {
	if err := pr.c.wait(ctx, pr.p); err != nil {
		return pr.p.results, err
	}
	return pr.p.results, nil
}

// Pipeline submits requests without waiting for their responses.
// Handles resolve in submission order whenever the caller chooses to
// wait; the connection demultiplexes interleaved responses to the right
// handle. Multiple goroutines may submit concurrently, each submission
// is written atomically.
type Pipeline struct {
	c *Conn
}

// Pipeline returns the pipelined submission surface of the connection.
func (c *Conn) Pipeline() *Pipeline { return &Pipeline{c: c} }

// SendQuery submits a simple protocol query. Simple queries carry an
// implicit sync, so each one is its own batch boundary.
func (p *Pipeline) SendQuery(sql string) (*PendingResult, error) {
	pe := newPending(kindSimple, true)
	if err := p.c.submit(pe, &proto.Query{String: sql}); err != nil {
		return nil, err
	}
	return &PendingResult{c: p.c, p: pe}, nil
}

// SendExec submits one extended protocol execution without a trailing
// Sync; it belongs to the batch closed by the next Sync call. On a
// cache miss the statement is prepared first, synchronously under ctx;
// prefer preparing before opening the batch, a prepare round trip in
// the middle of one stalls the submissions behind it.
func (p *Pipeline) SendExec(ctx context.Context, sql string, args ...any) (*PendingResult, error) {
	entry, ok := p.c.cache.Get(sql)
	if !ok {
		var err error
		entry, err = p.c.prepare(ctx, sql)
		if err != nil {
			return nil, err
		}
	}
	return p.sendExecEntry(entry, args)
}

// SendPrepared submits an execution of an already prepared entry.
func (p *Pipeline) SendPrepared(entry *stmtcache.Entry, args ...any) (*PendingResult, error) {
	return p.sendExecEntry(entry, args)
}

func (p *Pipeline) sendExecEntry(entry *stmtcache.Entry, args []any) (*PendingResult, error) {
	paramFormats, params, err := p.c.encodeArgs(entry, args)
	if err != nil {
		return nil, err
	}
	resultFormats, fields := p.c.resultFormats(entry)

	pe := newPending(kindExec, false)
	pe.fields = fields

	bind := &proto.Bind{
		PreparedStatement:    entry.Def.Name,
		ParameterFormatCodes: paramFormats,
		Parameters:           params,
		ResultFormatCodes:    resultFormats,
	}
	if err := p.c.submit(pe, bind, &proto.Execute{}); err != nil {
		return nil, err
	}
	return &PendingResult{c: p.c, p: pe}, nil
}

// Sync closes the current batch. The returned handle resolves when the
// backend reports ReadyForQuery for the batch; if a member failed, the
// handle carries that member's error.
func (p *Pipeline) Sync() (*PendingResult, error) {
	pe := newPending(kindSync, true)
	if err := p.c.submit(pe, &proto.Sync{}); err != nil {
		return nil, err
	}
	return &PendingResult{c: p.c, p: pe}, nil
}
