package conn

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pg-sharding/pglink/pkg/pgerror"
	"github.com/pg-sharding/pglink/pkg/pglog"
	"github.com/pg-sharding/pglink/pkg/pgtype"
	"github.com/pg-sharding/pglink/pkg/proto"
	"github.com/pg-sharding/pglink/pkg/stmtcache"
)

// Exec runs sql through the simple query protocol. The text may contain
// several statements; each produces one Result. No automatic retry
// happens here: a simple query has no cached name that can go stale.
func (c *Conn) Exec(ctx context.Context, sql string) ([]*Result, error) {
	p := newPending(kindSimple, true)
	if err := c.submit(p, &proto.Query{String: sql}); err != nil {
		return nil, err
	}
	if err := c.wait(ctx, p); err != nil {
		return p.results, err
	}
	return p.results, nil
}

// Prepare returns the cached entry for sql, preparing it server-side on
// a miss. The statement name is derived from the text, so behind a
// pooling proxy every logical session maps the same text to the same
// server-side name.
func (c *Conn) Prepare(ctx context.Context, sql string) (*stmtcache.Entry, error) {
	if e, ok := c.cache.Get(sql); ok {
		return e, nil
	}
	return c.prepare(ctx, sql)
}

func (c *Conn) prepare(ctx context.Context, sql string) (*stmtcache.Entry, error) {
	name := stmtcache.Name(sql)

	p := newPending(kindPrepare, true)
	err := c.submit(p,
		&proto.Parse{Name: name, Query: sql},
		&proto.Describe{ObjectType: 'S', Name: name},
		&proto.Sync{},
	)
	if err != nil {
		return nil, err
	}
	if err := c.wait(ctx, p); err != nil {
		var serr *pgerror.ServerError
		if errors.As(err, &serr) && serr.Code == "42P05" {
			// Another logical session prepared the same text under the
			// same derived name on this backend. The statement is usable,
			// only its metadata is missing.
			return c.describeStatement(ctx, name, sql)
		}
		return nil, err
	}

	entry := &stmtcache.Entry{
		Def:  stmtcache.Definition{Name: name, SQL: sql, ParameterOIDs: p.paramOIDs},
		Desc: stmtcache.Descriptor{ParameterOIDs: p.paramOIDs, Fields: p.fields, NoData: p.noData},
	}
	c.cache.Put(entry)
	c.loadResultTypes(ctx, p.fields)

	pglog.Zero.Debug().Str("statement", name).Msg("statement prepared")
	return entry, nil
}

// describeStatement fetches metadata for a statement that already exists
// on the backend.
func (c *Conn) describeStatement(ctx context.Context, name, sql string) (*stmtcache.Entry, error) {
	p := newPending(kindPrepare, true)
	err := c.submit(p,
		&proto.Describe{ObjectType: 'S', Name: name},
		&proto.Sync{},
	)
	if err != nil {
		return nil, err
	}
	if err := c.wait(ctx, p); err != nil {
		return nil, err
	}

	entry := &stmtcache.Entry{
		Def:  stmtcache.Definition{Name: name, SQL: sql, ParameterOIDs: p.paramOIDs},
		Desc: stmtcache.Descriptor{ParameterOIDs: p.paramOIDs, Fields: p.fields, NoData: p.noData},
	}
	c.cache.Put(entry)
	c.loadResultTypes(ctx, p.fields)
	return entry, nil
}

// CloseStatement deallocates the server-side statement for sql and drops
// it from the cache.
func (c *Conn) CloseStatement(ctx context.Context, sql string) error {
	name := stmtcache.Name(sql)
	c.cache.Evict(sql)

	p := newPending(kindClose, true)
	if err := c.submit(p, &proto.Close{ObjectType: 'S', Name: name}, &proto.Sync{}); err != nil {
		return err
	}
	return c.wait(ctx, p)
}

// Query executes sql through the extended protocol, preparing on first
// use. It hands back a lazy row cursor once the backend has acknowledged
// the Bind.
//
// When a cached statement turns out stale (a pooling proxy swapped the
// physical backend since it was prepared), the statement is re-prepared
// and the execution retried exactly once. A second stale failure latches
// the connection: something is rewriting statements under us faster than
// we can recover.
func (c *Conn) Query(ctx context.Context, sql string, args ...any) (*Rows, error) {
	entry, cached := c.cache.Get(sql)
	if !cached {
		var err error
		entry, err = c.prepare(ctx, sql)
		if err != nil {
			return nil, err
		}
	}

	rows, err := c.startExec(ctx, entry, args)
	if err == nil {
		return rows, nil
	}
	if !cached || !pgerror.IsStaleStatement(err) {
		return nil, err
	}

	pglog.Zero.Info().
		Str("statement", entry.Def.Name).
		Msg("cached statement lost by backend, re-preparing")
	c.cache.Evict(sql)

	entry, err = c.prepare(ctx, sql)
	if err != nil {
		return nil, err
	}
	rows, err = c.startExec(ctx, entry, args)
	if err == nil {
		return rows, nil
	}
	if pgerror.IsStaleStatement(err) {
		var serr *pgerror.ServerError
		errors.As(err, &serr)
		stale := &pgerror.StaleStatementError{Name: entry.Def.Name, Server: serr}
		c.fail(stale)
		return nil, stale
	}
	return nil, err
}

// QueryPrepared executes an already prepared entry. No stale-statement
// retry happens here: the caller owns the entry's lifecycle.
func (c *Conn) QueryPrepared(ctx context.Context, entry *stmtcache.Entry, args ...any) (*Rows, error) {
	return c.startExec(ctx, entry, args)
}

// ClosePortal destroys a named server-side portal.
func (c *Conn) ClosePortal(ctx context.Context, name string) error {
	p := newPending(kindClose, true)
	if err := c.submit(p, &proto.Close{ObjectType: 'P', Name: name}, &proto.Sync{}); err != nil {
		return err
	}
	return c.wait(ctx, p)
}

// QueryResult runs Query and buffers the whole row set.
func (c *Conn) QueryResult(ctx context.Context, sql string, args ...any) (*Result, error) {
	rows, err := c.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	if err := c.wait(ctx, rows.p); err != nil {
		return nil, err
	}
	if len(rows.p.results) == 0 {
		return &Result{Fields: rows.p.fields, typeMap: c.typeMap}, nil
	}
	return rows.p.results[0], nil
}

// startExec submits Bind/Execute/Sync for entry and waits for the Bind
// acknowledgement. Only the unnamed portal is used; each execution fully
// replaces the previous one.
func (c *Conn) startExec(ctx context.Context, entry *stmtcache.Entry, args []any) (*Rows, error) {
	paramFormats, params, err := c.encodeArgs(entry, args)
	if err != nil {
		return nil, err
	}
	resultFormats, fields := c.resultFormats(entry)

	p := newPending(kindExec, true)
	p.fields = fields

	bind := &proto.Bind{
		PreparedStatement:    entry.Def.Name,
		ParameterFormatCodes: paramFormats,
		Parameters:           params,
		ResultFormatCodes:    resultFormats,
	}
	if err := c.submit(p, bind, &proto.Execute{}, &proto.Sync{}); err != nil {
		return nil, err
	}

	if err := c.waitBound(ctx, p); err != nil {
		// Drain the aborted batch to its boundary so the stream is
		// clean before reporting.
		if ctx.Err() == nil {
			_ = c.wait(ctx, p)
		}
		return nil, err
	}
	return &Rows{c: c, p: p, ctx: ctx}, nil
}

// encodeArgs converts native arguments into wire values plus their
// format codes, using the statement's described parameter oids when
// available and Go-type inference otherwise.
func (c *Conn) encodeArgs(entry *stmtcache.Entry, args []any) ([]int16, [][]byte, error) {
	if len(args) == 0 {
		return nil, nil, nil
	}

	formats := make([]int16, len(args))
	values := make([][]byte, len(args))
	for i, arg := range args {
		var oid uint32
		if i < len(entry.Desc.ParameterOIDs) {
			oid = entry.Desc.ParameterOIDs[i]
		} else {
			oid = inferOID(arg)
		}

		format := c.typeMap.PreferredFormat(oid)
		v, err := c.typeMap.Encode(oid, format, arg, nil)
		if err != nil {
			return nil, nil, err
		}
		formats[i] = format
		values[i] = v
	}
	return formats, values, nil
}

// resultFormats picks the wire format per result column and returns the
// field descriptions rewritten to match, so decoding later uses the
// format actually requested.
func (c *Conn) resultFormats(entry *stmtcache.Entry) ([]int16, []proto.FieldDescription) {
	if len(entry.Desc.Fields) == 0 {
		return nil, nil
	}

	formats := make([]int16, len(entry.Desc.Fields))
	fields := make([]proto.FieldDescription, len(entry.Desc.Fields))
	for i, fd := range entry.Desc.Fields {
		formats[i] = c.typeMap.PreferredFormat(fd.DataTypeOID)
		fields[i] = fd
		fields[i].Format = formats[i]
	}
	return formats, fields
}

// inferOID guesses the parameter oid from the Go type when the backend
// did not describe one.
func inferOID(v any) uint32 {
	switch v.(type) {
	case bool:
		return pgtype.BoolOID
	case int, int64:
		return pgtype.Int8OID
	case int16:
		return pgtype.Int2OID
	case int32:
		return pgtype.Int4OID
	case float32:
		return pgtype.Float4OID
	case float64:
		return pgtype.Float8OID
	case string:
		return pgtype.TextOID
	case []byte:
		return pgtype.ByteaOID
	case time.Time:
		return pgtype.TimestamptzOID
	case uuid.UUID:
		return pgtype.UUIDOID
	default:
		return 0
	}
}
