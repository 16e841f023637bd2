package conn

import (
	"context"
	"strconv"
	"strings"

	"github.com/pg-sharding/pglink/pkg/pgerror"
	"github.com/pg-sharding/pglink/pkg/pgtype"
	"github.com/pg-sharding/pglink/pkg/proto"
)

// CommandTag is the backend's completion tag, e.g. "INSERT 0 5".
type CommandTag string

func (ct CommandTag) String() string { return string(ct) }

// RowsAffected extracts the trailing row count from the tag. Tags
// without one ("LISTEN", "SET") report zero.
func (ct CommandTag) RowsAffected() int64 {
	idx := strings.LastIndexByte(string(ct), ' ')
	if idx < 0 {
		return 0
	}
	n, err := strconv.ParseInt(string(ct)[idx+1:], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Result is one statement's buffered outcome: the row set, its shape and
// the completion tag. Values are decoded lazily through the connection's
// type registry.
type Result struct {
	CommandTag CommandTag
	Fields     []proto.FieldDescription

	// CopyOut holds the raw COPY TO data stream when the statement was a
	// COPY ... TO STDOUT.
	CopyOut []byte

	rows    [][][]byte
	typeMap *pgtype.Map
}

// RowCount is the number of buffered rows.
func (r *Result) RowCount() int { return len(r.rows) }

// RawValues returns row i's wire values. A nil element is a SQL NULL.
func (r *Result) RawValues(i int) [][]byte { return r.rows[i] }

// Values decodes row i into native values using the per-column format
// and type oid from the row description.
func (r *Result) Values(i int) ([]any, error) {
	raw := r.rows[i]
	out := make([]any, len(raw))
	for col, src := range raw {
		fd := r.Fields[col]
		v, err := r.typeMap.Decode(fd.DataTypeOID, fd.Format, src)
		if err != nil {
			return nil, err
		}
		out[col] = v
	}
	return out, nil
}

// Rows is a forward-only cursor over one extended query execution. Rows
// are consumed lazily: Next drives the connection's routing loop only as
// far as the next buffered row. Abandoning the cursor early is safe,
// Close drains the remainder so the stream stays synchronized.
type Rows struct {
	c   *Conn
	p   *pending
	ctx context.Context

	idx     int
	current [][]byte
	err     error
	closed  bool
}

// Next advances to the next row. It returns false at the end of the row
// set or on error; check Err afterwards.
func (rs *Rows) Next() bool {
	if rs.closed || rs.err != nil {
		return false
	}

	for {
		rs.c.readMu.Lock()
		row, ok := rs.rowAt(rs.idx)
		done := rs.p.isDone()
		if ok {
			rs.c.readMu.Unlock()
			rs.current = row
			rs.idx++
			return true
		}
		if done {
			rs.c.readMu.Unlock()
			rs.err = rs.p.err
			return false
		}
		if err := rs.ctx.Err(); err != nil {
			rs.c.readMu.Unlock()
			rs.err = err
			return false
		}

		msg, err := rs.c.receive(rs.ctx)
		if err != nil {
			rs.c.readMu.Unlock()
			if rs.ctx.Err() != nil {
				rs.err = rs.ctx.Err()
				return false
			}
			rs.c.fail(&pgerror.TransportError{Err: err})
			rs.err = rs.c.terminalError()
			return false
		}
		rs.c.route(msg)
		rs.c.readMu.Unlock()
	}
}

// rowAt returns the buffered row at index i across the entry's results.
// Caller holds readMu.
func (rs *Rows) rowAt(i int) ([][]byte, bool) {
	for _, res := range rs.p.results {
		if i < len(res.rows) {
			return res.rows[i], true
		}
		i -= len(res.rows)
	}
	if rs.p.cur != nil && i < len(rs.p.cur.rows) {
		return rs.p.cur.rows[i], true
	}
	return nil, false
}

// Values decodes the current row.
func (rs *Rows) Values() ([]any, error) {
	fields := rs.FieldDescriptions()
	out := make([]any, len(rs.current))
	for col, src := range rs.current {
		fd := fields[col]
		v, err := rs.c.typeMap.Decode(fd.DataTypeOID, fd.Format, src)
		if err != nil {
			return nil, err
		}
		out[col] = v
	}
	return out, nil
}

// RawValues returns the current row's wire values.
func (rs *Rows) RawValues() [][]byte { return rs.current }

// FieldDescriptions returns the row shape.
func (rs *Rows) FieldDescriptions() []proto.FieldDescription {
	rs.c.readMu.Lock()
	defer rs.c.readMu.Unlock()
	return rs.p.fields
}

// CommandTag is valid after the cursor is exhausted or closed.
func (rs *Rows) CommandTag() CommandTag {
	if len(rs.p.results) > 0 {
		return rs.p.results[len(rs.p.results)-1].CommandTag
	}
	return ""
}

// Err reports the first error hit while iterating.
func (rs *Rows) Err() error {
	if rs.err != nil {
		return rs.err
	}
	return rs.p.err
}

// Close discards remaining rows and drains the execution to completion.
func (rs *Rows) Close() error {
	if rs.closed {
		return rs.err
	}
	rs.closed = true

	rs.c.readMu.Lock()
	rs.p.discard = true
	rs.c.readMu.Unlock()

	if err := rs.c.wait(rs.ctx, rs.p); err != nil {
		if rs.err == nil {
			rs.err = err
		}
	}
	return rs.err
}
