package conn

import (
	"context"
	"errors"
	"fmt"

	"github.com/pg-sharding/pglink/pkg/pgerror"
	"github.com/pg-sharding/pglink/pkg/pglog"
	"github.com/pg-sharding/pglink/pkg/proto"
	"github.com/pg-sharding/pglink/pkg/txstatus"
)

var (
	errConnClosed  = errors.New("connection closed")
	errSSLDeclined = errors.New("server declined ssl and sslmode requires it")
)

type pendingKind int

const (
	kindSimple pendingKind = iota
	kindPrepare
	kindExec
	kindClose
	kindSync
)

// pending is one submitted request awaiting its response run. Responses
// arrive in submission order, so the routing loop always works on the
// queue's front entry. A terminal entry completes at ReadyForQuery; a
// non-terminal one (a pipelined exec before its batch Sync) completes at
// CommandComplete.
type pending struct {
	kind     pendingKind
	terminal bool

	done chan struct{}
	err  error

	// bound flips when the backend acknowledged Bind. The execute path
	// waits on it to catch a stale statement before handing rows out.
	bound bool

	// Simple queries may carry several statements, so results is a
	// series. Extended execs produce exactly one.
	results []*Result
	cur     *Result

	// Prepare metadata.
	paramOIDs []uint32
	fields    []proto.FieldDescription
	noData    bool

	// COPY TO output, accumulated verbatim.
	copyData []byte

	discard bool
}

func newPending(kind pendingKind, terminal bool) *pending {
	return &pending{kind: kind, terminal: terminal, done: make(chan struct{})}
}

func (p *pending) complete(err error) {
	select {
	case <-p.done:
		return
	default:
	}
	if p.err == nil {
		p.err = err
	}
	close(p.done)
}

func (p *pending) isDone() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// submit appends msgs to the stream and enqueues the entry, atomically
// with respect to other submitters so queue order equals write order.
func (c *Conn) submit(p *pending, msgs ...proto.FrontendMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.terminalError(); err != nil {
		return err
	}

	c.mu.Lock()
	c.queue.PushBack(p)
	c.status = StatusBusy
	c.mu.Unlock()

	for _, m := range msgs {
		c.frontend.Send(m)
	}
	if err := c.frontend.Flush(); err != nil {
		c.fail(&pgerror.TransportError{Err: err})
		return c.terminalError()
	}
	return nil
}

// wait drives the routing loop until p completes. Only one goroutine
// reads the stream at a time; the rest block on either p.done or the
// read mutex. A cancelled context abandons the wait but leaves p queued,
// so its responses are still drained in order by the next reader.
func (c *Conn) wait(ctx context.Context, p *pending) error {
	for {
		select {
		case <-p.done:
			return p.err
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		c.readMu.Lock()
		if p.isDone() {
			c.readMu.Unlock()
			return p.err
		}

		msg, err := c.receive(ctx)
		if err != nil {
			c.readMu.Unlock()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.fail(&pgerror.TransportError{Err: err})
			return c.terminalError()
		}

		c.route(msg)
		c.readMu.Unlock()
	}
}

// waitBound drives the loop until the backend acknowledged the Bind of p
// or p completed. Used by the execute path to detect a stale statement
// before returning a row stream.
func (c *Conn) waitBound(ctx context.Context, p *pending) error {
	for {
		c.mu.Lock()
		bound := p.bound
		c.mu.Unlock()
		if bound || p.isDone() {
			return p.err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		c.readMu.Lock()
		c.mu.Lock()
		bound = p.bound
		c.mu.Unlock()
		if bound || p.isDone() {
			c.readMu.Unlock()
			return p.err
		}

		msg, err := c.receive(ctx)
		if err != nil {
			c.readMu.Unlock()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.fail(&pgerror.TransportError{Err: err})
			return c.terminalError()
		}

		c.route(msg)
		c.readMu.Unlock()
	}
}

// front returns the queue's front entry without removing it.
func (c *Conn) front() *pending {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e := c.queue.Front(); e != nil {
		return e.Value.(*pending)
	}
	return nil
}

// pop removes the front entry and updates busy/ready.
func (c *Conn) pop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e := c.queue.Front(); e != nil {
		c.queue.Remove(e)
	}
	if c.queue.Len() == 0 && c.status == StatusBusy {
		c.status = StatusReady
	}
}

// abortBatch fails every queued non-terminal entry up to the next batch
// boundary with a wrapper naming the originating error. The boundary
// entry itself keeps the original error so its waiter sees the cause.
func (c *Conn) abortBatch(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for e := c.queue.Front(); e != nil; {
		next := e.Next()
		p := e.Value.(*pending)
		if p.terminal {
			// The boundary completes at ReadyForQuery carrying cause.
			if p.err == nil {
				p.err = cause
			}
			break
		}
		p.complete(&pgerror.BatchAbortError{Cause: cause})
		c.queue.Remove(e)
		e = next
	}
	if c.queue.Len() == 0 && c.status == StatusBusy {
		c.status = StatusReady
	}
}

// route attributes one backend message. Caller holds readMu.
func (c *Conn) route(msg proto.BackendMessage) {
	switch msg := msg.(type) {
	case *proto.NotificationResponse:
		c.handleNotification(msg)
		return
	case *proto.NoticeResponse:
		c.handleNotice(msg)
		return
	case *proto.ParameterStatus:
		c.mu.Lock()
		c.params[msg.Name] = msg.Value
		c.mu.Unlock()
		return
	}

	p := c.front()
	if p == nil {
		c.fail(&pgerror.ProtocolViolation{State: c.Status().String(), Got: messageName(msg)})
		return
	}

	switch msg := msg.(type) {
	case *proto.ParseComplete:

	case *proto.BindComplete:
		c.mu.Lock()
		p.bound = true
		c.mu.Unlock()

	case *proto.CloseComplete:

	case *proto.ParameterDescription:
		p.paramOIDs = msg.ParameterOIDs

	case *proto.RowDescription:
		p.fields = msg.Fields
		p.cur = &Result{Fields: msg.Fields, typeMap: c.typeMap}

	case *proto.NoData:
		p.noData = true

	case *proto.DataRow:
		if p.discard {
			break
		}
		if p.cur == nil {
			p.cur = &Result{Fields: p.fields, typeMap: c.typeMap}
		}
		p.cur.rows = append(p.cur.rows, msg.Values)

	case *proto.CommandComplete:
		c.finishResult(p, CommandTag(msg.CommandTag))

	case *proto.EmptyQueryResponse:
		c.finishResult(p, "")

	case *proto.PortalSuspended:
		c.finishResult(p, "")

	case *proto.CopyInResponse:
		// COPY FROM is not part of the surface; refuse and move on.
		c.writeMu.Lock()
		c.frontend.Send(&proto.CopyFail{Message: "copy from stdin not supported"})
		if err := c.frontend.Flush(); err != nil {
			c.writeMu.Unlock()
			c.fail(&pgerror.TransportError{Err: err})
			return
		}
		c.writeMu.Unlock()

	case *proto.CopyOutResponse:

	case *proto.CopyData:
		p.copyData = append(p.copyData, msg.Data...)

	case *proto.CopyDone:

	case *proto.ErrorResponse:
		serr := serverError(msg)
		pglog.Zero.Debug().
			Str("code", serr.Code).
			Str("message", serr.Message).
			Msg("server error")
		if p.terminal {
			// The entry stays queued; it completes at ReadyForQuery.
			c.mu.Lock()
			if p.err == nil {
				p.err = serr
			}
			c.mu.Unlock()
		} else {
			p.complete(serr)
			c.pop()
			c.abortBatch(serr)
		}

	case *proto.ReadyForQuery:
		c.mu.Lock()
		c.txStatus = txstatus.TXStatus(msg.TxStatus)
		c.mu.Unlock()
		if !p.terminal {
			// A batch boundary reply with no matching Sync entry.
			c.fail(&pgerror.ProtocolViolation{State: StatusBusy.String(), Got: "ReadyForQuery"})
			return
		}
		c.pop()
		p.complete(p.err)

	default:
		c.fail(&pgerror.ProtocolViolation{State: c.Status().String(), Got: messageName(msg)})
	}
}

// finishResult closes the current result of p and, for non-terminal
// entries, completes the entry itself.
func (c *Conn) finishResult(p *pending, tag CommandTag) {
	if p.cur == nil {
		p.cur = &Result{Fields: p.fields, typeMap: c.typeMap}
	}
	p.cur.CommandTag = tag
	if len(p.copyData) > 0 {
		p.cur.CopyOut = p.copyData
		p.copyData = nil
	}
	p.results = append(p.results, p.cur)
	p.cur = nil
	if !p.terminal {
		p.complete(nil)
		c.pop()
	}
}

func serverError(er *proto.ErrorResponse) *pgerror.ServerError {
	return &pgerror.ServerError{
		Severity:         er.Severity,
		Code:             er.Code,
		Message:          er.Message,
		Detail:           er.Detail,
		Hint:             er.Hint,
		Position:         er.Position,
		InternalPosition: er.InternalPosition,
		InternalQuery:    er.InternalQuery,
		Where:            er.Where,
		SchemaName:       er.SchemaName,
		TableName:        er.TableName,
		ColumnName:       er.ColumnName,
		DataTypeName:     er.DataTypeName,
		ConstraintName:   er.ConstraintName,
		File:             er.File,
		Line:             er.Line,
		Routine:          er.Routine,
	}
}

func (c *Conn) handleNotification(msg *proto.NotificationResponse) {
	c.mu.Lock()
	h := c.notificationHandler
	c.mu.Unlock()
	if h == nil {
		pglog.Zero.Debug().
			Str("channel", msg.Channel).
			Msg("notification dropped, no handler")
		return
	}
	h(&Notification{PID: msg.PID, Channel: msg.Channel, Payload: msg.Payload})
}

func (c *Conn) handleNotice(msg *proto.NoticeResponse) {
	c.mu.Lock()
	h := c.noticeHandler
	c.mu.Unlock()
	if h == nil {
		return
	}
	h(serverError((*proto.ErrorResponse)(msg)))
}

func messageName(msg proto.BackendMessage) string {
	switch msg.(type) {
	case *proto.RowDescription:
		return "RowDescription"
	case *proto.DataRow:
		return "DataRow"
	case *proto.CommandComplete:
		return "CommandComplete"
	case *proto.ParseComplete:
		return "ParseComplete"
	case *proto.BindComplete:
		return "BindComplete"
	case *proto.CloseComplete:
		return "CloseComplete"
	case *proto.ReadyForQuery:
		return "ReadyForQuery"
	case *proto.ErrorResponse:
		return "ErrorResponse"
	case *proto.EmptyQueryResponse:
		return "EmptyQueryResponse"
	case *proto.PortalSuspended:
		return "PortalSuspended"
	case *proto.ParameterDescription:
		return "ParameterDescription"
	case *proto.NoData:
		return "NoData"
	case *proto.BackendKeyData:
		return "BackendKeyData"
	default:
		return fmt.Sprintf("%T", msg)
	}
}
