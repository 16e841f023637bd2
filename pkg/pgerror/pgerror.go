// Package pgerror defines the error taxonomy of the protocol engine.
//
// Fatal kinds (transport, protocol violation, authentication) latch the
// connection; server and conversion errors are scoped to the operation
// or column that produced them.
package pgerror

import (
	"errors"
	"fmt"
)

const (
	// CodeUndefinedPstmt is the SQLSTATE the backend reports when a Bind
	// references a statement name it does not hold. Behind a
	// transaction-pooling proxy this usually means the physical backend
	// changed since the statement was prepared.
	CodeUndefinedPstmt = "26000"

	// CodeDivisionByZero is referenced by tests only.
	CodeDivisionByZero = "22012"
)

// TransportError wraps an I/O failure on the connection's stream. Always
// fatal to the connection.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolViolation reports a backend message arriving outside its
// expected state sequence. Always fatal to the connection.
type ProtocolViolation struct {
	State string
	Got   string
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation: unexpected message %s in state %s", e.Got, e.State)
}

// ServerError is the decoded payload of an ErrorResponse. It is surfaced
// to the caller whose operation produced it and is not fatal to the
// connection.
type ServerError struct {
	Severity         string
	Code             string
	Message          string
	Detail           string
	Hint             string
	Position         int32
	InternalPosition int32
	InternalQuery    string
	Where            string
	SchemaName       string
	TableName        string
	ColumnName       string
	DataTypeName     string
	ConstraintName   string
	File             string
	Line             int32
	Routine          string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s (SQLSTATE %s)", e.Severity, e.Message, e.Code)
}

// SQLState returns the five character SQLSTATE code.
func (e *ServerError) SQLState() string { return e.Code }

// BatchAbortError wraps the error of an earlier operation in the same
// pipelined batch. The backend skips every message up to the next Sync
// once a batch fails, so queued operations after the failure are
// answered with the originating error.
type BatchAbortError struct {
	Cause error
}

func (e *BatchAbortError) Error() string {
	return fmt.Sprintf("aborted due to prior error in batch: %v", e.Cause)
}

func (e *BatchAbortError) Unwrap() error { return e.Cause }

// ConversionError reports a wire value that could not be converted to or
// from a native value. Scoped to a single column; never aborts the
// connection.
type ConversionError struct {
	OID    uint32
	GoType string
	Len    int
	Err    error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot convert %d byte value of oid %d to %s: %v", e.Len, e.OID, e.GoType, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// StaleStatementError marks a ServerError as caused by a pooler backend
// swap invalidating a cached prepared statement. Internal: the execute
// path consumes it to drive the one-shot re-prepare.
type StaleStatementError struct {
	Name   string
	Server *ServerError
}

func (e *StaleStatementError) Error() string {
	return fmt.Sprintf("prepared statement %q lost by backend: %v", e.Name, e.Server)
}

func (e *StaleStatementError) Unwrap() error { return e.Server }

// AuthError reports a failed authentication exchange. The connection
// never reaches the ready state.
type AuthError struct {
	Method string
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s authentication failed: %v", e.Method, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsFatal reports whether err tears the connection down.
func IsFatal(err error) bool {
	var te *TransportError
	var pv *ProtocolViolation
	var ae *AuthError
	return errors.As(err, &te) || errors.As(err, &pv) || errors.As(err, &ae)
}

// IsStaleStatement reports whether err is the backend telling us a named
// prepared statement does not exist.
func IsStaleStatement(err error) bool {
	var se *ServerError
	if errors.As(err, &se) {
		return se.Code == CodeUndefinedPstmt
	}
	return false
}
