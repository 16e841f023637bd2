// Package proto implements the PostgreSQL frontend/backend wire protocol,
// version 3.0.
//
// Every message kind is a struct with Decode/Encode methods. Frontend and
// Backend wrap a byte stream and handle framing: a one byte tag (absent on
// startup-phase messages) followed by a four byte big-endian length that
// covers itself plus the payload. Values embedded in Bind and DataRow
// payloads are opaque byte slices at this layer.
package proto

import (
	"encoding/binary"
	"fmt"
)

const (
	// ProtocolVersionNumber is protocol 3.0 (196608).
	ProtocolVersionNumber = 196608

	sslRequestCode    = 80877103
	cancelRequestCode = 80877102

	// maxMessageBodyLen bounds a single frame. Anything larger is treated
	// as a malformed frame rather than an allocation request.
	maxMessageBodyLen = 64 * 1024 * 1024
)

// Format codes used in Bind parameters and RowDescription fields.
const (
	TextFormat   = int16(0)
	BinaryFormat = int16(1)
)

// Message is the interface implemented by every protocol message.
type Message interface {
	// Decode parses the message payload (tag and length already stripped).
	Decode(data []byte) error

	// Encode appends the full frame, including tag and length, to dst.
	Encode(dst []byte) ([]byte, error)
}

// FrontendMessage is a message sendable by the client.
type FrontendMessage interface {
	Message
	Frontend()
}

// BackendMessage is a message sendable by the server.
type BackendMessage interface {
	Message
	Backend()
}

// MalformedFrameError reports a frame whose length or payload is
// inconsistent with its declared message kind.
type MalformedFrameError struct {
	Tag    byte
	Reason string
}

func (e *MalformedFrameError) Error() string {
	if e.Tag == 0 {
		return fmt.Sprintf("malformed frame: %s", e.Reason)
	}
	return fmt.Sprintf("malformed frame %q: %s", e.Tag, e.Reason)
}

func malformed(tag byte, format string, args ...any) error {
	return &MalformedFrameError{Tag: tag, Reason: fmt.Sprintf(format, args...)}
}

// beginMessage appends tag and a length placeholder, returning the
// placeholder offset for finishMessage.
func beginMessage(dst []byte, tag byte) ([]byte, int) {
	dst = append(dst, tag, 0, 0, 0, 0)
	return dst, len(dst) - 4
}

// finishMessage back-fills the length prefix so that it always equals the
// encoded payload size plus itself.
func finishMessage(dst []byte, sp int) ([]byte, error) {
	n := len(dst) - sp
	if n > maxMessageBodyLen {
		return nil, malformed(dst[sp-1], "message body too large (%d bytes)", n)
	}
	binary.BigEndian.PutUint32(dst[sp:], uint32(n))
	return dst, nil
}
