package proto

import (
	"encoding/binary"
	"io"
)

// Backend is the server side of the stream. The library itself only
// speaks as a frontend; Backend exists for the scripted test server and
// mirrors Frontend's framing.
type Backend struct {
	cr *chunkReader
	w  io.Writer

	wbuf      []byte
	encodeErr error

	// 'p' frames are ambiguous: their meaning depends on which
	// authentication request the server sent last.
	authType uint32
}

func NewBackend(r io.Reader, w io.Writer) *Backend {
	return &Backend{cr: newChunkReader(r, 0), w: w}
}

// SetAuthType records the authentication request most recently sent, so
// the next 'p' frame decodes as the matching response message.
func (b *Backend) SetAuthType(authType uint32) {
	b.authType = authType
}

func (b *Backend) Send(msg BackendMessage) {
	if b.encodeErr != nil {
		return
	}
	wbuf, err := msg.Encode(b.wbuf)
	if err != nil {
		b.encodeErr = err
		return
	}
	b.wbuf = wbuf
}

func (b *Backend) Flush() error {
	if err := b.encodeErr; err != nil {
		b.encodeErr = nil
		b.wbuf = b.wbuf[:0]
		return err
	}
	if len(b.wbuf) == 0 {
		return nil
	}
	if _, err := b.w.Write(b.wbuf); err != nil {
		return err
	}
	b.wbuf = b.wbuf[:0]
	return nil
}

// ReceiveStartupMessage reads the untagged first frame of a session:
// StartupMessage, SSLRequest or CancelRequest.
func (b *Backend) ReceiveStartupMessage() (FrontendMessage, error) {
	lenBuf, err := b.cr.Next(4)
	if err != nil {
		return nil, err
	}
	msgLen := int(binary.BigEndian.Uint32(lenBuf)) - 4
	if msgLen < 4 || msgLen > maxMessageBodyLen {
		return nil, malformed(0, "invalid startup length %d", msgLen+4)
	}

	body, err := b.cr.Next(msgLen)
	if err != nil {
		return nil, err
	}

	var msg FrontendMessage
	switch code := binary.BigEndian.Uint32(body); code {
	case ProtocolVersionNumber:
		msg = &StartupMessage{}
	case sslRequestCode:
		msg = &SSLRequest{}
	case cancelRequestCode:
		msg = &CancelRequest{}
	default:
		return nil, malformed(0, "unknown startup request code %d", code)
	}

	if err := msg.Decode(body); err != nil {
		return nil, err
	}
	return msg, nil
}

// Receive blocks until the next frontend message is fully read and
// decoded.
func (b *Backend) Receive() (FrontendMessage, error) {
	header, err := b.cr.Next(5)
	if err != nil {
		return nil, err
	}
	tag := header[0]
	bodyLen := int(binary.BigEndian.Uint32(header[1:])) - 4
	if bodyLen < 0 || bodyLen > maxMessageBodyLen {
		return nil, malformed(tag, "invalid body length %d", bodyLen)
	}

	body, err := b.cr.Next(bodyLen)
	if err != nil {
		return nil, err
	}

	var msg FrontendMessage
	switch tag {
	case 'Q':
		msg = &Query{}
	case 'P':
		msg = &Parse{}
	case 'B':
		msg = &Bind{}
	case 'D':
		msg = &Describe{}
	case 'E':
		msg = &Execute{}
	case 'C':
		msg = &Close{}
	case 'H':
		msg = &Flush{}
	case 'S':
		msg = &Sync{}
	case 'X':
		msg = &Terminate{}
	case 'd':
		msg = &CopyData{}
	case 'c':
		msg = &CopyDone{}
	case 'f':
		msg = &CopyFail{}
	case 'p':
		switch b.authType {
		case AuthTypeSASL:
			msg = &SASLInitialResponse{}
		case AuthTypeSASLContinue:
			msg = &SASLResponse{}
		default:
			msg = &PasswordMessage{}
		}
	default:
		return nil, malformed(tag, "unknown frontend message type")
	}

	if err := msg.Decode(body); err != nil {
		return nil, err
	}
	return msg, nil
}
