package proto

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Frontend is the client side of the stream: it sends FrontendMessages
// and receives BackendMessages. Send buffers; Flush writes the buffer in
// one call, so a multi-message operation reaches the transport as one
// atomic sequence.
//
// Receive is resumable: a read that ends mid-frame leaves the partial
// frame buffered and a later Receive continues where it stopped. A
// partial frame is never reported as malformed.
type Frontend struct {
	cr *chunkReader
	w  io.Writer

	wbuf      []byte
	encodeErr error
}

func NewFrontend(r io.Reader, w io.Writer) *Frontend {
	return &Frontend{cr: newChunkReader(r, 0), w: w}
}

// Send encodes msg into the write buffer. The error, if any, surfaces on
// the next Flush.
func (f *Frontend) Send(msg FrontendMessage) {
	if f.encodeErr != nil {
		return
	}
	wbuf, err := msg.Encode(f.wbuf)
	if err != nil {
		f.encodeErr = err
		return
	}
	f.wbuf = wbuf
}

// Flush writes every buffered message to the underlying writer.
func (f *Frontend) Flush() error {
	if err := f.encodeErr; err != nil {
		f.encodeErr = nil
		f.wbuf = f.wbuf[:0]
		return err
	}
	if len(f.wbuf) == 0 {
		return nil
	}

	n, err := f.w.Write(f.wbuf)
	if err != nil {
		if n > 0 {
			// A partial write leaves the stream desynchronized; the
			// caller must treat this as fatal.
			return fmt.Errorf("partial write: wrote %d of %d bytes: %w", n, len(f.wbuf), err)
		}
		return err
	}

	f.wbuf = f.wbuf[:0]
	return nil
}

// Receive blocks until the next backend message is fully read and
// decoded.
func (f *Frontend) Receive() (BackendMessage, error) {
	header, err := f.cr.Next(5)
	if err != nil {
		return nil, err
	}
	tag := header[0]
	bodyLen := int(binary.BigEndian.Uint32(header[1:])) - 4
	if bodyLen < 0 || bodyLen > maxMessageBodyLen {
		return nil, malformed(tag, "invalid body length %d", bodyLen)
	}

	body, err := f.cr.Next(bodyLen)
	if err != nil {
		return nil, err
	}

	msg, err := backendMessageForTag(tag, body)
	if err != nil {
		return nil, err
	}
	if err := msg.Decode(body); err != nil {
		return nil, err
	}
	return msg, nil
}

func backendMessageForTag(tag byte, body []byte) (BackendMessage, error) {
	switch tag {
	case 'R':
		return authenticationMessageForBody(body)
	case 'K':
		return &BackendKeyData{}, nil
	case 'S':
		return &ParameterStatus{}, nil
	case 'Z':
		return &ReadyForQuery{}, nil
	case '1':
		return &ParseComplete{}, nil
	case '2':
		return &BindComplete{}, nil
	case '3':
		return &CloseComplete{}, nil
	case 'n':
		return &NoData{}, nil
	case 'I':
		return &EmptyQueryResponse{}, nil
	case 's':
		return &PortalSuspended{}, nil
	case 't':
		return &ParameterDescription{}, nil
	case 'T':
		return &RowDescription{}, nil
	case 'D':
		return &DataRow{}, nil
	case 'C':
		return &CommandComplete{}, nil
	case 'E':
		return &ErrorResponse{}, nil
	case 'N':
		return &NoticeResponse{}, nil
	case 'A':
		return &NotificationResponse{}, nil
	case 'G':
		return &CopyInResponse{}, nil
	case 'H':
		return &CopyOutResponse{}, nil
	case 'd':
		return &CopyData{}, nil
	case 'c':
		return &CopyDone{}, nil
	default:
		return nil, malformed(tag, "unknown backend message type")
	}
}

func authenticationMessageForBody(body []byte) (BackendMessage, error) {
	if len(body) < 4 {
		return nil, malformed('R', "short authentication payload")
	}
	switch code := binary.BigEndian.Uint32(body); code {
	case AuthTypeOk:
		return &AuthenticationOk{}, nil
	case AuthTypeCleartextPassword:
		return &AuthenticationCleartextPassword{}, nil
	case AuthTypeMD5Password:
		return &AuthenticationMD5Password{}, nil
	case AuthTypeSASL:
		return &AuthenticationSASL{}, nil
	case AuthTypeSASLContinue:
		return &AuthenticationSASLContinue{}, nil
	case AuthTypeSASLFinal:
		return &AuthenticationSASLFinal{}, nil
	default:
		return nil, malformed('R', "unknown authentication type %d", code)
	}
}
