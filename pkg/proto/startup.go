package proto

import "encoding/binary"

// StartupMessage opens the protocol conversation. It is the only
// frontend message without a tag byte.
type StartupMessage struct {
	ProtocolVersion uint32
	Parameters      map[string]string
}

func (*StartupMessage) Frontend() {}

func (dst *StartupMessage) Decode(src []byte) error {
	r := msgReader{buf: src}
	dst.ProtocolVersion = r.uint32()
	if dst.ProtocolVersion != ProtocolVersionNumber {
		return malformed(0, "unsupported protocol version %d", dst.ProtocolVersion)
	}

	dst.Parameters = map[string]string{}
	for r.err == nil && r.pos < len(src) {
		key := r.cstring()
		if key == "" {
			break
		}
		dst.Parameters[key] = r.cstring()
	}
	return r.done(0)
}

func (src *StartupMessage) Encode(dst []byte) ([]byte, error) {
	sp := len(dst)
	dst = append(dst, 0, 0, 0, 0)

	dst = appendUint32(dst, src.ProtocolVersion)
	for k, v := range src.Parameters {
		dst = appendCString(dst, k)
		dst = appendCString(dst, v)
	}
	dst = append(dst, 0)

	n := len(dst) - sp
	if n > maxMessageBodyLen {
		return nil, malformed(0, "startup message too large (%d bytes)", n)
	}
	binary.BigEndian.PutUint32(dst[sp:], uint32(n))
	return dst, nil
}

// SSLRequest asks the server for a TLS negotiation before any startup
// bytes are exchanged. The server answers with a single 'S' or 'N' byte
// outside normal framing.
type SSLRequest struct{}

func (*SSLRequest) Frontend() {}

func (dst *SSLRequest) Decode(src []byte) error {
	if len(src) != 4 || binary.BigEndian.Uint32(src) != sslRequestCode {
		return malformed(0, "bad ssl request")
	}
	return nil
}

func (src *SSLRequest) Encode(dst []byte) ([]byte, error) {
	dst = appendInt32(dst, 8)
	dst = appendInt32(dst, sslRequestCode)
	return dst, nil
}

// CancelRequest is sent on a dedicated short-lived connection carrying
// the target connection's backend pid and secret key.
type CancelRequest struct {
	ProcessID uint32
	SecretKey uint32
}

func (*CancelRequest) Frontend() {}

func (dst *CancelRequest) Decode(src []byte) error {
	if len(src) != 12 || binary.BigEndian.Uint32(src) != cancelRequestCode {
		return malformed(0, "bad cancel request")
	}
	dst.ProcessID = binary.BigEndian.Uint32(src[4:])
	dst.SecretKey = binary.BigEndian.Uint32(src[8:])
	return nil
}

func (src *CancelRequest) Encode(dst []byte) ([]byte, error) {
	dst = appendInt32(dst, 16)
	dst = appendInt32(dst, cancelRequestCode)
	dst = appendUint32(dst, src.ProcessID)
	dst = appendUint32(dst, src.SecretKey)
	return dst, nil
}
