package proto

import (
	"bytes"
	"encoding/binary"
)

func appendInt16(buf []byte, n int16) []byte {
	return binary.BigEndian.AppendUint16(buf, uint16(n))
}

func appendInt32(buf []byte, n int32) []byte {
	return binary.BigEndian.AppendUint32(buf, uint32(n))
}

func appendUint32(buf []byte, n uint32) []byte {
	return binary.BigEndian.AppendUint32(buf, n)
}

func appendCString(buf []byte, s string) []byte {
	buf = append(buf, s...)
	return append(buf, 0)
}

// msgReader is a cursor over one message payload. The first short read
// poisons it; decoders check err once at the end so field parsing stays
// linear.
type msgReader struct {
	buf []byte
	pos int
	err error
}

func (r *msgReader) fail(reason string) {
	if r.err == nil {
		r.err = &MalformedFrameError{Reason: reason}
	}
}

func (r *msgReader) byte() byte {
	if r.err != nil || r.pos+1 > len(r.buf) {
		r.fail("short payload")
		return 0
	}
	b := r.buf[r.pos]
	r.pos++
	return b
}

func (r *msgReader) int16() int16 {
	if r.err != nil || r.pos+2 > len(r.buf) {
		r.fail("short payload")
		return 0
	}
	n := int16(binary.BigEndian.Uint16(r.buf[r.pos:]))
	r.pos += 2
	return n
}

func (r *msgReader) int32() int32 {
	if r.err != nil || r.pos+4 > len(r.buf) {
		r.fail("short payload")
		return 0
	}
	n := int32(binary.BigEndian.Uint32(r.buf[r.pos:]))
	r.pos += 4
	return n
}

func (r *msgReader) uint32() uint32 {
	return uint32(r.int32())
}

func (r *msgReader) cstring() string {
	if r.err != nil {
		return ""
	}
	idx := bytes.IndexByte(r.buf[r.pos:], 0)
	if idx < 0 {
		r.fail("unterminated string")
		return ""
	}
	s := string(r.buf[r.pos : r.pos+idx])
	r.pos += idx + 1
	return s
}

// bytes returns a copy of the next n payload bytes, so decoded messages
// do not alias the read buffer.
func (r *msgReader) bytes(n int) []byte {
	if n < 0 || r.err != nil || r.pos+n > len(r.buf) {
		r.fail("short payload")
		return nil
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+n])
	r.pos += n
	return out
}

// remainder returns a copy of all unread payload bytes.
func (r *msgReader) remainder() []byte {
	if r.err != nil {
		return nil
	}
	out := make([]byte, len(r.buf)-r.pos)
	copy(out, r.buf[r.pos:])
	r.pos = len(r.buf)
	return out
}

func (r *msgReader) done(tag byte) error {
	if r.err != nil {
		if mf, ok := r.err.(*MalformedFrameError); ok {
			mf.Tag = tag
		}
		return r.err
	}
	return nil
}
