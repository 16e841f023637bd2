package proto

// PasswordMessage answers cleartext and md5 authentication requests.
type PasswordMessage struct {
	Password string
}

func (*PasswordMessage) Frontend() {}

func (dst *PasswordMessage) Decode(src []byte) error {
	r := msgReader{buf: src}
	dst.Password = r.cstring()
	return r.done('p')
}

func (src *PasswordMessage) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 'p')
	dst = appendCString(dst, src.Password)
	return finishMessage(dst, sp)
}

// SASLInitialResponse carries the client-first SCRAM message along with
// the selected mechanism name.
type SASLInitialResponse struct {
	AuthMechanism string
	Data          []byte
}

func (*SASLInitialResponse) Frontend() {}

func (dst *SASLInitialResponse) Decode(src []byte) error {
	r := msgReader{buf: src}
	dst.AuthMechanism = r.cstring()
	n := r.int32()
	if n == -1 {
		dst.Data = nil
	} else {
		dst.Data = r.bytes(int(n))
	}
	return r.done('p')
}

func (src *SASLInitialResponse) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 'p')
	dst = appendCString(dst, src.AuthMechanism)
	if src.Data == nil {
		dst = appendInt32(dst, -1)
	} else {
		dst = appendInt32(dst, int32(len(src.Data)))
		dst = append(dst, src.Data...)
	}
	return finishMessage(dst, sp)
}

// SASLResponse carries the client-final SCRAM message.
type SASLResponse struct {
	Data []byte
}

func (*SASLResponse) Frontend() {}

func (dst *SASLResponse) Decode(src []byte) error {
	r := msgReader{buf: src}
	dst.Data = r.remainder()
	return r.done('p')
}

func (src *SASLResponse) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 'p')
	dst = append(dst, src.Data...)
	return finishMessage(dst, sp)
}
