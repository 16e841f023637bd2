package proto

import "encoding/binary"

// Authentication request codes carried in the 'R' message.
const (
	AuthTypeOk                = 0
	AuthTypeCleartextPassword = 3
	AuthTypeMD5Password       = 5
	AuthTypeSASL              = 10
	AuthTypeSASLContinue      = 11
	AuthTypeSASLFinal         = 12
)

// AuthenticationResponseMessage is implemented by every backend 'R'
// message so the startup loop can dispatch on the family.
type AuthenticationResponseMessage interface {
	BackendMessage
	AuthenticationResponse()
}

type AuthenticationOk struct{}

func (*AuthenticationOk) Backend()                {}
func (*AuthenticationOk) AuthenticationResponse() {}

func (dst *AuthenticationOk) Decode(src []byte) error {
	if len(src) != 4 || binary.BigEndian.Uint32(src) != AuthTypeOk {
		return malformed('R', "bad authentication ok")
	}
	return nil
}

func (src *AuthenticationOk) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 'R')
	dst = appendInt32(dst, AuthTypeOk)
	return finishMessage(dst, sp)
}

type AuthenticationCleartextPassword struct{}

func (*AuthenticationCleartextPassword) Backend()                {}
func (*AuthenticationCleartextPassword) AuthenticationResponse() {}

func (dst *AuthenticationCleartextPassword) Decode(src []byte) error {
	if len(src) != 4 || binary.BigEndian.Uint32(src) != AuthTypeCleartextPassword {
		return malformed('R', "bad cleartext password request")
	}
	return nil
}

func (src *AuthenticationCleartextPassword) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 'R')
	dst = appendInt32(dst, AuthTypeCleartextPassword)
	return finishMessage(dst, sp)
}

type AuthenticationMD5Password struct {
	Salt [4]byte
}

func (*AuthenticationMD5Password) Backend()                {}
func (*AuthenticationMD5Password) AuthenticationResponse() {}

func (dst *AuthenticationMD5Password) Decode(src []byte) error {
	if len(src) != 8 || binary.BigEndian.Uint32(src) != AuthTypeMD5Password {
		return malformed('R', "bad md5 password request")
	}
	copy(dst.Salt[:], src[4:8])
	return nil
}

func (src *AuthenticationMD5Password) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 'R')
	dst = appendInt32(dst, AuthTypeMD5Password)
	dst = append(dst, src.Salt[:]...)
	return finishMessage(dst, sp)
}

type AuthenticationSASL struct {
	AuthMechanisms []string
}

func (*AuthenticationSASL) Backend()                {}
func (*AuthenticationSASL) AuthenticationResponse() {}

func (dst *AuthenticationSASL) Decode(src []byte) error {
	r := msgReader{buf: src}
	if code := r.uint32(); r.err == nil && code != AuthTypeSASL {
		return malformed('R', "bad sasl request")
	}
	dst.AuthMechanisms = nil
	for r.err == nil && r.pos < len(src) {
		mech := r.cstring()
		if mech == "" {
			break
		}
		dst.AuthMechanisms = append(dst.AuthMechanisms, mech)
	}
	return r.done('R')
}

func (src *AuthenticationSASL) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 'R')
	dst = appendInt32(dst, AuthTypeSASL)
	for _, m := range src.AuthMechanisms {
		dst = appendCString(dst, m)
	}
	dst = append(dst, 0)
	return finishMessage(dst, sp)
}

type AuthenticationSASLContinue struct {
	Data []byte
}

func (*AuthenticationSASLContinue) Backend()                {}
func (*AuthenticationSASLContinue) AuthenticationResponse() {}

func (dst *AuthenticationSASLContinue) Decode(src []byte) error {
	r := msgReader{buf: src}
	if code := r.uint32(); r.err == nil && code != AuthTypeSASLContinue {
		return malformed('R', "bad sasl continue")
	}
	dst.Data = r.remainder()
	return r.done('R')
}

func (src *AuthenticationSASLContinue) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 'R')
	dst = appendInt32(dst, AuthTypeSASLContinue)
	dst = append(dst, src.Data...)
	return finishMessage(dst, sp)
}

type AuthenticationSASLFinal struct {
	Data []byte
}

func (*AuthenticationSASLFinal) Backend()                {}
func (*AuthenticationSASLFinal) AuthenticationResponse() {}

func (dst *AuthenticationSASLFinal) Decode(src []byte) error {
	r := msgReader{buf: src}
	if code := r.uint32(); r.err == nil && code != AuthTypeSASLFinal {
		return malformed('R', "bad sasl final")
	}
	dst.Data = r.remainder()
	return r.done('R')
}

func (src *AuthenticationSASLFinal) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 'R')
	dst = appendInt32(dst, AuthTypeSASLFinal)
	dst = append(dst, src.Data...)
	return finishMessage(dst, sp)
}
