package proto

// NotificationResponse is an out-of-band LISTEN/NOTIFY push. It can
// arrive at any point of the response stream.
type NotificationResponse struct {
	PID     uint32
	Channel string
	Payload string
}

func (*NotificationResponse) Backend() {}

func (dst *NotificationResponse) Decode(src []byte) error {
	r := msgReader{buf: src}
	dst.PID = r.uint32()
	dst.Channel = r.cstring()
	dst.Payload = r.cstring()
	return r.done('A')
}

func (src *NotificationResponse) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 'A')
	dst = appendUint32(dst, src.PID)
	dst = appendCString(dst, src.Channel)
	dst = appendCString(dst, src.Payload)
	return finishMessage(dst, sp)
}

// ParameterStatus reports a server parameter value, at startup and on
// any later change.
type ParameterStatus struct {
	Name  string
	Value string
}

func (*ParameterStatus) Backend() {}

func (dst *ParameterStatus) Decode(src []byte) error {
	r := msgReader{buf: src}
	dst.Name = r.cstring()
	dst.Value = r.cstring()
	return r.done('S')
}

func (src *ParameterStatus) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 'S')
	dst = appendCString(dst, src.Name)
	dst = appendCString(dst, src.Value)
	return finishMessage(dst, sp)
}

// BackendKeyData carries the cancellation credentials for this session.
type BackendKeyData struct {
	ProcessID uint32
	SecretKey uint32
}

func (*BackendKeyData) Backend() {}

func (dst *BackendKeyData) Decode(src []byte) error {
	r := msgReader{buf: src}
	dst.ProcessID = r.uint32()
	dst.SecretKey = r.uint32()
	return r.done('K')
}

func (src *BackendKeyData) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 'K')
	dst = appendUint32(dst, src.ProcessID)
	dst = appendUint32(dst, src.SecretKey)
	return finishMessage(dst, sp)
}

// ReadyForQuery closes a request cycle; TxStatus is 'I', 'T' or 'E'.
type ReadyForQuery struct {
	TxStatus byte
}

func (*ReadyForQuery) Backend() {}

func (dst *ReadyForQuery) Decode(src []byte) error {
	r := msgReader{buf: src}
	dst.TxStatus = r.byte()
	return r.done('Z')
}

func (src *ReadyForQuery) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 'Z')
	dst = append(dst, src.TxStatus)
	return finishMessage(dst, sp)
}
