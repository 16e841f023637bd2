package proto

// The zero-payload backend acknowledgements of the extended protocol.

type ParseComplete struct{}

func (*ParseComplete) Backend() {}

func (dst *ParseComplete) Decode(src []byte) error {
	if len(src) != 0 {
		return malformed('1', "unexpected payload")
	}
	return nil
}

func (src *ParseComplete) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, '1')
	return finishMessage(dst, sp)
}

type BindComplete struct{}

func (*BindComplete) Backend() {}

func (dst *BindComplete) Decode(src []byte) error {
	if len(src) != 0 {
		return malformed('2', "unexpected payload")
	}
	return nil
}

func (src *BindComplete) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, '2')
	return finishMessage(dst, sp)
}

type CloseComplete struct{}

func (*CloseComplete) Backend() {}

func (dst *CloseComplete) Decode(src []byte) error {
	if len(src) != 0 {
		return malformed('3', "unexpected payload")
	}
	return nil
}

func (src *CloseComplete) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, '3')
	return finishMessage(dst, sp)
}

// NoData answers a Describe of a statement or portal that returns no
// rows.
type NoData struct{}

func (*NoData) Backend() {}

func (dst *NoData) Decode(src []byte) error {
	if len(src) != 0 {
		return malformed('n', "unexpected payload")
	}
	return nil
}

func (src *NoData) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 'n')
	return finishMessage(dst, sp)
}

type EmptyQueryResponse struct{}

func (*EmptyQueryResponse) Backend() {}

func (dst *EmptyQueryResponse) Decode(src []byte) error {
	if len(src) != 0 {
		return malformed('I', "unexpected payload")
	}
	return nil
}

func (src *EmptyQueryResponse) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 'I')
	return finishMessage(dst, sp)
}

// PortalSuspended reports that Execute hit its MaxRows limit with rows
// remaining in the portal.
type PortalSuspended struct{}

func (*PortalSuspended) Backend() {}

func (dst *PortalSuspended) Decode(src []byte) error {
	if len(src) != 0 {
		return malformed('s', "unexpected payload")
	}
	return nil
}

func (src *PortalSuspended) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 's')
	return finishMessage(dst, sp)
}
