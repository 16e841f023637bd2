package proto

// Query runs one or more statements through the simple query protocol.
type Query struct {
	String string
}

func (*Query) Frontend() {}

func (dst *Query) Decode(src []byte) error {
	r := msgReader{buf: src}
	dst.String = r.cstring()
	return r.done('Q')
}

func (src *Query) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 'Q')
	dst = appendCString(dst, src.String)
	return finishMessage(dst, sp)
}

// Parse creates a named (or unnamed) prepared statement.
type Parse struct {
	Name          string
	Query         string
	ParameterOIDs []uint32
}

func (*Parse) Frontend() {}

func (dst *Parse) Decode(src []byte) error {
	r := msgReader{buf: src}
	dst.Name = r.cstring()
	dst.Query = r.cstring()
	n := int(r.int16())
	dst.ParameterOIDs = nil
	for i := 0; i < n && r.err == nil; i++ {
		dst.ParameterOIDs = append(dst.ParameterOIDs, r.uint32())
	}
	return r.done('P')
}

func (src *Parse) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 'P')
	dst = appendCString(dst, src.Name)
	dst = appendCString(dst, src.Query)
	dst = appendInt16(dst, int16(len(src.ParameterOIDs)))
	for _, oid := range src.ParameterOIDs {
		dst = appendUint32(dst, oid)
	}
	return finishMessage(dst, sp)
}

// Bind creates a portal from a prepared statement and concrete parameter
// values. Parameter values are opaque; a nil element is a NULL.
type Bind struct {
	DestinationPortal    string
	PreparedStatement    string
	ParameterFormatCodes []int16
	Parameters           [][]byte
	ResultFormatCodes    []int16
}

func (*Bind) Frontend() {}

func (dst *Bind) Decode(src []byte) error {
	r := msgReader{buf: src}
	dst.DestinationPortal = r.cstring()
	dst.PreparedStatement = r.cstring()

	n := int(r.int16())
	dst.ParameterFormatCodes = nil
	for i := 0; i < n && r.err == nil; i++ {
		dst.ParameterFormatCodes = append(dst.ParameterFormatCodes, r.int16())
	}

	n = int(r.int16())
	dst.Parameters = nil
	for i := 0; i < n && r.err == nil; i++ {
		vlen := r.int32()
		if vlen == -1 {
			dst.Parameters = append(dst.Parameters, nil)
		} else {
			dst.Parameters = append(dst.Parameters, r.bytes(int(vlen)))
		}
	}

	n = int(r.int16())
	dst.ResultFormatCodes = nil
	for i := 0; i < n && r.err == nil; i++ {
		dst.ResultFormatCodes = append(dst.ResultFormatCodes, r.int16())
	}
	return r.done('B')
}

func (src *Bind) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 'B')
	dst = appendCString(dst, src.DestinationPortal)
	dst = appendCString(dst, src.PreparedStatement)

	dst = appendInt16(dst, int16(len(src.ParameterFormatCodes)))
	for _, fc := range src.ParameterFormatCodes {
		dst = appendInt16(dst, fc)
	}

	dst = appendInt16(dst, int16(len(src.Parameters)))
	for _, p := range src.Parameters {
		if p == nil {
			dst = appendInt32(dst, -1)
			continue
		}
		dst = appendInt32(dst, int32(len(p)))
		dst = append(dst, p...)
	}

	dst = appendInt16(dst, int16(len(src.ResultFormatCodes)))
	for _, fc := range src.ResultFormatCodes {
		dst = appendInt16(dst, fc)
	}
	return finishMessage(dst, sp)
}

// Describe requests metadata for a prepared statement ('S') or portal
// ('P').
type Describe struct {
	ObjectType byte
	Name       string
}

func (*Describe) Frontend() {}

func (dst *Describe) Decode(src []byte) error {
	r := msgReader{buf: src}
	dst.ObjectType = r.byte()
	dst.Name = r.cstring()
	if err := r.done('D'); err != nil {
		return err
	}
	if dst.ObjectType != 'S' && dst.ObjectType != 'P' {
		return malformed('D', "invalid object type %q", dst.ObjectType)
	}
	return nil
}

func (src *Describe) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 'D')
	dst = append(dst, src.ObjectType)
	dst = appendCString(dst, src.Name)
	return finishMessage(dst, sp)
}

// Execute runs a portal. MaxRows of zero fetches all rows.
type Execute struct {
	Portal  string
	MaxRows uint32
}

func (*Execute) Frontend() {}

func (dst *Execute) Decode(src []byte) error {
	r := msgReader{buf: src}
	dst.Portal = r.cstring()
	dst.MaxRows = r.uint32()
	return r.done('E')
}

func (src *Execute) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 'E')
	dst = appendCString(dst, src.Portal)
	dst = appendUint32(dst, src.MaxRows)
	return finishMessage(dst, sp)
}

// Close destroys a prepared statement ('S') or portal ('P').
type Close struct {
	ObjectType byte
	Name       string
}

func (*Close) Frontend() {}

func (dst *Close) Decode(src []byte) error {
	r := msgReader{buf: src}
	dst.ObjectType = r.byte()
	dst.Name = r.cstring()
	if err := r.done('C'); err != nil {
		return err
	}
	if dst.ObjectType != 'S' && dst.ObjectType != 'P' {
		return malformed('C', "invalid object type %q", dst.ObjectType)
	}
	return nil
}

func (src *Close) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 'C')
	dst = append(dst, src.ObjectType)
	dst = appendCString(dst, src.Name)
	return finishMessage(dst, sp)
}

// Flush asks the backend to deliver any pending responses without
// closing the current implicit transaction.
type Flush struct{}

func (*Flush) Frontend() {}

func (dst *Flush) Decode(src []byte) error {
	if len(src) != 0 {
		return malformed('H', "unexpected payload")
	}
	return nil
}

func (src *Flush) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 'H')
	return finishMessage(dst, sp)
}

// Sync closes the current pipelined batch; the backend answers with
// ReadyForQuery once everything before it has been processed or skipped.
type Sync struct{}

func (*Sync) Frontend() {}

func (dst *Sync) Decode(src []byte) error {
	if len(src) != 0 {
		return malformed('S', "unexpected payload")
	}
	return nil
}

func (src *Sync) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 'S')
	return finishMessage(dst, sp)
}

// Terminate announces an orderly connection shutdown.
type Terminate struct{}

func (*Terminate) Frontend() {}

func (dst *Terminate) Decode(src []byte) error {
	if len(src) != 0 {
		return malformed('X', "unexpected payload")
	}
	return nil
}

func (src *Terminate) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 'X')
	return finishMessage(dst, sp)
}
