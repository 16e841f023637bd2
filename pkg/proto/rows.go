package proto

// FieldDescription describes one column of a result set: its wire type
// (oid) and the format the values will arrive in.
type FieldDescription struct {
	Name                 string
	TableOID             uint32
	TableAttributeNumber int16
	DataTypeOID          uint32
	DataTypeSize         int16
	TypeModifier         int32
	Format               int16
}

// RowDescription precedes the DataRow stream of a result set.
type RowDescription struct {
	Fields []FieldDescription
}

func (*RowDescription) Backend() {}

func (dst *RowDescription) Decode(src []byte) error {
	r := msgReader{buf: src}
	n := int(r.int16())
	dst.Fields = make([]FieldDescription, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		dst.Fields = append(dst.Fields, FieldDescription{
			Name:                 r.cstring(),
			TableOID:             r.uint32(),
			TableAttributeNumber: r.int16(),
			DataTypeOID:          r.uint32(),
			DataTypeSize:         r.int16(),
			TypeModifier:         r.int32(),
			Format:               r.int16(),
		})
	}
	return r.done('T')
}

func (src *RowDescription) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 'T')
	dst = appendInt16(dst, int16(len(src.Fields)))
	for _, f := range src.Fields {
		dst = appendCString(dst, f.Name)
		dst = appendUint32(dst, f.TableOID)
		dst = appendInt16(dst, f.TableAttributeNumber)
		dst = appendUint32(dst, f.DataTypeOID)
		dst = appendInt16(dst, f.DataTypeSize)
		dst = appendInt32(dst, f.TypeModifier)
		dst = appendInt16(dst, f.Format)
	}
	return finishMessage(dst, sp)
}

// ParameterDescription answers a statement Describe with the parameter
// oids the backend inferred.
type ParameterDescription struct {
	ParameterOIDs []uint32
}

func (*ParameterDescription) Backend() {}

func (dst *ParameterDescription) Decode(src []byte) error {
	r := msgReader{buf: src}
	n := int(r.int16())
	dst.ParameterOIDs = make([]uint32, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		dst.ParameterOIDs = append(dst.ParameterOIDs, r.uint32())
	}
	return r.done('t')
}

func (src *ParameterDescription) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 't')
	dst = appendInt16(dst, int16(len(src.ParameterOIDs)))
	for _, oid := range src.ParameterOIDs {
		dst = appendUint32(dst, oid)
	}
	return finishMessage(dst, sp)
}

// DataRow carries one row; a nil value is a NULL. Values are copied out
// of the read buffer during decode and owned by the message.
type DataRow struct {
	Values [][]byte
}

func (*DataRow) Backend() {}

func (dst *DataRow) Decode(src []byte) error {
	r := msgReader{buf: src}
	n := int(r.int16())
	dst.Values = make([][]byte, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		vlen := r.int32()
		if vlen == -1 {
			dst.Values = append(dst.Values, nil)
		} else {
			dst.Values = append(dst.Values, r.bytes(int(vlen)))
		}
	}
	return r.done('D')
}

func (src *DataRow) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 'D')
	dst = appendInt16(dst, int16(len(src.Values)))
	for _, v := range src.Values {
		if v == nil {
			dst = appendInt32(dst, -1)
			continue
		}
		dst = appendInt32(dst, int32(len(v)))
		dst = append(dst, v...)
	}
	return finishMessage(dst, sp)
}

// CommandComplete closes one statement's result with its command tag,
// e.g. "SELECT 1" or "INSERT 0 3".
type CommandComplete struct {
	CommandTag string
}

func (*CommandComplete) Backend() {}

func (dst *CommandComplete) Decode(src []byte) error {
	r := msgReader{buf: src}
	dst.CommandTag = r.cstring()
	return r.done('C')
}

func (src *CommandComplete) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 'C')
	dst = appendCString(dst, src.CommandTag)
	return finishMessage(dst, sp)
}
