package pgtype

// Well-known pg_type oids for the types with registered default codecs.
const (
	BoolOID        = uint32(16)
	ByteaOID       = uint32(17)
	NameOID        = uint32(19)
	Int8OID        = uint32(20)
	Int2OID        = uint32(21)
	Int4OID        = uint32(23)
	TextOID        = uint32(25)
	OIDOID         = uint32(26)
	Float4OID      = uint32(700)
	Float8OID      = uint32(701)
	UnknownOID     = uint32(705)
	BPCharOID      = uint32(1042)
	VarcharOID     = uint32(1043)
	DateOID        = uint32(1082)
	TimestampOID   = uint32(1114)
	TimestamptzOID = uint32(1184)
	UUIDOID        = uint32(2950)
)
