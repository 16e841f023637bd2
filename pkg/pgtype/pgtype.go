// Package pgtype converts between native Go values and PostgreSQL wire
// representations, keyed by type oid.
//
// A Map holds one Codec per oid. The default map is built once at
// process start; each connection takes a cheap clone of it so that oids
// discovered through the catalog can be registered connection-locally
// without touching the shared defaults. Extension happens by calling
// RegisterType before the map is first used for queries.
package pgtype

import (
	"fmt"
	"sync"

	"github.com/pg-sharding/pglink/pkg/pgerror"
)

// Format codes. These mirror the wire protocol values.
const (
	TextFormat   = int16(0)
	BinaryFormat = int16(1)
)

// Codec encodes and decodes one PostgreSQL type.
type Codec interface {
	// FormatSupported reports whether the codec handles the given wire
	// format in both directions.
	FormatSupported(format int16) bool

	// PreferredFormat is the format the codec wants when the peer
	// supports both. Binary wherever the type has a binary send/recv
	// pair: it is denser and avoids locale-dependent text parsing.
	PreferredFormat() int16

	// Encode appends the wire representation of v to buf.
	Encode(v any, format int16, buf []byte) ([]byte, error)

	// Decode converts a wire value into a native value.
	Decode(src []byte, format int16) (any, error)
}

// Type binds an oid and name to a codec.
type Type struct {
	OID   uint32
	Name  string
	Codec Codec
}

// Map is an oid-keyed codec registry.
type Map struct {
	oidToType  map[uint32]*Type
	nameToType map[string]*Type
}

// NewMap returns a map with the default codecs registered.
func NewMap() *Map {
	m := &Map{
		oidToType:  map[uint32]*Type{},
		nameToType: map[string]*Type{},
	}

	m.RegisterType(&Type{OID: BoolOID, Name: "bool", Codec: BoolCodec{}})
	m.RegisterType(&Type{OID: ByteaOID, Name: "bytea", Codec: ByteaCodec{}})
	m.RegisterType(&Type{OID: NameOID, Name: "name", Codec: TextCodec{}})
	m.RegisterType(&Type{OID: Int8OID, Name: "int8", Codec: IntCodec{Size: 8}})
	m.RegisterType(&Type{OID: Int2OID, Name: "int2", Codec: IntCodec{Size: 2}})
	m.RegisterType(&Type{OID: Int4OID, Name: "int4", Codec: IntCodec{Size: 4}})
	m.RegisterType(&Type{OID: TextOID, Name: "text", Codec: TextCodec{}})
	m.RegisterType(&Type{OID: OIDOID, Name: "oid", Codec: Uint32Codec{}})
	m.RegisterType(&Type{OID: Float4OID, Name: "float4", Codec: Float4Codec{}})
	m.RegisterType(&Type{OID: Float8OID, Name: "float8", Codec: Float8Codec{}})
	m.RegisterType(&Type{OID: UnknownOID, Name: "unknown", Codec: TextFormatOnlyCodec{TextCodec{}}})
	m.RegisterType(&Type{OID: BPCharOID, Name: "bpchar", Codec: TextCodec{}})
	m.RegisterType(&Type{OID: VarcharOID, Name: "varchar", Codec: TextCodec{}})
	m.RegisterType(&Type{OID: DateOID, Name: "date", Codec: DateCodec{}})
	m.RegisterType(&Type{OID: TimestampOID, Name: "timestamp", Codec: TimestampCodec{}})
	m.RegisterType(&Type{OID: TimestamptzOID, Name: "timestamptz", Codec: TimestamptzCodec{}})
	m.RegisterType(&Type{OID: UUIDOID, Name: "uuid", Codec: UUIDCodec{}})

	return m
}

var (
	defaultMap     *Map
	defaultMapOnce sync.Once
)

// DefaultMap is the process-wide registry connections clone from.
// Register extension codecs on it before opening connections.
func DefaultMap() *Map {
	defaultMapOnce.Do(func() {
		defaultMap = NewMap()
	})
	return defaultMap
}

// RegisterType makes a codec available under its oid and name. Later
// registrations replace earlier ones.
func (m *Map) RegisterType(t *Type) {
	m.oidToType[t.OID] = t
	m.nameToType[t.Name] = t
}

func (m *Map) TypeForOID(oid uint32) (*Type, bool) {
	t, ok := m.oidToType[oid]
	return t, ok
}

func (m *Map) TypeForName(name string) (*Type, bool) {
	t, ok := m.nameToType[name]
	return t, ok
}

// Clone returns a connection-local copy sharing the codec values.
func (m *Map) Clone() *Map {
	c := &Map{
		oidToType:  make(map[uint32]*Type, len(m.oidToType)),
		nameToType: make(map[string]*Type, len(m.nameToType)),
	}
	for oid, t := range m.oidToType {
		c.oidToType[oid] = t
	}
	for name, t := range m.nameToType {
		c.nameToType[name] = t
	}
	return c
}

// PreferredFormat picks the format to request for oid: the codec's
// preference when registered, text otherwise.
func (m *Map) PreferredFormat(oid uint32) int16 {
	if t, ok := m.oidToType[oid]; ok {
		return t.Codec.PreferredFormat()
	}
	return TextFormat
}

// Encode converts v to the wire representation for oid. A nil v encodes
// as SQL NULL (nil slice).
func (m *Map) Encode(oid uint32, format int16, v any, buf []byte) ([]byte, error) {
	if v == nil {
		return nil, nil
	}

	t, ok := m.oidToType[oid]
	if !ok {
		// Unregistered oid: pass strings through as text, anything else
		// is an unsupported conversion.
		switch v := v.(type) {
		case string:
			return append(buf, v...), nil
		case []byte:
			return append(buf, v...), nil
		default:
			return nil, &pgerror.ConversionError{
				OID:    oid,
				GoType: fmt.Sprintf("%T", v),
				Err:    fmt.Errorf("no codec registered for oid"),
			}
		}
	}

	out, err := t.Codec.Encode(v, format, buf)
	if err != nil {
		return nil, &pgerror.ConversionError{OID: oid, GoType: fmt.Sprintf("%T", v), Err: err}
	}
	return out, nil
}

// Decode converts a wire value to a native value. A nil src decodes as
// nil. Failure never truncates or coerces: it reports a ConversionError
// naming the oid, the requested native type and the byte length.
func (m *Map) Decode(oid uint32, format int16, src []byte) (any, error) {
	if src == nil {
		return nil, nil
	}

	t, ok := m.oidToType[oid]
	if !ok {
		// Unregistered oid: surface the raw value without guessing.
		if format == TextFormat {
			return string(src), nil
		}
		out := make([]byte, len(src))
		copy(out, src)
		return out, nil
	}

	v, err := t.Codec.Decode(src, format)
	if err != nil {
		return nil, &pgerror.ConversionError{
			OID:    oid,
			GoType: t.Name,
			Len:    len(src),
			Err:    err,
		}
	}
	return v, nil
}

// TextFormatOnlyCodec restricts a codec to the text format regardless of
// what the wrapped codec supports. Catalog-discovered types without a
// known binary representation are registered through it.
type TextFormatOnlyCodec struct {
	Codec
}

func (c TextFormatOnlyCodec) FormatSupported(format int16) bool { return format == TextFormat }
func (c TextFormatOnlyCodec) PreferredFormat() int16            { return TextFormat }
