package pgtype

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type BoolCodec struct{}

func (BoolCodec) FormatSupported(format int16) bool {
	return format == TextFormat || format == BinaryFormat
}

func (BoolCodec) PreferredFormat() int16 { return BinaryFormat }

func (BoolCodec) Encode(v any, format int16, buf []byte) ([]byte, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("expected bool, got %T", v)
	}
	if format == BinaryFormat {
		if b {
			return append(buf, 1), nil
		}
		return append(buf, 0), nil
	}
	if b {
		return append(buf, 't'), nil
	}
	return append(buf, 'f'), nil
}

func (BoolCodec) Decode(src []byte, format int16) (any, error) {
	if format == BinaryFormat {
		if len(src) != 1 {
			return nil, fmt.Errorf("invalid binary bool length %d", len(src))
		}
		return src[0] != 0, nil
	}
	switch string(src) {
	case "t", "true", "y", "yes", "on", "1":
		return true, nil
	case "f", "false", "n", "no", "off", "0":
		return false, nil
	}
	return nil, fmt.Errorf("invalid bool text %q", src)
}

// IntCodec handles int2, int4 and int8 depending on Size (bytes).
type IntCodec struct {
	Size int
}

func (IntCodec) FormatSupported(format int16) bool {
	return format == TextFormat || format == BinaryFormat
}

func (IntCodec) PreferredFormat() int16 { return BinaryFormat }

func (c IntCodec) Encode(v any, format int16, buf []byte) ([]byte, error) {
	n, err := toInt64(v)
	if err != nil {
		return nil, err
	}

	bits := c.Size * 8
	if bits < 64 && (n < -(int64(1)<<(bits-1)) || n > (int64(1)<<(bits-1))-1) {
		return nil, fmt.Errorf("%d out of range for int%d", n, c.Size)
	}

	if format == TextFormat {
		return strconv.AppendInt(buf, n, 10), nil
	}

	switch c.Size {
	case 2:
		return binary.BigEndian.AppendUint16(buf, uint16(int16(n))), nil
	case 4:
		return binary.BigEndian.AppendUint32(buf, uint32(int32(n))), nil
	default:
		return binary.BigEndian.AppendUint64(buf, uint64(n)), nil
	}
}

func (c IntCodec) Decode(src []byte, format int16) (any, error) {
	if format == TextFormat {
		n, err := strconv.ParseInt(string(src), 10, c.Size*8)
		if err != nil {
			return nil, err
		}
		return c.narrow(n), nil
	}

	if len(src) != c.Size {
		return nil, fmt.Errorf("invalid binary int%d length %d", c.Size, len(src))
	}
	switch c.Size {
	case 2:
		return int16(binary.BigEndian.Uint16(src)), nil
	case 4:
		return int32(binary.BigEndian.Uint32(src)), nil
	default:
		return int64(binary.BigEndian.Uint64(src)), nil
	}
}

func (c IntCodec) narrow(n int64) any {
	switch c.Size {
	case 2:
		return int16(n)
	case 4:
		return int32(n)
	default:
		return n
	}
}

func toInt64(v any) (int64, error) {
	switch v := v.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", v)
		}
		return int64(v), nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", v)
		}
		return int64(v), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

type Float4Codec struct{}

func (Float4Codec) FormatSupported(format int16) bool {
	return format == TextFormat || format == BinaryFormat
}

func (Float4Codec) PreferredFormat() int16 { return BinaryFormat }

func (Float4Codec) Encode(v any, format int16, buf []byte) ([]byte, error) {
	var f float32
	switch v := v.(type) {
	case float32:
		f = v
	case float64:
		f = float32(v)
	default:
		return nil, fmt.Errorf("expected float, got %T", v)
	}
	if format == BinaryFormat {
		return binary.BigEndian.AppendUint32(buf, math.Float32bits(f)), nil
	}
	return strconv.AppendFloat(buf, float64(f), 'g', -1, 32), nil
}

func (Float4Codec) Decode(src []byte, format int16) (any, error) {
	if format == BinaryFormat {
		if len(src) != 4 {
			return nil, fmt.Errorf("invalid binary float4 length %d", len(src))
		}
		return math.Float32frombits(binary.BigEndian.Uint32(src)), nil
	}
	f, err := strconv.ParseFloat(string(src), 32)
	if err != nil {
		return nil, err
	}
	return float32(f), nil
}

type Float8Codec struct{}

func (Float8Codec) FormatSupported(format int16) bool {
	return format == TextFormat || format == BinaryFormat
}

func (Float8Codec) PreferredFormat() int16 { return BinaryFormat }

func (Float8Codec) Encode(v any, format int16, buf []byte) ([]byte, error) {
	var f float64
	switch v := v.(type) {
	case float32:
		f = float64(v)
	case float64:
		f = v
	default:
		return nil, fmt.Errorf("expected float, got %T", v)
	}
	if format == BinaryFormat {
		return binary.BigEndian.AppendUint64(buf, math.Float64bits(f)), nil
	}
	return strconv.AppendFloat(buf, f, 'g', -1, 64), nil
}

func (Float8Codec) Decode(src []byte, format int16) (any, error) {
	if format == BinaryFormat {
		if len(src) != 8 {
			return nil, fmt.Errorf("invalid binary float8 length %d", len(src))
		}
		return math.Float64frombits(binary.BigEndian.Uint64(src)), nil
	}
	return strconv.ParseFloat(string(src), 64)
}

// TextCodec covers text, varchar, bpchar and name: the wire bytes are
// the value in both formats.
type TextCodec struct{}

func (TextCodec) FormatSupported(format int16) bool {
	return format == TextFormat || format == BinaryFormat
}

func (TextCodec) PreferredFormat() int16 { return TextFormat }

func (TextCodec) Encode(v any, format int16, buf []byte) ([]byte, error) {
	switch v := v.(type) {
	case string:
		return append(buf, v...), nil
	case []byte:
		return append(buf, v...), nil
	case fmt.Stringer:
		return append(buf, v.String()...), nil
	default:
		return nil, fmt.Errorf("expected string, got %T", v)
	}
}

func (TextCodec) Decode(src []byte, format int16) (any, error) {
	return string(src), nil
}

type ByteaCodec struct{}

func (ByteaCodec) FormatSupported(format int16) bool {
	return format == TextFormat || format == BinaryFormat
}

func (ByteaCodec) PreferredFormat() int16 { return BinaryFormat }

func (ByteaCodec) Encode(v any, format int16, buf []byte) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("expected []byte, got %T", v)
	}
	if format == BinaryFormat {
		return append(buf, b...), nil
	}
	buf = append(buf, '\\', 'x')
	return append(buf, hex.EncodeToString(b)...), nil
}

func (ByteaCodec) Decode(src []byte, format int16) (any, error) {
	if format == BinaryFormat {
		out := make([]byte, len(src))
		copy(out, src)
		return out, nil
	}
	s := string(src)
	if !strings.HasPrefix(s, `\x`) {
		return nil, fmt.Errorf("invalid bytea text prefix")
	}
	return hex.DecodeString(s[2:])
}

// Uint32Codec covers oid and friends.
type Uint32Codec struct{}

func (Uint32Codec) FormatSupported(format int16) bool {
	return format == TextFormat || format == BinaryFormat
}

func (Uint32Codec) PreferredFormat() int16 { return BinaryFormat }

func (Uint32Codec) Encode(v any, format int16, buf []byte) ([]byte, error) {
	var n uint32
	switch v := v.(type) {
	case uint32:
		n = v
	case int:
		if v < 0 || v > math.MaxUint32 {
			return nil, fmt.Errorf("%d out of range for uint32", v)
		}
		n = uint32(v)
	case int64:
		if v < 0 || v > math.MaxUint32 {
			return nil, fmt.Errorf("%d out of range for uint32", v)
		}
		n = uint32(v)
	default:
		return nil, fmt.Errorf("expected uint32, got %T", v)
	}
	if format == BinaryFormat {
		return binary.BigEndian.AppendUint32(buf, n), nil
	}
	return strconv.AppendUint(buf, uint64(n), 10), nil
}

func (Uint32Codec) Decode(src []byte, format int16) (any, error) {
	if format == BinaryFormat {
		if len(src) != 4 {
			return nil, fmt.Errorf("invalid binary uint32 length %d", len(src))
		}
		return binary.BigEndian.Uint32(src), nil
	}
	n, err := strconv.ParseUint(string(src), 10, 32)
	if err != nil {
		return nil, err
	}
	return uint32(n), nil
}
