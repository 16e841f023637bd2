package pgtype

import (
	"fmt"

	"github.com/google/uuid"
)

type UUIDCodec struct{}

func (UUIDCodec) FormatSupported(format int16) bool {
	return format == TextFormat || format == BinaryFormat
}

func (UUIDCodec) PreferredFormat() int16 { return BinaryFormat }

func (UUIDCodec) Encode(v any, format int16, buf []byte) ([]byte, error) {
	var u uuid.UUID
	switch v := v.(type) {
	case uuid.UUID:
		u = v
	case [16]byte:
		u = uuid.UUID(v)
	case string:
		parsed, err := uuid.Parse(v)
		if err != nil {
			return nil, err
		}
		u = parsed
	default:
		return nil, fmt.Errorf("expected uuid, got %T", v)
	}

	if format == BinaryFormat {
		return append(buf, u[:]...), nil
	}
	return append(buf, u.String()...), nil
}

func (UUIDCodec) Decode(src []byte, format int16) (any, error) {
	if format == BinaryFormat {
		if len(src) != 16 {
			return nil, fmt.Errorf("invalid binary uuid length %d", len(src))
		}
		var u uuid.UUID
		copy(u[:], src)
		return u, nil
	}
	return uuid.Parse(string(src))
}
