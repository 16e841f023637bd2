package pgtype

import (
	"encoding/binary"
	"fmt"
	"time"
)

// The binary formats of date and timestamp count from the PostgreSQL
// epoch, 2000-01-01.
var pgEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

const (
	microsecFromUnixEpochToPGEpoch = 946684800000000
	secondsPerDay                  = 24 * 60 * 60
)

type DateCodec struct{}

func (DateCodec) FormatSupported(format int16) bool {
	return format == TextFormat || format == BinaryFormat
}

func (DateCodec) PreferredFormat() int16 { return BinaryFormat }

func (DateCodec) Encode(v any, format int16, buf []byte) ([]byte, error) {
	t, ok := v.(time.Time)
	if !ok {
		return nil, fmt.Errorf("expected time.Time, got %T", v)
	}
	if format == BinaryFormat {
		days := int32(t.UTC().Truncate(24*time.Hour).Unix()/secondsPerDay - pgEpoch.Unix()/secondsPerDay)
		return binary.BigEndian.AppendUint32(buf, uint32(days)), nil
	}
	return t.AppendFormat(buf, "2006-01-02"), nil
}

func (DateCodec) Decode(src []byte, format int16) (any, error) {
	if format == BinaryFormat {
		if len(src) != 4 {
			return nil, fmt.Errorf("invalid binary date length %d", len(src))
		}
		days := int32(binary.BigEndian.Uint32(src))
		return pgEpoch.AddDate(0, 0, int(days)), nil
	}
	return time.ParseInLocation("2006-01-02", string(src), time.UTC)
}

type TimestampCodec struct{}

func (TimestampCodec) FormatSupported(format int16) bool {
	return format == TextFormat || format == BinaryFormat
}

func (TimestampCodec) PreferredFormat() int16 { return BinaryFormat }

func (TimestampCodec) Encode(v any, format int16, buf []byte) ([]byte, error) {
	t, ok := v.(time.Time)
	if !ok {
		return nil, fmt.Errorf("expected time.Time, got %T", v)
	}
	if format == BinaryFormat {
		return binary.BigEndian.AppendUint64(buf, uint64(microsSincePGEpoch(t.UTC()))), nil
	}
	return t.UTC().AppendFormat(buf, "2006-01-02 15:04:05.999999"), nil
}

func (TimestampCodec) Decode(src []byte, format int16) (any, error) {
	if format == BinaryFormat {
		if len(src) != 8 {
			return nil, fmt.Errorf("invalid binary timestamp length %d", len(src))
		}
		return timeFromMicrosSincePGEpoch(int64(binary.BigEndian.Uint64(src)), time.UTC), nil
	}
	return time.ParseInLocation("2006-01-02 15:04:05.999999", string(src), time.UTC)
}

type TimestamptzCodec struct{}

func (TimestamptzCodec) FormatSupported(format int16) bool {
	return format == TextFormat || format == BinaryFormat
}

func (TimestamptzCodec) PreferredFormat() int16 { return BinaryFormat }

func (TimestamptzCodec) Encode(v any, format int16, buf []byte) ([]byte, error) {
	t, ok := v.(time.Time)
	if !ok {
		return nil, fmt.Errorf("expected time.Time, got %T", v)
	}
	if format == BinaryFormat {
		return binary.BigEndian.AppendUint64(buf, uint64(microsSincePGEpoch(t))), nil
	}
	return t.AppendFormat(buf, "2006-01-02 15:04:05.999999-07:00"), nil
}

func (TimestamptzCodec) Decode(src []byte, format int16) (any, error) {
	if format == BinaryFormat {
		if len(src) != 8 {
			return nil, fmt.Errorf("invalid binary timestamptz length %d", len(src))
		}
		return timeFromMicrosSincePGEpoch(int64(binary.BigEndian.Uint64(src)), time.UTC), nil
	}
	// The backend emits a numeric zone offset; seconds precision varies.
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999-07:00",
		"2006-01-02 15:04:05.999999-07",
	} {
		if t, err := time.Parse(layout, string(src)); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("invalid timestamptz text %q", src)
}

func microsSincePGEpoch(t time.Time) int64 {
	return t.Unix()*1000000 + int64(t.Nanosecond())/1000 - microsecFromUnixEpochToPGEpoch
}

func timeFromMicrosSincePGEpoch(micros int64, loc *time.Location) time.Time {
	unixMicros := micros + microsecFromUnixEpochToPGEpoch
	return time.Unix(unixMicros/1000000, (unixMicros%1000000)*1000).In(loc)
}
