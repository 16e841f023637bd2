package proto

import "strconv"

// ErrorResponse and NoticeResponse share one payload layout: a sequence
// of single byte field codes each followed by a C string, closed by a
// zero byte.

type ErrorResponse struct {
	Severity            string
	SeverityUnlocalized string
	Code                string
	Message             string
	Detail              string
	Hint                string
	Position            int32
	InternalPosition    int32
	InternalQuery       string
	Where               string
	SchemaName          string
	TableName           string
	ColumnName          string
	DataTypeName        string
	ConstraintName      string
	File                string
	Line                int32
	Routine             string

	UnknownFields map[byte]string
}

func (*ErrorResponse) Backend() {}

func (dst *ErrorResponse) Decode(src []byte) error {
	return decodeErrorFields(dst, src, 'E')
}

func (src *ErrorResponse) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 'E')
	dst = encodeErrorFields(dst, src)
	return finishMessage(dst, sp)
}

type NoticeResponse ErrorResponse

func (*NoticeResponse) Backend() {}

func (dst *NoticeResponse) Decode(src []byte) error {
	return decodeErrorFields((*ErrorResponse)(dst), src, 'N')
}

func (src *NoticeResponse) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 'N')
	dst = encodeErrorFields(dst, (*ErrorResponse)(src))
	return finishMessage(dst, sp)
}

func decodeErrorFields(dst *ErrorResponse, src []byte, tag byte) error {
	*dst = ErrorResponse{}
	r := msgReader{buf: src}
	for r.err == nil {
		code := r.byte()
		if code == 0 || r.err != nil {
			break
		}
		value := r.cstring()
		switch code {
		case 'S':
			dst.Severity = value
		case 'V':
			dst.SeverityUnlocalized = value
		case 'C':
			dst.Code = value
		case 'M':
			dst.Message = value
		case 'D':
			dst.Detail = value
		case 'H':
			dst.Hint = value
		case 'P':
			n, _ := strconv.ParseInt(value, 10, 32)
			dst.Position = int32(n)
		case 'p':
			n, _ := strconv.ParseInt(value, 10, 32)
			dst.InternalPosition = int32(n)
		case 'q':
			dst.InternalQuery = value
		case 'W':
			dst.Where = value
		case 's':
			dst.SchemaName = value
		case 't':
			dst.TableName = value
		case 'c':
			dst.ColumnName = value
		case 'd':
			dst.DataTypeName = value
		case 'n':
			dst.ConstraintName = value
		case 'F':
			dst.File = value
		case 'L':
			n, _ := strconv.ParseInt(value, 10, 32)
			dst.Line = int32(n)
		case 'R':
			dst.Routine = value
		default:
			if dst.UnknownFields == nil {
				dst.UnknownFields = map[byte]string{}
			}
			dst.UnknownFields[code] = value
		}
	}
	return r.done(tag)
}

func encodeErrorFields(dst []byte, src *ErrorResponse) []byte {
	appendField := func(code byte, value string) {
		if value != "" {
			dst = append(dst, code)
			dst = appendCString(dst, value)
		}
	}

	appendField('S', src.Severity)
	appendField('V', src.SeverityUnlocalized)
	appendField('C', src.Code)
	appendField('M', src.Message)
	appendField('D', src.Detail)
	appendField('H', src.Hint)
	if src.Position != 0 {
		appendField('P', strconv.FormatInt(int64(src.Position), 10))
	}
	if src.InternalPosition != 0 {
		appendField('p', strconv.FormatInt(int64(src.InternalPosition), 10))
	}
	appendField('q', src.InternalQuery)
	appendField('W', src.Where)
	appendField('s', src.SchemaName)
	appendField('t', src.TableName)
	appendField('c', src.ColumnName)
	appendField('d', src.DataTypeName)
	appendField('n', src.ConstraintName)
	appendField('F', src.File)
	if src.Line != 0 {
		appendField('L', strconv.FormatInt(int64(src.Line), 10))
	}
	appendField('R', src.Routine)
	for code, value := range src.UnknownFields {
		appendField(code, value)
	}

	return append(dst, 0)
}
