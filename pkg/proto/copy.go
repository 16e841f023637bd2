package proto

// CopyData flows in both directions during COPY.
type CopyData struct {
	Data []byte
}

func (*CopyData) Frontend() {}
func (*CopyData) Backend()  {}

func (dst *CopyData) Decode(src []byte) error {
	r := msgReader{buf: src}
	dst.Data = r.remainder()
	return r.done('d')
}

func (src *CopyData) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 'd')
	dst = append(dst, src.Data...)
	return finishMessage(dst, sp)
}

type CopyDone struct{}

func (*CopyDone) Frontend() {}
func (*CopyDone) Backend()  {}

func (dst *CopyDone) Decode(src []byte) error {
	if len(src) != 0 {
		return malformed('c', "unexpected payload")
	}
	return nil
}

func (src *CopyDone) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 'c')
	return finishMessage(dst, sp)
}

// CopyFail aborts a COPY FROM from the client side.
type CopyFail struct {
	Message string
}

func (*CopyFail) Frontend() {}

func (dst *CopyFail) Decode(src []byte) error {
	r := msgReader{buf: src}
	dst.Message = r.cstring()
	return r.done('f')
}

func (src *CopyFail) Encode(dst []byte) ([]byte, error) {
	dst, sp := beginMessage(dst, 'f')
	dst = appendCString(dst, src.Message)
	return finishMessage(dst, sp)
}

// CopyInResponse announces the backend is ready to receive COPY data.
type CopyInResponse struct {
	OverallFormat     byte
	ColumnFormatCodes []int16
}

func (*CopyInResponse) Backend() {}

func (dst *CopyInResponse) Decode(src []byte) error {
	return decodeCopyResponse(src, 'G', &dst.OverallFormat, &dst.ColumnFormatCodes)
}

func (src *CopyInResponse) Encode(dst []byte) ([]byte, error) {
	return encodeCopyResponse(dst, 'G', src.OverallFormat, src.ColumnFormatCodes)
}

// CopyOutResponse announces a COPY TO data stream.
type CopyOutResponse struct {
	OverallFormat     byte
	ColumnFormatCodes []int16
}

func (*CopyOutResponse) Backend() {}

func (dst *CopyOutResponse) Decode(src []byte) error {
	return decodeCopyResponse(src, 'H', &dst.OverallFormat, &dst.ColumnFormatCodes)
}

func (src *CopyOutResponse) Encode(dst []byte) ([]byte, error) {
	return encodeCopyResponse(dst, 'H', src.OverallFormat, src.ColumnFormatCodes)
}

func decodeCopyResponse(src []byte, tag byte, overallFormat *byte, columnFormatCodes *[]int16) error {
	r := msgReader{buf: src}
	*overallFormat = r.byte()
	n := int(r.int16())
	*columnFormatCodes = make([]int16, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		*columnFormatCodes = append(*columnFormatCodes, r.int16())
	}
	return r.done(tag)
}

func encodeCopyResponse(dst []byte, tag byte, overallFormat byte, columnFormatCodes []int16) ([]byte, error) {
	dst, sp := beginMessage(dst, tag)
	dst = append(dst, overallFormat)
	dst = appendInt16(dst, int16(len(columnFormatCodes)))
	for _, fc := range columnFormatCodes {
		dst = appendInt16(dst, fc)
	}
	return finishMessage(dst, sp)
}
