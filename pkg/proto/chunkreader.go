package proto

import "io"

// chunkReader reads whole chunks of a requested size from an io.Reader,
// buffering ahead when the transport hands over more than was asked for.
// A short or failed read preserves everything received so far, so the
// caller can retry Next after the transport recovers: decoding stays
// resumable across arbitrarily fragmented reads.
type chunkReader struct {
	r io.Reader

	buf    []byte
	rp, wp int // buf read position and write position

	minBufSize int
}

func newChunkReader(r io.Reader, minBufSize int) *chunkReader {
	if minBufSize <= 0 {
		// Postgres has historically used an 8KB send buffer, so there is
		// no benefit to a smaller read buffer on our side.
		minBufSize = 8192
	}

	return &chunkReader{
		r:          r,
		minBufSize: minBufSize,
		buf:        make([]byte, minBufSize),
	}
}

// Next returns buf filled with the next n bytes. buf is only valid until
// the next call of Next. If an error occurs, buf is nil and any partially
// read data stays buffered.
func (r *chunkReader) Next(n int) (buf []byte, err error) {
	// Reset the buffer if it is empty
	if r.rp == r.wp {
		if len(r.buf) != r.minBufSize {
			r.buf = make([]byte, r.minBufSize)
		}
		r.rp = 0
		r.wp = 0
	}

	// n bytes already buffered
	if (r.wp - r.rp) >= n {
		buf = r.buf[r.rp : r.rp+n : r.rp+n]
		r.rp += n
		return buf, nil
	}

	// buf is smaller than the requested number of bytes
	if len(r.buf) < n {
		bigBuf := make([]byte, n)
		r.wp = copy(bigBuf, r.buf[r.rp:r.wp])
		r.rp = 0
		r.buf = bigBuf
	}

	// buf is large enough, but the filled area must shift to the start to
	// leave enough contiguous space
	minReadCount := n - (r.wp - r.rp)
	if (len(r.buf) - r.wp) < minReadCount {
		r.wp = copy(r.buf, r.buf[r.rp:r.wp])
		r.rp = 0
	}

	readBytesCount, err := io.ReadAtLeast(r.r, r.buf[r.wp:], minReadCount)
	r.wp += readBytesCount
	if err != nil {
		return nil, err
	}

	buf = r.buf[r.rp : r.rp+n : r.rp+n]
	r.rp += n
	return buf, nil
}
