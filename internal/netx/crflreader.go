package netx

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// ErrLineTooLong indicates that a line exceeded the configured maximum length.
var ErrLineTooLong = errors.New("crlf: line too long")

// ErrPeekBeyondCap indicates an attempt to peek beyond the internal buffer capacity.
var ErrPeekBeyondCap = errors.New("crlf: peek beyond internal capacity")

// DefaultBufSize defines the buffer size used by NewCRLFFastReader.
const DefaultBufSize = 8192

// MaxHeaderBytes is the default cap on a single start line or header line.
// Callers pass it to ReadLine, which enforces it per line; the combined size
// of a header block is not checked against it.
const MaxHeaderBytes = 64 << 10

// CRLFFastReader provides efficient, safe CRLF line reading semantics for HTTP parsing.
// It behaves similarly to net/textproto.Reader, enforcing hard caps and RFC-compliant trimming.
type CRLFFastReader struct {
	br      *bufio.Reader // buffered source for efficient small reads
	bufSize int           // internal buffer size (for bounds checks)
}

// NewCRLFFastReader wraps r with a buffered reader of DefaultBufSize.
func NewCRLFFastReader(r io.Reader) *CRLFFastReader {
	return &CRLFFastReader{
		br:      bufio.NewReaderSize(r, DefaultBufSize),
		bufSize: DefaultBufSize,
	}
}

// Reset allows reusing the reader with a new underlying source.
func (r *CRLFFastReader) Reset(src io.Reader) {
	if r.br == nil {
		r.br = bufio.NewReaderSize(src, DefaultBufSize)
		r.bufSize = DefaultBufSize
		return
	}
	r.br.Reset(src)
}

// ReadLine reads a single logical line, trimming the trailing CRLF or LF.
//
// It enforces a maximum total line length (max). If the accumulated line exceeds
// that limit, it returns ErrLineTooLong. The isPrefix flag mirrors bufio.Reader.ReadLine
// semantics: true means the internal buffer filled before a newline was found.
func (r *CRLFFastReader) ReadLine(max int) (line []byte, isPrefix bool, err error) {
	if max <= 0 {
		return nil, false, errors.New("crlf: invalid max value")
	}

	var buf []byte
	for {
		part, perr := r.br.ReadSlice('\n')
		// enforce limit before appending large chunks
		if len(buf)+len(part) > max {
			return nil, true, ErrLineTooLong
		}
		buf = append(buf, part...)

		switch {
		case perr == nil:
			// found newline
			n := len(buf)
			if n > 0 && buf[n-1] == '\n' {
				n--
				if n > 0 && buf[n-1] == '\r' {
					n--
				}
			}
			return buf[:n], false, nil

		case errors.Is(perr, bufio.ErrBufferFull):
			// continue accumulating until newline found or max exceeded
			continue

		case errors.Is(perr, io.EOF):
			if len(buf) == 0 {
				return nil, false, io.EOF
			}
			return buf, false, io.EOF

		default:
			return buf, false, perr
		}
	}
}

// Peek returns the next n bytes without advancing the reader.
//
// The returned slice is backed by the internal buffer and must not be modified.
// If n exceeds the buffer size or cannot be satisfied without growing it,
// ErrPeekBeyondCap is returned.
func (r *CRLFFastReader) Peek(n int) ([]byte, error) {
	if n > r.bufSize {
		return nil, ErrPeekBeyondCap
	}
	b, err := r.br.Peek(n)
	if err != nil && errors.Is(err, bufio.ErrBufferFull) {
		return nil, ErrPeekBeyondCap
	}
	return b, err
}

// Read satisfies io.Reader by pulling bytes straight from the internal
// buffer, bypassing line framing. Used once header parsing has handed off
// to a body framer.
func (r *CRLFFastReader) Read(p []byte) (int, error) {
	return r.br.Read(p)
}

// ReadByte reads and consumes a single byte.
func (r *CRLFFastReader) ReadByte() (byte, error) {
	return r.br.ReadByte()
}

// UnreadByte un-reads the last byte read via ReadByte.
func (r *CRLFFastReader) UnreadByte() error {
	return r.br.UnreadByte()
}

// StreamUntilToken scans forward copying every byte seen into sink until the
// exact byte sequence in needle is matched. The needle itself is consumed
// from the stream but is never written to sink. It returns the number of
// bytes written to sink and whether the needle was found before EOF.
//
// The needle may straddle buffer refills; StreamUntilToken buffers at most
// len(needle) trailing bytes internally while deciding whether a partial
// match will complete.
func (r *CRLFFastReader) StreamUntilToken(needle []byte, sink io.Writer) (int64, bool, error) {
	if len(needle) == 0 {
		return 0, false, errors.New("crlf: empty needle")
	}

	var written int64
	var window []byte // holds a rolling tail that might be the start of needle

	flushWindow := func(upTo int) error {
		if upTo <= 0 {
			return nil
		}
		n, err := sink.Write(window[:upTo])
		written += int64(n)
		window = window[upTo:]
		return err
	}

	for {
		b, err := r.br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if len(window) > 0 {
					if werr := flushWindow(len(window)); werr != nil {
						return written, false, werr
					}
				}
				return written, false, nil
			}
			return written, false, err
		}

		window = append(window, b)
		if len(window) > len(needle) {
			if err := flushWindow(len(window) - len(needle)); err != nil {
				return written, false, err
			}
		}

		if len(window) == len(needle) && bytes.Equal(window, needle) {
			return written, true, nil
		}
	}
}
