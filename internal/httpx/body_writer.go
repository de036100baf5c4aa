package httpx

import (
	"context"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// ErrWriteAll is returned by a sizedWriter when a write would exceed the
// declared Content-Length; the write is truncated to the remaining capacity
// and the error is returned alongside the truncated count.
var ErrWriteAll = errors.New("httpx: write exceeds declared Content-Length")

// BodyWriter is the write-side counterpart of the body framings: Write
// streams body bytes under the chosen discipline, End finalizes it (a
// chunked writer emits the terminating zero chunk; a sized writer is a
// no-op — underfill is detected by the caller via Remaining()).
type BodyWriter interface {
	io.Writer
	End() error
}

// -----------------------------------------------------------------------------
// sizedWriter: Content-Length framed body
// -----------------------------------------------------------------------------

type sizedWriter struct {
	w         io.Writer
	remaining int64
}

func newSizedWriter(w io.Writer, n int64) *sizedWriter {
	return &sizedWriter{w: w, remaining: n}
}

// Write truncates to the remaining declared length and returns ErrWriteAll
// if the caller tried to write past it.
func (s *sizedWriter) Write(p []byte) (int, error) {
	if int64(len(p)) > s.remaining {
		truncated := p[:s.remaining]
		n, err := s.w.Write(truncated)
		s.remaining -= int64(n)
		if err != nil {
			return n, err
		}
		return n, ErrWriteAll
	}
	n, err := s.w.Write(p)
	s.remaining -= int64(n)
	return n, err
}

// End is a no-op per spec.md §4.3; underfill is the caller's concern (see
// Remaining).
func (s *sizedWriter) End() error { return nil }

// Remaining reports how many declared bytes were never written. A non-zero
// value after the handler finishes means the response was underfilled and,
// per SPEC_FULL.md's Open Question decision, the connection must be closed
// without keep-alive.
func (s *sizedWriter) Remaining() int64 { return s.remaining }

// -----------------------------------------------------------------------------
// chunkedBodyWriter: Transfer-Encoding: chunked framed body
// -----------------------------------------------------------------------------

type chunkedBodyWriter struct {
	ctx context.Context
	w   io.Writer
}

func newChunkedBodyWriter(ctx context.Context, w io.Writer) *chunkedBodyWriter {
	return &chunkedBodyWriter{ctx: ctx, w: w}
}

// Write emits one chunk for p. A zero-length write is a no-op: it does not
// terminate the body (End does that).
func (c *chunkedBodyWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	select {
	case <-c.ctx.Done():
		return 0, c.ctx.Err()
	default:
	}

	if _, err := io.WriteString(c.w, strconv.FormatInt(int64(len(p)), 16)+"\r\n"); err != nil {
		return 0, err
	}
	n, err := c.w.Write(p)
	if err != nil {
		return n, err
	}
	if _, err := io.WriteString(c.w, "\r\n"); err != nil {
		return n, err
	}
	return n, nil
}

// End writes the terminating zero-sized chunk: "0\r\n\r\n".
func (c *chunkedBodyWriter) End() error {
	_, err := io.WriteString(c.w, "0\r\n\r\n")
	return err
}

// -----------------------------------------------------------------------------
// emptyWriter / closeBodyWriter
// -----------------------------------------------------------------------------

type emptyWriter struct{}

func (emptyWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return 0, errors.New("httpx: write to empty-framed body")
}
func (emptyWriter) End() error { return nil }

// closeBodyWriter streams bytes as-is; the connection close itself signals
// end-of-body to the peer. Used for HTTP/1.0 responses with no declared
// length.
type closeBodyWriter struct {
	w io.Writer
}

func (c closeBodyWriter) Write(p []byte) (int, error) { return c.w.Write(p) }
func (c closeBodyWriter) End() error                   { return nil }
