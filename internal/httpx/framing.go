package httpx

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// BodyFraming is the sum type selected from headers per spec.md §4.3.
type BodyFraming int

const (
	FramingEmpty BodyFraming = iota
	FramingSized
	FramingChunked
	FramingEofTerminated
)

func (f BodyFraming) String() string {
	switch f {
	case FramingEmpty:
		return "empty"
	case FramingSized:
		return "sized"
	case FramingChunked:
		return "chunked"
	case FramingEofTerminated:
		return "eof-terminated"
	default:
		return "unknown"
	}
}

// FramingOptions carries the bits of context §4.3's precedence rules need
// beyond the header map itself.
type FramingOptions struct {
	IsResponse     bool // response framing allows EofTerminated; requests never do
	HeadResponse   bool // this is a response to a HEAD request
	StatusCode     int  // response status; ignored for requests
}

func is1xxOr204Or304(status int) bool {
	return (status >= 100 && status < 200) || status == 204 || status == 304
}

// SelectFraming implements spec.md §4.3's ordered precedence:
//  1. HEAD response or 1xx/204/304 status -> Empty.
//  2. Transfer-Encoding containing "chunked" -> Chunked (Content-Length ignored).
//  3. Content-Length present and valid -> Sized(n).
//  4. Otherwise: EofTerminated for responses, Empty for requests.
//
// Per the Open Question decision in SPEC_FULL.md, a Transfer-Encoding header
// whose final (rightmost) coding is not "chunked" is a protocol error
// (ErrHeaderFieldBad) rather than a silent identity fallback.
func SelectFraming(h Header, opts FramingOptions) (BodyFraming, int64, error) {
	if opts.IsResponse && (opts.HeadResponse || is1xxOr204Or304(opts.StatusCode)) {
		return FramingEmpty, 0, nil
	}

	if te := h.Get("Transfer-Encoding"); te != "" {
		parts := strings.Split(te, ",")
		last := strings.ToLower(strings.TrimSpace(parts[len(parts)-1]))
		if last != "chunked" {
			return 0, 0, errors.Wrapf(ErrHeaderFieldBad, "unsupported final transfer-coding %q", last)
		}
		return FramingChunked, -1, nil
	}

	if cl := h.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if err != nil || n < 0 {
			return 0, 0, errors.Wrap(ErrLengthMismatch, "invalid Content-Length")
		}
		return FramingSized, n, nil
	}

	if opts.IsResponse {
		return FramingEofTerminated, -1, nil
	}
	return FramingEmpty, 0, nil
}
