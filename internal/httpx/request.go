package httpx

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/mistnet/httpx/extensions"
	"github.com/mistnet/httpx/internal/netx"
)

// requestLine models the first line of an HTTP/1.x request.
type requestLine struct {
	Method     string
	RequestURI string
	Proto      string
	ProtoMajor int
	ProtoMinor int
}

// String returns the serialized form of the request line.
func (r requestLine) String() string {
	return fmt.Sprintf("%s %s %s", r.Method, r.RequestURI, r.Proto)
}

// Request represents a parsed HTTP/1.x request, per spec.md §3/§4.4: it is
// created once a complete header block has been read, and holds a borrowed
// reference to the underlying buffered stream configured as a body reader.
type Request struct {
	requestLine
	URL           *URL
	Header        Header
	Host          string
	ContentLength int64 // -1 when unknown (chunked / eof-terminated)
	Framing       BodyFraming
	Body          io.ReadCloser

	// PeerAddr is captured at creation and never changes (spec.md §3).
	PeerAddr string

	// Extra is the per-request heterogeneous container for
	// middleware-produced values; single-owner, no locking (spec.md §5).
	Extra *extensions.StoreUnsynchronized

	ctx context.Context
}

// ParseLimits controls how many bytes can be read from a request line or
// individual header lines.
type ParseLimits struct {
	MaxLineBytes int
}

func (l ParseLimits) lineCap() int {
	if l.MaxLineBytes <= 0 {
		return netx.MaxHeaderBytes
	}
	return l.MaxLineBytes
}

// ParseRequest reads a full request head (start line + headers) from r,
// selects the body framing per §4.3, and returns a Request whose Body
// reader is bound to r. maxBodySize bounds the body a caller may read
// before ErrBodyTooLarge (0 = unbounded).
func ParseRequest(ctx context.Context, r *netx.CRLFFastReader, peerAddr string, limits ParseLimits, maxBodySize int64) (*Request, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	line, err := skipLeadingCRLFs(r, limits.lineCap())
	if err != nil {
		return nil, errors.Wrap(err, "read request line")
	}

	rl, err := parseRequestLine(string(line))
	if err != nil {
		return nil, err
	}

	u, err := ParseRequestURI(rl.RequestURI)
	if err != nil {
		return nil, err
	}

	header, err := parseHeaderBlock(r, limits.lineCap())
	if err != nil {
		return nil, err
	}

	req := &Request{
		requestLine: rl,
		URL:         u,
		Header:      header,
		PeerAddr:    peerAddr,
		Extra:       extensions.NewUnsynchronized(),
		ctx:         ctx,
	}

	if u.Host != "" {
		req.Host = strings.ToLower(u.Host)
	} else if h := header.Get("Host"); h != "" {
		req.Host = strings.ToLower(h)
	}

	framing, length, err := SelectFraming(header, FramingOptions{IsResponse: false})
	if err != nil {
		return nil, err
	}
	req.Framing = framing
	req.ContentLength = length

	body, err := NewBodyReader(ctx, framing, length, r, maxBodySize, header)
	if err != nil {
		return nil, err
	}
	req.Body = body

	return req, nil
}

// parseRequestLine parses "METHOD SP Request-URI SP HTTP/x.y".
func parseRequestLine(line string) (rl requestLine, err error) {
	// Be tolerant of multiple spaces or tabs.
	parts := strings.Fields(line)
	if len(parts) != 3 {
		return rl, errors.Wrapf(ErrMethodInvalid, "malformed request line %q", line)
	}

	method := parts[0]
	target := parts[1]
	proto := parts[2]

	if len(method) == 0 || len(method) > 20 {
		return rl, errors.Wrapf(ErrMethodInvalid, "%q", method)
	}
	for i := 0; i < len(method); i++ {
		c := method[i]
		if c < 'A' || c > 'Z' {
			return rl, errors.Wrapf(ErrMethodInvalid, "method must be uppercase A-Z: %q", method)
		}
	}

	major, minor, err := parseVersion(proto)
	if err != nil {
		return rl, err
	}

	rl = requestLine{
		Method:     method,
		RequestURI: target,
		Proto:      proto,
		ProtoMajor: major,
		ProtoMinor: minor,
	}
	return rl, nil
}

// Context returns the request's context.
func (r *Request) Context() context.Context {
	if r == nil || r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// WithContext returns a shallow copy of r with its context replaced by ctx.
func (r *Request) WithContext(ctx context.Context) *Request {
	if r == nil {
		return nil
	}
	cp := *r
	cp.ctx = ctx
	return &cp
}

// String returns a human-readable representation of the request line.
func (r *Request) String() string {
	if r == nil {
		return "<nil request>"
	}
	return r.requestLine.String()
}
