package httpx

import (
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/mistnet/httpx/internal/netx"
)

// Sentinel errors for the wire-level parser (C2). These map onto the
// MethodInvalid / VersionInvalid / HeaderInvalid / TooLarge / StatusInvalid
// taxonomy.
var (
	ErrMethodInvalid  = errors.New("httpx: invalid method")
	ErrVersionInvalid = errors.New("httpx: invalid HTTP version")
	ErrStatusInvalid  = errors.New("httpx: invalid status code")
	ErrTooLarge       = errors.New("httpx: header block too large")
	ErrHeaderFieldBad = errors.New("httpx: malformed header field")
)

// MaxHeaderCount is the hard cap on the number of distinct header lines a
// single message may carry, per spec.md §4.2 ("tolerant of up to 100
// headers; rejects >100 with TooLarge").
const MaxHeaderCount = 100

// ParseHeaderBlock is the exported entry point to the header-block grammar,
// used directly by the client package to parse response headers.
func ParseHeaderBlock(r *netx.CRLFFastReader, maxLineBytes int) (Header, error) {
	return parseHeaderBlock(r, maxLineBytes)
}

// parseHeaderBlock reads header lines from r until a blank line, honoring
// obsolete line folding (a continuation line starting with SP/HT is joined
// to the previous header's value with a single space), and enforces
// MaxHeaderCount and the reader's own MaxHeaderBytes line cap.
//
// It returns once the terminating blank line has been consumed.
func parseHeaderBlock(r *netx.CRLFFastReader, maxLineBytes int) (Header, error) {
	h := make(Header)

	var lastKey string
	count := 0
	for {
		line, _, err := r.ReadLine(maxLineBytes)
		if err != nil {
			if errors.Is(err, netx.ErrLineTooLong) {
				return nil, ErrTooLarge
			}
			return nil, errors.Wrap(err, "read header line")
		}
		if len(line) == 0 {
			return h, nil // blank line: end of header block
		}

		// Obsolete line folding: a leading SP/HT continues the previous value.
		if line[0] == ' ' || line[0] == '\t' {
			if lastKey == "" {
				return nil, errors.Wrap(ErrHeaderFieldBad, "continuation with no preceding header")
			}
			cont := strings.TrimLeft(string(line), " \t")
			vals := h[lastKey]
			if len(vals) > 0 {
				vals[len(vals)-1] = vals[len(vals)-1] + " " + cont
			}
			continue
		}

		colon := indexByte(line, ':')
		if colon <= 0 {
			return nil, errors.Wrapf(ErrHeaderFieldBad, "missing colon in %q", line)
		}
		name := string(line[:colon])
		if !isASCII(name) || !isValidFieldName(name) {
			return nil, errors.Wrapf(ErrHeaderFieldBad, "invalid field name %q", name)
		}
		value := strings.TrimSpace(string(line[colon+1:]))

		count++
		if count > MaxHeaderCount {
			return nil, ErrTooLarge
		}

		key := CanonicalHeaderKey(name)
		h[key] = append(h[key], value)
		lastKey = key
	}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}

// skipLeadingCRLFs discards blank lines preceding a start line, a tolerance
// for pipelined clients per spec.md §4.2.
func skipLeadingCRLFs(r *netx.CRLFFastReader, maxLineBytes int) (line []byte, err error) {
	for {
		line, _, err = r.ReadLine(maxLineBytes)
		if err != nil {
			return nil, err
		}
		if len(line) != 0 {
			return line, nil
		}
	}
}

// ParseVersion is the exported entry point to "HTTP/x.y" parsing, used by
// the client package to read a response's protocol version.
func ParseVersion(proto string) (major, minor int, err error) {
	return parseVersion(proto)
}

// parseVersion parses "HTTP/x.y" into major/minor, validating digits.
func parseVersion(proto string) (major, minor int, err error) {
	if !strings.HasPrefix(proto, "HTTP/") {
		return 0, 0, errors.Wrapf(ErrVersionInvalid, "%q", proto)
	}
	ver := strings.TrimPrefix(proto, "HTTP/")
	dot := strings.IndexByte(ver, '.')
	if dot < 0 {
		return 0, 0, errors.Wrapf(ErrVersionInvalid, "%q", proto)
	}
	major, err1 := strconv.Atoi(ver[:dot])
	minor, err2 := strconv.Atoi(ver[dot+1:])
	if err1 != nil || err2 != nil || major < 0 || minor < 0 {
		return 0, 0, errors.Wrapf(ErrVersionInvalid, "%q", proto)
	}
	return major, minor, nil
}

// writeHeaderBlock writes headers in "Name: value\r\n" form, terminated by
// a blank line. Header.Write walks the map, so the order of distinct names
// is not defined.
func writeHeaderBlock(w io.Writer, h Header) error {
	return h.Write(w)
}
