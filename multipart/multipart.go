// Package multipart implements the multipart/form-data streaming codec
// (C7): boundary-delimited parsing of parts with optional file streaming to
// caller-provided sinks, and a matching writer.
//
// There is no multipart example in the retrieval pack; this codec is built
// directly on internal/netx's StreamUntilToken primitive (C1) in the
// teacher's streaming idiom, following RFC 2046's part-delimiter grammar.
package multipart

import (
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/mistnet/httpx/internal/httpx"
	"github.com/mistnet/httpx/internal/netx"
)

// MaxPartBytes bounds an in-memory text part (spec.md §4.7: "suggested 8 MiB").
const MaxPartBytes = 8 << 20

// Error kinds from spec.md §7's Multipart union.
var (
	ErrNoRequestContentType = errors.New("multipart: no request Content-Type")
	ErrNotMultipart         = errors.New("multipart: Content-Type is not multipart/*")
	ErrBoundaryNotSpecified = errors.New("multipart: boundary parameter missing")
	ErrPartialHeaders       = errors.New("multipart: partial part headers")
	ErrEofInMainHeaders     = errors.New("multipart: eof while reading part headers")
	ErrEofBeforeFirstBoundary = errors.New("multipart: eof before first boundary")
	ErrNoCrLfAfterBoundary  = errors.New("multipart: no CRLF/LF after boundary")
	ErrEofInPartHeaders     = errors.New("multipart: eof while reading part headers")
	ErrEofInFile            = errors.New("multipart: eof while streaming file part")
	ErrEofInPart            = errors.New("multipart: eof while reading part body")
	ErrMissingDisposition   = errors.New("multipart: missing Content-Disposition")
	ErrNoName               = errors.New("multipart: Content-Disposition has no name parameter")
	ErrPartTooLarge         = errors.New("multipart: part exceeds size cap")
)

// Field is an in-memory text part.
type Field struct {
	Name  string
	Value []byte
}

// FilePart describes a streamed file part. If no FileSinkFactory is
// supplied, the body is written to a temporary file whose Path is recorded
// here; that file is removed on Close unless Retain was called first
// (spec.md §9, "do_not_delete_on_drop").
type FilePart struct {
	Name     string
	Filename string
	Header   httpx.Header

	w        io.Writer
	tempFile *os.File
	retained bool
}

// Retain marks the backing temp file (if any) to survive past Close.
func (f *FilePart) Retain() { f.retained = true }

// Path returns the backing temp file path, or "" when a custom sink handled
// this part.
func (f *FilePart) Path() string {
	if f.tempFile == nil {
		return ""
	}
	return f.tempFile.Name()
}

// Close releases the temp file, deleting it unless Retain was called.
func (f *FilePart) Close() error {
	if f.tempFile == nil {
		return nil
	}
	path := f.tempFile.Name()
	err := f.tempFile.Close()
	if !f.retained {
		if rerr := os.Remove(path); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}

// FormData is the result of ReadFormData.
type FormData struct {
	Fields []Field
	Files  []*FilePart
}

// FileSinkFactory is called for each file part with the part's name,
// filename and headers before streaming begins; the part body is written to
// the writer it returns. If it returns nil, the default temp-file sink is
// used for that part.
type FileSinkFactory func(name, filename string, header httpx.Header) io.Writer

// ReadFormData parses a multipart/form-data body from r, whose Content-Type
// is given in headers, per spec.md §4.7's algorithm.
func ReadFormData(r *netx.CRLFFastReader, headers httpx.Header, sinkFactory FileSinkFactory) (*FormData, error) {
	ct := headers.Get("Content-Type")
	if ct == "" {
		return nil, ErrNoRequestContentType
	}
	boundary, err := boundaryFromContentType(ct)
	if err != nil {
		return nil, err
	}

	dashBoundary := []byte("--" + boundary)

	var discard bytes.Buffer
	_, found, err := r.StreamUntilToken(dashBoundary, &discard)
	if err != nil {
		return nil, errors.Wrap(err, "scanning preamble")
	}
	if !found {
		return nil, ErrEofBeforeFirstBoundary
	}

	lt, err := detectLineTerminator(r)
	if err != nil {
		return nil, err
	}
	if lt == "" {
		return &FormData{}, nil // "--" immediately: zero-part message
	}
	ltBoundary := append([]byte(lt), dashBoundary...)

	form := &FormData{}
	for {
		// Consume the line terminator that ends the boundary line.
		if err := consumeExact(r, lt); err != nil {
			return nil, err
		}

		header, err := parsePartHeaderBlock(r, lt)
		if err != nil {
			return nil, err
		}

		disp := header.Get("Content-Disposition")
		if disp == "" {
			return nil, ErrMissingDisposition
		}
		name, ok := contentDispositionName(disp)
		if !ok {
			return nil, ErrNoName
		}

		switch {
		case isFilePart(disp):
			fp := &FilePart{Name: name, Filename: contentDispositionFilename(disp), Header: header}
			var sink io.Writer
			if sinkFactory != nil {
				sink = sinkFactory(name, fp.Filename, header)
			}
			if sink == nil {
				tmp, err := os.CreateTemp("", "httpx-multipart-*")
				if err != nil {
					return nil, errors.Wrap(err, "creating temp file for file part")
				}
				fp.tempFile = tmp
				sink = tmp
			}
			fp.w = sink
			if _, found, err := r.StreamUntilToken(ltBoundary, sink); err != nil {
				return nil, errors.Wrap(err, "streaming file part")
			} else if !found {
				return nil, ErrEofInFile
			}
			form.Files = append(form.Files, fp)

		default:
			var buf bytes.Buffer
			n, found, err := r.StreamUntilToken(ltBoundary, &buf)
			if err != nil {
				return nil, errors.Wrap(err, "reading text part")
			}
			if !found {
				return nil, ErrEofInPart
			}
			if n > MaxPartBytes {
				return nil, ErrPartTooLarge
			}
			form.Fields = append(form.Fields, Field{Name: name, Value: buf.Bytes()})
		}

		end, err := peekBoundaryEnd(r)
		if err != nil {
			return nil, err
		}
		if end {
			break
		}
	}

	return form, nil
}

// WriteMultipart emits parts (fields then files, in the order given) using
// CRLF as the part delimiter, per spec.md §4.7's write_multipart.
func WriteMultipart(w io.Writer, boundary string, fields []Field, files []*FilePart, fileBodies []io.Reader) error {
	for _, f := range fields {
		if err := writePartHead(w, boundary, formatDisposition(f.Name, "")); err != nil {
			return err
		}
		if _, err := w.Write(f.Value); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return err
		}
	}
	for i, fp := range files {
		if err := writePartHead(w, boundary, formatDisposition(fp.Name, fp.Filename)); err != nil {
			return err
		}
		if i < len(fileBodies) && fileBodies[i] != nil {
			if _, err := io.Copy(w, fileBodies[i]); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "--"+boundary+"--")
	return err
}

func writePartHead(w io.Writer, boundary, disposition string) error {
	if _, err := io.WriteString(w, "--"+boundary+"\r\n"); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "Content-Disposition: "+disposition+"\r\n\r\n"); err != nil {
		return err
	}
	return nil
}

func formatDisposition(name, filename string) string {
	if filename == "" {
		return `form-data; name="` + name + `"`
	}
	return `form-data; name="` + name + `"; filename="` + filename + `"`
}

// -----------------------------------------------------------------------------
// Header/boundary parsing helpers
// -----------------------------------------------------------------------------

func boundaryFromContentType(ct string) (string, error) {
	parts := strings.Split(ct, ";")
	top := strings.TrimSpace(parts[0])
	if !strings.HasPrefix(strings.ToLower(top), "multipart/") {
		return "", ErrNotMultipart
	}
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(strings.ToLower(p), "boundary=") {
			return strings.Trim(p[len("boundary="):], `"`), nil
		}
	}
	return "", ErrBoundaryNotSpecified
}

// detectLineTerminator peeks the two bytes following the first boundary to
// decide between CRLF and LF, or reports the message is already finished.
func detectLineTerminator(r *netx.CRLFFastReader) (string, error) {
	b, err := r.Peek(2)
	if err != nil && len(b) == 0 {
		return "", errors.Wrap(ErrEofBeforeFirstBoundary, "peeking boundary terminator")
	}
	switch {
	case len(b) >= 2 && b[0] == '-' && b[1] == '-':
		return "", nil
	case len(b) >= 2 && b[0] == '\r' && b[1] == '\n':
		return "\r\n", nil
	case len(b) >= 1 && b[0] == '\n':
		return "\n", nil
	default:
		return "", ErrNoCrLfAfterBoundary
	}
}

func consumeExact(r *netx.CRLFFastReader, tok string) error {
	buf := make([]byte, len(tok))
	for i := range buf {
		b, err := r.ReadByte()
		if err != nil {
			return errors.Wrap(ErrEofInPartHeaders, "consuming line terminator")
		}
		buf[i] = b
	}
	if string(buf) != tok {
		return ErrNoCrLfAfterBoundary
	}
	return nil
}

// parsePartHeaderBlock reads "Name: value" lines with ReadLine until an empty
// line. lt is not consulted: ReadLine accepts either CRLF or LF endings.
// Obsolete line folding is not supported here.
func parsePartHeaderBlock(r *netx.CRLFFastReader, lt string) (httpx.Header, error) {
	h := make(httpx.Header)
	for {
		line, _, err := r.ReadLine(netx.MaxHeaderBytes)
		if err != nil {
			return nil, errors.Wrap(ErrEofInPartHeaders, "reading part header line")
		}
		if len(line) == 0 {
			return h, nil
		}
		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			return nil, ErrPartialHeaders
		}
		name := httpx.CanonicalHeaderKey(string(line[:colon]))
		value := strings.TrimSpace(string(line[colon+1:]))
		h.Add(name, value)
	}
}

func contentDispositionName(disp string) (string, bool) {
	return dispositionParam(disp, "name")
}

func contentDispositionFilename(disp string) string {
	v, _ := dispositionParam(disp, "filename")
	return v
}

func dispositionParam(disp, key string) (string, bool) {
	for _, p := range strings.Split(disp, ";") {
		p = strings.TrimSpace(p)
		prefix := key + "="
		if !strings.HasPrefix(strings.ToLower(p), prefix) {
			continue
		}
		return strings.Trim(p[len(prefix):], `"`), true
	}
	return "", false
}

func isFilePart(disp string) bool {
	low := strings.ToLower(disp)
	return strings.Contains(low, "filename=") || strings.Contains(low, "attachment")
}

// peekBoundaryEnd peeks two bytes after a part body to decide whether the
// message is finished ("--") or another part follows.
func peekBoundaryEnd(r *netx.CRLFFastReader) (bool, error) {
	b, err := r.Peek(2)
	if err != nil && len(b) < 2 {
		return false, errors.Wrap(ErrEofInPart, "peeking boundary terminator")
	}
	if len(b) >= 2 && b[0] == '-' && b[1] == '-' {
		if _, err := r.ReadByte(); err != nil {
			return false, err
		}
		if _, err := r.ReadByte(); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}
