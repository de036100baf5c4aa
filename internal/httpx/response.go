package httpx

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ResponseState is the Fresh/Streaming/Done state machine from spec.md §3:
//
//	Fresh --Start()--> Streaming --End()--> Done
//	Fresh --Send(bytes)--> Done
//	Fresh --dropped--> Done
type ResponseState int

const (
	StateFresh ResponseState = iota
	StateStreaming
	StateDone
)

// ErrResponseNotFresh is returned by header mutation or Start when the
// response has already left the Fresh state.
var ErrResponseNotFresh = errors.New("httpx: response headers are immutable once streaming has started")

// ErrResponseNotStreaming is returned by Write/End when the response has not
// yet called Start (or Send).
var ErrResponseNotStreaming = errors.New("httpx: response body write before Start")

// statusText is a small reason-phrase table; kept local rather than
// importing net/http for it.
var statusText = map[int]string{
	100: "Continue",
	101: "Switching Protocols",
	200: "OK",
	201: "Created",
	202: "Accepted",
	204: "No Content",
	301: "Moved Permanently",
	302: "Found",
	304: "Not Modified",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	408: "Request Timeout",
	411: "Length Required",
	413: "Payload Too Large",
	417: "Expectation Failed",
	500: "Internal Server Error",
	501: "Not Implemented",
	502: "Bad Gateway",
	503: "Service Unavailable",
}

// StatusText returns the standard reason phrase for code, or "" if unknown.
func StatusText(code int) string { return statusText[code] }

// Response is the server-side half of the Message Engine (C4). It is
// constructed Fresh over a live connection writer and transitions to
// Streaming on Start (or Send), and to Done on End (or a dropped Fresh).
type Response struct {
	ctx context.Context
	w   *bufio.Writer

	ProtoMajor, ProtoMinor int
	StatusCode             int
	Header                 Header

	isHeadRequest  bool
	requestVersion string

	state ResponseState

	framing     BodyFraming
	declaredLen int64
	body        BodyWriter
	sized       *sizedWriter
	closeAfter  bool // force connection close regardless of Connection header
}

// NewResponse creates a Fresh response writing to w, defaulting to
// HTTP/1.1 200 OK with an empty header map. isHeadRequest forces Empty
// framing per §4.3 step 1 regardless of what headers the handler sets.
func NewResponse(ctx context.Context, w io.Writer, protoMajor, protoMinor int, isHeadRequest bool) *Response {
	if ctx == nil {
		ctx = context.Background()
	}
	if protoMajor == 0 && protoMinor == 0 {
		protoMajor, protoMinor = 1, 1
	}
	return &Response{
		ctx:            ctx,
		w:              bufio.NewWriter(w),
		ProtoMajor:     protoMajor,
		ProtoMinor:     protoMinor,
		StatusCode:     200,
		Header:         make(Header),
		isHeadRequest:  isHeadRequest,
		requestVersion: fmt.Sprintf("HTTP/%d.%d", protoMajor, protoMinor),
	}
}

// State reports the current Fresh/Streaming/Done state.
func (r *Response) State() ResponseState { return r.state }

// CloseAfterReply reports whether the connection worker must close the
// connection after this response regardless of the Connection header
// (set on write errors, declared-length underfill, or an explicit request).
func (r *Response) CloseAfterReply() bool { return r.closeAfter }

// ForceClose marks the connection for closure after this response completes.
func (r *Response) ForceClose() { r.closeAfter = true }

// ForceStatus overrides the status code while still Fresh — used by the
// connection worker's panic recovery (§7: "writes status 500 on the
// response if still Fresh").
func (r *Response) ForceStatus(code int) {
	if r.state != StateFresh {
		return
	}
	r.StatusCode = code
}

// Start transitions Fresh -> Streaming: it picks the BodyFraming per
// spec.md §4.4, inserts Date/Transfer-Encoding as needed, and flushes the
// status line + header block.
func (r *Response) Start() error {
	if r.state != StateFresh {
		return ErrResponseNotFresh
	}

	switch {
	case r.isHeadRequest || is1xxOr204Or304(r.StatusCode):
		r.framing = FramingEmpty
		r.declaredLen = 0
	default:
		if cl := r.Header.Get("Content-Length"); cl != "" {
			n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
			if err != nil || n < 0 {
				return errors.Wrap(ErrLengthMismatch, "invalid Content-Length")
			}
			r.framing = FramingSized
			r.declaredLen = n
		} else if r.ProtoMajor == 1 && r.ProtoMinor == 0 {
			// HTTP/1.0 has no chunked coding: the body runs until the
			// connection closes.
			r.framing = FramingEofTerminated
			r.declaredLen = -1
			r.closeAfter = true
		} else {
			r.framing = FramingChunked
			r.declaredLen = -1
			if r.Header.Get("Transfer-Encoding") == "" {
				r.Header.Set("Transfer-Encoding", "chunked")
			}
		}
	}

	if r.Header.Get("Date") == "" {
		r.Header.Set("Date", time.Now().UTC().Format(time.RFC1123))
	}

	phrase := StatusText(r.StatusCode)
	if phrase == "" {
		phrase = strconv.Itoa(r.StatusCode)
	}
	if _, err := fmt.Fprintf(r.w, "%s %d %s\r\n", r.requestVersion, r.StatusCode, phrase); err != nil {
		r.closeAfter = true
		return err
	}
	if err := writeHeaderBlock(r.w, r.Header); err != nil {
		r.closeAfter = true
		return err
	}
	if err := r.w.Flush(); err != nil {
		r.closeAfter = true
		return err
	}

	switch r.framing {
	case FramingEmpty:
		r.body = emptyWriter{}
	case FramingSized:
		sw := newSizedWriter(r.w, r.declaredLen)
		r.sized = sw
		r.body = sw
	case FramingChunked:
		r.body = newChunkedBodyWriter(r.ctx, r.w)
	case FramingEofTerminated:
		r.body = closeBodyWriter{w: r.w}
	}

	r.state = StateStreaming
	return nil
}

// Write appends to the body under the chosen framing. It is only valid in
// the Streaming state.
func (r *Response) Write(p []byte) (int, error) {
	if r.state != StateStreaming {
		return 0, ErrResponseNotStreaming
	}
	n, err := r.body.Write(p)
	if err != nil && !errors.Is(err, ErrWriteAll) {
		r.closeAfter = true
	}
	if ferr := r.w.Flush(); ferr != nil {
		r.closeAfter = true
		if err == nil {
			err = ferr
		}
	}
	return n, err
}

// End finalizes the body (emitting the chunked terminator, if any) and
// transitions Streaming -> Done. If fewer bytes were written than a
// declared Content-Length promised, the connection is marked for closure
// without keep-alive rather than padding the body (SPEC_FULL.md Open
// Question decision).
func (r *Response) End() error {
	if r.state == StateDone {
		return nil
	}
	if r.state != StateStreaming {
		return ErrResponseNotStreaming
	}
	err := r.body.End()
	if r.sized != nil && r.sized.Remaining() > 0 {
		r.closeAfter = true
	}
	if ferr := r.w.Flush(); ferr != nil {
		r.closeAfter = true
		if err == nil {
			err = ferr
		}
	}
	r.state = StateDone
	return err
}

// Send is shorthand for: set Content-Length, Start, write once, End.
func (r *Response) Send(data []byte) error {
	if r.state != StateFresh {
		return ErrResponseNotFresh
	}
	r.Header.Set("Content-Length", strconv.Itoa(len(data)))
	if err := r.Start(); err != nil {
		return err
	}
	if len(data) > 0 {
		if _, err := r.Write(data); err != nil {
			return err
		}
	}
	return r.End()
}

// FinalizeIfFresh implements the "dropped Fresh" transition from spec.md §3
// and §4.4: a handler that returns without calling Start or Send still gets
// a valid, empty-bodied response emitted with its current status/headers.
func (r *Response) FinalizeIfFresh() error {
	if r.state != StateFresh {
		return nil
	}
	return r.Send(nil)
}
