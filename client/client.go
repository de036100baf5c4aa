// Package client implements the symmetric client engine: it builds a
// request head, streams the body, and parses the response, reusing C1–C4
// from internal/httpx and internal/netx.
package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/mistnet/httpx/internal/httpx"
	"github.com/mistnet/httpx/internal/netx"
)

// Connector dials a new connection to addr. The default uses net.Dial;
// callers needing TLS supply a Connector built on tls.Wrapper.WrapClient.
type Connector interface {
	Dial(ctx context.Context, network, addr string) (net.Conn, error)
}

// NetDialer is the default Connector, a thin adapter over net.Dialer.
type NetDialer struct {
	Timeout time.Duration
}

func (d NetDialer) Dial(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: d.Timeout}
	return dialer.DialContext(ctx, network, addr)
}

// Request is the client-side, Fresh half of C4: mutable until it is passed
// to Do, which writes the head and turns it into a live exchange.
type Request struct {
	Method string
	URL    *httpx.URL
	Header httpx.Header
	ctx    context.Context
}

// HTTPProxyEnv is the environment variable name spec.md §6 names for
// client proxy routing ("examples use env var HTTP_PROXY=host:port").
const HTTPProxyEnv = "HTTP_PROXY"

// NewRequest builds a Fresh client request for method/rawURL. It inserts a
// Host header from the parsed URL.
func NewRequest(ctx context.Context, method, rawURL string) (*Request, error) {
	u, err := httpx.ParseRequestURI(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing request URL")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h := make(httpx.Header)
	if u.Host != "" {
		h.Set("Host", u.Host)
	}
	return &Request{Method: strings.ToUpper(method), URL: u, Header: h, ctx: ctx}, nil
}

// proxyTarget returns the dial address and request-target to use, honoring
// HTTP_PROXY per spec.md §6: when set, the request line carries an
// absolute-URI instead of a path, and the connection goes to the proxy.
func (r *Request) proxyTarget() (dialAddr, requestTarget string) {
	host := r.URL.Host
	if host == "" {
		host = r.Header.Get("Host")
	}
	if proxy := os.Getenv(HTTPProxyEnv); proxy != "" {
		target := r.URL.Path
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		scheme := r.URL.Scheme
		if scheme == "" {
			scheme = "http"
		}
		return proxy, fmt.Sprintf("%s://%s%s", scheme, host, target)
	}
	target := r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	return host, target
}

// Response is the client-side counterpart of server Response: a parsed
// status line, headers, and a streaming body reader.
type Response struct {
	StatusCode int
	Status     string
	Header     httpx.Header
	ProtoMajor int
	ProtoMinor int
	Body       io.ReadCloser

	conn net.Conn
}

// Close releases the underlying connection.
func (r *Response) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

// Do dials via connector (or a NetDialer with a 30s timeout if nil), writes the request head
// and body, and parses the response per C2/C3. body may be nil for a
// bodyless request.
func Do(ctx context.Context, req *Request, connector Connector, body io.Reader, bodyLen int64) (*Response, error) {
	if ctx == nil {
		ctx = req.ctx
	}
	if connector == nil {
		connector = NetDialer{Timeout: 30 * time.Second}
	}
	dialAddr, target := req.proxyTarget()
	if !strings.Contains(dialAddr, ":") {
		dialAddr += ":80"
	}

	conn, err := connector.Dial(ctx, "tcp", dialAddr)
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}

	if body != nil && req.Header.Get("Content-Length") == "" && req.Header.Get("Transfer-Encoding") == "" {
		if bodyLen >= 0 {
			req.Header.Set("Content-Length", strconv.FormatInt(bodyLen, 10))
		} else {
			req.Header.Set("Transfer-Encoding", "chunked")
		}
	}

	if err := writeRequestHead(conn, req.Method, target, req.Header); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "writing request head")
	}

	if body != nil {
		if err := streamRequestBody(conn, req.Header, body); err != nil {
			_ = conn.Close()
			return nil, errors.Wrap(err, "streaming request body")
		}
	}

	reader := netx.NewCRLFFastReader(conn)
	resp, err := parseResponse(ctx, reader, req.Method == "HEAD", conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	resp.conn = conn
	return resp, nil
}

func writeRequestHead(w io.Writer, method, target string, h httpx.Header) error {
	if _, err := fmt.Fprintf(w, "%s %s HTTP/1.1\r\n", method, target); err != nil {
		return err
	}
	return h.Write(w)
}

func streamRequestBody(w io.Writer, h httpx.Header, body io.Reader) error {
	if strings.EqualFold(h.Get("Transfer-Encoding"), "chunked") {
		buf := make([]byte, 32*1024)
		for {
			n, rerr := body.Read(buf)
			if n > 0 {
				if _, err := fmt.Fprintf(w, "%x\r\n", n); err != nil {
					return err
				}
				if _, err := w.Write(buf[:n]); err != nil {
					return err
				}
				if _, err := io.WriteString(w, "\r\n"); err != nil {
					return err
				}
			}
			if rerr == io.EOF {
				_, err := io.WriteString(w, "0\r\n\r\n")
				return err
			}
			if rerr != nil {
				return rerr
			}
		}
	}
	_, err := io.Copy(w, body)
	return err
}

func parseResponse(ctx context.Context, r *netx.CRLFFastReader, isHeadRequest bool, conn net.Conn) (*Response, error) {
	line, _, err := r.ReadLine(netx.MaxHeaderBytes)
	if err != nil {
		return nil, errors.Wrap(err, "reading status line")
	}
	parts := strings.SplitN(string(line), " ", 3)
	if len(parts) < 2 {
		return nil, errors.New("httpx: malformed status line")
	}
	major, minor, err := httpx.ParseVersion(parts[0])
	if err != nil {
		return nil, err
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil || code < 100 || code > 599 {
		return nil, errors.Wrap(httpx.ErrStatusInvalid, string(line))
	}
	reason := ""
	if len(parts) == 3 {
		reason = parts[2]
	}

	header, err := httpx.ParseHeaderBlock(r, netx.MaxHeaderBytes)
	if err != nil {
		return nil, errors.Wrap(err, "reading response headers")
	}

	framing, length, err := httpx.SelectFraming(header, httpx.FramingOptions{
		IsResponse:   true,
		HeadResponse: isHeadRequest,
		StatusCode:   code,
	})
	if err != nil {
		return nil, err
	}

	bodyR, err := httpx.NewBodyReader(ctx, framing, length, r, 0, header)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: code,
		Status:     reason,
		Header:     header,
		ProtoMajor: major,
		ProtoMinor: minor,
		Body:       bodyR,
	}, nil
}

