// Package server implements the connection-oriented worker model (C5):
// an accept loop that spawns one goroutine per connection, a per-connection
// keep-alive loop, the Expect: 100-continue handshake, and handler panic
// recovery.
package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/mistnet/httpx/extensions"
	"github.com/mistnet/httpx/internal/httpx"
	"github.com/mistnet/httpx/internal/netx"
	"github.com/mistnet/httpx/logx"
	"github.com/mistnet/httpx/metrics"
	"github.com/mistnet/httpx/rescue"
)

// RequestID is the per-request identifier threaded through logs and the
// extra container, keyed by its own type per extensions.Store's contract.
type RequestID string

// DefaultDrainCap bounds how many unread request-body bytes handle_one will
// discard before giving up and closing the connection (SPEC_FULL.md Open
// Question decision #3).
const DefaultDrainCap int64 = 64 << 10

// KeepAliveMode selects which of the two mutually exclusive keep-alive
// cancellation policies from spec.md §5 is active.
type KeepAliveMode int

const (
	// KeepAliveWaitTime stops reusing the connection once more than Wait has
	// passed since its keep-alive loop started; the check runs after each
	// completed request.
	KeepAliveWaitTime KeepAliveMode = iota
	// KeepAliveWaitError closes the connection after MaxErrors consecutive
	// transient errors on idle reads.
	KeepAliveWaitError
)

// KeepAlivePolicy configures exactly one of the two cancellation policies.
type KeepAlivePolicy struct {
	Mode      KeepAliveMode
	Wait      time.Duration // used when Mode == KeepAliveWaitTime
	MaxErrors int           // used when Mode == KeepAliveWaitError
}

// DefaultKeepAlivePolicy stops reusing a connection 120s after its
// keep-alive loop started. Idle waits between requests are bounded by
// Config.ReadTimeout, not by this policy.
func DefaultKeepAlivePolicy() KeepAlivePolicy {
	return KeepAlivePolicy{Mode: KeepAliveWaitTime, Wait: 120 * time.Second}
}

// Config controls connection-worker behavior. Zero values are replaced with
// sane defaults by New.
type Config struct {
	Address          string        `config:"address"`
	ReadTimeout      time.Duration `config:"readTimeout"`
	WriteTimeout     time.Duration `config:"writeTimeout"`
	MaxLineBytes     int           `config:"maxLineBytes"`
	MaxBodyBytes     int64         `config:"maxBodyBytes"`
	DrainCap         int64         `config:"drainCap"`
	KeepAlive        KeepAlivePolicy
}

func (c *Config) setDefaults() {
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.MaxLineBytes == 0 {
		c.MaxLineBytes = netx.MaxHeaderBytes
	}
	if c.DrainCap == 0 {
		c.DrainCap = DefaultDrainCap
	}
	if c.KeepAlive == (KeepAlivePolicy{}) {
		c.KeepAlive = DefaultKeepAlivePolicy()
	}
}

// Handler is the mandatory contract a user implements to answer requests.
type Handler interface {
	Handle(req *httpx.Request, res *httpx.Response)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(req *httpx.Request, res *httpx.Response)

func (f HandlerFunc) Handle(req *httpx.Request, res *httpx.Response) { f(req, res) }

// ContinueChecker is implemented by handlers that want to override the
// default Expect: 100-continue response (which always returns 100).
type ContinueChecker interface {
	CheckContinue(req *httpx.Request) int
}

// ConnectionStartHook and ConnectionEndHook are optional per-connection
// lifecycle hooks a Handler may also implement.
type ConnectionStartHook interface{ OnConnectionStart(peerAddr string) }
type ConnectionEndHook interface{ OnConnectionEnd(peerAddr string) }

// Server binds a Handler to connection-worker behavior over a net.Listener.
type Server struct {
	cfg     Config
	handler Handler
	log     logx.Logger
}

// New builds a Server. log defaults to logx.Std() if nil.
func New(cfg Config, handler Handler, log logx.Logger) *Server {
	cfg.setDefaults()
	if log == nil {
		log = logx.Std()
	}
	return &Server{cfg: cfg, handler: handler, log: log}
}

// Listening is returned by Listen; closing it joins the accept loop.
type Listening struct {
	Addr     net.Addr
	listener net.Listener
	wg       sync.WaitGroup
	once     sync.Once
}

// Close stops accepting new connections and waits for the accept loop to
// exit. It neither waits for nor terminates connections already being
// served.
func (l *Listening) Close() error {
	var err error
	l.once.Do(func() {
		err = l.listener.Close()
	})
	l.wg.Wait()
	return err
}

// Listen binds the configured address and spawns the accept loop. wrap, if
// non-nil, is applied to each accepted net.Conn before the HTTP worker takes
// over (used for TLS; see the tls package).
func (s *Server) Listen(wrap func(net.Conn) (net.Conn, error)) (*Listening, error) {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return nil, errors.Wrap(err, "listen")
	}
	l := &Listening{Addr: ln.Addr(), listener: ln}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		s.acceptLoop(ln, wrap)
	}()
	s.log.Infof("server listening on %s", ln.Addr())
	return l, nil
}

func (s *Server) acceptLoop(ln net.Listener, wrap func(net.Conn) (net.Conn, error)) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warnf("accept: %v", err)
			continue
		}
		if wrap != nil {
			wrapped, werr := wrap(conn)
			if werr != nil {
				s.log.Warnf("tls wrap: %v", werr)
				_ = conn.Close()
				continue
			}
			conn = wrapped
		}
		metrics.ConnectionsTotal.Inc()
		go s.perConnection(conn)
	}
}

func (s *Server) perConnection(conn net.Conn) {
	metrics.ConnectionsActive.Inc()
	defer metrics.ConnectionsActive.Dec()

	peer := conn.RemoteAddr().String()
	if hook, ok := s.handler.(ConnectionStartHook); ok {
		hook.OnConnectionStart(peer)
	}
	defer func() {
		if hook, ok := s.handler.(ConnectionEndHook); ok {
			hook.OnConnectionEnd(peer)
		}
		_ = conn.Close()
	}()

	reader := netx.NewCRLFFastReader(conn)
	loopStart := time.Now()
	consecutiveErrors := 0

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		keepAlive, idleTimeout := s.handleOne(conn, reader, peer)

		if idleTimeout {
			consecutiveErrors++
			if s.cfg.KeepAlive.Mode == KeepAliveWaitError && consecutiveErrors < s.cfg.KeepAlive.MaxErrors {
				continue
			}
			return
		}
		consecutiveErrors = 0

		if !keepAlive {
			return
		}

		if s.cfg.KeepAlive.Mode == KeepAliveWaitTime && time.Since(loopStart) > s.cfg.KeepAlive.Wait {
			return
		}
	}
}

// handleOne reads one request, runs the 100-continue handshake if asked,
// dispatches to the handler with panic recovery, drains any unread body,
// and reports whether the connection should stay open for another request.
// idleTimeout reports a read deadline expiring while waiting for the next
// request's head (as opposed to a hard parse failure or peer close), which
// KeepAliveWaitError counts toward its consecutive-error budget instead of
// closing immediately.
func (s *Server) handleOne(conn net.Conn, reader *netx.CRLFFastReader, peer string) (keepAlive, idleTimeout bool) {
	start := time.Now()
	ctx := context.Background()

	req, err := httpx.ParseRequest(ctx, reader, peer, httpx.ParseLimits{MaxLineBytes: s.cfg.MaxLineBytes}, s.cfg.MaxBodyBytes)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return false, false // peer closed cleanly between requests
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return false, true // idle read deadline, no request ever started
		}
		s.log.Debugf("request parse failed from %s: %v", peer, err)
		return false, false
	}

	reqID := RequestID(uuid.NewString())
	extensions.SetUnsynchronized(req.Extra, reqID)
	s.log.Debugf("request %s %s (id=%s) from %s", req.Method, req.RequestURI, reqID, peer)

	if wantsContinue(req.Header) {
		status := 100
		if cc, ok := s.handler.(ContinueChecker); ok {
			status = cc.CheckContinue(req)
		}
		phrase := httpx.StatusText(status)
		if phrase == "" {
			phrase = fmt.Sprintf("%d", status)
		}
		if _, werr := io.WriteString(conn, fmt.Sprintf("HTTP/1.1 %d %s\r\n\r\n", status, phrase)); werr != nil {
			return false, false
		}
		if status != 100 {
			return false, false
		}
	}

	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	res := httpx.NewResponse(ctx, conn, req.ProtoMajor, req.ProtoMinor, req.Method == "HEAD")

	s.dispatch(req, res)

	if err := drainBody(req, s.cfg.DrainCap); err != nil {
		s.log.Debugf("draining request body from %s: %v", peer, err)
		return false, false
	}

	metrics.RequestDuration.Observe(time.Since(start).Seconds())
	classifyStatus(res.StatusCode)

	if res.CloseAfterReply() {
		return false, false
	}

	// Either side naming close ends the connection: an HTTP/1.0 client that
	// never asked for keep-alive, or a request carrying "Connection: close"
	// against a response that otherwise allows it, must not be kept open.
	reqKeepAlive := shouldKeepAlive(req.ProtoMajor, req.ProtoMinor, req.Header)
	resKeepAlive := shouldKeepAlive(req.ProtoMajor, req.ProtoMinor, res.Header)
	return reqKeepAlive && resKeepAlive, false
}

// dispatch invokes the handler with panic recovery: a panic forces status
// 500 (if the response is still Fresh) before the response is finalized.
func (s *Server) dispatch(req *httpx.Request, res *httpx.Response) {
	defer func() {
		if r := recover(); r != nil {
			res.ForceStatus(500)
			for _, fn := range rescue.PanicHandlers {
				fn(r)
			}
		}
		if err := res.FinalizeIfFresh(); err != nil {
			s.log.Debugf("finalizing dropped response: %v", err)
		}
	}()
	s.handler.Handle(req, res)
}

func classifyStatus(code int) {
	class := fmt.Sprintf("%dxx", code/100)
	metrics.RequestsTotal.WithLabelValues(class).Inc()
}

func wantsContinue(h httpx.Header) bool {
	return strings.EqualFold(strings.TrimSpace(h.Get("Expect")), "100-continue")
}

// drainBody discards any request body bytes the handler never read, up to
// cap bytes; exceeding cap is reported so the caller closes the connection
// instead of reusing it (SPEC_FULL.md Open Question decision #3).
func drainBody(req *httpx.Request, cap int64) error {
	if req.Body == nil {
		return nil
	}
	defer req.Body.Close()

	limited := io.LimitReader(req.Body, cap+1)
	n, err := io.Copy(io.Discard, limited)
	if err != nil && !errors.Is(err, io.EOF) {
		var merr *multierror.Error
		merr = multierror.Append(merr, err)
		if cerr := req.Body.Close(); cerr != nil {
			merr = multierror.Append(merr, cerr)
		}
		return merr.ErrorOrNil()
	}
	if n > cap {
		return errors.Errorf("unread body exceeds drain cap of %d bytes", cap)
	}
	return nil
}

// shouldKeepAlive implements spec.md §4.5's should_keep_alive: HTTP/1.0
// requires an explicit "keep-alive" token; HTTP/1.1 keeps alive unless
// "close" is present.
func shouldKeepAlive(major, minor int, respHeaders httpx.Header) bool {
	conn := strings.ToLower(respHeaders.Get("Connection"))
	tokens := strings.Split(conn, ",")
	has := func(tok string) bool {
		for _, t := range tokens {
			if strings.TrimSpace(t) == tok {
				return true
			}
		}
		return false
	}

	if major == 1 && minor == 0 {
		return has("keep-alive")
	}
	return !has("close")
}
