// Package router implements the exact-path router and middleware chain
// (C6): a string-keyed handler map, an ordered middleware chain with
// short-circuit semantics, and a concurrent typed container shared by every
// route.
package router

import (
	"strings"
	"sync"

	"github.com/mistnet/httpx/extensions"
	"github.com/mistnet/httpx/internal/httpx"
)

// Handler answers a request once the router has decided to dispatch to it.
type Handler interface {
	Handle(req *httpx.Request, res *httpx.Response)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(req *httpx.Request, res *httpx.Response)

func (f HandlerFunc) Handle(req *httpx.Request, res *httpx.Response) { f(req, res) }

// Middleware receives the request and a mutable "response slot". Calling
// Take on the slot claims it as the final response: per spec.md §4.6, once
// a middleware takes the slot, no later middleware or handler runs. Taking
// is the move-out substitute (spec.md §9) for a language without an
// Option<Response> that can be consumed.
type Middleware interface {
	Serve(req *httpx.Request, slot *ResponseSlot)
}

// MiddlewareFunc adapts a function to Middleware.
type MiddlewareFunc func(req *httpx.Request, slot *ResponseSlot)

func (f MiddlewareFunc) Serve(req *httpx.Request, slot *ResponseSlot) { f(req, slot) }

// ResponseSlot holds the Response a middleware or handler may claim. Once
// Take is called the slot is considered handled and every later stage in
// the chain must check Handled before touching the Response.
type ResponseSlot struct {
	res     *httpx.Response
	handled bool
}

// Response returns the underlying Response, whether or not it has been
// taken; middleware that only wants to inspect/modify headers before the
// route runs does not need to call Take.
func (s *ResponseSlot) Response() *httpx.Response { return s.res }

// Take claims the slot as final: later middleware and the route handler
// will not run.
func (s *ResponseSlot) Take() { s.handled = true }

// Handled reports whether a prior stage has already claimed the slot.
func (s *ResponseSlot) Handled() bool { return s.handled }

// Container is the concurrent, heterogeneous typed key-value store shared
// by every route (spec.md §4.6, "Route container"). Reads never block each
// other; writes are serialized. It is a thin adapter over extensions.Store
// since the router's values are also typed by runtime identity rather than
// by an explicit string key, matching §9's design note.
type Container struct {
	store *extensions.Store
}

func NewContainer() *Container { return &Container{store: extensions.New()} }

func ContainerSet[T any](c *Container, v T) { extensions.Set(c.store, v) }
func ContainerGet[T any](c *Container) (T, bool) {
	return extensions.Get[T](c.store)
}

// Mux is the C6 router: exact-string path matching (the query string is
// stripped before lookup), an ordered middleware chain, and a shared
// Container. Route registration is expected to happen before Serve is
// called concurrently (spec.md §5's "restricted to before the server
// starts accepting" option); the map itself is additionally guarded by a
// RWMutex so registration after start-up is still safe, just serialized.
type Mux struct {
	mu         sync.RWMutex
	routes     map[string]Handler
	middleware []Middleware
	Container  *Container
}

// New returns an empty Mux with its own Container.
func New() *Mux {
	return &Mux{
		routes:    make(map[string]Handler),
		Container: NewContainer(),
	}
}

// Handle registers h for the exact path p.
func (m *Mux) Handle(path string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[path] = h
}

// HandleFunc registers a plain function for the exact path p.
func (m *Mux) HandleFunc(path string, f func(req *httpx.Request, res *httpx.Response)) {
	m.Handle(path, HandlerFunc(f))
}

// Use appends mw to the middleware chain, run in registration order ahead
// of every route lookup.
func (m *Mux) Use(mw Middleware) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.middleware = append(m.middleware, mw)
}

// Serve runs the middleware chain, then — unless a middleware already took
// the response — looks up the route by exact path and dispatches to it. If
// no route matches, the response is set to 404 and dropped (matching
// spec.md's "response is set to 404 and the Response is dropped"), which
// emits the head via Response.FinalizeIfFresh.
func (m *Mux) Serve(req *httpx.Request, res *httpx.Response) {
	m.mu.RLock()
	middleware := make([]Middleware, len(m.middleware))
	copy(middleware, m.middleware)
	m.mu.RUnlock()

	slot := &ResponseSlot{res: res}
	for _, mw := range middleware {
		mw.Serve(req, slot)
		if slot.Handled() {
			return
		}
	}

	path := pathOnly(req.URL.Path)
	m.mu.RLock()
	h, ok := m.routes[path]
	m.mu.RUnlock()
	if !ok {
		res.ForceStatus(404)
		return
	}
	h.Handle(req, res)
}

func pathOnly(uri string) string {
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		return uri[:i]
	}
	return uri
}
