// Package tls implements the SslServer/SslClient wrap contract from
// spec.md §6, plus the mutex-guarded stream wrapper spec.md §5 requires
// because the TLS state machine is not re-entrant (a read may internally
// write during handshake/renegotiation, and vice versa).
package tls

import (
	"crypto/tls"
	"net"
	"sync"
	"time"
)

// Wrapper implements wrap_server/wrap_client: both return something
// satisfying net.Conn (this module's NetworkStream contract).
type Wrapper struct {
	ServerConfig *tls.Config
	ClientConfig *tls.Config
}

// WrapServer performs the server-side handshake wrap. The returned net.Conn
// serializes all read/write/flush/timeout calls through a single mutex.
func (w *Wrapper) WrapServer(conn net.Conn) (net.Conn, error) {
	return &guardedConn{Conn: tls.Server(conn, w.ServerConfig)}, nil
}

// WrapClient performs the client-side handshake wrap against host.
func (w *Wrapper) WrapClient(conn net.Conn, host string) (net.Conn, error) {
	cfg := w.ClientConfig
	if cfg == nil {
		cfg = &tls.Config{}
	}
	if cfg.ServerName == "" {
		cfg = cfg.Clone()
		cfg.ServerName = host
	}
	return &guardedConn{Conn: tls.Client(conn, cfg)}, nil
}

// guardedConn serializes every operation on the wrapped net.Conn behind a
// single mutex. Lock ordering: only one mutex is ever held at a time, so
// there is no cross-stream deadlock potential (spec.md §5).
type guardedConn struct {
	mu sync.Mutex
	net.Conn
}

func (g *guardedConn) Read(p []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Conn.Read(p)
}

func (g *guardedConn) Write(p []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Conn.Write(p)
}

func (g *guardedConn) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Conn.Close()
}

func (g *guardedConn) SetDeadline(t time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Conn.SetDeadline(t)
}

func (g *guardedConn) SetReadDeadline(t time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Conn.SetReadDeadline(t)
}

func (g *guardedConn) SetWriteDeadline(t time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Conn.SetWriteDeadline(t)
}
