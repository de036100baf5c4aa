package client

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mistnet/httpx/internal/httpx"
)

func TestNewRequestSetsHostHeader(t *testing.T) {
	req, err := NewRequest(context.Background(), "get", "http://example.com/widgets?x=1")
	require.NoError(t, err)
	require.Equal(t, "GET", req.Method)
	require.Equal(t, "example.com", req.Header.Get("Host"))
}

func TestProxyTargetNoProxy(t *testing.T) {
	t.Setenv(HTTPProxyEnv, "")
	req, err := NewRequest(context.Background(), "GET", "http://example.com/widgets?x=1")
	require.NoError(t, err)
	dialAddr, target := req.proxyTarget()
	require.Equal(t, "example.com", dialAddr)
	require.Equal(t, "/widgets?x=1", target)
}

func TestProxyTargetWithProxy(t *testing.T) {
	t.Setenv(HTTPProxyEnv, "proxy.local:8080")
	req, err := NewRequest(context.Background(), "GET", "http://example.com/widgets")
	require.NoError(t, err)
	dialAddr, target := req.proxyTarget()
	require.Equal(t, "proxy.local:8080", dialAddr)
	require.Equal(t, "http://example.com/widgets", target)
}

// pipeConnector dials by handing back one end of a net.Pipe, with the other
// end served by a hand-rolled HTTP/1.1 responder goroutine.
type pipeConnector struct{ conn net.Conn }

func (p pipeConnector) Dial(ctx context.Context, network, addr string) (net.Conn, error) {
	return p.conn, nil
}

func TestDoParsesResponse(t *testing.T) {
	client, server := net.Pipe()
	go func() {
		r := bufio.NewReader(server)
		_, _ = r.ReadString('\n') // request line
		for {
			line, err := r.ReadString('\n')
			if err != nil || line == "\r\n" {
				break
			}
		}
		_, _ = io.WriteString(server, "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello")
		_ = server.Close()
	}()

	req, err := NewRequest(context.Background(), "GET", "http://example.com/")
	require.NoError(t, err)

	resp, err := Do(context.Background(), req, pipeConnector{conn: client}, nil, 0)
	require.NoError(t, err)
	defer resp.Close()

	require.Equal(t, 200, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "hello", string(body))
}

func TestStreamRequestBodyChunked(t *testing.T) {
	header := make(httpx.Header)
	header.Set("Transfer-Encoding", "chunked")

	var buf strings.Builder
	err := streamRequestBody(&buf, header, strings.NewReader("abc"))
	require.NoError(t, err)
	require.Contains(t, buf.String(), "3\r\nabc\r\n")
	require.Contains(t, buf.String(), "0\r\n\r\n")
}
