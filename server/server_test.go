package server

import (
	"bufio"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mistnet/httpx/internal/httpx"
)

func TestShouldKeepAlive(t *testing.T) {
	h10close := make(httpx.Header)
	h10close.Set("Connection", "close")
	require.False(t, shouldKeepAlive(1, 0, h10close))

	h10ka := make(httpx.Header)
	h10ka.Set("Connection", "keep-alive")
	require.True(t, shouldKeepAlive(1, 0, h10ka))

	require.False(t, shouldKeepAlive(1, 0, make(httpx.Header)))

	h11 := make(httpx.Header)
	require.True(t, shouldKeepAlive(1, 1, h11))

	h11close := make(httpx.Header)
	h11close.Set("Connection", "close")
	require.False(t, shouldKeepAlive(1, 1, h11close))
}

func TestWantsContinue(t *testing.T) {
	h := make(httpx.Header)
	require.False(t, wantsContinue(h))
	h.Set("Expect", "100-continue")
	require.True(t, wantsContinue(h))
}

func TestDrainBodyWithinCap(t *testing.T) {
	ctx := context.Background()
	body, err := httpx.NewBodyReader(ctx, httpx.FramingSized, 5, bufReader("hello"), 0, make(httpx.Header))
	require.NoError(t, err)
	req := &httpx.Request{Body: body}
	require.NoError(t, drainBody(req, 64<<10))
}

func TestDrainBodyExceedsCap(t *testing.T) {
	ctx := context.Background()
	big := make([]byte, 100)
	body, err := httpx.NewBodyReader(ctx, httpx.FramingSized, int64(len(big)), bufReaderBytes(big), 0, make(httpx.Header))
	require.NoError(t, err)
	req := &httpx.Request{Body: body}
	require.Error(t, drainBody(req, 10))
}

func bufReader(s string) io.Reader { return bufReaderBytes([]byte(s)) }
func bufReaderBytes(b []byte) io.Reader {
	return bufio.NewReader(&byteReader{b: b})
}

type byteReader struct{ b []byte }

func (r *byteReader) Read(p []byte) (int, error) {
	if len(r.b) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.b)
	r.b = r.b[n:]
	return n, nil
}

// TestSimpleGetEndToEnd exercises the full accept loop against a real TCP
// listener, matching spec.md §8 scenario 1 ("Simple GET").
func TestSimpleGetEndToEnd(t *testing.T) {
	mux := HandlerFunc(func(req *httpx.Request, res *httpx.Response) {
		require.NoError(t, res.Send([]byte("Hello World!")))
	})
	srv := New(Config{Address: "127.0.0.1:0"}, mux, nil)
	listening, err := srv.Listen(nil)
	require.NoError(t, err)
	defer listening.Close()

	conn, err := net.DialTimeout("tcp", listening.Addr.String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET / HTTP/1.1\r\nHost: h\r\n\r\n"))
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	r := bufio.NewReader(conn)
	status, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "HTTP/1.1 200 OK\r\n", status)
}
