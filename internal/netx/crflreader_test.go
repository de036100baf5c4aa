package netx

import (
	"bufio"
	"bytes"
	"testing"
)

func TestReadLineCRLF(t *testing.T) {
	r := NewCRLFFastReader(bytes.NewBufferString("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))
	l, _, _ := r.ReadLine(4096)
	if string(l) != "GET / HTTP/1.1" {
		t.Fatal("first line mismatch")
	}
	l, _, _ = r.ReadLine(4096)
	if string(l) != "Host: x" {
		t.Fatal("header line mismatch")
	}
	l, _, _ = r.ReadLine(4096)
	if len(l) != 0 {
		t.Fatal("expected empty line before body")
	}
}

func TestReadLineMax(t *testing.T) {
	big := bytes.Repeat([]byte("a"), 10<<20)
	r := NewCRLFFastReader(bytes.NewReader(append(big, '\r', '\n')))
	_, _, err := r.ReadLine(1024)
	if err == nil {
		t.Fatal("expected ErrLineTooLong")
	}
}

func TestTolerateBareLF(t *testing.T) {
	r := NewCRLFFastReader(bytes.NewBufferString("Host: x\n\n"))
	l, _, _ := r.ReadLine(1024)
	if string(l) != "Host: x" {
		t.Fatalf("got %q", string(l))
	}
	l, _, _ = r.ReadLine(1024)
	if len(l) != 0 {
		t.Fatal("expected empty")
	}
}

func TestPeekBound(t *testing.T) {
	r := NewCRLFFastReader(bytes.NewBufferString("abc\r\n"))
	p, err := r.Peek(2)
	if err != nil {
		t.Fatal(err)
	}
	if string(p) != "ab" {
		t.Fatal(string(p))
	}
}

func TestStreamUntilTokenFound(t *testing.T) {
	r := NewCRLFFastReader(bytes.NewBufferString("hello world\r\n\r\nnext"))
	var sink bytes.Buffer
	n, found, err := r.StreamUntilToken([]byte("\r\n\r\n"), &sink)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected needle to be found")
	}
	if sink.String() != "hello world\r\n" {
		t.Fatalf("got %q", sink.String())
	}
	if n != int64(sink.Len()) {
		t.Fatalf("written count mismatch: %d vs %d", n, sink.Len())
	}

	rest, _, err := r.ReadLine(1024)
	if err != nil {
		t.Fatal(err)
	}
	if string(rest) != "next" {
		t.Fatalf("got %q", rest)
	}
}

func TestStreamUntilTokenNotFound(t *testing.T) {
	r := NewCRLFFastReader(bytes.NewBufferString("no boundary here"))
	var sink bytes.Buffer
	_, found, err := r.StreamUntilToken([]byte("--boundary"), &sink)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected needle not found")
	}
	if sink.String() != "no boundary here" {
		t.Fatalf("got %q", sink.String())
	}
}

func TestStreamUntilTokenStraddlesRefill(t *testing.T) {
	// Force a tiny internal buffer so the needle straddles refills.
	src := bytes.Repeat([]byte("x"), 100)
	src = append(src, []byte("--BOUNDARY--")...)
	r := &CRLFFastReader{br: bufio.NewReaderSize(bytes.NewReader(src), 16), bufSize: 16}

	var sink bytes.Buffer
	n, found, err := r.StreamUntilToken([]byte("--BOUNDARY--"), &sink)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected needle found across refills")
	}
	if n != 100 {
		t.Fatalf("expected 100 bytes before the needle, got %d", n)
	}
}
