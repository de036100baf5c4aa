package multipart

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mistnet/httpx/internal/httpx"
	"github.com/mistnet/httpx/internal/netx"
)

func formHeaders(boundary string) httpx.Header {
	h := make(httpx.Header)
	h.Set("Content-Type", "multipart/form-data; boundary="+boundary)
	return h
}

func TestReadFormDataFieldsOnly(t *testing.T) {
	boundary := "XYZ"
	body := "" +
		"--XYZ\r\n" +
		"Content-Disposition: form-data; name=\"title\"\r\n\r\n" +
		"hello world\r\n" +
		"--XYZ\r\n" +
		"Content-Disposition: form-data; name=\"count\"\r\n\r\n" +
		"42\r\n" +
		"--XYZ--"

	r := netx.NewCRLFFastReader(strings.NewReader(body))
	form, err := ReadFormData(r, formHeaders(boundary), nil)
	require.NoError(t, err)
	require.Len(t, form.Fields, 2)
	require.Equal(t, "title", form.Fields[0].Name)
	require.Equal(t, "hello world", string(form.Fields[0].Value))
	require.Equal(t, "count", form.Fields[1].Name)
	require.Equal(t, "42", string(form.Fields[1].Value))
	require.Empty(t, form.Files)
}

func TestReadFormDataFilePartWithCustomSink(t *testing.T) {
	boundary := "ABC"
	body := "" +
		"--ABC\r\n" +
		"Content-Disposition: form-data; name=\"upload\"; filename=\"a.txt\"\r\n" +
		"Content-Type: text/plain\r\n\r\n" +
		"file contents here\r\n" +
		"--ABC--"

	var sink bytes.Buffer
	r := netx.NewCRLFFastReader(strings.NewReader(body))
	sinkFactory := FileSinkFactory(func(name, filename string, header httpx.Header) io.Writer {
		return &sink
	})
	form, err := ReadFormData(r, formHeaders(boundary), sinkFactory)
	require.NoError(t, err)
	require.Len(t, form.Files, 1)
	require.Equal(t, "upload", form.Files[0].Name)
	require.Equal(t, "a.txt", form.Files[0].Filename)
	require.Equal(t, "file contents here", sink.String())
	require.Equal(t, "", form.Files[0].Path())
}

func TestReadFormDataMissingBoundary(t *testing.T) {
	h := make(httpx.Header)
	h.Set("Content-Type", "multipart/form-data")
	r := netx.NewCRLFFastReader(strings.NewReader(""))
	_, err := ReadFormData(r, h, nil)
	require.ErrorIs(t, err, ErrBoundaryNotSpecified)
}

func TestReadFormDataNotMultipart(t *testing.T) {
	h := make(httpx.Header)
	h.Set("Content-Type", "application/json")
	r := netx.NewCRLFFastReader(strings.NewReader(""))
	_, err := ReadFormData(r, h, nil)
	require.ErrorIs(t, err, ErrNotMultipart)
}

func TestWriteMultipartRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	fields := []Field{{Name: "a", Value: []byte("1")}}
	err := WriteMultipart(&buf, "BOUND", fields, nil, nil)
	require.NoError(t, err)

	r := netx.NewCRLFFastReader(bytes.NewReader(buf.Bytes()))
	h := formHeaders("BOUND")
	form, err := ReadFormData(r, h, nil)
	require.NoError(t, err)
	require.Len(t, form.Fields, 1)
	require.Equal(t, "a", form.Fields[0].Name)
	require.Equal(t, "1", string(form.Fields[0].Value))
}
