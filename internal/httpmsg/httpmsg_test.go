package httpmsg

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: localhost:7878\r\nUser-Agent: curl/8.0\r\nAccept: */*\r\n\r\n"

	req, err := ParseRequest(raw)
	require.NoError(t, err)
	assert.Equal(t, MethodGet, req.Method)
	assert.Equal(t, "/", req.Path)
	assert.Equal(t, "HTTP/1.1", req.Version)
	assert.Len(t, req.Headers, 3)

	host, ok := req.Header("Host")
	assert.True(t, ok)
	assert.Equal(t, "localhost:7878", host)
}

func TestParseRequestIgnoresBufferPadding(t *testing.T) {
	buf := make([]byte, 64)
	copy(buf, "HEAD /x HTTP/1.0\r\n")

	req, err := ParseRequest(string(buf))
	require.NoError(t, err)
	assert.Equal(t, MethodHead, req.Method)
	assert.Equal(t, "/x", req.Path)
	assert.Equal(t, "HTTP/1.0", req.Version)
}

func TestParseRequestHeaderValueWithSeparator(t *testing.T) {
	req, err := ParseRequest("GET / HTTP/1.1\r\nX-Note: a: b\r\n")
	require.NoError(t, err)
	assert.Equal(t, "a: b", req.Headers["X-Note"])
}

func TestParseRequestSkipsLinesWithoutSeparator(t *testing.T) {
	req, err := ParseRequest("GET / HTTP/1.1\r\nnot a header\r\nHost: x\r\n")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Host": "x"}, req.Headers)
}

func TestParseRequestErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"empty", "", ErrEmptyRequest},
		{"only padding", "\x00\x00\x00", ErrEmptyRequest},
		{"blank line", "\r\nHost: x\r\n", ErrEmptyRequest},
		{"method only", "GET\r\n", ErrMissingPath},
		{"no version", "GET /\r\n", ErrMissingVersion},
		{"post", "POST / HTTP/1.1\r\n", ErrUnsupportedMethod},
		{"bad header name", "GET / HTTP/1.1\r\nBad Name: x\r\n", ErrMalformedHeader},
		{"bad header value", "GET / HTTP/1.1\r\nX-Ctl: a\x01b\r\n", ErrMalformedHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRequest(tt.raw)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in   string
		want Method
		ok   bool
	}{
		{"GET", MethodGet, true},
		{"get", MethodGet, true},
		{"Head", MethodHead, true},
		{"DELETE", 0, false},
	}
	for _, tt := range tests {
		m, err := ParseMethod(tt.in)
		if tt.ok {
			require.NoError(t, err, tt.in)
			assert.Equal(t, tt.want, m)
			continue
		}
		assert.ErrorIs(t, err, ErrUnsupportedMethod)
	}
	assert.Equal(t, "GET", MethodGet.String())
	assert.Equal(t, "HEAD", MethodHead.String())
}

func TestStatus(t *testing.T) {
	tests := []struct {
		status  Status
		code    int
		message string
	}{
		{StatusOK, 200, "Ok"},
		{StatusBadRequest, 400, "Bad Request"},
		{StatusNotFound, 404, "Not Found"},
		{StatusInternalServerError, 500, "Internal Server Error"},
		{StatusNotImplemented, 501, "Not Implemented"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, tt.status.Code())
		assert.Equal(t, tt.message, tt.status.Message())
	}
	assert.Equal(t, "404 Not Found", StatusNotFound.String())
}

func TestErrorResponse(t *testing.T) {
	resp := ErrorResponse(StatusNotFound)

	assert.Equal(t, StatusNotFound, resp.Status)
	assert.Contains(t, resp.Body, "<title>Error 404</title>")
	assert.Contains(t, resp.Body, "<p>Not Found</p>")
	assert.Equal(t, "text/html", resp.Headers["Content-Type"])
	assert.Equal(t, len(resp.Body), mustAtoi(t, resp.Headers["Content-Length"]))
}

func TestIndexResponse(t *testing.T) {
	resp := IndexResponse("10.0.0.7")

	assert.Equal(t, StatusOK, resp.Status)
	assert.Contains(t, resp.Body, "Your IP address is: 10.0.0.7")
	assert.NotContains(t, resp.Body, "{IP_ADDR}")
}

func TestResponseBytes(t *testing.T) {
	resp := &Response{
		Status:  StatusOK,
		Headers: map[string]string{"Content-Length": "5", "A-First": "1"},
		Body:    "hello",
	}

	assert.Equal(t, "HTTP/1.1 200 Ok\r\nA-First: 1\r\nContent-Length: 5\r\n\r\nhello", string(resp.Bytes(true)))
	assert.Equal(t, "HTTP/1.1 200 Ok\r\nA-First: 1\r\nContent-Length: 5\r\n\r\n", string(resp.Bytes(false)))
}

func TestResponseWriteTo(t *testing.T) {
	resp := ErrorResponse(StatusBadRequest)
	var buf bytes.Buffer

	n, err := resp.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	assert.True(t, strings.HasPrefix(buf.String(), "HTTP/1.1 400 Bad Request\r\n"))
	assert.True(t, strings.HasSuffix(buf.String(), resp.Body))
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	n, err := strconv.Atoi(s)
	require.NoError(t, err)
	return n
}
