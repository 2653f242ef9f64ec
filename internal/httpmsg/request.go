package httpmsg

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// リクエスト解析エラー
var (
	ErrEmptyRequest      = errors.New("httpmsg: empty request")
	ErrMissingPath       = errors.New("httpmsg: missing request path")
	ErrMissingVersion    = errors.New("httpmsg: missing HTTP version")
	ErrUnsupportedMethod = errors.New("httpmsg: unsupported method")
	ErrMalformedHeader   = errors.New("httpmsg: malformed header")
)

// Method はサポートする HTTP メソッド
type Method int

const (
	MethodGet Method = iota
	MethodHead
)

func (m Method) String() string {
	switch m {
	case MethodGet:
		return "GET"
	case MethodHead:
		return "HEAD"
	default:
		return "UNKNOWN"
	}
}

// ParseMethod はメソッド名を大文字小文字を区別せずに解析する
func ParseMethod(s string) (Method, error) {
	switch strings.ToUpper(s) {
	case "GET":
		return MethodGet, nil
	case "HEAD":
		return MethodHead, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedMethod, s)
	}
}

// Request は解析済みのリクエスト
type Request struct {
	Method  Method
	Path    string
	Version string
	Headers map[string]string
}

// Header はヘッダー値を返す
func (r *Request) Header(key string) (string, bool) {
	v, ok := r.Headers[key]
	return v, ok
}

// ParseRequest はリクエスト行とヘッダーを解析する。
// 固定長バッファ由来の末尾の NUL は無視される
func ParseRequest(raw string) (*Request, error) {
	raw = strings.TrimRight(raw, "\x00")

	lines := strings.Split(raw, "\r\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return nil, ErrEmptyRequest
	}

	parts := strings.Fields(lines[0])
	if len(parts) == 0 {
		return nil, ErrEmptyRequest
	}
	if len(parts) < 2 {
		return nil, ErrMissingPath
	}
	if len(parts) < 3 {
		return nil, ErrMissingVersion
	}

	method, err := ParseMethod(parts[0])
	if err != nil {
		return nil, err
	}

	req := &Request{
		Method:  method,
		Path:    parts[1],
		Version: parts[2],
		Headers: make(map[string]string),
	}

	for _, line := range lines[1:] {
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		if !httpguts.ValidHeaderFieldName(key) || !httpguts.ValidHeaderFieldValue(value) {
			return nil, fmt.Errorf("%w: %q", ErrMalformedHeader, line)
		}
		req.Headers[key] = value
	}

	return req, nil
}
