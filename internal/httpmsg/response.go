package httpmsg

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Version はレスポンスで使う HTTP バージョン
const Version = "HTTP/1.1"

// Status はサポートするステータスコード
type Status int

const (
	StatusOK                  Status = 200
	StatusBadRequest          Status = 400
	StatusNotFound            Status = 404
	StatusInternalServerError Status = 500
	StatusNotImplemented      Status = 501
)

// Code は数値のステータスコードを返す
func (s Status) Code() int {
	return int(s)
}

// Message は理由フレーズを返す
func (s Status) Message() string {
	switch s {
	case StatusOK:
		return "Ok"
	case StatusBadRequest:
		return "Bad Request"
	case StatusNotFound:
		return "Not Found"
	case StatusInternalServerError:
		return "Internal Server Error"
	case StatusNotImplemented:
		return "Not Implemented"
	default:
		return "Unknown"
	}
}

func (s Status) String() string {
	return fmt.Sprintf("%d %s", s.Code(), s.Message())
}

const errorTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <title>Error {CODE}</title>
</head>
<body>
    <h1>{CODE}</h1>
    <p>{MESSAGE}</p>
</body>
</html>
`

const indexTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <title>Secret Black Site</title>
</head>
<body>
    <p>Your IP address is: {IP_ADDR}</p>
</body>
</html>
`

// Response は送信するレスポンス
type Response struct {
	Status  Status
	Headers map[string]string
	Body    string
}

func newHTMLResponse(status Status, body string) *Response {
	return &Response{
		Status: status,
		Headers: map[string]string{
			"Content-Type":   "text/html",
			"Content-Length": strconv.Itoa(len(body)),
			"Connection":     "close",
		},
		Body: body,
	}
}

// ErrorResponse はステータスを説明するエラーページを返す
func ErrorResponse(status Status) *Response {
	body := strings.NewReplacer(
		"{CODE}", strconv.Itoa(status.Code()),
		"{MESSAGE}", status.Message(),
	).Replace(errorTemplate)
	return newHTMLResponse(status, body)
}

// IndexResponse はクライアントの IP アドレスを表示するページを返す
func IndexResponse(ipAddr string) *Response {
	body := strings.ReplaceAll(indexTemplate, "{IP_ADDR}", ipAddr)
	return newHTMLResponse(StatusOK, body)
}

// Bytes はレスポンスをワイヤ形式に変換する。includeBody=false は HEAD 用
func (r *Response) Bytes(includeBody bool) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %d %s\r\n", Version, r.Status.Code(), r.Status.Message())

	keys := make([]string, 0, len(r.Headers))
	for k := range r.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\r\n", k, r.Headers[k])
	}

	b.WriteString("\r\n")
	if includeBody {
		b.WriteString(r.Body)
	}
	return b.Bytes()
}

// WriteTo はレスポンス全体を w に書き込む
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(r.Bytes(true))
	return int64(n), err
}

func (r *Response) String() string {
	return string(r.Bytes(true))
}
