// Package httpmsg parses raw HTTP/1.1 request heads and renders plain-text
// responses for the connection handler.
//
// Only the request line and "Key: Value" header lines are understood;
// bodies, keep-alive and chunked encoding are not. Header names and values
// are checked with golang.org/x/net/http/httpguts.
//
//	req, err := httpmsg.ParseRequest(string(buf[:n]))
//	if err != nil {
//	    resp := httpmsg.ErrorResponse(httpmsg.StatusBadRequest)
//	    conn.Write(resp.Bytes(true))
//	}
package httpmsg
