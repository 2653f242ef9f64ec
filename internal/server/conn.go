package server

import (
	"errors"
	"net"
	"time"

	"github.com/google/uuid"

	"poolhttpd/internal/events"
	"poolhttpd/internal/httpmsg"
	"poolhttpd/internal/logger"
)

// handleConnection は 1 つの接続を処理するジョブ本体。
// エラーはすべてここでレスポンスかログに変換され、プールには伝播しない
func (s *Server) handleConnection(conn net.Conn) {
	start := time.Now()
	connID := "conn-" + uuid.NewString()[:8]
	remote := conn.RemoteAddr().String()
	defer conn.Close()

	if s.cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(start.Add(s.cfg.ReadTimeout))
	}

	buf := make([]byte, s.cfg.BufferSize)
	n, err := conn.Read(buf)
	if n == 0 && err != nil {
		logger.Warn(connID, "Read from %s failed: %v", remote, err)
		s.metrics.RecordFailure(time.Since(start))
		return
	}

	req, parseErr := httpmsg.ParseRequest(string(buf[:n]))
	resp := s.buildResponse(connID, req, parseErr, clientIP(remote))

	includeBody := parseErr != nil || req.Method != httpmsg.MethodHead
	path := ""
	if req != nil {
		path = req.Path
	}

	if s.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	_, writeErr := conn.Write(resp.Bytes(includeBody))

	elapsed := time.Since(start)
	code := resp.Status.Code()
	s.metrics.RecordStatus(code)
	if s.collector != nil {
		s.collector.ObserveResponse(code)
	}

	if writeErr != nil {
		logger.Warn(connID, "Write to %s failed: %v", remote, writeErr)
		s.metrics.RecordFailure(elapsed)
		return
	}
	if code >= 500 {
		s.metrics.RecordFailure(elapsed)
	} else {
		s.metrics.RecordSuccess(elapsed)
	}

	logger.Debug(connID, "%s %q -> %s in %v", remote, path, resp.Status, elapsed)
	if s.bus != nil {
		s.bus.Publish(events.NewRequestServedEvent(connID, remote, path, code, elapsed))
	}
}

// buildResponse は解析結果からレスポンスを作る。ルーター内の panic は 500 になる
func (s *Server) buildResponse(connID string, req *httpmsg.Request, parseErr error, ip string) (resp *httpmsg.Response) {
	switch {
	case errors.Is(parseErr, httpmsg.ErrUnsupportedMethod):
		logger.Debug(connID, "Unsupported method: %v", parseErr)
		return httpmsg.ErrorResponse(httpmsg.StatusNotImplemented)
	case parseErr != nil:
		logger.Debug(connID, "Bad request: %v", parseErr)
		return httpmsg.ErrorResponse(httpmsg.StatusBadRequest)
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error(connID, "Router panic: %v", r)
			resp = httpmsg.ErrorResponse(httpmsg.StatusInternalServerError)
		}
	}()

	resp = s.router(req, ip)
	if resp == nil {
		logger.Error(connID, "Router returned no response for %s", req.Path)
		resp = httpmsg.ErrorResponse(httpmsg.StatusInternalServerError)
	}
	return resp
}

func clientIP(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}
