package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/websocket"

	"poolhttpd/internal/events"
	"poolhttpd/internal/logger"
	"poolhttpd/internal/metrics"
	"poolhttpd/internal/worker"
)

const component = "api"

// PoolInspector はプールの状態を参照するためのインターフェース
type PoolInspector interface {
	NumWorkers() int
	Stats() worker.Stats
	WorkerStates() []worker.State
}

// Server は管理用 API サーバー
type Server struct {
	addr     string
	pool     PoolInspector
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	bus      *events.Bus

	mu        sync.RWMutex
	wsClients map[*websocket.Conn]bool

	router *mux.Router
	server *http.Server
}

// NewServer は新しい管理 API サーバーを作成する。bus と gatherer は nil でもよい
func NewServer(addr string, pool PoolInspector, m *metrics.Metrics, gatherer prometheus.Gatherer, bus *events.Bus) *Server {
	s := &Server{
		addr:      addr,
		pool:      pool,
		metrics:   m,
		gatherer:  gatherer,
		bus:       bus,
		wsClients: make(map[*websocket.Conn]bool),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/workers", s.handleWorkers).Methods(http.MethodGet)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	r.Handle("/ws", websocket.Handler(s.handleWebSocket))

	return r
}

// Handler は HTTP ハンドラーを返す
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start はサーバーを開始し、ctx のキャンセルで停止する
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go s.broadcastLoop(ctx)

	logger.Info(component, "Admin API starting on http://%s", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StatusResponse はステータスレスポンス
type StatusResponse struct {
	Workers int              `json:"workers"`
	Pool    worker.Stats     `json:"pool"`
	Metrics metrics.Snapshot `json:"metrics"`
}

func (s *Server) status() StatusResponse {
	return StatusResponse{
		Workers: s.pool.NumWorkers(),
		Pool:    s.pool.Stats(),
		Metrics: s.metrics.Snapshot(),
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.status())
}

// WorkerInfo はワーカー情報
type WorkerInfo struct {
	ID    int    `json:"id"`
	State string `json:"state"`
}

func (s *Server) handleWorkers(w http.ResponseWriter, _ *http.Request) {
	states := s.pool.WorkerStates()
	workers := make([]WorkerInfo, 0, len(states))
	for id, st := range states {
		workers = append(workers, WorkerInfo{ID: id, State: st.String()})
	}
	s.writeJSON(w, workers)
}

// WebSocket handling
func (s *Server) handleWebSocket(ws *websocket.Conn) {
	s.mu.Lock()
	s.wsClients[ws] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.wsClients, ws)
		s.mu.Unlock()
		_ = ws.Close()
	}()

	// Keep connection alive
	for {
		var msg string
		if err := websocket.Message.Receive(ws, &msg); err != nil {
			break
		}
	}
}

func (s *Server) clientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.wsClients)
}

func (s *Server) broadcast(data any) {
	s.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(s.wsClients))
	for ws := range s.wsClients {
		clients = append(clients, ws)
	}
	s.mu.RUnlock()

	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}

	for _, ws := range clients {
		_ = websocket.Message.Send(ws, string(jsonData))
	}
}

// broadcastLoop はバスのイベントと 1 秒ごとのステータスを WebSocket クライアントに配信する
func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	var eventCh <-chan events.Event
	if s.bus != nil {
		eventCh = s.bus.Subscribe()
		defer s.bus.Unsubscribe(eventCh)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-eventCh:
			if !ok {
				eventCh = nil
				continue
			}
			s.broadcast(map[string]any{
				"type":  "event",
				"event": ev,
			})
		case <-ticker.C:
			if s.clientCount() == 0 {
				continue
			}
			s.broadcast(map[string]any{
				"type":   "status",
				"status": s.status(),
			})
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error(component, "Failed to encode JSON: %v", err)
	}
}
