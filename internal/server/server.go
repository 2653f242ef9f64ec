package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"poolhttpd/internal/events"
	"poolhttpd/internal/httpmsg"
	"poolhttpd/internal/logger"
	"poolhttpd/internal/metrics"
	"poolhttpd/internal/worker"
)

const component = "server"

// Config はサーバーの設定
type Config struct {
	Addr         string
	Threads      int
	BufferSize   int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Addr:         "127.0.0.1:7878",
		Threads:      4,
		BufferSize:   1024,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// Router は解析済みリクエストからレスポンスを組み立てる
type Router func(req *httpmsg.Request, clientIP string) *httpmsg.Response

// DefaultRouter は "/" だけを提供する
func DefaultRouter(req *httpmsg.Request, clientIP string) *httpmsg.Response {
	if req.Path != "/" {
		return httpmsg.ErrorResponse(httpmsg.StatusNotFound)
	}
	return httpmsg.IndexResponse(clientIP)
}

// Option はサーバーのオプション
type Option func(*Server)

// WithMetrics はリクエストメトリクスの記録先を設定する
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithCollector は Prometheus コレクターを設定する
func WithCollector(c *metrics.Collector) Option {
	return func(s *Server) { s.collector = c }
}

// WithEvents はイベントの発行先を設定する
func WithEvents(b *events.Bus) Option {
	return func(s *Server) { s.bus = b }
}

// WithRouter はルーターを差し替える
func WithRouter(r Router) Option {
	return func(s *Server) { s.router = r }
}

// Server は TCP リスナーと、接続ごとのジョブを実行するワーカープールを持つ
type Server struct {
	cfg       Config
	listener  net.Listener
	pool      *worker.Pool
	router    Router
	metrics   *metrics.Metrics
	collector *metrics.Collector
	bus       *events.Bus

	closing   atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New はアドレスにバインドし、Threads 個のワーカーを起動する。
// Threads が 1 未満の場合はバインド前にエラーを返す
func New(cfg Config, opts ...Option) (*Server, error) {
	if cfg.Threads < 1 {
		return nil, fmt.Errorf("server: %w", worker.ErrInvalidSize)
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}

	s := &Server{
		cfg:    cfg,
		router: DefaultRouter,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("server: unable to bind to %s: %w", cfg.Addr, err)
	}

	pool, err := worker.NewPoolWithConfig(worker.PoolConfig{
		NumWorkers: cfg.Threads,
		Name:       "pool",
		Hooks:      s.poolHooks(),
	})
	if err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("server: %w", err)
	}

	s.listener = ln
	s.pool = pool

	// ポート 0 指定時は実際のアドレスを出力する
	logger.Info(component, "Started server at addr: %s with %d threads", ln.Addr(), cfg.Threads)
	return s, nil
}

func (s *Server) poolHooks() worker.Hooks {
	var hooks worker.Hooks
	if s.collector != nil {
		hooks = hooks.Merge(s.collector.Hooks())
	}
	if s.bus != nil {
		bus := s.bus
		hooks = hooks.Merge(worker.Hooks{
			OnPanic: func(id int, v any) { bus.Publish(events.NewJobPanicEvent(id, v)) },
			OnExit:  func(id int) { bus.Publish(events.NewWorkerExitEvent(id)) },
		})
	}
	return hooks
}

// Addr はリスナーのアドレスを返す
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Pool はワーカープールを返す
func (s *Server) Pool() *worker.Pool {
	return s.pool
}

// Metrics はリクエストメトリクスを返す
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// Serve は接続を受け付け、接続ごとに 1 つのジョブをプールに送る。
// ctx のキャンセルまたは Close で nil を返す
func (s *Server) Serve(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.listener.Close()
		case <-stop:
		}
	}()

	var backoff time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closing.Load() || ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			logger.Warn(component, "Accept error: %v; retrying in %v", err, backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		if !s.pool.Submit(func() { s.handleConnection(conn) }) {
			logger.Warn(component, "Dropping connection from %s: pool is shutting down", conn.RemoteAddr())
			_ = conn.Close()
		}
	}
}

// Close はリスナーを閉じ、処理中の接続がすべて終わるまで待つ
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.closeErr = err
		}
		s.pool.Close()
		if s.bus != nil {
			s.bus.Publish(events.NewPoolClosedEvent("pool"))
		}
		logger.Info(component, "Server stopped")
	})
	return s.closeErr
}
