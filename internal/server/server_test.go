package server

import (
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poolhttpd/internal/events"
	"poolhttpd/internal/httpmsg"
	"poolhttpd/internal/metrics"
	"poolhttpd/internal/worker"
)

func testConfig(threads int) Config {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.Threads = threads
	cfg.ReadTimeout = time.Second
	cfg.WriteTimeout = time.Second
	return cfg
}

// startServer starts a server on a random port and stops it when the test ends.
func startServer(t *testing.T, cfg Config, opts ...Option) *Server {
	t.Helper()

	srv, err := New(cfg, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-served:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("Serve did not return after cancel")
		}
		assert.NoError(t, srv.Close())
	})
	return srv
}

func roundTrip(t *testing.T, addr net.Addr, raw string) string {
	t.Helper()

	resp, err := dialAndRead(addr, raw)
	require.NoError(t, err)
	return resp
}

func dialAndRead(addr net.Addr, raw string) (string, error) {
	conn, err := net.DialTimeout("tcp", addr.String(), time.Second)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(2 * time.Second)); err != nil {
		return "", err
	}
	if _, err := conn.Write([]byte(raw)); err != nil {
		return "", err
	}
	resp, err := io.ReadAll(conn)
	return string(resp), err
}

func TestServerRoutes(t *testing.T) {
	srv := startServer(t, testConfig(2))

	tests := []struct {
		name       string
		raw        string
		statusLine string
		contains   string
	}{
		{"index", "GET / HTTP/1.1\r\nHost: localhost\r\n\r\n", "HTTP/1.1 200 Ok", "Your IP address is: 127.0.0.1"},
		{"lowercase method", "get / HTTP/1.1\r\n\r\n", "HTTP/1.1 200 Ok", "Your IP address is"},
		{"not found", "GET /missing HTTP/1.1\r\n\r\n", "HTTP/1.1 404 Not Found", "<h1>404</h1>"},
		{"not implemented", "POST / HTTP/1.1\r\n\r\n", "HTTP/1.1 501 Not Implemented", "<p>Not Implemented</p>"},
		{"bad request", "garbage\r\n\r\n", "HTTP/1.1 400 Bad Request", "<h1>400</h1>"},
		{"bad header", "GET / HTTP/1.1\r\nBad Header: x\r\n\r\n", "HTTP/1.1 400 Bad Request", "Bad Request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := roundTrip(t, srv.Addr(), tt.raw)
			assert.True(t, strings.HasPrefix(resp, tt.statusLine+"\r\n"), "got %q", resp)
			assert.Contains(t, resp, tt.contains)
			assert.Contains(t, resp, "\r\n\r\n")
		})
	}
}

func TestServerHeadOmitsBody(t *testing.T) {
	srv := startServer(t, testConfig(1))

	resp := roundTrip(t, srv.Addr(), "HEAD / HTTP/1.1\r\n\r\n")
	assert.True(t, strings.HasPrefix(resp, "HTTP/1.1 200 Ok\r\n"))
	assert.Contains(t, resp, "Content-Length: ")
	assert.True(t, strings.HasSuffix(resp, "\r\n\r\n"), "HEAD response must end after headers: %q", resp)
}

func TestServerRouterPanicBecomes500(t *testing.T) {
	router := func(*httpmsg.Request, string) *httpmsg.Response { panic("router bug") }
	srv := startServer(t, testConfig(1), WithRouter(router))

	resp := roundTrip(t, srv.Addr(), "GET / HTTP/1.1\r\n\r\n")
	assert.True(t, strings.HasPrefix(resp, "HTTP/1.1 500 Internal Server Error\r\n"), "got %q", resp)

	// The single worker must still be serving
	resp = roundTrip(t, srv.Addr(), "POST / HTTP/1.1\r\n\r\n")
	assert.True(t, strings.HasPrefix(resp, "HTTP/1.1 501 "))
	assert.Zero(t, srv.Pool().Stats().Panicked)
}

func TestServerRouterNilResponse(t *testing.T) {
	router := func(*httpmsg.Request, string) *httpmsg.Response { return nil }
	srv := startServer(t, testConfig(1), WithRouter(router))

	resp := roundTrip(t, srv.Addr(), "GET / HTTP/1.1\r\n\r\n")
	assert.True(t, strings.HasPrefix(resp, "HTTP/1.1 500 "), "got %q", resp)
}

func TestServerConcurrentConnections(t *testing.T) {
	srv := startServer(t, testConfig(2))

	const clients = 20
	var wg sync.WaitGroup
	results := make(chan string, clients)
	for _i := 0; _i < clients; _i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := dialAndRead(srv.Addr(), "GET / HTTP/1.1\r\n\r\n")
			if err != nil {
				resp = err.Error()
			}
			results <- resp
		}()
	}
	wg.Wait()
	close(results)

	for resp := range results {
		assert.True(t, strings.HasPrefix(resp, "HTTP/1.1 200 Ok\r\n"))
	}
	require.Eventually(t, func() bool {
		return srv.Metrics().TotalRequests() == clients
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(clients), srv.Metrics().StatusCounts()[200])
}

func TestServerZeroThreads(t *testing.T) {
	srv, err := New(testConfig(0))
	assert.Nil(t, srv)
	assert.ErrorIs(t, err, worker.ErrInvalidSize)
}

func TestServerBindError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig(1)
	cfg.Addr = ln.Addr().String()
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestServerCloseWaitsForConnections(t *testing.T) {
	srv, err := New(testConfig(1))
	require.NoError(t, err)
	go func() { _ = srv.Serve(context.Background()) }()

	// A client that connects but is slow to send keeps the job in flight
	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return srv.Pool().Stats().Busy == 1
	}, time.Second, 5*time.Millisecond)

	closed := make(chan struct{})
	go func() {
		_ = srv.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a connection was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	_, err = conn.Write([]byte("GET / HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after the connection finished")
	}

	stats := srv.Pool().Stats()
	assert.Equal(t, int64(1), stats.TerminatesSent)
	assert.Equal(t, int64(1), stats.Joined)
}

func TestServerClientClosesWithoutRequest(t *testing.T) {
	srv := startServer(t, testConfig(1))

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return srv.Metrics().FailedRequests() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestServerPublishesEventsAndMetrics(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe()
	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector("test", reg)
	require.NoError(t, err)

	srv, err := New(testConfig(2), WithEvents(bus), WithCollector(collector))
	require.NoError(t, err)
	go func() { _ = srv.Serve(context.Background()) }()

	roundTrip(t, srv.Addr(), "GET /nope HTTP/1.1\r\n\r\n")
	require.NoError(t, srv.Close())

	var served, exits, closed int
	for done := false; !done; {
		select {
		case ev := <-sub:
			switch ev.Type {
			case events.EventRequestServed:
				served++
				assert.Equal(t, 404, ev.Data.Status)
				assert.Equal(t, "/nope", ev.Data.Path)
			case events.EventWorkerExit:
				exits++
			case events.EventPoolClosed:
				closed++
			}
		case <-time.After(100 * time.Millisecond):
			done = true
		}
	}
	assert.Equal(t, 1, served)
	assert.Equal(t, 2, exits)
	assert.Equal(t, 1, closed)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.Responses.WithLabelValues("404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.JobsSubmitted))
}

func TestServerServeAfterClose(t *testing.T) {
	srv, err := New(testConfig(1))
	require.NoError(t, err)
	require.NoError(t, srv.Close())
	require.NoError(t, srv.Close())

	err = srv.Serve(context.Background())
	assert.NoError(t, err)
}

func TestClientIP(t *testing.T) {
	assert.Equal(t, "10.1.2.3", clientIP("10.1.2.3:4567"))
	assert.Equal(t, "::1", clientIP("[::1]:80"))
	assert.Equal(t, "pipe", clientIP("pipe"))
}
