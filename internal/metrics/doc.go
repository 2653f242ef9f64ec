// Package metrics provides request metrics collection and reporting.
//
// Metrics collects statistics about request latency, success/failure rates,
// status codes and throughput (RPS). Collector exposes the same signals,
// plus worker pool activity, as Prometheus series.
//
// # Basic Usage
//
//	m := metrics.New()
//
//	start := time.Now()
//	// ... serve a connection ...
//	m.RecordStatus(200)
//	m.RecordSuccess(time.Since(start))
//
//	snap := m.Snapshot()
//
// # Prometheus
//
//	reg := prometheus.NewRegistry()
//	c, err := metrics.NewCollector("poolhttpd", reg)
//	pool, err := worker.NewPoolWithConfig(worker.PoolConfig{
//	    NumWorkers: 4,
//	    Hooks:      c.Hooks(),
//	})
//
// # Thread Safety
//
// All operations use atomic counters or locks and are safe for concurrent access.
package metrics
