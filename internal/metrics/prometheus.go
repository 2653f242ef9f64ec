package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"poolhttpd/internal/worker"
)

// Collector はワーカープールとレスポンスの Prometheus メトリクス
type Collector struct {
	JobsSubmitted prometheus.Counter
	JobsFinished  prometheus.Counter
	JobsPanicked  prometheus.Counter
	BusyWorkers   prometheus.Gauge
	JobLatency    prometheus.Histogram
	Responses     *prometheus.CounterVec
}

// NewCollector はコレクターを作成し reg に登録する
func NewCollector(namespace string, reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		JobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "jobs_submitted_total",
			Help:      "Total number of jobs accepted by the pool",
		}),
		JobsFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "jobs_finished_total",
			Help:      "Total number of jobs that returned or panicked",
		}),
		JobsPanicked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "jobs_panicked_total",
			Help:      "Total number of jobs recovered from a panic",
		}),
		BusyWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "busy_workers",
			Help:      "Current number of workers running a job",
		}),
		JobLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "job_duration_seconds",
			Help:      "Histogram of job execution time",
			Buckets:   prometheus.DefBuckets,
		}),
		Responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "responses_total",
			Help:      "Responses written, by status code",
		}, []string{"code"}),
	}

	for _, col := range []prometheus.Collector{
		c.JobsSubmitted,
		c.JobsFinished,
		c.JobsPanicked,
		c.BusyWorkers,
		c.JobLatency,
		c.Responses,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Hooks はプールのイベントをコレクターに反映する worker.Hooks を返す
func (c *Collector) Hooks() worker.Hooks {
	return worker.Hooks{
		OnSubmit: c.JobsSubmitted.Inc,
		OnStart:  func(int) { c.BusyWorkers.Inc() },
		OnFinish: func(_ int, elapsed time.Duration) {
			c.BusyWorkers.Dec()
			c.JobsFinished.Inc()
			c.JobLatency.Observe(elapsed.Seconds())
		},
		OnPanic: func(int, any) { c.JobsPanicked.Inc() },
	}
}

// ObserveResponse は送信したステータスコードを数える
func (c *Collector) ObserveResponse(code int) {
	c.Responses.WithLabelValues(strconv.Itoa(code)).Inc()
}
