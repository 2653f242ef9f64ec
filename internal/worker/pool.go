package worker

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"poolhttpd/internal/logger"
)

// ErrInvalidSize はワーカー数が 1 未満の場合に返される
var ErrInvalidSize = errors.New("worker: pool size must be at least 1")

// Hooks はプールのライフサイクルを観測するコールバック。nil は無視される
type Hooks struct {
	OnSubmit func()
	OnStart  func(workerID int)
	OnFinish func(workerID int, elapsed time.Duration)
	OnPanic  func(workerID int, recovered any)
	OnExit   func(workerID int)
}

// Merge は h と other の両方を順に呼び出す Hooks を返す
func (h Hooks) Merge(other Hooks) Hooks {
	return Hooks{
		OnSubmit: chain0(h.OnSubmit, other.OnSubmit),
		OnStart:  chain1(h.OnStart, other.OnStart),
		OnFinish: chain2(h.OnFinish, other.OnFinish),
		OnPanic:  chain2(h.OnPanic, other.OnPanic),
		OnExit:   chain1(h.OnExit, other.OnExit),
	}
}

func chain0(a, b func()) func() {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func() { a(); b() }
}

func chain1(a, b func(int)) func(int) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(id int) { a(id); b(id) }
}

func chain2[T any](a, b func(int, T)) func(int, T) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(id int, v T) { a(id, v); b(id, v) }
}

// PoolConfig はワーカープールの設定
type PoolConfig struct {
	NumWorkers int    // ワーカー数（1以上）
	Name       string // ログのコンポーネント名
	Hooks      Hooks
}

// DefaultPoolConfig はデフォルト設定を返す
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		NumWorkers: 4,
		Name:       "pool",
	}
}

// Stats はプールの累積統計
type Stats struct {
	Submitted      uint64 `json:"submitted"`
	Completed      uint64 `json:"completed"`
	Panicked       uint64 `json:"panicked"`
	Busy           int64  `json:"busy"`
	Queued         int    `json:"queued"`
	TerminatesSent int64  `json:"terminates_sent"`
	Joined         int64  `json:"joined"`
}

// Pool は固定数のワーカーゴルーチンを管理する
type Pool struct {
	name    string
	queue   *dispatchQueue
	workers []*worker
	hooks   Hooks

	submitted atomic.Uint64
	completed atomic.Uint64
	panicked  atomic.Uint64
	busy      atomic.Int64

	terminatesSent atomic.Int64
	joined         atomic.Int64

	closeOnce sync.Once
}

// NewPool は numWorkers 個のワーカーを持つプールを作成し、即座に起動する
func NewPool(numWorkers int) (*Pool, error) {
	config := DefaultPoolConfig()
	config.NumWorkers = numWorkers
	return NewPoolWithConfig(config)
}

// MustNewPool は NewPool と同じだが、不正なサイズで panic する
func MustNewPool(numWorkers int) *Pool {
	p, err := NewPool(numWorkers)
	if err != nil {
		panic(err)
	}
	return p
}

// NewPoolWithConfig は設定を指定してワーカープールを作成する
func NewPoolWithConfig(config PoolConfig) (*Pool, error) {
	if config.NumWorkers < 1 {
		return nil, ErrInvalidSize
	}
	name := config.Name
	if name == "" {
		name = "pool"
	}

	p := &Pool{
		name:    name,
		queue:   newDispatchQueue(),
		workers: make([]*worker, 0, config.NumWorkers),
		hooks:   config.Hooks,
	}
	for id := 0; id < config.NumWorkers; id++ {
		logger.Debug(name, "Initializing worker %d of %d", id+1, config.NumWorkers)
		p.workers = append(p.workers, newWorker(id, p))
	}

	logger.Info(name, "WorkerPool started with %d workers", config.NumWorkers)
	return p, nil
}

// Submit はジョブをキューに追加し、実行を待たずに戻る。
// キューは無制限のため、消費が追いつかない間はメモリが増え続ける。
// シャットダウン開始後や nil ジョブの場合は false を返す
func (p *Pool) Submit(job Job) bool {
	if job == nil {
		return false
	}

	p.submitted.Add(1)
	if !p.queue.send(message{kind: msgJob, job: job}) {
		p.submitted.Add(^uint64(0))
		logger.Warn(p.name, "Submit rejected: pool is shutting down")
		return false
	}
	if p.hooks.OnSubmit != nil {
		p.hooks.OnSubmit()
	}
	return true
}

// Close はワーカー数と同数の終了メッセージを送り、全ワーカーの終了を id 順に待つ。
// 終了メッセージより前にキューに入ったジョブはすべて実行される。
// ジョブの中から呼び出すとデッドロックする
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		n := len(p.workers)

		logger.Debug(p.name, "Sending terminate message to all workers")
		p.queue.seal(n)
		p.terminatesSent.Store(int64(n))

		logger.Debug(p.name, "Shutting down all workers")
		for _, w := range p.workers {
			logger.Debug(p.name, "Shutting down worker %d", w.id)
			<-w.done
			p.joined.Add(1)
		}

		logger.Info(p.name, "WorkerPool stopped")
	})
}

// NumWorkers はワーカー数を返す
func (p *Pool) NumWorkers() int {
	return len(p.workers)
}

// QueueSize は現在キューにあるメッセージ数を返す
func (p *Pool) QueueSize() int {
	return p.queue.pending()
}

// WorkerStates は各ワーカーの状態を id 順に返す
func (p *Pool) WorkerStates() []State {
	states := make([]State, len(p.workers))
	for i, w := range p.workers {
		states[i] = w.State()
	}
	return states
}

// Stats は現在の統計を返す
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted:      p.submitted.Load(),
		Completed:      p.completed.Load(),
		Panicked:       p.panicked.Load(),
		Busy:           p.busy.Load(),
		Queued:         p.queue.pending(),
		TerminatesSent: p.terminatesSent.Load(),
		Joined:         p.joined.Load(),
	}
}
