package worker

import (
	"runtime/debug"
	"sync/atomic"
	"time"

	"poolhttpd/internal/logger"
)

// Job はワーカーが一度だけ実行するジョブを表す
type Job func()

// State はワーカーの状態
type State int32

const (
	StateIdle State = iota
	StateDequeuing
	StateRunning
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateDequeuing:
		return "Dequeuing"
	case StateRunning:
		return "Running"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// worker は共有キューからメッセージを取り出して実行する常駐ゴルーチン
type worker struct {
	id    int
	pool  *Pool
	state atomic.Int32
	done  chan struct{}
}

func newWorker(id int, p *Pool) *worker {
	w := &worker{
		id:   id,
		pool: p,
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *worker) setState(s State) {
	w.state.Store(int32(s))
}

// State は現在の状態を返す
func (w *worker) State() State {
	return State(w.state.Load())
}

// run はワーカーのメインループ
func (w *worker) run() {
	p := w.pool
	defer close(w.done)
	defer func() {
		w.setState(StateTerminated)
		if p.hooks.OnExit != nil {
			p.hooks.OnExit(w.id)
		}
	}()

	for {
		w.setState(StateDequeuing)
		msg, ok := p.queue.recv()
		if !ok {
			// 終了メッセージ数とワーカー数が一致していれば到達しない
			logger.Error(p.name, "Worker %d: dispatch queue closed without a terminate message", w.id)
			return
		}

		switch msg.kind {
		case msgJob:
			logger.Debug(p.name, "Worker %d got a job; executing", w.id)
			w.execute(msg.job)
		case msgTerminate:
			logger.Debug(p.name, "Worker %d was told to terminate", w.id)
			return
		}
	}
}

// execute はジョブを実行する。ジョブ内の panic はここで回収され、ワーカーは継続する
func (w *worker) execute(job Job) {
	p := w.pool
	w.setState(StateRunning)
	p.busy.Add(1)
	if p.hooks.OnStart != nil {
		p.hooks.OnStart(w.id)
	}
	start := time.Now()

	defer func() {
		elapsed := time.Since(start)
		p.busy.Add(-1)
		if r := recover(); r != nil {
			p.panicked.Add(1)
			logger.Error(p.name, "Worker %d recovered from job panic: %v\n%s", w.id, r, debug.Stack())
			if p.hooks.OnPanic != nil {
				p.hooks.OnPanic(w.id, r)
			}
		} else {
			p.completed.Add(1)
		}
		if p.hooks.OnFinish != nil {
			p.hooks.OnFinish(w.id, elapsed)
		}
		w.setState(StateIdle)
	}()

	job()
}
