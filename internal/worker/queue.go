package worker

import "sync"

type messageKind int

const (
	msgJob messageKind = iota
	msgTerminate
)

// message はワーカーへの制御メッセージ（ジョブまたは終了指示）
type message struct {
	kind messageKind
	job  Job
}

// dispatchQueue は全ワーカーで共有される無制限の FIFO キュー。
// ロックはデキューの間だけ保持され、ジョブ実行中には保持されない。
type dispatchQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []message
	head   int
	sealed bool
}

func newDispatchQueue() *dispatchQueue {
	q := &dispatchQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// send はメッセージを末尾に追加する。封印後は false を返す
func (q *dispatchQueue) send(m message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.sealed {
		return false
	}
	q.items = append(q.items, m)
	q.cond.Signal()
	return true
}

// seal は n 個の終了メッセージを追加し、以降の送信を拒否する
func (q *dispatchQueue) seal(n int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.sealed {
		return false
	}
	for i := 0; i < n; i++ {
		q.items = append(q.items, message{kind: msgTerminate})
	}
	q.sealed = true
	q.cond.Broadcast()
	return true
}

// recv は次のメッセージを取り出す。封印済みかつ空の場合のみ ok=false
func (q *dispatchQueue) recv() (message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.head == len(q.items) {
		if q.sealed {
			return message{}, false
		}
		q.cond.Wait()
	}

	m := q.items[q.head]
	q.items[q.head] = message{}
	q.head++

	// 消費済み領域を回収
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head >= 1024 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return m, true
}

// pending は未処理のメッセージ数を返す
func (q *dispatchQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}
