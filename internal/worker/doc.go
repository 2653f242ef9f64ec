// Package worker provides a fixed-size goroutine pool for fire-and-forget jobs.
//
// A Pool owns a set of long-lived workers that share one unbounded FIFO
// dispatch queue. Each queued message is either a job or a terminate
// instruction, and every message is taken by exactly one worker. The queue
// lock is held only while dequeuing, so jobs run fully in parallel.
//
// # Basic Usage
//
//	pool, err := worker.NewPool(4) // 4 workers, started immediately
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	for i := 0; i < 100; i++ {
//	    pool.Submit(func() {
//	        // do work
//	    })
//	}
//
// # Shutdown
//
// Close enqueues exactly one terminate message per worker behind any jobs
// already queued, then waits for every worker in id order. Jobs submitted
// before Close always run; Submit returns false once Close has begun.
//
// # Failure Isolation
//
// A panic inside a job is recovered and logged, and the worker keeps
// serving the queue, so the pool never loses capacity to a bad job.
//
// # Limits
//
// The queue is unbounded. Under sustained overload memory grows without
// limit; there is no backpressure, priority, or per-job cancellation.
package worker
