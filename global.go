package asyncqueue

import (
	"context"
	"sync"

	"github.com/Swind/go-async-queue/core"
)

// =============================================================================
// Global Queue Helper (Singleton)
// =============================================================================

var (
	globalQueue *Queue
	globalMu    sync.Mutex
)

// InitGlobalQueue creates the process-wide queue from opts. Later calls are
// no-ops until ShutdownGlobalQueue.
func InitGlobalQueue(opts Options) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalQueue != nil {
		return nil
	}

	if opts.Name == "" {
		opts.Name = "global-queue"
	}
	q, err := core.NewQueue(opts)
	if err != nil {
		return err
	}
	globalQueue = q
	return nil
}

// GlobalQueue returns the process-wide queue.
// It panics if InitGlobalQueue has not been called.
func GlobalQueue() *Queue {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalQueue == nil {
		panic("GlobalQueue not initialized. Call InitGlobalQueue() first.")
	}
	return globalQueue
}

// ShutdownGlobalQueue detaches the global queue and waits for it to go
// idle. If ctx ends first the queue is paused, its pending tasks are
// cleared and ctx's error is returned; running tasks are left to finish.
func ShutdownGlobalQueue(ctx context.Context) error {
	globalMu.Lock()
	q := globalQueue
	globalQueue = nil
	globalMu.Unlock()

	if q == nil {
		return nil
	}
	if err := q.WaitUntilIdle(ctx); err != nil {
		q.Pause()
		q.Clear()
		return err
	}
	return nil
}
