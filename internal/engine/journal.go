package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stepwise-engine/stepwise/internal/store"
)

const (
	journalQueueSize = 64
	journalOpTimeout = 10 * time.Second
)

// journal applies persistence writes asynchronously while preserving order
// per execution. Each execution gets its own queue drained by a single
// goroutine, so two updates for the same execution can never reach the store
// out of issue order. Write failures are logged and dropped; persistence is
// best-effort and never fails an execution.
type journal struct {
	store  store.Store
	logger *slog.Logger

	mu     sync.Mutex
	queues map[string]chan journalOp
	wg     sync.WaitGroup
}

type journalOp struct {
	name string
	fn   func(ctx context.Context, s store.Store) error
}

func newJournal(st store.Store, logger *slog.Logger) *journal {
	return &journal{
		store:  st,
		logger: logger,
		queues: make(map[string]chan journalOp),
	}
}

// enqueue appends an operation to the execution's queue, creating the queue
// and its drain goroutine on first use. If the queue is full the call blocks
// until the drainer catches up.
func (j *journal) enqueue(executionID, name string, fn func(ctx context.Context, s store.Store) error) {
	j.mu.Lock()
	q, ok := j.queues[executionID]
	if !ok {
		q = make(chan journalOp, journalQueueSize)
		j.queues[executionID] = q
		j.wg.Add(1)
		go j.drain(executionID, q)
	}
	j.mu.Unlock()

	q <- journalOp{name: name, fn: fn}
}

// finish closes the execution's queue once all enqueued operations have been
// accepted. The drain goroutine exits after applying what remains.
func (j *journal) finish(executionID string) {
	j.mu.Lock()
	q, ok := j.queues[executionID]
	if ok {
		delete(j.queues, executionID)
	}
	j.mu.Unlock()
	if ok {
		close(q)
	}
}

// Wait blocks until every open queue has been drained. Call finish for all
// executions first or Wait will block forever.
func (j *journal) Wait() {
	j.wg.Wait()
}

func (j *journal) drain(executionID string, q <-chan journalOp) {
	defer j.wg.Done()
	for op := range q {
		ctx, cancel := context.WithTimeout(context.Background(), journalOpTimeout)
		if err := op.fn(ctx, j.store); err != nil {
			j.logger.Warn("journal write failed",
				"execution_id", executionID,
				"op", op.name,
				"error", err)
		}
		cancel()
	}
}
