package platform

import (
	"log/slog"
	"sync"
)

// CompletionQueue runs callbacks one at a time, in submission order, on a
// single goroutine. Asynchronous operations deliver their completions here
// so that a caller's handlers never race each other.
type CompletionQueue struct {
	logger *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	fns    []func()
	closed bool
	done   chan struct{}
}

// NewCompletionQueue starts the queue's goroutine.
func NewCompletionQueue(logger *slog.Logger) *CompletionQueue {
	if logger == nil {
		logger = slog.Default()
	}

	q := &CompletionQueue{logger: logger, done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)

	go q.loop()

	return q
}

// Dispatch schedules fn and reports whether it was accepted. It never
// blocks on fn. Once the queue is closed fn is dropped with a warning, so
// no callback ever runs outside the queue's goroutine.
func (q *CompletionQueue) Dispatch(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.Warn("completion queue closed, dropping callback")

		return false
	}

	q.fns = append(q.fns, fn)
	q.mu.Unlock()
	q.cond.Signal()

	return true
}

// Close runs every callback already scheduled, then stops the goroutine.
// It must not be called from a callback.
func (q *CompletionQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done

		return
	}

	q.closed = true
	q.mu.Unlock()
	q.cond.Signal()

	<-q.done
}

func (q *CompletionQueue) loop() {
	defer close(q.done)

	for {
		q.mu.Lock()
		for len(q.fns) == 0 && !q.closed {
			q.cond.Wait()
		}

		if len(q.fns) == 0 {
			q.mu.Unlock()
			return
		}

		fn := q.fns[0]
		q.fns[0] = nil
		q.fns = q.fns[1:]
		q.mu.Unlock()

		fn()
	}
}
