package consensus

import (
	"context"
	"fmt"
	"sync"

	"github.com/zen-systems/helmsman/pkg/outcome"
)

const (
	defaultConcurrency = 4
	defaultQueueSize   = 64
)

// Worker consumes completed sessions from a queue, appends each trace to
// the log, analyzes it, and attaches the result. Sessions are analyzed
// concurrently; the submitting caller never waits on analysis.
type Worker struct {
	analyzer    *Analyzer
	log         outcome.Log
	logf        func(format string, args ...any)
	concurrency int
	onResult    func(sessionID string, r *outcome.ConsensusResult)

	jobs   chan outcome.SessionOutcome
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithConcurrency sets how many sessions are analyzed at once.
func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithWorkerLogger sets the logger for analysis failures.
func WithWorkerLogger(logf func(format string, args ...any)) WorkerOption {
	return func(w *Worker) {
		w.logf = logf
	}
}

// WithOnResult registers a callback invoked from the analysis goroutine
// after a result is attached to the log.
func WithOnResult(fn func(sessionID string, r *outcome.ConsensusResult)) WorkerOption {
	return func(w *Worker) {
		w.onResult = fn
	}
}

// NewWorker builds a stopped worker; call Start before submitting.
func NewWorker(a *Analyzer, log outcome.Log, opts ...WorkerOption) *Worker {
	w := &Worker{
		analyzer:    a,
		log:         log,
		logf:        func(string, ...any) {},
		concurrency: defaultConcurrency,
		jobs:        make(chan outcome.SessionOutcome, defaultQueueSize),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the analysis goroutines. They drain the queue until
// Close is called or ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for {
				select {
				case o, ok := <-w.jobs:
					if !ok {
						return
					}
					w.process(&o)
				case <-ctx.Done():
					return
				}
			}
		}()
	}
}

// Submit queues a completed session for analysis. It fails when the
// worker is closed or the queue is full; the caller decides whether a
// dropped analysis matters.
func (w *Worker) Submit(o outcome.SessionOutcome) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("consensus: worker closed")
	}
	select {
	case w.jobs <- o:
		return nil
	default:
		return fmt.Errorf("consensus: queue full, session %s dropped", o.SessionID)
	}
}

// Close stops accepting sessions and waits for queued analyses to finish.
func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.jobs)
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Worker) process(o *outcome.SessionOutcome) {
	if err := w.log.Append(*o); err != nil {
		w.logf("consensus: append session %s: %v", o.SessionID, err)
		return
	}
	result, err := w.analyzer.Analyze(o)
	if err != nil {
		w.logf("consensus: analyze session %s: %v", o.SessionID, err)
		return
	}
	if err := w.log.AttachConsensus(o.SessionID, *result); err != nil {
		w.logf("consensus: attach session %s: %v", o.SessionID, err)
		return
	}
	if w.onResult != nil {
		w.onResult(o.SessionID, result)
	}
}
