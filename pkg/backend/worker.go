package backend

import (
	"fmt"
	"sync"
	"time"

	"github.com/kunal/dualnet-batcher/pkg/dualnet"
	"github.com/sony/gobreaker"
)

// Worker owns one accelerator execution context and runs one inference per
// invocation, per spec §4.1. A failed inference is treated as fatal for
// that context: the worker is taken out of service rather than retried,
// mirroring the teacher's per-worker health tracking in
// Registry.MarkFailed (three-strikes there; one strike here, since a
// device context that faulted once is assumed to hold corrupted state).
type Worker struct {
	id      int
	exec    dualnet.Backend
	breaker *gobreaker.CircuitBreaker

	mu           sync.Mutex
	outOfService bool
}

// NewWorker wraps exec (a single-device backend context) with failure
// containment. exec is owned by the worker and released on Close.
func NewWorker(id int, exec dualnet.Backend) *Worker {
	settings := gobreaker.Settings{
		Name:        fmt.Sprintf("worker-%d", id),
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
	}
	return &Worker{id: id, exec: exec, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Run executes one batch through the breaker. A tripped breaker (device
// context already faulted) fails fast without touching the underlying
// executor again.
func (w *Worker) Run(batch []dualnet.BoardFeatureVec) (dualnet.Result, error) {
	out, err := w.breaker.Execute(func() (any, error) {
		return w.exec.Run(batch)
	})
	if err != nil {
		w.mu.Lock()
		w.outOfService = true
		w.mu.Unlock()
		return dualnet.Result{}, fmt.Errorf("%w: worker %d: %v", dualnet.ErrBackendFailed, w.id, err)
	}
	return out.(dualnet.Result), nil
}

// InService reports whether this worker's device context is still usable.
func (w *Worker) InService() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.outOfService
}

func (w *Worker) Close() error { return w.exec.Close() }
