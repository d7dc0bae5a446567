package dualnet

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// pendingRequest is the internal InferenceRequest of spec §3: a batch of
// feature vectors from one evaluate() call, plus the channel its result is
// delivered on exactly once.
type pendingRequest struct {
	id       string
	clientID uint64
	counted  bool
	features []BoardFeatureVec
	resultCh chan requestOutcome
}

type requestOutcome struct {
	policies []Policy
	values   []float32
	model    string
	err      error
}

func (r *pendingRequest) size() int { return len(r.features) }

// Coordinator is the batching coordinator of spec §4.3: it accepts
// variable-sized requests from many clients, packs them into fixed-size
// batches and dispatches each batch to a Backend, releasing its lock for
// the duration of the backend call.
type Coordinator struct {
	backend   Backend
	batchSize int

	mu           sync.Mutex
	queue        []*pendingRequest
	queueCounter uint64
	runCounter   uint64
	numClients   int
	numRuns      uint64
	closed       bool

	nextClientID atomic.Uint64
}

// NewCoordinator wraps backend with the batching policy described in
// spec §4.3. batchSize must be > 0; BatchSize == 0 (passthrough) is
// handled by the factory, which never constructs a Coordinator in that
// case (see factory.go).
func NewCoordinator(backend Backend, batchSize int) *Coordinator {
	if batchSize <= 0 {
		panic("dualnet: NewCoordinator requires batchSize > 0")
	}
	return &Coordinator{backend: backend, batchSize: batchSize}
}

// registerClient implements engine.
func (c *Coordinator) registerClient(counted bool) uint64 {
	id := c.nextClientID.Add(1)
	if counted {
		c.mu.Lock()
		c.numClients++
		c.mu.Unlock()
	}
	return id
}

// closeClient implements engine. Closing a Counted handle decrements
// numClients and re-runs the fill-check, since a departing client changes
// whether the coordinator should keep waiting for more input.
func (c *Coordinator) closeClient(_ uint64, counted bool) {
	if !counted {
		return
	}
	c.mu.Lock()
	c.numClients--
	c.maybeRunBatches()
	c.mu.Unlock()
}

// evaluate implements engine. It blocks until this request's positions
// have been run by a batch, or the coordinator shuts down.
func (c *Coordinator) evaluate(clientID uint64, counted bool, features []BoardFeatureVec) (Result, error) {
	if len(features) > c.batchSize {
		return Result{}, ErrTooLarge
	}

	req := &pendingRequest{
		id:       uuid.NewString(),
		clientID: clientID,
		counted:  counted,
		features: features,
		resultCh: make(chan requestOutcome, 1),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Result{}, ErrShutdown
	}
	c.queueCounter += uint64(len(features))
	c.queue = append(c.queue, req)
	c.maybeRunBatches()
	c.mu.Unlock()

	out := <-req.resultCh
	if out.err != nil {
		return Result{}, out.err
	}
	return Result{Policies: out.policies, Values: out.values, ModelID: out.model}, nil
}

// maybeRunBatches implements the batch-filling policy of spec §4.3.
// Caller must hold c.mu.
func (c *Coordinator) maybeRunBatches() {
	for {
		available := c.queueCounter - c.runCounter
		if available == 0 || c.closed {
			return
		}
		batchSize := int(available)
		if batchSize > c.batchSize {
			batchSize = c.batchSize
		}

		// Wait-for-more: if this batch would be partial AND some
		// registered counted client has no request pending yet, more
		// input may still arrive. Hold off. Once every counted client
		// is represented in the queue, no further enqueue can arrive
		// without one of them first being served, so waiting would
		// deadlock and the partial batch is dispatched.
		if batchSize < c.batchSize && c.numClients > c.pendingDistinctClientsLocked() {
			return
		}

		c.dispatchOneBatchLocked(batchSize)
	}
}

// pendingDistinctClientsLocked counts distinct counted clients currently
// represented in the queue. Caller must hold c.mu.
func (c *Coordinator) pendingDistinctClientsLocked() int {
	seen := make(map[uint64]struct{}, len(c.queue))
	for _, req := range c.queue {
		if req.counted {
			seen[req.clientID] = struct{}{}
		}
	}
	return len(seen)
}

// dispatchOneBatchLocked pops whole requests from the head of the queue
// while they fit within cap (spec §4.3 Packing), releases the lock for the
// backend call, delivers results, then re-acquires the lock. Caller must
// hold c.mu on entry and exit.
func (c *Coordinator) dispatchOneBatchLocked(cap int) {
	var selected []*pendingRequest
	total := 0
	for len(c.queue) > 0 {
		head := c.queue[0]
		n := head.size()
		if total+n > cap {
			break
		}
		selected = append(selected, head)
		c.queue = c.queue[1:]
		total += n
	}

	features := make([]BoardFeatureVec, 0, total)
	for _, req := range selected {
		features = append(features, req.features...)
	}
	c.runCounter += uint64(total)

	c.mu.Unlock()
	result, err := c.backend.Run(features)
	deliver(selected, result, err)
	c.mu.Lock()

	c.numRuns++
}

// deliver splits an aggregate Result back into per-request outcomes, in
// the same order the requests were popped (spec §4.3 dispatch).
func deliver(selected []*pendingRequest, result Result, err error) {
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrBackendFailed, err)
		for _, req := range selected {
			req.resultCh <- requestOutcome{err: fmt.Errorf("%w (request %s)", wrapped, req.id)}
		}
		return
	}

	offset := 0
	for _, req := range selected {
		n := req.size()
		req.resultCh <- requestOutcome{
			policies: result.Policies[offset : offset+n],
			values:   result.Values[offset : offset+n],
			model:    result.ModelID,
		}
		offset += n
	}
}

// Close shuts the coordinator down: every still-pending request fails with
// ErrShutdown (invariant: no request may be leaked), then the backend is
// released. Matches batching_dual_net.cc's destructor, which prints
// average batch size guarded against a zero-batch run.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	c.closed = true
	pending := c.queue
	c.queue = nil
	runs, total := c.numRuns, c.runCounter
	c.mu.Unlock()

	for _, req := range pending {
		req.resultCh <- requestOutcome{err: fmt.Errorf("%w (request %s)", ErrShutdown, req.id)}
	}

	if runs == 0 {
		log.Printf("📦 coordinator closed: ran 0 batches")
	} else {
		log.Printf("📦 coordinator closed: ran %d batches, avg size %.2f", runs, float64(total)/float64(runs))
	}
	return c.backend.Close()
}

// Stats returns a snapshot of the coordinator's batching statistics.
type Stats struct {
	NumClients   int
	NumRuns      uint64
	QueueDepth   int
	QueueCounter uint64
	RunCounter   uint64
}

// Stats returns a point-in-time snapshot for observability.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		NumClients:   c.numClients,
		NumRuns:      c.numRuns,
		QueueDepth:   len(c.queue),
		QueueCounter: c.queueCounter,
		RunCounter:   c.runCounter,
	}
}
