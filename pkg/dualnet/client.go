package dualnet

import "sync"

// Mode selects whether a ClientHandle counts toward the coordinator's
// fill-or-wait decision (spec §4.4).
type Mode int

const (
	// Counted clients increment num_clients and therefore delay a
	// partial batch dispatch until they either submit or deregister.
	Counted Mode = iota
	// Weak clients participate in batching but never delay the
	// fill-or-dispatch decision.
	Weak
)

// engine is the interface a ClientHandle drives; Coordinator and
// passthrough both implement it, letting the factory pick either without
// the handle knowing which.
type engine interface {
	registerClient(counted bool) uint64
	closeClient(clientID uint64, counted bool)
	evaluate(clientID uint64, counted bool, features []BoardFeatureVec) (Result, error)
}

// ClientHandle is a per-caller reference to the coordinator (spec §4.4).
// State machine: Registered -> (Evaluating <-> Idle)* -> Closed. Overlapping
// Evaluate calls on one handle are serialized by evalMu rather than
// rejected, which is an equivalent way of disallowing them (spec §4.3).
type ClientHandle struct {
	eng      engine
	id       uint64
	counted  bool
	evalMu   sync.Mutex
	closeMu  sync.Mutex
	closed   bool
}

func newClientHandle(eng engine, mode Mode) *ClientHandle {
	counted := mode == Counted
	return &ClientHandle{
		eng:     eng,
		id:      eng.registerClient(counted),
		counted: counted,
	}
}

// Evaluate blocks until this request's portion of a batch has been run.
// features.len() > BatchSize fails synchronously with ErrTooLarge.
func (h *ClientHandle) Evaluate(features []BoardFeatureVec) (Result, error) {
	h.evalMu.Lock()
	defer h.evalMu.Unlock()
	return h.eng.evaluate(h.id, h.counted, features)
}

// Close deregisters the handle. For a Counted handle this decrements
// num_clients and re-runs the batch-filling policy, since a departing
// client may let a partial batch fire. Weak handles simply mark Closed.
// Close is idempotent.
func (h *ClientHandle) Close() {
	h.closeMu.Lock()
	defer h.closeMu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	h.eng.closeClient(h.id, h.counted)
}
