// Package dualnet implements the inference-batching core: the coordinator
// that packs many small evaluate() calls into fixed-size batches, the
// client handles that expose evaluate() to search goroutines, and the
// Backend interface consumed by whichever accelerator implementation the
// factory selects.
package dualnet

import "errors"

// MoveHistory is the depth of recent-position history encoded per feature
// vector (Minigo's kMoveHistory).
const MoveHistory = 8

// BoardFeatureVec is a flattened feature tensor for one position:
// (2*MoveHistory + 1) planes of Board*Board floats each. Board size is a
// property of the caller (9x9 or 19x19); the vector length is fixed once
// a client starts encoding for a given board size.
type BoardFeatureVec []float32

// Policy is a probability distribution over legal moves (including pass)
// for one position: length Board*Board + 1.
type Policy []float32

// Result is the aggregate output of one backend invocation, covering n
// positions where n == len(Policies) == len(Values).
type Result struct {
	Policies []Policy
	Values   []float32
	ModelID  string
}

// Backend is the interface consumed by the coordinator (spec §6). Every
// worker variant — accelerator, simulated, remote, fake — implements it.
type Backend interface {
	// Run evaluates a batch of at most BatchSize feature vectors and
	// returns one Result covering all of them.
	Run(batch []BoardFeatureVec) (Result, error)

	// ModelID identifies the model/weights currently loaded.
	ModelID() string

	// Close releases any device or network resources held by the backend.
	Close() error
}

// Error kinds from spec §7.
var (
	// ErrTooLarge is returned synchronously by evaluate() when the caller
	// submits more positions than BatchSize allows. The request is never
	// enqueued.
	ErrTooLarge = errors.New("dualnet: request exceeds batch size")

	// ErrBackendFailed is delivered to every request in a batch when the
	// backend invocation for that batch returns an error.
	ErrBackendFailed = errors.New("dualnet: backend failed")

	// ErrShutdown is delivered to every pending request when the
	// coordinator is closed with requests still in flight.
	ErrShutdown = errors.New("dualnet: coordinator shut down")

	// ErrConfigInvalid is returned by the factory at construction time for
	// an unknown engine or a missing model file.
	ErrConfigInvalid = errors.New("dualnet: invalid configuration")
)
