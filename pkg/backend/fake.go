// Package backend implements the worker-variant contracts consumed by the
// coordinator (dualnet.Backend): a full-precision accelerator backend, a
// reduced-precision/CPU-lite simulated backend, a remote RPC backend, and a
// deterministic fake used as the reference oracle in tests.
package backend

import (
	"github.com/kunal/dualnet-batcher/pkg/dualnet"
)

// Fake is a deterministic backend that returns a configurable constant
// policy and value for every position. It is the reference oracle used to
// test the coordinator's batching and splitting logic, grounded on
// fake_dual_net.cc in the original Minigo source.
type Fake struct {
	priors dualnet.Policy
	value  float32
}

// NewFake returns a Fake backend. A nil priors defaults to a uniform
// distribution over numMoves moves, matching FakeDualNet's default
// constructor behavior in the original source (uniform over kNumMoves).
func NewFake(priors dualnet.Policy, value float64, numMoves int) *Fake {
	if priors == nil {
		if numMoves <= 0 {
			numMoves = 1
		}
		priors = make(dualnet.Policy, numMoves)
		uniform := float32(1.0 / float64(numMoves))
		for i := range priors {
			priors[i] = uniform
		}
	}
	return &Fake{priors: priors, value: float32(value)}
}

func (f *Fake) Run(batch []dualnet.BoardFeatureVec) (dualnet.Result, error) {
	n := len(batch)
	policies := make([]dualnet.Policy, n)
	values := make([]float32, n)
	for i := range policies {
		p := make(dualnet.Policy, len(f.priors))
		copy(p, f.priors)
		policies[i] = p
		values[i] = f.value
	}
	return dualnet.Result{Policies: policies, Values: values, ModelID: f.ModelID()}, nil
}

func (f *Fake) ModelID() string { return "fake" }

func (f *Fake) Close() error { return nil }
