package backend

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/kunal/dualnet-batcher/pkg/dualnet"
)

// Simulated mimics an accelerator's compute pattern with real CPU work plus
// a sleep of a fixed per-batch base plus a per-position term, so the cost
// per position falls as batches grow. Grounded on the teacher's SimulatedGPU;
// adapted here to emit board policy/value pairs instead of ImageNet
// classes. Selecting engine "lite" constructs one with a short base
// latency (CPU-lite variant); engine "trt" constructs one with a longer
// base latency and a coarser matrix workload standing in for a
// reduced-precision accelerator kernel.
type Simulated struct {
	name          string
	baseLatency   time.Duration
	matrixN       int
	numMoves      int
	rng           *rand.Rand
}

// NewSimulated builds a Simulated backend. numMoves is the policy length
// (Board*Board + 1); baseLatencyMs is the fixed per-batch overhead.
func NewSimulated(name string, numMoves, baseLatencyMs, matrixN int) *Simulated {
	if baseLatencyMs <= 0 {
		baseLatencyMs = 5
	}
	if matrixN <= 0 {
		matrixN = 64
	}
	return &Simulated{
		name:        name,
		baseLatency: time.Duration(baseLatencyMs) * time.Millisecond,
		matrixN:     matrixN,
		numMoves:    numMoves,
		rng:         rand.New(rand.NewSource(1)),
	}
}

func (s *Simulated) Name() string  { return s.name }
func (s *Simulated) ModelID() string { return s.name }
func (s *Simulated) Close() error  { return nil }

func (s *Simulated) Run(batch []dualnet.BoardFeatureVec) (dualnet.Result, error) {
	n := len(batch)
	if n == 0 {
		return dualnet.Result{}, fmt.Errorf("%s: empty batch", s.name)
	}

	// Simulated kernel time: base + 1.5ms per position (linear in batch
	// size), so the base overhead is amortized over larger batches.
	latency := s.baseLatency + time.Duration(float64(n)*1.5)*time.Millisecond
	matrixWork(s.matrixN)
	time.Sleep(latency)

	policies := make([]dualnet.Policy, n)
	values := make([]float32, n)
	for i := range policies {
		p := make(dualnet.Policy, s.numMoves)
		sum := float32(0)
		for j := range p {
			p[j] = float32(s.rng.Float64())
			sum += p[j]
		}
		for j := range p {
			p[j] /= sum
		}
		policies[i] = p
		values[i] = float32(s.rng.Float64()*2 - 1)
	}

	return dualnet.Result{Policies: policies, Values: values, ModelID: s.name}, nil
}

// matrixWork performs an NxN matrix multiplication to create real CPU load
// standing in for the accelerator kernel, exactly as the teacher's
// simulation executor does.
func matrixWork(n int) {
	a := make([][]float64, n)
	b := make([][]float64, n)
	c := make([][]float64, n)
	for i := 0; i < n; i++ {
		a[i] = make([]float64, n)
		b[i] = make([]float64, n)
		c[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			a[i][j] = rand.Float64()
			b[i][j] = rand.Float64()
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sum := 0.0
			for k := 0; k < n; k++ {
				sum += a[i][k] * b[k][j]
			}
			c[i][j] = sum
		}
	}
	_ = math.Sqrt(c[0][0])
}
