package dualnet

// passthrough is the null coordinator used when BatchSize == 0 (spec §4.5):
// it forwards every evaluate() call straight to the backend, unbatched.
type passthrough struct {
	backend Backend
}

func newPassthrough(backend Backend) *passthrough {
	return &passthrough{backend: backend}
}

func (p *passthrough) registerClient(bool) uint64 { return 0 }

func (p *passthrough) closeClient(uint64, bool) {}

func (p *passthrough) evaluate(_ uint64, _ bool, features []BoardFeatureVec) (Result, error) {
	return p.backend.Run(features)
}

func (p *passthrough) Close() error {
	return p.backend.Close()
}
