package dualnet

// NewClientHandle exposes newClientHandle to the external dualnet_test
// package, which must live outside package dualnet to avoid an import
// cycle with pkg/backend (used as the test oracle).
func NewClientHandle(eng engine, mode Mode) *ClientHandle {
	return newClientHandle(eng, mode)
}
