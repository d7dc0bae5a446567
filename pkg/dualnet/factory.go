package dualnet

// Factory instantiates a Backend by configuration key, wraps it in a
// Coordinator (or a passthrough when BatchSize == 0) and vends
// ClientHandles from it (spec §4.5). The factory outlives every handle it
// produces; the backend outlives the factory's last active batch.
type Factory struct {
	eng interface {
		engine
		Close() error
	}
}

// NewFactory wraps backend behind the batching policy for batchSize, or a
// passthrough coordinator when batchSize == 0.
func NewFactory(backend Backend, batchSize int) *Factory {
	if batchSize == 0 {
		return &Factory{eng: newPassthrough(backend)}
	}
	return &Factory{eng: NewCoordinator(backend, batchSize)}
}

// NewClient vends a new ClientHandle in the given Mode.
func (f *Factory) NewClient(mode Mode) *ClientHandle {
	return newClientHandle(f.eng, mode)
}

// Close shuts down the underlying coordinator/backend. With a Coordinator,
// requests still queued at the time of Close receive ErrShutdown, while a
// batch already handed to the backend delivers its results. In passthrough
// mode Close only closes the backend.
func (f *Factory) Close() error {
	return f.eng.Close()
}

// Stats reports batching statistics when the underlying engine is a
// Coordinator, or a zero Stats when running in passthrough mode (there is
// no batching to report on).
func (f *Factory) Stats() Stats {
	if c, ok := f.eng.(*Coordinator); ok {
		return c.Stats()
	}
	return Stats{}
}
