package backend

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/kunal/dualnet-batcher/pkg/dualnet"
	"golang.org/x/sync/errgroup"
)

// dispatchJob pairs one batch with its one-shot completion, the unit the
// dispatcher's queue moves between the coordinator and a free worker.
type dispatchJob struct {
	batch    []dualnet.BoardFeatureVec
	resultCh chan dualnet.Result
	errCh    chan error
}

// Dispatcher is the multi-threaded queue front-end of spec §4.2: an
// unbounded, thread-safe queue of batches consumed by 2*D worker
// goroutines, where D is the number of devices. It implements
// dualnet.Backend itself, so a Coordinator can hold a Dispatcher exactly
// as it would hold any single-context backend — the fan-out to many
// device contexts is invisible above this interface.
type Dispatcher struct {
	jobs    chan *dispatchJob
	workers []*Worker
	group   *errgroup.Group
	ctx     context.Context
	cancel  context.CancelFunc
	modelID string
}

// NewDispatcher starts 2*devices worker goroutines, each backed by an
// execution context built by newExec(deviceID). devices <= 0 is treated
// as 1 (a CPU/remote backend has no device pool of its own to size
// against, per spec §4.2).
func NewDispatcher(devices int, newExec func(deviceID int) (dualnet.Backend, error)) (*Dispatcher, error) {
	if devices <= 0 {
		devices = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		jobs:   make(chan *dispatchJob),
		ctx:    ctx,
		cancel: cancel,
	}

	n := 2 * devices
	d.workers = make([]*Worker, 0, n)
	for i := 0; i < n; i++ {
		exec, err := newExec(i / 2)
		if err != nil {
			cancel()
			for _, w := range d.workers {
				_ = w.Close()
			}
			return nil, fmt.Errorf("%w: worker %d device context: %v", dualnet.ErrConfigInvalid, i, err)
		}
		w := NewWorker(i, exec)
		d.workers = append(d.workers, w)
	}
	if len(d.workers) > 0 {
		d.modelID = d.workers[0].exec.ModelID()
	}

	group := &errgroup.Group{}
	for _, w := range d.workers {
		w := w
		group.Go(func() error {
			d.workerLoop(w)
			return nil
		})
	}
	d.group = group

	log.Printf("🔄 dispatcher started: %d devices, %d workers", devices, n)
	return d, nil
}

// workerLoop pulls jobs off the shared queue, polling with a bounded
// timeout so it observes shutdown promptly even while idle (spec §4.2).
func (d *Dispatcher) workerLoop(w *Worker) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case job := <-d.jobs:
			if !w.InService() {
				job.errCh <- fmt.Errorf("%w: worker taken out of service", dualnet.ErrBackendFailed)
				continue
			}
			res, err := w.Run(job.batch)
			if err != nil {
				job.errCh <- err
				continue
			}
			job.resultCh <- res
		case <-ticker.C:
			// Wake solely to re-check d.ctx.Done(); no work to do here.
		}
	}
}

func (d *Dispatcher) anyInService() bool {
	for _, w := range d.workers {
		if w.InService() {
			return true
		}
	}
	return false
}

func (d *Dispatcher) ModelID() string { return d.modelID }

// Run submits batch to whichever worker is free and blocks for its
// result. FIFO across submissions is guaranteed by the single shared
// channel; no further fairness is promised (spec §4.2).
func (d *Dispatcher) Run(batch []dualnet.BoardFeatureVec) (dualnet.Result, error) {
	if !d.anyInService() {
		return dualnet.Result{}, fmt.Errorf("%w: no workers remain in service", dualnet.ErrBackendFailed)
	}

	job := &dispatchJob{batch: batch, resultCh: make(chan dualnet.Result, 1), errCh: make(chan error, 1)}
	select {
	case d.jobs <- job:
	case <-d.ctx.Done():
		return dualnet.Result{}, dualnet.ErrShutdown
	}

	select {
	case res := <-job.resultCh:
		return res, nil
	case err := <-job.errCh:
		return dualnet.Result{}, err
	case <-d.ctx.Done():
		return dualnet.Result{}, dualnet.ErrShutdown
	}
}

// Close stops accepting work, lets in-flight jobs drain their timeout
// window, and releases every worker's device context in the order the
// workers were constructed.
func (d *Dispatcher) Close() error {
	d.cancel()
	_ = d.group.Wait()

	var firstErr error
	for _, w := range d.workers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
