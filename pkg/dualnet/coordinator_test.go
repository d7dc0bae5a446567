package dualnet_test

import (
	"errors"
	"runtime"
	"sync"
	"testing"

	"github.com/kunal/dualnet-batcher/pkg/backend"
	"github.com/kunal/dualnet-batcher/pkg/dualnet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingBackend wraps a Backend and records the size of every batch it
// was asked to run, in dispatch order, for assertions on packing traces.
type recordingBackend struct {
	inner dualnet.Backend
	mu    sync.Mutex
	sizes []int
}

func (r *recordingBackend) Run(batch []dualnet.BoardFeatureVec) (dualnet.Result, error) {
	r.mu.Lock()
	r.sizes = append(r.sizes, len(batch))
	r.mu.Unlock()
	return r.inner.Run(batch)
}
func (r *recordingBackend) ModelID() string { return r.inner.ModelID() }
func (r *recordingBackend) Close() error    { return r.inner.Close() }

func (r *recordingBackend) trace() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.sizes))
	copy(out, r.sizes)
	return out
}

func feats(n int) []dualnet.BoardFeatureVec {
	out := make([]dualnet.BoardFeatureVec, n)
	for i := range out {
		out[i] = dualnet.BoardFeatureVec{float32(i)}
	}
	return out
}

// Scenario 1: single client, exact batch.
func TestScenario1_ExactBatchDispatchesImmediately(t *testing.T) {
	rb := &recordingBackend{inner: backend.NewFake(nil, 0, 3)}
	c := dualnet.NewCoordinator(rb, 4)
	client := dualnet.NewClientHandle(c, dualnet.Counted)

	res, err := client.Evaluate(feats(4))
	require.NoError(t, err)
	assert.Len(t, res.Policies, 4)
	assert.Len(t, res.Values, 4)

	assert.Equal(t, []int{4}, rb.trace())
	assert.EqualValues(t, 1, c.Stats().NumRuns)
}

// Scenario 2: two clients, under-full — dispatches once both are represented.
func TestScenario2_TwoClientsUnderFullDispatchTogether(t *testing.T) {
	rb := &recordingBackend{inner: backend.NewFake(nil, 0, 3)}
	c := dualnet.NewCoordinator(rb, 8)
	a := dualnet.NewClientHandle(c, dualnet.Counted)
	b := dualnet.NewClientHandle(c, dualnet.Counted)

	var wg sync.WaitGroup
	var resA, resB dualnet.Result
	var errA, errB error
	wg.Add(2)
	go func() { defer wg.Done(); resA, errA = a.Evaluate(feats(3)) }()
	go func() { defer wg.Done(); resB, errB = b.Evaluate(feats(3)) }()
	wg.Wait()

	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Len(t, resA.Policies, 3)
	assert.Len(t, resB.Policies, 3)
	assert.Equal(t, []int{6}, rb.trace())
}

// Scenario 3: packing boundary. Three counted clients submit 5, 4 and 3
// positions against a batch size of 8. The first request (5) cannot
// release alone: with all three clients still registered and only one
// represented in the queue, the guard holds. Once the second request (4)
// arrives, the queue totals 9 — more than fits — so the coordinator
// dispatches the head request (5) on its own and holds the rest. Only
// once the first client departs does numClients drop to match the
// remaining two distinct clients in queue, releasing the packed
// remainder (4+3=7) as a single batch.
func TestScenario3_PackingBoundary(t *testing.T) {
	rb := &recordingBackend{inner: backend.NewFake(nil, 0, 3)}
	c := dualnet.NewCoordinator(rb, 8)
	a := dualnet.NewClientHandle(c, dualnet.Counted)
	b := dualnet.NewClientHandle(c, dualnet.Counted)
	cl := dualnet.NewClientHandle(c, dualnet.Counted)

	doneA := make(chan error, 1)
	go func() {
		_, err := a.Evaluate(feats(5))
		doneA <- err
	}()
	waitForQueueDepth(t, c, 1)

	doneB := make(chan error, 1)
	go func() {
		_, err := b.Evaluate(feats(4))
		doneB <- err
	}()
	require.NoError(t, <-doneA) // released once b's arrival forces the head out

	doneC := make(chan error, 1)
	go func() {
		_, err := cl.Evaluate(feats(3))
		doneC <- err
	}()
	waitForQueueDepth(t, c, 2)

	// a already has its result; departing drops numClients to 2, matching
	// the two distinct clients (b, cl) left in queue, and flushes them.
	a.Close()
	require.NoError(t, <-doneB)
	require.NoError(t, <-doneC)

	assert.Equal(t, []int{5, 7}, rb.trace())
}

// Scenario 4: a non-submitting registered client departing flushes the
// partial batch held by the two clients that already submitted.
func TestScenario4_ClientDepartsFlushes(t *testing.T) {
	rb := &recordingBackend{inner: backend.NewFake(nil, 0, 3)}
	c := dualnet.NewCoordinator(rb, 16)
	a := dualnet.NewClientHandle(c, dualnet.Counted)
	b := dualnet.NewClientHandle(c, dualnet.Counted)
	idle := dualnet.NewClientHandle(c, dualnet.Counted) // never submits

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _, _ = a.Evaluate(feats(4)) }()
	go func() { defer wg.Done(); _, _ = b.Evaluate(feats(4)) }()

	// Give both goroutines a chance to enqueue and block before closing
	// the idle client. There is no batch to observe yet.
	waitForQueueDepth(t, c, 2)
	assert.EqualValues(t, 0, c.Stats().NumRuns)

	idle.Close()
	wg.Wait()

	assert.Equal(t, []int{8}, rb.trace())
}

// Scenario 5: oversize rejection.
func TestScenario5_OversizeRejectedSynchronously(t *testing.T) {
	rb := &recordingBackend{inner: backend.NewFake(nil, 0, 3)}
	c := dualnet.NewCoordinator(rb, 4)
	client := dualnet.NewClientHandle(c, dualnet.Counted)

	_, err := client.Evaluate(feats(5))
	assert.ErrorIs(t, err, dualnet.ErrTooLarge)
	assert.EqualValues(t, 0, c.Stats().QueueCounter)
	assert.Empty(t, rb.trace())
}

// Scenario 6: shutdown drains pending requests with ErrShutdown, no hang.
func TestScenario6_ShutdownDrains(t *testing.T) {
	rb := &recordingBackend{inner: backend.NewFake(nil, 0, 3)}
	c := dualnet.NewCoordinator(rb, 4)
	a := dualnet.NewClientHandle(c, dualnet.Counted)
	_ = dualnet.NewClientHandle(c, dualnet.Counted) // idle, keeps the guard from firing

	done := make(chan error, 1)
	go func() {
		_, err := a.Evaluate(feats(2))
		done <- err
	}()

	waitForQueueDepth(t, c, 1)
	require.NoError(t, c.Close())

	err := <-done
	assert.ErrorIs(t, err, dualnet.ErrShutdown)
}

func TestWeakClientsDoNotDelayDispatch(t *testing.T) {
	rb := &recordingBackend{inner: backend.NewFake(nil, 0, 3)}
	c := dualnet.NewCoordinator(rb, 8)
	_ = dualnet.NewClientHandle(c, dualnet.Weak) // registered but weak: never blocks fill-check
	counted := dualnet.NewClientHandle(c, dualnet.Counted)

	res, err := counted.Evaluate(feats(3))
	require.NoError(t, err)
	assert.Len(t, res.Policies, 3)
	assert.Equal(t, []int{3}, rb.trace())
}

func TestFakeBackendIsOracle(t *testing.T) {
	priors := dualnet.Policy{0.1, 0.2, 0.7}
	rb := backend.NewFake(priors, 0.42, len(priors))
	c := dualnet.NewCoordinator(rb, 8)
	client := dualnet.NewClientHandle(c, dualnet.Counted)

	res, err := client.Evaluate(feats(2))
	require.NoError(t, err)
	for _, p := range res.Policies {
		assert.Equal(t, priors, p)
	}
	for _, v := range res.Values {
		assert.Equal(t, float32(0.42), v)
	}
}

func TestBackendFailureFailsWholeBatch(t *testing.T) {
	c := dualnet.NewCoordinator(&alwaysFailBackend{}, 4)
	client := dualnet.NewClientHandle(c, dualnet.Counted)

	_, err := client.Evaluate(feats(4))
	assert.True(t, errors.Is(err, dualnet.ErrBackendFailed))
	assert.Regexp(t, `\(request [0-9a-f-]+\)`, err.Error())
}

type alwaysFailBackend struct{}

func (*alwaysFailBackend) Run([]dualnet.BoardFeatureVec) (dualnet.Result, error) {
	return dualnet.Result{}, errors.New("device lost")
}
func (*alwaysFailBackend) ModelID() string { return "fail" }
func (*alwaysFailBackend) Close() error    { return nil }

func TestQueueCounterNeverBelowRunCounterInvariant(t *testing.T) {
	rb := &recordingBackend{inner: backend.NewFake(nil, 0, 3)}
	c := dualnet.NewCoordinator(rb, 4)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cl := dualnet.NewClientHandle(c, dualnet.Counted)
			_, _ = cl.Evaluate(feats(1))
			cl.Close()
		}()
	}
	wg.Wait()
	s := c.Stats()
	assert.GreaterOrEqual(t, s.QueueCounter, s.RunCounter)
	for _, n := range rb.trace() {
		assert.LessOrEqual(t, n, 4)
	}
}

func waitForQueueDepth(t *testing.T, c *dualnet.Coordinator, n int) {
	t.Helper()
	for i := 0; i < 100000; i++ {
		if c.Stats().QueueDepth >= n {
			return
		}
		runtime.Gosched()
	}
	t.Fatalf("queue never reached depth %d (stuck at %d)", n, c.Stats().QueueDepth)
}
