package backend

import (
	"sync"
	"testing"

	"github.com/kunal/dualnet-batcher/pkg/devicehealth"
	"github.com/kunal/dualnet-batcher/pkg/dualnet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedDeviceMonitor struct{ n int }

func (f *fixedDeviceMonitor) DeviceCount() int                 { return f.n }
func (f *fixedDeviceMonitor) Snapshot() []devicehealth.GPUInfo { return nil }
func (f *fixedDeviceMonitor) Close()                           {}

// TestTFEngineThreadsDistinctDeviceIDsPerWorkerPair guards against the
// "tf" engine silently binding every worker to device 0: each device's
// pair of workers must be constructed with that device's own id.
func TestTFEngineThreadsDistinctDeviceIDsPerWorkerPair(t *testing.T) {
	orig := newAcceleratorFn
	defer func() { newAcceleratorFn = orig }()

	var mu sync.Mutex
	seen := map[int]int{}
	newAcceleratorFn = func(modelPath string, useGPU bool, deviceID, planeSize, numMoves int) (*Accelerator, error) {
		mu.Lock()
		seen[deviceID]++
		mu.Unlock()
		return &Accelerator{deviceID: deviceID}, nil
	}

	b, err := Build(BuildOptions{
		Engine:    "tf",
		NumGPUs:   2,
		BoardSide: 9,
		ModelPath: "model.onnx",
	}, &fixedDeviceMonitor{n: 2})
	require.NoError(t, err)
	defer b.Close()

	// 2 devices => 2*2 = 4 workers, i/2 pairs each device with exactly 2
	// workers; every call must carry the device id it was assigned, never
	// a literal 0 for every worker.
	assert.Equal(t, map[int]int{0: 2, 1: 2}, seen)
}

func TestRemoteEngineFansOutAcrossMultipleEndpoints(t *testing.T) {
	b, err := Build(BuildOptions{
		Engine:      "remote",
		RemoteAddrs: []string{"host-a:50051", "host-b:50051"},
	}, &fixedDeviceMonitor{n: 0})
	require.NoError(t, err)
	defer b.Close()

	d, ok := b.(*Dispatcher)
	require.True(t, ok)
	assert.Len(t, d.workers, 4) // 2 endpoints, 2 connections each
}

func TestRemoteEngineSingleEndpointSkipsDispatcher(t *testing.T) {
	b, err := Build(BuildOptions{
		Engine:      "remote",
		RemoteAddrs: []string{"host-a:50051"},
	}, &fixedDeviceMonitor{n: 0})
	require.NoError(t, err)
	defer b.Close()

	_, ok := b.(*Remote)
	assert.True(t, ok)
}

func TestRemoteEngineRequiresAtLeastOneEndpoint(t *testing.T) {
	_, err := Build(BuildOptions{Engine: "remote"}, &fixedDeviceMonitor{n: 0})
	assert.ErrorIs(t, err, dualnet.ErrConfigInvalid)
}

func TestFakeEngineDefaultPriorsMatchBoardSize(t *testing.T) {
	b, err := Build(BuildOptions{Engine: "fake", BoardSide: 9}, &fixedDeviceMonitor{n: 0})
	require.NoError(t, err)

	res, err := b.Run([]dualnet.BoardFeatureVec{{0}})
	require.NoError(t, err)
	require.Len(t, res.Policies[0], 82) // 9x9 board: 81 points + pass
	for _, p := range res.Policies[0] {
		assert.InDelta(t, 1.0/82, p, 1e-9)
	}
}

func TestFakeEnginePriorFillsEveryMove(t *testing.T) {
	b, err := Build(BuildOptions{Engine: "fake", BoardSide: 9, FakePrior: 0.02}, &fixedDeviceMonitor{n: 0})
	require.NoError(t, err)

	res, err := b.Run([]dualnet.BoardFeatureVec{{0}})
	require.NoError(t, err)
	require.Len(t, res.Policies[0], 82)
	for _, p := range res.Policies[0] {
		assert.Equal(t, float32(0.02), p)
	}
}
