package backend

import (
	"errors"
	"testing"

	"github.com/kunal/dualnet-batcher/pkg/dualnet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherRunsAcrossWorkers(t *testing.T) {
	d, err := NewDispatcher(1, func(int) (dualnet.Backend, error) {
		return NewFake(nil, 0.25, 3), nil
	})
	require.NoError(t, err)
	defer d.Close()

	for i := 0; i < 10; i++ {
		res, err := d.Run([]dualnet.BoardFeatureVec{{float32(i)}})
		require.NoError(t, err)
		assert.Len(t, res.Values, 1)
	}
}

func TestDispatcherFailsAllRequestsOnceEveryWorkerIsOut(t *testing.T) {
	d, err := NewDispatcher(1, func(int) (dualnet.Backend, error) {
		return &failingExec{}, nil
	})
	require.NoError(t, err)
	defer d.Close()

	// 1 device => 2 workers, both backed by the same failing executor
	// type. Whichever worker takes a request either trips on it or, if
	// already out of service, refuses it with ErrBackendFailed.
	_, err1 := d.Run([]dualnet.BoardFeatureVec{{0}})
	_, err2 := d.Run([]dualnet.BoardFeatureVec{{0}})
	assert.True(t, errors.Is(err1, dualnet.ErrBackendFailed))
	assert.True(t, errors.Is(err2, dualnet.ErrBackendFailed))

	_, err3 := d.Run([]dualnet.BoardFeatureVec{{0}})
	assert.True(t, errors.Is(err3, dualnet.ErrBackendFailed))
}

func TestDispatcherCloseUnblocksPendingRun(t *testing.T) {
	d, err := NewDispatcher(1, func(int) (dualnet.Backend, error) {
		return NewFake(nil, 0, 3), nil
	})
	require.NoError(t, err)
	require.NoError(t, d.Close())

	_, err = d.Run([]dualnet.BoardFeatureVec{{0}})
	assert.ErrorIs(t, err, dualnet.ErrShutdown)
}
