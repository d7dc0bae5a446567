package backend

import (
	"testing"

	"github.com/kunal/dualnet-batcher/pkg/dualnet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedProducesNormalizedPolicies(t *testing.T) {
	s := NewSimulated("lite", 5, 1, 4)
	res, err := s.Run([]dualnet.BoardFeatureVec{{0}, {1}})
	require.NoError(t, err)
	require.Len(t, res.Policies, 2)
	for _, p := range res.Policies {
		var sum float32
		for _, v := range p {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-4)
	}
	for _, v := range res.Values {
		assert.GreaterOrEqual(t, v, float32(-1))
		assert.LessOrEqual(t, v, float32(1))
	}
}

func TestSimulatedRejectsEmptyBatch(t *testing.T) {
	s := NewSimulated("trt", 5, 1, 4)
	_, err := s.Run(nil)
	assert.Error(t, err)
}
