package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeEmptyHistoryIsAllZeroExceptToPlay(t *testing.T) {
	const side = 9
	out := NewFeatureVec(side)
	Encode(nil, side, Black, out)

	planeWidth := 2*MoveHistory + 1
	for p := 0; p < side*side; p++ {
		for i := 0; i < MoveHistory; i++ {
			assert.Zero(t, out[p*planeWidth+2*i])
			assert.Zero(t, out[p*planeWidth+2*i+1])
		}
		assert.Equal(t, float32(1), out[p*planeWidth+2*MoveHistory])
	}
}

func TestEncodeCurrentAndOpponentStones(t *testing.T) {
	const side = 3
	board := Board{Black, White, Empty, Empty, Empty, Empty, Empty, Empty, Empty}
	out := NewFeatureVec(side)
	Encode([]Board{board}, side, Black, out)

	planeWidth := 2*MoveHistory + 1
	assert.Equal(t, float32(1), out[0*planeWidth+0]) // point 0: black, current player's stone
	assert.Equal(t, float32(0), out[0*planeWidth+1])
	assert.Equal(t, float32(0), out[1*planeWidth+0]) // point 1: white, opponent's stone
	assert.Equal(t, float32(1), out[1*planeWidth+1])
	assert.Equal(t, float32(1), out[1*planeWidth+2*MoveHistory]) // to-play flag constant across points
}

func TestEncodePanicsOnWrongLength(t *testing.T) {
	defer func() {
		require.NotNil(t, recover())
	}()
	Encode(nil, 9, Black, make([]float32, 3))
}

func TestPolicySize(t *testing.T) {
	assert.Equal(t, 82, PolicySize(9))
	assert.Equal(t, 362, PolicySize(19))
}
