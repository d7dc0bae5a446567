// Package features implements the pure board-to-tensor encoding the
// coordinator's clients call before Evaluate — an excluded collaborator
// per spec.md §1, but concrete here since a runnable demo needs one.
package features

import "github.com/kunal/dualnet-batcher/pkg/dualnet"

// Color identifies the occupant of a board point.
type Color int8

const (
	Empty Color = iota
	Black
	White
)

func (c Color) Opponent() Color {
	switch c {
	case Black:
		return White
	case White:
		return Black
	default:
		return Empty
	}
}

// Board is a flattened Side*Side grid of stones, row-major.
type Board []Color

// MoveHistory is the fixed history depth H referenced throughout
// spec.md §3 (2H binary planes plus one to-play plane).
const MoveHistory = dualnet.MoveHistory

// Encode writes F = (2*MoveHistory+1)*Side^2 floats into out, following
// spec.md §3's layout exactly: for each of the Side^2 points, 2H binary
// planes (current player's stones then opponent's stones, at times
// t, t-1, ..., t-H+1) followed by one plane flag (1 if black to play,
// else 0). history[0] is the most recent position; entries beyond
// len(history) are treated as empty boards, matching a game's opening
// moves where less than H history exists.
func Encode(history []Board, side int, toPlay Color, out dualnet.BoardFeatureVec) {
	n := side * side
	want := (2*MoveHistory+1)*n
	if len(out) != want {
		panic("features: out has wrong length for this board size")
	}

	for t := 0; t < MoveHistory; t++ {
		var b Board
		if t < len(history) {
			b = history[t]
		}
		for p := 0; p < n; p++ {
			var mine, theirs float32
			if p < len(b) {
				switch b[p] {
				case toPlay:
					mine = 1
				case toPlay.Opponent():
					theirs = 1
				}
			}
			out[p*(2*MoveHistory+1)+2*t] = mine
			out[p*(2*MoveHistory+1)+2*t+1] = theirs
		}
	}

	toPlayFlag := float32(0)
	if toPlay == Black {
		toPlayFlag = 1
	}
	for p := 0; p < n; p++ {
		out[p*(2*MoveHistory+1)+2*MoveHistory] = toPlayFlag
	}
}

// NewFeatureVec allocates a zeroed BoardFeatureVec sized for a board of
// the given side length.
func NewFeatureVec(side int) dualnet.BoardFeatureVec {
	return make(dualnet.BoardFeatureVec, (2*MoveHistory+1)*side*side)
}

// PolicySize returns M = side^2 + 1, the legal-move count including pass.
func PolicySize(side int) int {
	return side*side + 1
}
