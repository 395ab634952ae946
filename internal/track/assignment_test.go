package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bruteForceBest enumerates every injective row→column mapping and returns
// the best achievable total score, pairing every row when rows <= cols.
func bruteForceBest(scores [][]float64) float64 {
	n := len(scores)
	m := len(scores[0])

	used := make([]bool, m)
	var best float64

	var recurse func(row int, total float64)
	recurse = func(row int, total float64) {
		if row == n {
			if total > best {
				best = total
			}
			return
		}
		for col := 0; col < m; col++ {
			if used[col] {
				continue
			}
			used[col] = true
			recurse(row+1, total+scores[row][col])
			used[col] = false
		}
		// Leaving a row unpaired is only possible with fewer columns.
		if m < n {
			recurse(row+1, total)
		}
	}
	recurse(0, 0)
	return best
}

func assignmentTotal(scores [][]float64, matches map[int]int) float64 {
	var total float64
	for i, j := range matches {
		total += scores[i][j]
	}
	return total
}

func TestAssignmentOptimality(t *testing.T) {
	cases := [][][]float64{
		{
			{0.9, 0.1},
			{0.8, 0.7},
		},
		{
			{0.5, 0.9, 0.1},
			{0.6, 0.8, 0.2},
			{0.1, 0.2, 0.3},
		},
		{
			{0.31, 0.84, 0.12, 0.47},
			{0.66, 0.25, 0.93, 0.08},
			{0.19, 0.73, 0.44, 0.62},
			{0.88, 0.36, 0.51, 0.29},
		},
		// A greedy matcher picks 0.9 first and ends with 0.9+0.1=1.0;
		// the optimal pairing is 0.8+0.7=1.5.
		{
			{0.9, 0.8},
			{0.7, 0.1},
		},
	}

	for _, scores := range cases {
		matches := solveAssignment(scores)
		require.Len(t, matches, len(scores))
		assert.InDelta(t, bruteForceBest(scores), assignmentTotal(scores, matches), 1e-9)

		// One-to-one: no detection claimed twice.
		seen := make(map[int]bool)
		for _, j := range matches {
			assert.False(t, seen[j])
			seen[j] = true
		}
	}
}

func TestAssignmentRectangular(t *testing.T) {
	// More detections than tracks: every track pairs with its best column.
	scores := [][]float64{
		{0.1, 0.9, 0.3},
		{0.8, 0.2, 0.4},
	}
	matches := solveAssignment(scores)
	require.Len(t, matches, 2)
	assert.Equal(t, 1, matches[0])
	assert.Equal(t, 0, matches[1])

	// More tracks than detections: one track stays unmatched.
	scores = [][]float64{
		{0.9},
		{0.5},
		{0.1},
	}
	matches = solveAssignment(scores)
	require.Len(t, matches, 1)
	assert.Equal(t, 0, matches[0])
}

func TestAssignmentEmpty(t *testing.T) {
	assert.Nil(t, solveAssignment(nil))
	assert.Nil(t, solveAssignment([][]float64{}))
	assert.Nil(t, solveAssignment([][]float64{{}}))
}
