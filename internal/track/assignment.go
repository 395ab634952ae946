package track

import (
	hungarian "github.com/arthurkushman/go-hungarian"
)

// solveAssignment solves the one-to-one track/detection pairing that
// maximises total IoU, which is the same pairing that minimises total
// (1 - IoU) cost. scores is a |tracks| x |detections| IoU matrix. The result
// maps track index to detection index; tracks left unpaired are absent.
//
// The Hungarian solver wants a square matrix, so rectangular inputs are
// padded with zero-score dummy rows/columns; pairings that land in the
// padding are discarded.
func solveAssignment(scores [][]float64) map[int]int {
	numTracks := len(scores)
	if numTracks == 0 {
		return nil
	}
	numDets := len(scores[0])
	if numDets == 0 {
		return nil
	}

	size := numTracks
	if numDets > size {
		size = numDets
	}

	padded := make([][]float64, size)
	for i := range padded {
		padded[i] = make([]float64, size)
		if i < numTracks {
			copy(padded[i], scores[i])
		}
	}

	assignment := hungarian.SolveMax(padded)

	matches := make(map[int]int, numTracks)
	for row, cols := range assignment {
		if row >= numTracks {
			continue
		}
		for col := range cols {
			if col < numDets {
				matches[row] = col
			}
			break
		}
	}
	return matches
}
