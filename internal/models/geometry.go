package models

import "math"

// iouEpsilon floors the union area so a pair of degenerate boxes can never
// divide by zero.
const iouEpsilon = 1e-9

// BBox is an axis-aligned bounding box in frame pixel space.
// Invariant: X1 < X2 and Y1 < Y2 for any box with area.
type BBox struct {
	X1, Y1, X2, Y2 float64
}

// Width returns the horizontal extent, never negative.
func (b BBox) Width() float64 {
	return math.Max(0, b.X2-b.X1)
}

// Height returns the vertical extent, never negative.
func (b BBox) Height() float64 {
	return math.Max(0, b.Y2-b.Y1)
}

// Area returns the box area, zero for degenerate boxes.
func (b BBox) Area() float64 {
	return b.Width() * b.Height()
}

// Center returns the box center point.
func (b BBox) Center() (x, y float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// IoU computes intersection-over-union of two boxes: 0 for disjoint or
// zero-area boxes, 1 for identical boxes.
func IoU(a, b BBox) float64 {
	ix1 := math.Max(a.X1, b.X1)
	iy1 := math.Max(a.Y1, b.Y1)
	ix2 := math.Min(a.X2, b.X2)
	iy2 := math.Min(a.Y2, b.Y2)

	inter := math.Max(0, ix2-ix1) * math.Max(0, iy2-iy1)
	if inter <= 0 {
		return 0
	}

	union := a.Area() + b.Area() - inter
	if union < iouEpsilon {
		return 0
	}
	return inter / union
}
