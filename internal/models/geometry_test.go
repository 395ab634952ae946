package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIoU(t *testing.T) {
	tests := []struct {
		name string
		a, b BBox
		want float64
	}{
		{
			name: "partial overlap",
			a:    BBox{0, 0, 10, 10},
			b:    BBox{5, 5, 15, 15},
			want: 25.0 / 175.0,
		},
		{
			name: "disjoint",
			a:    BBox{0, 0, 10, 10},
			b:    BBox{20, 20, 30, 30},
			want: 0,
		},
		{
			name: "identical",
			a:    BBox{3, 4, 8, 9},
			b:    BBox{3, 4, 8, 9},
			want: 1,
		},
		{
			name: "touching edges",
			a:    BBox{0, 0, 10, 10},
			b:    BBox{10, 0, 20, 10},
			want: 0,
		},
		{
			name: "zero-area box",
			a:    BBox{5, 5, 5, 5},
			b:    BBox{0, 0, 10, 10},
			want: 0,
		},
		{
			name: "both zero-area",
			a:    BBox{5, 5, 5, 5},
			b:    BBox{5, 5, 5, 5},
			want: 0,
		},
		{
			name: "contained",
			a:    BBox{0, 0, 10, 10},
			b:    BBox{2, 2, 4, 4},
			want: 4.0 / 100.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, IoU(tt.a, tt.b), 1e-9)
			// IoU is symmetric.
			assert.InDelta(t, tt.want, IoU(tt.b, tt.a), 1e-9)
		})
	}
}

func TestBBoxGeometry(t *testing.T) {
	b := BBox{10, 20, 30, 60}
	assert.Equal(t, 20.0, b.Width())
	assert.Equal(t, 40.0, b.Height())
	assert.Equal(t, 800.0, b.Area())

	cx, cy := b.Center()
	assert.Equal(t, 20.0, cx)
	assert.Equal(t, 40.0, cy)

	// Inverted box clamps to zero extent instead of going negative.
	inv := BBox{30, 60, 10, 20}
	assert.Equal(t, 0.0, inv.Width())
	assert.Equal(t, 0.0, inv.Area())
}
