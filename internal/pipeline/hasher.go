package pipeline

import (
	"hash/fnv"
	"image"

	"github.com/your-org/vtrack/internal/models"
)

// Frame fingerprinting for the dedup cache. The raster is sampled on a fixed
// grid so hashing cost is independent of resolution, and luma is quantized so
// frames differing only by sensor noise usually still collide.
const (
	hashGrid      = 32
	lumaQuantBits = 4
)

// HashFrame computes the perceptual fingerprint of a decoded frame.
// Returns ErrInvalidFrame for a nil or empty raster.
func HashFrame(f *models.Frame) (models.FrameHash, error) {
	if f == nil || f.Image == nil {
		return 0, models.ErrInvalidFrame
	}
	bounds := f.Image.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return 0, models.ErrInvalidFrame
	}

	h := fnv.New64a()
	buf := make([]byte, 0, hashGrid*hashGrid)
	for gy := 0; gy < hashGrid; gy++ {
		for gx := 0; gx < hashGrid; gx++ {
			sx := bounds.Min.X + gx*bounds.Dx()/hashGrid
			sy := bounds.Min.Y + gy*bounds.Dy()/hashGrid
			buf = append(buf, quantizedLuma(f.Image, sx, sy))
		}
	}
	if _, err := h.Write(buf); err != nil {
		return 0, models.ErrInvalidFrame
	}
	return models.FrameHash(h.Sum64()), nil
}

// quantizedLuma samples one pixel and keeps only the top bits of its
// luminance, collapsing low-order sensor noise.
func quantizedLuma(img image.Image, x, y int) byte {
	r, g, b, _ := img.At(x, y).RGBA()
	// BT.601 luma from 16-bit channel values, scaled back to 8 bits.
	luma := (299*r + 587*g + 114*b) / 1000 >> 8
	return byte(luma >> lumaQuantBits)
}
