package pipeline

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/vtrack/internal/models"
)

func grayFrame(w, h int, level uint8) *models.Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: level, G: level, B: level, A: 255})
		}
	}
	return &models.Frame{SessionID: "cam-1", Image: img}
}

func TestHashFrameDeterministic(t *testing.T) {
	a, err := HashFrame(grayFrame(640, 480, 100))
	require.NoError(t, err)
	b, err := HashFrame(grayFrame(640, 480, 100))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// Hashing samples a fixed grid, so resolution alone should not change
	// the fingerprint of uniform content.
	c, err := HashFrame(grayFrame(1280, 720, 100))
	require.NoError(t, err)
	assert.Equal(t, a, c)

	d, err := HashFrame(grayFrame(640, 480, 200))
	require.NoError(t, err)
	assert.NotEqual(t, a, d)
}

func TestHashFrameToleratesSensorNoise(t *testing.T) {
	base := grayFrame(320, 240, 100)
	noisy := grayFrame(320, 240, 100)
	img := noisy.Image.(*image.RGBA)
	for y := 0; y < 240; y += 3 {
		for x := 0; x < 320; x += 3 {
			// +3 stays inside the same quantization bucket as 100.
			img.Set(x, y, color.RGBA{R: 103, G: 103, B: 103, A: 255})
		}
	}

	a, err := HashFrame(base)
	require.NoError(t, err)
	b, err := HashFrame(noisy)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestHashFrameRejectsInvalid(t *testing.T) {
	_, err := HashFrame(nil)
	assert.ErrorIs(t, err, models.ErrInvalidFrame)

	_, err = HashFrame(&models.Frame{SessionID: "cam-1"})
	assert.ErrorIs(t, err, models.ErrInvalidFrame)

	empty := &models.Frame{SessionID: "cam-1", Image: image.NewRGBA(image.Rect(0, 0, 0, 0))}
	_, err = HashFrame(empty)
	assert.ErrorIs(t, err, models.ErrInvalidFrame)
}
