package detect

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/vtrack/internal/models"
)

func TestNonMaxSuppressKeepsBestPerCluster(t *testing.T) {
	dets := []models.Detection{
		{BBox: models.BBox{X1: 0, Y1: 0, X2: 100, Y2: 100}, Confidence: 0.9, Class: "person"},
		{BBox: models.BBox{X1: 5, Y1: 5, X2: 105, Y2: 105}, Confidence: 0.7, Class: "person"},
		{BBox: models.BBox{X1: 300, Y1: 300, X2: 400, Y2: 400}, Confidence: 0.8, Class: "person"},
	}

	kept := nonMaxSuppress(dets, 0.45)
	require.Len(t, kept, 2)
	assert.Equal(t, 0.9, kept[0].Confidence)
	assert.Equal(t, 0.8, kept[1].Confidence)
}

func TestNonMaxSuppressIsClassAware(t *testing.T) {
	dets := []models.Detection{
		{BBox: models.BBox{X1: 0, Y1: 0, X2: 100, Y2: 100}, Confidence: 0.9, Class: "person"},
		{BBox: models.BBox{X1: 0, Y1: 0, X2: 100, Y2: 100}, Confidence: 0.8, Class: "bicycle"},
	}

	kept := nonMaxSuppress(dets, 0.45)
	assert.Len(t, kept, 2, "overlap across classes is not suppressed")
}

func TestDecodeScalesAndThresholds(t *testing.T) {
	d := &ONNXDetector{
		inputSize:    640,
		threshold:    0.5,
		nmsThreshold: 0.45,
		labels:       []string{"person", "car"},
	}

	// Two anchors, 4 box rows + 2 class rows, row-major [attrs][anchors].
	attrs, anchors := 6, 2
	vals := make([]float32, attrs*anchors)
	// Anchor 0: centered box 320,320 size 64x64, person score 0.9.
	vals[0*anchors+0] = 320
	vals[1*anchors+0] = 320
	vals[2*anchors+0] = 64
	vals[3*anchors+0] = 64
	vals[4*anchors+0] = 0.9
	// Anchor 1: below threshold on every class.
	vals[4*anchors+1] = 0.3
	vals[5*anchors+1] = 0.2

	// Original image is 1280x640: x doubles, y stays.
	dets := d.decode(vals, attrs, anchors, 1280, 640)
	require.Len(t, dets, 1)
	assert.Equal(t, "person", dets[0].Class)
	assert.InDelta(t, 0.9, dets[0].Confidence, 1e-6)
	assert.InDelta(t, 576, dets[0].BBox.X1, 1e-6)
	assert.InDelta(t, 288, dets[0].BBox.Y1, 1e-6)
	assert.InDelta(t, 704, dets[0].BBox.X2, 1e-6)
	assert.InDelta(t, 352, dets[0].BBox.Y2, 1e-6)
}

func TestPreprocessLayoutAndRange(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 0, B: 128, A: 255})
		}
	}

	data := preprocess(img, 8)
	require.Len(t, data, 3*8*8)
	assert.InDelta(t, 1.0, data[0], 1e-6, "red plane first")
	assert.InDelta(t, 0.0, data[64], 1e-6, "green plane second")
	assert.InDelta(t, 128.0/255.0, data[128], 1e-6, "blue plane third")
}

func TestPreprocessCropCentersRange(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 0, B: 128, A: 255})
		}
	}

	data := preprocessCrop(img, 2, 4)
	require.Len(t, data, 3*4*2)
	assert.InDelta(t, 1.0, data[0], 1e-6, "red maps to +1")
	assert.InDelta(t, -1.0, data[8], 1e-6, "green maps to -1")
	assert.InDelta(t, (128.0-127.5)/127.5, data[16], 1e-6)
}

func TestL2NormalizeUnitLength(t *testing.T) {
	v := []float32{3, 4}
	l2Normalize(v)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	l2Normalize(zero)
	assert.Equal(t, []float32{0, 0}, zero, "zero vector stays zero")
}
