package track

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/your-org/vtrack/internal/models"
)

func TestKalmanStaticBox(t *testing.T) {
	box := models.BBox{X1: 100, Y1: 100, X2: 150, Y2: 150}
	kf := newKalmanFilter(box)

	// A static observation sequence keeps the estimate on the box.
	for i := 0; i < 5; i++ {
		kf.predict(0.1)
		kf.correct(box)
	}

	got := kf.bbox()
	assert.InDelta(t, box.X1, got.X1, 1.0)
	assert.InDelta(t, box.Y1, got.Y1, 1.0)
	assert.InDelta(t, box.X2, got.X2, 1.0)
	assert.InDelta(t, box.Y2, got.Y2, 1.0)
}

func TestKalmanLearnsMotion(t *testing.T) {
	kf := newKalmanFilter(models.BBox{X1: 0, Y1: 0, X2: 50, Y2: 50})

	// Feed a box moving +10px per step in x.
	for i := 1; i <= 6; i++ {
		kf.predict(0.1)
		shift := float64(i * 10)
		kf.correct(models.BBox{X1: shift, Y1: 0, X2: shift + 50, Y2: 0 + 50})
	}

	before := kf.bbox()
	kf.predict(0.1)
	after := kf.bbox()

	// The prediction extrapolates forward along the learned motion.
	cxBefore, _ := before.Center()
	cxAfter, _ := after.Center()
	assert.Greater(t, cxAfter, cxBefore)
}

func TestKalmanBBoxNeverDegenerate(t *testing.T) {
	kf := newKalmanFilter(models.BBox{X1: 10, Y1: 10, X2: 10.5, Y2: 10.5})
	for i := 0; i < 10; i++ {
		kf.predict(0.5)
	}
	b := kf.bbox()
	assert.Greater(t, b.Width(), 0.0)
	assert.Greater(t, b.Height(), 0.0)
}
