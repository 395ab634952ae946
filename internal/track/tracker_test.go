package track

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/vtrack/internal/models"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func at(step int) time.Time {
	return t0.Add(time.Duration(step) * 100 * time.Millisecond)
}

func person(b models.BBox) models.Detection {
	return models.Detection{BBox: b, Confidence: 0.9, Class: "person"}
}

func testConfig() Config {
	return Config{
		IoUThreshold:  0.3,
		NInit:         3,
		MaxMisses:     2,
		MaxAge:        250 * time.Millisecond,
		HistoryLen:    10,
		ConfirmPolicy: ConfirmReset,
	}
}

func TestConfirmationRequiresExactlyNInitMatches(t *testing.T) {
	tr := NewTracker(testConfig())
	box := models.BBox{X1: 100, Y1: 100, X2: 150, Y2: 150}

	// Match 1: spawning detection. Reported as fresh Tentative.
	out := tr.Update([]models.Detection{person(box)}, at(0))
	require.Len(t, out, 1)
	assert.Equal(t, models.TrackTentative, out[0].State)
	assert.True(t, out[0].Fresh)
	id := out[0].TrackID

	// Match 2: still Tentative, no longer fresh, so not reported.
	out = tr.Update([]models.Detection{person(box)}, at(1))
	assert.Empty(t, out)

	// Match 3: promoted to Confirmed.
	out = tr.Update([]models.Detection{person(box)}, at(2))
	require.Len(t, out, 1)
	assert.Equal(t, models.TrackConfirmed, out[0].State)
	assert.Equal(t, id, out[0].TrackID)
}

func TestConfirmationProgressResetsOnMiss(t *testing.T) {
	tr := NewTracker(testConfig())
	box := models.BBox{X1: 100, Y1: 100, X2: 150, Y2: 150}

	tr.Update([]models.Detection{person(box)}, at(0)) // match 1
	tr.Update([]models.Detection{person(box)}, at(1)) // match 2
	tr.Update(nil, at(2))                             // miss: progress back to zero

	// Two more matches are not enough under the reset policy.
	tr.Update([]models.Detection{person(box)}, at(3))
	out := tr.Update([]models.Detection{person(box)}, at(4))
	assert.Empty(t, out)

	// The third consecutive match confirms.
	out = tr.Update([]models.Detection{person(box)}, at(5))
	require.Len(t, out, 1)
	assert.Equal(t, models.TrackConfirmed, out[0].State)
}

func TestConfirmationProgressDecrementPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.ConfirmPolicy = ConfirmDecrement
	tr := NewTracker(cfg)
	box := models.BBox{X1: 100, Y1: 100, X2: 150, Y2: 150}

	tr.Update([]models.Detection{person(box)}, at(0)) // progress 1
	tr.Update([]models.Detection{person(box)}, at(1)) // progress 2
	tr.Update(nil, at(2))                             // progress 1

	// Two matches now reach the threshold again.
	tr.Update([]models.Detection{person(box)}, at(3))
	out := tr.Update([]models.Detection{person(box)}, at(4))
	require.Len(t, out, 1)
	assert.Equal(t, models.TrackConfirmed, out[0].State)
}

func TestSmallMotionKeepsIdentityAndVelocity(t *testing.T) {
	cfg := testConfig()
	cfg.NInit = 2
	tr := NewTracker(cfg)

	out := tr.Update([]models.Detection{person(models.BBox{X1: 100, Y1: 100, X2: 150, Y2: 150})}, at(0))
	require.Len(t, out, 1)
	id := out[0].TrackID

	out = tr.Update([]models.Detection{person(models.BBox{X1: 105, Y1: 102, X2: 155, Y2: 152})}, at(1))
	require.Len(t, out, 1)
	assert.Equal(t, id, out[0].TrackID)
	assert.Equal(t, models.TrackConfirmed, out[0].State)

	// Shift of (+5, +2) px over 100ms: velocity points along the motion.
	assert.InDelta(t, 50.0, out[0].VX, 1e-6)
	assert.InDelta(t, 20.0, out[0].VY, 1e-6)
}

func TestLossRemovalAndNewIdentity(t *testing.T) {
	cfg := testConfig()
	cfg.NInit = 2
	tr := NewTracker(cfg)
	box := models.BBox{X1: 100, Y1: 100, X2: 150, Y2: 150}

	tr.Update([]models.Detection{person(box)}, at(0))
	out := tr.Update([]models.Detection{person(box)}, at(1))
	require.Len(t, out, 1)
	oldID := out[0].TrackID
	assert.Equal(t, models.TrackConfirmed, out[0].State)

	// Two consecutive misses push the track to Lost; it disappears from
	// output but is still maintained internally.
	tr.Update(nil, at(2))
	out = tr.Update(nil, at(3))
	assert.Empty(t, out)
	assert.Equal(t, 0, tr.ActiveCount())

	// Lost at step 3; MaxAge 250ms expires between step 5 and step 6.
	tr.Update(nil, at(4))
	tr.Update(nil, at(5))
	tr.Update(nil, at(6))

	retired := tr.TakeRetired()
	require.Len(t, retired, 1)
	assert.Equal(t, oldID, retired[0].ID)
	assert.True(t, retired[0].Confirmed)
	assert.Equal(t, "person", retired[0].Class)

	// Reappearance after removal spawns a brand new identity.
	out = tr.Update([]models.Detection{person(box)}, at(7))
	require.Len(t, out, 1)
	assert.NotEqual(t, oldID, out[0].TrackID)
	assert.Equal(t, models.TrackTentative, out[0].State)
}

func TestLostTrackRevivedByMatch(t *testing.T) {
	cfg := testConfig()
	cfg.NInit = 2
	cfg.MaxAge = time.Minute
	tr := NewTracker(cfg)
	box := models.BBox{X1: 100, Y1: 100, X2: 150, Y2: 150}

	tr.Update([]models.Detection{person(box)}, at(0))
	out := tr.Update([]models.Detection{person(box)}, at(1))
	require.Len(t, out, 1)
	id := out[0].TrackID

	tr.Update(nil, at(2))
	tr.Update(nil, at(3)) // Lost now

	// A match within MaxAge revives the same identity as Confirmed.
	out = tr.Update([]models.Detection{person(box)}, at(4))
	require.Len(t, out, 1)
	assert.Equal(t, id, out[0].TrackID)
	assert.Equal(t, models.TrackConfirmed, out[0].State)
}

func TestTwoObjectsKeepDistinctIdentities(t *testing.T) {
	cfg := testConfig()
	cfg.NInit = 1
	tr := NewTracker(cfg)

	a0 := models.BBox{X1: 0, Y1: 0, X2: 50, Y2: 50}
	b0 := models.BBox{X1: 200, Y1: 200, X2: 250, Y2: 250}
	out := tr.Update([]models.Detection{person(a0), person(b0)}, at(0))
	require.Len(t, out, 2)

	ids := map[string]int{}
	for _, o := range out {
		if o.BBox.X1 < 100 {
			ids["a"] = o.TrackID
		} else {
			ids["b"] = o.TrackID
		}
	}
	require.Len(t, ids, 2)

	// Both move slightly; identities must follow the geometry.
	a1 := models.BBox{X1: 5, Y1: 3, X2: 55, Y2: 53}
	b1 := models.BBox{X1: 195, Y1: 203, X2: 245, Y2: 253}
	out = tr.Update([]models.Detection{person(b1), person(a1)}, at(1))
	require.Len(t, out, 2)
	for _, o := range out {
		if o.BBox.X1 < 100 {
			assert.Equal(t, ids["a"], o.TrackID)
		} else {
			assert.Equal(t, ids["b"], o.TrackID)
		}
	}
}

func TestPredictOnlyPreservesLifecycle(t *testing.T) {
	cfg := testConfig()
	cfg.NInit = 2
	tr := NewTracker(cfg)
	box := models.BBox{X1: 100, Y1: 100, X2: 150, Y2: 150}

	tr.Update([]models.Detection{person(box)}, at(0))
	out := tr.Update([]models.Detection{person(box)}, at(1))
	require.Len(t, out, 1)
	id := out[0].TrackID

	// Dropped frames: predictions advance, no misses accrue.
	tr.Predict(at(2))
	tr.Predict(at(3))
	assert.Equal(t, 1, tr.ActiveCount())

	out = tr.Update([]models.Detection{person(box)}, at(4))
	require.Len(t, out, 1)
	assert.Equal(t, id, out[0].TrackID)
	assert.Equal(t, models.TrackConfirmed, out[0].State)
}

func TestFlushRetiresEverything(t *testing.T) {
	cfg := testConfig()
	cfg.NInit = 1
	tr := NewTracker(cfg)

	tr.Update([]models.Detection{
		person(models.BBox{X1: 0, Y1: 0, X2: 50, Y2: 50}),
		person(models.BBox{X1: 200, Y1: 200, X2: 250, Y2: 250}),
	}, at(0))

	retired := tr.Flush(at(1))
	assert.Len(t, retired, 2)
	assert.Equal(t, 0, tr.ActiveCount())
	assert.Empty(t, tr.TakeRetired())
}

func TestGateRejectsWeakOverlap(t *testing.T) {
	cfg := testConfig()
	cfg.NInit = 1
	tr := NewTracker(cfg)

	out := tr.Update([]models.Detection{person(models.BBox{X1: 100, Y1: 100, X2: 150, Y2: 150})}, at(0))
	require.Len(t, out, 1)
	id := out[0].TrackID

	// A far-away detection overlaps too little: the old track misses and a
	// new one spawns.
	out = tr.Update([]models.Detection{person(models.BBox{X1: 400, Y1: 400, X2: 450, Y2: 450})}, at(1))
	require.Len(t, out, 2)
	var newID int
	for _, o := range out {
		if o.TrackID != id {
			newID = o.TrackID
		}
	}
	assert.NotZero(t, newID)
}
