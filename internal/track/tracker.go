package track

import (
	"math"
	"time"

	"github.com/your-org/vtrack/internal/models"
)

// ConfirmPolicy controls how a Tentative track's confirmation progress reacts
// to a missed update.
type ConfirmPolicy int

const (
	// ConfirmReset zeroes confirmation progress on any miss.
	ConfirmReset ConfirmPolicy = iota
	// ConfirmDecrement takes one step back per miss instead.
	ConfirmDecrement
)

// ParseConfirmPolicy maps a config string to a policy, defaulting to reset.
func ParseConfirmPolicy(s string) ConfirmPolicy {
	if s == "decrement" {
		return ConfirmDecrement
	}
	return ConfirmReset
}

// Config holds tracker tuning parameters.
type Config struct {
	// IoUThreshold gates assignment: pairings with IoU below it count as
	// unmatched for both sides.
	IoUThreshold float64
	// NInit is the number of consecutive matched updates required to
	// promote Tentative to Confirmed (the spawning detection counts).
	NInit int
	// MaxMisses is the number of consecutive unmatched updates after which
	// a track transitions to Lost.
	MaxMisses int
	// MaxAge is how long a Lost track survives without a match before it
	// is removed.
	MaxAge time.Duration
	// HistoryLen bounds the per-track position history.
	HistoryLen int
	// ConfirmPolicy selects miss handling for confirmation progress.
	ConfirmPolicy ConfirmPolicy
}

// DefaultConfig returns the tracker defaults.
func DefaultConfig() Config {
	return Config{
		IoUThreshold:  0.3,
		NInit:         3,
		MaxMisses:     30,
		MaxAge:        10 * time.Second,
		HistoryLen:    30,
		ConfirmPolicy: ConfirmReset,
	}
}

// Point is one position sample in a track's history.
type Point struct {
	X, Y float64
	TS   time.Time
}

// Track is one persistent object identity. Owned exclusively by the tracker
// of a single session.
type Track struct {
	id         int
	class      string
	confidence float64
	state      models.TrackState

	filter  *kalmanFilter
	history []Point
	vx, vy  float64

	hits      int // consecutive matches toward confirmation
	misses    int // consecutive misses
	confirmed bool

	firstSeen  time.Time
	lastUpdate time.Time
	lostSince  time.Time

	frames    int
	peakSpeed float64
	speedSum  float64
	fresh     bool

	embedding []float32
}

// Retired is the summary of a removed track, handed downstream for
// behavior analysis and persistence.
type Retired struct {
	ID        int
	Class     string
	Confirmed bool
	FirstSeen time.Time
	LastSeen  time.Time
	Frames    int
	AvgSpeed  float64
	PeakSpeed float64
	History   []Point
	Embedding []float32
}

// Tracker associates per-frame detections to persistent tracks for one
// session. It is not safe for concurrent use and does not need to be: each
// session's frame flow is the only mutator.
type Tracker struct {
	cfg     Config
	tracks  []*Track
	retired []Retired
	nextID  int
	lastTS  time.Time
}

// NewTracker creates a tracker for one session.
func NewTracker(cfg Config) *Tracker {
	if cfg.NInit <= 0 {
		cfg.NInit = 1
	}
	if cfg.HistoryLen <= 0 {
		cfg.HistoryLen = 2
	}
	return &Tracker{cfg: cfg}
}

// Update runs one tracking step for the detection set observed at ts:
// predict, associate, update matched, spawn unmatched detections, degrade
// unmatched tracks, retire expired ones. It returns the Confirmed tracks plus
// freshly spawned Tentative ones.
func (t *Tracker) Update(dets []models.Detection, ts time.Time) []models.TrackedObject {
	dt := t.advance(ts)

	for _, tr := range t.tracks {
		tr.fresh = false
		tr.filter.predict(dt)
	}

	matchedDets := make([]bool, len(dets))
	matches := t.associate(dets)

	for i, tr := range t.tracks {
		if j, ok := matches[i]; ok {
			tr.observe(dets[j], ts, t.cfg)
			matchedDets[j] = true
		} else {
			tr.miss(ts, t.cfg)
		}
	}

	for j := range dets {
		if !matchedDets[j] {
			t.spawn(dets[j], ts)
		}
	}

	t.removeExpired(ts)

	return t.snapshot()
}

// Predict advances every track's motion estimate to ts without applying any
// lifecycle transitions. Used when a frame is dropped (detection failure) so
// track state stays synchronized with wall-clock time.
func (t *Tracker) Predict(ts time.Time) {
	dt := t.advance(ts)
	for _, tr := range t.tracks {
		tr.filter.predict(dt)
	}
}

// TakeRetired returns tracks removed since the last call and clears the list.
func (t *Tracker) TakeRetired() []Retired {
	out := t.retired
	t.retired = nil
	return out
}

// Flush retires every remaining track immediately. Called when the owning
// session closes so no track state outlives it.
func (t *Tracker) Flush(ts time.Time) []Retired {
	for _, tr := range t.tracks {
		t.retired = append(t.retired, tr.summary(ts))
	}
	t.tracks = nil
	return t.TakeRetired()
}

// SetEmbedding attaches an appearance vector to a live track so its retired
// summary carries it. A no-op when the track has already been retired.
func (t *Tracker) SetEmbedding(trackID int, embedding []float32) {
	for _, tr := range t.tracks {
		if tr.id == trackID {
			tr.embedding = embedding
			return
		}
	}
}

// ActiveCount returns the number of live (non-Lost) tracks.
func (t *Tracker) ActiveCount() int {
	n := 0
	for _, tr := range t.tracks {
		if tr.state != models.TrackLost {
			n++
		}
	}
	return n
}

// advance computes elapsed seconds since the previous update and records ts.
func (t *Tracker) advance(ts time.Time) float64 {
	var dt float64
	if !t.lastTS.IsZero() {
		dt = ts.Sub(t.lastTS).Seconds()
		if dt < 0 {
			dt = 0
		}
	}
	t.lastTS = ts
	return dt
}

// associate builds the IoU matrix between predicted track boxes and
// detections, solves the assignment, and gates out weak pairings.
func (t *Tracker) associate(dets []models.Detection) map[int]int {
	if len(t.tracks) == 0 || len(dets) == 0 {
		return nil
	}

	scores := make([][]float64, len(t.tracks))
	for i, tr := range t.tracks {
		row := make([]float64, len(dets))
		predicted := tr.filter.bbox()
		for j, det := range dets {
			row[j] = models.IoU(predicted, det.BBox)
		}
		scores[i] = row
	}

	matches := solveAssignment(scores)
	for i, j := range matches {
		if scores[i][j] < t.cfg.IoUThreshold {
			delete(matches, i)
		}
	}
	return matches
}

func (t *Tracker) spawn(det models.Detection, ts time.Time) {
	t.nextID++
	cx, cy := det.BBox.Center()
	tr := &Track{
		id:         t.nextID,
		class:      det.Class,
		confidence: det.Confidence,
		state:      models.TrackTentative,
		filter:     newKalmanFilter(det.BBox),
		history:    []Point{{X: cx, Y: cy, TS: ts}},
		hits:       1,
		firstSeen:  ts,
		lastUpdate: ts,
		frames:     1,
		fresh:      true,
		embedding:  det.Embedding,
	}
	if t.cfg.NInit <= 1 {
		tr.state = models.TrackConfirmed
		tr.confirmed = true
	}
	t.tracks = append(t.tracks, tr)
}

func (t *Tracker) removeExpired(ts time.Time) {
	kept := t.tracks[:0]
	for _, tr := range t.tracks {
		if tr.state == models.TrackLost && ts.Sub(tr.lostSince) > t.cfg.MaxAge {
			t.retired = append(t.retired, tr.summary(ts))
			continue
		}
		kept = append(kept, tr)
	}
	t.tracks = kept
}

func (t *Tracker) snapshot() []models.TrackedObject {
	out := make([]models.TrackedObject, 0, len(t.tracks))
	for _, tr := range t.tracks {
		if tr.state != models.TrackConfirmed && !tr.fresh {
			continue
		}
		out = append(out, models.TrackedObject{
			TrackID:    tr.id,
			BBox:       tr.filter.bbox(),
			Class:      tr.class,
			Confidence: tr.confidence,
			State:      tr.state,
			VX:         tr.vx,
			VY:         tr.vy,
			Fresh:      tr.fresh,
		})
	}
	return out
}

// observe folds a matched detection into the track and advances lifecycle.
func (tr *Track) observe(det models.Detection, ts time.Time, cfg Config) {
	tr.filter.correct(det.BBox)
	tr.class = det.Class
	tr.confidence = det.Confidence
	if det.Embedding != nil {
		tr.embedding = det.Embedding
	}
	tr.misses = 0
	tr.frames++
	tr.lastUpdate = ts

	if tr.state == models.TrackLost {
		// A match revives a lost track; confirmation progress restarts
		// unless it was already confirmed.
		if tr.confirmed {
			tr.state = models.TrackConfirmed
		} else {
			tr.state = models.TrackTentative
			tr.hits = 0
		}
	}

	tr.hits++
	if tr.state == models.TrackTentative && tr.hits >= cfg.NInit {
		tr.state = models.TrackConfirmed
		tr.confirmed = true
		tr.fresh = true
	}

	cx, cy := det.BBox.Center()
	tr.history = append(tr.history, Point{X: cx, Y: cy, TS: ts})
	if len(tr.history) > cfg.HistoryLen {
		tr.history = tr.history[len(tr.history)-cfg.HistoryLen:]
	}
	tr.updateVelocity()
}

// miss advances lifecycle for a track with no matching detection.
func (tr *Track) miss(ts time.Time, cfg Config) {
	tr.misses++

	if tr.state == models.TrackTentative {
		switch cfg.ConfirmPolicy {
		case ConfirmDecrement:
			if tr.hits > 0 {
				tr.hits--
			}
		default:
			tr.hits = 0
		}
	}

	if tr.state != models.TrackLost && tr.misses >= cfg.MaxMisses {
		tr.state = models.TrackLost
		tr.lostSince = ts
	}
}

// updateVelocity derives velocity from the displacement between the two most
// recent history points, zero when fewer than two exist.
func (tr *Track) updateVelocity() {
	n := len(tr.history)
	if n < 2 {
		tr.vx, tr.vy = 0, 0
		return
	}
	prev, curr := tr.history[n-2], tr.history[n-1]
	dt := curr.TS.Sub(prev.TS).Seconds()
	if dt <= 0 {
		tr.vx, tr.vy = 0, 0
		return
	}
	tr.vx = (curr.X - prev.X) / dt
	tr.vy = (curr.Y - prev.Y) / dt

	speed := math.Hypot(tr.vx, tr.vy)
	tr.speedSum += speed
	if speed > tr.peakSpeed {
		tr.peakSpeed = speed
	}
}

func (tr *Track) summary(ts time.Time) Retired {
	history := make([]Point, len(tr.history))
	copy(history, tr.history)

	var avg float64
	if tr.frames > 1 {
		avg = tr.speedSum / float64(tr.frames-1)
	}
	return Retired{
		ID:        tr.id,
		Class:     tr.class,
		Confirmed: tr.confirmed,
		FirstSeen: tr.firstSeen,
		LastSeen:  tr.lastUpdate,
		Frames:    tr.frames,
		AvgSpeed:  avg,
		PeakSpeed: tr.peakSpeed,
		History:   history,
		Embedding: tr.embedding,
	}
}
