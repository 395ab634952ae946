package models

import "time"

// Detection is one per-frame observation produced by the detector. It is
// immutable and lives for a single pipeline pass; the tracker copies what it
// needs into the matched track.
type Detection struct {
	BBox       BBox
	Confidence float64
	Class      string
	Landmarks  [][2]float64 // optional keypoints
	Embedding  []float32    // optional appearance vector
}

// TrackState is the lifecycle state of a track.
type TrackState string

const (
	TrackTentative TrackState = "tentative"
	TrackConfirmed TrackState = "confirmed"
	TrackLost      TrackState = "lost"
)

// TrackedObject is one tracked identity as reported to the client for a
// single frame.
type TrackedObject struct {
	TrackID    int        `json:"track_id"`
	BBox       BBox       `json:"-"`
	Class      string     `json:"class"`
	Confidence float64    `json:"confidence"`
	State      TrackState `json:"state"`
	// Velocity is the estimated displacement per second of the box center,
	// derived from the two most recent history points.
	VX, VY float64 `json:"-"`
	// Fresh is set on the update that spawned or confirmed the track, so
	// downstream can react to the transition exactly once.
	Fresh bool `json:"-"`
}

// TrackEvent is a finalized track/behavior summary handed to the
// persistence/analytics collaborator. The pipeline never blocks on its
// delivery.
type TrackEvent struct {
	Type        string    `json:"type"` // track_confirmed, track_finished
	SessionID   string    `json:"session_id"`
	TrackID     int       `json:"track_id"`
	Class       string    `json:"class"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	Frames      int       `json:"frames"`
	AvgSpeed    float64   `json:"avg_speed"`
	PeakSpeed   float64   `json:"peak_speed"`
	Risk        string    `json:"risk,omitempty"`
	Behaviors   []string  `json:"behaviors,omitempty"`
	Embedding   []float32 `json:"embedding,omitempty"`
	SnapshotKey string    `json:"snapshot_key,omitempty"`
}
