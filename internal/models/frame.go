package models

import (
	"image"
	"time"

	"github.com/google/uuid"
)

// FrameHash is a perceptual fingerprint of a decoded frame, used as the
// dedup/cache key. Visually identical frames produce the same hash.
type FrameHash uint64

// Frame is one decoded camera frame plus its metadata. The raster is owned
// by the pipeline for exactly one pass; nothing retains it afterwards except
// an optional snapshot crop.
type Frame struct {
	SessionID string
	FrameID   uuid.UUID
	Image     image.Image
	Timestamp time.Time
	Pose      []float64 // optional device pose, client-reported
}
