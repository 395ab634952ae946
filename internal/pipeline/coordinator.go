package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/your-org/vtrack/internal/models"
	"github.com/your-org/vtrack/internal/observability"
	"github.com/your-org/vtrack/internal/track"
)

// PendingOwner registers in-flight inference handles so their owner (the
// session) can cancel them all at close.
type PendingOwner interface {
	TrackPending(*Pending)
	ReleasePending(*Pending)
}

// Recorder receives finalized track events. Implementations must not block
// the caller.
type Recorder interface {
	Record(ev models.TrackEvent)
}

// SnapshotStore persists track snapshot crops.
type SnapshotStore interface {
	PutSnapshot(ctx context.Context, key string, jpegData []byte) error
}

// Analyzer classifies a finished track's movement history.
type Analyzer interface {
	Analyze(r track.Retired) (risk string, behaviors []string)
}

// Embedder extracts an appearance vector from a track crop, enabling
// cross-event similarity search.
type Embedder interface {
	Embed(crop image.Image) ([]float32, error)
}

// Coordinator wires one frame through the full pipeline: hash, cache lookup,
// batched inference on miss, tracker update, and event/snapshot fan-out. One
// coordinator is shared by every session; per-session state (the tracker)
// is passed in by the caller, which owns it.
type Coordinator struct {
	cache     *ResultCache
	batcher   *Batcher
	recorder  Recorder
	snapshots SnapshotStore
	analyzer  Analyzer
	embedder  Embedder
}

// NewCoordinator assembles the pipeline. recorder, snapshots, analyzer and
// embedder may be nil; the corresponding step is skipped.
func NewCoordinator(cache *ResultCache, batcher *Batcher, recorder Recorder, snapshots SnapshotStore, analyzer Analyzer, embedder Embedder) *Coordinator {
	return &Coordinator{
		cache:     cache,
		batcher:   batcher,
		recorder:  recorder,
		snapshots: snapshots,
		analyzer:  analyzer,
		embedder:  embedder,
	}
}

// HandleFrame processes one frame for one session and returns the tracked
// objects visible after this update. On detection failure the tracker is
// advanced by prediction only, so identities survive transient model
// outages, and the error is returned for the caller to report.
func (c *Coordinator) HandleFrame(ctx context.Context, owner PendingOwner, tracker *track.Tracker, frame *models.Frame) ([]models.TrackedObject, error) {
	hash, err := HashFrame(frame)
	if err != nil {
		observability.FramesDropped.WithLabelValues("invalid").Inc()
		return nil, err
	}

	dets, ok := c.cache.Get(hash)
	if ok {
		observability.CacheHits.Inc()
	} else {
		observability.CacheMisses.Inc()
		dets, err = c.infer(ctx, owner, frame)
		if err != nil {
			observability.FramesDropped.WithLabelValues("detection_failed").Inc()
			tracker.Predict(frame.Timestamp)
			return nil, err
		}
		c.cache.Put(hash, dets)
	}

	tracked := tracker.Update(dets, frame.Timestamp)

	observability.FramesProcessed.WithLabelValues(frame.SessionID).Inc()
	for _, det := range dets {
		observability.DetectionsTotal.WithLabelValues(det.Class).Inc()
	}
	observability.ActiveTracks.WithLabelValues(frame.SessionID).Set(float64(tracker.ActiveCount()))

	for _, obj := range tracked {
		if obj.Fresh && obj.State == models.TrackConfirmed {
			c.onConfirmed(ctx, frame, obj, tracker)
		}
	}
	c.recordRetired(frame.SessionID, tracker.TakeRetired())

	return tracked, nil
}

// Finalize flushes the session's tracker at close so every surviving track
// produces its finished event. Safe to call with a tracker that has already
// been flushed.
func (c *Coordinator) Finalize(sessionID string, tracker *track.Tracker, ts time.Time) {
	c.recordRetired(sessionID, tracker.Flush(ts))
	observability.ActiveTracks.DeleteLabelValues(sessionID)
}

// infer submits the frame for batched detection and waits for its result,
// keeping the handle registered with its owner for the duration so a closing
// session can cancel it.
func (c *Coordinator) infer(ctx context.Context, owner PendingOwner, frame *models.Frame) ([]models.Detection, error) {
	pending, err := c.batcher.Submit(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrDetectionFailed, err)
	}
	if owner != nil {
		owner.TrackPending(pending)
		defer owner.ReleasePending(pending)
	}
	return pending.Wait(ctx)
}

// onConfirmed handles a track's Tentative-to-Confirmed transition: crop the
// object, extract its appearance embedding, upload a snapshot off the hot
// path, and record the confirmation event. Confirmation fires once per track,
// so the single-crop embedding run stays off the per-frame cost.
func (c *Coordinator) onConfirmed(ctx context.Context, frame *models.Frame, obj models.TrackedObject, tracker *track.Tracker) {
	crop := cropBox(frame.Image, obj.BBox)

	var embedding []float32
	if c.embedder != nil && crop != nil {
		vec, err := c.embedder.Embed(crop)
		if err != nil {
			slog.Warn("appearance embedding failed", "track_id", obj.TrackID, "error", err)
		} else {
			embedding = vec
			// Remember it on the live track so the finished event carries
			// the same vector.
			tracker.SetEmbedding(obj.TrackID, vec)
		}
	}

	var key string
	if c.snapshots != nil && crop != nil {
		if data, err := encodeJPEG(crop); err == nil {
			key = fmt.Sprintf("%s/track_%d_%d.jpg", frame.SessionID, obj.TrackID, frame.Timestamp.UnixMilli())
			go func() {
				upCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
				defer cancel()
				if err := c.snapshots.PutSnapshot(upCtx, key, data); err != nil {
					slog.Warn("snapshot upload failed", "key", key, "error", err)
				}
			}()
		}
	}

	if c.recorder == nil {
		return
	}
	c.recorder.Record(models.TrackEvent{
		Type:        "track_confirmed",
		SessionID:   frame.SessionID,
		TrackID:     obj.TrackID,
		Class:       obj.Class,
		FirstSeen:   frame.Timestamp,
		LastSeen:    frame.Timestamp,
		Embedding:   embedding,
		SnapshotKey: key,
	})
	observability.EventsRecorded.WithLabelValues("track_confirmed").Inc()
}

// recordRetired turns retired track summaries into finished events, running
// behavior analysis over each history first. Tracks that never confirmed
// are dropped as noise.
func (c *Coordinator) recordRetired(sessionID string, retired []track.Retired) {
	if c.recorder == nil || len(retired) == 0 {
		return
	}
	for _, r := range retired {
		if !r.Confirmed {
			continue
		}
		ev := models.TrackEvent{
			Type:      "track_finished",
			SessionID: sessionID,
			TrackID:   r.ID,
			Class:     r.Class,
			FirstSeen: r.FirstSeen,
			LastSeen:  r.LastSeen,
			Frames:    r.Frames,
			AvgSpeed:  r.AvgSpeed,
			PeakSpeed: r.PeakSpeed,
			Embedding: r.Embedding,
		}
		if c.analyzer != nil {
			ev.Risk, ev.Behaviors = c.analyzer.Analyze(r)
		}
		c.recorder.Record(ev)
		observability.EventsRecorded.WithLabelValues("track_finished").Inc()
	}
}
