package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/vtrack/internal/models"
	"github.com/your-org/vtrack/internal/observability"
	"github.com/your-org/vtrack/internal/pipeline"
	"github.com/your-org/vtrack/internal/track"
)

// Pipeline is the per-frame processing capability a session drives. The
// session supplies itself as the pending owner so in-flight inference can be
// cancelled at close.
type Pipeline interface {
	HandleFrame(ctx context.Context, owner pipeline.PendingOwner, tracker *track.Tracker, frame *models.Frame) ([]models.TrackedObject, error)
	Finalize(sessionID string, tracker *track.Tracker, ts time.Time)
}

// Result is the outcome of one submitted frame, delivered in submission
// order on the session's result channel.
type Result struct {
	FrameID uuid.UUID
	Objects []models.TrackedObject
	Err     error
}

// Session is one connected camera client. It exclusively owns its tracker
// and its processing goroutine; all cross-session state lives behind the
// shared pipeline. Created by the Manager, never directly.
type Session struct {
	clientID string
	openedAt time.Time

	pipe    Pipeline
	tracker *track.Tracker

	inbound chan *models.Frame
	results chan Result

	mu            sync.Mutex
	lastHeartbeat time.Time
	pendings      map[*pipeline.Pending]struct{}

	activeTracks atomic.Int64

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
	closeErr  error

	onClose func(*Session)
}

func newSession(parent context.Context, clientID string, pipe Pipeline, tracker *track.Tracker, inboundBuf, resultBuf int, onClose func(*Session)) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		clientID:      clientID,
		openedAt:      time.Now(),
		pipe:          pipe,
		tracker:       tracker,
		inbound:       make(chan *models.Frame, inboundBuf),
		results:       make(chan Result, resultBuf),
		lastHeartbeat: time.Now(),
		pendings:      make(map[*pipeline.Pending]struct{}),
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
		onClose:       onClose,
	}
	go s.run()
	return s
}

// ClientID returns the client identity this session serves.
func (s *Session) ClientID() string { return s.clientID }

// OpenedAt returns when the session was created.
func (s *Session) OpenedAt() time.Time { return s.openedAt }

// Results is the ordered stream of per-frame outcomes. Closed when the
// session closes.
func (s *Session) Results() <-chan Result { return s.results }

// ActiveTracks reports the live track count as of the last processed frame.
// The tracker itself is owned by the processing goroutine and never read
// directly from outside it.
func (s *Session) ActiveTracks() int {
	return int(s.activeTracks.Load())
}

// Heartbeat records client liveness.
func (s *Session) Heartbeat() {
	s.mu.Lock()
	s.lastHeartbeat = time.Now()
	s.mu.Unlock()
}

// LastHeartbeat returns the most recent liveness signal.
func (s *Session) LastHeartbeat() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeartbeat
}

// Submit queues one frame for processing. A queued frame also counts as a
// heartbeat. Returns ErrSessionClosed once the session is closing; callers
// must stop submitting then.
func (s *Session) Submit(frame *models.Frame) error {
	if frame == nil || frame.Image == nil {
		return models.ErrInvalidFrame
	}
	s.Heartbeat()
	// Checked before the select: once the run goroutine has exited the
	// buffered send may still be ready, and a frame queued then would
	// outlive its session.
	if s.ctx.Err() != nil {
		return models.ErrSessionClosed
	}
	select {
	case s.inbound <- frame:
		return nil
	case <-s.ctx.Done():
		return models.ErrSessionClosed
	default:
		// Client outran the pipeline; dropping beats unbounded queueing.
		observability.FramesDropped.WithLabelValues("backpressure").Inc()
		return nil
	}
}

// TrackPending registers an in-flight inference handle.
func (s *Session) TrackPending(p *pipeline.Pending) {
	s.mu.Lock()
	s.pendings[p] = struct{}{}
	s.mu.Unlock()
}

// ReleasePending removes a settled handle.
func (s *Session) ReleasePending(p *pipeline.Pending) {
	s.mu.Lock()
	delete(s.pendings, p)
	s.mu.Unlock()
}

// Close shuts the session down: stop accepting frames, cancel in-flight
// inference, flush the tracker, and run manager cleanup. Idempotent; every
// call returns the close error of the first, and cleanup always runs even
// when frame processing ended badly.
func (s *Session) Close(err error) error {
	s.closeOnce.Do(func() {
		s.closeErr = err
		s.cancel()

		s.mu.Lock()
		for p := range s.pendings {
			p.Cancel()
		}
		s.pendings = make(map[*pipeline.Pending]struct{})
		s.mu.Unlock()

		<-s.done

		s.pipe.Finalize(s.clientID, s.tracker, time.Now())
		if s.onClose != nil {
			s.onClose(s)
		}
		close(s.results)

		slog.Info("session closed", "client_id", s.clientID,
			"uptime", time.Since(s.openedAt).Round(time.Millisecond), "reason", reasonOf(err))
	})
	return s.closeErr
}

func reasonOf(err error) string {
	if err == nil {
		return "client"
	}
	return err.Error()
}

// run is the session's processing loop: one frame at a time through the
// shared pipeline, outcomes onto the result channel.
func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case frame := <-s.inbound:
			objects, err := s.pipe.HandleFrame(s.ctx, s, s.tracker, frame)
			s.activeTracks.Store(int64(s.tracker.ActiveCount()))
			if s.ctx.Err() != nil {
				return
			}
			select {
			case s.results <- Result{FrameID: frame.FrameID, Objects: objects, Err: err}:
			case <-s.ctx.Done():
				return
			}
		}
	}
}
