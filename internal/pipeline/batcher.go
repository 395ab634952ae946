package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/vtrack/internal/models"
	"github.com/your-org/vtrack/internal/observability"
)

// Detector is the external inference capability: one ordered detection list
// per input frame, same order. Implementations report a model that cannot
// run with models.ErrModelUnavailable.
type Detector interface {
	DetectBatch(ctx context.Context, frames []*models.Frame) ([][]models.Detection, error)
}

// BatcherConfig tunes batching behaviour.
type BatcherConfig struct {
	// MaxSize dispatches a batch immediately once reached.
	MaxSize int
	// MaxWait dispatches a partial batch this long after its first item.
	MaxWait time.Duration
	// FailureCeiling bounds how long any submitter can wait for a result;
	// past it the wait resolves as detection failed.
	FailureCeiling time.Duration
	// QueueSize bounds the submission channel.
	QueueSize int
}

type pendingResult struct {
	dets []models.Detection
	err  error
}

// Pending is the deferred result handle returned by Submit. Exactly one of
// resolve or Cancel wins; a cancelled handle is never delivered to.
type Pending struct {
	ch       chan pendingResult
	done     chan struct{}
	once     sync.Once
	deadline time.Duration
}

func newPending(deadline time.Duration) *Pending {
	return &Pending{
		ch:       make(chan pendingResult, 1),
		done:     make(chan struct{}),
		deadline: deadline,
	}
}

// Wait blocks until the handle resolves, the context ends, or the failure
// ceiling elapses. It never blocks past the ceiling regardless of batcher
// health.
func (p *Pending) Wait(ctx context.Context) ([]models.Detection, error) {
	timer := time.NewTimer(p.deadline)
	defer timer.Stop()

	select {
	case res := <-p.ch:
		return res.dets, res.err
	case <-p.done:
		return nil, models.ErrSessionClosed
	case <-ctx.Done():
		p.Cancel()
		return nil, ctx.Err()
	case <-timer.C:
		p.Cancel()
		return nil, fmt.Errorf("wait ceiling exceeded: %w", models.ErrDetectionFailed)
	}
}

// Cancel marks the handle dead. Idempotent; observable to the batcher, which
// will skip delivery for it.
func (p *Pending) Cancel() {
	p.once.Do(func() { close(p.done) })
}

func (p *Pending) cancelled() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// resolve delivers a result unless the handle was cancelled first.
func (p *Pending) resolve(dets []models.Detection, err error) {
	if p.cancelled() {
		return
	}
	select {
	case p.ch <- pendingResult{dets: dets, err: err}:
	default:
	}
}

type submission struct {
	frame   *models.Frame
	pending *Pending
}

// Batcher accumulates frames from concurrent sessions into bounded-size,
// bounded-wait batches and dispatches each as one detector call, fanning the
// per-frame results back to the submitters.
type Batcher struct {
	detector Detector
	cfg      BatcherConfig
	submitCh chan submission
}

// NewBatcher creates a batcher for the given detector. Run must be started
// for submissions to make progress.
func NewBatcher(detector Detector, cfg BatcherConfig) *Batcher {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1
	}
	if cfg.FailureCeiling <= 0 {
		cfg.FailureCeiling = 5 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.MaxSize * 4
	}
	return &Batcher{
		detector: detector,
		cfg:      cfg,
		submitCh: make(chan submission, cfg.QueueSize),
	}
}

// Submit queues one frame for batched inference and returns its deferred
// result handle.
func (b *Batcher) Submit(ctx context.Context, frame *models.Frame) (*Pending, error) {
	p := newPending(b.cfg.FailureCeiling)
	select {
	case b.submitCh <- submission{frame: frame, pending: p}:
		return p, nil
	case <-ctx.Done():
		p.Cancel()
		return nil, ctx.Err()
	}
}

// Run is the dispatch loop. It owns batch accumulation: a batch closes when
// it reaches MaxSize or when MaxWait has elapsed since its first item,
// whichever comes first. On shutdown every queued submission resolves as
// detection failed rather than blocking its caller.
func (b *Batcher) Run(ctx context.Context) {
	for {
		var first submission
		select {
		case <-ctx.Done():
			b.drain()
			return
		case first = <-b.submitCh:
		}

		batch := []submission{first}
		timer := time.NewTimer(b.cfg.MaxWait)

	fill:
		for len(batch) < b.cfg.MaxSize {
			select {
			case s := <-b.submitCh:
				batch = append(batch, s)
			case <-timer.C:
				break fill
			case <-ctx.Done():
				break fill
			}
		}
		timer.Stop()

		go b.dispatch(ctx, batch)
	}
}

// dispatch runs one detector call for a closed batch and fans results out.
func (b *Batcher) dispatch(ctx context.Context, batch []submission) {
	live := batch[:0]
	for _, s := range batch {
		if s.pending.cancelled() {
			continue
		}
		live = append(live, s)
	}
	if len(live) == 0 {
		return
	}

	frames := make([]*models.Frame, len(live))
	for i, s := range live {
		frames[i] = s.frame
	}

	observability.BatchSize.Observe(float64(len(frames)))

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.FailureCeiling)
	defer cancel()

	start := time.Now()
	results, err := b.detector.DetectBatch(callCtx, frames)
	observability.BatchLatency.Observe(time.Since(start).Seconds())

	if err == nil && len(results) != len(frames) {
		err = fmt.Errorf("detector returned %d results for %d frames", len(results), len(frames))
	}
	if err != nil {
		observability.DetectionFailures.Inc()
		slog.Warn("batch inference failed", "size", len(frames), "error", err)
		failure := fmt.Errorf("%w: %w", models.ErrDetectionFailed, err)
		for _, s := range live {
			s.pending.resolve(nil, failure)
		}
		return
	}

	for i, s := range live {
		s.pending.resolve(results[i], nil)
	}
}

// drain fails everything still queued at shutdown.
func (b *Batcher) drain() {
	for {
		select {
		case s := <-b.submitCh:
			s.pending.resolve(nil, models.ErrDetectionFailed)
		default:
			return
		}
	}
}
