package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/your-org/vtrack/internal/models"
	"github.com/your-org/vtrack/internal/observability"
)

// EventRecorder decouples the frame hot path from NATS: Record never blocks,
// and a background loop publishes queued events. Events are dropped, loudly,
// rather than letting a broker stall back up into frame processing.
type EventRecorder struct {
	producer *Producer
	ch       chan models.TrackEvent
}

// NewEventRecorder creates a recorder with the given queue depth. Run must
// be started for events to leave the process.
func NewEventRecorder(producer *Producer, buffer int) *EventRecorder {
	if buffer <= 0 {
		buffer = 256
	}
	return &EventRecorder{
		producer: producer,
		ch:       make(chan models.TrackEvent, buffer),
	}
}

// Record queues one event for publishing.
func (r *EventRecorder) Record(ev models.TrackEvent) {
	select {
	case r.ch <- ev:
	default:
		observability.FramesDropped.WithLabelValues("event_queue_full").Inc()
		slog.Warn("event queue full, dropping event",
			"type", ev.Type, "session_id", ev.SessionID, "track_id", ev.TrackID)
	}
}

// Run publishes queued events until ctx ends, then drains what it can.
func (r *EventRecorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return
		case ev := <-r.ch:
			r.publish(ctx, ev)
		}
	}
}

func (r *EventRecorder) publish(ctx context.Context, ev models.TrackEvent) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.producer.PublishEvent(pubCtx, ev); err != nil {
		slog.Error("publish track event", "error", err,
			"type", ev.Type, "session_id", ev.SessionID, "track_id", ev.TrackID)
	}
}

func (r *EventRecorder) drain() {
	for {
		select {
		case ev := <-r.ch:
			r.publish(context.Background(), ev)
		default:
			return
		}
	}
}
