package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/vtrack/internal/models"
)

type stubDetector struct {
	mu    sync.Mutex
	calls [][]*models.Frame
	err   error
	block bool // hold the call until its context ends
}

func (d *stubDetector) DetectBatch(ctx context.Context, frames []*models.Frame) ([][]models.Detection, error) {
	d.mu.Lock()
	d.calls = append(d.calls, frames)
	d.mu.Unlock()

	if d.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if d.err != nil {
		return nil, d.err
	}
	out := make([][]models.Detection, len(frames))
	for i, f := range frames {
		out[i] = []models.Detection{{
			BBox:       models.BBox{X1: 0, Y1: 0, X2: 10, Y2: 10},
			Confidence: 0.9,
			Class:      f.SessionID,
		}}
	}
	return out, nil
}

func (d *stubDetector) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func frameFor(session string) *models.Frame {
	return &models.Frame{SessionID: session, Timestamp: time.Now()}
}

func startBatcher(t *testing.T, det Detector, cfg BatcherConfig) *Batcher {
	t.Helper()
	b := NewBatcher(det, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go b.Run(ctx)
	return b
}

func TestBatcherDispatchesAtMaxSize(t *testing.T) {
	det := &stubDetector{}
	b := startBatcher(t, det, BatcherConfig{
		MaxSize:        2,
		MaxWait:        5 * time.Second,
		FailureCeiling: 2 * time.Second,
	})

	start := time.Now()
	p1, err := b.Submit(context.Background(), frameFor("cam-a"))
	require.NoError(t, err)
	p2, err := b.Submit(context.Background(), frameFor("cam-b"))
	require.NoError(t, err)

	d1, err := p1.Wait(context.Background())
	require.NoError(t, err)
	d2, err := p2.Wait(context.Background())
	require.NoError(t, err)

	// Dispatched on size, long before MaxWait.
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, "cam-a", d1[0].Class, "results routed to their submitter")
	assert.Equal(t, "cam-b", d2[0].Class)
	assert.Equal(t, 1, det.callCount(), "both frames in one detector call")
}

func TestBatcherDispatchesPartialBatchAfterMaxWait(t *testing.T) {
	det := &stubDetector{}
	b := startBatcher(t, det, BatcherConfig{
		MaxSize:        8,
		MaxWait:        60 * time.Millisecond,
		FailureCeiling: 2 * time.Second,
	})

	start := time.Now()
	p, err := b.Submit(context.Background(), frameFor("cam-a"))
	require.NoError(t, err)

	dets, err := p.Wait(context.Background())
	require.NoError(t, err)
	require.Len(t, dets, 1)

	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond, "partial batch holds for MaxWait")
	assert.Less(t, elapsed, time.Second)
}

func TestBatcherFailureFansOutToWholeBatch(t *testing.T) {
	det := &stubDetector{err: errors.New("onnx session crashed")}
	b := startBatcher(t, det, BatcherConfig{
		MaxSize:        2,
		MaxWait:        5 * time.Second,
		FailureCeiling: 2 * time.Second,
	})

	p1, err := b.Submit(context.Background(), frameFor("cam-a"))
	require.NoError(t, err)
	p2, err := b.Submit(context.Background(), frameFor("cam-b"))
	require.NoError(t, err)

	_, err1 := p1.Wait(context.Background())
	_, err2 := p2.Wait(context.Background())
	assert.ErrorIs(t, err1, models.ErrDetectionFailed)
	assert.ErrorIs(t, err2, models.ErrDetectionFailed)
}

func TestBatcherWaitNeverExceedsCeiling(t *testing.T) {
	det := &stubDetector{block: true}
	b := startBatcher(t, det, BatcherConfig{
		MaxSize:        1,
		MaxWait:        time.Millisecond,
		FailureCeiling: 80 * time.Millisecond,
	})

	start := time.Now()
	p, err := b.Submit(context.Background(), frameFor("cam-a"))
	require.NoError(t, err)

	_, err = p.Wait(context.Background())
	assert.ErrorIs(t, err, models.ErrDetectionFailed)
	assert.Less(t, time.Since(start), time.Second, "wait bounded by the failure ceiling")
}

func TestBatcherSkipsCancelledPendings(t *testing.T) {
	det := &stubDetector{}
	b := startBatcher(t, det, BatcherConfig{
		MaxSize:        2,
		MaxWait:        5 * time.Second,
		FailureCeiling: 2 * time.Second,
	})

	p1, err := b.Submit(context.Background(), frameFor("cam-a"))
	require.NoError(t, err)
	p1.Cancel()

	p2, err := b.Submit(context.Background(), frameFor("cam-b"))
	require.NoError(t, err)

	dets, err := p2.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cam-b", dets[0].Class)

	det.mu.Lock()
	defer det.mu.Unlock()
	require.Len(t, det.calls, 1)
	assert.Len(t, det.calls[0], 1, "cancelled slot dropped before the detector call")
	assert.Equal(t, "cam-b", det.calls[0][0].SessionID)
}

func TestPendingWaitHonorsCallerContext(t *testing.T) {
	det := &stubDetector{block: true}
	b := startBatcher(t, det, BatcherConfig{
		MaxSize:        1,
		MaxWait:        time.Millisecond,
		FailureCeiling: 5 * time.Second,
	})

	p, err := b.Submit(context.Background(), frameFor("cam-a"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, p.cancelled(), "abandoned handle is cancelled for the batcher to observe")
}

func TestPendingCancelIdempotent(t *testing.T) {
	p := newPending(time.Second)
	p.Cancel()
	p.Cancel()
	p.resolve(nil, nil) // must not panic or deliver

	_, err := p.Wait(context.Background())
	assert.ErrorIs(t, err, models.ErrSessionClosed)
}
