package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vtrack",
		Name:      "frames_processed_total",
		Help:      "Total number of frames processed per session",
	}, []string{"session_id"})

	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vtrack",
		Name:      "frames_dropped_total",
		Help:      "Frames dropped, by reason (overload, invalid, detection_failed)",
	}, []string{"reason"})

	DetectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vtrack",
		Name:      "detections_total",
		Help:      "Total detections returned by the detector",
	}, []string{"class"})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vtrack",
		Name:      "result_cache_hits_total",
		Help:      "Result cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vtrack",
		Name:      "result_cache_misses_total",
		Help:      "Result cache misses",
	})

	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vtrack",
		Name:      "inference_batch_size",
		Help:      "Number of frames per inference batch",
		Buckets:   prometheus.LinearBuckets(1, 1, 16),
	})

	BatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vtrack",
		Name:      "inference_batch_duration_seconds",
		Help:      "Duration of one batched detector call",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	})

	DetectionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vtrack",
		Name:      "detection_failures_total",
		Help:      "Batches that resolved as detection failed",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vtrack",
		Name:      "active_sessions",
		Help:      "Number of currently open client sessions",
	})

	SessionTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vtrack",
		Name:      "session_timeouts_total",
		Help:      "Sessions force-closed by the heartbeat sweep",
	})

	ActiveTracks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "vtrack",
		Name:      "active_tracks",
		Help:      "Live tracks per session",
	}, []string{"session_id"})

	EventsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vtrack",
		Name:      "events_recorded_total",
		Help:      "Track events handed to the recorder",
	}, []string{"type"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vtrack",
		Name:      "ws_connections",
		Help:      "Number of active observer WebSocket connections",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vtrack",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)
