package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/vtrack/internal/api"
	"github.com/your-org/vtrack/internal/api/ws"
	"github.com/your-org/vtrack/internal/behavior"
	"github.com/your-org/vtrack/internal/config"
	"github.com/your-org/vtrack/internal/detect"
	"github.com/your-org/vtrack/internal/models"
	"github.com/your-org/vtrack/internal/observability"
	"github.com/your-org/vtrack/internal/pipeline"
	"github.com/your-org/vtrack/internal/queue"
	"github.com/your-org/vtrack/internal/session"
	"github.com/your-org/vtrack/internal/storage"
	"github.com/your-org/vtrack/internal/track"
	"github.com/your-org/vtrack/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting vtrack server", "port", cfg.Server.Port)

	// Initialize ONNX Runtime
	ort.SetSharedLibraryPath(getONNXLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer ort.DestroyEnvironment()

	detector, err := detect.NewONNXDetector(cfg.Detector)
	if err != nil {
		slog.Error("load detection model", "error", err)
		os.Exit(1)
	}
	defer detector.Close()

	// The appearance embedder is optional; without it events persist with no
	// vector and similarity search returns nothing.
	var embedder pipeline.Embedder
	if cfg.Embedder.ModelPath != "" {
		emb, err := detect.NewEmbedder(cfg.Embedder)
		if err != nil {
			slog.Warn("load embedding model, similarity search disabled", "error", err)
		} else {
			embedder = emb
			defer emb.Close()
		}
	}

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Assemble the frame pipeline: shared cache and batcher, per-session
	// trackers behind the session manager.
	cache := pipeline.NewResultCache(cfg.Pipeline.CacheTTL, cfg.Pipeline.CacheCapacity)
	go cache.Run(ctx)

	batcher := pipeline.NewBatcher(detector, pipeline.BatcherConfig{
		MaxSize:        cfg.Pipeline.BatchMaxSize,
		MaxWait:        cfg.Pipeline.BatchMaxWait,
		FailureCeiling: cfg.Pipeline.FailureCeiling,
	})
	go batcher.Run(ctx)

	recorder := queue.NewEventRecorder(producer, 256)
	go recorder.Run(ctx)

	analyzer := behavior.NewAnalyzer(behavior.Config{
		LoiterMinDuration: cfg.Behavior.LoiterMinDuration,
		LoiterRange:       cfg.Behavior.LoiterRange,
		ErraticSpeedCV:    cfg.Behavior.ErraticSpeedCV,
		ErraticMinSamples: cfg.Behavior.ErraticMinSamples,
		FastSpeed:         cfg.Behavior.FastSpeed,
	})

	coordinator := pipeline.NewCoordinator(cache, batcher, recorder, minioStore, analyzer, embedder)

	manager := session.NewManager(session.Config{
		HeartbeatInterval:    cfg.Session.HeartbeatInterval,
		HeartbeatTimeout:     cfg.Session.HeartbeatTimeout,
		ReconnectPolicy:      session.ParseReconnectPolicy(cfg.Session.ReconnectPolicy),
		MaxReconnectAttempts: cfg.Session.MaxReconnectAttempts,
		ReconnectBackoff:     cfg.Session.ReconnectBackoff,
		InboundBuffer:        cfg.Session.InboundBuffer,
		ResultBuffer:         cfg.Session.OutboundBuffer,
	}, coordinator, track.Config{
		IoUThreshold:  cfg.Tracking.IoUThreshold,
		NInit:         cfg.Tracking.NInit,
		MaxMisses:     cfg.Tracking.MaxMisses,
		MaxAge:        cfg.Tracking.MaxAge,
		HistoryLen:    cfg.Tracking.HistoryLen,
		ConfirmPolicy: track.ParseConfirmPolicy(cfg.Tracking.ConfirmPolicy),
	})
	go manager.Run(ctx)

	// Observer WebSocket hub, fed from the EVENTS stream.
	hub := ws.NewHub()
	go hub.Run(ctx)

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create event consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	err = consumer.ConsumeEvents(ctx, "server-broadcast", func(_ context.Context, msg jetstream.Msg) error {
		var ev models.TrackEvent
		if err := json.Unmarshal(msg.Data(), &ev); err != nil {
			slog.Error("unmarshal track event", "error", err)
			return nil // Don't retry on unmarshal errors
		}

		hub.BroadcastEvent(&dto.WSEvent{
			Type:      ev.Type,
			SessionID: ev.SessionID,
			Data: dto.EventResponse{
				Type:      ev.Type,
				SessionID: ev.SessionID,
				TrackID:   ev.TrackID,
				Class:     ev.Class,
				FirstSeen: ev.FirstSeen.Format(time.RFC3339Nano),
				LastSeen:  ev.LastSeen.Format(time.RFC3339Nano),
				Frames:    ev.Frames,
				AvgSpeed:  ev.AvgSpeed,
				PeakSpeed: ev.PeakSpeed,
				Risk:      ev.Risk,
				Behaviors: ev.Behaviors,
			},
		})
		return nil
	})
	if err != nil {
		slog.Warn("start event consumer", "error", err)
	}

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		APIKey:            cfg.Server.APIKey,
		DB:                db,
		MinIO:             minioStore,
		Producer:          producer,
		Manager:           manager,
		Hub:               hub,
		HeartbeatInterval: cfg.Session.HeartbeatInterval,
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// getONNXLibPath returns the ONNX Runtime shared library path based on the
// operating system.
func getONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
