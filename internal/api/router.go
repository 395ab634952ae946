package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/vtrack/internal/api/handlers"
	"github.com/your-org/vtrack/internal/api/ws"
	"github.com/your-org/vtrack/internal/auth"
	"github.com/your-org/vtrack/internal/queue"
	"github.com/your-org/vtrack/internal/session"
	"github.com/your-org/vtrack/internal/storage"
)

type RouterConfig struct {
	APIKey            string
	DB                *storage.PostgresStore
	MinIO             *storage.MinIOStore
	Producer          *queue.Producer
	Manager           *session.Manager
	Hub               *ws.Hub
	HeartbeatInterval time.Duration
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.MinIO, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSockets: cameras push frames, observers subscribe to events.
	cameraH := ws.NewCameraHandler(cfg.Manager, cfg.HeartbeatInterval)
	v1.GET("/ws", cameraH.Handle)
	v1.GET("/ws/events", cfg.Hub.HandleWS)

	// Sessions
	sessionH := handlers.NewSessionHandler(cfg.Manager)
	v1.GET("/sessions", sessionH.List)
	v1.GET("/sessions/:id", sessionH.Get)
	v1.DELETE("/sessions/:id", sessionH.Close)

	// Events
	eventH := handlers.NewEventHandler(cfg.DB, cfg.MinIO)
	v1.GET("/events", eventH.List)
	v1.GET("/events/:id/snapshot", eventH.Snapshot)
	v1.GET("/events/:id/similar", eventH.Similar)
	v1.DELETE("/events/:id", eventH.Delete)

	return r
}
