package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/vtrack/internal/queue"
	"github.com/your-org/vtrack/internal/storage"
)

type SystemHandler struct {
	db       *storage.PostgresStore
	minio    *storage.MinIOStore
	producer *queue.Producer
}

func NewSystemHandler(db *storage.PostgresStore, minio *storage.MinIOStore, producer *queue.Producer) *SystemHandler {
	return &SystemHandler{db: db, minio: minio, producer: producer}
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz pings each backing dependency. The slowest one bounds the response,
// so the whole probe is capped at 3 seconds.
func (h *SystemHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]gin.H{}
	healthy := true

	probe := func(name string, ping func() error) {
		start := time.Now()
		err := ping()
		entry := gin.H{"latency_ms": time.Since(start).Milliseconds()}
		if err != nil {
			entry["error"] = err.Error()
			healthy = false
		} else {
			entry["status"] = "ok"
		}
		checks[name] = entry
	}

	probe("postgres", func() error { return h.db.Ping(ctx) })
	probe("minio", func() error { return h.minio.Ping(ctx) })
	probe("nats", h.producer.Ping)

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status": map[bool]string{true: "ready", false: "not ready"}[healthy],
		"checks": checks,
	})
}
