package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/vtrack/internal/storage"
	"github.com/your-org/vtrack/pkg/dto"
)

type EventHandler struct {
	db    *storage.PostgresStore
	minio *storage.MinIOStore
}

func NewEventHandler(db *storage.PostgresStore, minio *storage.MinIOStore) *EventHandler {
	return &EventHandler{db: db, minio: minio}
}

// List returns recent track events, newest first.
func (h *EventHandler) List(c *gin.Context) {
	var q dto.EventQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	since := time.Now().Add(-24 * time.Hour)
	if q.Since != "" {
		parsed, err := time.Parse(time.RFC3339, q.Since)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		since = parsed
	}

	events, err := h.db.ListEvents(c.Request.Context(), q.SessionID, since, q.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := dto.EventListResponse{
		Events: make([]dto.EventResponse, 0, len(events)),
		Total:  len(events),
	}
	for _, e := range events {
		resp.Events = append(resp.Events, eventResponse(e))
	}
	c.JSON(http.StatusOK, resp)
}

// Snapshot streams the stored JPEG crop for one event.
func (h *EventHandler) Snapshot(c *gin.Context) {
	event, ok := h.lookup(c)
	if !ok {
		return
	}
	if event.SnapshotKey == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "event has no snapshot"})
		return
	}

	data, err := h.minio.GetSnapshot(c.Request.Context(), event.SnapshotKey)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}

// Similar finds events whose appearance embedding is close to the given
// event's.
func (h *EventHandler) Similar(c *gin.Context) {
	event, ok := h.lookup(c)
	if !ok {
		return
	}
	if len(event.Embedding) == 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "event has no embedding"})
		return
	}

	matches, err := h.db.SimilarEvents(c.Request.Context(), event.Embedding, 0.3, 10)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	results := make([]dto.EventSearchResult, 0, len(matches))
	for _, m := range matches {
		if m.ID == event.ID {
			continue
		}
		results = append(results, dto.EventSearchResult{
			EventResponse: eventResponse(m.EventRecord),
			Score:         m.Score,
		})
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// Delete removes an event and its stored snapshot. The row goes first; an
// orphaned snapshot is cheaper than a dangling snapshot reference.
func (h *EventHandler) Delete(c *gin.Context) {
	event, ok := h.lookup(c)
	if !ok {
		return
	}

	if _, err := h.db.DeleteEvent(c.Request.Context(), event.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if event.SnapshotKey != "" {
		if err := h.minio.DeleteSnapshot(c.Request.Context(), event.SnapshotKey); err != nil {
			slog.Warn("delete snapshot", "key", event.SnapshotKey, "error", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *EventHandler) lookup(c *gin.Context) (*storage.EventRecord, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return nil, false
	}

	event, err := h.db.GetEvent(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	if event == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return nil, false
	}
	return event, true
}

func eventResponse(e storage.EventRecord) dto.EventResponse {
	resp := dto.EventResponse{
		ID:        e.ID,
		Type:      e.Type,
		SessionID: e.SessionID,
		TrackID:   e.TrackID,
		Class:     e.Class,
		FirstSeen: e.FirstSeen.Format(time.RFC3339Nano),
		LastSeen:  e.LastSeen.Format(time.RFC3339Nano),
		Frames:    e.Frames,
		AvgSpeed:  e.AvgSpeed,
		PeakSpeed: e.PeakSpeed,
		Risk:      e.Risk,
		Behaviors: e.Behaviors,
		CreatedAt: e.CreatedAt.Format(time.RFC3339Nano),
	}
	if e.SnapshotKey != "" {
		resp.SnapshotURL = "/v1/events/" + e.ID.String() + "/snapshot"
	}
	return resp
}
