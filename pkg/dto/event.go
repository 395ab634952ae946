package dto

import "github.com/google/uuid"

// EventResponse is one persisted track event.
type EventResponse struct {
	ID          uuid.UUID `json:"id"`
	Type        string    `json:"type"`
	SessionID   string    `json:"session_id"`
	TrackID     int       `json:"track_id"`
	Class       string    `json:"class"`
	FirstSeen   string    `json:"first_seen"`
	LastSeen    string    `json:"last_seen"`
	Frames      int       `json:"frames"`
	AvgSpeed    float64   `json:"avg_speed"`
	PeakSpeed   float64   `json:"peak_speed"`
	Risk        string    `json:"risk,omitempty"`
	Behaviors   []string  `json:"behaviors,omitempty"`
	SnapshotURL string    `json:"snapshot_url,omitempty"`
	CreatedAt   string    `json:"created_at"`
}

// EventListResponse is the paged events reply.
type EventListResponse struct {
	Events []EventResponse `json:"events"`
	Total  int             `json:"total"`
}

// EventQuery filters GET /v1/events.
type EventQuery struct {
	SessionID string `form:"session_id"`
	Since     string `form:"since"`
	Limit     int    `form:"limit"`
}

// EventSearchResult is one hit from embedding-similarity search.
type EventSearchResult struct {
	EventResponse
	Score float32 `json:"score"`
}

// WSEvent is a WebSocket message for real-time event delivery to observers.
type WSEvent struct {
	Type      string        `json:"type"` // track_confirmed, track_finished
	SessionID string        `json:"session_id"`
	Data      EventResponse `json:"data"`
}
