package dto

// ClientMessage is a text control message from a camera client. Binary
// messages on the same connection carry JPEG frame data.
type ClientMessage struct {
	Type      string `json:"type"` // heartbeat, close
	Timestamp int64  `json:"timestamp,omitempty"`
}

// TrackedObjectDTO is one tracked identity in a frame result.
type TrackedObjectDTO struct {
	TrackID    int        `json:"track_id"`
	Class      string     `json:"class"`
	Confidence float64    `json:"confidence"`
	State      string     `json:"state"`
	BBox       [4]float64 `json:"bbox"`     // x1, y1, x2, y2 in source pixels
	Velocity   [2]float64 `json:"velocity"` // px/s of the box center
}

// FrameResultMessage is the per-frame reply to a camera client.
type FrameResultMessage struct {
	Type    string             `json:"type"` // result, error
	FrameID string             `json:"frame_id,omitempty"`
	Objects []TrackedObjectDTO `json:"objects,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// HeartbeatMessage is the server's periodic liveness signal to a connected
// camera client.
type HeartbeatMessage struct {
	Type      string `json:"type"` // heartbeat
	Timestamp int64  `json:"timestamp"`
}

// SessionResponse describes one live session.
type SessionResponse struct {
	ClientID      string `json:"client_id"`
	OpenedAt      string `json:"opened_at"`
	LastHeartbeat string `json:"last_heartbeat"`
	ActiveTracks  int    `json:"active_tracks"`
}

// SessionListResponse is the list of live sessions.
type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
	Total    int               `json:"total"`
}
