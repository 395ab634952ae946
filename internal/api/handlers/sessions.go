package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/vtrack/internal/session"
	"github.com/your-org/vtrack/pkg/dto"
)

type SessionHandler struct {
	manager *session.Manager
}

func NewSessionHandler(manager *session.Manager) *SessionHandler {
	return &SessionHandler{manager: manager}
}

// List returns every live session.
func (h *SessionHandler) List(c *gin.Context) {
	sessions := h.manager.Sessions()

	resp := dto.SessionListResponse{
		Sessions: make([]dto.SessionResponse, 0, len(sessions)),
		Total:    len(sessions),
	}
	for _, s := range sessions {
		resp.Sessions = append(resp.Sessions, sessionResponse(s))
	}
	c.JSON(http.StatusOK, resp)
}

// Get returns one live session by client id.
func (h *SessionHandler) Get(c *gin.Context) {
	s, ok := h.manager.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, sessionResponse(s))
}

// Close force-closes a session. Closing an unknown client succeeds: the
// desired state (no session) already holds.
func (h *SessionHandler) Close(c *gin.Context) {
	h.manager.Close(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"status": "closed"})
}

func sessionResponse(s *session.Session) dto.SessionResponse {
	return dto.SessionResponse{
		ClientID:      s.ClientID(),
		OpenedAt:      s.OpenedAt().Format(time.RFC3339),
		LastHeartbeat: s.LastHeartbeat().Format(time.RFC3339),
		ActiveTracks:  s.ActiveTracks(),
	}
}
