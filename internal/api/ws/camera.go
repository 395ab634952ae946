package ws

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/jpeg"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/your-org/vtrack/internal/models"
	"github.com/your-org/vtrack/internal/session"
	"github.com/your-org/vtrack/pkg/dto"
)

// CameraHandler terminates camera WebSocket connections. Binary messages
// carry JPEG frames; text messages carry JSON control (heartbeat, close).
// Each connection is bound to exactly one session for its lifetime.
type CameraHandler struct {
	manager        *session.Manager
	heartbeatEvery time.Duration
}

func NewCameraHandler(manager *session.Manager, heartbeatEvery time.Duration) *CameraHandler {
	if heartbeatEvery <= 0 {
		heartbeatEvery = 15 * time.Second
	}
	return &CameraHandler{manager: manager, heartbeatEvery: heartbeatEvery}
}

// cameraConn serializes writes: results and error reports come from
// different goroutines but gorilla allows only one writer.
type cameraConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (cc *cameraConn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.conn.WriteMessage(websocket.TextMessage, data)
}

func (cc *cameraConn) close() error {
	return cc.conn.Close()
}

// Handle upgrades the connection and runs it until the client leaves or the
// session is closed from the server side (timeout, replacement, shutdown).
func (h *CameraHandler) Handle(c *gin.Context) {
	clientID := c.Query("client_id")
	if clientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "client_id is required"})
		return
	}

	sess, err := h.manager.Open(c.Request.Context(), clientID)
	if err != nil {
		if errors.Is(err, models.ErrDuplicateSession) {
			c.JSON(http.StatusConflict, gin.H{"error": "session already active for client"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("camera ws upgrade failed", "client_id", clientID, "error", err)
		sess.Close(nil)
		return
	}

	cc := &cameraConn{conn: conn}
	go writeResults(cc, sess, h.heartbeatEvery)
	readFrames(cc, sess)
}

// writeResults streams per-frame outcomes back to the camera, interleaved
// with periodic heartbeat messages so an idle client can tell a quiet server
// from a dead one. It exits when the session closes, taking the connection
// down with it so a replaced or timed-out client notices immediately.
func writeResults(cc *cameraConn, sess *session.Session, heartbeatEvery time.Duration) {
	defer cc.close()
	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case res, ok := <-sess.Results():
			if !ok {
				deadline := time.Now().Add(time.Second)
				_ = cc.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"), deadline)
				return
			}
			if err := cc.writeJSON(resultMessage(res)); err != nil {
				return
			}
		case <-ticker.C:
			if err := cc.writeJSON(dto.HeartbeatMessage{Type: "heartbeat", Timestamp: time.Now().UnixMilli()}); err != nil {
				return
			}
		}
	}
}

// readFrames is the connection's read loop.
func readFrames(cc *cameraConn, sess *session.Session) {
	defer func() {
		sess.Close(nil)
		cc.close()
	}()

	for {
		msgType, data, err := cc.conn.ReadMessage()
		if err != nil {
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if err := submitFrame(sess, data); err != nil {
				if errors.Is(err, models.ErrSessionClosed) {
					return
				}
				reportError(cc, err)
			}
		case websocket.TextMessage:
			var msg dto.ClientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			switch msg.Type {
			case "heartbeat":
				sess.Heartbeat()
			case "close":
				return
			}
		}
	}
}

func submitFrame(sess *session.Session, data []byte) error {
	img, err := decodeFrame(data)
	if err != nil {
		return models.ErrInvalidFrame
	}
	return sess.Submit(&models.Frame{
		SessionID: sess.ClientID(),
		FrameID:   uuid.New(),
		Image:     img,
		Timestamp: time.Now(),
	})
}

func decodeFrame(data []byte) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err == nil {
		return img, nil
	}
	img, _, err = image.Decode(bytes.NewReader(data))
	return img, err
}

func resultMessage(res session.Result) dto.FrameResultMessage {
	if res.Err != nil {
		return dto.FrameResultMessage{
			Type:    "error",
			FrameID: res.FrameID.String(),
			Error:   res.Err.Error(),
		}
	}

	objects := make([]dto.TrackedObjectDTO, len(res.Objects))
	for i, obj := range res.Objects {
		objects[i] = dto.TrackedObjectDTO{
			TrackID:    obj.TrackID,
			Class:      obj.Class,
			Confidence: obj.Confidence,
			State:      string(obj.State),
			BBox:       [4]float64{obj.BBox.X1, obj.BBox.Y1, obj.BBox.X2, obj.BBox.Y2},
			Velocity:   [2]float64{obj.VX, obj.VY},
		}
	}
	return dto.FrameResultMessage{
		Type:    "result",
		FrameID: res.FrameID.String(),
		Objects: objects,
	}
}

// reportError tells the client about a rejected frame without killing the
// connection.
func reportError(cc *cameraConn, err error) {
	_ = cc.writeJSON(dto.FrameResultMessage{Type: "error", Error: err.Error()})
}
