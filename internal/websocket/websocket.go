package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/neynn/army-attack-client-sub000/internal/logging"
	"github.com/neynn/army-attack-client-sub000/internal/models"
	"github.com/neynn/army-attack-client-sub000/internal/registry"
	"go.uber.org/zap/zapcore"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for MVP
		return true
	},
}

const joinTimeout = 5 * time.Second

// Match is the part of a running match the relay talks to
type Match interface {
	Join(ctx context.Context, id, name string, conn *websocket.Conn) error
	Leave(id string, conn *websocket.Conn)
	Submit(peerID string, msg models.Message) bool
}

// HandleWebSocket handles peer connections to a match
func HandleWebSocket(match Match, reg *registry.Registry, eventLog *logging.EventLog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			eventLog.LogAndStore(zapcore.ErrorLevel, "WebSocket upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		eventLog.LogAndStore(zapcore.InfoLevel, "New WebSocket connection established")

		// Wait for join message
		var msg models.Message
		if err := conn.ReadJSON(&msg); err != nil {
			eventLog.LogAndStore(zapcore.ErrorLevel, "Failed to read join: %v", err)
			return
		}

		if msg.Type != models.MessageJoin {
			eventLog.LogAndStore(zapcore.ErrorLevel, "Expected join message, got: %s", msg.Type)
			conn.WriteJSON(models.Message{Type: models.MessageError, Error: "expected join"})
			return
		}

		peerID := msg.ID
		if peerID == "" {
			peerID = uuid.NewString()
		}

		ctx, cancel := context.WithTimeout(r.Context(), joinTimeout)
		err = match.Join(ctx, peerID, msg.Name, conn)
		cancel()
		if err != nil {
			eventLog.LogAndStore(zapcore.ErrorLevel, "Join failed for %s: %v", peerID, err)
			// the call may still have run after the deadline
			match.Leave(peerID, conn)
			conn.WriteJSON(models.Message{Type: models.MessageError, Error: err.Error()})
			return
		}
		eventLog.LogAndStore(zapcore.InfoLevel, "Peer joined: %s (%s)", peerID, msg.Name)

		readLoop(conn, peerID, match, reg, eventLog)

		// Cleanup on disconnect
		match.Leave(peerID, conn)
		eventLog.LogAndStore(zapcore.InfoLevel, "Peer disconnected: %s", peerID)
	}
}

// readLoop hands peer messages to the match until the connection closes.
// Writes go through the registered peer so they never race the match's
// broadcasts.
func readLoop(conn *websocket.Conn, peerID string, match Match, reg *registry.Registry, eventLog *logging.EventLog) {
	for {
		var msg models.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				eventLog.LogAndStore(zapcore.ErrorLevel, "Error reading message from %s: %v", peerID, err)
			}
			return
		}

		switch msg.Type {
		case models.MessageRequest:
			if !match.Submit(peerID, msg) {
				eventLog.LogAndStore(zapcore.WarnLevel, "Failed to queue request from %s: %s", peerID, msg.ActionType)
				reg.Send(peerID, models.Message{
					Type:       models.MessageRejected,
					RequestID:  msg.RequestID,
					ActionType: msg.ActionType,
					Status:     "queue_full",
					Error:      "input queue full",
				})
			}
		case models.MessagePing:
			reg.Send(peerID, models.Message{Type: models.MessagePong, Tick: msg.Tick})
		default:
			eventLog.LogAndStore(zapcore.WarnLevel, "Unknown message type from %s: %s", peerID, msg.Type)
		}
	}
}
