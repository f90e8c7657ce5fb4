package websocket

import (
	"github.com/neynn/army-attack-client-sub000/internal/action"
	"github.com/neynn/army-attack-client-sub000/internal/models"
	"go.uber.org/zap"
)

// handleMessage applies one host message to the local queue
func (c *Client) handleMessage(msg models.Message) {
	switch msg.Type {
	case models.MessageAction:
		c.handleAction(msg)
	case models.MessageRejected:
		c.rejected.Inc()
		c.logger.Warn("Request rejected by host",
			zap.String("request", msg.RequestID),
			zap.String("action", msg.ActionType),
			zap.String("reason", msg.Error))
	case models.MessagePong:
		c.logger.Debug("Pong", zap.Int64("tick", msg.Tick))
	case models.MessageError:
		c.logger.Warn("Host error", zap.String("error", msg.Error), zap.String("status", msg.Status))
	default:
		c.logger.Warn("Unknown message type", zap.String("type", msg.Type))
	}
}

// handleAction enqueues a host-validated action for local execution. The
// host's data is authoritative, so it is not validated again.
func (c *Client) handleAction(msg models.Message) {
	if msg.Seq <= c.lastSeq {
		c.logger.Debug("Duplicate action", zap.Int64("seq", msg.Seq))
		return
	}
	if msg.Seq != c.lastSeq+1 {
		c.logger.Warn("Action sequence gap", zap.Int64("expected", c.lastSeq+1), zap.Int64("got", msg.Seq))
	}
	c.lastSeq = msg.Seq

	typeID := action.TypeID(msg.ActionType)
	handler, ok := c.queue.Handler(typeID)
	if !ok {
		c.logger.Error("Unknown action type from host", zap.String("action", msg.ActionType))
		return
	}
	data, err := handler.DecodeValidated(msg.Data)
	if err != nil {
		c.logger.Error("Failed to decode host action", zap.Int64("seq", msg.Seq), zap.Error(err))
		return
	}

	c.queue.Enqueue(action.ExecutionItem{Type: typeID, Data: data, Priority: action.PriorityNormal})
}
