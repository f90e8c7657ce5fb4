package queue

import (
	"sync"
	"time"

	"github.com/neynn/army-attack-client-sub000/internal/models"
	"go.uber.org/zap"
)

/*
Input queue for the match loop.

Peers write from their own connection goroutines while a single match
goroutine consumes. Messages are handed over through a buffered channel and
drained once per tick, so every input is applied in arrival order by the one
goroutine that owns the game state.

A full or closed queue drops the message and reports false. The caller decides
whether the peer hears about it.
*/

// QueuedInput represents an input waiting for the next tick
type QueuedInput struct {
	SourceID  string
	Message   models.Message
	Timestamp time.Time
}

// InputQueue manages inputs waiting to be applied by the match loop
type InputQueue struct {
	logger *zap.Logger
	inputs chan QueuedInput
	mu     sync.RWMutex
	closed bool
}

// NewInputQueue creates a new input queue with the specified buffer size
func NewInputQueue(logger *zap.Logger, bufferSize int) *InputQueue {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &InputQueue{
		logger: logger,
		inputs: make(chan QueuedInput, bufferSize),
	}
}

// Enqueue adds an input to the queue.
// Returns false if the queue is closed or full.
func (iq *InputQueue) Enqueue(sourceID string, msg models.Message) bool {
	iq.mu.RLock()
	defer iq.mu.RUnlock()

	if iq.closed {
		iq.logger.Debug("Input queue is closed, dropping input", zap.String("source", sourceID))
		return false
	}

	select {
	case iq.inputs <- QueuedInput{SourceID: sourceID, Message: msg, Timestamp: time.Now()}:
		return true
	default:
		iq.logger.Warn("Input queue is full, dropping input", zap.String("source", sourceID), zap.String("type", msg.Type))
		return false
	}
}

// Drain hands at most max queued inputs to fn without blocking.
// A max of 0 or less drains whatever is queued at call time.
func (iq *InputQueue) Drain(max int, fn func(QueuedInput)) int {
	count := len(iq.inputs)
	if max > 0 && count > max {
		count = max
	}
	for i := 0; i < count; i++ {
		select {
		case in, ok := <-iq.inputs:
			if !ok {
				return i
			}
			fn(in)
		default:
			return i
		}
	}
	return count
}

// Close stops accepting new inputs. Inputs already queued can still be drained.
func (iq *InputQueue) Close() {
	iq.mu.Lock()
	defer iq.mu.Unlock()

	if !iq.closed {
		iq.closed = true
		close(iq.inputs)
	}
}

// Len returns the current number of queued inputs
func (iq *InputQueue) Len() int {
	return len(iq.inputs)
}
