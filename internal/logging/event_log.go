package logging

import (
	"fmt"
	"sync"
	"time"

	"github.com/neynn/army-attack-client-sub000/internal/action"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogEntry represents a single log entry
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Level     string    `json:"level"`
	Event     string    `json:"event,omitempty"`
	Action    string    `json:"action,omitempty"`
	Messenger string    `json:"messenger,omitempty"`
}

// EventLog keeps the most recent log entries in memory for the HTTP API
type EventLog struct {
	logger  *zap.Logger
	entries []LogEntry
	mu      sync.RWMutex
	maxSize int // Maximum number of logs to keep (0 = unlimited)
}

// NewEventLog creates a new event log. Stored entries are also written to logger.
func NewEventLog(logger *zap.Logger, maxSize int) *EventLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventLog{
		logger:  logger,
		entries: make([]LogEntry, 0),
		maxSize: maxSize,
	}
}

// Add adds a log entry to the store
func (l *EventLog) Add(entry LogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entry)
	if l.maxSize > 0 && len(l.entries) > l.maxSize {
		l.entries = l.entries[len(l.entries)-l.maxSize:]
	}
}

// GetAll returns a copy of all log entries, oldest first
func (l *EventLog) GetAll() []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]LogEntry, len(l.entries))
	copy(result, l.entries)
	return result
}

func (l *EventLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make([]LogEntry, 0)
}

// LogAndStore logs a message at level and stores it
func (l *EventLog) LogAndStore(level zapcore.Level, format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	if ce := l.logger.Check(level, message); ce != nil {
		ce.Write()
	}
	l.Add(LogEntry{Message: message, Level: level.String()})
}

// Observe records a queue event. It has the action.Observer signature.
func (l *EventLog) Observe(e action.Event) {
	entry := LogEntry{Level: zapcore.DebugLevel.String(), Event: e.Type.String()}

	switch e.Type {
	case action.EventExecutionRunning:
		entry.Action = string(e.Item.Type)
		entry.Message = "action started"
	case action.EventExecutionDefer:
		entry.Action = string(e.Item.Type)
		entry.Messenger = e.Element.Messenger
		entry.Message = "action deferred"
	case action.EventExecutionError:
		entry.Level = zapcore.WarnLevel.String()
		entry.Action = string(e.Element.Request.Type)
		entry.Messenger = e.Element.Messenger
		entry.Message = "action failed validation"
	case action.EventQueueError:
		entry.Level = zapcore.ErrorLevel.String()
		entry.Action = string(e.Item.Type)
		entry.Message = e.Error
	}

	l.logger.Debug("Queue event",
		zap.String("event", entry.Event),
		zap.String("action", entry.Action),
		zap.String("messenger", entry.Messenger),
		zap.String("detail", entry.Message))
	l.Add(entry)
}
