package action

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrUnknownType     = errors.New("unknown action type")
	ErrInvalidTemplate = errors.New("invalid action template")
)

// TypeID names an action type, e.g. "ATTACK". It is also the wire name.
type TypeID string

// Priority decides where a validated item lands in the execution queue
type Priority uint8

const (
	// PriorityNormal items wait behind everything already queued
	PriorityNormal Priority = iota
	// PrioritySuper items are executed next, ahead of queued normal items
	PrioritySuper

	priorityCount
)

func (p Priority) Valid() bool { return p < priorityCount }

func (p Priority) String() string {
	switch p {
	case PriorityNormal:
		return "normal"
	case PrioritySuper:
		return "super"
	}
	return fmt.Sprintf("priority(%d)", uint8(p))
}

// Mode decides what happens to a request once it validates
type Mode uint8

const (
	// ModeDirect enqueues validated items for local execution
	ModeDirect Mode = iota
	// ModeDeferred only emits EventExecutionDefer; an outside authority
	// decides if and when the item is executed
	ModeDeferred
	// ModeTell enqueues locally and emits EventExecutionDefer
	ModeTell
)

func (m Mode) Valid() bool { return m <= ModeTell }

func (m Mode) String() string {
	switch m {
	case ModeDirect:
		return "direct"
	case ModeDeferred:
		return "deferred"
	case ModeTell:
		return "tell"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// State is the execution state of a Queue
type State uint8

const (
	// StateInactive queues ignore Update
	StateInactive State = iota
	// StateActive queues are idle and start the next item on Update
	StateActive
	// StateProcessing queues advance the current item once per Update
	StateProcessing
	// StateFlush queues start and end one item per Update without waiting
	StateFlush
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateActive:
		return "active"
	case StateProcessing:
		return "processing"
	case StateFlush:
		return "flush"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Request is the unvalidated intent to perform an action
type Request struct {
	ID   string
	Type TypeID
	Data any
}

// NewRequest wraps an already built template
func NewRequest(typeID TypeID, template any) Request {
	return Request{ID: uuid.NewString(), Type: typeID, Data: template}
}

// Element is a request waiting in a priority lane or the immediate lane
type Element struct {
	Request   Request
	Priority  Priority
	Messenger string
}

// ExecutionItem is the validated, authoritative form of a request.
// The queue builds one only from the result of a successful Validate.
type ExecutionItem struct {
	Type     TypeID
	Data     any
	Priority Priority
}

// EventType identifies a queue lifecycle event
type EventType uint8

const (
	// EventExecutionRunning fires right before an item's Start
	EventExecutionRunning EventType = iota
	// EventExecutionDefer fires when a validated item is handed to an outside authority
	EventExecutionDefer
	// EventExecutionError fires when a request fails validation and is discarded
	EventExecutionError
	// EventQueueError fires when a validated item is discarded because the execution queue is full
	EventQueueError
)

func (t EventType) String() string {
	switch t {
	case EventExecutionRunning:
		return "execution_running"
	case EventExecutionDefer:
		return "execution_defer"
	case EventExecutionError:
		return "execution_error"
	case EventQueueError:
		return "queue_error"
	}
	return fmt.Sprintf("event(%d)", uint8(t))
}

// Event is the payload of every queue event. Only the fields relevant to
// Type are set: Item for running/defer/queue errors, Element for defer and
// execution errors, Error for queue errors.
type Event struct {
	Type    EventType
	Item    ExecutionItem
	Element Element
	Error   string
}

// Observer receives every event a queue emits
type Observer func(Event)
