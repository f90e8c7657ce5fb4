package action

import (
	"fmt"

	"github.com/neynn/army-attack-client-sub000/internal/events"
	"github.com/neynn/army-attack-client-sub000/internal/queue"
	"go.uber.org/zap"
)

const (
	DefaultLaneCapacity      = 100
	DefaultExecutionCapacity = 100
	DefaultImmediateCapacity = 100
	DefaultMaxInstantActions = 100
)

// Config sizes the queue and selects its policy
type Config struct {
	LaneCapacity      int
	ExecutionCapacity int
	ImmediateCapacity int
	// MaxInstantActions caps how many instant items are flushed in one
	// Update. 0 uses the default, a negative value disables the fast path.
	MaxInstantActions int
	Variant           Variant
}

func (c Config) withDefaults() Config {
	if c.LaneCapacity <= 0 {
		c.LaneCapacity = DefaultLaneCapacity
	}
	if c.ExecutionCapacity <= 0 {
		c.ExecutionCapacity = DefaultExecutionCapacity
	}
	if c.ImmediateCapacity <= 0 {
		c.ImmediateCapacity = DefaultImmediateCapacity
	}
	if c.MaxInstantActions == 0 {
		c.MaxInstantActions = DefaultMaxInstantActions
	}
	return c
}

// Queue admits requests into priority lanes, validates them against the
// world W, and runs at most one validated item at a time.
//
// A Queue is driven by one Update call per simulation step and is not safe
// for concurrent use.
type Queue[W any] struct {
	logger   *zap.Logger
	world    W
	handlers map[TypeID]Handler[W]
	events   *events.Emitter[EventType, Event]

	lanes     [priorityCount]*queue.Ring[Element]
	immediate *queue.Ring[Element]
	execution *queue.Ring[ExecutionItem]

	current  *ExecutionItem
	started  bool
	skipping bool

	state      State
	mode       Mode
	variant    Variant
	maxInstant int
}

// NewQueue creates a queue operating on world. Observers receive every event
// the queue emits for its whole lifetime.
func NewQueue[W any](logger *zap.Logger, world W, cfg Config, observers ...Observer) *Queue[W] {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	q := &Queue[W]{
		logger:     logger,
		world:      world,
		handlers:   make(map[TypeID]Handler[W]),
		events:     events.NewEmitter[EventType, Event](),
		immediate:  queue.NewRing[Element](cfg.ImmediateCapacity),
		execution:  queue.NewRing[ExecutionItem](cfg.ExecutionCapacity),
		variant:    cfg.Variant,
		state:      cfg.Variant.initialState(),
		mode:       ModeDirect,
		maxInstant: cfg.MaxInstantActions,
	}
	for p := range q.lanes {
		q.lanes[p] = queue.NewRing[Element](cfg.LaneCapacity)
	}

	for _, o := range observers {
		if o == nil {
			continue
		}
		for t := EventExecutionRunning; t <= EventQueueError; t++ {
			q.events.On(t, events.Listener[Event](o))
		}
	}
	return q
}

// Events exposes the emitter for listeners attached after construction
func (q *Queue[W]) Events() *events.Emitter[EventType, Event] { return q.events }

func (q *Queue[W]) World() W { return q.world }

func (q *Queue[W]) State() State { return q.state }

func (q *Queue[W]) Mode() Mode { return q.mode }

func (q *Queue[W]) Variant() Variant { return q.variant }

// RegisterHandler binds handler to typeID. The first registration wins; a
// duplicate is logged and ignored.
func (q *Queue[W]) RegisterHandler(typeID TypeID, handler Handler[W]) bool {
	if _, exists := q.handlers[typeID]; exists {
		q.logger.Warn("Action handler already registered", zap.String("type", string(typeID)))
		return false
	}
	q.handlers[typeID] = handler
	return true
}

// Handler returns the handler registered for typeID
func (q *Queue[W]) Handler(typeID TypeID) (Handler[W], bool) {
	h, ok := q.handlers[typeID]
	return h, ok
}

func (q *Queue[W]) IsInstant(typeID TypeID) bool {
	h, ok := q.handlers[typeID]
	return ok && h.IsInstant()
}

func (q *Queue[W]) IsSendable(typeID TypeID) bool {
	h, ok := q.handlers[typeID]
	return ok && h.IsSendable()
}

// CreateRequest builds a request from the handler's template
func (q *Queue[W]) CreateRequest(typeID TypeID, args ...any) (Request, error) {
	h, ok := q.handlers[typeID]
	if !ok {
		return Request{}, fmt.Errorf("%w: %s", ErrUnknownType, typeID)
	}
	template, err := h.Template(args...)
	if err != nil {
		return Request{}, fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, typeID, err)
	}
	return NewRequest(typeID, template), nil
}

// AddRequest admits request into the lane for priority. Unknown types,
// invalid priorities and full lanes are dropped without an event.
func (q *Queue[W]) AddRequest(request Request, priority Priority, messenger string) bool {
	if _, ok := q.handlers[request.Type]; !ok || !priority.Valid() {
		return false
	}
	return q.lanes[priority].EnqueueLast(Element{Request: request, Priority: priority, Messenger: messenger})
}

// AddImmediateRequest admits an interrupt-class request (deaths, decay) that
// is validated ahead of the priority lanes whenever nothing is running.
func (q *Queue[W]) AddImmediateRequest(typeID TypeID, messenger string, args ...any) bool {
	request, err := q.CreateRequest(typeID, args...)
	if err != nil {
		return false
	}
	return q.immediate.EnqueueLast(Element{Request: request, Priority: PrioritySuper, Messenger: messenger})
}

// Enqueue places a validated item in the execution queue: super priority at
// the front, normal at the back. A full queue discards the item and emits
// EventQueueError.
//
// Remote peers call Enqueue directly with host-authoritative items.
func (q *Queue[W]) Enqueue(item ExecutionItem) bool {
	if _, ok := q.handlers[item.Type]; !ok {
		return false
	}
	if q.execution.IsFull() {
		q.events.Emit(EventQueueError, Event{
			Type:  EventQueueError,
			Item:  item,
			Error: "execution queue is full",
		})
		return false
	}

	switch item.Priority {
	case PrioritySuper:
		return q.execution.EnqueueFirst(item)
	case PriorityNormal:
		return q.execution.EnqueueLast(item)
	default:
		panic(fmt.Sprintf("action: enqueue with %s", item.Priority))
	}
}

// Update advances the queue by one simulation step
func (q *Queue[W]) Update() {
	if q.state == StateInactive {
		return
	}

	if q.current == nil {
		q.filterImmediate()
	}
	q.promote()

	if limitReached := q.flushInstant(); limitReached {
		return
	}

	switch q.state {
	case StateActive:
		q.startNext()
	case StateProcessing:
		q.process()
	case StateFlush:
		q.flushOne()
	}
}

// Skip makes the running item finish on the next Update regardless of
// IsFinished. End and Clear still run.
func (q *Queue[W]) Skip() bool {
	if q.current == nil || q.state != StateProcessing {
		return false
	}
	q.skipping = true
	return true
}

// IsRunning reports whether an item is executing or waiting to execute
func (q *Queue[W]) IsRunning() bool {
	return q.current != nil || !q.execution.IsEmpty()
}

// Current returns the item being executed
func (q *Queue[W]) Current() (ExecutionItem, bool) {
	if q.current == nil {
		return ExecutionItem{}, false
	}
	return *q.current, true
}

// Pending returns the execution queue front to back
func (q *Queue[W]) Pending() []ExecutionItem { return q.execution.Snapshot() }

func (q *Queue[W]) ExecutionSize() int { return q.execution.Size() }

func (q *Queue[W]) ImmediateSize() int { return q.immediate.Size() }

func (q *Queue[W]) LaneSize(priority Priority) int {
	if !priority.Valid() {
		return 0
	}
	return q.lanes[priority].Size()
}

// SetMode changes what happens to requests validated from now on
func (q *Queue[W]) SetMode(mode Mode) {
	if !mode.Valid() {
		panic(fmt.Sprintf("action: set %s", mode))
	}
	q.mode = mode
}

// Activate resumes an inactive queue in its variant's working state
func (q *Queue[W]) Activate() {
	if q.state != StateInactive {
		return
	}
	q.state = q.variant.workingState()
	if q.current != nil && q.state == StateActive {
		q.state = StateProcessing
	}
}

// Deactivate pauses the queue. Nothing is dropped.
func (q *Queue[W]) Deactivate() {
	q.state = StateInactive
}

// ToFlush switches to synchronous draining. A running item is ended on the
// next Update without being started again.
func (q *Queue[W]) ToFlush() {
	if q.state == StateInactive {
		return
	}
	q.state = StateFlush
}

// ToActive leaves flush mode
func (q *Queue[W]) ToActive() {
	if q.state != StateFlush {
		return
	}
	if q.current != nil && q.started {
		q.state = StateProcessing
		return
	}
	q.state = StateActive
}

// Reset drops every lane and the current item. The current item's handler
// is cleared but not ended.
func (q *Queue[W]) Reset() {
	for _, lane := range q.lanes {
		lane.Clear()
	}
	q.immediate.Clear()
	q.execution.Clear()

	if q.current != nil {
		if h, ok := q.handlers[q.current.Type]; ok {
			h.Clear()
		}
	}
	q.current = nil
	q.started = false
	q.skipping = false
	if q.state == StateProcessing {
		q.state = StateActive
	}
}

// Exit resets the queue and leaves it inactive, as when a match ends
func (q *Queue[W]) Exit() {
	q.Reset()
	q.state = StateInactive
	q.mode = ModeDirect
}

func (q *Queue[W]) validate(el Element) (ExecutionItem, bool) {
	h, ok := q.handlers[el.Request.Type]
	if !ok {
		return ExecutionItem{}, false
	}
	data, ok := h.Validate(q.world, el.Request.Data, el.Messenger)
	if !ok {
		return ExecutionItem{}, false
	}
	return ExecutionItem{Type: el.Request.Type, Data: data, Priority: el.Priority}, true
}

// filterLane promotes at most one valid request from a priority lane
func (q *Queue[W]) filterLane(priority Priority) bool {
	return q.lanes[priority].FilterUntilFirstHit(func(el Element) bool {
		item, ok := q.validate(el)
		if !ok {
			q.events.Emit(EventExecutionError, Event{Type: EventExecutionError, Element: el})
			return false
		}
		q.dispatch(item, el)
		return true
	})
}

func (q *Queue[W]) dispatch(item ExecutionItem, el Element) {
	deferEvent := Event{Type: EventExecutionDefer, Item: item, Element: el}

	// Types that cannot cross the network have no outside authority.
	mode := q.mode
	if !q.IsSendable(item.Type) {
		mode = ModeDirect
	}

	switch mode {
	case ModeDirect:
		q.Enqueue(item)
	case ModeDeferred:
		q.events.Emit(EventExecutionDefer, deferEvent)
	case ModeTell:
		// Never announce an item this queue failed to keep.
		if q.Enqueue(item) {
			q.events.Emit(EventExecutionDefer, deferEvent)
		}
	default:
		panic(fmt.Sprintf("action: dispatch in %s", q.mode))
	}
}

// filterImmediate promotes at most one valid interrupt request. Interrupts
// are produced by the local simulation and always execute locally.
func (q *Queue[W]) filterImmediate() bool {
	return q.immediate.FilterUntilFirstHit(func(el Element) bool {
		item, ok := q.validate(el)
		if !ok {
			q.events.Emit(EventExecutionError, Event{Type: EventExecutionError, Element: el})
			return false
		}
		q.Enqueue(item)
		return true
	})
}

// flushInstant runs instant items back to back while nothing else is
// running. It reports true when the per-step cap stopped it with instant
// items still waiting; the rest of the step is skipped and the chain
// resumes on the next Update.
func (q *Queue[W]) flushInstant() bool {
	if q.current != nil || q.maxInstant < 0 {
		return false
	}

	for count := 0; ; count++ {
		next, ok := q.execution.Peek()
		if !ok || !q.IsInstant(next.Type) {
			return false
		}
		if count >= q.maxInstant {
			return true
		}

		q.execution.Next()
		q.current = &next
		q.begin()
		q.finish()

		// Interrupts and counters raised by this item join the chain.
		q.filterImmediate()
		q.filterLane(PrioritySuper)
	}
}

func (q *Queue[W]) startNext() {
	item, ok := q.execution.Next()
	if !ok {
		return
	}
	q.current = &item
	q.begin()
	q.state = StateProcessing
}

func (q *Queue[W]) process() {
	if q.current == nil {
		q.state = StateActive
		return
	}
	h := q.handlers[q.current.Type]
	h.Update(q.world, q.current.Data)
	if q.skipping || h.IsFinished(q.world, q.current.Data) {
		q.finish()
	}
}

func (q *Queue[W]) flushOne() {
	if q.current == nil {
		item, ok := q.execution.Next()
		if !ok {
			return
		}
		q.current = &item
	}
	if !q.started {
		q.begin()
	}
	q.finish()
}

func (q *Queue[W]) begin() {
	q.events.Emit(EventExecutionRunning, Event{Type: EventExecutionRunning, Item: *q.current})
	q.handlers[q.current.Type].Start(q.world, q.current.Data)
	q.started = true
}

func (q *Queue[W]) finish() {
	h := q.handlers[q.current.Type]
	h.End(q.world, q.current.Data)
	h.Clear()

	q.current = nil
	q.started = false
	q.skipping = false
	if q.state == StateProcessing {
		q.state = StateActive
	}
}
