// Package match runs the authoritative action queue of one game.
//
// A Match owns its world and queue on a single goroutine, driven by a ticker.
// Peers submit requests from their connection goroutines through a bounded
// input queue; everything else that touches game state is queued as a call
// onto the match goroutine.
package match

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/neynn/army-attack-client-sub000/internal/action"
	"github.com/neynn/army-attack-client-sub000/internal/actions"
	"github.com/neynn/army-attack-client-sub000/internal/models"
	"github.com/neynn/army-attack-client-sub000/internal/queue"
	"github.com/neynn/army-attack-client-sub000/internal/store"
	"github.com/neynn/army-attack-client-sub000/internal/world"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var (
	ErrStopped       = errors.New("match stopped")
	ErrCallQueueFull = errors.New("match call queue full")
)

const (
	defaultTickRate       = 20
	defaultInputQueueSize = 1000
	defaultCallQueueSize  = 128
)

// Peers is the set of connections a match talks to
type Peers interface {
	Register(id, name string, conn *websocket.Conn) *models.Peer
	Unregister(id string, conn *websocket.Conn) bool
	Count() int
	Send(id string, msg models.Message) bool
	Broadcast(msg models.Message) int
}

// Journal records every action the match hands to its peers
type Journal interface {
	Append(ctx context.Context, r store.Record) (int64, error)
}

type Config struct {
	TickRate       int // ticks per second
	InputQueueSize int
	CallQueueSize  int
	Queue          action.Config
	Actions        actions.Config
}

// Status is a point-in-time summary readable from any goroutine
type Status struct {
	ID        string    `json:"id"`
	Running   bool      `json:"running"`
	Tick      int64     `json:"tick"`
	Actions   int64     `json:"actions"`
	Peers     int       `json:"peers"`
	TickRate  int       `json:"tick_rate"`
	CreatedAt time.Time `json:"created_at"`
}

// JoinState is the payload of the joined message: the world as of the join
// and the broadcast actions not yet reflected in it, oldest first.
type JoinState struct {
	Snapshot world.Snapshot   `json:"snapshot"`
	Pending  []models.Message `json:"pending"`
}

type outgoing struct {
	to     string // empty broadcasts
	msg    models.Message
	record *store.Record
}

type Match struct {
	ID     string
	logger *zap.Logger
	cfg    Config

	world   *world.World
	queue   *actions.Queue
	inputs  *queue.InputQueue
	peers   Peers
	journal Journal

	ctx     context.Context
	cancel  context.CancelFunc
	ticker  *time.Ticker
	callCh  chan func(*Match)
	stopCh  chan struct{}
	stopped *atomic.Bool

	tick      *atomic.Int64
	seq       *atomic.Int64
	createdAt time.Time

	// Owned by the match goroutine.
	outbox   []outgoing
	inflight []models.Message
	running  *models.Message // broadcast action started but not yet ended
}

func (c Config) withDefaults() Config {
	if c.TickRate <= 0 {
		c.TickRate = defaultTickRate
	}
	if c.InputQueueSize <= 0 {
		c.InputQueueSize = defaultInputQueueSize
	}
	if c.CallQueueSize <= 0 {
		c.CallQueueSize = defaultCallQueueSize
	}
	return c
}

// NewMatch starts a match on w. journal may be nil. Observers receive every
// event of the match's action queue on the match goroutine.
func NewMatch(logger *zap.Logger, w *world.World, peers Peers, journal Journal, cfg Config, observers ...action.Observer) *Match {
	m := newMatch(logger, w, peers, journal, cfg, observers...)
	m.start()
	return m
}

func newMatch(logger *zap.Logger, w *world.World, peers Peers, journal Journal, cfg Config, observers ...action.Observer) *Match {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	id := uuid.NewString()
	logger = logger.With(zap.String("mid", id))
	ctx, cancel := context.WithCancel(context.Background())

	m := &Match{
		ID:        id,
		logger:    logger,
		cfg:       cfg,
		world:     w,
		inputs:    queue.NewInputQueue(logger, cfg.InputQueueSize),
		peers:     peers,
		journal:   journal,
		ctx:       ctx,
		cancel:    cancel,
		callCh:    make(chan func(*Match), cfg.CallQueueSize),
		stopCh:    make(chan struct{}),
		stopped:   atomic.NewBool(false),
		tick:      atomic.NewInt64(w.CurrentTick()),
		seq:       atomic.NewInt64(0),
		createdAt: time.Now(),
	}

	observers = append([]action.Observer{m.observe}, observers...)
	m.queue = action.NewQueue[*world.World](logger, w, cfg.Queue, observers...)
	actions.Register(m.queue, cfg.Actions)
	m.queue.SetMode(action.ModeTell)
	m.queue.Activate()
	return m
}

func (m *Match) start() {
	m.ticker = time.NewTicker(time.Second / time.Duration(m.cfg.TickRate))

	go func() {
		defer m.queue.Exit()
		for {
			select {
			case <-m.stopCh:
				return
			case <-m.ticker.C:
				m.run(loop)
			case call := <-m.callCh:
				m.run(call)
			}
		}
	}()

	m.logger.Info("Match started", zap.Int("tick_rate", m.cfg.TickRate), zap.String("variant", m.queue.Variant().String()))
}

// run executes f on the match goroutine. A panicking handler stops the match.
func (m *Match) run(f func(*Match)) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Match call panicked, stopping match", zap.Any("panic", r), zap.Stack("stack"))
			m.Stop()
		}
	}()
	f(m)
}

// Stop the match and release its resources. Safe to call more than once.
func (m *Match) Stop() {
	if !m.stopped.CompareAndSwap(false, true) {
		return
	}

	close(m.stopCh)
	if m.ticker != nil {
		m.ticker.Stop()
	}
	m.inputs.Close()
	m.cancel()
	m.logger.Info("Match stopped", zap.Int64("tick", m.tick.Load()), zap.Int64("actions", m.seq.Load()))
}

func (m *Match) Stopped() bool { return m.stopped.Load() }

func (m *Match) Status() Status {
	peers := 0
	if m.peers != nil {
		peers = m.peers.Count()
	}
	return Status{
		ID:        m.ID,
		Running:   !m.stopped.Load(),
		Tick:      m.tick.Load(),
		Actions:   m.seq.Load(),
		Peers:     peers,
		TickRate:  m.cfg.TickRate,
		CreatedAt: m.createdAt,
	}
}

// Submit queues a peer message for the next tick. Returns false if the match
// is stopped or its input queue is full.
func (m *Match) Submit(peerID string, msg models.Message) bool {
	if m.stopped.Load() {
		return false
	}
	return m.inputs.Enqueue(peerID, msg)
}

func (m *Match) queueCall(f func(*Match)) error {
	if m.stopped.Load() {
		return ErrStopped
	}

	select {
	case m.callCh <- f:
		return nil
	default:
		m.logger.Warn("Match call queue full")
		return ErrCallQueueFull
	}
}

// call runs f on the match goroutine and waits for its result
func call[T any](ctx context.Context, m *Match, f func(*Match) (T, error)) (T, error) {
	var zero T
	type result struct {
		value T
		err   error
	}
	resultCh := make(chan result, 1)

	err := m.queueCall(func(m *Match) {
		select {
		case <-ctx.Done():
			// The caller went away while the call was queued.
			resultCh <- result{err: ctx.Err()}
			return
		default:
		}
		v, err := f(m)
		resultCh <- result{value: v, err: err}
	})
	if err != nil {
		return zero, err
	}

	select {
	case r := <-resultCh:
		return r.value, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-m.stopCh:
		return zero, ErrStopped
	}
}

// Snapshot copies the world on the match goroutine
func (m *Match) Snapshot(ctx context.Context) (world.Snapshot, error) {
	return call(ctx, m, func(m *Match) (world.Snapshot, error) {
		return m.world.Snapshot(), nil
	})
}

// Join registers a peer and sends it the joined message. Registration and
// the reply happen between ticks, so the peer sees every later broadcast
// exactly once and after its snapshot.
func (m *Match) Join(ctx context.Context, id, name string, conn *websocket.Conn) error {
	_, err := call(ctx, m, func(m *Match) (struct{}, error) {
		return struct{}{}, m.join(id, name, conn)
	})
	return err
}

func (m *Match) join(id, name string, conn *websocket.Conn) error {
	m.peers.Register(id, name, conn)

	state := JoinState{Snapshot: m.world.Snapshot(), Pending: m.pending()}
	data, err := json.Marshal(state)
	if err != nil {
		m.peers.Unregister(id, conn)
		return err
	}

	reply := models.Message{
		Type:    models.MessageJoined,
		ID:      id,
		MatchID: m.ID,
		Data:    data,
		Tick:    m.tick.Load(),
		Seq:     m.seq.Load(),
		Status:  "ok",
	}
	if !m.peers.Send(id, reply) {
		m.peers.Unregister(id, conn)
		return errors.New("failed to send join reply")
	}
	m.logger.Info("Peer joined", zap.String("peer", id), zap.String("name", name))
	return nil
}

// Leave removes a peer joined over conn. Its queued requests still run.
func (m *Match) Leave(id string, conn *websocket.Conn) {
	if m.peers.Unregister(id, conn) {
		m.logger.Info("Peer left", zap.String("peer", id))
	}
}

func loop(m *Match) {
	if m.stopped.Load() {
		return
	}

	m.inputs.Drain(0, m.handleInput)
	actions.Step(m.queue)
	if m.running != nil {
		if current, ok := m.queue.Current(); !ok || string(current.Type) != m.running.ActionType {
			m.running = nil
		}
	}
	m.tick.Store(m.world.CurrentTick())
	m.flush()
}

// pending lists the broadcast actions a joining peer still has to run: the
// one playing now, whose End is not in the snapshot yet, then those waiting.
func (m *Match) pending() []models.Message {
	out := make([]models.Message, 0, len(m.inflight)+1)
	if m.running != nil {
		out = append(out, *m.running)
	}
	return append(out, m.inflight...)
}

func (m *Match) handleInput(in queue.QueuedInput) {
	switch in.Message.Type {
	case models.MessageRequest:
		m.handleRequest(in.SourceID, in.Message)
	default:
		m.logger.Warn("Unexpected input type", zap.String("peer", in.SourceID), zap.String("type", in.Message.Type))
	}
}

func (m *Match) handleRequest(peerID string, msg models.Message) {
	typeID := action.TypeID(msg.ActionType)
	handler, ok := m.queue.Handler(typeID)
	if !ok || !handler.IsSendable() {
		m.reject(peerID, msg, "unknown action type")
		return
	}

	template, err := handler.DecodeTemplate(msg.Data)
	if err != nil {
		m.reject(peerID, msg, err.Error())
		return
	}

	requestID := msg.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req := action.Request{ID: requestID, Type: typeID, Data: template}
	if !m.queue.AddRequest(req, action.PriorityNormal, peerID) {
		m.reject(peerID, msg, "request lane full")
	}
}

func (m *Match) reject(peerID string, msg models.Message, reason string) {
	m.logger.Debug("Request rejected", zap.String("peer", peerID), zap.String("action", msg.ActionType), zap.String("reason", reason))
	m.outbox = append(m.outbox, outgoing{
		to: peerID,
		msg: models.Message{
			Type:       models.MessageRejected,
			MatchID:    m.ID,
			RequestID:  msg.RequestID,
			ActionType: msg.ActionType,
			Error:      reason,
		},
	})
}

// observe turns queue events into peer messages. It runs inside Update.
func (m *Match) observe(e action.Event) {
	switch e.Type {
	case action.EventExecutionDefer:
		data, err := json.Marshal(e.Item.Data)
		if err != nil {
			m.logger.Error("Failed to encode action", zap.String("action", string(e.Item.Type)), zap.Error(err))
			return
		}
		seq := m.seq.Inc()
		tick := m.world.CurrentTick()
		msg := models.Message{
			Type:       models.MessageAction,
			ID:         e.Element.Messenger,
			MatchID:    m.ID,
			RequestID:  e.Element.Request.ID,
			ActionType: string(e.Item.Type),
			Data:       data,
			Tick:       tick,
			Seq:        seq,
		}
		m.inflight = append(m.inflight, msg)
		m.outbox = append(m.outbox, outgoing{msg: msg, record: &store.Record{
			MatchID:    m.ID,
			Seq:        seq,
			Tick:       tick,
			ActionType: msg.ActionType,
			Priority:   e.Item.Priority,
			Messenger:  e.Element.Messenger,
			Data:       data,
		}})

	case action.EventExecutionRunning:
		// Broadcast actions run in the order they were deferred.
		if len(m.inflight) > 0 && m.inflight[0].ActionType == string(e.Item.Type) && m.queue.IsSendable(e.Item.Type) {
			running := m.inflight[0]
			m.running = &running
			m.inflight = m.inflight[1:]
		}

	case action.EventExecutionError:
		if e.Element.Messenger == "" {
			return
		}
		m.reject(e.Element.Messenger, models.Message{
			RequestID:  e.Element.Request.ID,
			ActionType: string(e.Element.Request.Type),
		}, "validation failed")

	case action.EventQueueError:
		m.logger.Error("Action dropped", zap.String("action", string(e.Item.Type)), zap.String("error", e.Error))
	}
}

// flush delivers what the last tick produced: journal first, then peers
func (m *Match) flush() {
	for _, out := range m.outbox {
		if out.record != nil && m.journal != nil {
			if _, err := m.journal.Append(m.ctx, *out.record); err != nil {
				m.logger.Error("Failed to journal action", zap.Int64("seq", out.record.Seq), zap.Error(err))
			}
		}
		if m.peers == nil {
			continue
		}
		if out.to == "" {
			m.peers.Broadcast(out.msg)
		} else {
			m.peers.Send(out.to, out.msg)
		}
	}
	m.outbox = m.outbox[:0]
}
