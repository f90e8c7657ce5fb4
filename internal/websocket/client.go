package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/neynn/army-attack-client-sub000/internal/action"
	"github.com/neynn/army-attack-client-sub000/internal/actions"
	"github.com/neynn/army-attack-client-sub000/internal/match"
	"github.com/neynn/army-attack-client-sub000/internal/models"
	"github.com/neynn/army-attack-client-sub000/internal/world"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("connection closed")

type ClientConfig struct {
	URL      string
	PeerID   string // empty lets the host pick one
	Name     string
	TickRate int
	Queue    action.Config
	Actions  actions.Config
}

// Client is a headless peer. It predicts its own requests against a local
// copy of the world, hands them to the host, and executes whatever the host
// broadcasts.
//
// Tick, Request and Skip must be called from one goroutine; Run is that
// goroutine when the caller has nothing else to do.
type Client struct {
	logger *zap.Logger
	cfg    ClientConfig
	conn   *websocket.Conn

	writeMu sync.Mutex

	PeerID  string
	MatchID string

	world *world.World
	queue *actions.Queue

	inbox    chan models.Message
	done     chan struct{}
	readErr  error
	lastSeq  int64
	rejected *atomic.Int64
}

// Dial connects to a match, joins it and builds the local queue from the
// joined snapshot. Observers receive every event of the local queue.
func Dial(ctx context.Context, logger *zap.Logger, cfg ClientConfig, observers ...action.Observer) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = 20
	}
	// Local requests are predictions; only the host's broadcasts execute.
	cfg.Queue.Variant = action.VariantVersus

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.URL, err)
	}

	joined, err := handshake(ctx, conn, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}

	var state match.JoinState
	if err := json.Unmarshal(joined.Data, &state); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to decode join state: %w", err)
	}
	w, err := world.FromSnapshot(state.Snapshot)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to rebuild world: %w", err)
	}

	c := &Client{
		logger:   logger.With(zap.String("peer", joined.ID), zap.String("mid", joined.MatchID)),
		cfg:      cfg,
		conn:     conn,
		PeerID:   joined.ID,
		MatchID:  joined.MatchID,
		world:    w,
		inbox:    make(chan models.Message, 256),
		done:     make(chan struct{}),
		rejected: atomic.NewInt64(0),
	}

	observers = append([]action.Observer{c.forward}, observers...)
	c.queue = action.NewQueue[*world.World](c.logger, w, cfg.Queue, observers...)
	actions.Register(c.queue, cfg.Actions)
	c.queue.StartMatch()

	c.lastSeq = joined.Seq - int64(len(state.Pending))
	for _, msg := range state.Pending {
		c.handleMessage(msg)
	}

	go c.readLoop()
	c.logger.Info("Joined match", zap.Int("entities", w.Len()), zap.Int("pending", len(state.Pending)))
	return c, nil
}

func handshake(ctx context.Context, conn *websocket.Conn, cfg ClientConfig) (models.Message, error) {
	if err := conn.WriteJSON(models.Message{Type: models.MessageJoin, ID: cfg.PeerID, Name: cfg.Name}); err != nil {
		return models.Message{}, fmt.Errorf("failed to send join: %w", err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(joinTimeout)
	}
	conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	var reply models.Message
	if err := conn.ReadJSON(&reply); err != nil {
		return reply, fmt.Errorf("failed to read join reply: %w", err)
	}
	if reply.Type != models.MessageJoined {
		return reply, fmt.Errorf("join refused: %s %s", reply.Type, reply.Error)
	}
	return reply, nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		var msg models.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.readErr = err
			}
			return
		}
		select {
		case c.inbox <- msg:
		default:
			// Dropping a broadcast would desync the local world.
			c.readErr = errors.New("client inbox overflow")
			c.logger.Error("Inbox full, disconnecting", zap.String("type", msg.Type))
			c.conn.Close()
			return
		}
	}
}

func (c *Client) send(msg models.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}

// forward hands deferred local requests to the host
func (c *Client) forward(e action.Event) {
	if e.Type != action.EventExecutionDefer {
		return
	}
	data, err := json.Marshal(e.Element.Request.Data)
	if err != nil {
		c.logger.Error("Failed to encode request", zap.String("action", string(e.Element.Request.Type)), zap.Error(err))
		return
	}
	msg := models.Message{
		Type:       models.MessageRequest,
		MatchID:    c.MatchID,
		RequestID:  e.Element.Request.ID,
		ActionType: string(e.Element.Request.Type),
		Data:       data,
	}
	if err := c.send(msg); err != nil {
		c.logger.Warn("Failed to send request", zap.String("request", msg.RequestID), zap.Error(err))
	}
}

// Request submits a local request. It is validated against the local world
// on the next Tick and sent to the host if it passes.
func (c *Client) Request(typeID action.TypeID, args ...any) (string, error) {
	req, err := c.queue.CreateRequest(typeID, args...)
	if err != nil {
		return "", err
	}
	if !c.queue.AddRequest(req, action.PriorityNormal, c.PeerID) {
		return "", errors.New("request lane full")
	}
	return req.ID, nil
}

// Tick applies everything received from the host and advances the local
// world by one step. It returns ErrClosed once the connection is gone and
// the inbox is drained.
func (c *Client) Tick() error {
drain:
	for {
		select {
		case msg := <-c.inbox:
			c.handleMessage(msg)
		default:
			break drain
		}
	}

	actions.Step(c.queue)

	select {
	case <-c.done:
		if len(c.inbox) > 0 {
			return nil
		}
		if c.readErr != nil {
			return fmt.Errorf("%w: %v", ErrClosed, c.readErr)
		}
		return ErrClosed
	default:
		return nil
	}
}

// Run ticks until ctx is done or the connection closes
func (c *Client) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(c.cfg.TickRate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.Tick(); err != nil {
				return err
			}
		}
	}
}

// Skip fast-forwards the action playing locally
func (c *Client) Skip() bool { return c.queue.Skip() }

func (c *Client) Ping() error {
	return c.send(models.Message{Type: models.MessagePing, Tick: c.world.CurrentTick()})
}

func (c *Client) World() *world.World { return c.world }

func (c *Client) Queue() *actions.Queue { return c.queue }

// Rejected counts the requests the host refused
func (c *Client) Rejected() int64 { return c.rejected.Load() }

// Close leaves the match
func (c *Client) Close() error {
	c.writeMu.Lock()
	err := c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()

	select {
	case <-c.done:
	case <-time.After(time.Second):
	}
	c.queue.Exit()
	if cerr := c.conn.Close(); err == nil {
		err = cerr
	}
	return err
}
