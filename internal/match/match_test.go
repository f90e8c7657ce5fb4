package match

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/neynn/army-attack-client-sub000/internal/action"
	"github.com/neynn/army-attack-client-sub000/internal/actions"
	"github.com/neynn/army-attack-client-sub000/internal/models"
	"github.com/neynn/army-attack-client-sub000/internal/store"
	"github.com/neynn/army-attack-client-sub000/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePeers struct {
	mu         sync.Mutex
	peers      map[string]bool
	sent       map[string][]models.Message
	broadcasts []models.Message
}

func newFakePeers(ids ...string) *fakePeers {
	p := &fakePeers{peers: make(map[string]bool), sent: make(map[string][]models.Message)}
	for _, id := range ids {
		p.peers[id] = true
	}
	return p
}

func (p *fakePeers) Register(id, name string, conn *websocket.Conn) *models.Peer {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.peers[id] = true
	return &models.Peer{ID: id, Name: name, Connection: conn}
}

func (p *fakePeers) Unregister(id string, conn *websocket.Conn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.peers[id] {
		return false
	}
	delete(p.peers, id)
	return true
}

func (p *fakePeers) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.peers)
}

func (p *fakePeers) Send(id string, msg models.Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.peers[id] {
		return false
	}
	p.sent[id] = append(p.sent[id], msg)
	return true
}

func (p *fakePeers) Broadcast(msg models.Message) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.broadcasts = append(p.broadcasts, msg)
	return len(p.peers)
}

func (p *fakePeers) messagesFor(id string) []models.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Message{}, p.sent[id]...)
}

func (p *fakePeers) broadcastCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.broadcasts)
}

type fakeJournal struct {
	mu      sync.Mutex
	records []store.Record
	err     error
}

func (j *fakeJournal) Append(ctx context.Context, r store.Record) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return 0, j.err
	}
	j.records = append(j.records, r)
	return int64(len(j.records)), nil
}

func testWorld(t *testing.T) *world.World {
	t.Helper()
	w := world.New(10, 10)
	for _, e := range []world.Entity{
		{ID: "tank", Team: "red", Health: 10, Damage: 4, Range: 1, Speed: 2, Position: world.Position{X: 0, Y: 0}},
		{ID: "jeep", Team: "red", Health: 6, Speed: 3, Position: world.Position{X: 5, Y: 0}},
		{ID: "enemy", Team: "blue", Health: 10, Damage: 2, Range: 1, Position: world.Position{X: 1, Y: 0}},
	} {
		_, err := w.Spawn(e)
		require.NoError(t, err)
	}
	return w
}

func withServer(cfg Config) Config {
	cfg.Queue.Variant = action.VariantServer
	return cfg
}

func request(actionType action.TypeID, requestID, data string) models.Message {
	return models.Message{Type: models.MessageRequest, ActionType: string(actionType), RequestID: requestID, Data: json.RawMessage(data)}
}

func TestMatch_RequestIsBroadcastAndJournaled(t *testing.T) {
	w := testWorld(t)
	peers := newFakePeers("p1", "p2")
	journal := &fakeJournal{}
	m := newMatch(nil, w, peers, journal, withServer(Config{}))

	require.True(t, m.Submit("p1", request(actions.TypeMove, "r1", `{"entity_id":"jeep","x":5,"y":2}`)))
	loop(m)

	jeep, _ := w.Get("jeep")
	assert.Equal(t, world.Position{X: 5, Y: 2}, jeep.Position, "the host resolves actions within the tick")

	require.Len(t, peers.broadcasts, 1)
	msg := peers.broadcasts[0]
	assert.Equal(t, models.MessageAction, msg.Type)
	assert.Equal(t, "MOVE", msg.ActionType)
	assert.Equal(t, "r1", msg.RequestID)
	assert.Equal(t, "p1", msg.ID)
	assert.Equal(t, int64(1), msg.Seq)
	assert.Equal(t, m.ID, msg.MatchID)

	var data actions.MoveData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, actions.MoveData{EntityID: "jeep", From: world.Position{X: 5}, To: world.Position{X: 5, Y: 2}, Distance: 2}, data)

	require.Len(t, journal.records, 1)
	assert.Equal(t, int64(1), journal.records[0].Seq)
	assert.Equal(t, "p1", journal.records[0].Messenger)
	assert.JSONEq(t, string(msg.Data), string(journal.records[0].Data))

	status := m.Status()
	assert.Equal(t, int64(1), status.Actions)
	assert.Equal(t, int64(1), status.Tick)
	assert.Equal(t, 2, status.Peers)
}

func TestMatch_CounterAttackIsNotBroadcast(t *testing.T) {
	w := testWorld(t)
	peers := newFakePeers("p1")
	m := newMatch(nil, w, peers, nil, withServer(Config{}))

	require.True(t, m.Submit("p1", request(actions.TypeAttack, "r1", `{"attacker_id":"tank","target_id":"enemy"}`)))
	loop(m)
	loop(m)

	enemy, _ := w.Get("enemy")
	tank, _ := w.Get("tank")
	assert.Equal(t, 6, enemy.Health)
	assert.Equal(t, 8, tank.Health, "counter resolved on the host")
	assert.Equal(t, 1, peers.broadcastCount(), "peers derive counters themselves")
}

func TestMatch_RejectsBadRequests(t *testing.T) {
	tests := []struct {
		name   string
		msg    models.Message
		reason string
	}{
		{"unknown type", request("TELEPORT", "r1", `{}`), "unknown action type"},
		{"local only type", request(actions.TypeCounterAttack, "r1", `{"attacker_id":"enemy","target_id":"tank"}`), "unknown action type"},
		{"bad payload", request(actions.TypeMove, "r1", `{"x":"far"}`), "invalid action template"},
		{"fails validation", request(actions.TypeAttack, "r1", `{"attacker_id":"tank","target_id":"jeep"}`), "validation failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			peers := newFakePeers("p1")
			m := newMatch(nil, testWorld(t), peers, nil, withServer(Config{}))

			require.True(t, m.Submit("p1", tt.msg))
			loop(m)

			sent := peers.messagesFor("p1")
			require.Len(t, sent, 1)
			assert.Equal(t, models.MessageRejected, sent[0].Type)
			assert.Equal(t, "r1", sent[0].RequestID)
			assert.Contains(t, sent[0].Error, tt.reason)
			assert.Empty(t, peers.broadcasts)
		})
	}
}

func TestMatch_JoinSendsSnapshotAndPending(t *testing.T) {
	peers := newFakePeers("p1")
	cfg := Config{Queue: action.Config{Variant: action.VariantStandard}, Actions: actions.Config{MoveDuration: 5}}
	m := newMatch(nil, testWorld(t), peers, nil, cfg)

	require.True(t, m.Submit("p1", request(actions.TypeMove, "r1", `{"entity_id":"jeep","x":5,"y":1}`)))
	loop(m)
	require.True(t, m.Submit("p1", request(actions.TypeMove, "r2", `{"entity_id":"tank","x":0,"y":1}`)))
	loop(m)

	require.NoError(t, m.join("p2", "bob", nil))

	sent := peers.messagesFor("p2")
	require.Len(t, sent, 1)
	assert.Equal(t, models.MessageJoined, sent[0].Type)
	assert.Equal(t, int64(2), sent[0].Seq)

	var state JoinState
	require.NoError(t, json.Unmarshal(sent[0].Data, &state))
	assert.Len(t, state.Snapshot.Entities, 3)
	require.Len(t, state.Pending, 2, "r1 is running, r2 is waiting")
	assert.Equal(t, "r1", state.Pending[0].RequestID)
	assert.Equal(t, "r2", state.Pending[1].RequestID)
}

func TestMatch_JoinDuringActionConverges(t *testing.T) {
	peers := newFakePeers("p1")
	timings := actions.Config{HitDuration: 3}
	cfg := Config{Queue: action.Config{Variant: action.VariantStandard}, Actions: timings}
	host := testWorld(t)
	m := newMatch(nil, host, peers, nil, cfg)

	require.True(t, m.Submit("p1", request(actions.TypeAttack, "r1", `{"attacker_id":"tank","target_id":"enemy"}`)))
	loop(m)
	enemy, _ := host.Get("enemy")
	require.Equal(t, world.StateHit, enemy.State, "the attack is playing")

	require.NoError(t, m.join("late", "carol", nil))
	sent := peers.messagesFor("late")
	require.Len(t, sent, 1)
	var state JoinState
	require.NoError(t, json.Unmarshal(sent[0].Data, &state))
	require.Len(t, state.Pending, 1)

	local, err := world.FromSnapshot(state.Snapshot)
	require.NoError(t, err)
	q := action.NewQueue[*world.World](nil, local, action.Config{Variant: action.VariantVersus})
	actions.Register(q, timings)
	q.StartMatch()
	for _, msg := range state.Pending {
		h, ok := q.Handler(action.TypeID(msg.ActionType))
		require.True(t, ok)
		data, err := h.DecodeValidated(msg.Data)
		require.NoError(t, err)
		require.True(t, q.Enqueue(action.ExecutionItem{Type: action.TypeID(msg.ActionType), Data: data}))
	}

	for i := 0; i < 10; i++ {
		loop(m)
		actions.Step(q)
	}

	for _, w := range []*world.World{host, local} {
		enemy, _ := w.Get("enemy")
		tank, _ := w.Get("tank")
		assert.Equal(t, world.StateIdle, enemy.State)
		assert.Equal(t, 6, enemy.Health)
		assert.Equal(t, world.StateIdle, tank.State)
		assert.Equal(t, 8, tank.Health, "counter attack derived")
	}

	require.NoError(t, m.join("later", "dave", nil))
	sent = peers.messagesFor("later")
	require.Len(t, sent, 1)
	require.NoError(t, json.Unmarshal(sent[0].Data, &state))
	assert.Empty(t, state.Pending, "finished actions are in the snapshot")
}

func TestMatch_JoinFailsWhenReplyCannotBeSent(t *testing.T) {
	peers := &refusingPeers{fakePeers: newFakePeers()}
	m := newMatch(nil, testWorld(t), peers, nil, withServer(Config{}))

	assert.Error(t, m.join("p1", "alice", nil))
	assert.Equal(t, 0, peers.Count())
}

type refusingPeers struct{ *fakePeers }

func (p *refusingPeers) Send(string, models.Message) bool { return false }

func TestMatch_JournalFailureDoesNotBlockBroadcast(t *testing.T) {
	peers := newFakePeers("p1")
	m := newMatch(nil, testWorld(t), peers, &fakeJournal{err: errors.New("disk full")}, withServer(Config{}))

	require.True(t, m.Submit("p1", request(actions.TypeMove, "r1", `{"entity_id":"jeep","x":6,"y":0}`)))
	loop(m)
	assert.Equal(t, 1, peers.broadcastCount())
}

func TestMatch_InputOverflowDrops(t *testing.T) {
	m := newMatch(nil, testWorld(t), newFakePeers(), nil, withServer(Config{InputQueueSize: 1}))
	assert.True(t, m.Submit("p1", request(actions.TypeMove, "r1", `{}`)))
	assert.False(t, m.Submit("p1", request(actions.TypeMove, "r2", `{}`)))
}

func TestMatch_RunsOnTicker(t *testing.T) {
	peers := newFakePeers("p1")
	m := NewMatch(nil, testWorld(t), peers, nil, withServer(Config{TickRate: 100}))
	defer m.Stop()

	require.True(t, m.Submit("p1", request(actions.TypeMove, "r1", `{"entity_id":"jeep","x":4,"y":0}`)))
	require.Eventually(t, func() bool { return peers.broadcastCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	snap, err := m.Snapshot(ctx)
	require.NoError(t, err)
	for _, e := range snap.Entities {
		if e.ID == "jeep" {
			assert.Equal(t, world.Position{X: 4}, e.Position)
		}
	}
}

func TestMatch_Stop(t *testing.T) {
	m := NewMatch(nil, testWorld(t), newFakePeers(), nil, withServer(Config{TickRate: 100}))
	m.Stop()
	m.Stop()

	assert.True(t, m.Stopped())
	assert.False(t, m.Status().Running)
	assert.False(t, m.Submit("p1", request(actions.TypeMove, "r1", `{}`)))

	_, err := m.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
	assert.ErrorIs(t, m.Join(context.Background(), "p1", "alice", nil), ErrStopped)
}

func TestMatch_PanicStopsMatch(t *testing.T) {
	boom := func(e action.Event) {
		if e.Type == action.EventExecutionRunning {
			panic("handler bug")
		}
	}
	m := NewMatch(nil, testWorld(t), newFakePeers("p1"), nil, withServer(Config{TickRate: 100}), boom)
	defer m.Stop()

	require.True(t, m.Submit("p1", request(actions.TypeMove, "r1", `{"entity_id":"jeep","x":4,"y":0}`)))
	require.Eventually(t, m.Stopped, 2*time.Second, 5*time.Millisecond)
}
