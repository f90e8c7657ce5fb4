package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/neynn/army-attack-client-sub000/internal/action"
	"github.com/neynn/army-attack-client-sub000/internal/actions"
	"github.com/neynn/army-attack-client-sub000/internal/logging"
	"github.com/neynn/army-attack-client-sub000/internal/match"
	"github.com/neynn/army-attack-client-sub000/internal/models"
	"github.com/neynn/army-attack-client-sub000/internal/registry"
	"github.com/neynn/army-attack-client-sub000/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (string, *match.Match) {
	t.Helper()
	w := world.New(10, 10)
	for _, e := range []world.Entity{
		{ID: "tank", Team: "red", Health: 10, Damage: 4, Range: 1, Speed: 2},
		{ID: "jeep", Team: "red", Health: 6, Speed: 3, Position: world.Position{X: 5}},
		{ID: "enemy", Team: "blue", Health: 10, Damage: 2, Range: 1, Position: world.Position{X: 1}},
	} {
		_, err := w.Spawn(e)
		require.NoError(t, err)
	}

	reg := registry.NewRegistry(nil)
	m := match.NewMatch(nil, w, reg, nil, match.Config{TickRate: 100, Queue: action.Config{Variant: action.VariantServer}})
	t.Cleanup(m.Stop)

	srv := httptest.NewServer(HandleWebSocket(m, reg, logging.NewEventLog(nil, 100)))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), m
}

func dial(t *testing.T, url, name string, observers ...action.Observer) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, nil, ClientConfig{URL: url, Name: name, Actions: actions.Config{MoveDuration: 1, HitDuration: 1}}, observers...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// tickAll ticks every client and reports whether all of them are still connected
func tickAll(clients ...*Client) bool {
	for _, c := range clients {
		if err := c.Tick(); err != nil {
			return false
		}
	}
	return true
}

func position(w *world.World, id string) world.Position {
	if e, ok := w.Get(id); ok {
		return e.Position
	}
	return world.Position{X: -1, Y: -1}
}

func TestClient_JoinBuildsLocalWorld(t *testing.T) {
	url, m := newTestServer(t)
	c := dial(t, url, "alice")

	assert.NotEmpty(t, c.PeerID)
	assert.Equal(t, m.ID, c.MatchID)
	assert.Equal(t, 3, c.World().Len())
	assert.Equal(t, action.VariantVersus, c.Queue().Variant())
	assert.Equal(t, action.ModeDeferred, c.Queue().Mode())
	require.Eventually(t, func() bool { return m.Status().Peers == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestClient_RequestRoundTrip(t *testing.T) {
	url, m := newTestServer(t)
	alice := dial(t, url, "alice")
	bob := dial(t, url, "bob")

	_, err := alice.Request(actions.TypeMove, "jeep", 5, 2)
	require.NoError(t, err)

	target := world.Position{X: 5, Y: 2}
	require.Eventually(t, func() bool {
		if !tickAll(alice, bob) {
			return false
		}
		return position(alice.World(), "jeep") == target && position(bob.World(), "jeep") == target
	}, 3*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	snap, err := m.Snapshot(ctx)
	require.NoError(t, err)
	host, err := world.FromSnapshot(snap)
	require.NoError(t, err)
	assert.Equal(t, target, position(host, "jeep"))
}

func TestClient_CounterAttackDerivedLocally(t *testing.T) {
	url, _ := newTestServer(t)
	alice := dial(t, url, "alice")

	_, err := alice.Request(actions.TypeAttack, "tank", "enemy")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		if !tickAll(alice) {
			return false
		}
		tank, _ := alice.World().Get("tank")
		return tank.Health == 8
	}, 3*time.Second, 10*time.Millisecond)

	enemy, _ := alice.World().Get("enemy")
	assert.Equal(t, 6, enemy.Health)
}

func TestClient_LocalValidationFailureIsNotSent(t *testing.T) {
	url, m := newTestServer(t)
	var failed int
	alice := dial(t, url, "alice", func(e action.Event) {
		if e.Type == action.EventExecutionError {
			failed++
		}
	})

	_, err := alice.Request(actions.TypeAttack, "tank", "jeep")
	require.NoError(t, err)
	require.NoError(t, alice.Tick())

	assert.Equal(t, 1, failed)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(0), m.Status().Actions)
}

func TestClient_HostRejection(t *testing.T) {
	url, _ := newTestServer(t)
	alice := dial(t, url, "alice")

	require.NoError(t, alice.send(models.Message{Type: models.MessageRequest, RequestID: "r1", ActionType: "TELEPORT"}))
	require.Eventually(t, func() bool {
		return tickAll(alice) && alice.Rejected() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandleWebSocket_RequiresJoin(t *testing.T) {
	url, _ := newTestServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(models.Message{Type: models.MessagePing}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))

	var reply models.Message
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, models.MessageError, reply.Type)
}

func TestHandleWebSocket_Ping(t *testing.T) {
	url, _ := newTestServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))

	require.NoError(t, conn.WriteJSON(models.Message{Type: models.MessageJoin, ID: "p1", Name: "raw"}))
	var joined models.Message
	require.NoError(t, conn.ReadJSON(&joined))
	assert.Equal(t, models.MessageJoined, joined.Type)
	assert.Equal(t, "p1", joined.ID)

	require.NoError(t, conn.WriteJSON(models.Message{Type: models.MessagePing, Tick: 7}))
	var pong models.Message
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, models.MessagePong, pong.Type)
	assert.Equal(t, int64(7), pong.Tick)
}

func TestClient_ClosedConnection(t *testing.T) {
	url, m := newTestServer(t)
	alice := dial(t, url, "alice")
	m.Stop()
	require.NoError(t, alice.conn.Close())

	require.Eventually(t, func() bool {
		return alice.Tick() != nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, alice.Tick(), ErrClosed)
}

func TestHandleWebSocket_ReconnectKeepsNewSocket(t *testing.T) {
	url, m := newTestServer(t)
	join := func() *websocket.Conn {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		require.NoError(t, conn.WriteJSON(models.Message{Type: models.MessageJoin, ID: "p1", Name: "raw"}))
		var joined models.Message
		require.NoError(t, conn.ReadJSON(&joined))
		require.Equal(t, models.MessageJoined, joined.Type)
		return conn
	}

	stale := join()
	fresh := join()
	defer fresh.Close()
	require.NoError(t, stale.Close())

	assert.Never(t, func() bool { return m.Status().Peers == 0 }, 200*time.Millisecond, 10*time.Millisecond)

	require.NoError(t, fresh.WriteJSON(models.Message{Type: models.MessagePing, Tick: 3}))
	var pong models.Message
	require.NoError(t, fresh.ReadJSON(&pong))
	assert.Equal(t, models.MessagePong, pong.Type)
}
