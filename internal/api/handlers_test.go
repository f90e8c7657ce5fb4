package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/neynn/army-attack-client-sub000/internal/action"
	"github.com/neynn/army-attack-client-sub000/internal/actions"
	"github.com/neynn/army-attack-client-sub000/internal/logging"
	"github.com/neynn/army-attack-client-sub000/internal/match"
	"github.com/neynn/army-attack-client-sub000/internal/registry"
	"github.com/neynn/army-attack-client-sub000/internal/scenario"
	"github.com/neynn/army-attack-client-sub000/internal/store"
	"github.com/neynn/army-attack-client-sub000/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type fixture struct {
	router   http.Handler
	match    *match.Match
	journal  *store.Journal
	eventLog *logging.EventLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	journal, err := store.NewJournal(ctx, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	w := world.New(10, 10)
	_, err = w.Spawn(world.Entity{ID: "jeep", Team: "red", Health: 6, Speed: 3})
	require.NoError(t, err)

	reg := registry.NewRegistry(nil)
	eventLog := logging.NewEventLog(nil, 100)
	m := match.NewMatch(nil, w, reg, journal, match.Config{
		TickRate: 100,
		Queue:    action.Config{Variant: action.VariantServer},
		Actions:  actions.Config{MoveDuration: 1, HitDuration: 1},
	})
	t.Cleanup(m.Stop)

	sm := scenario.NewScenarioManager(nil)

	r := chi.NewRouter()
	r.Get("/", HandleHealth())
	r.Route("/api", func(r chi.Router) {
		r.Get("/peers", HandleGetPeers(reg))
		r.Get("/logs", HandleGetLogs(eventLog))
		r.Delete("/logs", HandleClearLogs(eventLog))
		r.Get("/scenario", HandleGetScenario(sm))
		r.Get("/status", HandleGetStatus(m))
		r.Get("/world", HandleGetWorld(m))
		r.Post("/requests", HandlePostRequest(m, eventLog))
		r.Get("/matches", HandleGetMatches(journal))
		r.Get("/matches/{id}/actions", HandleGetMatchActions(journal))
	})

	return &fixture{router: r, match: m, journal: journal, eventLog: eventLog}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Army Attack")
}

func TestHandleGetPeers_Empty(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/peers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var peers []PeerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &peers))
	assert.Empty(t, peers)
}

func TestHandleClearLogs(t *testing.T) {
	f := newFixture(t)
	f.eventLog.LogAndStore(zapcore.InfoLevel, "hello")

	rec := f.do(http.MethodGet, "/api/logs", "")
	var entries []logging.LogEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)

	rec = f.do(http.MethodDelete, "/api/logs", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, f.eventLog.GetAll())
}

func TestHandleGetScenario_NoneLoaded(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/scenario", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetStatus(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status match.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, f.match.ID, status.ID)
	assert.True(t, status.Running)
	assert.Equal(t, 100, status.TickRate)
}

func TestHandleGetWorld(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/world", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap world.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	w, err := world.FromSnapshot(snap)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Len())
}

func TestHandleGetWorld_Stopped(t *testing.T) {
	f := newFixture(t)
	f.match.Stop()
	rec := f.do(http.MethodGet, "/api/world", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandlePostRequest_ExecutesAndJournals(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/requests",
		`{"request_id":"r1","action_type":"MOVE","data":{"entity_id":"jeep","x":2,"y":1}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "r1", body["request_id"])

	require.Eventually(t, func() bool {
		return f.do(http.MethodGet, "/api/matches/"+f.match.ID+"/actions", "").Code == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	rec = f.do(http.MethodGet, "/api/matches/"+f.match.ID+"/actions", "")
	var records []store.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, string(actions.TypeMove), records[0].ActionType)
	assert.Equal(t, APIMessenger, records[0].Messenger)
	assert.Equal(t, int64(1), records[0].Seq)

	rec = f.do(http.MethodGet, "/api/matches", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var matches []store.MatchSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &matches))
	require.Len(t, matches, 1)
	assert.Equal(t, f.match.ID, matches[0].MatchID)

	assert.NotEmpty(t, f.eventLog.GetAll())
}

func TestHandlePostRequest_BadInput(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{`},
		{"missing type", `{"data":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/requests", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandlePostRequest_Stopped(t *testing.T) {
	f := newFixture(t)
	f.match.Stop()
	rec := f.do(http.MethodPost, "/api/requests", `{"action_type":"MOVE","data":{}}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleGetMatchActions_NotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/matches/nope/actions", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
