package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/neynn/army-attack-client-sub000/internal/logging"
	"github.com/neynn/army-attack-client-sub000/internal/match"
	"github.com/neynn/army-attack-client-sub000/internal/models"
	"github.com/neynn/army-attack-client-sub000/internal/registry"
	"github.com/neynn/army-attack-client-sub000/internal/scenario"
	"github.com/neynn/army-attack-client-sub000/internal/store"
	"go.uber.org/zap/zapcore"
)

// APIMessenger is the messenger id of requests submitted over HTTP
const APIMessenger = "api"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// HandleHealth answers the root health check
func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Army Attack match server"))
	}
}

// PeerResponse represents a connected peer in the API response
type PeerResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// HandleGetPeers returns all connected peers ordered by id
func HandleGetPeers(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		peers := reg.GetAll()
		response := make([]PeerResponse, 0, len(peers))
		for id, peer := range peers {
			response = append(response, PeerResponse{ID: id, Name: peer.Name})
		}
		sort.Slice(response, func(i, j int) bool { return response[i].ID < response[j].ID })
		writeJSON(w, http.StatusOK, response)
	}
}

// HandleGetLogs returns all log entries
func HandleGetLogs(eventLog *logging.EventLog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, eventLog.GetAll())
	}
}

// HandleClearLogs drops every stored log entry
func HandleClearLogs(eventLog *logging.EventLog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventLog.Clear()
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.WriteHeader(http.StatusNoContent)
	}
}

// ScenarioInfoResponse represents scenario information in API response
type ScenarioInfoResponse struct {
	Name     string `json:"name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Entities int    `json:"entities"`
}

// HandleGetScenario returns information about the scenario the match started from
func HandleGetScenario(scenarioManager *scenario.ScenarioManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := scenarioManager.GetCurrentScenario()
		if s == nil {
			http.Error(w, "No scenario loaded", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, ScenarioInfoResponse{
			Name:     s.Name,
			Width:    s.Width,
			Height:   s.Height,
			Entities: len(s.Entities),
		})
	}
}

// HandleGetStatus returns the running match's status
func HandleGetStatus(m *match.Match) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, m.Status())
	}
}

// HandleGetWorld returns a snapshot of the match world
func HandleGetWorld(m *match.Match) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := m.Snapshot(r.Context())
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, match.ErrStopped) || errors.Is(err, match.ErrCallQueueFull) {
				status = http.StatusServiceUnavailable
			}
			http.Error(w, "Failed to read world: "+err.Error(), status)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// SubmitRequest is the body of POST /api/requests
type SubmitRequest struct {
	RequestID  string          `json:"request_id"`
	ActionType string          `json:"action_type"`
	Data       json.RawMessage `json:"data"`
}

// HandlePostRequest queues a request on the match as the api messenger.
// Acceptance only means the request was queued; validation happens on the
// next tick.
func HandlePostRequest(m *match.Match, eventLog *logging.EventLog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if body.ActionType == "" {
			http.Error(w, "action_type is required", http.StatusBadRequest)
			return
		}
		if body.RequestID == "" {
			body.RequestID = uuid.NewString()
		}

		msg := models.Message{
			Type:       models.MessageRequest,
			RequestID:  body.RequestID,
			ActionType: body.ActionType,
			Data:       body.Data,
		}
		if !m.Submit(APIMessenger, msg) {
			eventLog.LogAndStore(zapcore.WarnLevel, "Failed to queue API request %s: %s", body.RequestID, body.ActionType)
			http.Error(w, "Match is not accepting requests", http.StatusServiceUnavailable)
			return
		}

		eventLog.LogAndStore(zapcore.InfoLevel, "API request queued: %s (%s)", body.RequestID, body.ActionType)
		writeJSON(w, http.StatusAccepted, map[string]string{"request_id": body.RequestID, "status": "queued"})
	}
}

// HandleGetMatches lists every journaled match
func HandleGetMatches(journal *store.Journal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matches, err := journal.Matches(r.Context())
		if err != nil {
			http.Error(w, "Failed to retrieve matches: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, matches)
	}
}

// HandleGetMatchActions returns the journaled actions of one match in order
func HandleGetMatchActions(journal *store.Journal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matchID := chi.URLParam(r, "id")
		records, err := journal.List(r.Context(), matchID)
		if err != nil {
			http.Error(w, "Failed to retrieve actions: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if len(records) == 0 {
			http.Error(w, "Match not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}
