package registry

import (
	"sort"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/neynn/army-attack-client-sub000/internal/models"
	"go.uber.org/zap"
)

// Registry manages the peers connected to a match
type Registry struct {
	logger *zap.Logger
	peers  map[string]*models.Peer
	mu     sync.RWMutex
}

// NewRegistry creates a new peer registry
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger: logger,
		peers:  make(map[string]*models.Peer),
	}
}

// Register adds a new peer to the registry, replacing any peer with the same id
func (r *Registry) Register(id, name string, conn *websocket.Conn) *models.Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer := &models.Peer{
		ID:         id,
		Name:       name,
		Connection: conn,
	}

	r.peers[id] = peer
	return peer
}

// Get retrieves a peer by ID
func (r *Registry) Get(id string) (*models.Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peer, exists := r.peers[id]
	return peer, exists
}

// Unregister removes the peer registered under id if it still uses conn.
// A peer that reconnected with the same id keeps its new entry.
func (r *Registry) Unregister(id string, conn *websocket.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer, exists := r.peers[id]
	if !exists || peer.Connection != conn {
		return false
	}
	delete(r.peers, id)
	return true
}

// GetAll returns all registered peers
func (r *Registry) GetAll() map[string]*models.Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*models.Peer, len(r.peers))
	for k, v := range r.peers {
		result[k] = v
	}
	return result
}

// Count returns the number of connected peers
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Send delivers msg to one peer. Returns false if the peer is unknown or the write failed.
func (r *Registry) Send(id string, msg models.Message) bool {
	peer, ok := r.Get(id)
	if !ok {
		return false
	}
	if err := peer.Send(msg); err != nil {
		r.logger.Warn("Failed to send message to peer", zap.String("peer", id), zap.String("type", msg.Type), zap.Error(err))
		return false
	}
	return true
}

// Broadcast delivers msg to every peer in id order and returns how many writes succeeded
func (r *Registry) Broadcast(msg models.Message) int {
	peers := r.GetAll()
	ids := make([]string, 0, len(peers))
	for id := range peers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	sent := 0
	for _, id := range ids {
		if err := peers[id].Send(msg); err != nil {
			r.logger.Warn("Failed to broadcast message to peer", zap.String("peer", id), zap.String("type", msg.Type), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}
