package models

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

// Message types exchanged over the relay socket
const (
	MessageJoin     = "join"
	MessageJoined   = "joined"
	MessageRequest  = "request"
	MessageAction   = "action"
	MessageRejected = "rejected"
	MessagePing     = "ping"
	MessagePong     = "pong"
	MessageError    = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type       string          `json:"type"`
	ID         string          `json:"id,omitempty"`
	Name       string          `json:"name,omitempty"`
	MatchID    string          `json:"match_id,omitempty"`
	RequestID  string          `json:"request_id,omitempty"`
	ActionType string          `json:"action_type,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Tick       int64           `json:"tick,omitempty"`
	Seq        int64           `json:"seq,omitempty"`
	Status     string          `json:"status,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Peer represents a participant connected to a match
type Peer struct {
	ID         string
	Name       string
	Connection *websocket.Conn

	// gorilla connections support one concurrent writer
	writeMu sync.Mutex
}

// Send writes msg to the peer's connection
func (p *Peer) Send(msg Message) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.Connection.WriteJSON(msg)
}

// ScenarioFile represents the root YAML structure
type ScenarioFile struct {
	Scenario Scenario `yaml:"scenario"`
}

// Scenario represents the loaded YAML scenario: the starting roster of a map
type Scenario struct {
	Name     string       `yaml:"name"`
	Width    int          `yaml:"width"`
	Height   int          `yaml:"height"`
	Entities []EntitySpec `yaml:"entities"`
}

// EntitySpec describes one entity placed at match start
type EntitySpec struct {
	ID                string `yaml:"id"`
	Team              string `yaml:"team"`
	Health            int    `yaml:"health"`
	Armor             int    `yaml:"armor,omitempty"`
	Damage            int    `yaml:"damage,omitempty"`
	Range             int    `yaml:"range,omitempty"`
	Speed             int    `yaml:"speed,omitempty"`
	X                 int    `yaml:"x"`
	Y                 int    `yaml:"y"`
	Reviveable        bool   `yaml:"reviveable,omitempty"`
	Decay             int    `yaml:"decay,omitempty"`              // ticks until passive death, 0 = never
	ConstructionSteps int    `yaml:"construction_steps,omitempty"` // 0 = not a construction site
}
