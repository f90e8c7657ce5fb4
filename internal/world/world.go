// Package world is the entity storage the action handlers read and mutate.
//
// A World is owned by the goroutine ticking its action queue and is not safe
// for concurrent use. Other goroutines read it through Snapshot taken on
// that goroutine.
package world

import (
	"errors"
	"fmt"
	"sort"
)

var ErrEntityExists = errors.New("entity already exists")

// EntityState is the gameplay state of an entity
type EntityState string

const (
	StateIdle      EntityState = "idle"
	StateMoving    EntityState = "moving"
	StateAttacking EntityState = "attacking"
	StateHit       EntityState = "hit"
	StateDown      EntityState = "down"
	StateDead      EntityState = "dead"
)

// Position is a tile coordinate
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Distance is the Manhattan distance between two tiles
func (p Position) Distance(o Position) int {
	return abs(p.X-o.X) + abs(p.Y-o.Y)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Entity is one unit or building on the map
type Entity struct {
	ID         string      `json:"id"`
	Team       string      `json:"team"`
	Health     int         `json:"health"`
	MaxHealth  int         `json:"max_health"`
	Armor      int         `json:"armor"`
	Damage     int         `json:"damage"`
	Range      int         `json:"range"`
	Speed      int         `json:"speed"`
	Position   Position    `json:"position"`
	Reviveable bool        `json:"reviveable"`
	State      EntityState `json:"state"`
	Animation  string      `json:"animation,omitempty"`

	// Decay counts down once per tick; the entity dies when it reaches zero.
	// Zero means the entity does not decay.
	Decay int `json:"decay,omitempty"`

	ConstructionSteps    int `json:"construction_steps,omitempty"`
	ConstructionProgress int `json:"construction_progress,omitempty"`
}

// IsAlive reports whether the entity can still act or be targeted
func (e *Entity) IsAlive() bool {
	return e.State != StateDead && e.State != StateDown
}

// IsConstructionSite reports whether the entity is an unfinished building
func (e *Entity) IsConstructionSite() bool {
	return e.ConstructionSteps > 0 && e.ConstructionProgress < e.ConstructionSteps
}

// World holds every entity of a match
type World struct {
	Width    int
	Height   int
	entities map[string]*Entity
	tick     int64
}

// New creates an empty world. A zero width or height leaves that axis unbounded.
func New(width, height int) *World {
	return &World{
		Width:    width,
		Height:   height,
		entities: make(map[string]*Entity),
	}
}

// Spawn adds e to the world
func (w *World) Spawn(e Entity) (*Entity, error) {
	if _, exists := w.entities[e.ID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrEntityExists, e.ID)
	}
	if !w.InBounds(e.Position) {
		return nil, fmt.Errorf("entity %s out of bounds at %d,%d", e.ID, e.Position.X, e.Position.Y)
	}
	if e.MaxHealth < e.Health {
		e.MaxHealth = e.Health
	}
	if e.State == "" {
		e.State = StateIdle
	}
	entity := e
	w.entities[e.ID] = &entity
	return &entity, nil
}

// Get returns the entity with id
func (w *World) Get(id string) (*Entity, bool) {
	e, ok := w.entities[id]
	return e, ok
}

// Destroy removes an entity. Returns false if it did not exist.
func (w *World) Destroy(id string) bool {
	if _, ok := w.entities[id]; !ok {
		return false
	}
	delete(w.entities, id)
	return true
}

// Len returns the number of entities
func (w *World) Len() int { return len(w.entities) }

func (w *World) InBounds(p Position) bool {
	if p.X < 0 || p.Y < 0 {
		return false
	}
	if w.Width > 0 && p.X >= w.Width {
		return false
	}
	if w.Height > 0 && p.Y >= w.Height {
		return false
	}
	return true
}

// OccupantAt returns the entity standing on p
func (w *World) OccupantAt(p Position) (*Entity, bool) {
	for _, e := range w.entities {
		if e.Position == p {
			return e, true
		}
	}
	return nil, false
}

// MoveTo places an entity on p without any rule checks
func (w *World) MoveTo(id string, p Position) bool {
	e, ok := w.entities[id]
	if !ok {
		return false
	}
	e.Position = p
	return true
}

// Entities returns copies of every entity ordered by id
func (w *World) Entities() []Entity {
	out := make([]Entity, 0, len(w.entities))
	for _, e := range w.entities {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot is a copy of the world safe to hand to other goroutines
type Snapshot struct {
	Tick     int64    `json:"tick"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`
	Entities []Entity `json:"entities"`
}

func (w *World) Snapshot() Snapshot {
	return Snapshot{Tick: w.tick, Width: w.Width, Height: w.Height, Entities: w.Entities()}
}

// Tick advances decay timers by one step and returns the ids of entities
// whose decay expired this step, ordered by id. Expired entities are not
// removed: their death goes through the action queue.
func (w *World) Tick() []string {
	w.tick++
	var expired []string
	for _, e := range w.entities {
		if e.Decay <= 0 || !e.IsAlive() {
			continue
		}
		e.Decay--
		if e.Decay == 0 {
			expired = append(expired, e.ID)
		}
	}
	sort.Strings(expired)
	return expired
}

// CurrentTick returns the number of completed ticks
func (w *World) CurrentTick() int64 { return w.tick }

// FromSnapshot rebuilds a world from a snapshot, e.g. the one a client
// receives when it joins a match.
func FromSnapshot(s Snapshot) (*World, error) {
	w := New(s.Width, s.Height)
	for _, e := range s.Entities {
		if _, err := w.Spawn(e); err != nil {
			return nil, err
		}
	}
	w.tick = s.Tick
	return w, nil
}
