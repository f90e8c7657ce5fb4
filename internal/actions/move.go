package actions

import (
	"github.com/neynn/army-attack-client-sub000/internal/world"
)

type MoveTemplate struct {
	EntityID string `json:"entity_id"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
}

type MoveData struct {
	EntityID string         `json:"entity_id"`
	From     world.Position `json:"from"`
	To       world.Position `json:"to"`
	Distance int            `json:"distance"`
}

// move walks an entity to a free tile, MoveDuration ticks per tile.
type move struct {
	cfg     Config
	elapsed int
}

func (m *move) Template(args ...any) (MoveTemplate, error) {
	id, err := stringArg(args, 0)
	if err != nil {
		return MoveTemplate{}, err
	}
	x, err := intArg(args, 1)
	if err != nil {
		return MoveTemplate{}, err
	}
	y, err := intArg(args, 2)
	if err != nil {
		return MoveTemplate{}, err
	}
	return MoveTemplate{EntityID: id, X: x, Y: y}, nil
}

func (m *move) Validate(w *world.World, t MoveTemplate, messenger string) (MoveData, bool) {
	e, ok := w.Get(t.EntityID)
	if !ok || !e.IsAlive() || e.Speed <= 0 {
		return MoveData{}, false
	}
	to := world.Position{X: t.X, Y: t.Y}
	if !w.InBounds(to) {
		return MoveData{}, false
	}
	if _, occupied := w.OccupantAt(to); occupied {
		return MoveData{}, false
	}
	distance := e.Position.Distance(to)
	if distance == 0 || distance > e.Speed {
		return MoveData{}, false
	}
	return MoveData{EntityID: e.ID, From: e.Position, To: to, Distance: distance}, true
}

func (m *move) Start(w *world.World, d MoveData) {
	if e, ok := w.Get(d.EntityID); ok {
		e.State = world.StateMoving
		e.Animation = "move"
	}
}

func (m *move) Update(w *world.World, d MoveData) { m.elapsed++ }

func (m *move) IsFinished(w *world.World, d MoveData) bool {
	return m.elapsed >= m.cfg.MoveDuration*d.Distance
}

func (m *move) End(w *world.World, d MoveData) {
	e, ok := w.Get(d.EntityID)
	if !ok {
		return
	}
	w.MoveTo(d.EntityID, d.To)
	if e.IsAlive() {
		e.State = world.StateIdle
		e.Animation = ""
	}
}

func (m *move) Clear() { m.elapsed = 0 }
