package actions

import (
	"github.com/neynn/army-attack-client-sub000/internal/world"
)

type DeathTemplate struct {
	EntityID string `json:"entity_id"`
}

type DeathData struct {
	EntityID string `json:"entity_id"`
}

// death removes an entity whose decay ran out. It is raised through the
// immediate lane by Step.
type death struct{}

func (d *death) Template(args ...any) (DeathTemplate, error) {
	id, err := stringArg(args, 0)
	if err != nil {
		return DeathTemplate{}, err
	}
	return DeathTemplate{EntityID: id}, nil
}

func (d *death) Validate(w *world.World, t DeathTemplate, messenger string) (DeathData, bool) {
	if _, ok := w.Get(t.EntityID); !ok {
		return DeathData{}, false
	}
	return DeathData{EntityID: t.EntityID}, true
}

func (d *death) Start(w *world.World, data DeathData) {
	if e, ok := w.Get(data.EntityID); ok {
		e.State = world.StateDead
		e.Animation = "death"
	}
}

func (d *death) Update(w *world.World, data DeathData)          {}
func (d *death) IsFinished(w *world.World, data DeathData) bool { return true }
func (d *death) End(w *world.World, data DeathData)             { w.Destroy(data.EntityID) }
func (d *death) Clear()                                         {}
