package actions

import (
	"github.com/neynn/army-attack-client-sub000/internal/world"
)

type ConstructionTemplate struct {
	EntityID string `json:"entity_id"`
}

type ConstructionData struct {
	EntityID string `json:"entity_id"`
	Progress int    `json:"progress"`
	Complete bool   `json:"complete"`
}

// construction advances a building site by one step.
type construction struct{}

func (c *construction) Template(args ...any) (ConstructionTemplate, error) {
	id, err := stringArg(args, 0)
	if err != nil {
		return ConstructionTemplate{}, err
	}
	return ConstructionTemplate{EntityID: id}, nil
}

func (c *construction) Validate(w *world.World, t ConstructionTemplate, messenger string) (ConstructionData, bool) {
	e, ok := w.Get(t.EntityID)
	if !ok || !e.IsAlive() || !e.IsConstructionSite() {
		return ConstructionData{}, false
	}
	progress := e.ConstructionProgress + 1
	return ConstructionData{
		EntityID: e.ID,
		Progress: progress,
		Complete: progress >= e.ConstructionSteps,
	}, true
}

func (c *construction) Start(w *world.World, d ConstructionData) {
	if e, ok := w.Get(d.EntityID); ok {
		e.Animation = "construct"
	}
}

func (c *construction) Update(w *world.World, d ConstructionData)          {}
func (c *construction) IsFinished(w *world.World, d ConstructionData) bool { return true }

func (c *construction) End(w *world.World, d ConstructionData) {
	e, ok := w.Get(d.EntityID)
	if !ok {
		return
	}
	e.ConstructionProgress = d.Progress
	e.Animation = ""
	if d.Complete {
		e.State = world.StateIdle
	}
}

func (c *construction) Clear() {}
