package actions

import (
	"github.com/neynn/army-attack-client-sub000/internal/action"
	"github.com/neynn/army-attack-client-sub000/internal/world"
)

// Outcome is what an attack leaves of its target
type Outcome string

const (
	OutcomeHit  Outcome = "hit"
	OutcomeDown Outcome = "down"
	OutcomeDead Outcome = "dead"
)

type AttackTemplate struct {
	AttackerID string `json:"attacker_id"`
	TargetID   string `json:"target_id"`
}

type AttackData struct {
	AttackerID string  `json:"attacker_id"`
	TargetID   string  `json:"target_id"`
	Damage     int     `json:"damage"`
	Remainder  int     `json:"remainder"`
	Outcome    Outcome `json:"outcome"`
}

func attackTemplate(args []any) (AttackTemplate, error) {
	attacker, err := stringArg(args, 0)
	if err != nil {
		return AttackTemplate{}, err
	}
	target, err := stringArg(args, 1)
	if err != nil {
		return AttackTemplate{}, err
	}
	return AttackTemplate{AttackerID: attacker, TargetID: target}, nil
}

func validateAttack(w *world.World, t AttackTemplate) (AttackData, bool) {
	attacker, ok := w.Get(t.AttackerID)
	if !ok || !attacker.IsAlive() {
		return AttackData{}, false
	}
	target, ok := w.Get(t.TargetID)
	if !ok || !target.IsAlive() {
		return AttackData{}, false
	}
	if attacker.ID == target.ID || attacker.Team == target.Team {
		return AttackData{}, false
	}
	if !inRange(attacker, target) {
		return AttackData{}, false
	}

	damage := max(attacker.Damage-target.Armor, 0)
	remainder := clamp(target.Health-damage, 0, target.MaxHealth)

	outcome := OutcomeHit
	if remainder == 0 {
		outcome = OutcomeDead
		if target.Reviveable {
			outcome = OutcomeDown
		}
	}

	return AttackData{
		AttackerID: attacker.ID,
		TargetID:   target.ID,
		Damage:     damage,
		Remainder:  remainder,
		Outcome:    outcome,
	}, true
}

// inRange treats a range of zero as melee reach
func inRange(attacker, target *world.Entity) bool {
	reach := max(attacker.Range, 1)
	return attacker.Position.Distance(target.Position) <= reach
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func applyHit(w *world.World, d AttackData) {
	target, ok := w.Get(d.TargetID)
	if !ok {
		return
	}
	target.Health = d.Remainder
	switch d.Outcome {
	case OutcomeDead:
		target.State = world.StateDead
		target.Animation = "death"
	case OutcomeDown:
		target.State = world.StateDown
		target.Animation = "down"
	default:
		target.State = world.StateHit
		target.Animation = "hit"
	}
}

func settle(w *world.World, d AttackData) {
	if d.Outcome == OutcomeDead {
		w.Destroy(d.TargetID)
	} else if target, ok := w.Get(d.TargetID); ok && d.Outcome == OutcomeHit {
		target.State = world.StateIdle
		target.Animation = ""
	}
	if attacker, ok := w.Get(d.AttackerID); ok && attacker.IsAlive() {
		attacker.State = world.StateIdle
		attacker.Animation = ""
	}
}

// attack plays out over HitDuration ticks and lets a surviving target strike back.
type attack struct {
	cfg     Config
	submit  Submitter
	elapsed int
}

func (a *attack) Template(args ...any) (AttackTemplate, error) { return attackTemplate(args) }

func (a *attack) Validate(w *world.World, t AttackTemplate, messenger string) (AttackData, bool) {
	return validateAttack(w, t)
}

func (a *attack) Start(w *world.World, d AttackData) {
	if attacker, ok := w.Get(d.AttackerID); ok {
		attacker.State = world.StateAttacking
		attacker.Animation = "attack"
	}
	applyHit(w, d)
}

func (a *attack) Update(w *world.World, d AttackData) { a.elapsed++ }

func (a *attack) IsFinished(w *world.World, d AttackData) bool {
	return a.elapsed >= a.cfg.HitDuration
}

func (a *attack) End(w *world.World, d AttackData) {
	settle(w, d)
	if d.Outcome != OutcomeHit {
		return
	}
	target, ok := w.Get(d.TargetID)
	attacker, found := w.Get(d.AttackerID)
	if !ok || !found || target.Damage <= 0 || !inRange(target, attacker) {
		return
	}
	if req, err := a.submit.CreateRequest(TypeCounterAttack, d.TargetID, d.AttackerID); err == nil {
		a.submit.AddRequest(req, action.PrioritySuper, "")
	}
}

func (a *attack) Clear() { a.elapsed = 0 }

// counterAttack resolves in one step and never triggers another counter.
type counterAttack struct{}

func (c *counterAttack) Template(args ...any) (AttackTemplate, error) { return attackTemplate(args) }

func (c *counterAttack) Validate(w *world.World, t AttackTemplate, messenger string) (AttackData, bool) {
	return validateAttack(w, t)
}

func (c *counterAttack) Start(w *world.World, d AttackData)           { applyHit(w, d) }
func (c *counterAttack) Update(w *world.World, d AttackData)          {}
func (c *counterAttack) IsFinished(w *world.World, d AttackData) bool { return true }
func (c *counterAttack) End(w *world.World, d AttackData)             { settle(w, d) }
func (c *counterAttack) Clear()                                       {}
