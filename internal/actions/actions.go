// Package actions holds the gameplay action types run by the action queue.
package actions

import (
	"fmt"

	"github.com/neynn/army-attack-client-sub000/internal/action"
	"github.com/neynn/army-attack-client-sub000/internal/world"
)

const (
	TypeAttack        action.TypeID = "ATTACK"
	TypeCounterAttack action.TypeID = "COUNTER_ATTACK"
	TypeMove          action.TypeID = "MOVE"
	TypeConstruction  action.TypeID = "CONSTRUCTION"
	TypeDeath         action.TypeID = "DEATH"
)

// Queue is the action queue the handlers run on
type Queue = action.Queue[*world.World]

// Config holds per-type timing, in ticks
type Config struct {
	HitDuration  int
	MoveDuration int // per tile
}

func (c Config) withDefaults() Config {
	if c.HitDuration <= 0 {
		c.HitDuration = 10
	}
	if c.MoveDuration <= 0 {
		c.MoveDuration = 5
	}
	return c
}

// Submitter is how a running action raises follow-up requests
type Submitter interface {
	CreateRequest(typeID action.TypeID, args ...any) (action.Request, error)
	AddRequest(request action.Request, priority action.Priority, messenger string) bool
}

// Register installs every action type on q
func Register(q *Queue, cfg Config) {
	cfg = cfg.withDefaults()

	q.RegisterHandler(TypeAttack, action.Adapt[*world.World, AttackTemplate, AttackData](
		&attack{cfg: cfg, submit: q}, action.Flags{Sendable: true}))
	q.RegisterHandler(TypeCounterAttack, action.Adapt[*world.World, AttackTemplate, AttackData](
		&counterAttack{}, action.Flags{Instant: true}))
	q.RegisterHandler(TypeMove, action.Adapt[*world.World, MoveTemplate, MoveData](
		&move{cfg: cfg}, action.Flags{Sendable: true}))
	q.RegisterHandler(TypeConstruction, action.Adapt[*world.World, ConstructionTemplate, ConstructionData](
		&construction{}, action.Flags{Sendable: true, Instant: true}))
	q.RegisterHandler(TypeDeath, action.Adapt[*world.World, DeathTemplate, DeathData](
		&death{}, action.Flags{Instant: true}))
}

// Step advances q's world by one tick, hands expired decay timers to the
// immediate lane and updates the queue.
func Step(q *Queue) { StepWith(q, nil) }

// StepWith is Step with admit called between the world tick and the queue
// update, where a live match would promote the requests of that tick.
func StepWith(q *Queue, admit func(tick int64)) {
	for _, id := range q.World().Tick() {
		q.AddImmediateRequest(TypeDeath, "", id)
	}
	if admit != nil {
		admit(q.World().CurrentTick())
	}
	q.Update()
}

// Idle reports whether q has nothing running, queued or waiting for validation
func Idle(q *Queue) bool {
	return !q.IsRunning() && q.ImmediateSize() == 0 &&
		q.LaneSize(action.PrioritySuper) == 0 && q.LaneSize(action.PriorityNormal) == 0
}

func stringArg(args []any, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("missing argument %d", i)
	}
	s, ok := args[i].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("argument %d: expected non-empty string, got %T", i, args[i])
	}
	return s, nil
}

func intArg(args []any, i int) (int, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("missing argument %d", i)
	}
	switch v := args[i].(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("argument %d: %v is not a whole number", i, v)
		}
		return int(v), nil
	}
	return 0, fmt.Errorf("argument %d: expected integer, got %T", i, args[i])
}
