package action

import (
	"encoding/json"
	"fmt"
)

// Handler is the contract between the queue and one action type.
//
// Validate must not mutate the world: it is called for prediction on clients
// and again on the host, possibly several times for the same request. Start,
// Update and End run exactly once per accepted item, in that order, with End
// always following Start. Clear resets any scratch state the handler keeps
// across the ticks of a single item.
type Handler[W any] interface {
	Template(args ...any) (any, error)
	Validate(world W, template any, messenger string) (any, bool)
	Start(world W, data any)
	Update(world W, data any)
	IsFinished(world W, data any) bool
	End(world W, data any)
	Clear()

	// IsInstant reports whether the action resolves within one step
	IsInstant() bool
	// IsSendable reports whether the action may cross the network boundary
	IsSendable() bool

	DecodeTemplate(raw []byte) (any, error)
	DecodeValidated(raw []byte) (any, error)
}

// Definition is the typed form of Handler. T is the template built from
// caller arguments and V the payload produced by validation.
type Definition[W, T, V any] interface {
	Template(args ...any) (T, error)
	Validate(world W, template T, messenger string) (V, bool)
	Start(world W, data V)
	Update(world W, data V)
	IsFinished(world W, data V) bool
	End(world W, data V)
	Clear()
}

// Flags are the per-type queue flags
type Flags struct {
	Instant  bool
	Sendable bool
}

// Adapt turns a typed definition into a Handler usable by a Queue
func Adapt[W, T, V any](def Definition[W, T, V], flags Flags) Handler[W] {
	return &adapter[W, T, V]{def: def, flags: flags}
}

type adapter[W, T, V any] struct {
	def   Definition[W, T, V]
	flags Flags
}

func (a *adapter[W, T, V]) Template(args ...any) (any, error) {
	t, err := a.def.Template(args...)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (a *adapter[W, T, V]) Validate(world W, template any, messenger string) (any, bool) {
	t, ok := template.(T)
	if !ok {
		return nil, false
	}
	v, ok := a.def.Validate(world, t, messenger)
	if !ok {
		return nil, false
	}
	return v, true
}

// The execution hooks assert V unchecked: the queue only hands them data that
// came out of Validate or DecodeValidated, so a mismatch is a contract
// violation and panics out of the tick.

func (a *adapter[W, T, V]) Start(world W, data any)  { a.def.Start(world, data.(V)) }
func (a *adapter[W, T, V]) Update(world W, data any) { a.def.Update(world, data.(V)) }
func (a *adapter[W, T, V]) End(world W, data any)    { a.def.End(world, data.(V)) }
func (a *adapter[W, T, V]) Clear()                   { a.def.Clear() }

func (a *adapter[W, T, V]) IsFinished(world W, data any) bool {
	return a.def.IsFinished(world, data.(V))
}

func (a *adapter[W, T, V]) IsInstant() bool  { return a.flags.Instant }
func (a *adapter[W, T, V]) IsSendable() bool { return a.flags.Sendable }

func (a *adapter[W, T, V]) DecodeTemplate(raw []byte) (any, error) {
	var t T
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	return t, nil
}

func (a *adapter[W, T, V]) DecodeValidated(raw []byte) (any, error) {
	var v V
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to decode validated data: %w", err)
	}
	return v, nil
}
