package action

import "fmt"

// Variant selects how a queue promotes requests and which state it works in
type Variant uint8

const (
	// VariantStandard checks the super lane, then the normal lane, every step
	VariantStandard Variant = iota
	// VariantClient lets super requests preempt at any time but promotes a
	// normal request only when nothing is running or waiting, so player
	// actions never stack up behind each other
	VariantClient
	// VariantServer flushes: every validated item runs to completion in the
	// step it is promoted
	VariantServer
	// VariantVersus pulls like VariantClient and switches to ModeDeferred at
	// match start so a host decides what executes
	VariantVersus
)

func (v Variant) String() string {
	switch v {
	case VariantStandard:
		return "standard"
	case VariantClient:
		return "client"
	case VariantServer:
		return "server"
	case VariantVersus:
		return "versus"
	}
	return fmt.Sprintf("variant(%d)", uint8(v))
}

// ParseVariant maps a config name to a Variant
func ParseVariant(name string) (Variant, error) {
	switch name {
	case "", "standard":
		return VariantStandard, nil
	case "client":
		return VariantClient, nil
	case "server":
		return VariantServer, nil
	case "versus":
		return VariantVersus, nil
	}
	return 0, fmt.Errorf("unknown queue variant %q", name)
}

func (v Variant) initialState() State {
	if v == VariantVersus {
		return StateInactive
	}
	return v.workingState()
}

func (v Variant) workingState() State {
	if v == VariantServer {
		return StateFlush
	}
	return StateActive
}

// StartMatch activates the queue for a match. Versus queues hand every
// validated request to the host from here on.
func (q *Queue[W]) StartMatch() {
	q.Activate()
	if q.variant == VariantVersus {
		q.SetMode(ModeDeferred)
	}
}

func (q *Queue[W]) promote() {
	switch q.variant {
	case VariantStandard, VariantServer:
		q.filterLane(PrioritySuper)
		q.filterLane(PriorityNormal)
	case VariantClient, VariantVersus:
		if q.current == nil || q.current.Priority != PrioritySuper {
			q.filterLane(PrioritySuper)
		}
		if q.current == nil && q.execution.IsEmpty() {
			q.filterLane(PriorityNormal)
		}
	default:
		panic(fmt.Sprintf("action: promote for %s", q.variant))
	}
}
