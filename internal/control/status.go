package control

import "fmt"

// Status is the coarse operational phase of a setup's control record.
// It is orthogonal to the fine-grained execution state string reported
// by heartbeats (e.g. "trial", "ITI").
type Status string

const (
	StatusReady    Status = "ready"
	StatusRunning  Status = "running"
	StatusStop     Status = "stop"
	StatusSleeping Status = "sleeping"
	StatusExit     Status = "exit"
)

// ParseStatus validates a status string received over the wire.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusReady, StatusRunning, StatusStop, StatusSleeping, StatusExit:
		return Status(s), nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, s)
}

// operatorEdges is the transition table enforced for operator-driven
// updates (single and bulk). exit is reachable from every status; the
// reverse edge exit -> ready is the explicit operator recovery path for
// a faulted setup.
var operatorEdges = map[Status][]Status{
	StatusReady:    {StatusRunning, StatusExit},
	StatusRunning:  {StatusStop, StatusExit},
	StatusSleeping: {StatusRunning, StatusStop, StatusExit},
	StatusStop:     {StatusReady, StatusExit},
	StatusExit:     {StatusReady},
}

// heartbeatEdges is the narrower table for setup-driven transitions.
// A setup may only report its own fault; every other status change must
// come from an operator.
var heartbeatEdges = map[Status][]Status{
	StatusReady:    {StatusExit},
	StatusRunning:  {StatusExit},
	StatusSleeping: {StatusExit},
	StatusStop:     {StatusExit},
}

// CanTransition reports whether an operator may move a record from
// cur to next. A no-op request (next == cur) is always permitted.
func CanTransition(cur, next Status) bool {
	return canMove(operatorEdges, cur, next)
}

// CanHeartbeatTransition reports whether a setup itself may move its
// record from cur to next.
func CanHeartbeatTransition(cur, next Status) bool {
	return canMove(heartbeatEdges, cur, next)
}

func canMove(edges map[Status][]Status, cur, next Status) bool {
	if cur == next {
		return true
	}
	for _, s := range edges[cur] {
		if s == next {
			return true
		}
	}
	return false
}
