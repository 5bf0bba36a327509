// Package state defines the job status enum and the lifecycle transitions the
// scheduling engine allows.
package state

// Status is the state-machine variable carried on every durable job record.
type Status string

const (
	Active    Status = "active"
	Paused    Status = "paused"
	Cancelled Status = "cancelled"
	Completed Status = "completed"
)

func (s Status) String() string { return string(s) }

// Terminal reports whether s has no further outbound transitions except deletion
// by the cleanup loop.
func (s Status) Terminal() bool {
	return s == Cancelled || s == Completed
}

// All enumerates every recognised status, used by aggregate queries that want a
// zero-filled count for statuses with no matching rows.
var All = []Status{Active, Paused, Cancelled, Completed}

type transition struct {
	From Status
	To   Status
}

var validTransitions = []transition{
	{Active, Paused},
	{Active, Cancelled},
	{Active, Completed},
	{Paused, Active},
	{Paused, Cancelled},
}

// IsValidTransition reports whether the lifecycle permits moving from "from" to "to".
func IsValidTransition(from, to Status) bool {
	for _, t := range validTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}
