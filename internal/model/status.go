package model

import "fmt"

// Status is the order lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCooking   Status = "cooking"
	StatusReady     Status = "ready"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// OperationalStatuses lists the statuses that keep a table session open.
var OperationalStatuses = []Status{StatusPending, StatusCooking, StatusReady}

// Operational reports whether the status is Pending, Cooking or Ready.
func (s Status) Operational() bool {
	switch s {
	case StatusPending, StatusCooking, StatusReady:
		return true
	}
	return false
}

// Terminal reports whether the status is Completed or Cancelled.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s.Operational() || s.Terminal()
}

// ParseStatus converts a string into a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown order status %q", v)
	}
	return s, nil
}

// kitchen flow, one step at a time
var nextStatus = map[Status]Status{
	StatusPending: StatusCooking,
	StatusCooking: StatusReady,
	StatusReady:   StatusCompleted,
}

// CanTransition reports whether an order may move from one status to
// another. Terminal states have no outgoing transitions. Any operational
// state may be cancelled.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	return nextStatus[from] == to
}
