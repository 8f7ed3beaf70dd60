package models

import "time"

// PlanEvent is published after every applied action, including sign-offs
// that did not reach quorum.
type PlanEvent struct {
	ID             string     `json:"id"`
	PlanID         string     `json:"planId"`
	ProgramID      string     `json:"programId,omitempty"`
	BusinessArea   string     `json:"businessArea,omitempty"`
	Action         Action     `json:"action"`
	PreviousStatus PlanStatus `json:"previousStatus"`
	NewStatus      PlanStatus `json:"newStatus"`
	ActorID        string     `json:"actorId"`
	Comment        string     `json:"comment,omitempty"`
	OccurredAt     time.Time  `json:"occurredAt"`
}

// StatusChanged reports whether the event moved the plan.
func (e PlanEvent) StatusChanged() bool {
	return e.PreviousStatus != e.NewStatus
}

// IsRejection reports whether the event is a stage rejection.
func (e PlanEvent) IsRejection() bool {
	return e.Action == ActionReject
}
