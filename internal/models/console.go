package models

import "time"

// ConsoleQueue is one of the managerial console work lists.
type ConsoleQueue string

const (
	QueuePendingApproval      ConsoleQueue = "pending-approval"
	QueuePendingAuthorization ConsoleQueue = "pending-authorization"
	QueuePendingReview        ConsoleQueue = "pending-review"
	QueueReleased             ConsoleQueue = "released"
)

// ConsoleQueues lists every queue the console shows.
var ConsoleQueues = []ConsoleQueue{
	QueuePendingApproval,
	QueuePendingAuthorization,
	QueuePendingReview,
	QueueReleased,
}

// Status returns the plan status listed by the queue.
func (q ConsoleQueue) Status() (PlanStatus, bool) {
	switch q {
	case QueuePendingApproval:
		return StatusInApproval, true
	case QueuePendingAuthorization:
		return StatusInAuthorization, true
	case QueuePendingReview:
		return StatusInReview, true
	case QueueReleased:
		return StatusAccepted, true
	}
	return "", false
}

// QueueForStatus returns the queue that lists plans in status s.
func QueueForStatus(s PlanStatus) (ConsoleQueue, bool) {
	for _, q := range ConsoleQueues {
		if qs, _ := q.Status(); qs == s {
			return q, true
		}
	}
	return "", false
}

// ConsoleFilters narrows a queue listing.
type ConsoleFilters struct {
	ProgramID    string `json:"programId,omitempty"`
	BusinessArea string `json:"businessArea,omitempty"`
	Search       string `json:"search,omitempty"`
	Offset       int    `json:"offset,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}

// PlanSummary is the console read-model row for a plan.
type PlanSummary struct {
	ID           string     `json:"id"`
	Status       PlanStatus `json:"status"`
	ProgramID    string     `json:"programId"`
	BusinessArea string     `json:"businessArea"`
	IsFollowUp   bool       `json:"isFollowUp"`

	ApprovalNumberRequired       int `json:"approvalNumberRequired"`
	AuthorizationNumberRequired  int `json:"authorizationNumberRequired"`
	FinanceReleaseNumberRequired int `json:"financeReleaseNumberRequired"`
	ApprovalCount                int `json:"approvalCount"`
	AuthorizationCount           int `json:"authorizationCount"`
	FinanceReleaseCount          int `json:"financeReleaseCount"`

	LastApprovalProcessBy   string     `json:"lastApprovalProcessBy,omitempty"`
	LastApprovalProcessDate *time.Time `json:"lastApprovalProcessDate,omitempty"`

	RejectedOn             PlanStatus             `json:"rejectedOn,omitempty"`
	BackgroundActionStatus BackgroundActionStatus `json:"backgroundActionStatus,omitempty"`
	AvailableActions       []Action               `json:"availableActions,omitempty"`
	UpdatedAt              time.Time              `json:"updatedAt"`
}
