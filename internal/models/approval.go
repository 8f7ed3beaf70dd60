package models

import "time"

// ActionKind is the kind of a ledger entry.
type ActionKind string

const (
	KindApproval       ActionKind = "APPROVAL"
	KindAuthorization  ActionKind = "AUTHORIZATION"
	KindFinanceRelease ActionKind = "FINANCE_RELEASE"
	KindReject         ActionKind = "REJECT"
)

// ApprovalAction is an immutable sign-off or rejection record.
type ApprovalAction struct {
	ID        string                 `json:"id"`
	Kind      ActionKind             `json:"kind"`
	Cycle     int                    `json:"cycle"`
	CreatedBy string                 `json:"createdBy"`
	CreatedAt time.Time              `json:"createdAt"`
	Comment   string                 `json:"comment,omitempty"`
	Info      map[string]interface{} `json:"info,omitempty"`
}

// ApprovalProcess groups the ledger of one pass through the sign-off stages.
type ApprovalProcess struct {
	ID string `json:"id"`

	SentForApprovalBy         string     `json:"sentForApprovalBy,omitempty"`
	SentForApprovalDate       *time.Time `json:"sentForApprovalDate,omitempty"`
	SentForAuthorizationBy    string     `json:"sentForAuthorizationBy,omitempty"`
	SentForAuthorizationDate  *time.Time `json:"sentForAuthorizationDate,omitempty"`
	SentForFinanceReleaseBy   string     `json:"sentForFinanceReleaseBy,omitempty"`
	SentForFinanceReleaseDate *time.Time `json:"sentForFinanceReleaseDate,omitempty"`

	ApprovalCycle       int `json:"approvalCycle"`
	AuthorizationCycle  int `json:"authorizationCycle"`
	FinanceReleaseCycle int `json:"financeReleaseCycle"`

	Actions   []ApprovalAction `json:"actions,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Cycle returns the current cycle for a sign-off kind.
func (a *ApprovalProcess) Cycle(kind ActionKind) int {
	switch kind {
	case KindApproval:
		return a.ApprovalCycle
	case KindAuthorization:
		return a.AuthorizationCycle
	case KindFinanceRelease:
		return a.FinanceReleaseCycle
	}
	return 0
}

// ActionsOf returns every action of kind, across cycles, in append order.
func (a *ApprovalProcess) ActionsOf(kind ActionKind) []ApprovalAction {
	var out []ApprovalAction
	for _, act := range a.Actions {
		if act.Kind == kind {
			out = append(out, act)
		}
	}
	return out
}

// Clone returns a deep copy.
func (a *ApprovalProcess) Clone() *ApprovalProcess {
	if a == nil {
		return nil
	}
	cp := *a
	cp.SentForApprovalDate = cloneTime(a.SentForApprovalDate)
	cp.SentForAuthorizationDate = cloneTime(a.SentForAuthorizationDate)
	cp.SentForFinanceReleaseDate = cloneTime(a.SentForFinanceReleaseDate)
	if a.Actions != nil {
		cp.Actions = make([]ApprovalAction, len(a.Actions))
		for i, act := range a.Actions {
			cp.Actions[i] = act
			if act.Info != nil {
				info := make(map[string]interface{}, len(act.Info))
				for k, v := range act.Info {
					info[k] = v
				}
				cp.Actions[i].Info = info
			}
		}
	}
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
