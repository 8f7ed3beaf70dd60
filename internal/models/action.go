package models

import "strings"

// Action is a command submitted against a payment plan.
type Action string

const (
	ActionLock                 Action = "LOCK"
	ActionUnlock               Action = "UNLOCK"
	ActionLockFSP              Action = "LOCK_FSP"
	ActionSendForApproval      Action = "SEND_FOR_APPROVAL"
	ActionApprove              Action = "APPROVE"
	ActionAuthorize            Action = "AUTHORIZE"
	ActionReview               Action = "REVIEW"
	ActionReject               Action = "REJECT"
	ActionSplit                Action = "SPLIT"
	ActionSendToPaymentGateway Action = "SEND_TO_PAYMENT_GATEWAY"

	// System actions are issued by background jobs, never by users.
	ActionFinish   Action = "FINISH"
	ActionPrepare  Action = "PREPARE"
	ActionPrepared Action = "PREPARED"
)

var actionAliases = map[string]Action{
	"SET_FSP":       ActionLockFSP,
	"UNLOCK_FSP":    ActionUnlock,
	"MARK_RELEASED": ActionReview,
	"RELEASE":       ActionReview,
}

// ParseAction normalizes user input such as "approve", "set FSP" or
// "markReleased".
func ParseAction(s string) (Action, bool) {
	key := normalizeActionName(strings.TrimSpace(s))
	if a, ok := actionAliases[key]; ok {
		return a, true
	}
	a := Action(key)
	if !a.IsValid() {
		return "", false
	}
	return a, true
}

// normalizeActionName turns lockFsp, "set FSP" and send-for-approval into
// LOCK_FSP, SET_FSP and SEND_FOR_APPROVAL.
func normalizeActionName(raw string) string {
	raw = strings.Join(strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	}), "_")
	var b strings.Builder
	var prev rune
	for i, r := range raw {
		if i > 0 && r >= 'A' && r <= 'Z' && prev >= 'a' && prev <= 'z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
		prev = r
	}
	return strings.ToUpper(b.String())
}

func (a Action) IsValid() bool {
	switch a {
	case ActionLock, ActionUnlock, ActionLockFSP,
		ActionSendForApproval, ActionApprove, ActionAuthorize, ActionReview,
		ActionReject, ActionSplit, ActionSendToPaymentGateway,
		ActionFinish, ActionPrepare, ActionPrepared:
		return true
	}
	return false
}

// IsSystem reports whether the action is reserved for background jobs.
func (a Action) IsSystem() bool {
	return a == ActionFinish || a == ActionPrepare || a == ActionPrepared
}

// IsBulk reports whether the action may be submitted for many plans at once.
func (a Action) IsBulk() bool {
	return a == ActionApprove || a == ActionAuthorize || a == ActionReview
}

// SignOffKind returns the ledger kind recorded by a quorum action.
func (a Action) SignOffKind() (ActionKind, bool) {
	switch a {
	case ActionApprove:
		return KindApproval, true
	case ActionAuthorize:
		return KindAuthorization, true
	case ActionReview:
		return KindFinanceRelease, true
	}
	return "", false
}
