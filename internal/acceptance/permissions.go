package acceptance

import (
	"strings"

	"payplan-workers/internal/models"
)

// Capability is a permission consumed by the gate. Definitions live in the
// identity provider; this package only checks them.
type Capability string

const (
	CapLockAndUnlock         Capability = "PM_LOCK_AND_UNLOCK"
	CapLockAndUnlockFSP      Capability = "PM_LOCK_AND_UNLOCK_FSP"
	CapSendForApproval       Capability = "PM_SEND_FOR_APPROVAL"
	CapApprove               Capability = "PM_ACCEPTANCE_PROCESS_APPROVE"
	CapAuthorize             Capability = "PM_ACCEPTANCE_PROCESS_AUTHORIZE"
	CapFinancialReview       Capability = "PM_ACCEPTANCE_PROCESS_FINANCIAL_REVIEW"
	CapRejectApproval        Capability = "PM_ACCEPTANCE_PROCESS_REJECT_APPROVAL"
	CapRejectAuthorization   Capability = "PM_ACCEPTANCE_PROCESS_REJECT_AUTHORIZATION"
	CapRejectFinancialReview Capability = "PM_ACCEPTANCE_PROCESS_REJECT_FINANCIAL_REVIEW"
	CapSplit                 Capability = "PM_SPLIT"
	CapSendToPaymentGateway  Capability = "PM_SEND_TO_PAYMENT_GATEWAY"
)

// Actor is the caller an action is attributed to.
type Actor struct {
	ID       string   `json:"id"`
	Username string   `json:"username,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	System   bool     `json:"system,omitempty"`
}

// SystemActor performs background transitions.
var SystemActor = Actor{ID: "system", Username: "system", System: true}

// CapabilityChecker answers whether any of roles grants a capability.
type CapabilityChecker interface {
	HasCapability(roles []string, capability Capability) bool
}

var advanceCapabilities = map[models.Action]Capability{
	models.ActionLock:                 CapLockAndUnlock,
	models.ActionUnlock:               CapLockAndUnlock,
	models.ActionLockFSP:              CapLockAndUnlockFSP,
	models.ActionSendForApproval:      CapSendForApproval,
	models.ActionApprove:              CapApprove,
	models.ActionAuthorize:            CapAuthorize,
	models.ActionReview:               CapFinancialReview,
	models.ActionSplit:                CapSplit,
	models.ActionSendToPaymentGateway: CapSendToPaymentGateway,
}

// Advance holders may reject their own stage; reject-only holders may not advance.
var rejectCapabilities = map[models.PlanStatus][]Capability{
	models.StatusInApproval:      {CapApprove, CapRejectApproval},
	models.StatusInAuthorization: {CapAuthorize, CapRejectAuthorization},
	models.StatusInReview:        {CapFinancialReview, CapRejectFinancialReview},
}

// BulkCapability returns the capability a bulk action requires.
func BulkCapability(action models.Action) (Capability, bool) {
	if !action.IsBulk() {
		return "", false
	}
	c, ok := advanceCapabilities[action]
	return c, ok
}

// Gate decides whether an actor may perform an action on a plan.
type Gate struct {
	checker CapabilityChecker
}

func NewGate(checker CapabilityChecker) *Gate {
	return &Gate{checker: checker}
}

// CanPerform is a pure check: it does not look at transition legality.
func (g *Gate) CanPerform(actor Actor, action models.Action, plan *models.PaymentPlan) bool {
	if plan == nil {
		return false
	}
	if action.IsSystem() {
		return actor.System
	}
	if actor.System || !plan.IsActiveProgram {
		return false
	}
	if action == models.ActionReject {
		return g.CanReject(actor.Roles, plan.Status)
	}
	c, ok := capabilityFor(action, plan.Status)
	if !ok {
		return false
	}
	return g.checker.HasCapability(actor.Roles, c)
}

// capabilityFor resolves the capability an advance action needs. Unlocking
// a LOCKED_FSP plan releases the FSP lock.
func capabilityFor(action models.Action, status models.PlanStatus) (Capability, bool) {
	if action == models.ActionUnlock && status == models.StatusLockedFSP {
		return CapLockAndUnlockFSP, true
	}
	c, ok := advanceCapabilities[action]
	return c, ok
}

// CanAdvance reports whether roles may sign off the given stage.
func (g *Gate) CanAdvance(roles []string, stage models.PlanStatus) bool {
	t, ok := lookup(stage, signOffActionFor(stage))
	if !ok || t.kind != stepSignOff {
		return false
	}
	return g.checker.HasCapability(roles, advanceCapabilities[signOffActionFor(stage)])
}

// CanReject reports whether roles may reject the given stage. Outside the
// sign-off stages any reject capability passes so the engine can report the
// illegal transition.
func (g *Gate) CanReject(roles []string, stage models.PlanStatus) bool {
	caps, ok := rejectCapabilities[stage]
	if !ok {
		for _, stageCaps := range rejectCapabilities {
			if g.hasAny(roles, stageCaps) {
				return true
			}
		}
		return false
	}
	return g.hasAny(roles, caps)
}

// Allows reports whether roles grant capability c.
func (g *Gate) Allows(roles []string, c Capability) bool {
	return g.checker.HasCapability(roles, c)
}

func (g *Gate) hasAny(roles []string, caps []Capability) bool {
	for _, c := range caps {
		if g.checker.HasCapability(roles, c) {
			return true
		}
	}
	return false
}

// RolePolicy maps identity roles to capabilities. Role names are matched
// case-insensitively. A role named exactly like a capability also grants it.
type RolePolicy map[string][]Capability

// NewRolePolicy builds a policy from configuration.
func NewRolePolicy(roles map[string][]string) RolePolicy {
	p := make(RolePolicy, len(roles))
	for role, caps := range roles {
		for _, c := range caps {
			key := strings.ToLower(role)
			p[key] = append(p[key], Capability(strings.ToUpper(c)))
		}
	}
	return p
}

func (p RolePolicy) HasCapability(roles []string, capability Capability) bool {
	for _, role := range roles {
		if role == string(capability) {
			return true
		}
		for _, c := range p[strings.ToLower(role)] {
			if c == capability {
				return true
			}
		}
	}
	return false
}
