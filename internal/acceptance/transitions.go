package acceptance

import (
	"payplan-workers/internal/common/errors"
	"payplan-workers/internal/models"
)

type stepKind int

const (
	stepMove stepKind = iota
	stepSignOff
	stepReject
	stepSendForApproval
	stepSplit
	stepSendToGateway
	stepPrepare
	stepPrepared
)

// transition is one row of the state table. guard returns nil when the
// precondition holds.
type transition struct {
	kind  stepKind
	to    models.PlanStatus
	guard func(p *models.PaymentPlan) *errors.StandardError
}

var transitions = map[models.PlanStatus]map[models.Action]transition{
	models.StatusOpen: {
		models.ActionLock:    {kind: stepMove, to: models.StatusLocked, guard: requireTargetListFinalized},
		models.ActionPrepare: {kind: stepPrepare, to: models.StatusPreparing, guard: requireIdle},
	},
	models.StatusLocked: {
		models.ActionUnlock:  {kind: stepMove, to: models.StatusOpen},
		models.ActionLockFSP: {kind: stepMove, to: models.StatusLockedFSP, guard: requireDeliveryMechanisms},
		models.ActionPrepare: {kind: stepPrepare, to: models.StatusPreparing, guard: requireIdle},
	},
	models.StatusLockedFSP: {
		models.ActionUnlock:          {kind: stepMove, to: models.StatusLocked},
		models.ActionSendForApproval: {kind: stepSendForApproval, to: models.StatusInApproval, guard: requireIdle},
		models.ActionPrepare:         {kind: stepPrepare, to: models.StatusPreparing, guard: requireIdle},
	},
	models.StatusInApproval: {
		models.ActionApprove: {kind: stepSignOff, to: models.StatusInAuthorization},
		models.ActionReject:  {kind: stepReject, to: models.StatusLockedFSP},
	},
	models.StatusInAuthorization: {
		models.ActionAuthorize: {kind: stepSignOff, to: models.StatusInReview},
		models.ActionReject:    {kind: stepReject, to: models.StatusInApproval},
	},
	models.StatusInReview: {
		models.ActionReview: {kind: stepSignOff, to: models.StatusAccepted},
		models.ActionReject: {kind: stepReject, to: models.StatusInAuthorization},
	},
	models.StatusAccepted: {
		models.ActionSplit:                {kind: stepSplit, to: models.StatusAccepted, guard: requireCanSplit},
		models.ActionSendToPaymentGateway: {kind: stepSendToGateway, to: models.StatusAccepted, guard: requireCanSendToGateway},
		models.ActionFinish:               {kind: stepMove, to: models.StatusFinished, guard: requireIdle},
	},
	models.StatusPreparing: {
		models.ActionPrepared: {kind: stepPrepared, guard: requirePreparingFrom},
	},
}

// stage kinds per sign-off status
var stageKinds = map[models.PlanStatus]models.ActionKind{
	models.StatusInApproval:      models.KindApproval,
	models.StatusInAuthorization: models.KindAuthorization,
	models.StatusInReview:        models.KindFinanceRelease,
}

func lookup(status models.PlanStatus, action models.Action) (transition, bool) {
	row, ok := transitions[status]
	if !ok {
		return transition{}, false
	}
	t, ok := row[action]
	return t, ok
}

func signOffActionFor(stage models.PlanStatus) models.Action {
	switch stage {
	case models.StatusInApproval:
		return models.ActionApprove
	case models.StatusInAuthorization:
		return models.ActionAuthorize
	case models.StatusInReview:
		return models.ActionReview
	}
	return ""
}

// AvailableActions lists the user actions the plan's current status allows
// and whose preconditions hold. A busy plan offers none.
func AvailableActions(plan *models.PaymentPlan) []models.Action {
	if plan == nil || plan.BackgroundActionStatus.InProgress() {
		return nil
	}
	row := transitions[plan.Status]
	var out []models.Action
	for _, action := range actionOrder {
		t, ok := row[action]
		if !ok || action.IsSystem() {
			continue
		}
		if t.guard != nil && t.guard(plan) != nil {
			continue
		}
		out = append(out, action)
	}
	return out
}

// actionOrder keeps AvailableActions deterministic.
var actionOrder = []models.Action{
	models.ActionLock,
	models.ActionUnlock,
	models.ActionLockFSP,
	models.ActionSendForApproval,
	models.ActionApprove,
	models.ActionAuthorize,
	models.ActionReview,
	models.ActionReject,
	models.ActionSplit,
	models.ActionSendToPaymentGateway,
	models.ActionFinish,
	models.ActionPrepare,
	models.ActionPrepared,
}

func requireTargetListFinalized(p *models.PaymentPlan) *errors.StandardError {
	if !p.TargetListFinalized {
		return errors.NewIllegalTransitionError(p.ID, p.Status.String(), string(models.ActionLock), "target list is not finalized")
	}
	return nil
}

func requireDeliveryMechanisms(p *models.PaymentPlan) *errors.StandardError {
	if !p.DeliveryMechanismsAssigned {
		return errors.NewIllegalTransitionError(p.ID, p.Status.String(), string(models.ActionLockFSP), "delivery mechanisms are not assigned")
	}
	return nil
}

func requireCanSplit(p *models.PaymentPlan) *errors.StandardError {
	if !p.CanSplit {
		return errors.NewIllegalTransitionError(p.ID, p.Status.String(), string(models.ActionSplit), "plan cannot be split")
	}
	return nil
}

func requireCanSendToGateway(p *models.PaymentPlan) *errors.StandardError {
	if !p.CanSendToPaymentGateway || p.SentToPaymentGateway {
		return errors.NewIllegalTransitionError(p.ID, p.Status.String(), string(models.ActionSendToPaymentGateway), "plan cannot be sent to the payment gateway")
	}
	return nil
}

func requirePreparingFrom(p *models.PaymentPlan) *errors.StandardError {
	if !p.PreparingFrom.IsValid() {
		return errors.NewIllegalTransitionError(p.ID, p.Status.String(), string(models.ActionPrepared), "no status to return to")
	}
	return nil
}

// requireIdle protects transitions that system jobs may also issue, since
// those skip the user-facing busy check.
func requireIdle(p *models.PaymentPlan) *errors.StandardError {
	if p.BackgroundActionStatus.InProgress() {
		return errors.NewPlanBusyError(p.ID, string(p.BackgroundActionStatus))
	}
	return nil
}
