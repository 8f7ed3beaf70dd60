package acceptance

import (
	"time"

	"github.com/google/uuid"

	"payplan-workers/internal/models"
)

// signOffs returns the sign-offs of kind recorded in the current cycle.
func signOffs(proc *models.ApprovalProcess, kind models.ActionKind) []models.ApprovalAction {
	if proc == nil {
		return nil
	}
	cycle := proc.Cycle(kind)
	var out []models.ApprovalAction
	for _, act := range proc.Actions {
		if act.Kind == kind && act.Cycle == cycle {
			out = append(out, act)
		}
	}
	return out
}

func hasSignedOff(proc *models.ApprovalProcess, kind models.ActionKind, actorID string) bool {
	for _, act := range signOffs(proc, kind) {
		if act.CreatedBy == actorID {
			return true
		}
	}
	return false
}

// record appends an action to the process ledger. Actions are never edited
// or removed once appended.
func record(proc *models.ApprovalProcess, kind models.ActionKind, cycle int, actorID, comment string, info map[string]interface{}, now time.Time) models.ApprovalAction {
	act := models.ApprovalAction{
		ID:        uuid.NewString(),
		Kind:      kind,
		Cycle:     cycle,
		CreatedBy: actorID,
		CreatedAt: now,
		Comment:   comment,
		Info:      info,
	}
	proc.Actions = append(proc.Actions, act)
	return act
}

func newApprovalProcess(now time.Time) *models.ApprovalProcess {
	return &models.ApprovalProcess{
		ID:        uuid.NewString(),
		CreatedAt: now,
	}
}

// enterStage starts a new cycle for a sign-off stage and stamps the
// sentFor fields the first time the process reaches it.
func enterStage(plan *models.PaymentPlan, proc *models.ApprovalProcess, stage models.PlanStatus, actorID string, now time.Time) {
	if plan.RejectedOn == stage {
		plan.RejectedOn = ""
	}
	if proc == nil {
		return
	}
	stamp := func(by *string, date **time.Time) {
		if *date == nil {
			t := now
			*by = actorID
			*date = &t
		}
	}
	switch stage {
	case models.StatusInApproval:
		proc.ApprovalCycle++
		stamp(&proc.SentForApprovalBy, &proc.SentForApprovalDate)
	case models.StatusInAuthorization:
		proc.AuthorizationCycle++
		stamp(&proc.SentForAuthorizationBy, &proc.SentForAuthorizationDate)
	case models.StatusInReview:
		proc.FinanceReleaseCycle++
		stamp(&proc.SentForFinanceReleaseBy, &proc.SentForFinanceReleaseDate)
	}
}

// lastApprovalProcess projects the most recent ledger activity into the
// flat by/date pair shown on the console.
func lastApprovalProcess(proc *models.ApprovalProcess) (string, *time.Time) {
	if proc == nil {
		return "", nil
	}
	var by string
	var at *time.Time
	consider := func(who string, when *time.Time) {
		if when == nil {
			return
		}
		if at == nil || !when.Before(*at) {
			t := *when
			by, at = who, &t
		}
	}
	consider(proc.SentForApprovalBy, proc.SentForApprovalDate)
	consider(proc.SentForAuthorizationBy, proc.SentForAuthorizationDate)
	consider(proc.SentForFinanceReleaseBy, proc.SentForFinanceReleaseDate)
	for i := range proc.Actions {
		consider(proc.Actions[i].CreatedBy, &proc.Actions[i].CreatedAt)
	}
	return by, at
}

// stageOrder ranks statuses along the acceptance path. PREPARING only
// occurs before approval.
var stageOrder = map[models.PlanStatus]int{
	models.StatusOpen:            0,
	models.StatusLocked:          0,
	models.StatusLockedFSP:       0,
	models.StatusPreparing:       0,
	models.StatusInApproval:      1,
	models.StatusInAuthorization: 2,
	models.StatusInReview:        3,
	models.StatusAccepted:        4,
	models.StatusFinished:        4,
}

// stageCount reports the sign-offs of a stage's current cycle. A stage the
// plan has not reached, or was rejected back from, starts empty.
func stageCount(plan *models.PaymentPlan, proc *models.ApprovalProcess, stage models.PlanStatus) int {
	if stageOrder[plan.Status] < stageOrder[stage] {
		return 0
	}
	return len(signOffs(proc, stageKinds[stage]))
}

// Summarize builds the console read-model row for a plan.
func Summarize(plan *models.PaymentPlan) models.PlanSummary {
	proc := plan.ActiveApprovalProcess()
	by, at := lastApprovalProcess(proc)
	return models.PlanSummary{
		ID:                           plan.ID,
		Status:                       plan.Status,
		ProgramID:                    plan.ProgramID,
		BusinessArea:                 plan.BusinessArea,
		IsFollowUp:                   plan.IsFollowUp,
		ApprovalNumberRequired:       plan.ApprovalNumberRequired,
		AuthorizationNumberRequired:  plan.AuthorizationNumberRequired,
		FinanceReleaseNumberRequired: plan.FinanceReleaseNumberRequired,
		ApprovalCount:                stageCount(plan, proc, models.StatusInApproval),
		AuthorizationCount:           stageCount(plan, proc, models.StatusInAuthorization),
		FinanceReleaseCount:          stageCount(plan, proc, models.StatusInReview),
		LastApprovalProcessBy:        by,
		LastApprovalProcessDate:      at,
		RejectedOn:                   plan.RejectedOn,
		BackgroundActionStatus:       plan.BackgroundActionStatus,
		AvailableActions:             AvailableActions(plan),
		UpdatedAt:                    plan.UpdatedAt,
	}
}
