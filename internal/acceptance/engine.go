package acceptance

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"payplan-workers/internal/common/errors"
	"payplan-workers/internal/models"
)

const (
	DefaultMaxCommentLength = 500
	MaxSplitChunks          = 50
)

// OutcomeResult classifies what an applied action did to the plan.
type OutcomeResult string

const (
	ResultAdvanced OutcomeResult = "advanced"
	ResultPending  OutcomeResult = "pending"
	ResultRejected OutcomeResult = "rejected"
	ResultApplied  OutcomeResult = "applied"
	ResultError    OutcomeResult = "error"
)

// Command is one action to apply to a plan.
type Command struct {
	Action  models.Action
	ActorID string
	Comment string
	Chunks  int
	Now     time.Time
}

// Result is the engine's decision. Plan is a new snapshot; the input plan is
// never modified.
type Result struct {
	Plan           *models.PaymentPlan
	PreviousStatus models.PlanStatus
	Result         OutcomeResult
	Recorded       *models.ApprovalAction
	SignOffs       int
	Required       int
	Created        []*models.PaymentPlan
}

// Engine applies the transition table. It holds no state besides limits.
type Engine struct {
	maxCommentLength int
}

func NewEngine(maxCommentLength int) *Engine {
	if maxCommentLength <= 0 {
		maxCommentLength = DefaultMaxCommentLength
	}
	return &Engine{maxCommentLength: maxCommentLength}
}

// Apply computes the next snapshot of plan for cmd, or the reason it is refused.
func (e *Engine) Apply(plan *models.PaymentPlan, cmd Command) (*Result, error) {
	if err := e.validate(plan.ID, cmd); err != nil {
		return nil, err
	}
	if !cmd.Action.IsSystem() && plan.BackgroundActionStatus.InProgress() {
		return nil, errors.NewPlanBusyError(plan.ID, string(plan.BackgroundActionStatus))
	}

	t, ok := lookup(plan.Status, cmd.Action)
	if !ok {
		return nil, errors.NewIllegalTransitionError(plan.ID, plan.Status.String(), string(cmd.Action), "")
	}
	if t.guard != nil {
		if err := t.guard(plan); err != nil {
			return nil, err
		}
	}

	next := plan.Clone()
	next.UpdatedAt = cmd.Now
	res := &Result{Plan: next, PreviousStatus: plan.Status, Result: ResultAdvanced}

	switch t.kind {
	case stepMove:
		next.Status = t.to

	case stepSendForApproval:
		proc := next.ActiveApprovalProcess()
		if proc == nil || next.RejectedOn == models.StatusInApproval {
			proc = newApprovalProcess(cmd.Now)
			next.ApprovalProcesses = append(next.ApprovalProcesses, proc)
		}
		next.Status = t.to
		enterStage(next, proc, t.to, cmd.ActorID, cmd.Now)

	case stepSignOff:
		if err := e.signOff(next, t, cmd, res); err != nil {
			return nil, err
		}

	case stepReject:
		e.reject(next, t, cmd, res)

	case stepSplit:
		if cmd.Chunks < 2 || cmd.Chunks > MaxSplitChunks {
			return nil, errors.NewValidationError(plan.ID, fmt.Sprintf("chunks must be between 2 and %d", MaxSplitChunks))
		}
		next.CanSplit = false
		res.Created = splitPlan(next, cmd.Chunks, cmd.Now)
		res.Result = ResultApplied

	case stepSendToGateway:
		next.SentToPaymentGateway = true
		next.CanSendToPaymentGateway = false
		res.Result = ResultApplied

	case stepPrepare:
		next.PreparingFrom = next.Status
		next.Status = t.to

	case stepPrepared:
		next.Status = next.PreparingFrom
		next.PreparingFrom = ""
	}

	return res, nil
}

func (e *Engine) validate(planID string, cmd Command) error {
	if !cmd.Action.IsValid() {
		return errors.NewValidationError(planID, fmt.Sprintf("unknown action %q", cmd.Action))
	}
	if cmd.ActorID == "" {
		return errors.NewValidationError(planID, "actor is required")
	}
	return e.validateComment(planID, cmd.Comment)
}

func (e *Engine) validateComment(planID, comment string) error {
	if n := utf8.RuneCountInString(comment); n > e.maxCommentLength {
		return errors.NewValidationError(planID, fmt.Sprintf("comment is %d characters, limit is %d", n, e.maxCommentLength))
	}
	return nil
}

// signOff records a quorum action. The arrival that brings the current cycle
// to the required count advances the plan; later arrivals find a new status.
func (e *Engine) signOff(next *models.PaymentPlan, t transition, cmd Command, res *Result) error {
	stage := next.Status
	kind := stageKinds[stage]

	proc := next.ActiveApprovalProcess()
	if proc == nil {
		proc = newApprovalProcess(cmd.Now)
		next.ApprovalProcesses = append(next.ApprovalProcesses, proc)
		enterStage(next, proc, stage, cmd.ActorID, cmd.Now)
	}
	if hasSignedOff(proc, kind, cmd.ActorID) {
		return errors.NewDuplicateActionError(next.ID, cmd.ActorID, string(kind))
	}

	act := record(proc, kind, proc.Cycle(kind), cmd.ActorID, cmd.Comment, nil, cmd.Now)
	res.Recorded = &act

	required := next.RequiredFor(kind)
	if required < 1 {
		required = 1
	}
	res.SignOffs = len(signOffs(proc, kind))
	res.Required = required

	if res.SignOffs < required {
		res.Result = ResultPending
		return nil
	}

	next.Status = t.to
	enterStage(next, proc, t.to, cmd.ActorID, cmd.Now)
	return nil
}

// reject moves the plan one stage back regardless of quorum.
func (e *Engine) reject(next *models.PaymentPlan, t transition, cmd Command, res *Result) {
	stage := next.Status
	kind := stageKinds[stage]

	proc := next.ActiveApprovalProcess()
	if proc == nil {
		proc = newApprovalProcess(cmd.Now)
		next.ApprovalProcesses = append(next.ApprovalProcesses, proc)
	}

	act := record(proc, models.KindReject, proc.Cycle(kind), cmd.ActorID, cmd.Comment,
		map[string]interface{}{"rejectedOn": string(stage)}, cmd.Now)
	res.Recorded = &act

	next.RejectedOn = stage
	next.Status = t.to
	if t.to.IsSignOffStage() {
		enterStage(next, proc, t.to, cmd.ActorID, cmd.Now)
	}
	res.Result = ResultRejected
}

// splitPlan creates sibling plans carrying a copy of the parent's ledger.
func splitPlan(parent *models.PaymentPlan, chunks int, now time.Time) []*models.PaymentPlan {
	out := make([]*models.PaymentPlan, 0, chunks)
	for i := 0; i < chunks; i++ {
		sib := parent.Clone()
		sib.ID = uuid.NewString()
		sib.Version = 0
		sib.SplitFromID = parent.ID
		sib.CreatedAt = now
		sib.UpdatedAt = now
		for _, proc := range sib.ApprovalProcesses {
			proc.ID = uuid.NewString()
			for j := range proc.Actions {
				proc.Actions[j].ID = uuid.NewString()
			}
		}
		out = append(out, sib)
	}
	return out
}
