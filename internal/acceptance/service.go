// Package acceptance implements the payment plan acceptance workflow: the
// transition table, the approval ledger, the permission gate and the
// single and bulk submission paths.
package acceptance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"payplan-workers/internal/common/errors"
	"payplan-workers/internal/common/logger"
	"payplan-workers/internal/common/metrics"
	"payplan-workers/internal/lock"
	"payplan-workers/internal/models"
)

var tracer = otel.Tracer("payplan-workers/acceptance")

// Store persists plans. SavePlan must fail with VERSION_CONFLICT when the
// stored version differs from expectedVersion, and persist created plans in
// the same transaction.
type Store interface {
	LoadPlan(ctx context.Context, id string) (*models.PaymentPlan, error)
	SavePlan(ctx context.Context, expectedVersion int64, plan *models.PaymentPlan, created ...*models.PaymentPlan) error
}

// Locker provides per-plan mutual exclusion.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

type IdentityProvider interface {
	CurrentActor(ctx context.Context) (Actor, error)
}

// Notifier receives plan events. Delivery failures never fail the action.
type Notifier interface {
	Notify(ctx context.Context, event models.PlanEvent) error
}

// Indexer keeps the console read model in step with saved plans.
type Indexer interface {
	IndexPlan(ctx context.Context, summary models.PlanSummary) error
}

// QueueRefresher tells console clients that queues changed.
type QueueRefresher interface {
	Refresh(ctx context.Context, queues ...models.ConsoleQueue) error
}

type Config struct {
	MaxCommentLength   int
	MaxConflictRetries int
	BulkMaxParallel    int
}

func DefaultConfig() Config {
	return Config{
		MaxCommentLength:   DefaultMaxCommentLength,
		MaxConflictRetries: 3,
		BulkMaxParallel:    8,
	}
}

// ActionRequest is a single-plan submission.
type ActionRequest struct {
	PlanID  string        `json:"planId"`
	Action  models.Action `json:"action"`
	Comment string        `json:"comment,omitempty"`
	Chunks  int           `json:"chunks,omitempty"`
}

// Outcome reports what happened to one plan.
type Outcome struct {
	PlanID         string            `json:"planId"`
	Action         models.Action     `json:"action"`
	Result         OutcomeResult     `json:"result"`
	PreviousStatus models.PlanStatus `json:"previousStatus,omitempty"`
	Status         models.PlanStatus `json:"status,omitempty"`
	SignOffs       int               `json:"signOffs,omitempty"`
	Required       int               `json:"required,omitempty"`
	CreatedPlanIDs []string          `json:"createdPlanIds,omitempty"`
	ErrorCode      string            `json:"errorCode,omitempty"`
	ErrorMessage   string            `json:"errorMessage,omitempty"`
	Retryable      bool              `json:"retryable,omitempty"`
}

type Service struct {
	cfg       Config
	engine    *Engine
	store     Store
	identity  IdentityProvider
	gate      *Gate
	locker    Locker
	notifier  Notifier
	indexer   Indexer
	refresher QueueRefresher
	logger    logger.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithLocker(l Locker) Option {
	return func(s *Service) { s.locker = l }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithIndexer(i Indexer) Option {
	return func(s *Service) { s.indexer = i }
}

func WithRefresher(r QueueRefresher) Option {
	return func(s *Service) { s.refresher = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(cfg Config, store Store, identity IdentityProvider, gate *Gate, log logger.Logger, opts ...Option) *Service {
	def := DefaultConfig()
	if cfg.MaxCommentLength <= 0 {
		cfg.MaxCommentLength = def.MaxCommentLength
	}
	if cfg.MaxConflictRetries < 0 {
		cfg.MaxConflictRetries = def.MaxConflictRetries
	}
	if cfg.BulkMaxParallel <= 0 {
		cfg.BulkMaxParallel = def.BulkMaxParallel
	}

	s := &Service{
		cfg:      cfg,
		engine:   NewEngine(cfg.MaxCommentLength),
		store:    store,
		identity: identity,
		gate:     gate,
		locker:   lock.NewLocalLocker(),
		logger:   log.WithFields(map[string]interface{}{"component": "acceptance"}),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitAction applies one action to one plan on behalf of the current actor.
func (s *Service) SubmitAction(ctx context.Context, req ActionRequest) (*Outcome, error) {
	actor, err := s.identity.CurrentActor(ctx)
	if err != nil {
		return nil, bindPlan(err, req.PlanID)
	}
	res, err := s.submit(ctx, actor, req)
	if err != nil {
		return nil, err
	}
	s.refreshQueues(ctx, queuesTouched(res)...)
	return newOutcome(req, res), nil
}

// ApplySystemAction applies finish, prepare or prepared on behalf of a
// background job.
func (s *Service) ApplySystemAction(ctx context.Context, planID string, action models.Action) (*Outcome, error) {
	if !action.IsSystem() {
		return nil, errors.NewValidationError(planID, fmt.Sprintf("%s is not a system action", action))
	}
	req := ActionRequest{PlanID: planID, Action: action}
	res, err := s.submit(ctx, SystemActor, req)
	if err != nil {
		return nil, err
	}
	s.refreshQueues(ctx, queuesTouched(res)...)
	return newOutcome(req, res), nil
}

// SetBackgroundAction marks or clears long-running work on a plan. A plan
// already busy with a different action is refused.
func (s *Service) SetBackgroundAction(ctx context.Context, planID string, status models.BackgroundActionStatus) (*models.PaymentPlan, error) {
	ctx, span := tracer.Start(ctx, "acceptance.SetBackgroundAction", trace.WithAttributes(
		attribute.String("plan.id", planID),
		attribute.String("plan.background_action", string(status)),
	))
	defer span.End()

	res, err := s.mutate(ctx, planID, func(plan *models.PaymentPlan) (*Result, error) {
		if plan.Status.IsTerminal() {
			return nil, errors.NewIllegalTransitionError(plan.ID, plan.Status.String(), "SET_BACKGROUND_ACTION", "plan is finished")
		}
		current := plan.BackgroundActionStatus
		if status.InProgress() && current.InProgress() && current != status {
			return nil, errors.NewPlanBusyError(plan.ID, string(current))
		}
		next := plan.Clone()
		next.BackgroundActionStatus = status
		next.UpdatedAt = s.now()
		return &Result{Plan: next, PreviousStatus: plan.Status, Result: ResultApplied}, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.logger.Info("Background action updated", map[string]interface{}{
		"planId":                 planID,
		"backgroundActionStatus": string(status),
	})
	s.index(ctx, res.Plan)
	return res.Plan, nil
}

// Plan loads a plan. Reads never change state.
func (s *Service) Plan(ctx context.Context, planID string) (*models.PaymentPlan, error) {
	plan, err := s.store.LoadPlan(ctx, planID)
	if err != nil {
		return nil, bindPlan(err, planID)
	}
	return plan, nil
}

// AvailableActionsFor lists the actions the current actor could submit now.
func (s *Service) AvailableActionsFor(ctx context.Context, planID string) ([]models.Action, error) {
	actor, err := s.identity.CurrentActor(ctx)
	if err != nil {
		return nil, err
	}
	plan, err := s.Plan(ctx, planID)
	if err != nil {
		return nil, err
	}
	var out []models.Action
	for _, a := range AvailableActions(plan) {
		if s.gate.CanPerform(actor, a, plan) {
			out = append(out, a)
		}
	}
	return out, nil
}

// submit runs one action through gate, engine and store, then publishes
// side effects. Queue refresh is left to the caller.
func (s *Service) submit(ctx context.Context, actor Actor, req ActionRequest) (*Result, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "acceptance.SubmitAction", trace.WithAttributes(
		attribute.String("plan.id", req.PlanID),
		attribute.String("plan.action", string(req.Action)),
		attribute.String("actor.id", actor.ID),
	))
	defer span.End()

	res, err := s.apply(ctx, actor, req)
	metrics.PlanActionDuration.WithLabelValues(string(req.Action)).Observe(time.Since(start).Seconds())

	if err != nil {
		code := errors.CodeOf(err)
		metrics.PlanActionOutcomes.WithLabelValues(string(req.Action), string(ResultError), string(code)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, string(code))
		s.logger.Warn("Payment plan action refused", map[string]interface{}{
			"planId":    req.PlanID,
			"action":    string(req.Action),
			"actorId":   actor.ID,
			"errorCode": string(code),
			"error":     err.Error(),
		})
		return nil, err
	}

	metrics.PlanActionOutcomes.WithLabelValues(string(req.Action), string(res.Result), "").Inc()
	if res.PreviousStatus != res.Plan.Status {
		metrics.PlanTransitions.WithLabelValues(string(req.Action), string(res.PreviousStatus), string(res.Plan.Status)).Inc()
	}
	span.SetAttributes(attribute.String("plan.result", string(res.Result)))

	s.logger.Info("Payment plan action applied", map[string]interface{}{
		"planId":   req.PlanID,
		"action":   string(req.Action),
		"actorId":  actor.ID,
		"result":   string(res.Result),
		"from":     string(res.PreviousStatus),
		"to":       string(res.Plan.Status),
		"signOffs": res.SignOffs,
		"required": res.Required,
	})

	s.index(ctx, res.Plan)
	for _, created := range res.Created {
		s.index(ctx, created)
	}
	s.notify(ctx, actor, req, res)
	return res, nil
}

func (s *Service) apply(ctx context.Context, actor Actor, req ActionRequest) (*Result, error) {
	if req.PlanID == "" {
		return nil, errors.NewValidationError("", "planId is required")
	}
	cmd := Command{
		Action:  req.Action,
		ActorID: actor.ID,
		Comment: req.Comment,
		Chunks:  req.Chunks,
	}
	if err := s.engine.validate(req.PlanID, cmd); err != nil {
		return nil, err
	}

	return s.mutate(ctx, req.PlanID, func(plan *models.PaymentPlan) (*Result, error) {
		if !s.gate.CanPerform(actor, req.Action, plan) {
			return nil, errors.NewPermissionDeniedError(plan.ID,
				fmt.Sprintf("actor %s may not %s a plan in status %s", actor.ID, req.Action, plan.Status))
		}
		cmd.Now = s.now()
		return s.engine.Apply(plan, cmd)
	})
}

// mutate holds the plan lock across load, decide and save. A version
// conflict reloads and decides again, up to MaxConflictRetries times.
func (s *Service) mutate(ctx context.Context, planID string, decide func(plan *models.PaymentPlan) (*Result, error)) (*Result, error) {
	unlock, err := s.locker.Lock(ctx, "payment-plan:"+planID)
	if err != nil {
		return nil, bindPlan(err, planID)
	}
	defer unlock()

	for attempt := 0; ; attempt++ {
		plan, err := s.store.LoadPlan(ctx, planID)
		if err != nil {
			return nil, bindPlan(err, planID)
		}

		res, err := decide(plan)
		if err != nil {
			return nil, bindPlan(err, planID)
		}

		err = s.store.SavePlan(ctx, plan.Version, res.Plan, res.Created...)
		if err == nil {
			return res, nil
		}
		if errors.CodeOf(err) != errors.ErrCodeVersionConflict {
			return nil, bindPlan(err, planID)
		}

		metrics.VersionConflicts.Inc()
		if attempt >= s.cfg.MaxConflictRetries {
			return nil, errors.NewConflictError(planID, fmt.Sprintf("gave up after %d attempts", attempt+1))
		}
		s.logger.Debug("Version conflict, reloading plan", map[string]interface{}{
			"planId":  planID,
			"attempt": attempt + 1,
		})
	}
}

func (s *Service) index(ctx context.Context, plan *models.PaymentPlan) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.IndexPlan(ctx, Summarize(plan)); err != nil {
		s.logger.Warn("Failed to index payment plan", map[string]interface{}{
			"planId": plan.ID,
			"error":  err.Error(),
		})
	}
}

func (s *Service) notify(ctx context.Context, actor Actor, req ActionRequest, res *Result) {
	if s.notifier == nil {
		return
	}
	event := models.PlanEvent{
		ID:             uuid.NewString(),
		PlanID:         res.Plan.ID,
		ProgramID:      res.Plan.ProgramID,
		BusinessArea:   res.Plan.BusinessArea,
		Action:         req.Action,
		PreviousStatus: res.PreviousStatus,
		NewStatus:      res.Plan.Status,
		ActorID:        actor.ID,
		Comment:        req.Comment,
		OccurredAt:     res.Plan.UpdatedAt,
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.logger.Warn("Failed to publish plan event", map[string]interface{}{
			"planId": res.Plan.ID,
			"error":  err.Error(),
		})
	}
}

func (s *Service) refreshQueues(ctx context.Context, queues ...models.ConsoleQueue) {
	if s.refresher == nil || len(queues) == 0 {
		return
	}
	if err := s.refresher.Refresh(ctx, queues...); err != nil {
		s.logger.Warn("Failed to refresh console queues", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// queuesTouched returns the console queues listing the plan before or after.
func queuesTouched(res *Result) []models.ConsoleQueue {
	var out []models.ConsoleQueue
	if q, ok := models.QueueForStatus(res.PreviousStatus); ok {
		out = append(out, q)
	}
	if q, ok := models.QueueForStatus(res.Plan.Status); ok && res.Plan.Status != res.PreviousStatus {
		out = append(out, q)
	}
	return out
}

func newOutcome(req ActionRequest, res *Result) *Outcome {
	out := &Outcome{
		PlanID:         req.PlanID,
		Action:         req.Action,
		Result:         res.Result,
		PreviousStatus: res.PreviousStatus,
		Status:         res.Plan.Status,
		SignOffs:       res.SignOffs,
		Required:       res.Required,
	}
	for _, p := range res.Created {
		out.CreatedPlanIDs = append(out.CreatedPlanIDs, p.ID)
	}
	return out
}

// errorOutcome reports a failed plan inside a bulk response.
func errorOutcome(planID string, action models.Action, err error) Outcome {
	out := Outcome{
		PlanID:       planID,
		Action:       action,
		Result:       ResultError,
		ErrorCode:    string(errors.CodeOf(err)),
		ErrorMessage: err.Error(),
		Retryable:    errors.IsTransient(err),
	}
	return out
}

// bindPlan makes sure every error leaving the service names its plan.
func bindPlan(err error, planID string) error {
	if stdErr, ok := errors.AsStandard(err); ok {
		if stdErr.PlanID == "" && planID != "" {
			return stdErr.WithPlan(planID)
		}
		return err
	}
	return &errors.StandardError{
		Code:      errors.ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		PlanID:    planID,
		Timestamp: time.Now().UTC(),
	}
}
