package acceptance

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"payplan-workers/internal/common/errors"
	"payplan-workers/internal/common/metrics"
	"payplan-workers/internal/models"
)

// BulkRequest applies one sign-off action with one shared comment to many plans.
type BulkRequest struct {
	PlanIDs []string      `json:"planIds"`
	Action  models.Action `json:"action"`
	Comment string        `json:"comment,omitempty"`
}

// BulkOutcome holds per-plan results in request order plus counts.
type BulkOutcome struct {
	Action   models.Action `json:"action"`
	Results  []Outcome     `json:"results"`
	Advanced int           `json:"advanced"`
	Pending  int           `json:"pending"`
	Failed   int           `json:"failed"`
}

// SubmitBulkAction runs the action against every plan independently. A plan
// that fails does not stop the others. Missing capability fails the whole
// request before any plan is touched.
func (s *Service) SubmitBulkAction(ctx context.Context, req BulkRequest) (*BulkOutcome, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "acceptance.SubmitBulkAction", trace.WithAttributes(
		attribute.String("plan.action", string(req.Action)),
		attribute.Int("plan.count", len(req.PlanIDs)),
	))
	defer span.End()

	out, err := s.submitBulk(ctx, req)
	if err != nil {
		metrics.BulkRequests.WithLabelValues(string(req.Action), string(errors.CodeOf(err))).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, string(errors.CodeOf(err)))
		return nil, err
	}

	metrics.BulkRequests.WithLabelValues(string(req.Action), "ok").Inc()
	metrics.BulkPlansPerRequest.Observe(float64(len(out.Results)))
	s.logger.Info("Bulk action completed", map[string]interface{}{
		"action":     string(req.Action),
		"plans":      len(out.Results),
		"advanced":   out.Advanced,
		"pending":    out.Pending,
		"failed":     out.Failed,
		"durationMs": time.Since(start).Milliseconds(),
	})
	return out, nil
}

func (s *Service) submitBulk(ctx context.Context, req BulkRequest) (*BulkOutcome, error) {
	capability, ok := BulkCapability(req.Action)
	if !ok {
		return nil, errors.NewValidationError("", fmt.Sprintf("action %s cannot be applied in bulk", req.Action))
	}
	ids := uniqueIDs(req.PlanIDs)
	if len(ids) == 0 {
		return nil, errors.NewValidationError("", "planIds must not be empty")
	}
	if err := s.engine.validateComment("", req.Comment); err != nil {
		return nil, err
	}

	actor, err := s.identity.CurrentActor(ctx)
	if err != nil {
		return nil, err
	}
	if !s.gate.Allows(actor.Roles, capability) {
		return nil, errors.NewPermissionDeniedError("", fmt.Sprintf("actor %s lacks %s", actor.ID, capability))
	}

	results := make([]Outcome, len(ids))
	p := pool.New().WithMaxGoroutines(s.cfg.BulkMaxParallel)
	for i, id := range ids {
		p.Go(func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("Bulk action panicked", map[string]interface{}{
						"planId": id,
						"action": req.Action,
						"panic":  fmt.Sprint(r),
					})
					results[i] = errorOutcome(id, req.Action, fmt.Errorf("panic while processing plan %s: %v", id, r))
				}
			}()
			planReq := ActionRequest{PlanID: id, Action: req.Action, Comment: req.Comment}
			res, err := s.submit(ctx, actor, planReq)
			if err != nil {
				results[i] = errorOutcome(id, req.Action, err)
				return
			}
			results[i] = *newOutcome(planReq, res)
		})
	}
	p.Wait()

	out := &BulkOutcome{Action: req.Action, Results: results}
	for _, r := range results {
		switch r.Result {
		case ResultAdvanced:
			out.Advanced++
		case ResultPending:
			out.Pending++
		default:
			out.Failed++
		}
	}

	s.refreshQueues(ctx, models.ConsoleQueues...)
	return out, nil
}

// uniqueIDs drops blanks and repeats, keeping first-seen order.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
