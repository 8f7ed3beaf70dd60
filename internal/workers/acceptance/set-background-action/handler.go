package setbackgroundaction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"payplan-workers/internal/acceptance"
	"payplan-workers/internal/common/errors"
	"payplan-workers/internal/common/logger"
	"payplan-workers/internal/common/metrics"
	"payplan-workers/internal/models"
)

const TaskType = "set-background-action"

type BackgroundService interface {
	SetBackgroundAction(ctx context.Context, planID string, status models.BackgroundActionStatus) (*models.PaymentPlan, error)
	ApplySystemAction(ctx context.Context, planID string, action models.Action) (*acceptance.Outcome, error)
	Plan(ctx context.Context, planID string) (*models.PaymentPlan, error)
}

type Handler struct {
	config       *Config
	service      BackgroundService
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(cfg *Config, service BackgroundService, log logger.Logger) (*Handler, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	scoped := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       cfg,
		service:      service,
		errorHandler: errors.NewErrorHandler(scoped),
		logger:       scoped,
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	input, err := h.parseInput(job)
	if err != nil {
		h.failJob(ctx, client, job, err)
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.failJob(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input.Action != "" {
		return h.applyPreparation(ctx, input.PlanID, models.Action(input.Action))
	}

	plan, err := h.service.SetBackgroundAction(ctx, input.PlanID, models.BackgroundActionStatus(*input.BackgroundActionStatus))
	if err != nil {
		return nil, err
	}
	h.logger.Info("background action updated", map[string]interface{}{
		"planId":           plan.ID,
		"backgroundAction": string(plan.BackgroundActionStatus),
	})
	return &Output{
		PlanID:                 plan.ID,
		Status:                 plan.Status,
		BackgroundActionStatus: plan.BackgroundActionStatus,
	}, nil
}

// applyPreparation moves the plan into PREPARING or back to the status it
// came from.
func (h *Handler) applyPreparation(ctx context.Context, planID string, action models.Action) (*Output, error) {
	outcome, err := h.service.ApplySystemAction(ctx, planID, action)
	if err != nil {
		return nil, err
	}
	plan, err := h.service.Plan(ctx, planID)
	if err != nil {
		return nil, err
	}
	h.logger.Info("plan preparation updated", map[string]interface{}{
		"planId":         planID,
		"action":         string(action),
		"previousStatus": string(outcome.PreviousStatus),
		"status":         string(outcome.Status),
	})
	return &Output{
		PlanID:                 planID,
		Status:                 outcome.Status,
		BackgroundActionStatus: plan.BackgroundActionStatus,
	}, nil
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	raw := []byte(job.GetVariables())

	if result := inputValidator.Validate(raw); !result.Valid {
		return nil, errors.NewValidationError("", "input validation failed: "+strings.Join(result.GetErrorMessages(), "; "))
	}

	var input Input
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, errors.NewParseError(err)
	}

	hasStatus := input.BackgroundActionStatus != nil
	if hasStatus == (input.Action != "") {
		return nil, errors.NewValidationError(input.PlanID, "exactly one of backgroundActionStatus or action is required")
	}
	return &input, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	request, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		return
	}

	if _, err := request.Send(ctx); err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
	}
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.CodeOf(err))).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, err)
}
