package submitbulkplanaction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"payplan-workers/internal/acceptance"
	"payplan-workers/internal/common/auth"
	"payplan-workers/internal/common/errors"
	"payplan-workers/internal/common/logger"
	"payplan-workers/internal/common/metrics"
	"payplan-workers/internal/models"
)

const TaskType = "submit-bulk-plan-action"

type BulkSubmitter interface {
	SubmitBulkAction(ctx context.Context, req acceptance.BulkRequest) (*acceptance.BulkOutcome, error)
}

type Handler struct {
	config       *Config
	service      BulkSubmitter
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(cfg *Config, service BulkSubmitter, log logger.Logger) (*Handler, error) {
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

// Execute applies the action to every plan. Per-plan failures are reported
// in the output; only request-level failures fail the job.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	ctx = auth.WithAccessToken(ctx, input.AccessToken)

	outcome, err := h.service.SubmitBulkAction(ctx, acceptance.BulkRequest{
		PlanIDs: input.PlanIDs,
		Action:  input.action,
		Comment: input.Comment,
	})
	if err != nil {
		return nil, err
	}

	if outcome.Failed > 0 {
		h.logger.Warn("bulk action partially failed", map[string]interface{}{
			"action": string(outcome.Action),
			"failed": outcome.Failed,
			"plans":  len(outcome.Results),
		})
	}
	return &Output{BulkAction: *outcome}, nil
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

	action, ok := models.ParseAction(input.Action)
	if !ok || !action.IsBulk() {
		return nil, errors.NewValidationError("", fmt.Sprintf("action %q cannot be applied in bulk", input.Action))
	}
	input.action = action
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
