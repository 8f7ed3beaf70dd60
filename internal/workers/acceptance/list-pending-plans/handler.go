package listpendingplans

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"payplan-workers/internal/common/errors"
	"payplan-workers/internal/common/logger"
	"payplan-workers/internal/common/metrics"
	"payplan-workers/internal/console"
	"payplan-workers/internal/models"
)

const TaskType = "list-pending-plans"

// QueueReader is the console read model.
type QueueReader interface {
	ListPending(ctx context.Context, queue models.ConsoleQueue, filters models.ConsoleFilters) (*console.Page, error)
	QueueCounts(ctx context.Context, filters models.ConsoleFilters) (map[models.ConsoleQueue]int, error)
}

type Handler struct {
	config       *Config
	reader       QueueReader
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(cfg *Config, reader QueueReader, log logger.Logger) (*Handler, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	scoped := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       cfg,
		reader:       reader,
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
	page, err := h.reader.ListPending(ctx, input.Queue, input.Filters)
	if err != nil {
		return nil, err
	}

	out := &Output{
		Plans:  page.Plans,
		Total:  page.Total,
		Offset: page.Offset,
		Limit:  page.Limit,
	}
	if out.Plans == nil {
		out.Plans = []models.PlanSummary{}
	}

	if input.IncludeCounts {
		// counts are badges; a failure here does not hide the listing
		counts, err := h.reader.QueueCounts(ctx, input.Filters)
		if err != nil {
			h.logger.Warn("queue counts unavailable", map[string]interface{}{"error": err.Error()})
		} else {
			out.Counts = counts
		}
	}

	h.logger.Debug("queue listed", map[string]interface{}{
		"queue": string(input.Queue),
		"total": out.Total,
		"page":  len(out.Plans),
	})
	return out, nil
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
