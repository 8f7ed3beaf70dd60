package errors

import (
	"context"
	"encoding/json"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// ErrorHandler turns a failed job into a Zeebe fail or throw-error command.
type ErrorHandler struct {
	logger Logger
}

// Logger is the part of logger.Logger the handler writes to.
type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleJobError resolves err to a StandardError. A retryable code with
// attempts left fails the job so Zeebe redelivers it. Anything else is thrown
// as a BPMN error for the process model to catch.
func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := toStandard(err)
	bpmnErr := ConvertToBPMNError(stdErr)
	h.logError(job, stdErr, bpmnErr)

	vars := errorVariables(bpmnErr)
	if left, ok := retriesLeft(stdErr, job.Retries); ok {
		h.failJob(ctx, client, job, bpmnErr, left, vars)
		return
	}
	h.throwError(ctx, client, job, bpmnErr, vars)
}

func toStandard(err error) *StandardError {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Timestamp: time.Now().UTC(),
	}
}

// retriesLeft caps the code's retry budget by what the job still has after
// the current attempt.
func retriesLeft(stdErr *StandardError, jobRetries int32) (int32, bool) {
	if !stdErr.Retryable {
		return 0, false
	}
	budget := int32(GetRetryCount(stdErr.Code))
	remaining := jobRetries - 1
	if budget <= 0 || remaining <= 0 {
		return 0, false
	}
	if remaining < budget {
		return remaining, true
	}
	return budget, true
}

// errorVariables is the JSON attached to fail and throw commands, or "" when
// there is nothing to attach.
func errorVariables(bpmnErr *BPMNError) string {
	vars := bpmnErr.ToErrorVariables()
	if len(vars) == 0 {
		return ""
	}
	raw, err := json.Marshal(vars)
	if err != nil {
		return ""
	}
	return string(raw)
}

func (h *ErrorHandler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError, retries int32, vars string) {
	cmd := client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(retries).
		ErrorMessage(bpmnErr.Message)

	if vars != "" {
		if withVars, err := cmd.VariablesFromString(vars); err == nil {
			if _, err := withVars.Send(ctx); err != nil {
				h.logSendFailure(job, "fail", err)
			}
			return
		}
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logSendFailure(job, "fail", err)
	}
}

func (h *ErrorHandler) throwError(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError, vars string) {
	cmd := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(bpmnErr.Code).
		ErrorMessage(bpmnErr.Message)

	if vars != "" {
		if withVars, err := cmd.VariablesFromString(vars); err == nil {
			if _, err := withVars.Send(ctx); err != nil {
				h.logSendFailure(job, "throw", err)
			}
			return
		}
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logSendFailure(job, "throw", err)
	}
}

func (h *ErrorHandler) logSendFailure(job entities.Job, command string, err error) {
	h.logger.Error("Failed to report job error", map[string]interface{}{
		"jobKey":  job.Key,
		"jobType": job.Type,
		"command": command,
		"error":   err.Error(),
	})
}

func (h *ErrorHandler) logError(job entities.Job, stdErr *StandardError, bpmnErr *BPMNError) {
	h.logger.Error("Job failed", map[string]interface{}{
		"jobKey":           job.Key,
		"jobType":          job.Type,
		"errorCode":        string(stdErr.Code),
		"bpmnErrorCode":    bpmnErr.Code,
		"message":          bpmnErr.Message,
		"details":          stdErr.Details,
		"retryable":        stdErr.Retryable,
		"retries":          GetRetryCount(stdErr.Code),
		"errorCategory":    GetErrorCategory(stdErr.Code),
		"planId":           stdErr.PlanID,
		"workflowInstance": job.ProcessInstanceKey,
	})
}
