package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Classification
// ==========================

func TestCodeOfAndTransient(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      ErrorCode
		transient bool
	}{
		{"illegal transition", NewIllegalTransitionError("PP-1", "OPEN", "APPROVE", ""), ErrCodeIllegalTransition, false},
		{"plan busy", NewPlanBusyError("PP-1", "RULE_ENGINE_RUNNING"), ErrCodePlanBusy, true},
		{"storage", NewStorageFailureError("PP-1", "save", errors.New("conn reset")), ErrCodeStorageFailure, true},
		{"identity", NewIdentityUnavailableError(errors.New("timeout")), ErrCodeIdentityUnavailable, true},
		{"wrapped", fmt.Errorf("submit: %w", NewDuplicateActionError("PP-1", "u-1", "APPROVAL")), ErrCodeDuplicateAction, false},
		{"plain error", errors.New("boom"), ErrCodeInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, CodeOf(tt.err))
			assert.Equal(t, tt.transient, IsTransient(tt.err))
		})
	}
}

func TestStandardError_IsMatchesCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewPlanBusyError("PP-1", "XLSX_EXPORTING"))

	assert.True(t, errors.Is(err, ErrPlanBusy))
	assert.False(t, errors.Is(err, ErrConflict))
}

func TestWithPlanCopies(t *testing.T) {
	orig := NewPermissionDeniedError("", "missing capability")
	bound := orig.WithPlan("PP-7")

	assert.Equal(t, "PP-7", bound.PlanID)
	assert.Empty(t, orig.PlanID)
	assert.Contains(t, bound.Error(), "(plan PP-7)")
}

// ==========================
// BPMN conversion
// ==========================

func TestConvertToBPMNError(t *testing.T) {
	t.Run("terminal error has no retries", func(t *testing.T) {
		bpmn := ConvertToBPMNError(NewIllegalTransitionError("PP-1", "IN_REVIEW", "FINISH", "plan is not accepted"))

		assert.Equal(t, "ILLEGAL_TRANSITION", bpmn.Code)
		assert.Equal(t, 0, bpmn.Retries)
		assert.False(t, bpmn.Retryable)

		vars := bpmn.ToErrorVariables()
		assert.Equal(t, "PP-1", vars["planId"])
		assert.Equal(t, "ILLEGAL_TRANSITION", vars["originalErrorCode"])
	})

	t.Run("version conflict maps to shared conflict code", func(t *testing.T) {
		bpmn := ConvertToBPMNError(NewVersionConflictError("PP-1", 4))

		assert.Equal(t, "CONFLICT", bpmn.Code)
		assert.Equal(t, 2, bpmn.Retries)
	})

	t.Run("non retryable external error gets no retries", func(t *testing.T) {
		bpmn := ConvertToBPMNError(NewExternalServiceError("zeebe", errors.New("bad request"), false))

		assert.Equal(t, "EXTERNAL_SERVICE_ERROR", bpmn.Code)
		assert.Equal(t, 0, bpmn.Retries)
	})

	t.Run("parse errors surface as validation", func(t *testing.T) {
		bpmn := ConvertToBPMNError(NewParseError(errors.New("unexpected end of JSON input")))
		require.NotNil(t, bpmn)
		assert.Equal(t, "VALIDATION_ERROR", bpmn.Code)
		assert.NotContains(t, bpmn.ErrorVariables, "planId")
	})
}

func TestGetErrorCategory(t *testing.T) {
	tests := map[ErrorCode]string{
		ErrCodePermissionDenied:       "AUTH",
		ErrCodeIdentityUnavailable:    "AUTH",
		ErrCodeIllegalTransition:      "WORKFLOW",
		ErrCodePlanBusy:               "WORKFLOW",
		ErrCodeVersionConflict:        "CONCURRENCY",
		ErrCodePlanNotFound:           "DATABASE",
		ErrCodeSearchQueryFailed:      "SEARCH",
		ErrCodeNotificationSendFailed: "NOTIFICATION",
		ErrCodeParse:                  "VALIDATION",
		ErrCodeInternal:               "OTHER",
	}
	for code, want := range tests {
		assert.Equal(t, want, GetErrorCategory(code), string(code))
	}
}

// ==========================
// Job error handler
// ==========================

func TestRetriesLeft(t *testing.T) {
	tests := []struct {
		name       string
		err        *StandardError
		jobRetries int32
		want       int32
		ok         bool
	}{
		{name: "storage failure keeps its budget", err: NewStorageFailureError("p", "save", fmt.Errorf("boom")), jobRetries: 5, want: 3, ok: true},
		{name: "capped by job retries", err: NewStorageFailureError("p", "save", fmt.Errorf("boom")), jobRetries: 2, want: 1, ok: true},
		{name: "last attempt is thrown", err: NewStorageFailureError("p", "save", fmt.Errorf("boom")), jobRetries: 1, ok: false},
		{name: "busy plan retries twice", err: NewPlanBusyError("p", "RULE_ENGINE_RUNNING"), jobRetries: 3, want: 2, ok: true},
		{name: "business error is thrown", err: NewIllegalTransitionError("p", "OPEN", "APPROVE", ""), jobRetries: 3, ok: false},
		{name: "retryable flag off is thrown", err: &StandardError{Code: ErrCodeStorageFailure}, jobRetries: 3, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := retriesLeft(tt.err, tt.jobRetries)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestErrorVariables(t *testing.T) {
	bpmnErr := ConvertToBPMNError(NewPlanNotFoundError("PP-9"))
	raw := errorVariables(bpmnErr)
	require.NotEmpty(t, raw)
	assert.Contains(t, raw, `"errorCode":"`+bpmnErr.Code+`"`)
	assert.Contains(t, raw, `"retryable":false`)
}

func TestToStandardWrapsPlainErrors(t *testing.T) {
	got := toStandard(errors.New("disk on fire"))
	assert.Equal(t, ErrCodeInternal, got.Code)
	assert.Equal(t, "disk on fire", got.Details)
	assert.False(t, got.Retryable)

	busy := NewPlanBusyError("PP-1", "RULE_ENGINE_RUNNING")
	assert.Same(t, busy, toStandard(fmt.Errorf("wrapped: %w", busy)))
}
