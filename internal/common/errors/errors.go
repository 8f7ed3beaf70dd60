// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Acceptance workflow errors
const (
	ErrCodeIllegalTransition ErrorCode = "ILLEGAL_TRANSITION"
	ErrCodeDuplicateAction   ErrorCode = "DUPLICATE_ACTION"
	ErrCodePermissionDenied  ErrorCode = "PERMISSION_DENIED"
	ErrCodePlanBusy          ErrorCode = "PLAN_BUSY"
	ErrCodeVersionConflict   ErrorCode = "VERSION_CONFLICT"
	ErrCodeConflict          ErrorCode = "CONFLICT"
	ErrCodeValidation        ErrorCode = "VALIDATION_ERROR"
	ErrCodePlanNotFound      ErrorCode = "PLAN_NOT_FOUND"

	ErrCodeStorageFailure      ErrorCode = "STORAGE_FAILURE"
	ErrCodeSearchQueryFailed   ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeParse               ErrorCode = "PARSE_ERROR"
	ErrCodeIdentityUnavailable ErrorCode = "IDENTITY_UNAVAILABLE"

	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeExternalService        ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeInternal               ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	PlanID    string                 `json:"planId,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	if e.PlanID != "" {
		return fmt.Sprintf("StandardError[%s]: %s (plan %s)", e.Code, e.Message, e.PlanID)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Is matches on error code so callers can write errors.Is(err, errors.ErrPlanBusy).
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithPlan returns a copy of the error bound to planID.
func (e *StandardError) WithPlan(planID string) *StandardError {
	cp := *e
	cp.PlanID = planID
	return &cp
}

// Sentinels for errors.Is comparisons.
var (
	ErrIllegalTransition = &StandardError{Code: ErrCodeIllegalTransition}
	ErrDuplicateAction   = &StandardError{Code: ErrCodeDuplicateAction}
	ErrPermissionDenied  = &StandardError{Code: ErrCodePermissionDenied}
	ErrPlanBusy          = &StandardError{Code: ErrCodePlanBusy}
	ErrVersionConflict   = &StandardError{Code: ErrCodeVersionConflict}
	ErrConflict          = &StandardError{Code: ErrCodeConflict}
	ErrValidation        = &StandardError{Code: ErrCodeValidation}
	ErrPlanNotFound      = &StandardError{Code: ErrCodePlanNotFound}
)

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	for k, v := range e.ErrorVariables {
		vars[k] = v
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewIllegalTransitionError creates a non-retryable error for an action the
// plan's current status does not allow.
func NewIllegalTransitionError(planID, status, action, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeIllegalTransition,
		Message:   fmt.Sprintf("action %s is not allowed in status %s", action, status),
		Details:   details,
		PlanID:    planID,
		Retryable: false,
		Metadata:  map[string]interface{}{"status": status, "action": action},
		Timestamp: time.Now().UTC(),
	}
}

// NewDuplicateActionError creates a non-retryable error for a repeated sign-off.
func NewDuplicateActionError(planID, actorID, kind string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDuplicateAction,
		Message:   "actor has already signed off in this cycle",
		Details:   fmt.Sprintf("actor: %s, kind: %s", actorID, kind),
		PlanID:    planID,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPermissionDeniedError creates a non-retryable authorization error.
func NewPermissionDeniedError(planID, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodePermissionDenied,
		Message:   "Permission denied",
		Details:   details,
		PlanID:    planID,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPlanBusyError creates a retryable error for plans with a running background action.
func NewPlanBusyError(planID, backgroundStatus string) *StandardError {
	return &StandardError{
		Code:      ErrCodePlanBusy,
		Message:   "plan has a background action in progress",
		Details:   fmt.Sprintf("backgroundActionStatus: %s", backgroundStatus),
		PlanID:    planID,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewVersionConflictError is returned by stores when the expected version no longer matches.
func NewVersionConflictError(planID string, expected int64) *StandardError {
	return &StandardError{
		Code:      ErrCodeVersionConflict,
		Message:   "plan was modified concurrently",
		Details:   fmt.Sprintf("expectedVersion: %d", expected),
		PlanID:    planID,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewConflictError creates a retryable error once version conflicts exhaust their retries.
func NewConflictError(planID, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConflict,
		Message:   "could not apply action because of concurrent modification",
		Details:   details,
		PlanID:    planID,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationError creates a non-retryable input validation error.
func NewValidationError(planID, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidation,
		Message:   "Input validation failed",
		Details:   details,
		PlanID:    planID,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPlanNotFoundError creates a non-retryable lookup error.
func NewPlanNotFoundError(planID string) *StandardError {
	return &StandardError{
		Code:      ErrCodePlanNotFound,
		Message:   "Payment plan not found",
		PlanID:    planID,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStorageFailureError creates a retryable database error.
func NewStorageFailureError(planID, operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStorageFailure,
		Message:   "Database operation failed",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		PlanID:    planID,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSearchQueryFailedError creates a retryable search query error.
func NewSearchQueryFailedError(queryType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchQueryFailed,
		Message:   "Elasticsearch query error",
		Details:   fmt.Sprintf("queryType: %s, error: %s", queryType, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewParseError creates a non-retryable job payload error.
func NewParseError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeParse,
		Message:   "Failed to parse job variables",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewIdentityUnavailableError creates a retryable error when the identity provider cannot be reached.
func NewIdentityUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeIdentityUnavailable,
		Message:   "Identity provider unavailable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationSendFailedError creates a retryable notification send error.
func NewNotificationSendFailedError(notificationType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   "Notification delivery failed",
		Details:   fmt.Sprintf("type: %s, error: %s", notificationType, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewExternalServiceError wraps a failure of a downstream service.
func NewExternalServiceError(service string, err error, retryable bool) *StandardError {
	return &StandardError{
		Code:      ErrCodeExternalService,
		Message:   fmt.Sprintf("%s request failed", service),
		Details:   err.Error(),
		Retryable: retryable,
		Metadata:  map[string]interface{}{"service": service},
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to the error codes caught by
// boundary events in the acceptance process models.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeIllegalTransition:   "ILLEGAL_TRANSITION",
	ErrCodeDuplicateAction:     "DUPLICATE_ACTION",
	ErrCodePermissionDenied:    "PERMISSION_DENIED",
	ErrCodePlanBusy:            "PLAN_BUSY",
	ErrCodeVersionConflict:     "CONFLICT",
	ErrCodeConflict:            "CONFLICT",
	ErrCodeValidation:          "VALIDATION_ERROR",
	ErrCodePlanNotFound:        "PLAN_NOT_FOUND",
	ErrCodeStorageFailure:      "STORAGE_FAILURE",
	ErrCodeSearchQueryFailed:   "SEARCH_QUERY_FAILED",
	ErrCodeParse:               "VALIDATION_ERROR",
	ErrCodeIdentityUnavailable: "IDENTITY_UNAVAILABLE",
}

// GetRetryCount returns the recommended job retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeStorageFailure,
		ErrCodeSearchQueryFailed,
		ErrCodeIdentityUnavailable,
		ErrCodeNotificationSendFailed,
		ErrCodeExternalService:
		return 3

	case ErrCodePlanBusy,
		ErrCodeConflict,
		ErrCodeVersionConflict:
		return 2

	default:
		return 0 // Business errors: no retry
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	if stdErr.PlanID != "" {
		vars["planId"] = stdErr.PlanID
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// AsStandard unwraps err into a StandardError, if it holds one.
func AsStandard(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// CodeOf returns the error code carried by err, or INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// IsTransient reports whether err may succeed when retried.
func IsTransient(err error) bool {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr.Retryable
	}
	return false
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "PERMISSION") || strings.Contains(codeStr, "IDENTITY"):
		return "AUTH"
	case strings.Contains(codeStr, "TRANSITION") || strings.Contains(codeStr, "DUPLICATE") || strings.Contains(codeStr, "BUSY"):
		return "WORKFLOW"
	case strings.Contains(codeStr, "CONFLICT"):
		return "CONCURRENCY"
	case strings.Contains(codeStr, "STORAGE") || strings.Contains(codeStr, "NOT_FOUND"):
		return "DATABASE"
	case strings.Contains(codeStr, "SEARCH"):
		return "SEARCH"
	case strings.Contains(codeStr, "NOTIFICATION") || strings.Contains(codeStr, "EXTERNAL"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "PARSE"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
