// Package store persists payment plans and their approval ledger.
package store

import (
	"fmt"

	"payplan-workers/internal/common/errors"
	"payplan-workers/internal/models"
)

// validatePlan checks the invariants a stored plan must always satisfy.
func validatePlan(p *models.PaymentPlan) error {
	if p == nil || p.ID == "" {
		return errors.NewValidationError("", "plan id is required")
	}
	if !p.Status.IsValid() {
		return errors.NewValidationError(p.ID, fmt.Sprintf("unknown status %q", p.Status))
	}
	if p.ApprovalNumberRequired < 1 || p.AuthorizationNumberRequired < 1 || p.FinanceReleaseNumberRequired < 1 {
		return errors.NewValidationError(p.ID, "required sign-off counts must be positive")
	}
	if p.IsFollowUp && p.SourcePlanID == "" {
		return errors.NewValidationError(p.ID, "follow-up plans must reference a source plan")
	}
	return nil
}
