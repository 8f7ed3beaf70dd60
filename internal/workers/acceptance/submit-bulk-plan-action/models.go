package submitbulkplanaction

import (
	"payplan-workers/internal/acceptance"
	"payplan-workers/internal/models"
)

type Input struct {
	PlanIDs     []string `json:"planIds"`
	Action      string   `json:"action"`
	Comment     string   `json:"comment,omitempty"`
	AccessToken string   `json:"accessToken"`

	action models.Action
}

type Output struct {
	BulkAction acceptance.BulkOutcome `json:"bulkAction"`
}
