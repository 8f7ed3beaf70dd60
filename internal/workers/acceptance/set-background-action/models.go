package setbackgroundaction

import "payplan-workers/internal/models"

// Input carries either a background status to set (empty clears it) or a
// PREPARE/PREPARED action, never both.
type Input struct {
	PlanID                 string  `json:"planId"`
	BackgroundActionStatus *string `json:"backgroundActionStatus,omitempty"`
	Action                 string  `json:"action,omitempty"`
}

type Output struct {
	PlanID                 string                        `json:"planId"`
	Status                 models.PlanStatus             `json:"status"`
	BackgroundActionStatus models.BackgroundActionStatus `json:"backgroundActionStatus"`
}
