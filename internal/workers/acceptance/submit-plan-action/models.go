package submitplanaction

import (
	"payplan-workers/internal/acceptance"
	"payplan-workers/internal/models"
)

type Input struct {
	PlanID      string `json:"planId"`
	Action      string `json:"action"`
	Comment     string `json:"comment,omitempty"`
	Chunks      int    `json:"chunks,omitempty"`
	AccessToken string `json:"accessToken"`

	action models.Action
}

// Output is written to the process as a single planAction variable.
type Output struct {
	PlanAction acceptance.Outcome `json:"planAction"`
}
