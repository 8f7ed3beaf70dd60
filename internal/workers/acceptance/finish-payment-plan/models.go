package finishpaymentplan

import "payplan-workers/internal/models"

type Input struct {
	PlanID string `json:"planId"`
}

type Output struct {
	PlanID         string            `json:"planId"`
	PreviousStatus models.PlanStatus `json:"previousStatus"`
	Status         models.PlanStatus `json:"status"`
}
