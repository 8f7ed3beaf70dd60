package listpendingplans

import "payplan-workers/internal/models"

type Input struct {
	Queue         models.ConsoleQueue   `json:"queue"`
	Filters       models.ConsoleFilters `json:"filters"`
	IncludeCounts bool                  `json:"includeCounts,omitempty"`
}

type Output struct {
	Plans  []models.PlanSummary        `json:"plans"`
	Total  int                         `json:"total"`
	Offset int                         `json:"offset"`
	Limit  int                         `json:"limit"`
	Counts map[models.ConsoleQueue]int `json:"counts,omitempty"`
}
