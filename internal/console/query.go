// Package console serves the managerial console work queues: the
// Elasticsearch read model, a Redis count cache and the refresh signal.
package console

import (
	"payplan-workers/internal/common/errors"
	"payplan-workers/internal/models"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Page is one slice of a queue listing.
type Page struct {
	Plans  []models.PlanSummary `json:"plans"`
	Total  int                  `json:"total"`
	Offset int                  `json:"offset"`
	Limit  int                  `json:"limit"`
}

// normalizeFilters validates the queue and clamps paging.
func normalizeFilters(queue models.ConsoleQueue, f models.ConsoleFilters) (models.PlanStatus, models.ConsoleFilters, error) {
	status, ok := queue.Status()
	if !ok {
		return "", f, errors.NewValidationError("", "unknown console queue: "+string(queue))
	}
	if f.Offset < 0 {
		return "", f, errors.NewValidationError("", "offset must not be negative")
	}
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	return status, f, nil
}

// buildQueueQuery returns the bool query selecting a queue's plans.
func buildQueueQuery(status models.PlanStatus, f models.ConsoleFilters) map[string]interface{} {
	filters := []interface{}{
		map[string]interface{}{"term": map[string]interface{}{"status": string(status)}},
	}
	if f.ProgramID != "" {
		filters = append(filters, map[string]interface{}{"term": map[string]interface{}{"programId": f.ProgramID}})
	}
	if f.BusinessArea != "" {
		filters = append(filters, map[string]interface{}{"term": map[string]interface{}{"businessArea": f.BusinessArea}})
	}

	boolQuery := map[string]interface{}{"filter": filters}
	if f.Search != "" {
		boolQuery["must"] = []interface{}{
			map[string]interface{}{
				"multi_match": map[string]interface{}{
					"query":  f.Search,
					"fields": []string{"id", "programId", "businessArea", "lastApprovalProcessBy"},
					"type":   "bool_prefix",
				},
			},
		}
	}
	return map[string]interface{}{"bool": boolQuery}
}

func buildSearchBody(status models.PlanStatus, f models.ConsoleFilters) map[string]interface{} {
	return map[string]interface{}{
		"query": buildQueueQuery(status, f),
		"from":  f.Offset,
		"size":  f.Limit,
		"sort": []interface{}{
			map[string]interface{}{"updatedAt": map[string]interface{}{"order": "desc"}},
			map[string]interface{}{"id": map[string]interface{}{"order": "asc"}},
		},
		"track_total_hits": true,
	}
}

// indexMapping keeps identifiers exact so term filters match.
var indexMapping = map[string]interface{}{
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"id":                      map[string]interface{}{"type": "keyword"},
			"status":                  map[string]interface{}{"type": "keyword"},
			"programId":               map[string]interface{}{"type": "keyword"},
			"businessArea":            map[string]interface{}{"type": "keyword"},
			"isFollowUp":              map[string]interface{}{"type": "boolean"},
			"rejectedOn":              map[string]interface{}{"type": "keyword"},
			"backgroundActionStatus":  map[string]interface{}{"type": "keyword"},
			"availableActions":        map[string]interface{}{"type": "keyword"},
			"lastApprovalProcessBy":   map[string]interface{}{"type": "keyword"},
			"lastApprovalProcessDate": map[string]interface{}{"type": "date"},
			"approvalCount":           map[string]interface{}{"type": "integer"},
			"authorizationCount":      map[string]interface{}{"type": "integer"},
			"financeReleaseCount":     map[string]interface{}{"type": "integer"},
			"updatedAt":               map[string]interface{}{"type": "date"},
		},
	},
}
