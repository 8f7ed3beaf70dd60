package console

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"payplan-workers/internal/common/errors"
	"payplan-workers/internal/common/logger"
	"payplan-workers/internal/models"
)

const DefaultIndex = "payment-plans"

// ElasticIndex is the console read model backed by Elasticsearch.
type ElasticIndex struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewElasticIndex(client *elasticsearch.Client, index string, log logger.Logger) *ElasticIndex {
	if index == "" {
		index = DefaultIndex
	}
	return &ElasticIndex{
		client: client,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "console-index", "index": index}),
	}
}

// EnsureIndex creates the index with its mapping when it does not exist.
func (e *ElasticIndex) EnsureIndex(ctx context.Context) error {
	res, err := esapi.IndicesExistsRequest{Index: []string{e.index}}.Do(ctx, e.client)
	if err != nil {
		return errors.NewSearchQueryFailedError("index_exists", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	body, err := json.Marshal(indexMapping)
	if err != nil {
		return errors.NewSearchQueryFailedError("index_create", err)
	}
	res, err = esapi.IndicesCreateRequest{Index: e.index, Body: bytes.NewReader(body)}.Do(ctx, e.client)
	if err != nil {
		return errors.NewSearchQueryFailedError("index_create", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return errors.NewSearchQueryFailedError("index_create", responseError(res))
	}
	e.logger.Info("console index created", nil)
	return nil
}

// IndexPlan upserts the summary document for a plan.
func (e *ElasticIndex) IndexPlan(ctx context.Context, summary models.PlanSummary) error {
	body, err := json.Marshal(summary)
	if err != nil {
		return errors.NewSearchQueryFailedError("index", err)
	}

	res, err := esapi.IndexRequest{
		Index:      e.index,
		DocumentID: summary.ID,
		Body:       bytes.NewReader(body),
	}.Do(ctx, e.client)
	if err != nil {
		return errors.NewSearchQueryFailedError("index", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.NewSearchQueryFailedError("index", responseError(res))
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string             `json:"_id"`
			Source models.PlanSummary `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search lists one page of a console queue.
func (e *ElasticIndex) Search(ctx context.Context, queue models.ConsoleQueue, filters models.ConsoleFilters) (*Page, error) {
	status, f, err := normalizeFilters(queue, filters)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(buildSearchBody(status, f))
	if err != nil {
		return nil, errors.NewSearchQueryFailedError("search", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(e.index),
		e.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, errors.NewSearchQueryFailedError("search", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, errors.NewSearchQueryFailedError("search", responseError(res))
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, errors.NewSearchQueryFailedError("search", fmt.Errorf("decode response: %w", err))
	}

	page := &Page{
		Plans:  make([]models.PlanSummary, 0, len(parsed.Hits.Hits)),
		Total:  parsed.Hits.Total.Value,
		Offset: f.Offset,
		Limit:  f.Limit,
	}
	for _, hit := range parsed.Hits.Hits {
		s := hit.Source
		if s.ID == "" {
			s.ID = hit.ID
		}
		page.Plans = append(page.Plans, s)
	}
	return page, nil
}

// Count returns the number of plans in a queue.
func (e *ElasticIndex) Count(ctx context.Context, queue models.ConsoleQueue, filters models.ConsoleFilters) (int, error) {
	status, f, err := normalizeFilters(queue, filters)
	if err != nil {
		return 0, err
	}

	body, err := json.Marshal(map[string]interface{}{"query": buildQueueQuery(status, f)})
	if err != nil {
		return 0, errors.NewSearchQueryFailedError("count", err)
	}

	res, err := e.client.Count(
		e.client.Count.WithContext(ctx),
		e.client.Count.WithIndex(e.index),
		e.client.Count.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return 0, errors.NewSearchQueryFailedError("count", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, errors.NewSearchQueryFailedError("count", responseError(res))
	}

	var parsed struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, errors.NewSearchQueryFailedError("count", fmt.Errorf("decode response: %w", err))
	}
	return parsed.Count, nil
}

func responseError(res *esapi.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return fmt.Errorf("elasticsearch %s: %s", res.Status(), bytes.TrimSpace(raw))
}
