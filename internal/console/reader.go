package console

import (
	"context"

	"payplan-workers/internal/common/logger"
	"payplan-workers/internal/models"
)

// Searcher is the read model queried by the console.
type Searcher interface {
	Search(ctx context.Context, queue models.ConsoleQueue, filters models.ConsoleFilters) (*Page, error)
	Count(ctx context.Context, queue models.ConsoleQueue, filters models.ConsoleFilters) (int, error)
}

// Reader answers console queue listings and badge counts.
type Reader struct {
	index  Searcher
	cache  *CountCache
	logger logger.Logger
}

// NewReader builds a reader. cache may be nil.
func NewReader(index Searcher, cache *CountCache, log logger.Logger) *Reader {
	return &Reader{
		index:  index,
		cache:  cache,
		logger: log.WithFields(map[string]interface{}{"component": "console-reader"}),
	}
}

func (r *Reader) ListPending(ctx context.Context, queue models.ConsoleQueue, filters models.ConsoleFilters) (*Page, error) {
	return r.index.Search(ctx, queue, filters)
}

// QueueCounts returns the size of every console queue under filters.
// Cache failures fall through to the index.
func (r *Reader) QueueCounts(ctx context.Context, filters models.ConsoleFilters) (map[models.ConsoleQueue]int, error) {
	counts := make(map[models.ConsoleQueue]int, len(models.ConsoleQueues))
	for _, q := range models.ConsoleQueues {
		if r.cache != nil {
			n, ok, err := r.cache.Get(ctx, q, filters)
			if err != nil {
				r.logger.Warn("count cache read failed", map[string]interface{}{"queue": q, "error": err.Error()})
			}
			if ok {
				counts[q] = n
				continue
			}
		}

		n, err := r.index.Count(ctx, q, filters)
		if err != nil {
			return nil, err
		}
		counts[q] = n

		if r.cache != nil {
			if err := r.cache.Set(ctx, q, filters, n); err != nil {
				r.logger.Warn("count cache write failed", map[string]interface{}{"queue": q, "error": err.Error()})
			}
		}
	}
	return counts, nil
}
