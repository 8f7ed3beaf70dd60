package camunda

import (
	"sync"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"payplan-workers/internal/common/logger"
)

// WorkerOptions configures one job worker.
type WorkerOptions struct {
	Enabled       bool
	MaxJobsActive int
	Concurrency   int
	Timeout       time.Duration
	Name          string
}

// Workers opens job workers against one Zeebe client and closes them together.
type Workers struct {
	client zbc.Client
	logger logger.Logger

	mu      sync.Mutex
	workers map[string]worker.JobWorker
}

func NewWorkers(client zbc.Client, log logger.Logger) *Workers {
	return &Workers{
		client:  client,
		logger:  log,
		workers: make(map[string]worker.JobWorker),
	}
}

// Start opens a worker for taskType. Disabled workers are skipped and
// reported as false.
func (w *Workers) Start(taskType string, opts WorkerOptions, handler worker.JobHandler) bool {
	if !opts.Enabled {
		w.logger.Info("worker disabled", map[string]interface{}{"taskType": taskType})
		return false
	}
	if opts.MaxJobsActive <= 0 {
		opts.MaxJobsActive = worker.DefaultJobWorkerMaxJobActive
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = worker.DefaultJobWorkerConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = commands.DefaultJobTimeout
	}

	step := w.client.NewJobWorker().
		JobType(taskType).
		Handler(handler).
		MaxJobsActive(opts.MaxJobsActive).
		Concurrency(opts.Concurrency).
		Timeout(opts.Timeout)
	if opts.Name != "" {
		step = step.Name(opts.Name)
	}

	jobWorker := step.Open()

	w.mu.Lock()
	if prev, ok := w.workers[taskType]; ok {
		prev.Close()
	}
	w.workers[taskType] = jobWorker
	w.mu.Unlock()

	w.logger.Info("worker started", map[string]interface{}{
		"taskType":      taskType,
		"maxJobsActive": opts.MaxJobsActive,
		"concurrency":   opts.Concurrency,
		"timeout_ms":    opts.Timeout.Milliseconds(),
	})
	return true
}

// Running lists the task types with an open worker.
func (w *Workers) Running() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.workers))
	for taskType := range w.workers {
		out = append(out, taskType)
	}
	return out
}

// Close stops every worker and waits for in-flight jobs.
func (w *Workers) Close() {
	w.mu.Lock()
	workers := w.workers
	w.workers = make(map[string]worker.JobWorker)
	w.mu.Unlock()

	for taskType, jw := range workers {
		jw.Close()
		jw.AwaitClose()
		w.logger.Info("worker stopped", map[string]interface{}{"taskType": taskType})
	}
}
