package camunda

import (
	"testing"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/stretchr/testify/assert"

	"payplan-workers/internal/common/logger"
)

func TestWorkers_DisabledWorkerIsNotOpened(t *testing.T) {
	workers := NewWorkers(nil, logger.NewTestLogger(t))

	started := workers.Start("submit-plan-action", WorkerOptions{Enabled: false}, func(worker.JobClient, entities.Job) {})

	assert.False(t, started)
	assert.Empty(t, workers.Running())
	workers.Close()
}
