package submitplanaction

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"payplan-workers/internal/acceptance"
	"payplan-workers/internal/common/auth"
	"payplan-workers/internal/common/config"
	"payplan-workers/internal/common/errors"
	"payplan-workers/internal/common/logger"
	"payplan-workers/internal/models"
)

// ==========================
// Mock Service Implementation
// ==========================

type MockService struct {
	mock.Mock
}

func (m *MockService) SubmitAction(ctx context.Context, req acceptance.ActionRequest) (*acceptance.Outcome, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*acceptance.Outcome), args.Error(1)
}

// ==========================
// Mock Job Helper
// ==========================

func createMockJob(key int64, variables map[string]interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)

	activatedJob := &pb.ActivatedJob{
		Key:                      key,
		Type:                     TaskType,
		ProcessInstanceKey:       key * 10,
		BpmnProcessId:            "payment-plan-acceptance",
		ProcessDefinitionVersion: 1,
		ProcessDefinitionKey:     1,
		ElementId:                "Activity_SubmitPlanAction",
		ElementInstanceKey:       1,
		CustomHeaders:            "{}",
		Worker:                   "test-worker",
		Retries:                  3,
		Deadline:                 0,
		Variables:                string(variablesJSON),
	}

	return entities.Job{ActivatedJob: activatedJob}
}

func newTestHandler(t *testing.T, svc ActionSubmitter) *Handler {
	t.Helper()
	h, err := NewHandler(DefaultConfig(), svc, logger.NewTestLogger(t))
	require.NoError(t, err)
	return h
}

// ==========================
// Configuration
// ==========================

func TestConfig(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, DefaultConfig().Validate())
	})

	t.Run("zero timeout rejected", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Timeout = 0
		assert.Error(t, cfg.Validate())

		_, err := NewHandler(cfg, &MockService{}, logger.NewNoOpLogger())
		assert.Error(t, err)
	})

	t.Run("from worker config", func(t *testing.T) {
		cfg := FromWorkerConfig(config.WorkerConfig{Enabled: false, MaxJobsActive: 4, Concurrency: 2, Timeout: 5000})
		assert.False(t, cfg.Enabled)
		assert.Equal(t, 4, cfg.MaxJobsActive)
		assert.Equal(t, 5*time.Second, cfg.Timeout)

		opts := cfg.WorkerOptions()
		assert.Equal(t, 2, opts.Concurrency)
		assert.Equal(t, TaskType+"-worker", opts.Name)
	})
}

// ==========================
// Input Parsing
// ==========================

func TestParseInput(t *testing.T) {
	h := newTestHandler(t, &MockService{})

	tests := []struct {
		name       string
		vars       map[string]interface{}
		wantAction models.Action
		wantCode   errors.ErrorCode
	}{
		{
			name: "approve",
			vars: map[string]interface{}{
				"planId": "PP-1", "action": "APPROVE", "comment": "ok", "accessToken": "tok",
				"unrelatedProcessVar": 42,
			},
			wantAction: models.ActionApprove,
		},
		{
			name:       "camel case alias",
			vars:       map[string]interface{}{"planId": "PP-1", "action": "lockFsp", "accessToken": "tok"},
			wantAction: models.ActionLockFSP,
		},
		{
			name:       "set fsp with spaces",
			vars:       map[string]interface{}{"planId": "PP-1", "action": "set FSP", "accessToken": "tok"},
			wantAction: models.ActionLockFSP,
		},
		{
			name:       "mark released maps to review",
			vars:       map[string]interface{}{"planId": "PP-1", "action": "markReleased", "accessToken": "tok"},
			wantAction: models.ActionReview,
		},
		{
			name:     "missing plan id",
			vars:     map[string]interface{}{"action": "APPROVE", "accessToken": "tok"},
			wantCode: errors.ErrCodeValidation,
		},
		{
			name:     "missing token",
			vars:     map[string]interface{}{"planId": "PP-1", "action": "APPROVE"},
			wantCode: errors.ErrCodeValidation,
		},
		{
			name:     "unknown action",
			vars:     map[string]interface{}{"planId": "PP-1", "action": "DANCE", "accessToken": "tok"},
			wantCode: errors.ErrCodeValidation,
		},
		{
			name:     "system action refused",
			vars:     map[string]interface{}{"planId": "PP-1", "action": "FINISH", "accessToken": "tok"},
			wantCode: errors.ErrCodeValidation,
		},
		{
			name:     "negative chunks",
			vars:     map[string]interface{}{"planId": "PP-1", "action": "SPLIT", "chunks": -1, "accessToken": "tok"},
			wantCode: errors.ErrCodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, err := h.parseInput(createMockJob(1, tt.vars))
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, errors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAction, input.action)
			assert.Equal(t, "PP-1", input.PlanID)
		})
	}
}

// ==========================
// Execute
// ==========================

func TestExecute_Success(t *testing.T) {
	svc := &MockService{}
	h := newTestHandler(t, svc)

	withToken := mock.MatchedBy(func(ctx context.Context) bool {
		token, ok := auth.AccessToken(ctx)
		return ok && token == "tok-123"
	})
	req := acceptance.ActionRequest{PlanID: "PP-1", Action: models.ActionApprove, Comment: "looks fine"}
	svc.On("SubmitAction", withToken, req).Return(&acceptance.Outcome{
		PlanID:   "PP-1",
		Action:   models.ActionApprove,
		Result:   acceptance.ResultPending,
		Status:   models.StatusInApproval,
		SignOffs: 1,
		Required: 2,
	}, nil)

	out, err := h.Execute(context.Background(), &Input{
		PlanID:      "PP-1",
		Comment:     "looks fine",
		AccessToken: "tok-123",
		action:      models.ActionApprove,
	})

	require.NoError(t, err)
	assert.Equal(t, acceptance.ResultPending, out.PlanAction.Result)
	assert.Equal(t, 1, out.PlanAction.SignOffs)
	svc.AssertExpectations(t)

	vars, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Contains(t, string(vars), `"planAction":{"planId":"PP-1"`)
}

func TestExecute_ServiceError(t *testing.T) {
	svc := &MockService{}
	h := newTestHandler(t, svc)

	svc.On("SubmitAction", mock.Anything, mock.Anything).
		Return(nil, errors.NewIllegalTransitionError("PP-1", "LOCKED", "APPROVE", "plan is not in approval"))

	out, err := h.Execute(context.Background(), &Input{PlanID: "PP-1", AccessToken: "tok", action: models.ActionApprove})

	assert.Nil(t, out)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeIllegalTransition, errors.CodeOf(err))
	assert.False(t, errors.IsTransient(err))
}
