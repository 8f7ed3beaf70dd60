package acceptance

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payplan-workers/internal/common/errors"
	"payplan-workers/internal/models"
	"payplan-workers/internal/store"
)

func seedInApproval(t *testing.T, env *testEnv, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("plan-%d", i)
		env.seed(t, inApproval(t, id))
		ids = append(ids, id)
	}
	return ids
}

func TestBulk_IsolatesFailures(t *testing.T) {
	env := newMemoryEnv(t)
	ids := seedInApproval(t, env, 5)

	_, err := env.service.SetBackgroundAction(context.Background(), "plan-3", models.BackgroundRuleEngineRunning)
	require.NoError(t, err)

	out, err := env.service.SubmitBulkAction(actorCtx("approver-1", "approver"), BulkRequest{
		PlanIDs: ids,
		Action:  models.ActionApprove,
		Comment: "batch approval",
	})
	require.NoError(t, err)

	require.Len(t, out.Results, 5)
	assert.Equal(t, 4, out.Advanced)
	assert.Equal(t, 0, out.Pending)
	assert.Equal(t, 1, out.Failed)

	for i, r := range out.Results {
		assert.Equal(t, ids[i], r.PlanID, "results keep request order")
		if r.PlanID == "plan-3" {
			assert.Equal(t, ResultError, r.Result)
			assert.Equal(t, string(errors.ErrCodePlanBusy), r.ErrorCode)
			assert.True(t, r.Retryable)
			assert.Equal(t, models.StatusInApproval, env.load(t, "plan-3").Status)
			continue
		}
		assert.Equal(t, ResultAdvanced, r.Result)
		assert.Equal(t, models.StatusInAuthorization, env.load(t, r.PlanID).Status)
	}

	// One refresh of all console queues for the whole batch.
	require.Len(t, env.refresher.calls, 1)
	assert.ElementsMatch(t, models.ConsoleQueues, env.refresher.calls[0])

	for _, e := range env.notifier.Events() {
		assert.Equal(t, "batch approval", e.Comment)
	}
	assert.Len(t, env.notifier.Events(), 4)
}

func TestBulk_PermissionDeniedAbortsBeforeDispatch(t *testing.T) {
	env := newMemoryEnv(t)
	ids := seedInApproval(t, env, 3)

	out, err := env.service.SubmitBulkAction(actorCtx("authorizer-1", "authorizer"), BulkRequest{
		PlanIDs: ids,
		Action:  models.ActionApprove,
	})

	require.Error(t, err)
	assert.Nil(t, out)
	assert.Equal(t, errors.ErrCodePermissionDenied, errors.CodeOf(err))
	for _, id := range ids {
		assert.Equal(t, int64(1), env.load(t, id).Version)
	}
	assert.Empty(t, env.refresher.calls)
	assert.Empty(t, env.notifier.Events())
}

func TestBulk_RequestValidation(t *testing.T) {
	env := newMemoryEnv(t)
	ids := seedInApproval(t, env, 1)
	ctx := actorCtx("approver-1", "approver")

	tests := []struct {
		name string
		req  BulkRequest
	}{
		{name: "reject is not a bulk action", req: BulkRequest{PlanIDs: ids, Action: models.ActionReject}},
		{name: "lock is not a bulk action", req: BulkRequest{PlanIDs: ids, Action: models.ActionLock}},
		{name: "no plans", req: BulkRequest{Action: models.ActionApprove}},
		{name: "blank plans", req: BulkRequest{PlanIDs: []string{"", ""}, Action: models.ActionApprove}},
		{name: "comment too long", req: BulkRequest{PlanIDs: ids, Action: models.ActionApprove, Comment: strings.Repeat("x", 501)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.SubmitBulkAction(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))
		})
	}
	assert.Equal(t, int64(1), env.load(t, "plan-1").Version)
}

func TestBulk_MixedOutcomes(t *testing.T) {
	env := newMemoryEnv(t)

	quorumOfTwo := newTestPlan("needs-two", models.StatusOpen)
	quorumOfTwo.ApprovalNumberRequired = 2
	env.seed(t, sentForApproval(t, NewEngine(0), quorumOfTwo))

	inactive := inApproval(t, "inactive")
	inactive.IsActiveProgram = false
	env.seed(t, inactive)

	env.seed(t, inApproval(t, "ready"))
	env.seed(t, newTestPlan("still-open", models.StatusOpen))

	out, err := env.service.SubmitBulkAction(actorCtx("approver-1", "approver"), BulkRequest{
		PlanIDs: []string{"needs-two", "inactive", "ready", "missing", "still-open", "ready"},
		Action:  models.ActionApprove,
	})
	require.NoError(t, err)

	require.Len(t, out.Results, 5, "duplicate ids are applied once")
	byID := map[string]Outcome{}
	for _, r := range out.Results {
		byID[r.PlanID] = r
	}

	assert.Equal(t, ResultPending, byID["needs-two"].Result)
	assert.Equal(t, string(errors.ErrCodePermissionDenied), byID["inactive"].ErrorCode)
	assert.Equal(t, ResultAdvanced, byID["ready"].Result)
	assert.Equal(t, string(errors.ErrCodePlanNotFound), byID["missing"].ErrorCode)
	assert.Equal(t, string(errors.ErrCodeIllegalTransition), byID["still-open"].ErrorCode)
	assert.False(t, byID["still-open"].Retryable)

	assert.Equal(t, 1, out.Advanced)
	assert.Equal(t, 1, out.Pending)
	assert.Equal(t, 3, out.Failed)
}

func TestBulk_SecondPassReportsDuplicates(t *testing.T) {
	env := newMemoryEnv(t)
	plan := newTestPlan("plan-1", models.StatusOpen)
	plan.ApprovalNumberRequired = 3
	env.seed(t, sentForApproval(t, NewEngine(0), plan))
	ctx := actorCtx("approver-1", "approver")

	out, err := env.service.SubmitBulkAction(ctx, BulkRequest{PlanIDs: []string{"plan-1"}, Action: models.ActionApprove})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Pending)

	out, err = env.service.SubmitBulkAction(ctx, BulkRequest{PlanIDs: []string{"plan-1"}, Action: models.ActionApprove})
	require.NoError(t, err)
	assert.Equal(t, string(errors.ErrCodeDuplicateAction), out.Results[0].ErrorCode)
	assert.Len(t, env.load(t, "plan-1").ActiveApprovalProcess().ActionsOf(models.KindApproval), 1)
}

func TestUniqueIDs(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, uniqueIDs([]string{"a", "", "b", "a", "c", "b"}))
	assert.Empty(t, uniqueIDs(nil))
}

// panickingStore fails hard on one plan.
type panickingStore struct {
	*store.MemoryStore
	planID string
}

func (p *panickingStore) LoadPlan(ctx context.Context, id string) (*models.PaymentPlan, error) {
	if id == p.planID {
		panic("corrupt row")
	}
	return p.MemoryStore.LoadPlan(ctx, id)
}

func TestBulk_PanicIsIsolatedToOnePlan(t *testing.T) {
	mem := store.NewMemoryStore()
	env := newTestEnv(t, &panickingStore{MemoryStore: mem, planID: "plan-2"}, mem)
	ids := seedInApproval(t, env, 3)

	out, err := env.service.SubmitBulkAction(actorCtx("approver-1", "approver"), BulkRequest{
		PlanIDs: ids,
		Action:  models.ActionApprove,
	})
	require.NoError(t, err)

	require.Len(t, out.Results, 3)
	assert.Equal(t, 2, out.Advanced)
	assert.Equal(t, 1, out.Failed)
	assert.Equal(t, ResultError, out.Results[1].Result)
	assert.Equal(t, string(errors.ErrCodeInternal), out.Results[1].ErrorCode)
	assert.Contains(t, out.Results[1].ErrorMessage, "corrupt row")
	assert.Equal(t, models.StatusInAuthorization, env.load(t, "plan-1").Status)
	assert.Equal(t, models.StatusInAuthorization, env.load(t, "plan-3").Status)
	require.Len(t, env.refresher.calls, 1)
}
