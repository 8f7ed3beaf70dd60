package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payplan-workers/internal/common/errors"
	"payplan-workers/internal/models"
)

func TestMemoryStore_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	plan := storedPlan()
	require.NoError(t, s.CreatePlan(ctx, plan))
	assert.Equal(t, int64(1), plan.Version)

	first, err := s.LoadPlan(ctx, "plan-1")
	require.NoError(t, err)
	second, err := s.LoadPlan(ctx, "plan-1")
	require.NoError(t, err)

	first.Status = models.StatusInAuthorization
	require.NoError(t, s.SavePlan(ctx, first.Version, first))
	assert.Equal(t, int64(2), first.Version)

	second.Status = models.StatusOpen
	err = s.SavePlan(ctx, second.Version, second)
	assert.Equal(t, errors.ErrCodeVersionConflict, errors.CodeOf(err))

	stored, err := s.LoadPlan(ctx, "plan-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInAuthorization, stored.Status)
}

func TestMemoryStore_Isolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	plan := storedPlan()
	require.NoError(t, s.CreatePlan(ctx, plan))

	plan.ApprovalProcesses[0].Actions[0].CreatedBy = "someone-else"

	loaded, err := s.LoadPlan(ctx, "plan-1")
	require.NoError(t, err)
	assert.Equal(t, "approver-1", loaded.ApprovalProcesses[0].Actions[0].CreatedBy)

	loaded.ApprovalProcesses[0].Actions = nil
	again, err := s.LoadPlan(ctx, "plan-1")
	require.NoError(t, err)
	assert.Len(t, again.ApprovalProcesses[0].Actions, 2)
}

func TestMemoryStore_CreatedPlansAreAtomic(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	parent := storedPlan()
	require.NoError(t, s.CreatePlan(ctx, parent))

	existing := storedPlan()
	existing.ID = "plan-2"
	require.NoError(t, s.CreatePlan(ctx, existing))

	child := storedPlan()
	child.ID = "plan-2"
	err := s.SavePlan(ctx, parent.Version, parent, child)
	assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))

	reloaded, err := s.LoadPlan(ctx, "plan-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), reloaded.Version, "parent untouched when a sibling cannot be created")
}

func TestMemoryStore_Errors(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.LoadPlan(ctx, "missing")
	assert.Equal(t, errors.ErrCodePlanNotFound, errors.CodeOf(err))

	err = s.SavePlan(ctx, 1, storedPlan())
	assert.Equal(t, errors.ErrCodePlanNotFound, errors.CodeOf(err))

	followUp := storedPlan()
	followUp.IsFollowUp = true
	err = s.CreatePlan(ctx, followUp)
	assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))

	require.NoError(t, s.CreatePlan(ctx, storedPlan()))
	err = s.CreatePlan(ctx, storedPlan())
	assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))
}
