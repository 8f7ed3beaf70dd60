package store

import (
	"context"
	"sync"

	"payplan-workers/internal/common/errors"
	"payplan-workers/internal/models"
)

// MemoryStore keeps plans in process. Every read and write copies, so
// callers never share snapshots.
type MemoryStore struct {
	mu    sync.RWMutex
	plans map[string]*models.PaymentPlan
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{plans: make(map[string]*models.PaymentPlan)}
}

func (s *MemoryStore) LoadPlan(_ context.Context, id string) (*models.PaymentPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	plan, ok := s.plans[id]
	if !ok {
		return nil, errors.NewPlanNotFoundError(id)
	}
	return plan.Clone(), nil
}

func (s *MemoryStore) SavePlan(_ context.Context, expectedVersion int64, plan *models.PaymentPlan, created ...*models.PaymentPlan) error {
	if err := validatePlan(plan); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.plans[plan.ID]
	if !ok {
		return errors.NewPlanNotFoundError(plan.ID)
	}
	if current.Version != expectedVersion {
		return errors.NewVersionConflictError(plan.ID, expectedVersion)
	}
	for _, c := range created {
		if _, exists := s.plans[c.ID]; exists {
			return errors.NewValidationError(c.ID, "plan already exists")
		}
	}

	plan.Version = expectedVersion + 1
	s.plans[plan.ID] = plan.Clone()
	for _, c := range created {
		c.Version = 1
		s.plans[c.ID] = c.Clone()
	}
	return nil
}

// CreatePlan inserts a new plan at version 1.
func (s *MemoryStore) CreatePlan(_ context.Context, plan *models.PaymentPlan) error {
	if err := validatePlan(plan); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.plans[plan.ID]; exists {
		return errors.NewValidationError(plan.ID, "plan already exists")
	}
	plan.Version = 1
	s.plans[plan.ID] = plan.Clone()
	return nil
}
