package store

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payplan-workers/internal/common/errors"
	"payplan-workers/internal/common/logger"
	"payplan-workers/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

var fixedTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db, logger.NewTestLogger(t)), mock
}

func planRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "status", "version", "program_id", "is_active", "business_area",
		"is_follow_up", "source_plan_id", "split_from_id",
		"approval_number_required", "authorization_number_required", "finance_release_number_required",
		"background_action_status", "rejected_on", "preparing_from",
		"target_list_finalized", "delivery_mechanisms_assigned", "can_split", "can_send_to_payment_gateway", "sent_to_payment_gateway",
		"created_at", "updated_at",
	})
}

func processRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "sent_for_approval_by", "sent_for_approval_date", "sent_for_authorization_by", "sent_for_authorization_date",
		"sent_for_finance_release_by", "sent_for_finance_release_date", "approval_cycle", "authorization_cycle",
		"finance_release_cycle", "created_at",
	})
}

func actionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "process_id", "kind", "cycle", "created_by", "created_at", "comment", "info"})
}

func storedPlan() *models.PaymentPlan {
	sent := fixedTime
	return &models.PaymentPlan{
		ID:                           "plan-1",
		Status:                       models.StatusInApproval,
		Version:                      4,
		ProgramID:                    "program-1",
		IsActiveProgram:              true,
		BusinessArea:                 "afghanistan",
		ApprovalNumberRequired:       2,
		AuthorizationNumberRequired:  1,
		FinanceReleaseNumberRequired: 1,
		TargetListFinalized:          true,
		ApprovalProcesses: []*models.ApprovalProcess{{
			ID:                  "proc-1",
			SentForApprovalBy:   "officer-1",
			SentForApprovalDate: &sent,
			ApprovalCycle:       1,
			CreatedAt:           fixedTime,
			Actions: []models.ApprovalAction{
				{ID: "act-1", Kind: models.KindApproval, Cycle: 1, CreatedBy: "approver-1", CreatedAt: fixedTime},
				{ID: "act-2", Kind: models.KindApproval, Cycle: 1, CreatedBy: "approver-2", CreatedAt: fixedTime, Comment: "ok"},
			},
		}},
		CreatedAt: fixedTime,
		UpdatedAt: fixedTime,
	}
}

func quote(prefix string) string {
	return "^" + regexp.QuoteMeta(prefix)
}

// ==========================
// LoadPlan
// ==========================

func TestPostgresStore_LoadPlan(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(quote("SELECT p.id, p.status")).
		WithArgs("plan-1").
		WillReturnRows(planRows().AddRow(
			"plan-1", "IN_AUTHORIZATION", int64(7), "program-1", true, "afghanistan",
			false, "", "",
			2, 1, 1,
			"", "IN_AUTHORIZATION", "",
			true, true, false, false, false,
			fixedTime, fixedTime,
		))
	mock.ExpectQuery(quote("SELECT id, sent_for_approval_by")).
		WithArgs("plan-1").
		WillReturnRows(processRows().
			AddRow("proc-1", "officer-1", fixedTime, "", nil, "", nil, 1, 0, 0, fixedTime).
			AddRow("proc-2", "officer-1", fixedTime, "approver-2", fixedTime, "", nil, 1, 2, 0, fixedTime))
	mock.ExpectQuery(quote("SELECT a.id, a.process_id")).
		WithArgs("plan-1").
		WillReturnRows(actionRows().
			AddRow("act-1", "proc-1", "REJECT", 1, "approver-1", fixedTime, "missing data", []byte(`{"rejectedOn":"IN_APPROVAL"}`)).
			AddRow("act-2", "proc-2", "APPROVAL", 1, "approver-2", fixedTime, "", nil).
			AddRow("act-3", "proc-2", "AUTHORIZATION", 2, "authorizer-1", fixedTime, "", nil))

	plan, err := s.LoadPlan(context.Background(), "plan-1")
	require.NoError(t, err)

	assert.Equal(t, models.StatusInAuthorization, plan.Status)
	assert.Equal(t, int64(7), plan.Version)
	assert.True(t, plan.IsActiveProgram)
	assert.Equal(t, models.StatusInAuthorization, plan.RejectedOn)
	require.Len(t, plan.ApprovalProcesses, 2)

	first := plan.ApprovalProcesses[0]
	require.Len(t, first.Actions, 1)
	assert.Equal(t, models.KindReject, first.Actions[0].Kind)
	assert.Equal(t, "IN_APPROVAL", first.Actions[0].Info["rejectedOn"])
	assert.Nil(t, first.SentForAuthorizationDate)

	active := plan.ActiveApprovalProcess()
	assert.Equal(t, "proc-2", active.ID)
	assert.Equal(t, 2, active.AuthorizationCycle)
	require.NotNil(t, active.SentForAuthorizationDate)
	assert.Len(t, active.Actions, 2)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadPlan_Errors(t *testing.T) {
	tests := []struct {
		name      string
		mock      func(mock sqlmock.Sqlmock)
		code      errors.ErrorCode
		retryable bool
	}{
		{
			name: "not found",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(quote("SELECT p.id")).WithArgs("plan-1").WillReturnError(sql.ErrNoRows)
			},
			code: errors.ErrCodePlanNotFound,
		},
		{
			name: "connection lost",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(quote("SELECT p.id")).WithArgs("plan-1").WillReturnError(sql.ErrConnDone)
			},
			code:      errors.ErrCodeStorageFailure,
			retryable: true,
		},
		{
			name: "orphan action",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(quote("SELECT p.id")).WithArgs("plan-1").
					WillReturnRows(planRows().AddRow(
						"plan-1", "IN_APPROVAL", int64(1), "program-1", true, "",
						false, "", "", 1, 1, 1, "", "", "",
						true, true, false, false, false, fixedTime, fixedTime,
					))
				mock.ExpectQuery(quote("SELECT id, sent_for_approval_by")).WithArgs("plan-1").
					WillReturnRows(processRows().AddRow("proc-1", "", nil, "", nil, "", nil, 1, 0, 0, fixedTime))
				mock.ExpectQuery(quote("SELECT a.id")).WithArgs("plan-1").
					WillReturnRows(actionRows().AddRow("act-1", "proc-9", "APPROVAL", 1, "a", fixedTime, "", nil))
			},
			code:      errors.ErrCodeStorageFailure,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			tt.mock(mock)

			_, err := s.LoadPlan(context.Background(), "plan-1")
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.CodeOf(err))
			assert.Equal(t, tt.retryable, errors.IsTransient(err))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

// ==========================
// SavePlan
// ==========================

func TestPostgresStore_SavePlan(t *testing.T) {
	s, mock := newMockStore(t)
	plan := storedPlan()

	mock.ExpectBegin()
	mock.ExpectExec(quote("UPDATE payment_plans SET")).
		WithArgs("plan-1", int64(4), int64(5),
			"IN_APPROVAL", "", "", "",
			true, false, false, false, false, fixedTime).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(quote("INSERT INTO approval_processes")).
		WithArgs("proc-1", "plan-1", 0,
			"officer-1", sqlmock.AnyArg(), "", sqlmock.AnyArg(), "", sqlmock.AnyArg(),
			1, 0, 0, fixedTime).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(quote("INSERT INTO approval_actions")+".*"+regexp.QuoteMeta("($10, $11, $12, $13, $14, $15, $16, $17, $18) ON CONFLICT (id) DO NOTHING")).
		WithArgs(
			"act-1", "proc-1", 0, "APPROVAL", 1, "approver-1", fixedTime, "", nil,
			"act-2", "proc-1", 1, "APPROVAL", 1, "approver-2", fixedTime, "ok", nil,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.SavePlan(context.Background(), 4, plan))
	assert.Equal(t, int64(5), plan.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SavePlan_StaleVersion(t *testing.T) {
	s, mock := newMockStore(t)
	plan := storedPlan()

	mock.ExpectBegin()
	mock.ExpectExec(quote("UPDATE payment_plans SET")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(quote("SELECT version FROM payment_plans")).
		WithArgs("plan-1").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(5)))
	mock.ExpectRollback()

	err := s.SavePlan(context.Background(), 4, plan)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeVersionConflict, errors.CodeOf(err))
	assert.Equal(t, int64(4), plan.Version, "version is untouched on conflict")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SavePlan_Missing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(quote("UPDATE payment_plans SET")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(quote("SELECT version FROM payment_plans")).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := s.SavePlan(context.Background(), 4, storedPlan())
	assert.Equal(t, errors.ErrCodePlanNotFound, errors.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SavePlan_WithCreatedSiblings(t *testing.T) {
	s, mock := newMockStore(t)
	parent := storedPlan()
	parent.Status = models.StatusAccepted
	parent.ApprovalProcesses = nil

	child := storedPlan()
	child.ID = "plan-1-a"
	child.Status = models.StatusAccepted
	child.SplitFromID = "plan-1"
	child.ApprovalProcesses = nil

	mock.ExpectBegin()
	mock.ExpectExec(quote("UPDATE payment_plans SET")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(quote("INSERT INTO payment_plans")).
		WithArgs("plan-1-a", "ACCEPTED", int64(1), "program-1", "afghanistan", false, "",
			"plan-1", 2, 1, 1, "", "", "", true, false, false, false, false, fixedTime, fixedTime).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.SavePlan(context.Background(), 4, parent, child))
	assert.Equal(t, int64(5), parent.Version)
	assert.Equal(t, int64(1), child.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SavePlan_FailuresRollBack(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code errors.ErrorCode
	}{
		{name: "driver failure", err: sql.ErrConnDone, code: errors.ErrCodeStorageFailure},
		{name: "concurrent ledger write", err: &pq.Error{Code: "23505", Constraint: "approval_actions_signoff_uniq"}, code: errors.ErrCodeConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)

			mock.ExpectBegin()
			mock.ExpectExec(quote("UPDATE payment_plans SET")).WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectExec(quote("INSERT INTO approval_processes")).WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectExec(quote("INSERT INTO approval_actions")).WillReturnError(tt.err)
			mock.ExpectRollback()

			err := s.SavePlan(context.Background(), 4, storedPlan())
			assert.Equal(t, tt.code, errors.CodeOf(err))
			assert.True(t, errors.IsTransient(err))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_SavePlan_RejectsInvalidPlan(t *testing.T) {
	s, mock := newMockStore(t)
	plan := storedPlan()
	plan.ApprovalNumberRequired = 0

	err := s.SavePlan(context.Background(), 4, plan)
	assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// CreatePlan
// ==========================

func TestPostgresStore_CreatePlan_Duplicate(t *testing.T) {
	s, mock := newMockStore(t)
	plan := storedPlan()
	plan.ApprovalProcesses = nil

	mock.ExpectBegin()
	mock.ExpectExec(quote("INSERT INTO payment_plans")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "payment_plans_pkey"})
	mock.ExpectRollback()

	err := s.CreatePlan(context.Background(), plan)
	assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreatePlan(t *testing.T) {
	s, mock := newMockStore(t)
	plan := storedPlan()

	mock.ExpectBegin()
	mock.ExpectExec(quote("INSERT INTO payment_plans")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(quote("INSERT INTO approval_processes")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(quote("INSERT INTO approval_actions")).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, s.CreatePlan(context.Background(), plan))
	assert.Equal(t, int64(1), plan.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "($1, $2, $3)", placeholders(0, 3))
	assert.Equal(t, "($10, $11)", placeholders(9, 2))
}
