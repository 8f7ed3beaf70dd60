package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"payplan-workers/internal/common/errors"
	"payplan-workers/internal/common/logger"
	"payplan-workers/internal/models"
)

const (
	uniqueViolation = "23505"
	planPrimaryKey  = "payment_plans_pkey"
)

const planColumns = `p.id, p.status, p.version, p.program_id, COALESCE(pr.is_active, FALSE), p.business_area, ` +
	`p.is_follow_up, p.source_plan_id, p.split_from_id, ` +
	`p.approval_number_required, p.authorization_number_required, p.finance_release_number_required, ` +
	`p.background_action_status, p.rejected_on, p.preparing_from, ` +
	`p.target_list_finalized, p.delivery_mechanisms_assigned, p.can_split, p.can_send_to_payment_gateway, p.sent_to_payment_gateway, ` +
	`p.created_at, p.updated_at`

const (
	selectPlanSQL = `SELECT ` + planColumns + ` FROM payment_plans p LEFT JOIN programs pr ON pr.id = p.program_id WHERE p.id = $1`

	selectProcessesSQL = `SELECT id, sent_for_approval_by, sent_for_approval_date, sent_for_authorization_by, sent_for_authorization_date, ` +
		`sent_for_finance_release_by, sent_for_finance_release_date, approval_cycle, authorization_cycle, finance_release_cycle, created_at ` +
		`FROM approval_processes WHERE plan_id = $1 ORDER BY seq`

	selectActionsSQL = `SELECT a.id, a.process_id, a.kind, a.cycle, a.created_by, a.created_at, a.comment, a.info ` +
		`FROM approval_actions a JOIN approval_processes ap ON ap.id = a.process_id ` +
		`WHERE ap.plan_id = $1 ORDER BY ap.seq, a.seq`

	selectVersionSQL = `SELECT version FROM payment_plans WHERE id = $1`

	updatePlanSQL = `UPDATE payment_plans SET status = $4, version = $3, background_action_status = $5, rejected_on = $6, ` +
		`preparing_from = $7, target_list_finalized = $8, delivery_mechanisms_assigned = $9, can_split = $10, ` +
		`can_send_to_payment_gateway = $11, sent_to_payment_gateway = $12, updated_at = $13 ` +
		`WHERE id = $1 AND version = $2`

	insertPlanSQL = `INSERT INTO payment_plans (id, status, version, program_id, business_area, is_follow_up, source_plan_id, ` +
		`split_from_id, approval_number_required, authorization_number_required, finance_release_number_required, ` +
		`background_action_status, rejected_on, preparing_from, target_list_finalized, delivery_mechanisms_assigned, ` +
		`can_split, can_send_to_payment_gateway, sent_to_payment_gateway, created_at, updated_at) ` +
		`VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`

	upsertProcessSQL = `INSERT INTO approval_processes (id, plan_id, seq, sent_for_approval_by, sent_for_approval_date, ` +
		`sent_for_authorization_by, sent_for_authorization_date, sent_for_finance_release_by, sent_for_finance_release_date, ` +
		`approval_cycle, authorization_cycle, finance_release_cycle, created_at) ` +
		`VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) ` +
		`ON CONFLICT (id) DO UPDATE SET ` +
		`sent_for_approval_by = EXCLUDED.sent_for_approval_by, sent_for_approval_date = EXCLUDED.sent_for_approval_date, ` +
		`sent_for_authorization_by = EXCLUDED.sent_for_authorization_by, sent_for_authorization_date = EXCLUDED.sent_for_authorization_date, ` +
		`sent_for_finance_release_by = EXCLUDED.sent_for_finance_release_by, sent_for_finance_release_date = EXCLUDED.sent_for_finance_release_date, ` +
		`approval_cycle = EXCLUDED.approval_cycle, authorization_cycle = EXCLUDED.authorization_cycle, ` +
		`finance_release_cycle = EXCLUDED.finance_release_cycle`

	insertActionsPrefix = `INSERT INTO approval_actions (id, process_id, seq, kind, cycle, created_by, created_at, comment, info) VALUES `
	insertActionsSuffix = ` ON CONFLICT (id) DO NOTHING`
	actionColumns       = 9
)

// PostgresStore persists plans and their approval ledger in PostgreSQL.
// Ledger rows are append-only; plan rows are guarded by their version.
type PostgresStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewPostgresStore(db *sql.DB, log logger.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "postgres-store"}),
	}
}

func (s *PostgresStore) LoadPlan(ctx context.Context, id string) (*models.PaymentPlan, error) {
	plan, err := scanPlan(s.db.QueryRowContext(ctx, selectPlanSQL, id))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewPlanNotFoundError(id)
		}
		return nil, errors.NewStorageFailureError(id, "load plan", err)
	}

	procs, err := s.loadProcesses(ctx, id)
	if err != nil {
		return nil, errors.NewStorageFailureError(id, "load approval processes", err)
	}
	if err := s.loadActions(ctx, id, procs); err != nil {
		return nil, errors.NewStorageFailureError(id, "load approval actions", err)
	}
	plan.ApprovalProcesses = procs
	return plan, nil
}

func (s *PostgresStore) loadProcesses(ctx context.Context, planID string) ([]*models.ApprovalProcess, error) {
	rows, err := s.db.QueryContext(ctx, selectProcessesSQL, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var procs []*models.ApprovalProcess
	for rows.Next() {
		var (
			p                                 models.ApprovalProcess
			approvalAt, authorizationAt, frAt sql.NullTime
		)
		if err := rows.Scan(
			&p.ID,
			&p.SentForApprovalBy, &approvalAt,
			&p.SentForAuthorizationBy, &authorizationAt,
			&p.SentForFinanceReleaseBy, &frAt,
			&p.ApprovalCycle, &p.AuthorizationCycle, &p.FinanceReleaseCycle,
			&p.CreatedAt,
		); err != nil {
			return nil, err
		}
		p.SentForApprovalDate = timePtr(approvalAt)
		p.SentForAuthorizationDate = timePtr(authorizationAt)
		p.SentForFinanceReleaseDate = timePtr(frAt)
		procs = append(procs, &p)
	}
	return procs, rows.Err()
}

func (s *PostgresStore) loadActions(ctx context.Context, planID string, procs []*models.ApprovalProcess) error {
	if len(procs) == 0 {
		return nil
	}
	byID := make(map[string]*models.ApprovalProcess, len(procs))
	for _, p := range procs {
		byID[p.ID] = p
	}

	rows, err := s.db.QueryContext(ctx, selectActionsSQL, planID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			a         models.ApprovalAction
			processID string
			info      []byte
		)
		if err := rows.Scan(&a.ID, &processID, &a.Kind, &a.Cycle, &a.CreatedBy, &a.CreatedAt, &a.Comment, &info); err != nil {
			return err
		}
		if len(info) > 0 {
			if err := json.Unmarshal(info, &a.Info); err != nil {
				return fmt.Errorf("decode info of action %s: %w", a.ID, err)
			}
		}
		proc, ok := byID[processID]
		if !ok {
			return fmt.Errorf("action %s references unknown process %s", a.ID, processID)
		}
		proc.Actions = append(proc.Actions, a)
	}
	return rows.Err()
}

// SavePlan writes plan if its stored version still equals expectedVersion,
// appends new ledger rows and inserts created plans, all in one transaction.
func (s *PostgresStore) SavePlan(ctx context.Context, expectedVersion int64, plan *models.PaymentPlan, created ...*models.PaymentPlan) error {
	if err := validatePlan(plan); err != nil {
		return err
	}
	for _, c := range created {
		if err := validatePlan(c); err != nil {
			return err
		}
	}

	next := expectedVersion + 1
	err := s.withTx(ctx, plan.ID, "save plan", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, updatePlanSQL,
			plan.ID, expectedVersion, next,
			plan.Status, plan.BackgroundActionStatus, plan.RejectedOn, plan.PreparingFrom,
			plan.TargetListFinalized, plan.DeliveryMechanismsAssigned, plan.CanSplit,
			plan.CanSendToPaymentGateway, plan.SentToPaymentGateway, plan.UpdatedAt,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return s.missOrConflict(ctx, tx, plan.ID, expectedVersion)
		}

		if err := writeLedger(ctx, tx, plan); err != nil {
			return err
		}
		for _, c := range created {
			if err := insertPlan(ctx, tx, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	plan.Version = next
	for _, c := range created {
		c.Version = 1
	}
	return nil
}

// CreatePlan inserts a new plan at version 1 together with any ledger it carries.
func (s *PostgresStore) CreatePlan(ctx context.Context, plan *models.PaymentPlan) error {
	if err := validatePlan(plan); err != nil {
		return err
	}
	if err := s.withTx(ctx, plan.ID, "create plan", func(tx *sql.Tx) error {
		return insertPlan(ctx, tx, plan)
	}); err != nil {
		return err
	}
	plan.Version = 1
	return nil
}

func (s *PostgresStore) missOrConflict(ctx context.Context, tx *sql.Tx, planID string, expected int64) error {
	var current int64
	err := tx.QueryRowContext(ctx, selectVersionSQL, planID).Scan(&current)
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NewPlanNotFoundError(planID)
	}
	if err != nil {
		return err
	}
	s.logger.Debug("stale plan version", map[string]interface{}{
		"planId":   planID,
		"expected": expected,
		"current":  current,
	})
	return errors.NewVersionConflictError(planID, expected)
}

func (s *PostgresStore) withTx(ctx context.Context, planID, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStorageFailureError(planID, op, err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", map[string]interface{}{
				"planId": planID,
				"error":  rbErr.Error(),
			})
		}
		return classify(planID, op, err)
	}
	if err := tx.Commit(); err != nil {
		return errors.NewStorageFailureError(planID, op, err)
	}
	return nil
}

func classify(planID, op string, err error) error {
	if _, ok := errors.AsStandard(err); ok {
		return err
	}
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		if pqErr.Constraint == planPrimaryKey {
			return errors.NewValidationError(planID, "plan already exists")
		}
		return errors.NewConflictError(planID, fmt.Sprintf("concurrent write rejected by %s", pqErr.Constraint))
	}
	return errors.NewStorageFailureError(planID, op, err)
}

func insertPlan(ctx context.Context, tx *sql.Tx, p *models.PaymentPlan) error {
	if _, err := tx.ExecContext(ctx, insertPlanSQL,
		p.ID, p.Status, int64(1), p.ProgramID, p.BusinessArea, p.IsFollowUp, p.SourcePlanID,
		p.SplitFromID, p.ApprovalNumberRequired, p.AuthorizationNumberRequired, p.FinanceReleaseNumberRequired,
		p.BackgroundActionStatus, p.RejectedOn, p.PreparingFrom, p.TargetListFinalized, p.DeliveryMechanismsAssigned,
		p.CanSplit, p.CanSendToPaymentGateway, p.SentToPaymentGateway, p.CreatedAt, p.UpdatedAt,
	); err != nil {
		return err
	}
	return writeLedger(ctx, tx, p)
}

// writeLedger upserts process headers and appends actions. Existing action
// rows are never rewritten.
func writeLedger(ctx context.Context, tx *sql.Tx, p *models.PaymentPlan) error {
	var (
		args []interface{}
		rows []string
	)
	for seq, proc := range p.ApprovalProcesses {
		if _, err := tx.ExecContext(ctx, upsertProcessSQL,
			proc.ID, p.ID, seq,
			proc.SentForApprovalBy, nullTime(proc.SentForApprovalDate),
			proc.SentForAuthorizationBy, nullTime(proc.SentForAuthorizationDate),
			proc.SentForFinanceReleaseBy, nullTime(proc.SentForFinanceReleaseDate),
			proc.ApprovalCycle, proc.AuthorizationCycle, proc.FinanceReleaseCycle,
			proc.CreatedAt,
		); err != nil {
			return err
		}

		for i, a := range proc.Actions {
			info, err := encodeInfo(a.Info)
			if err != nil {
				return err
			}
			rows = append(rows, placeholders(len(args), actionColumns))
			args = append(args, a.ID, proc.ID, i, a.Kind, a.Cycle, a.CreatedBy, a.CreatedAt, a.Comment, info)
		}
	}
	if len(rows) == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, insertActionsPrefix+strings.Join(rows, ", ")+insertActionsSuffix, args...)
	return err
}

func scanPlan(row *sql.Row) (*models.PaymentPlan, error) {
	var p models.PaymentPlan
	err := row.Scan(
		&p.ID, &p.Status, &p.Version, &p.ProgramID, &p.IsActiveProgram, &p.BusinessArea,
		&p.IsFollowUp, &p.SourcePlanID, &p.SplitFromID,
		&p.ApprovalNumberRequired, &p.AuthorizationNumberRequired, &p.FinanceReleaseNumberRequired,
		&p.BackgroundActionStatus, &p.RejectedOn, &p.PreparingFrom,
		&p.TargetListFinalized, &p.DeliveryMechanismsAssigned, &p.CanSplit, &p.CanSendToPaymentGateway, &p.SentToPaymentGateway,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// placeholders renders "($n, ..., $n+count-1)" starting after offset.
func placeholders(offset, count int) string {
	var b strings.Builder
	b.WriteByte('(')
	for i := 1; i <= count; i++ {
		if i > 1 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", offset+i)
	}
	b.WriteByte(')')
	return b.String()
}

func encodeInfo(info map[string]interface{}) (interface{}, error) {
	if len(info) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(info)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
