package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitledger/internal/database"
	"github.com/MrJamesThe3rd/splitledger/internal/ledger"
	"github.com/MrJamesThe3rd/splitledger/internal/settlement"
)

type Store struct {
	db *database.DB
}

func New(db *database.DB) *Store {
	return &Store{db: db}
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const selectSettlementColumns = `
	id, group_id, from_user_id, to_user_id, total_amount, remaining_amount,
	status, due_date, created_by, created_at, updated_at, version
`

func scanSettlement(s scanner) (*settlement.Settlement, error) {
	var (
		st        settlement.Settlement
		statusStr string
		due       sql.NullTime
	)

	if err := s.Scan(
		&st.ID, &st.GroupID, &st.FromUserID, &st.ToUserID, &st.TotalAmount, &st.RemainingAmount,
		&statusStr, &due, &st.CreatedBy, &st.CreatedAt, &st.UpdatedAt, &st.Version,
	); err != nil {
		return nil, err
	}

	st.Status = settlement.Status(statusStr)

	if due.Valid {
		st.DueDate = new(due.Time)
	}

	return &st, nil
}

const selectPaymentColumns = `
	id, settlement_id, amount, method, reference, note, status, submitted_by,
	resolution_note, created_at, verified_at, rejected_at, cancelled_at
`

func scanPayment(s scanner) (*settlement.Payment, error) {
	var (
		p                                settlement.Payment
		methodStr, statusStr             string
		verifiedAt, rejectedAt, cancelAt sql.NullTime
	)

	if err := s.Scan(
		&p.ID, &p.SettlementID, &p.Amount, &methodStr, &p.Reference, &p.Note, &statusStr, &p.SubmittedBy,
		&p.ResolutionNote, &p.CreatedAt, &verifiedAt, &rejectedAt, &cancelAt,
	); err != nil {
		return nil, err
	}

	p.Method = settlement.Method(methodStr)
	p.Status = settlement.PaymentStatus(statusStr)
	p.VerifiedAt = nullTime(verifiedAt)
	p.RejectedAt = nullTime(rejectedAt)
	p.CancelledAt = nullTime(cancelAt)

	return &p, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}

	return new(t.Time)
}

func (s *Store) CreateSettlement(ctx context.Context, st *settlement.Settlement) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer dbTx.Rollback()

	query := s.db.Rebind(`
		INSERT INTO settlements (id, group_id, from_user_id, to_user_id, total_amount, remaining_amount,
			status, due_date, created_by, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	var due any
	if st.DueDate != nil {
		due = st.DueDate.UTC()
	}

	if _, err := dbTx.ExecContext(ctx, query,
		st.ID, st.GroupID, st.FromUserID, st.ToUserID, st.TotalAmount, st.RemainingAmount,
		string(st.Status), due, st.CreatedBy, st.CreatedAt, st.UpdatedAt, st.Version,
	); err != nil {
		return fmt.Errorf("creating settlement: %w", err)
	}

	linkQuery := s.db.Rebind(`INSERT INTO settlement_expenses (settlement_id, expense_id) VALUES (?, ?)`)
	for _, expenseID := range st.ExpenseIDs {
		if _, err := dbTx.ExecContext(ctx, linkQuery, st.ID, expenseID); err != nil {
			return fmt.Errorf("linking expense %s: %w", expenseID, err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *Store) GetSettlement(ctx context.Context, id uuid.UUID) (*settlement.Settlement, error) {
	query := s.db.Rebind(`SELECT ` + selectSettlementColumns + ` FROM settlements WHERE id = ?`)

	st, err := scanSettlement(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, settlement.ErrSettlementNotFound
		}

		return nil, fmt.Errorf("getting settlement: %w", err)
	}

	if err := s.loadChildren(ctx, st); err != nil {
		return nil, err
	}

	return st, nil
}

func (s *Store) ListSettlements(ctx context.Context, filter settlement.ListFilter) ([]*settlement.Settlement, error) {
	query := `SELECT ` + selectSettlementColumns + ` FROM settlements WHERE 1 = 1`

	var args []any

	if filter.GroupID != "" {
		query += " AND group_id = ?"

		args = append(args, filter.GroupID)
	}

	if filter.UserID != "" {
		query += " AND (from_user_id = ? OR to_user_id = ?)"

		args = append(args, filter.UserID, filter.UserID)
	}

	if len(filter.Statuses) > 0 {
		query += " AND status IN (?" + strings.Repeat(", ?", len(filter.Statuses)-1) + ")"

		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}

	if filter.DueBefore != nil {
		query += " AND due_date IS NOT NULL AND due_date < ?"

		args = append(args, filter.DueBefore.UTC())
	}

	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("listing settlements: %w", err)
	}

	var list []*settlement.Settlement

	for rows.Next() {
		st, err := scanSettlement(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning settlement: %w", err)
		}

		list = append(list, st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating settlement rows: %w", err)
	}

	rows.Close()

	for _, st := range list {
		if err := s.loadChildren(ctx, st); err != nil {
			return nil, err
		}
	}

	return list, nil
}

// loadChildren fills in the expense links and payments of st.
func (s *Store) loadChildren(ctx context.Context, st *settlement.Settlement) error {
	linkQuery := s.db.Rebind(`SELECT expense_id FROM settlement_expenses WHERE settlement_id = ? ORDER BY expense_id`)

	rows, err := s.db.QueryContext(ctx, linkQuery, st.ID)
	if err != nil {
		return fmt.Errorf("listing settlement expenses: %w", err)
	}

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scanning expense link: %w", err)
		}

		st.ExpenseIDs = append(st.ExpenseIDs, id)
	}

	rows.Close()

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating expense links: %w", err)
	}

	paymentQuery := s.db.Rebind(`SELECT ` + selectPaymentColumns + ` FROM payments WHERE settlement_id = ? ORDER BY created_at ASC, id ASC`)

	prows, err := s.db.QueryContext(ctx, paymentQuery, st.ID)
	if err != nil {
		return fmt.Errorf("listing payments: %w", err)
	}
	defer prows.Close()

	for prows.Next() {
		p, err := scanPayment(prows)
		if err != nil {
			return fmt.Errorf("scanning payment: %w", err)
		}

		st.Payments = append(st.Payments, p)
	}

	if err := prows.Err(); err != nil {
		return fmt.Errorf("iterating payments: %w", err)
	}

	return nil
}

func (s *Store) CoveredExpenseIDs(ctx context.Context, groupID string) (map[uuid.UUID]bool, error) {
	query := s.db.Rebind(`
		SELECT se.expense_id
		FROM settlement_expenses se
		JOIN settlements st ON st.id = se.settlement_id
		WHERE st.group_id = ? AND st.status = ?
	`)

	rows, err := s.db.QueryContext(ctx, query, groupID, string(settlement.StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("listing covered expenses: %w", err)
	}
	defer rows.Close()

	covered := make(map[uuid.UUID]bool)

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning covered expense: %w", err)
		}

		covered[id] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating covered expenses: %w", err)
	}

	return covered, nil
}

// SettledTransfers lists completed settlements that name no expenses. Their
// totals offset the ledger directly.
func (s *Store) SettledTransfers(ctx context.Context, groupID string) ([]ledger.Transfer, error) {
	query := s.db.Rebind(`
		SELECT st.from_user_id, st.to_user_id, st.total_amount
		FROM settlements st
		WHERE st.group_id = ? AND st.status = ?
		  AND NOT EXISTS (SELECT 1 FROM settlement_expenses se WHERE se.settlement_id = st.id)
		ORDER BY st.created_at, st.id
	`)

	rows, err := s.db.QueryContext(ctx, query, groupID, string(settlement.StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("listing settled transfers: %w", err)
	}
	defer rows.Close()

	var transfers []ledger.Transfer

	for rows.Next() {
		var t ledger.Transfer
		if err := rows.Scan(&t.From, &t.To, &t.Amount); err != nil {
			return nil, fmt.Errorf("scanning settled transfer: %w", err)
		}

		transfers = append(transfers, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating settled transfers: %w", err)
	}

	return transfers, nil
}

func (s *Store) GetPayment(ctx context.Context, id uuid.UUID) (*settlement.Payment, error) {
	query := s.db.Rebind(`SELECT ` + selectPaymentColumns + ` FROM payments WHERE id = ?`)

	p, err := scanPayment(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, settlement.ErrPaymentNotFound
		}

		return nil, fmt.Errorf("getting payment: %w", err)
	}

	return p, nil
}

// CreatePayment inserts the claim and bumps the settlement version in the
// same transaction, so a claim never slips in next to a concurrent
// completion.
func (s *Store) CreatePayment(ctx context.Context, p *settlement.Payment, expectedVersion int64) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer dbTx.Rollback()

	bump := s.db.Rebind(`
		UPDATE settlements
		SET version = version + 1, updated_at = ?
		WHERE id = ? AND version = ? AND status <> ?
	`)

	res, err := dbTx.ExecContext(ctx, bump, p.CreatedAt, p.SettlementID, expectedVersion, string(settlement.StatusCompleted))
	if err != nil {
		return fmt.Errorf("bumping settlement version: %w", err)
	}

	if err := expectOneRow(res, settlement.ErrStaleVersion); err != nil {
		return err
	}

	insert := s.db.Rebind(`
		INSERT INTO payments (id, settlement_id, amount, method, reference, note, status, submitted_by,
			resolution_note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	if _, err := dbTx.ExecContext(ctx, insert,
		p.ID, p.SettlementID, p.Amount, string(p.Method), p.Reference, p.Note, string(p.Status), p.SubmittedBy,
		p.ResolutionNote, p.CreatedAt,
	); err != nil {
		return fmt.Errorf("creating payment: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

var resolvedAtColumn = map[settlement.PaymentStatus]string{
	settlement.PaymentVerified:  "verified_at",
	settlement.PaymentDisputed:  "rejected_at",
	settlement.PaymentCancelled: "cancelled_at",
}

func (s *Store) ApplyTransition(ctx context.Context, t settlement.Transition) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer dbTx.Rollback()

	if pc := t.Payment; pc != nil {
		col, ok := resolvedAtColumn[pc.To]
		if !ok {
			return fmt.Errorf("unsupported payment transition to %q", pc.To)
		}

		query := s.db.Rebind(`
			UPDATE payments
			SET status = ?, resolution_note = ?, ` + col + ` = ?
			WHERE id = ? AND status = ?
		`)

		res, err := dbTx.ExecContext(ctx, query, string(pc.To), pc.Note, pc.At.UTC(), pc.ID, string(pc.From))
		if err != nil {
			return fmt.Errorf("updating payment: %w", err)
		}

		if err := expectOneRow(res, settlement.ErrStaleStatus); err != nil {
			return err
		}
	}

	if sc := t.Settlement; sc != nil {
		query := s.db.Rebind(`
			UPDATE settlements
			SET remaining_amount = ?, status = ?, updated_at = ?, version = version + 1
			WHERE id = ? AND version = ?
		`)

		res, err := dbTx.ExecContext(ctx, query, sc.Remaining, string(sc.Status), sc.At.UTC(), sc.ID, sc.ExpectedVersion)
		if err != nil {
			return fmt.Errorf("updating settlement: %w", err)
		}

		if err := expectOneRow(res, settlement.ErrStaleVersion); err != nil {
			return err
		}
	}

	if a := t.Audit; a != nil {
		query := s.db.Rebind(`
			INSERT INTO settlement_audit (id, settlement_id, action, actor, detail, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`)

		if _, err := dbTx.ExecContext(ctx, query, a.ID, a.SettlementID, string(a.Action), a.Actor, a.Detail, a.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("writing audit entry: %w", err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// ListAudit returns the audit trail of a settlement, oldest first.
func (s *Store) ListAudit(ctx context.Context, settlementID uuid.UUID) ([]settlement.AuditEntry, error) {
	query := s.db.Rebind(`
		SELECT id, settlement_id, action, actor, detail, created_at
		FROM settlement_audit
		WHERE settlement_id = ?
		ORDER BY created_at ASC
	`)

	rows, err := s.db.QueryContext(ctx, query, settlementID)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	var entries []settlement.AuditEntry

	for rows.Next() {
		var (
			a      settlement.AuditEntry
			action string
		)

		if err := rows.Scan(&a.ID, &a.SettlementID, &action, &a.Actor, &a.Detail, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}

		a.Action = settlement.AuditAction(action)
		entries = append(entries, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	return entries, nil
}

func expectOneRow(res sql.Result, stale error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}

	if n != 1 {
		return stale
	}

	return nil
}
