package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitledger/internal/database"
	"github.com/MrJamesThe3rd/splitledger/internal/expense"
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

// Expected column order: id, group_id, payer_id, amount, description, date, created_at
func scanExpense(s scanner) (*expense.Expense, error) {
	var e expense.Expense

	if err := s.Scan(&e.ID, &e.GroupID, &e.PayerID, &e.Amount, &e.Description, &e.Date, &e.CreatedAt); err != nil {
		return nil, err
	}

	e.Shares = make(map[string]int64)

	return &e, nil
}

const selectExpenseColumns = `e.id, e.group_id, e.payer_id, e.amount, e.description, e.date, e.created_at`

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) GetExpense(ctx context.Context, id uuid.UUID) (*expense.Expense, error) {
	query := s.db.Rebind(`SELECT ` + selectExpenseColumns + ` FROM expenses e WHERE e.id = ?`)

	e, err := scanExpense(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, expense.ErrNotFound
		}

		return nil, fmt.Errorf("getting expense: %w", err)
	}

	byID := map[uuid.UUID]*expense.Expense{e.ID: e}

	sharesQuery := s.db.Rebind(`SELECT expense_id, user_id, amount FROM expense_shares WHERE expense_id = ?`)
	if err := loadShares(ctx, s.db, sharesQuery, byID, id); err != nil {
		return nil, err
	}

	return e, nil
}

func (s *Store) ListExpenses(ctx context.Context, groupID string) ([]*expense.Expense, error) {
	return listExpenses(ctx, s.db, s.db, groupID, nil, nil)
}

// listExpenses loads the group's expenses (optionally bounded by date) with their shares.
func listExpenses(ctx context.Context, db *database.DB, q queryer, groupID string, from, to *time.Time) ([]*expense.Expense, error) {
	query := `SELECT ` + selectExpenseColumns + ` FROM expenses e WHERE e.group_id = ?`
	args := []any{groupID}

	if from != nil {
		query += " AND e.date >= ?"

		args = append(args, *from)
	}

	if to != nil {
		query += " AND e.date <= ?"

		args = append(args, *to)
	}

	query += " ORDER BY e.date ASC, e.created_at ASC, e.id ASC"

	rows, err := q.QueryContext(ctx, db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	defer rows.Close()

	var exps []*expense.Expense

	byID := make(map[uuid.UUID]*expense.Expense)

	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning expense: %w", err)
		}

		exps = append(exps, e)
		byID[e.ID] = e
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating expense rows: %w", err)
	}

	if len(exps) == 0 {
		return exps, nil
	}

	sharesQuery := db.Rebind(`
		SELECT s.expense_id, s.user_id, s.amount
		FROM expense_shares s
		JOIN expenses e ON e.id = s.expense_id
		WHERE e.group_id = ?`)

	if err := loadShares(ctx, q, sharesQuery, byID, groupID); err != nil {
		return nil, err
	}

	return exps, nil
}

func loadShares(ctx context.Context, q queryer, query string, byID map[uuid.UUID]*expense.Expense, args ...any) error {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("listing shares: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			expenseID uuid.UUID
			userID    string
			amount    int64
		)

		if err := rows.Scan(&expenseID, &userID, &amount); err != nil {
			return fmt.Errorf("scanning share: %w", err)
		}

		if e, ok := byID[expenseID]; ok {
			e.Shares[userID] = amount
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating share rows: %w", err)
	}

	return nil
}

func importLockKey(groupID string) int64 {
	h := fnv.New64a()
	h.Write([]byte("expense-import"))
	h.Write([]byte{0})
	h.Write([]byte(groupID))

	return int64(h.Sum64())
}

type importTx struct {
	db *database.DB
	tx *sql.Tx
}

// BeginImport opens a transaction serialised per group so two concurrent
// imports cannot both miss each other's duplicates.
func (s *Store) BeginImport(ctx context.Context, groupID string) (expense.ImportTx, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning import tx: %w", err)
	}

	if s.db.Driver == database.DriverPostgres {
		if _, err := dbTx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", importLockKey(groupID)); err != nil {
			dbTx.Rollback()
			return nil, fmt.Errorf("acquiring import lock: %w", err)
		}
	}

	return &importTx{db: s.db, tx: dbTx}, nil
}

func (itx *importTx) Commit() error   { return itx.tx.Commit() }
func (itx *importTx) Rollback() error { return itx.tx.Rollback() }

func (itx *importTx) FindDuplicates(ctx context.Context, groupID string, params []expense.CreateParams) ([]*expense.Expense, error) {
	if len(params) == 0 {
		return nil, nil
	}

	minDate := params[0].Date
	maxDate := params[0].Date

	for _, p := range params[1:] {
		if p.Date.Before(minDate) {
			minDate = p.Date
		}

		if p.Date.After(maxDate) {
			maxDate = p.Date
		}
	}

	// Widen to whole days; duplicates are matched by calendar date.
	from := time.Date(minDate.Year(), minDate.Month(), minDate.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(maxDate.Year(), maxDate.Month(), maxDate.Day(), 23, 59, 59, 0, time.UTC)

	candidates, err := listExpenses(ctx, itx.db, itx.tx, groupID, &from, &to)
	if err != nil {
		return nil, fmt.Errorf("finding duplicates: %w", err)
	}

	var duplicates []*expense.Expense

	for _, c := range candidates {
		for _, p := range params {
			if expense.DuplicateKeyMatches(c, p) {
				duplicates = append(duplicates, c)
				break
			}
		}
	}

	return duplicates, nil
}

func (itx *importTx) CreateExpenses(ctx context.Context, exps []*expense.Expense) error {
	expenseQuery := itx.db.Rebind(`
		INSERT INTO expenses (id, group_id, payer_id, amount, description, date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	shareQuery := itx.db.Rebind(`INSERT INTO expense_shares (expense_id, user_id, amount) VALUES (?, ?, ?)`)

	now := time.Now().UTC()

	for _, e := range exps {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}

		e.CreatedAt = now

		if _, err := itx.tx.ExecContext(ctx, expenseQuery,
			e.ID, e.GroupID, e.PayerID, e.Amount, e.Description, e.Date.UTC(), e.CreatedAt,
		); err != nil {
			return fmt.Errorf("creating expense: %w", err)
		}

		for user, amount := range e.Shares {
			if _, err := itx.tx.ExecContext(ctx, shareQuery, e.ID, user, amount); err != nil {
				return fmt.Errorf("creating share: %w", err)
			}
		}
	}

	return nil
}
