package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrJamesThe3rd/splitledger/internal/database"
	"github.com/MrJamesThe3rd/splitledger/internal/group"
)

type Store struct {
	db *database.DB
}

func New(db *database.DB) *Store {
	return &Store{db: db}
}

func (s *Store) GetGroup(ctx context.Context, id string) (*group.Group, error) {
	query := s.db.Rebind(`SELECT id, name, created_at FROM expense_groups WHERE id = ?`)

	var g group.Group

	err := s.db.QueryRowContext(ctx, query, id).Scan(&g.ID, &g.Name, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, group.ErrNotFound
		}

		return nil, fmt.Errorf("getting group: %w", err)
	}

	members, err := s.members(ctx, id)
	if err != nil {
		return nil, err
	}

	g.Members = members

	return &g, nil
}

func (s *Store) ListGroups(ctx context.Context, userID string) ([]*group.Group, error) {
	query := `SELECT g.id, g.name, g.created_at FROM expense_groups g`

	var args []any

	if userID != "" {
		query += ` WHERE EXISTS (SELECT 1 FROM group_members m WHERE m.group_id = g.id AND m.user_id = ?)`

		args = append(args, userID)
	}

	query += ` ORDER BY g.name ASC, g.id ASC`

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("listing groups: %w", err)
	}

	var groups []*group.Group

	for rows.Next() {
		var g group.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning group: %w", err)
		}

		groups = append(groups, &g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating group rows: %w", err)
	}

	rows.Close()

	for _, g := range groups {
		if g.Members, err = s.members(ctx, g.ID); err != nil {
			return nil, err
		}
	}

	return groups, nil
}

func (s *Store) members(ctx context.Context, groupID string) ([]group.Member, error) {
	query := s.db.Rebind(`SELECT user_id, display_name FROM group_members WHERE group_id = ? ORDER BY user_id ASC`)

	rows, err := s.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	defer rows.Close()

	var members []group.Member

	for rows.Next() {
		var m group.Member
		if err := rows.Scan(&m.UserID, &m.DisplayName); err != nil {
			return nil, fmt.Errorf("scanning member: %w", err)
		}

		members = append(members, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating member rows: %w", err)
	}

	return members, nil
}

// UpsertGroup creates the group or renames it, and inserts members that are
// not stored yet. Members are never removed here.
func (s *Store) UpsertGroup(ctx context.Context, g *group.Group) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer dbTx.Rollback()

	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}

	groupQuery := s.db.Rebind(`
		INSERT INTO expense_groups (id, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`)
	if _, err := dbTx.ExecContext(ctx, groupQuery, g.ID, g.Name, g.CreatedAt); err != nil {
		return fmt.Errorf("upserting group: %w", err)
	}

	memberQuery := s.db.Rebind(`
		INSERT INTO group_members (group_id, user_id, display_name)
		VALUES (?, ?, ?)
		ON CONFLICT (group_id, user_id) DO NOTHING
	`)
	for _, m := range g.Members {
		if _, err := dbTx.ExecContext(ctx, memberQuery, g.ID, m.UserID, m.DisplayName); err != nil {
			return fmt.Errorf("adding member %s: %w", m.UserID, err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}
