package database

// Column types are kept to the subset understood by both Postgres and SQLite.
// Ids are stored as TEXT, money as BIGINT cents, times in UTC.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS expense_groups (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS group_members (
		group_id     TEXT NOT NULL REFERENCES expense_groups(id) ON DELETE CASCADE,
		user_id      TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (group_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS expenses (
		id          TEXT PRIMARY KEY,
		group_id    TEXT NOT NULL,
		payer_id    TEXT NOT NULL,
		amount      BIGINT NOT NULL CHECK (amount > 0),
		description TEXT NOT NULL DEFAULT '',
		date        TIMESTAMP NOT NULL,
		created_at  TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_expenses_group_date ON expenses (group_id, date)`,
	`CREATE TABLE IF NOT EXISTS expense_shares (
		expense_id TEXT NOT NULL REFERENCES expenses(id) ON DELETE CASCADE,
		user_id    TEXT NOT NULL,
		amount     BIGINT NOT NULL CHECK (amount >= 0),
		PRIMARY KEY (expense_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS settlements (
		id               TEXT PRIMARY KEY,
		group_id         TEXT NOT NULL,
		from_user_id     TEXT NOT NULL,
		to_user_id       TEXT NOT NULL,
		total_amount     BIGINT NOT NULL CHECK (total_amount > 0),
		remaining_amount BIGINT NOT NULL CHECK (remaining_amount >= 0),
		status           TEXT NOT NULL,
		due_date         TIMESTAMP NULL,
		created_by       TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMP NOT NULL,
		updated_at       TIMESTAMP NOT NULL,
		version          BIGINT NOT NULL DEFAULT 1,
		CHECK (remaining_amount <= total_amount),
		CHECK (from_user_id <> to_user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_settlements_group ON settlements (group_id, status)`,
	`CREATE TABLE IF NOT EXISTS settlement_expenses (
		settlement_id TEXT NOT NULL REFERENCES settlements(id) ON DELETE CASCADE,
		expense_id    TEXT NOT NULL,
		PRIMARY KEY (settlement_id, expense_id)
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id              TEXT PRIMARY KEY,
		settlement_id   TEXT NOT NULL REFERENCES settlements(id) ON DELETE CASCADE,
		amount          BIGINT NOT NULL CHECK (amount > 0),
		method          TEXT NOT NULL,
		reference       TEXT NOT NULL DEFAULT '',
		note            TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL,
		submitted_by    TEXT NOT NULL,
		resolution_note TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMP NOT NULL,
		verified_at     TIMESTAMP NULL,
		rejected_at     TIMESTAMP NULL,
		cancelled_at    TIMESTAMP NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_settlement ON payments (settlement_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS settlement_audit (
		id            TEXT PRIMARY KEY,
		settlement_id TEXT NOT NULL REFERENCES settlements(id) ON DELETE CASCADE,
		action        TEXT NOT NULL,
		actor         TEXT NOT NULL,
		detail        TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMP NOT NULL
	)`,
}
