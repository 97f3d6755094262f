// Package db persists users, playbook definitions and rule evaluation results.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a lookup matches no record.
	ErrNotFound = errors.New("record not found")
)

// Queries provides typed access to the schema.
type Queries struct {
	db *sql.DB
}

// NewQueries creates a Queries instance over an open handle.
func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// ----------------------------------------
// User queries
// ----------------------------------------

// CreateUser inserts a new user.
func (q *Queries) CreateUser(ctx context.Context, u User) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, u.ID, u.Email, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByEmail returns a user by email, or nil when absent.
func (q *Queries) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users WHERE email = ?
	`, email)

	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// GetUserByID returns a user by id.
func (q *Queries) GetUserByID(ctx context.Context, id string) (*User, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users WHERE id = ?
	`, id)

	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// ----------------------------------------
// Playbook queries
// ----------------------------------------

// SavePlaybook inserts or replaces a playbook definition by name.
func (q *Queries) SavePlaybook(ctx context.Context, p PlaybookRecord) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO playbooks (name, definition, context_request, deployed, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			definition = excluded.definition,
			context_request = excluded.context_request,
			deployed = excluded.deployed,
			updated_at = CURRENT_TIMESTAMP
	`, p.Name, p.Definition, p.ContextRequest, p.Deployed)
	if err != nil {
		return fmt.Errorf("save playbook: %w", err)
	}
	return nil
}

// GetPlaybook returns one playbook by name.
func (q *Queries) GetPlaybook(ctx context.Context, name string) (*PlaybookRecord, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT name, definition, COALESCE(context_request, ''), deployed, created_at, updated_at
		FROM playbooks WHERE name = ?
	`, name)

	var p PlaybookRecord
	if err := row.Scan(&p.Name, &p.Definition, &p.ContextRequest, &p.Deployed, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan playbook: %w", err)
	}
	return &p, nil
}

// ListPlaybooks returns all stored playbooks, most recently updated first.
func (q *Queries) ListPlaybooks(ctx context.Context) ([]PlaybookRecord, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT name, definition, COALESCE(context_request, ''), deployed, created_at, updated_at
		FROM playbooks ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query playbooks: %w", err)
	}
	defer rows.Close()

	var out []PlaybookRecord
	for rows.Next() {
		var p PlaybookRecord
		if err := rows.Scan(&p.Name, &p.Definition, &p.ContextRequest, &p.Deployed, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan playbook: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkDeployed flips the deployed flag, clearing it on every other playbook so
// at most one is marked live.
func (q *Queries) MarkDeployed(ctx context.Context, name string) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE playbooks SET deployed = 0 WHERE deployed = 1`); err != nil {
		return fmt.Errorf("clear deployed: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE playbooks SET deployed = 1, updated_at = CURRENT_TIMESTAMP WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("mark deployed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// DeletePlaybook removes a stored playbook.
func (q *Queries) DeletePlaybook(ctx context.Context, name string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM playbooks WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete playbook: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ----------------------------------------
// Rule result queries
// ----------------------------------------

// InsertRuleResult persists one evaluation outcome.
func (q *Queries) InsertRuleResult(ctx context.Context, r RuleResult) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO rule_results (id, symbol, playbook, rule_name, category, triggered, price, conflicts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Symbol, r.Playbook, r.RuleName, r.Category, r.Triggered, r.Price, r.Conflicts)
	if err != nil {
		return fmt.Errorf("insert rule result: %w", err)
	}
	return nil
}

// ListRuleResults returns recent results for a symbol, newest first. An empty
// symbol returns results across all symbols.
func (q *Queries) ListRuleResults(ctx context.Context, symbol string, limit int) ([]RuleResult, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, symbol, playbook, rule_name, category, triggered, COALESCE(price, 0), COALESCE(conflicts, ''), created_at
		FROM rule_results`
	args := []any{}
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rule results: %w", err)
	}
	defer rows.Close()

	var out []RuleResult
	for rows.Next() {
		var r RuleResult
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Playbook, &r.RuleName, &r.Category, &r.Triggered, &r.Price, &r.Conflicts, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rule result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
