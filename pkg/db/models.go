package db

import "time"

// User represents a user account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PlaybookRecord is a stored playbook definition. Definition and
// ContextRequest hold the JSON documents as received from the parser.
type PlaybookRecord struct {
	Name           string
	Definition     string
	ContextRequest string
	Deployed       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RuleResult is one persisted rule evaluation outcome.
type RuleResult struct {
	ID        string
	Symbol    string
	Playbook  string
	RuleName  string
	Category  string
	Triggered bool
	Price     float64
	Conflicts string
	CreatedAt time.Time
}
