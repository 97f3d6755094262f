package rules

import "fmt"

// ConfigError reports a rule definition that cannot be loaded: an unknown
// primitive name, a duplicate extension id, a condition leaf referencing an
// undeclared extension, or invalid primitive parameters. Rules that fail this
// way are rejected wholesale at construction time and never partially loaded.
type ConfigError struct {
	Rule   string // rule name, when known
	Detail string
}

func (e *ConfigError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("rule %q: %s", e.Rule, e.Detail)
	}
	return e.Detail
}

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{Detail: fmt.Sprintf(format, args...)}
}

// MissingFieldError reports that an evaluator required a field absent from
// the assembled context. It is raised rather than defaulted: evaluating a
// trading rule without the financial data it asked for is not acceptable.
type MissingFieldError struct {
	Field string
	Scope string // "context", "account" or "history"
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s field %q not available in context", e.Scope, e.Field)
}

// ProviderError wraps a failure of an external data provider during context
// hydration. The tick is skipped; no partial context is ever evaluated.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
