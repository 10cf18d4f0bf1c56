package core

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by stores and the scheduler.
var (
	ErrConfigNotFound = errors.New("sync config not found")
	ErrJobNotFound    = errors.New("sync job not found")
	ErrTokenNotFound  = errors.New("no oauth connection for project")
)

// ConfigError reports a source configuration that cannot be synced.
// The unit fails before any fetch or storage write.
type ConfigError struct {
	SourceID string
	Reason   string
}

func (e *ConfigError) Error() string {
	if e.SourceID == "" {
		return "invalid sync config: " + e.Reason
	}
	return fmt.Sprintf("invalid sync config for source %s: %s", e.SourceID, e.Reason)
}

// AuthError reports a failed credential exchange or refresh.
// It fails the whole project run.
type AuthError struct {
	ProjectID string
	Err       error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth failed for project %s: %v", e.ProjectID, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// FetchError reports an adapter failure for one (source, sheet) unit.
type FetchError struct {
	SourceID string
	Range    string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s from source %s failed: %v", e.Range, e.SourceID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a single cell that failed type coercion.
// Rows carrying one are dropped, never surfaced as a run error.
type ParseError struct {
	Row    int
	Column string
	Value  string
	Kind   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("row %d column %s: invalid %s %q", e.Row, e.Column, e.Kind, e.Value)
}

// MergeError reports a storage failure while merging a batch.
// Key is empty when the existence lookup failed for the whole batch.
type MergeError struct {
	Key string
	Err error
}

func (e *MergeError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("merge lookup failed: %v", e.Err)
	}
	return fmt.Sprintf("merge of %s failed: %v", e.Key, e.Err)
}

func (e *MergeError) Unwrap() error { return e.Err }

// IsConfigError reports whether err is or wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsAuthError reports whether err is or wraps an *AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
