package core

// validation.go checks project and source configurations.
//
// Validation happens at two levels:
//  1. Structural validation on save: struct tags checked by go-playground/validator
//     (required fields, sync mode enum, column letters).
//  2. Sync validation per source: the mode-specific mapping requirements. A source
//     that fails it becomes a ConfigError for that source only, at sync time.

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a single validation error for a field.
type ValidationError struct {
	Field   string // Field path, e.g. Sources[0].SpreadsheetID
	Value   string // The invalid value
	Message string // Human-readable error message
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ValidationErrors collects every structural problem of a config.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return "invalid request: " + strings.Join(msgs, "; ")
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// structValidator returns the shared validator with the custom tags registered.
func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("column_letter", func(fl validator.FieldLevel) bool {
			return IsColumnLetter(fl.Field().String())
		})
	})
	return validate
}

// Validate checks the structure of the config. It does not check the
// mode-specific mapping rules; see SourceConfig.ValidateForSync.
func (c ProjectSyncConfig) Validate() error {
	var errs ValidationErrors

	if err := structValidator().Struct(c); err != nil {
		fieldErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		for _, fe := range fieldErrs {
			errs = append(errs, ValidationError{
				Field:   strings.TrimPrefix(fe.Namespace(), "ProjectSyncConfig."),
				Value:   fmt.Sprint(fe.Value()),
				Message: tagMessage(fe),
			})
		}
	}

	seen := make(map[string]bool)
	for i, s := range c.Sources {
		if s.ID == "" {
			continue
		}
		if seen[s.ID] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("Sources[%d].ID", i),
				Value:   s.ID,
				Message: "duplicate source id",
			})
		}
		seen[s.ID] = true
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required field is empty"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "column_letter":
		return "not a spreadsheet column letter"
	case "min":
		return "must have at least " + fe.Param() + " entries"
	case "gte", "lte":
		return "out of range"
	}
	return "failed " + fe.Tag() + " check"
}

// ValidateForSync checks the mapping rules a source must meet before it is fetched:
// exactly one date column in both modes, and in individual mode a unique id
// column and record type.
func (s SourceConfig) ValidateForSync() error {
	fail := func(format string, args ...any) error {
		return &ConfigError{SourceID: s.ID, Reason: fmt.Sprintf(format, args...)}
	}

	if s.SyncMode != ModeAggregate && s.SyncMode != ModeIndividual {
		return fail("unknown sync mode %q", s.SyncMode)
	}

	dates := 0
	for letter, m := range s.ColumnMappings {
		if !IsColumnLetter(letter) {
			return fail("invalid column %q in mappings", letter)
		}
		if m.SemanticKey == KeyDate && !m.IsCustomMetric {
			dates++
		}
	}
	switch {
	case dates == 0:
		return fail("no date column mapped")
	case dates > 1:
		return fail("%d date columns mapped, want exactly one", dates)
	}

	if s.SyncMode == ModeAggregate {
		return nil
	}

	if s.UniqueIDColumn == "" {
		return fail("individual mode requires a unique id column")
	}
	if strings.TrimSpace(s.RecordType) == "" {
		return fail("individual mode requires a record type")
	}
	for name, letter := range map[string]string{
		"unique id": s.UniqueIDColumn,
		"amount":    s.AmountColumn,
		"status":    s.StatusColumn,
	} {
		if letter != "" && !IsColumnLetter(letter) {
			return fail("invalid %s column %q", name, letter)
		}
	}
	return nil
}
