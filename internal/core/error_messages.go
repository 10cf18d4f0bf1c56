package core

// error_messages.go maps engine and storage errors to user-facing messages.
//
// # Error Codes Reference
//
// Error codes are grouped by category so a user can quote one to support.
//
// # Configuration Errors (CFG001-CFG099)
//
//	CFG001 - Config not found: No sync configuration saved for this project
//	CFG002 - Invalid config: A source is missing a required mapping
//	CFG003 - Job not found: No scheduled job for this project and mode
//	CFG004 - Invalid column: A column reference is not a spreadsheet letter
//
// # Credential Errors (AUTH001-AUTH099)
//
//	AUTH001 - Auth failed: The data source connection could not be authorised
//	AUTH002 - Token expired: The stored connection has expired or was revoked
//
// # Fetch Errors (FETCH001-FETCH099)
//
//	FETCH001 - Fetch failed: The source could not be read
//	FETCH002 - Sheet not found: The sheet or range does not exist
//	FETCH003 - Permission denied: The connected account cannot read the source
//
// # Merge Errors (MERGE001-MERGE099)
//
//	MERGE001 - Merge failed: Records could not be written
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Connection refused: Unable to connect to database
//	DB002 - Connection reset: Database connection was interrupted
//	DB003 - Deadlock: Database was busy with conflicting operations
//	DB004 - Timeout: Operation timed out
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Invalid request body
//	REQ002 - Request cancelled
//	REQ003 - Request timed out
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited: Too many requests
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches. Check the application logs for
// the technical error.
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns come first.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// Order matters: the first matching pattern wins.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Configuration Errors (CFG001-CFG004)
	// =========================================================================
	{
		pattern: "sync config not found",
		msg: UserMessage{
			Message: "No sync configuration is saved for this project",
			Action:  "Connect a source and save the column mappings first",
			Code:    "CFG001",
		},
	},
	{
		pattern: "invalid sync config",
		msg: UserMessage{
			Message: "A source is missing a required mapping",
			Action:  "Map a date column (or unique id and record type) and save again",
			Code:    "CFG002",
		},
	},
	{
		pattern: "sync job not found",
		msg: UserMessage{
			Message: "No scheduled sync exists for this project",
			Action:  "Enable auto-sync to create a schedule",
			Code:    "CFG003",
		},
	},
	{
		pattern: "invalid column",
		msg: UserMessage{
			Message: "Column reference is not valid",
			Action:  "Use spreadsheet letters such as A, Z or AA",
			Code:    "CFG004",
		},
	},

	// =========================================================================
	// Credential Errors (AUTH001-AUTH002)
	// =========================================================================
	{
		pattern: "invalid_grant",
		msg: UserMessage{
			Message: "The data source connection has expired or was revoked",
			Action:  "Reconnect the data source account",
			Code:    "AUTH002",
		},
	},
	{
		pattern: "auth failed",
		msg: UserMessage{
			Message: "The data source connection could not be authorised",
			Action:  "Reconnect the data source account",
			Code:    "AUTH001",
		},
	},

	// =========================================================================
	// Fetch Errors (FETCH001-FETCH003)
	// =========================================================================
	{
		pattern: "unable to parse range",
		msg: UserMessage{
			Message: "The selected sheet was not found in the source",
			Action:  "Check the sheet name or pick the sheet again",
			Code:    "FETCH002",
		},
	},
	{
		pattern: "permission",
		msg: UserMessage{
			Message: "The connected account cannot read this source",
			Action:  "Share the spreadsheet with the connected account",
			Code:    "FETCH003",
		},
	},
	{
		pattern: "fetch",
		msg: UserMessage{
			Message: "The source could not be read",
			Action:  "Please try again in a few moments",
			Code:    "FETCH001",
		},
	},

	// =========================================================================
	// Merge Errors (MERGE001)
	// =========================================================================
	{
		pattern: "merge",
		msg: UserMessage{
			Message: "Synced records could not be written",
			Action:  "Please try again; contact support if it keeps failing",
			Code:    "MERGE001",
		},
	},

	// =========================================================================
	// Database Errors (DB001-DB004)
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB002",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB003",
		},
	},

	// =========================================================================
	// Request Errors (REQ001-REQ003)
	// =========================================================================
	{
		pattern: "invalid request",
		msg: UserMessage{
			Message: "The request body is not valid",
			Action:  "Check the submitted fields and try again",
			Code:    "REQ001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "REQ002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Please try again later",
			Code:    "REQ003",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "DB004",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
	{
		pattern: "too many syncs",
		msg: UserMessage{
			Message: "Too many syncs in progress",
			Action:  "Please wait for a running sync to finish and try again",
			Code:    "RATE001",
		},
	},
	{
		pattern: "quota",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It returns the first matching pattern, or the ERR000 fallback.
//
// Example:
//
//	msg := MapError(&ConfigError{Reason: "no date column mapped"})
//	// msg.Code == "CFG002"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern (not ERR000).
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
