// ABOUTME: Structured policy rejection errors carrying machine code, HTTP status, and context
// ABOUTME: Handlers serialize these directly into the API error envelope

package policy

import "fmt"

// Error is a policy rejection. Code and Fields go on the wire; Status picks
// the HTTP response code.
type Error struct {
	Code    string
	Status  int
	Message string
	Fields  map[string]any
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

func validationError(message string) *Error {
	return &Error{
		Code:    "invalid_request",
		Status:  400,
		Message: message,
	}
}

func consentDenied(recipient string) *Error {
	return &Error{
		Code:    "contact_consent_denied",
		Status:  403,
		Message: "contact has opted out of automated messages",
		Fields:  map[string]any{"recipient": recipient},
	}
}

func recipientNotAllowed(patterns []string) *Error {
	return &Error{
		Code:    "recipient_not_allowed",
		Status:  403,
		Message: "recipient does not match the key's allowlist",
		Fields:  map[string]any{"allowed_patterns": patterns},
	}
}

func rateLimitExceeded(limitType string, current int64, limit int, retryAfter int64) *Error {
	return &Error{
		Code:    "rate_limit_exceeded",
		Status:  429,
		Message: fmt.Sprintf("%s rate limit exceeded", limitType),
		Fields: map[string]any{
			"limit_type":          limitType,
			"current_count":       current,
			"limit":               limit,
			"retry_after_seconds": retryAfter,
		},
	}
}

func contentBlocked(filterID, description string) *Error {
	return &Error{
		Code:    "content_blocked",
		Status:  400,
		Message: "message content matched a deny filter",
		Fields: map[string]any{
			"filter":      filterID,
			"description": description,
		},
	}
}
