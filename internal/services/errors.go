package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/eduhub-vn/exam-session-service/internal/validator"
)

// Re-export so handlers can errors.As against one package.
type ValidationErrors = validator.ValidationErrors

// ===== SENTINEL ERRORS =====

var (
	// Exam / loading
	ErrExamNotFound     = errors.New("exam not found")
	ErrExamNotPublished = errors.New("exam is not published")
	ErrExamLoadFailed   = errors.New("failed to load exam content")

	// Schedule gate
	ErrGateNoSchedule = errors.New("no schedule defined for exam")
	ErrGateNotYetOpen = errors.New("exam window has not opened yet")
	ErrGateClosed     = errors.New("exam window has closed")

	// Session lifecycle
	ErrSessionNotFound         = errors.New("session not found")
	ErrSessionAlreadySubmitted = errors.New("session already submitted")

	// Results
	ErrResultNotFound = errors.New("result not found")
)

// ===== TYPED ERRORS =====

// PermissionError indicates the acting user may not perform an action on a
// resource.
type PermissionError struct {
	UserID     string
	ResourceID string
	Resource   string
	Action     string
	Reason     string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s cannot %s %s %s: %s",
		e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func NewPermissionError(userID, resourceID, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// BusinessRuleError indicates a domain rule was violated.
type BusinessRuleError struct {
	Rule    string
	Message string
	Context map[string]interface{}
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule violation (%s): %s", e.Rule, e.Message)
}

func NewBusinessRuleError(rule, message string, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    rule,
		Message: message,
		Context: context,
	}
}

// ===== BOUNDARY ERROR NORMALIZATION =====

// NormalizeErrorMessage flattens the heterogeneous error shapes a backend may
// return into one human-readable, newline-joined string. Handled shapes, in
// order: a JSON array of strings, a {"field": ["msg", ...]} map, a
// {"detail": "..."} object, a {"message": "..."} object, and finally the raw
// text as-is.
func NormalizeErrorMessage(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "unknown error"
	}

	var list []string
	if err := json.Unmarshal([]byte(trimmed), &list); err == nil && len(list) > 0 {
		return strings.Join(list, "\n")
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &obj); err == nil && len(obj) > 0 {
		if msg, ok := stringField(obj, "detail"); ok {
			return msg
		}
		if msg, ok := stringField(obj, "message"); ok {
			return msg
		}

		// Field -> message(s) map. Sorted for a stable rendering.
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var lines []string
		for _, k := range keys {
			var msgs []string
			if err := json.Unmarshal(obj[k], &msgs); err == nil {
				for _, m := range msgs {
					lines = append(lines, fmt.Sprintf("%s: %s", k, m))
				}
				continue
			}
			var single string
			if err := json.Unmarshal(obj[k], &single); err == nil {
				lines = append(lines, fmt.Sprintf("%s: %s", k, single))
			}
		}
		if len(lines) > 0 {
			return strings.Join(lines, "\n")
		}
	}

	return trimmed
}

func stringField(obj map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := obj[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return "", false
	}
	return s, true
}
