package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const maxNameLength = 200

const dateOnly = "2006-01-02"

func requireName(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", &ValidationError{Field: field, Reason: "is required"}
	}
	if utf8.RuneCountInString(v) > maxNameLength {
		return "", &ValidationError{Field: field, Reason: "must be at most 200 characters"}
	}
	return v, nil
}

func requireID(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return &ValidationError{Field: field, Reason: "is required"}
	}
	return nil
}

// ParsePriority accepts low, medium, high or urgent in any case. The empty
// string yields medium.
func ParsePriority(v string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(v))); p {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return p, nil
	default:
		return "", &ValidationError{Field: "priority", Reason: "must be one of low, medium, high, urgent"}
	}
}

// ParseDate accepts YYYY-MM-DD or RFC3339. The empty string means no date.
func ParseDate(field, v string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(dateOnly, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, &ValidationError{Field: field, Reason: "must be YYYY-MM-DD or RFC3339"}
	}
	t = t.UTC()
	return &t, nil
}
