package domain

import (
	"strings"
	"unicode/utf8"
)

// MinTitleLength is the minimum number of characters a trimmed title must have.
const MinTitleLength = 3

// Priority ranks a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// DefaultPriority is used when a caller leaves the priority empty.
const DefaultPriority = PriorityMedium

// Priorities lists the valid priorities from lowest to highest.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Label returns the display name of the priority.
func (p Priority) Label() string {
	switch p {
	case PriorityHigh:
		return "High"
	case PriorityMedium:
		return "Medium"
	default:
		return "Low"
	}
}

// ParsePriority converts user input into a Priority. Empty input yields
// DefaultPriority.
func ParsePriority(s string) (Priority, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultPriority, nil
	}
	p := Priority(s)
	if !p.Valid() {
		return "", &ValidationError{Field: "priority", Reason: "must be one of low, medium, high"}
	}
	return p, nil
}

// Task is a single to-do record.
type Task struct {
	ID        string   `json:"id" yaml:"id"`
	Title     string   `json:"title" yaml:"title"`
	Priority  Priority `json:"priority" yaml:"priority"`
	Done      bool     `json:"done" yaml:"done"`
	CreatedAt int64    `json:"createdAt" yaml:"createdAt"`
	UpdatedAt int64    `json:"updatedAt" yaml:"updatedAt"`
}

// NormalizeTitle trims surrounding whitespace.
func NormalizeTitle(title string) string {
	return strings.TrimSpace(title)
}

// ValidateTitle checks the trimmed title length.
func ValidateTitle(title string) error {
	if utf8.RuneCountInString(NormalizeTitle(title)) < MinTitleLength {
		return &ValidationError{Field: "title", Reason: "must be at least 3 characters"}
	}
	return nil
}

// ValidateInput validates a title/priority pair as submitted by a form and
// returns the normalized values.
func ValidateInput(title string, priority Priority) (string, Priority, error) {
	if err := ValidateTitle(title); err != nil {
		return "", "", err
	}
	p, err := ParsePriority(string(priority))
	if err != nil {
		return "", "", err
	}
	return NormalizeTitle(title), p, nil
}
