package shared

import (
	"strings"
	"time"
	"unicode/utf8"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// MaxUserIDLength bounds opaque user identifiers accepted from callers.
const MaxUserIDLength = 128

// UserID is an opaque user identifier owned by the identity subsystem.
type UserID string

// IsValid checks that the ID is non-empty and within length bounds.
func (u UserID) IsValid() bool {
	n := utf8.RuneCountInString(string(u))
	return n > 0 && n <= MaxUserIDLength
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// NewUserID creates a new UserID with validation.
func NewUserID(id string) (UserID, error) {
	uid := UserID(strings.TrimSpace(id))
	if !uid.IsValid() {
		return "", ErrInvalidUserID
	}
	return uid, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Text Normalization
// ═══════════════════════════════════════════════════════════════════════════

// NormalizeKey folds free text (university names, subjects) for comparison.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// EqualFold reports whether two free-text values are equal after
// normalization. Empty values never compare equal.
func EqualFold(a, b string) bool {
	na, nb := NormalizeKey(a), NormalizeKey(b)
	return na != "" && na == nb
}

// ═══════════════════════════════════════════════════════════════════════════
// TimeRange Value Object
// ═══════════════════════════════════════════════════════════════════════════

// TimeRange represents a time period.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// IsValid checks if the time range is valid.
func (t TimeRange) IsValid() bool {
	return !t.From.IsZero() && !t.To.IsZero() && !t.From.After(t.To)
}

// Duration returns the duration of the time range.
func (t TimeRange) Duration() time.Duration {
	return t.To.Sub(t.From)
}

// Contains checks if a time is within the range.
func (t TimeRange) Contains(tm time.Time) bool {
	return (tm.Equal(t.From) || tm.After(t.From)) && (tm.Equal(t.To) || tm.Before(t.To))
}

