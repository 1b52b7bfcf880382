package utils

import "strings"

// IsUniqueViolation reports whether err is a unique-constraint violation.
// Matches postgres (SQLSTATE 23505) and the sqlite used in tests.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
