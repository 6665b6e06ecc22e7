package utils

import "strings"

// IsAutoincrementInsertQuery reports whether the statement is an INSERT
// carrying a RETURNING clause. Session backends route such statements
// through QueryRow so the generated key can be scanned back.
func IsAutoincrementInsertQuery(query string) bool {
	q := strings.ToUpper(query)
	return strings.HasPrefix(strings.TrimSpace(q), "INSERT") && strings.Contains(q, "RETURNING")
}
