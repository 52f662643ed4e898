// Package repository provides the pgx-backed adapters for the intake
// pipeline's ports interfaces, the same role the teacher's internal/database
// (sqlc-generated) package plays for internal/core's service layer. Staging
// rows and production entities are both schema-open (their business fields
// vary per entity kind) so, like the teacher's upload path building dynamic
// SQL from a TableDefinition, these adapters build parameterized statements
// from the caller-supplied field map rather than per-entity generated code.
package repository

import "strings"

// quoteIdentifier quotes a SQL identifier to prevent injection, identical
// in shape to the teacher's internal/core/service_query.go helper.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteColumns(cols []string) []string {
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = quoteIdentifier(col)
	}
	return quoted
}
