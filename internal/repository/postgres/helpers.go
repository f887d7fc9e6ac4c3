package postgres

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// applyPagination appends LIMIT/OFFSET clauses using positional parameters.
// A zero limit means unbounded.
func applyPagination(query string, args *[]interface{}, limit, offset int) string {
	if limit > 0 {
		*args = append(*args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(*args))
	}
	if offset > 0 {
		*args = append(*args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(*args))
	}
	return query
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
