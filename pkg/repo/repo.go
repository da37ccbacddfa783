package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Tx is the subset of pgx.Tx / *pgxpool.Pool used by repositories.
type Tx interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func Join(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, " ")
}

func JoinWhere(conditions ...string) string {
	if len(conditions) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(conditions, " AND ")
}

func FormatLimitOffset(limit, offset int) string {
	switch {
	case limit > 0 && offset > 0:
		return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
	case limit > 0:
		return fmt.Sprintf("LIMIT %d", limit)
	case offset > 0:
		return fmt.Sprintf("OFFSET %d", offset)
	}
	return ""
}

// Insert builds "INSERT INTO t (a, b) VALUES ($1, $2) [RETURNING ...]".
func Insert(table string, fields []string, returning ...string) string {
	placeholders := make([]string, len(fields))
	for i := range fields {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	q := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(fields, ", "), strings.Join(placeholders, ", "),
	)
	if len(returning) > 0 {
		q += " RETURNING " + strings.Join(returning, ", ")
	}
	return q
}

// Update builds "UPDATE t SET a = $1, b = $2 [WHERE ...]". Placeholders in the
// where clauses continue after len(fields).
func Update(table string, fields []string, where ...string) string {
	sets := make([]string, len(fields))
	for i, f := range fields {
		sets[i] = fmt.Sprintf("%s = $%d", f, i+1)
	}
	return Join(
		fmt.Sprintf("UPDATE %s SET %s", table, strings.Join(sets, ", ")),
		JoinWhere(where...),
	)
}
