package mapper

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// SQLBuilder translates column maps into Postgres statements with $n placeholders.
// Column order is always sorted so generated SQL is deterministic
type SQLBuilder struct {
	pkColumn    string
	dateColumns map[string]bool
}

// metaDateColumns are the meta columns that arrive as text and are stored as DATE/TIMESTAMPTZ
var metaDateColumns = []string{"meta_updated_at", "valid_from", "valid_to"}

// NewSQLBuilder initializes a builder for tables keyed by a surrogate "id" column
func NewSQLBuilder() *SQLBuilder {
	b := &SQLBuilder{pkColumn: "id", dateColumns: make(map[string]bool)}
	for _, c := range metaDateColumns {
		b.dateColumns[c] = true
	}
	return b
}

// BuildLookup selects the surrogate id of the row matching key and locks it for the
// rest of the transaction
func (b *SQLBuilder) BuildLookup(tableName string, key map[string]any) (string, []any, error) {
	if len(key) == 0 {
		return "", nil, fmt.Errorf("no natural key provided for lookup on table %s", tableName)
	}

	var where []string
	var args []any
	for i, k := range sortedKeys(key) {
		where = append(where, fmt.Sprintf("%s = $%d", ident(k), i+1))
		args = append(args, b.formatValue(k, key[k]))
	}

	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s FOR UPDATE",
		ident(b.pkColumn),
		ident(tableName),
		strings.Join(where, " AND "),
	)
	return query, args, nil
}

// BuildInsert generates an INSERT returning the new surrogate id
func (b *SQLBuilder) BuildInsert(tableName string, data map[string]any) (string, []any, error) {
	if len(data) == 0 {
		return "", nil, fmt.Errorf("no data provided for insert on table %s", tableName)
	}

	var columns []string
	var placeholders []string
	var args []any

	for i, k := range sortedKeys(data) {
		columns = append(columns, ident(k))
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, b.formatValue(k, data[k]))
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		ident(tableName),
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		ident(b.pkColumn),
	)

	return query, args, nil
}

// BuildUpdate generates an UPDATE of the given columns on the row with the given id
func (b *SQLBuilder) BuildUpdate(tableName string, pkValue any, data map[string]any) (string, []any, error) {
	var setClauses []string
	var args []any

	n := 0
	for _, k := range sortedKeys(data) {
		// The surrogate key is never rewritten
		if strings.EqualFold(k, b.pkColumn) {
			continue
		}
		n++
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", ident(k), n))
		args = append(args, b.formatValue(k, data[k]))
	}
	if n == 0 {
		return "", nil, fmt.Errorf("no data provided for update on table %s", tableName)
	}

	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = $%d",
		ident(tableName),
		strings.Join(setClauses, ", "),
		ident(b.pkColumn),
		n+1,
	)
	args = append(args, pkValue)

	return query, args, nil
}

// formatValue turns the textual dates of meta payloads into time values. Only date
// columns are coerced; text columns keep date-shaped strings as they are
func (b *SQLBuilder) formatValue(column string, v any) any {
	val, ok := v.(string)
	if !ok || !b.dateColumns[column] {
		return v
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t
	}
	if t, err := time.Parse(time.DateOnly, val); err == nil {
		return t
	}
	return val
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}
