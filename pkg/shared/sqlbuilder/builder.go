// Package sqlbuilder is a small fluent query builder for Postgres-style
// "$N" positional placeholders. In pkg/storage it assembles
// IssueRepository.Search's filtered query; the other repositories write
// their SQL by hand.
package sqlbuilder

import (
	"fmt"
	"strings"
)

// SortDirection is an ORDER BY direction.
type SortDirection string

const (
	ASC  SortDirection = "ASC"
	DESC SortDirection = "DESC"
)

type orderClause struct {
	column    string
	direction SortDirection
}

// Builder accumulates SELECT/WHERE/ORDER BY/LIMIT/OFFSET clauses and
// renders them with sequentially numbered $N placeholders.
type Builder struct {
	columns    string
	table      string
	conditions []string
	args       []interface{}
	order      []orderClause
	limit      *int
	offset     *int
}

// NewBuilder starts a new query.
func NewBuilder() *Builder {
	return &Builder{columns: "*"}
}

// Select sets the projected columns. Defaults to "*" when never called.
func (b *Builder) Select(columns string) *Builder {
	b.columns = columns
	return b
}

// From sets the source table.
func (b *Builder) From(table string) *Builder {
	b.table = table
	return b
}

// Where adds a condition using "?" as the placeholder; it is rewritten to
// the next "$N" when the query is built. Empty conditions are ignored so
// callers can compose optional filters without branching.
func (b *Builder) Where(condition string, arg interface{}) *Builder {
	if condition == "" {
		return b
	}
	b.args = append(b.args, arg)
	placeholder := fmt.Sprintf("$%d", len(b.args))
	b.conditions = append(b.conditions, strings.Replace(condition, "?", placeholder, 1))
	return b
}

// WhereRaw adds a condition that already uses "$N" placeholders matching
// the positions its args will occupy once appended — used for multi-arg
// conditions like "(status = $1 OR status = $2)" that Where can't express.
func (b *Builder) WhereRaw(condition string, args ...interface{}) *Builder {
	if condition == "" {
		return b
	}
	b.args = append(b.args, args...)
	b.conditions = append(b.conditions, condition)
	return b
}

// OrderBy appends a sort column/direction; repeated calls accumulate.
func (b *Builder) OrderBy(column string, direction SortDirection) *Builder {
	b.order = append(b.order, orderClause{column: column, direction: direction})
	return b
}

// Limit sets the row limit.
func (b *Builder) Limit(n int) *Builder {
	b.limit = &n
	return b
}

// Offset sets the row offset.
func (b *Builder) Offset(n int) *Builder {
	b.offset = &n
	return b
}

// CurrentArgIndex returns the 1-based index the next Where/WhereRaw arg
// would occupy.
func (b *Builder) CurrentArgIndex() int {
	return len(b.args) + 1
}

// Args returns the accumulated argument list in bind order.
func (b *Builder) Args() []interface{} {
	return b.args
}

func (b *Builder) whereClause() string {
	if len(b.conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conditions, " AND ")
}

// Build renders the full SELECT statement.
func (b *Builder) Build() (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("SELECT %s FROM %s", b.columns, b.table))
	sb.WriteString(b.whereClause())

	if len(b.order) > 0 {
		parts := make([]string, len(b.order))
		for i, o := range b.order {
			parts[i] = fmt.Sprintf("%s %s", o.column, o.direction)
		}
		sb.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}

	args := append([]interface{}{}, b.args...)

	if b.limit != nil {
		args = append(args, *b.limit)
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
	}
	if b.offset != nil {
		args = append(args, *b.offset)
		sb.WriteString(fmt.Sprintf(" OFFSET $%d", len(args)))
	}

	return sb.String(), args
}

// BuildCount renders a COUNT(*) statement sharing the same WHERE clause,
// ignoring ORDER BY/LIMIT/OFFSET.
func (b *Builder) BuildCount() (string, []interface{}) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", b.table)
	query += b.whereClause()
	return query, append([]interface{}{}, b.args...)
}
