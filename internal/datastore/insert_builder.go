package datastore

import (
	"context"
	"strings"

	"gorm.io/gorm"
)

// InsertBuilder collects the columns of one INSERT. Optional values are only added when
// present, so rows written against an older caller leave those columns NULL.
type InsertBuilder struct {
	table   string
	columns []string
	values  []any
}

// NewInsertBuilder starts an insert into table.
func NewInsertBuilder(table string) *InsertBuilder {
	return &InsertBuilder{table: table}
}

// Set adds a column unconditionally.
func (b *InsertBuilder) Set(column string, value any) *InsertBuilder {
	b.columns = append(b.columns, column)
	b.values = append(b.values, value)
	return b
}

// SetIf adds a column only when present is true.
func (b *InsertBuilder) SetIf(present bool, column string, value any) *InsertBuilder {
	if present {
		return b.Set(column, value)
	}
	return b
}

// Columns returns the columns in insertion order.
func (b *InsertBuilder) Columns() []string {
	return append([]string(nil), b.columns...)
}

// SQL renders the parameterized statement with identifiers quoted for db's dialect.
func (b *InsertBuilder) SQL(db *gorm.DB) (string, []any) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	db.Dialector.QuoteTo(&sb, b.table)
	sb.WriteString(" (")
	for i, col := range b.columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		db.Dialector.QuoteTo(&sb, col)
	}
	sb.WriteString(") VALUES (")
	sb.WriteString(strings.TrimSuffix(strings.Repeat("?, ", len(b.columns)), ", "))
	sb.WriteString(")")
	return sb.String(), append([]any(nil), b.values...)
}

// Exec runs the insert on db's connection pool and returns the new row id.
func (b *InsertBuilder) Exec(ctx context.Context, db *gorm.DB) (uint, error) {
	query, args := b.SQL(db)
	res, err := db.Statement.ConnPool.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
