// Package postgres discovers the database shape through information_schema.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/querypilot/querypilot/internal/schema"
)

type Introspector struct {
	db *sql.DB
}

func NewIntrospector(db *sql.DB) *Introspector {
	return &Introspector{db: db}
}

func (i *Introspector) HealthCheck(ctx context.Context) error {
	if err := i.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Introspect rebuilds the whole snapshot in table-listing order. Any
// failure aborts the pass; no partial snapshot is ever returned.
func (i *Introspector) Introspect(ctx context.Context) (schema.Snapshot, error) {
	names, err := i.listTables(ctx)
	if err != nil {
		return schema.Snapshot{}, err
	}

	snapshot := schema.Snapshot{Tables: make([]schema.Table, 0, len(names))}
	for _, name := range names {
		table, err := i.describeTable(ctx, name)
		if err != nil {
			return schema.Snapshot{}, err
		}
		snapshot.Tables = append(snapshot.Tables, table)
	}
	return snapshot, nil
}

func (i *Introspector) listTables(ctx context.Context) ([]string, error) {
	rows, err := i.db.QueryContext(ctx, `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
ORDER BY table_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table names: %w", err)
	}
	return names, nil
}

func (i *Introspector) describeTable(ctx context.Context, name string) (schema.Table, error) {
	columns, err := i.listColumns(ctx, name)
	if err != nil {
		return schema.Table{}, err
	}
	pkColumns, err := i.primaryKeyColumns(ctx, name)
	if err != nil {
		return schema.Table{}, err
	}
	relationships, err := i.foreignKeys(ctx, name)
	if err != nil {
		return schema.Table{}, err
	}

	fkColumns := make(map[string]bool, len(relationships))
	for _, rel := range relationships {
		fkColumns[rel.Column] = true
	}
	pkSet := make(map[string]bool, len(pkColumns))
	for _, col := range pkColumns {
		pkSet[col] = true
	}
	for idx := range columns {
		columns[idx].PrimaryKey = pkSet[columns[idx].Name]
		columns[idx].ForeignKey = fkColumns[columns[idx].Name]
	}

	table := schema.Table{
		Name:          name,
		Columns:       columns,
		Relationships: relationships,
	}
	if len(pkColumns) > 0 {
		table.PrimaryKey = pkColumns[0]
	}
	return table, nil
}

func (i *Introspector) listColumns(ctx context.Context, table string) ([]schema.Column, error) {
	rows, err := i.db.QueryContext(ctx, `
SELECT column_name, data_type, is_nullable, COALESCE(column_default, '')
FROM information_schema.columns
WHERE table_schema = 'public' AND table_name = $1
ORDER BY ordinal_position ASC`, table)
	if err != nil {
		return nil, fmt.Errorf("list columns for %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	columns := make([]schema.Column, 0)
	for rows.Next() {
		var column schema.Column
		var nullable string
		if err := rows.Scan(&column.Name, &column.DataType, &nullable, &column.Default); err != nil {
			return nil, fmt.Errorf("scan column for %s: %w", table, err)
		}
		column.Nullable = nullable == "YES"
		columns = append(columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns for %s: %w", table, err)
	}
	return columns, nil
}

func (i *Introspector) primaryKeyColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := i.db.QueryContext(ctx, `
SELECT kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
WHERE tc.table_schema = 'public' AND tc.table_name = $1 AND tc.constraint_type = 'PRIMARY KEY'
ORDER BY kcu.ordinal_position ASC`, table)
	if err != nil {
		return nil, fmt.Errorf("primary key for %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	columns := make([]string, 0)
	for rows.Next() {
		var column string
		if err := rows.Scan(&column); err != nil {
			return nil, fmt.Errorf("scan primary key for %s: %w", table, err)
		}
		columns = append(columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate primary key for %s: %w", table, err)
	}
	return columns, nil
}

func (i *Introspector) foreignKeys(ctx context.Context, table string) ([]schema.Relationship, error) {
	rows, err := i.db.QueryContext(ctx, `
SELECT kcu.column_name, ccu.table_name, ccu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage ccu
  ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
WHERE tc.table_schema = 'public' AND tc.table_name = $1 AND tc.constraint_type = 'FOREIGN KEY'
ORDER BY kcu.ordinal_position ASC`, table)
	if err != nil {
		return nil, fmt.Errorf("foreign keys for %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	relationships := make([]schema.Relationship, 0)
	for rows.Next() {
		var rel schema.Relationship
		if err := rows.Scan(&rel.Column, &rel.ReferencesTable, &rel.ReferencesColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key for %s: %w", table, err)
		}
		relationships = append(relationships, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign keys for %s: %w", table, err)
	}
	return relationships, nil
}
