package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

const (
	listTablesQuery = `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
ORDER BY table_name ASC`
	listColumnsQuery = `
SELECT column_name, data_type, is_nullable, COALESCE(column_default, '')
FROM information_schema.columns
WHERE table_schema = 'public' AND table_name = $1
ORDER BY ordinal_position ASC`
	primaryKeyQuery = `
SELECT kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
WHERE tc.table_schema = 'public' AND tc.table_name = $1 AND tc.constraint_type = 'PRIMARY KEY'
ORDER BY kcu.ordinal_position ASC`
	foreignKeysQuery = `
SELECT kcu.column_name, ccu.table_name, ccu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage ccu
  ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
WHERE tc.table_schema = 'public' AND tc.table_name = $1 AND tc.constraint_type = 'FOREIGN KEY'
ORDER BY kcu.ordinal_position ASC`
)

func TestIntrospectAssemblesSnapshotInTableOrder(t *testing.T) {
	db, mock := newSQLMock(t)
	intro := NewIntrospector(db)

	mock.ExpectQuery(regexp.QuoteMeta(listTablesQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("orders").AddRow("users"))

	mock.ExpectQuery(regexp.QuoteMeta(listColumnsQuery)).
		WithArgs("orders").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "column_default"}).
			AddRow("order_id", "integer", "NO", "nextval('orders_order_id_seq')").
			AddRow("user_id", "integer", "NO", "").
			AddRow("total", "numeric", "YES", ""))
	mock.ExpectQuery(regexp.QuoteMeta(primaryKeyQuery)).
		WithArgs("orders").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("order_id"))
	mock.ExpectQuery(regexp.QuoteMeta(foreignKeysQuery)).
		WithArgs("orders").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "table_name", "column_name"}).
			AddRow("user_id", "users", "user_id"))

	mock.ExpectQuery(regexp.QuoteMeta(listColumnsQuery)).
		WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "column_default"}).
			AddRow("user_id", "integer", "NO", ""))
	mock.ExpectQuery(regexp.QuoteMeta(primaryKeyQuery)).
		WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("user_id"))
	mock.ExpectQuery(regexp.QuoteMeta(foreignKeysQuery)).
		WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "table_name", "column_name"}))

	snapshot, err := intro.Introspect(context.Background())
	if err != nil {
		t.Fatalf("Introspect() error = %v", err)
	}
	if len(snapshot.Tables) != 2 {
		t.Fatalf("tables = %d, want 2", len(snapshot.Tables))
	}
	orders := snapshot.Tables[0]
	if orders.Name != "orders" || orders.PrimaryKey != "order_id" {
		t.Fatalf("orders = %+v", orders)
	}
	if !orders.Columns[0].PrimaryKey {
		t.Fatal("order_id should be flagged as primary key")
	}
	if !orders.Columns[1].ForeignKey {
		t.Fatal("user_id should be flagged as foreign key")
	}
	if !orders.Columns[2].Nullable {
		t.Fatal("total should be nullable")
	}
	if len(orders.Relationships) != 1 || orders.Relationships[0].ReferencesTable != "users" {
		t.Fatalf("relationships = %+v", orders.Relationships)
	}
	assertSQLMock(t, mock)
}

func TestIntrospectAbortsOnColumnFailure(t *testing.T) {
	db, mock := newSQLMock(t)
	intro := NewIntrospector(db)

	mock.ExpectQuery(regexp.QuoteMeta(listTablesQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("users"))
	mock.ExpectQuery(regexp.QuoteMeta(listColumnsQuery)).
		WithArgs("users").
		WillReturnError(errors.New("permission denied"))

	if _, err := intro.Introspect(context.Background()); err == nil {
		t.Fatal("Introspect() should fail when column metadata is unavailable")
	}
	assertSQLMock(t, mock)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}
