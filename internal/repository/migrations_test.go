package repository

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestSchemaFor(t *testing.T) {
	pg, err := SchemaFor(DriverPostgres)
	if err != nil {
		t.Fatalf("SchemaFor(postgres): %v", err)
	}
	lite, err := SchemaFor(DriverSQLite)
	if err != nil {
		t.Fatalf("SchemaFor(sqlite3): %v", err)
	}

	if len(pg) != len(schema) || len(lite) != len(schema) {
		t.Fatalf("statement count mismatch: pg=%d sqlite=%d", len(pg), len(lite))
	}

	for _, stmt := range append(pg, lite...) {
		if strings.Contains(stmt, "{") {
			t.Errorf("unreplaced placeholder in %s", stmt)
		}
	}
	if !strings.Contains(pg[1], "BIGSERIAL") || !strings.Contains(pg[1], "JSONB") {
		t.Error("postgres trades table should use BIGSERIAL and JSONB")
	}
	if !strings.Contains(lite[1], "AUTOINCREMENT") {
		t.Error("sqlite trades table should use AUTOINCREMENT")
	}

	if _, err := SchemaFor("mysql"); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS users`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS trades`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS idx_trades_user_entry`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS layouts`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS preferences`).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := Migrate(context.Background(), db, DriverPostgres); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestMigrate_Failure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	boom := errors.New("permission denied")
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS users`).WillReturnError(boom)

	err = Migrate(context.Background(), db, DriverPostgres)
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}
