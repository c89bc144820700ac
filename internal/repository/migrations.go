package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Поддерживаемые драйверы БД
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// dialect типы колонок, различающиеся между Postgres и SQLite
type dialect struct {
	id        string
	decimal   string
	json      string
	timestamp string
}

var dialects = map[string]dialect{
	DriverPostgres: {
		id:        "BIGSERIAL PRIMARY KEY",
		decimal:   "NUMERIC",
		json:      "JSONB",
		timestamp: "TIMESTAMPTZ",
	},
	// SQLite хранит decimal как TEXT, чтобы не терять точность при приведении к REAL
	DriverSQLite: {
		id:        "INTEGER PRIMARY KEY AUTOINCREMENT",
		decimal:   "TEXT",
		json:      "TEXT",
		timestamp: "TIMESTAMP",
	},
}

// schema DDL с плейсхолдерами {id}, {decimal}, {json}, {timestamp}
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(64) PRIMARY KEY,
		display_name VARCHAR(100) NOT NULL DEFAULT '',
		token_hash TEXT NOT NULL,
		created_at {timestamp} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS trades (
		id {id},
		user_id VARCHAR(64) NOT NULL,
		symbol VARCHAR(20) NOT NULL,
		direction VARCHAR(10) NOT NULL,
		status VARCHAR(10) NOT NULL,
		entry_price {decimal} NOT NULL,
		exit_price {decimal},
		position_size {decimal} NOT NULL,
		stop_loss {decimal},
		take_profit {decimal},
		entry_time {timestamp} NOT NULL,
		exit_time {timestamp},
		outcome VARCHAR(10) NOT NULL DEFAULT '',
		profit_loss {decimal} NOT NULL,
		setup_type VARCHAR(50) NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		tags {json} NOT NULL,
		created_at {timestamp} NOT NULL,
		updated_at {timestamp} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_user_entry ON trades (user_id, entry_time)`,
	`CREATE TABLE IF NOT EXISTS layouts (
		user_id VARCHAR(64) PRIMARY KEY,
		widgets {json} NOT NULL,
		breakpoints {json} NOT NULL,
		updated_at {timestamp} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS preferences (
		user_id VARCHAR(64) PRIMARY KEY,
		week_start VARCHAR(10) NOT NULL,
		timezone VARCHAR(64) NOT NULL,
		sparkline_periods INT NOT NULL,
		default_timeframe VARCHAR(10) NOT NULL,
		updated_at {timestamp} NOT NULL
	)`,
}

// SchemaFor возвращает DDL для драйвера
func SchemaFor(driver string) ([]string, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	r := strings.NewReplacer(
		"{id}", d.id,
		"{decimal}", d.decimal,
		"{json}", d.json,
		"{timestamp}", d.timestamp,
	)
	stmts := make([]string, len(schema))
	for i, s := range schema {
		stmts[i] = r.Replace(s)
	}
	return stmts, nil
}

// Migrate создает таблицы, если их нет
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	stmts, err := SchemaFor(driver)
	if err != nil {
		return err
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply migration: %w", err)
		}
	}
	return nil
}
