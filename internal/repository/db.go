package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"tradejournal/pkg/retry"
	"tradejournal/pkg/utils"
)

// OpenConfig параметры подключения к базе данных
type OpenConfig struct {
	Driver   string // DriverPostgres | DriverSQLite
	DSN      string
	MaxConns int
	Retry    retry.Config // нулевое значение = retry.StartupConfig()
}

// Open открывает базу, дожидается ее готовности и применяет миграции.
//
// Драйвер должен быть зарегистрирован вызывающим кодом (blank import).
// SQLite допускает одного писателя, поэтому пул ограничивается одним соединением.
func Open(ctx context.Context, cfg OpenConfig) (*sql.DB, error) {
	if _, ok := dialects[cfg.Driver]; !ok {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	if cfg.Driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		maxConns := cfg.MaxConns
		if maxConns <= 0 {
			maxConns = 10
		}
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(max(maxConns/2, 1))
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	logger := utils.L().WithComponent("database")
	retryCfg := cfg.Retry
	if retryCfg.MaxRetries == 0 && retryCfg.InitialDelay == 0 {
		retryCfg = retry.StartupConfig()
	}
	if retryCfg.OnRetry == nil {
		retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
			logger.Warn("database not ready, retrying",
				utils.Int("attempt", attempt),
				utils.Err(err),
				utils.String("delay", delay.String()),
			)
		}
	}

	// Проверка подключения
	err = retry.Do(ctx, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			if isFatalConnectError(err) {
				return retry.Permanent(err)
			}
			return err
		}
		return nil
	}, retryCfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := Migrate(ctx, db, cfg.Driver); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// IsInvalidData сообщает, что база отвергла значения записи (SQLSTATE класс 22:
// длина строки, переполнение числа), а не оказалась недоступна
func IsInvalidData(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code.Class() == "22"
}

// isFatalConnectError отличает ошибки, которые не исправятся ожиданием:
// неверные учетные данные (класс 28) и отсутствующая база (3D000)
func isFatalConnectError(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code.Class() == "28" || pqErr.Code == "3D000"
}
