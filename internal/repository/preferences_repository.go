package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tradejournal/internal/models"
)

// Ошибки репозитория настроек
var (
	ErrPreferencesNotFound = errors.New("preferences not found")
)

// PreferencesRepository - работа с таблицей preferences (одна запись на пользователя)
type PreferencesRepository struct {
	db *sql.DB
}

// NewPreferencesRepository создает новый экземпляр репозитория
func NewPreferencesRepository(db *sql.DB) *PreferencesRepository {
	return &PreferencesRepository{db: db}
}

// Get возвращает настройки пользователя
func (r *PreferencesRepository) Get(ctx context.Context, userID string) (*models.Preferences, error) {
	query := `
		SELECT user_id, week_start, timezone, sparkline_periods, default_timeframe, updated_at
		FROM preferences
		WHERE user_id = $1`

	prefs := &models.Preferences{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&prefs.UserID,
		&prefs.WeekStart,
		&prefs.Timezone,
		&prefs.SparklinePeriods,
		&prefs.DefaultTimeframe,
		&prefs.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Если записи нет, создаем ее с дефолтными значениями
			return r.createDefault(ctx, userID)
		}
		return nil, err
	}

	return prefs, nil
}

// Update обновляет настройки
func (r *PreferencesRepository) Update(ctx context.Context, prefs *models.Preferences) error {
	query := `
		UPDATE preferences
		SET week_start = $1, timezone = $2, sparkline_periods = $3, default_timeframe = $4, updated_at = $5
		WHERE user_id = $6`

	prefs.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, query,
		prefs.WeekStart,
		prefs.Timezone,
		prefs.SparklinePeriods,
		prefs.DefaultTimeframe,
		prefs.UpdatedAt,
		prefs.UserID,
	)
	if err != nil {
		return err
	}

	return expectAffected(result, ErrPreferencesNotFound)
}

// createDefault создает запись настроек с дефолтными значениями
func (r *PreferencesRepository) createDefault(ctx context.Context, userID string) (*models.Preferences, error) {
	prefs := models.DefaultPreferences(userID)
	prefs.UpdatedAt = prefs.UpdatedAt.UTC()

	query := `
		INSERT INTO preferences (user_id, week_start, timezone, sparkline_periods, default_timeframe, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		prefs.UserID,
		prefs.WeekStart,
		prefs.Timezone,
		prefs.SparklinePeriods,
		prefs.DefaultTimeframe,
		prefs.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return prefs, nil
}

// ResetToDefaults сбрасывает настройки к значениям по умолчанию
func (r *PreferencesRepository) ResetToDefaults(ctx context.Context, userID string) (*models.Preferences, error) {
	prefs := models.DefaultPreferences(userID)

	err := r.Update(ctx, prefs)
	if errors.Is(err, ErrPreferencesNotFound) {
		return r.createDefault(ctx, userID)
	}
	if err != nil {
		return nil, err
	}

	return prefs, nil
}
