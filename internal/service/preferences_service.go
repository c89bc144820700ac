package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tradejournal/internal/journal"
	"tradejournal/internal/models"
	"tradejournal/pkg/utils"
)

// Ошибки сервиса настроек
var (
	ErrInvalidPreferences          = errors.New("invalid preferences")
	ErrPreferencesStoreUnavailable = errors.New("preferences store unavailable")
)

// PreferencesService предоставляет бизнес-логику для управления настройками агрегации.
//
// Отвечает за:
// - Получение и обновление настроек пользователя
// - Валидацию первого дня недели, timezone и количества точек спарклайна
// - Построение journal.Options для агрегатора
type PreferencesService struct {
	prefsRepo PreferencesStore
	logger    *utils.Logger
}

// NewPreferencesService создает новый экземпляр PreferencesService.
func NewPreferencesService(prefsRepo PreferencesStore) *PreferencesService {
	return &PreferencesService{
		prefsRepo: prefsRepo,
		logger:    utils.L().WithComponent("preferences"),
	}
}

func (s *PreferencesService) storeErr(op string, err error) error {
	s.logger.Error("preferences store failure", utils.String("operation", op), utils.Err(err))
	return fmt.Errorf("%w: %w", ErrPreferencesStoreUnavailable, err)
}

// GetPreferences возвращает настройки пользователя.
//
// Если записи в БД нет, создается запись с дефолтными значениями.
func (s *PreferencesService) GetPreferences(ctx context.Context, userID string) (*models.Preferences, error) {
	prefs, err := s.prefsRepo.Get(ctx, userID)
	if err != nil {
		return nil, s.storeErr("get", err)
	}
	return prefs, nil
}

// UpdatePreferencesRequest представляет запрос на обновление настроек.
// Все поля опциональны - обновляются только переданные.
type UpdatePreferencesRequest struct {
	WeekStart        *string `json:"week_start,omitempty"`
	Timezone         *string `json:"timezone,omitempty"`
	SparklinePeriods *int    `json:"sparkline_periods,omitempty"`
	DefaultTimeframe *string `json:"default_timeframe,omitempty"`
}

// UpdatePreferences обновляет настройки пользователя.
//
// Правила валидации:
// - week_start: monday или sunday
// - timezone: IANA timezone
// - sparkline_periods: 1..100
// - default_timeframe: day, week, month или all
//
// Все ошибки возвращаются одним utils.ValidationErrors.
func (s *PreferencesService) UpdatePreferences(ctx context.Context, userID string, req *UpdatePreferencesRequest) (*models.Preferences, error) {
	prefs, err := s.prefsRepo.Get(ctx, userID)
	if err != nil {
		return nil, s.storeErr("get", err)
	}

	var errs utils.ValidationErrors
	if req.WeekStart != nil {
		ws, err := utils.ParseWeekStart(*req.WeekStart)
		if err != nil {
			errs.AddError("week_start", err)
		} else {
			prefs.WeekStart = string(ws)
		}
	}
	if req.Timezone != nil {
		tz := strings.TrimSpace(*req.Timezone)
		if err := utils.ValidateTimezone(tz); err != nil {
			errs.AddError("timezone", err)
		} else {
			prefs.Timezone = tz
		}
	}
	if req.SparklinePeriods != nil {
		if err := utils.ValidateSparklinePeriods(*req.SparklinePeriods); err != nil {
			errs.AddError("sparkline_periods", err)
		} else {
			prefs.SparklinePeriods = *req.SparklinePeriods
		}
	}
	if req.DefaultTimeframe != nil {
		period, err := utils.ParsePeriod(*req.DefaultTimeframe)
		if err != nil {
			errs.AddError("default_timeframe", err)
		} else {
			prefs.DefaultTimeframe = string(period)
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	if err := s.prefsRepo.Update(ctx, prefs); err != nil {
		return nil, s.storeErr("update", err)
	}
	return prefs, nil
}

// ResetToDefaults сбрасывает настройки к значениям по умолчанию.
//
// Дефолтные значения:
// - week_start: monday
// - timezone: UTC
// - sparkline_periods: 10
// - default_timeframe: all
func (s *PreferencesService) ResetToDefaults(ctx context.Context, userID string) (*models.Preferences, error) {
	prefs, err := s.prefsRepo.ResetToDefaults(ctx, userID)
	if err != nil {
		return nil, s.storeErr("reset", err)
	}
	return prefs, nil
}

// Options возвращает параметры агрегации из настроек пользователя.
// При некорректных значениях в БД возвращаются дефолтные Options вместе с
// ErrInvalidPreferences.
func (s *PreferencesService) Options(ctx context.Context, userID string) (journal.Options, error) {
	prefs, err := s.prefsRepo.Get(ctx, userID)
	if err != nil {
		return journal.DefaultOptions(), s.storeErr("get", err)
	}

	opts, err := journal.OptionsFromPreferences(prefs)
	if err != nil {
		return journal.DefaultOptions(), errors.Join(ErrInvalidPreferences, err)
	}
	return opts, nil
}
