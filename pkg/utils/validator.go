package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// validator.go - валидация данных
//
// Назначение:
// Проверка корректности входных данных журнала.
//
// Функции:
// - ValidateSymbol / NormalizeSymbol: тикер инструмента (AAPL, BTC/USDT, ES=F)
// - ValidateTimezone: IANA timezone
// - ValidateSparklinePeriods: количество точек спарклайна
// - ValidateWidgetID: идентификатор виджета дашборда
// - ValidateUserID: идентификатор пользователя
// - ValidationErrors: накопление ошибок по полям
//
// Возвращает error с описанием проблемы или nil

var (
	ErrInvalidSymbol   = errors.New("invalid symbol")
	ErrInvalidTimezone = errors.New("invalid timezone")
	ErrInvalidPeriods  = errors.New("invalid sparkline periods")
	ErrInvalidWidgetID = errors.New("invalid widget id")
	ErrInvalidUserID   = errors.New("invalid user id")
)

const (
	MinSparklinePeriods = 1
	MaxSparklinePeriods = 100

	// Ограничения колонок trades
	MaxSymbolLength    = 20
	MaxSetupTypeLength = 50
)

var (
	symbolRegexp   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9./_=:^-]*$`)
	widgetIDRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)
	userIDRegexp   = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

// ValidateSymbol проверяет формат тикера
func ValidateSymbol(symbol string) error {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSymbol)
	}
	if len(symbol) > MaxSymbolLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidSymbol, MaxSymbolLength)
	}
	if !symbolRegexp.MatchString(symbol) {
		return fmt.Errorf("%w: %q contains unsupported characters", ErrInvalidSymbol, symbol)
	}
	return nil
}

// NormalizeSymbol приводит тикер к верхнему регистру без пробелов по краям
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ValidateTimezone проверяет IANA timezone
func ValidateTimezone(tz string) error {
	if _, err := LoadLocation(tz); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTimezone, tz)
	}
	return nil
}

// ValidateSparklinePeriods проверяет количество точек спарклайна
func ValidateSparklinePeriods(periods int) error {
	if periods < MinSparklinePeriods || periods > MaxSparklinePeriods {
		return fmt.Errorf("%w: %d (allowed %d..%d)", ErrInvalidPeriods, periods, MinSparklinePeriods, MaxSparklinePeriods)
	}
	return nil
}

// ValidateUserID проверяет идентификатор пользователя.
// Точка запрещена: она разделяет user_id и секрет в API токене.
func ValidateUserID(id string) error {
	if !userIDRegexp.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidUserID, id)
	}
	return nil
}

// ValidateWidgetID проверяет формат идентификатора виджета (kebab-case)
func ValidateWidgetID(id string) error {
	if !widgetIDRegexp.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidWidgetID, id)
	}
	return nil
}

// ============================================================
// Накопление ошибок
// ============================================================

// ValidationError ошибка валидации конкретного поля
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors список ошибок валидации
type ValidationErrors []ValidationError

// Add добавляет ошибку
func (ve *ValidationErrors) Add(field, message string) {
	*ve = append(*ve, ValidationError{Field: field, Message: message})
}

// AddError добавляет ошибку, если err != nil
func (ve *ValidationErrors) AddError(field string, err error) {
	if err == nil {
		return
	}
	ve.Add(field, err.Error())
}

// HasErrors возвращает true если есть ошибки
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Error реализует интерфейс error
func (ve ValidationErrors) Error() string {
	parts := make([]string, 0, len(ve))
	for _, e := range ve {
		parts = append(parts, e.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Err возвращает nil если ошибок нет, иначе сам список
func (ve ValidationErrors) Err() error {
	if !ve.HasErrors() {
		return nil
	}
	return ve
}
