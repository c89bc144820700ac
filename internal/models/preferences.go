package models

import "time"

// Preferences представляет пользовательские настройки агрегации
type Preferences struct {
	UserID           string    `json:"user_id" db:"user_id"`
	WeekStart        string    `json:"week_start" db:"week_start"`               // monday | sunday
	Timezone         string    `json:"timezone" db:"timezone"`                   // IANA, например Europe/Berlin
	SparklinePeriods int       `json:"sparkline_periods" db:"sparkline_periods"` // количество точек
	DefaultTimeframe string    `json:"default_timeframe" db:"default_timeframe"` // day | week | month | all
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// Значения по умолчанию
const (
	DefaultWeekStart        = "monday"
	DefaultTimezone         = "UTC"
	DefaultSparklinePeriods = 10
	DefaultTimeframe        = "all"
)

// DefaultPreferences возвращает настройки по умолчанию для пользователя
func DefaultPreferences(userID string) *Preferences {
	return &Preferences{
		UserID:           userID,
		WeekStart:        DefaultWeekStart,
		Timezone:         DefaultTimezone,
		SparklinePeriods: DefaultSparklinePeriods,
		DefaultTimeframe: DefaultTimeframe,
		UpdatedAt:        time.Now(),
	}
}
