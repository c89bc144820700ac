package utils

import (
	"fmt"
	"strings"
	"time"
)

// time.go - утилиты для работы со временем
//
// Назначение:
// Границы периодов (день/неделя/месяц) для агрегации P&L журнала.
// Все границы вычисляются в заданной timezone и включают оба конца.
//
// Функции:
// - DayRangeIn: [00:00:00, 23:59:59.999999999] дня в timezone
// - WeekRangeIn: неделя с заданным первым днем (понедельник по ISO 8601 или воскресенье)
// - MonthRangeIn: [1-е число 00:00:00, последний день 23:59:59.999999999]
// - ParseWeekStart / LoadLocation: разбор настроек

// ============================================================
// Первый день недели
// ============================================================

// WeekStart первый день недели для недельной агрегации
type WeekStart string

const (
	WeekStartMonday WeekStart = "monday"
	WeekStartSunday WeekStart = "sunday"
)

// Weekday возвращает time.Weekday первого дня недели
func (ws WeekStart) Weekday() time.Weekday {
	if ws == WeekStartSunday {
		return time.Sunday
	}
	return time.Monday
}

// ParseWeekStart разбирает строку настройки (регистр не важен, пусто = monday)
func ParseWeekStart(s string) (WeekStart, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "monday", "mon":
		return WeekStartMonday, nil
	case "sunday", "sun":
		return WeekStartSunday, nil
	default:
		return "", fmt.Errorf("invalid week start %q: expected monday or sunday", s)
	}
}

// LoadLocation загружает IANA timezone (пусто = UTC)
func LoadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}

// ============================================================
// Границы периодов
// ============================================================

func locOrUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

// GetDayStartIn возвращает начало дня (00:00:00) в указанной timezone
func GetDayStartIn(t time.Time, loc *time.Location) time.Time {
	loc = locOrUTC(loc)
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// GetDayEndIn возвращает конец дня (23:59:59.999999999) в указанной timezone
func GetDayEndIn(t time.Time, loc *time.Location) time.Time {
	loc = locOrUTC(loc)
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999999, loc)
}

// GetWeekStartIn возвращает начало недели, содержащей t
//
// Пример (ws = monday):
//
//	// t: Среда 2024-01-17 14:30:45 UTC
//	// start: Понедельник 2024-01-15 00:00:00 UTC
func GetWeekStartIn(t time.Time, loc *time.Location, ws WeekStart) time.Time {
	day := GetDayStartIn(t, loc)

	// Количество дней назад до первого дня недели (0..6)
	daysBack := (int(day.Weekday()) - int(ws.Weekday()) + 7) % 7

	start := day.AddDate(0, 0, -daysBack)
	return time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
}

// GetWeekEndIn возвращает конец недели, содержащей t
func GetWeekEndIn(t time.Time, loc *time.Location, ws WeekStart) time.Time {
	last := GetWeekStartIn(t, loc, ws).AddDate(0, 0, 6)
	return GetDayEndIn(last, loc)
}

// GetMonthStartIn возвращает 1-е число месяца 00:00:00
func GetMonthStartIn(t time.Time, loc *time.Location) time.Time {
	loc = locOrUTC(loc)
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
}

// GetMonthEndIn возвращает последнюю наносекунду месяца
func GetMonthEndIn(t time.Time, loc *time.Location) time.Time {
	loc = locOrUTC(loc)
	t = t.In(loc)
	// Переходим к первому числу следующего месяца и отнимаем наносекунду
	firstOfNextMonth := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, loc)
	return firstOfNextMonth.Add(-time.Nanosecond)
}

// ============================================================
// Функции для работы с диапазонами
// ============================================================

// TimeRange представляет временной диапазон (обе границы включительно)
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains проверяет, попадает ли время в диапазон
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && !t.After(tr.End)
}

// DayRangeIn возвращает диапазон дня, содержащего t
func DayRangeIn(t time.Time, loc *time.Location) TimeRange {
	return TimeRange{Start: GetDayStartIn(t, loc), End: GetDayEndIn(t, loc)}
}

// WeekRangeIn возвращает диапазон недели, содержащей t
func WeekRangeIn(t time.Time, loc *time.Location, ws WeekStart) TimeRange {
	return TimeRange{Start: GetWeekStartIn(t, loc, ws), End: GetWeekEndIn(t, loc, ws)}
}

// MonthRangeIn возвращает диапазон месяца, содержащего t
func MonthRangeIn(t time.Time, loc *time.Location) TimeRange {
	return TimeRange{Start: GetMonthStartIn(t, loc), End: GetMonthEndIn(t, loc)}
}

// ============================================================
// Периоды статистики
// ============================================================

// PeriodType тип периода для статистики
type PeriodType string

const (
	PeriodDay   PeriodType = "day"
	PeriodWeek  PeriodType = "week"
	PeriodMonth PeriodType = "month"
	PeriodAll   PeriodType = "all"
)

// ParsePeriod разбирает название периода
func ParsePeriod(s string) (PeriodType, error) {
	switch p := PeriodType(strings.ToLower(strings.TrimSpace(s))); p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodAll:
		return p, nil
	case "":
		return PeriodAll, nil
	default:
		return "", fmt.Errorf("invalid period %q", s)
	}
}

// PeriodRangeIn возвращает диапазон периода относительно ref.
// Для PeriodAll возвращает ok=false (без ограничения).
func PeriodRangeIn(period PeriodType, ref time.Time, loc *time.Location, ws WeekStart) (TimeRange, bool) {
	switch period {
	case PeriodDay:
		return DayRangeIn(ref, loc), true
	case PeriodWeek:
		return WeekRangeIn(ref, loc, ws), true
	case PeriodMonth:
		return MonthRangeIn(ref, loc), true
	default:
		return TimeRange{}, false
	}
}

// ============================================================
// Разбор дат
// ============================================================

// ParseDate разбирает дату в формате RFC3339 или YYYY-MM-DD (в указанной timezone)
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", value, locOrUTC(loc))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected RFC3339 or YYYY-MM-DD", value)
	}
	return t, nil
}

// DateValue дата из запроса: момент RFC3339 или календарный день YYYY-MM-DD.
// Календарный день не привязан к поясу и разрешается в поясе пользователя.
type DateValue struct {
	t        time.Time
	dateOnly bool
}

// ParseDateValue проверяет формат даты, не выбирая часовой пояс
func ParseDateValue(value string) (DateValue, error) {
	value = strings.TrimSpace(value)
	t, err := ParseDate(value, time.UTC)
	if err != nil {
		return DateValue{}, err
	}
	return DateValue{t: t, dateOnly: len(value) == len("2006-01-02")}, nil
}

// DateValueAt оборачивает конкретный момент
func DateValueAt(t time.Time) DateValue {
	return DateValue{t: t}
}

// IsZero true для незаданной даты
func (d DateValue) IsZero() bool { return d.t.IsZero() }

// DateOnly true для календарного дня без времени
func (d DateValue) DateOnly() bool { return d.dateOnly }

// Start возвращает момент; календарный день начинается в полночь loc
func (d DateValue) Start(loc *time.Location) time.Time {
	if !d.dateOnly {
		return d.t
	}
	return time.Date(d.t.Year(), d.t.Month(), d.t.Day(), 0, 0, 0, 0, locOrUTC(loc))
}

// End возвращает момент; календарный день включается до последней наносекунды в loc
func (d DateValue) End(loc *time.Location) time.Time {
	if !d.dateOnly {
		return d.t
	}
	return d.Start(loc).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// FromUnixMillis конвертирует миллисекунды Unix в time.Time
func FromUnixMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
