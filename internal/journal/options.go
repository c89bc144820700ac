package journal

import (
	"fmt"
	"time"

	"tradejournal/internal/models"
	"tradejournal/pkg/utils"
)

// DefaultSparklinePeriods количество точек спарклайна по умолчанию
const DefaultSparklinePeriods = 10

// Options явная конфигурация агрегации.
//
// Заменяет неявное состояние (текущий пользователь, локаль UI): все, что влияет
// на результат, передается сюда.
type Options struct {
	WeekStart        utils.WeekStart
	Location         *time.Location
	SparklinePeriods int
	SparklineMetric  Metric
	Range            *models.DateRange // ограничивает набор сделок для всех метрик
	Period           utils.PeriodType  // период по умолчанию, если диапазон не задан явно
}

// DefaultOptions возвращает настройки по умолчанию: неделя с понедельника, UTC,
// 10 точек накопленного P&L.
func DefaultOptions() Options {
	return Options{
		WeekStart:        utils.WeekStartMonday,
		Location:         time.UTC,
		SparklinePeriods: DefaultSparklinePeriods,
		SparklineMetric:  MetricCumulativePnL,
	}
}

// OptionsFromPreferences строит Options из пользовательских настроек
func OptionsFromPreferences(p *models.Preferences) (Options, error) {
	opts := DefaultOptions()
	if p == nil {
		return opts, nil
	}

	ws, err := utils.ParseWeekStart(p.WeekStart)
	if err != nil {
		return opts, err
	}
	loc, err := utils.LoadLocation(p.Timezone)
	if err != nil {
		return opts, err
	}

	period, err := utils.ParsePeriod(p.DefaultTimeframe)
	if err != nil {
		return opts, err
	}

	opts.WeekStart = ws
	opts.Location = loc
	opts.Period = period
	if p.SparklinePeriods > 0 {
		opts.SparklinePeriods = p.SparklinePeriods
	}
	return opts, nil
}

// withDefaults подставляет значения по умолчанию для незаданных полей
func (o Options) withDefaults() Options {
	if o.WeekStart == "" {
		o.WeekStart = utils.WeekStartMonday
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.SparklinePeriods <= 0 {
		o.SparklinePeriods = DefaultSparklinePeriods
	}
	if o.SparklineMetric == "" {
		o.SparklineMetric = MetricCumulativePnL
	}
	return o
}

// Metric метрика точек спарклайна
type Metric string

const (
	MetricCumulativePnL Metric = "cumulative_pnl" // накопленный P&L на конец корзины
	MetricPnL           Metric = "pnl"            // сумма P&L корзины
	MetricWinRate       Metric = "win_rate"       // процент побед в корзине
	MetricTradeCount    Metric = "trade_count"    // количество сделок в корзине
	MetricAvgPnL        Metric = "avg_pnl"        // средний P&L сделки в корзине
)

// ParseMetric разбирает название метрики (пусто = cumulative_pnl)
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(s); m {
	case "":
		return MetricCumulativePnL, nil
	case MetricCumulativePnL, MetricPnL, MetricWinRate, MetricTradeCount, MetricAvgPnL:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMetric, s)
	}
}
