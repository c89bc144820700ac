package models

import "time"

// Snapshot представляет агрегированную статистику журнала.
//
// Вычисляется по требованию из набора сделок и опорной даты, в БД не хранится.
type Snapshot struct {
	TotalTrades     int     `json:"total_trades"`
	WinningTrades   int     `json:"winning_trades"`
	LosingTrades    int     `json:"losing_trades"`
	BreakevenTrades int     `json:"breakeven_trades"`
	OpenTrades      int     `json:"open_trades"`     // пропущены агрегатором
	ExcludedTrades  int     `json:"excluded_trades"` // exit_time < entry_time
	WinRate         float64 `json:"win_rate"`        // 0..100, округлено до целого

	TotalPnl    float64 `json:"total_pnl"`
	TodayPnl    float64 `json:"today_pnl"`
	TodayTrades int     `json:"today_trades"`
	WeekPnl     float64 `json:"week_pnl"`
	WeekTrades  int     `json:"week_trades"`
	MonthPnl    float64 `json:"month_pnl"`
	MonthTrades int     `json:"month_trades"`

	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"` // отрицательное или 0
	ProfitFactor float64 `json:"profit_factor"`
	LargestWin   float64 `json:"largest_win"`
	LargestLoss  float64 `json:"largest_loss"`
	MaxDrawdown  float64 `json:"max_drawdown"`

	MaxConsecutiveWins   int     `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	AvgRiskReward        float64 `json:"avg_risk_reward"` // по сделкам с заданными stop/target

	Sparkline       []float64 `json:"sparkline"`
	SparklineMetric string    `json:"sparkline_metric"`

	BySetup  []GroupStat `json:"by_setup"`
	BySymbol []GroupStat `json:"by_symbol"`

	ReferenceDate time.Time   `json:"reference_date"`
	Range         *DateRange  `json:"range,omitempty"`
	WeekStart     string      `json:"week_start"`
	Timezone      string      `json:"timezone"`
	Issues        []DataIssue `json:"issues"`
}

// GroupStat представляет статистику по группе сделок (сетап, символ)
type GroupStat struct {
	Key     string  `json:"key"`
	Trades  int     `json:"trades"`
	WinRate float64 `json:"win_rate"`
	Pnl     float64 `json:"pnl"`
}

// DateRange явный диапазон дат (обе границы включительно)
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains проверяет, попадает ли время в диапазон
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// IssueKind тип проблемы качества данных
type IssueKind string

const (
	IssueMalformedNumber  IssueKind = "malformed_number"   // нечисловое значение, заменено на 0
	IssueMissingField     IssueKind = "missing_field"      // необязательное поле отсутствует
	IssueDerivedPnl       IssueKind = "derived_pnl"        // profit_loss рассчитан по ценам
	IssueOutcomeMismatch  IssueKind = "outcome_mismatch"   // outcome не совпадает со знаком P&L
	IssueUnknownOutcome   IssueKind = "unknown_outcome"    // нераспознанное значение outcome
	IssueInvalidTiming    IssueKind = "invalid_timing"     // exit_time < entry_time, сделка исключена
	IssueMalformedTime    IssueKind = "malformed_time"     // нераспознанная дата
	IssueNonPositiveValue IssueKind = "non_positive_value" // цена или размер <= 0
	IssueTruncatedValue   IssueKind = "truncated_value"    // строка обрезана до размера колонки
)

// DataIssue представляет проблему качества данных по конкретной сделке
type DataIssue struct {
	TradeID int64     `json:"trade_id,omitempty"`
	Index   int       `json:"index"` // позиция во входном наборе
	Field   string    `json:"field"`
	Kind    IssueKind `json:"kind"`
	Message string    `json:"message"`
}
