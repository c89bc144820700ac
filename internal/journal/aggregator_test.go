package journal

import (
	"math"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradejournal/internal/models"
	"tradejournal/pkg/utils"
)

// ============================================================
// Хелперы
// ============================================================

var t0 = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC) // понедельник

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// pnlTrade закрытая сделка с явным P&L
func pnlTrade(id int64, pnl string, at time.Time) models.Trade {
	return models.Trade{
		ID:           id,
		Symbol:       "AAPL",
		Direction:    models.DirectionLong,
		Status:       models.TradeStatusClosed,
		EntryPrice:   dec("100"),
		PositionSize: dec("1"),
		EntryTime:    at,
		ProfitLoss:   dec(pnl),
	}
}

// pricedTrade закрытая сделка с P&L, рассчитанным по ценам
func pricedTrade(id int64, dir models.Direction, entry, exit, size string, at time.Time) models.Trade {
	exitAt := at.Add(time.Hour)
	t := models.Trade{
		ID:           id,
		Symbol:       "AAPL",
		Direction:    dir,
		Status:       models.TradeStatusClosed,
		EntryPrice:   dec(entry),
		ExitPrice:    decimal.NewNullDecimal(dec(exit)),
		PositionSize: dec(size),
		EntryTime:    at,
		ExitTime:     &exitAt,
	}
	t.ProfitLoss, _ = t.ExpectedPNL()
	return t
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// ============================================================
// Свойства снимка
// ============================================================

func TestAggregate_Deterministic(t *testing.T) {
	trades := []models.Trade{
		pnlTrade(3, "50", t0.Add(2*time.Hour)),
		pnlTrade(1, "100", t0),
		pnlTrade(2, "-150", t0.Add(time.Hour)),
		pnlTrade(4, "-20", t0.Add(time.Hour)), // совпадает по времени с id=2
	}
	ref := t0.Add(24 * time.Hour)

	first := Aggregate(trades, ref, DefaultOptions())
	second := Aggregate(trades, ref, DefaultOptions())

	if !reflect.DeepEqual(first, second) {
		t.Errorf("повторная агрегация дала другой снимок:\n%+v\n%+v", first, second)
	}
}

func TestAggregate_OrderIndependent(t *testing.T) {
	trades := []models.Trade{
		pnlTrade(1, "100", t0),
		pnlTrade(2, "-150", t0.Add(time.Hour)),
		pnlTrade(3, "50", t0.Add(2*time.Hour)),
		pnlTrade(4, "75.25", t0.Add(2*time.Hour)),
		pnlTrade(5, "-10.5", t0.Add(3*time.Hour)),
	}
	ref := t0

	want := Aggregate(trades, ref, DefaultOptions())

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]models.Trade(nil), trades...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := Aggregate(shuffled, ref, DefaultOptions())
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("снимок зависит от порядка входа:\n got %+v\nwant %+v", got, want)
		}
	}
}

func TestAggregate_EmptyInputNeutral(t *testing.T) {
	for _, trades := range [][]models.Trade{nil, {}} {
		snap := Aggregate(trades, t0, DefaultOptions())

		if snap.WinRate != 0 || snap.TotalPnl != 0 || snap.ProfitFactor != 0 || snap.MaxDrawdown != 0 {
			t.Errorf("ненулевые агрегаты для пустого набора: %+v", snap)
		}
		if snap.TotalTrades != 0 || snap.AvgWin != 0 || snap.AvgLoss != 0 {
			t.Errorf("ненулевые счетчики для пустого набора: %+v", snap)
		}
		if snap.Sparkline == nil || len(snap.Sparkline) != 0 {
			t.Errorf("спарклайн должен быть пустым (не nil), got %v", snap.Sparkline)
		}
		if snap.Issues == nil || snap.BySetup == nil || snap.BySymbol == nil {
			t.Error("слайсы снимка не должны быть nil")
		}
	}

	count := 0
	for range Sparkline(nil, 10, MetricCumulativePnL) {
		count++
	}
	if count != 0 {
		t.Errorf("Sparkline(nil) выдал %d точек", count)
	}
}

func TestAggregate_PnLConservation(t *testing.T) {
	trades := []models.Trade{
		pnlTrade(1, "0.1", t0),
		pnlTrade(2, "0.2", t0.Add(time.Hour)),
		pnlTrade(3, "-0.3", t0.Add(2*time.Hour)),
		pnlTrade(4, "1000.55", t0.Add(3*time.Hour)),
	}

	snap := Aggregate(trades, t0, DefaultOptions())

	// 0.1 + 0.2 - 0.3 + 1000.55 точно в decimal
	if snap.TotalPnl != 1000.55 {
		t.Errorf("TotalPnl = %v, want 1000.55", snap.TotalPnl)
	}
}

func TestAggregate_WinRateBounds(t *testing.T) {
	cases := [][]models.Trade{
		{pnlTrade(1, "10", t0)},
		{pnlTrade(1, "-10", t0)},
		{pnlTrade(1, "10", t0), pnlTrade(2, "-5", t0), pnlTrade(3, "0", t0)},
		{pnlTrade(1, "0", t0), pnlTrade(2, "0", t0)},
	}

	for i, trades := range cases {
		snap := Aggregate(trades, t0, DefaultOptions())
		if snap.WinRate < 0 || snap.WinRate > 100 {
			t.Errorf("case %d: win_rate = %v вне [0, 100]", i, snap.WinRate)
		}
	}
}

func TestComputeBasicStats_Rounding(t *testing.T) {
	trades := []models.Trade{
		pnlTrade(1, "10", t0),
		pnlTrade(2, "10", t0),
		pnlTrade(3, "-10", t0),
	}

	stats := ComputeBasicStats(trades)
	if stats.WinRate != 67 {
		t.Errorf("WinRate = %v, want 67 (round(2/3*100))", stats.WinRate)
	}
	if stats.Total != 3 || stats.Winning != 2 || stats.Losing != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestComputeMaxDrawdown_NonNegative(t *testing.T) {
	tests := []struct {
		name   string
		trades []models.Trade
		want   float64
	}{
		{"empty", nil, 0},
		{"single loss", []models.Trade{pnlTrade(1, "-100", t0)}, 0},
		{
			"non-decreasing cumulative",
			[]models.Trade{pnlTrade(1, "10", t0), pnlTrade(2, "0", t0.Add(time.Hour)), pnlTrade(3, "5", t0.Add(2*time.Hour))},
			0,
		},
		{
			"non-decreasing starting negative",
			[]models.Trade{pnlTrade(1, "-50", t0), pnlTrade(2, "20", t0.Add(time.Hour))},
			0,
		},
		{
			"two losses after peak",
			[]models.Trade{pnlTrade(1, "200", t0), pnlTrade(2, "-50", t0.Add(time.Hour)), pnlTrade(3, "-70", t0.Add(2*time.Hour))},
			120,
		},
		{
			"recovery then deeper drawdown",
			[]models.Trade{
				pnlTrade(1, "100", t0),
				pnlTrade(2, "-30", t0.Add(1*time.Hour)),
				pnlTrade(3, "80", t0.Add(2*time.Hour)),
				pnlTrade(4, "-200", t0.Add(3*time.Hour)),
			},
			200,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeMaxDrawdown(tt.trades)
			if got < 0 {
				t.Fatalf("max_drawdown = %v < 0", got)
			}
			if !almostEqual(got, tt.want) {
				t.Errorf("max_drawdown = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComputeMaxDrawdown_TieBreakByID(t *testing.T) {
	// Две сделки в одно время: порядок id 1 -> 2 дает просадку 100,
	// обратный порядок дал бы 0. Результат не должен зависеть от порядка входа.
	a := pnlTrade(1, "100", t0)
	b := pnlTrade(2, "-100", t0)

	if got := ComputeMaxDrawdown([]models.Trade{a, b}); got != 100 {
		t.Errorf("drawdown = %v, want 100", got)
	}
	if got := ComputeMaxDrawdown([]models.Trade{b, a}); got != 100 {
		t.Errorf("drawdown (обратный вход) = %v, want 100", got)
	}
}

func TestComputePeriodPnL_MonthBoundary(t *testing.T) {
	ref := time.Date(2024, 2, 10, 12, 0, 0, 0, time.UTC)
	trades := []models.Trade{
		pnlTrade(1, "10", time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)), // предыдущий месяц
		pnlTrade(2, "20", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)),      // начало месяца включительно
		pnlTrade(3, "30", time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC)),  // конец месяца включительно
		pnlTrade(4, "40", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)),      // следующий месяц
	}

	got := ComputePeriodPnL(trades, ref, DefaultOptions())
	if got.Month != 50 || got.MonthTrades != 2 {
		t.Errorf("month = %v (%d trades), want 50 (2 trades)", got.Month, got.MonthTrades)
	}
}

func TestComputePeriodPnL_WeekStart(t *testing.T) {
	// ref - среда 17 января 2024; сделка в воскресенье 14 января
	ref := time.Date(2024, 1, 17, 12, 0, 0, 0, time.UTC)
	sunday := pnlTrade(1, "10", time.Date(2024, 1, 14, 9, 0, 0, 0, time.UTC))
	monday := pnlTrade(2, "5", time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
	today := pnlTrade(3, "1", time.Date(2024, 1, 17, 0, 0, 0, 0, time.UTC))
	trades := []models.Trade{sunday, monday, today}

	mon := ComputePeriodPnL(trades, ref, DefaultOptions())
	if mon.Week != 6 || mon.WeekTrades != 2 {
		t.Errorf("monday week = %v (%d), want 6 (2)", mon.Week, mon.WeekTrades)
	}
	if mon.Today != 1 || mon.TodayTrades != 1 {
		t.Errorf("today = %v (%d), want 1 (1)", mon.Today, mon.TodayTrades)
	}

	opts := DefaultOptions()
	opts.WeekStart = utils.WeekStartSunday
	sun := ComputePeriodPnL(trades, ref, opts)
	if sun.Week != 16 || sun.WeekTrades != 3 {
		t.Errorf("sunday week = %v (%d), want 16 (3)", sun.Week, sun.WeekTrades)
	}
}

func TestComputePeriodPnL_Timezone(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skipf("tzdata not available: %v", err)
	}

	// 20:00 UTC 15 января = 05:00 16 января в Токио
	trade := pnlTrade(1, "10", time.Date(2024, 1, 15, 20, 0, 0, 0, time.UTC))
	ref := time.Date(2024, 1, 16, 3, 0, 0, 0, time.UTC) // 12:00 16 января в Токио

	utc := ComputePeriodPnL([]models.Trade{trade}, ref, DefaultOptions())
	if utc.Today != 0 {
		t.Errorf("UTC today = %v, want 0", utc.Today)
	}

	opts := DefaultOptions()
	opts.Location = tokyo
	local := ComputePeriodPnL([]models.Trade{trade}, ref, opts)
	if local.Today != 10 {
		t.Errorf("Tokyo today = %v, want 10", local.Today)
	}
}

// ============================================================
// Сценарии
// ============================================================

func TestAggregate_TwoWinningTrades(t *testing.T) {
	trades := []models.Trade{
		pricedTrade(1, models.DirectionLong, "100", "125", "1", t0),
		pricedTrade(2, models.DirectionShort, "100", "90", "2", t0.Add(time.Hour)),
	}

	snap := Aggregate(trades, t0, DefaultOptions())

	if snap.TotalPnl != 45 {
		t.Errorf("TotalPnl = %v, want 45", snap.TotalPnl)
	}
	if snap.WinRate != 100 {
		t.Errorf("WinRate = %v, want 100", snap.WinRate)
	}
	if snap.MaxDrawdown != 0 {
		t.Errorf("MaxDrawdown = %v, want 0", snap.MaxDrawdown)
	}
	if snap.WinningTrades != 2 || snap.MaxConsecutiveWins != 2 {
		t.Errorf("wins = %d, streak = %d", snap.WinningTrades, snap.MaxConsecutiveWins)
	}
	if snap.LargestWin != 25 {
		t.Errorf("LargestWin = %v, want 25", snap.LargestWin)
	}
}

func TestAggregate_DrawdownScenario(t *testing.T) {
	trades := []models.Trade{
		pnlTrade(1, "100", t0),
		pnlTrade(2, "-150", t0.Add(time.Hour)),
		pnlTrade(3, "50", t0.Add(2*time.Hour)),
	}

	snap := Aggregate(trades, t0, DefaultOptions())

	if snap.MaxDrawdown != 150 {
		t.Errorf("MaxDrawdown = %v, want 150", snap.MaxDrawdown)
	}
	if snap.TotalPnl != 0 {
		t.Errorf("TotalPnl = %v, want 0", snap.TotalPnl)
	}
	if snap.AvgWin != 75 || snap.AvgLoss != -150 {
		t.Errorf("AvgWin = %v, AvgLoss = %v; want 75, -150", snap.AvgWin, snap.AvgLoss)
	}
	if snap.ProfitFactor != 0.5 {
		t.Errorf("ProfitFactor = %v, want 0.5", snap.ProfitFactor)
	}
	if snap.LargestLoss != -150 {
		t.Errorf("LargestLoss = %v, want -150", snap.LargestLoss)
	}
}

func TestComputeAvgWinLoss_ProfitFactorUnrounded(t *testing.T) {
	trades := []models.Trade{
		pnlTrade(1, "100", t0),
		pnlTrade(2, "-30", t0.Add(time.Hour)),
		pnlTrade(3, "0", t0.Add(2*time.Hour)),
	}

	res := ComputeAvgWinLoss(trades)

	if res.AvgWin != 100 || res.AvgLoss != -30 {
		t.Errorf("AvgWin = %v, AvgLoss = %v; want 100, -30", res.AvgWin, res.AvgLoss)
	}
	if math.Abs(res.ProfitFactor-100.0/30.0) > 1e-9 {
		t.Errorf("ProfitFactor = %v, want %v", res.ProfitFactor, 100.0/30.0)
	}
	if res.ProfitFactor == 3.33 {
		t.Error("profit factor should not be rounded")
	}
}

func TestAggregate_SingleBreakeven(t *testing.T) {
	snap := Aggregate([]models.Trade{pnlTrade(1, "0", t0)}, t0, DefaultOptions())

	if snap.BreakevenTrades != 1 {
		t.Errorf("BreakevenTrades = %d, want 1", snap.BreakevenTrades)
	}
	if snap.WinningTrades != 0 || snap.LosingTrades != 0 {
		t.Errorf("breakeven учтен как win/loss: %+v", snap)
	}
	if snap.TotalTrades != 1 || snap.WinRate != 0 {
		t.Errorf("TotalTrades = %d, WinRate = %v; want 1, 0", snap.TotalTrades, snap.WinRate)
	}
	if snap.ProfitFactor != 0 {
		t.Errorf("ProfitFactor = %v, want 0", snap.ProfitFactor)
	}
}

// ============================================================
// Классификация и исключения
// ============================================================

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		outcome  models.Outcome
		pnl      string
		want     models.Outcome
		mismatch bool
	}{
		{"sign win", "", "10", models.OutcomeWin, false},
		{"sign loss", "", "-10", models.OutcomeLoss, false},
		{"sign breakeven", "", "0", models.OutcomeBreakeven, false},
		{"matching outcome", models.OutcomeWin, "10", models.OutcomeWin, false},
		{"win with negative pnl", models.OutcomeWin, "-10", models.OutcomeLoss, true},
		{"loss with zero pnl", models.OutcomeLoss, "0", models.OutcomeBreakeven, true},
		{"breakeven with profit", models.OutcomeBreakeven, "5", models.OutcomeWin, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := pnlTrade(1, tt.pnl, t0)
			tr.Outcome = tt.outcome

			got, mismatch := Classify(&tr)
			if got != tt.want || mismatch != tt.mismatch {
				t.Errorf("Classify() = %s, %v; want %s, %v", got, mismatch, tt.want, tt.mismatch)
			}
		})
	}
}

func TestAggregate_OutcomeMismatchFlagged(t *testing.T) {
	tr := pnlTrade(7, "-25", t0)
	tr.Outcome = models.OutcomeWin

	snap := Aggregate([]models.Trade{tr}, t0, DefaultOptions())

	if snap.LosingTrades != 1 {
		t.Errorf("LosingTrades = %d, want 1", snap.LosingTrades)
	}
	if len(snap.Issues) != 1 || snap.Issues[0].Kind != models.IssueOutcomeMismatch || snap.Issues[0].TradeID != 7 {
		t.Errorf("Issues = %+v, want one outcome_mismatch for trade 7", snap.Issues)
	}
}

func TestAggregate_InvalidTimingExcluded(t *testing.T) {
	bad := pnlTrade(2, "1000", t0.Add(time.Hour))
	before := t0
	bad.ExitTime = &before

	trades := []models.Trade{pnlTrade(1, "10", t0), bad}
	snap := Aggregate(trades, t0, DefaultOptions())

	if snap.ExcludedTrades != 1 {
		t.Errorf("ExcludedTrades = %d, want 1", snap.ExcludedTrades)
	}
	if snap.TotalTrades != 1 || snap.TotalPnl != 10 {
		t.Errorf("исключенная сделка попала в агрегаты: total=%d pnl=%v", snap.TotalTrades, snap.TotalPnl)
	}
	if snap.TodayPnl != 10 {
		t.Errorf("исключенная сделка попала в period P&L: %v", snap.TodayPnl)
	}
	if len(snap.Issues) != 1 || snap.Issues[0].Kind != models.IssueInvalidTiming || snap.Issues[0].Index != 1 {
		t.Errorf("Issues = %+v", snap.Issues)
	}
}

func TestAggregate_OpenTradesSkipped(t *testing.T) {
	open := models.Trade{
		ID:           2,
		Symbol:       "TSLA",
		Direction:    models.DirectionLong,
		Status:       models.TradeStatusOpen,
		EntryPrice:   dec("200"),
		PositionSize: dec("1"),
		EntryTime:    t0,
	}

	snap := Aggregate([]models.Trade{pnlTrade(1, "10", t0), open}, t0, DefaultOptions())

	if snap.OpenTrades != 1 || snap.TotalTrades != 1 {
		t.Errorf("OpenTrades = %d, TotalTrades = %d; want 1, 1", snap.OpenTrades, snap.TotalTrades)
	}
}

func TestAggregate_RangeRestrictsUniverse(t *testing.T) {
	trades := []models.Trade{
		pnlTrade(1, "100", time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)),
		pnlTrade(2, "-40", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)),
		pnlTrade(3, "7", time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)),
	}

	opts := DefaultOptions()
	opts.Range = &models.DateRange{
		Start: time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC),
	}

	snap := Aggregate(trades, time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC), opts)

	if snap.TotalTrades != 2 || snap.TotalPnl != -33 {
		t.Errorf("TotalTrades = %d, TotalPnl = %v; want 2, -33", snap.TotalTrades, snap.TotalPnl)
	}
	if snap.Range == nil || !snap.Range.Start.Equal(opts.Range.Start) {
		t.Error("снимок должен содержать примененный диапазон")
	}
}

func TestAggregate_Breakdowns(t *testing.T) {
	a := pnlTrade(1, "30", t0)
	a.SetupType = "breakout"
	b := pnlTrade(2, "-10", t0.Add(time.Hour))
	b.SetupType = "breakout"
	b.Symbol = "MSFT"
	c := pnlTrade(3, "30", t0.Add(2*time.Hour))
	c.SetupType = ""

	snap := Aggregate([]models.Trade{a, b, c}, t0, DefaultOptions())

	wantSetup := []models.GroupStat{
		{Key: "unspecified", Trades: 1, WinRate: 100, Pnl: 30},
		{Key: "breakout", Trades: 2, WinRate: 50, Pnl: 20},
	}
	if !reflect.DeepEqual(snap.BySetup, wantSetup) {
		t.Errorf("BySetup = %+v, want %+v", snap.BySetup, wantSetup)
	}

	wantSymbol := []models.GroupStat{
		{Key: "AAPL", Trades: 2, WinRate: 100, Pnl: 60},
		{Key: "MSFT", Trades: 1, WinRate: 0, Pnl: -10},
	}
	if !reflect.DeepEqual(snap.BySymbol, wantSymbol) {
		t.Errorf("BySymbol = %+v, want %+v", snap.BySymbol, wantSymbol)
	}
}

func TestAggregate_Streaks(t *testing.T) {
	pnls := []string{"1", "2", "-1", "-2", "-3", "0", "4", "5", "6", "7"}
	trades := make([]models.Trade, len(pnls))
	for i, p := range pnls {
		trades[i] = pnlTrade(int64(i+1), p, t0.Add(time.Duration(i)*time.Minute))
	}

	snap := Aggregate(trades, t0, DefaultOptions())
	if snap.MaxConsecutiveWins != 4 || snap.MaxConsecutiveLosses != 3 {
		t.Errorf("streaks = %d/%d, want 4/3", snap.MaxConsecutiveWins, snap.MaxConsecutiveLosses)
	}
}

func TestAggregate_AvgRiskReward(t *testing.T) {
	a := pricedTrade(1, models.DirectionLong, "100", "110", "1", t0)
	a.StopLoss = decimal.NewNullDecimal(dec("95"))
	a.TakeProfit = decimal.NewNullDecimal(dec("110")) // 2R

	b := pricedTrade(2, models.DirectionShort, "100", "95", "1", t0.Add(time.Hour))
	b.StopLoss = decimal.NewNullDecimal(dec("105"))
	b.TakeProfit = decimal.NewNullDecimal(dec("80")) // 4R

	c := pricedTrade(3, models.DirectionLong, "100", "90", "1", t0.Add(2*time.Hour)) // без плана

	snap := Aggregate([]models.Trade{a, b, c}, t0, DefaultOptions())
	if snap.AvgRiskReward != 3 {
		t.Errorf("AvgRiskReward = %v, want 3", snap.AvgRiskReward)
	}
}

func TestOptionsFromPreferences(t *testing.T) {
	opts, err := OptionsFromPreferences(&models.Preferences{WeekStart: "sunday", Timezone: "UTC", SparklinePeriods: 20, DefaultTimeframe: "month"})
	if err != nil {
		t.Fatalf("OptionsFromPreferences: %v", err)
	}
	if opts.WeekStart != utils.WeekStartSunday || opts.SparklinePeriods != 20 || opts.Period != utils.PeriodMonth {
		t.Errorf("opts = %+v", opts)
	}

	if _, err := OptionsFromPreferences(&models.Preferences{WeekStart: "friday"}); err == nil {
		t.Error("ожидалась ошибка для неизвестного дня недели")
	}

	def, err := OptionsFromPreferences(nil)
	if err != nil || def.SparklinePeriods != DefaultSparklinePeriods {
		t.Errorf("nil preferences = %+v, %v", def, err)
	}
}
