package journal

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"tradejournal/internal/models"
	"tradejournal/pkg/utils"
)

// aggregator.go - агрегация сделок в снимок статистики
//
// Все функции чистые и детерминированные: одинаковый вход дает одинаковый снимок.
// Открытые сделки пропускаются, сделки с exit_time < entry_time исключаются
// (с пометкой в issues), остальные участвуют во всех метриках.
//
// Порядок сделок для drawdown, серий и спарклайна: entry_time, затем id,
// затем позиция во входном наборе.

// entry сделка, допущенная к агрегации
type entry struct {
	trade   *models.Trade
	index   int
	outcome models.Outcome
	pnl     decimal.Decimal
}

// prepared результат отбора сделок
type prepared struct {
	entries  []entry // отсортированы
	open     int
	excluded int
	issues   []models.DataIssue
}

// prepare отбирает закрытые корректные сделки и сортирует их детерминированно.
// Если задан rng, сделки вне диапазона (по entry_time) игнорируются.
func prepare(trades []models.Trade, rng *models.DateRange) prepared {
	p := prepared{
		entries: make([]entry, 0, len(trades)),
		issues:  []models.DataIssue{},
	}

	for i := range trades {
		t := &trades[i]

		if rng != nil && !rng.Contains(t.EntryTime) {
			continue
		}
		if t.Status == models.TradeStatusOpen {
			p.open++
			continue
		}
		if !t.HasValidTiming() {
			p.excluded++
			p.issues = append(p.issues, models.DataIssue{
				TradeID: t.ID,
				Index:   i,
				Field:   "exit_time",
				Kind:    models.IssueInvalidTiming,
				Message: fmt.Sprintf("exit_time %s is before entry_time %s, trade excluded",
					t.ExitTime.Format(time.RFC3339), t.EntryTime.Format(time.RFC3339)),
			})
			continue
		}

		outcome, mismatch := Classify(t)
		if mismatch {
			p.issues = append(p.issues, models.DataIssue{
				TradeID: t.ID,
				Index:   i,
				Field:   "outcome",
				Kind:    models.IssueOutcomeMismatch,
				Message: fmt.Sprintf("outcome %q contradicts profit_loss %s, classified as %s",
					t.Outcome, t.ProfitLoss.String(), outcome),
			})
		}

		p.entries = append(p.entries, entry{
			trade:   t,
			index:   i,
			outcome: outcome,
			pnl:     t.ProfitLoss,
		})
	}

	slices.SortStableFunc(p.entries, compareEntries)
	return p
}

func compareEntries(a, b entry) int {
	if c := a.trade.EntryTime.Compare(b.trade.EntryTime); c != 0 {
		return c
	}
	if c := cmp.Compare(a.trade.ID, b.trade.ID); c != 0 {
		return c
	}
	return cmp.Compare(a.index, b.index)
}

// Classify определяет результат сделки.
//
// outcome используется, если он указан и совпадает со знаком P&L; иначе
// результат определяется по знаку: > 0 win, < 0 loss, == 0 breakeven.
// mismatch = true, если указанный outcome противоречит знаку.
func Classify(t *models.Trade) (outcome models.Outcome, mismatch bool) {
	bySign := models.OutcomeBreakeven
	switch t.ProfitLoss.Sign() {
	case 1:
		bySign = models.OutcomeWin
	case -1:
		bySign = models.OutcomeLoss
	}

	if t.Outcome == "" {
		return bySign, false
	}
	if t.Outcome == bySign {
		return t.Outcome, false
	}
	return bySign, true
}

// ============================================================
// Базовая статистика
// ============================================================

// BasicStats количество сделок по результату и win rate
type BasicStats struct {
	Total     int     `json:"total_trades"`
	Winning   int     `json:"winning_trades"`
	Losing    int     `json:"losing_trades"`
	Breakeven int     `json:"breakeven_trades"`
	WinRate   float64 `json:"win_rate"`
}

// ComputeBasicStats считает сделки по результату.
// win_rate = round(winning / total * 100), 0 для пустого набора.
func ComputeBasicStats(trades []models.Trade) BasicStats {
	return basicStats(prepare(trades, nil).entries)
}

func basicStats(entries []entry) BasicStats {
	s := BasicStats{Total: len(entries)}
	for _, e := range entries {
		switch e.outcome {
		case models.OutcomeWin:
			s.Winning++
		case models.OutcomeLoss:
			s.Losing++
		default:
			s.Breakeven++
		}
	}
	s.WinRate = utils.Percentage(s.Winning, s.Total)
	return s
}

// ============================================================
// P&L по периодам
// ============================================================

// PeriodPnL P&L и количество сделок за текущие день, неделю и месяц
type PeriodPnL struct {
	Today       float64 `json:"today_pnl"`
	TodayTrades int     `json:"today_trades"`
	Week        float64 `json:"week_pnl"`
	WeekTrades  int     `json:"week_trades"`
	Month       float64 `json:"month_pnl"`
	MonthTrades int     `json:"month_trades"`
}

// ComputePeriodPnL суммирует P&L сделок, у которых entry_time попадает в
// [начало, конец] дня, недели и месяца, содержащих ref.
// Границы считаются в opts.Location, первый день недели - opts.WeekStart.
func ComputePeriodPnL(trades []models.Trade, ref time.Time, opts Options) PeriodPnL {
	opts = opts.withDefaults()
	return periodPnL(prepare(trades, nil).entries, ref, opts)
}

func periodPnL(entries []entry, ref time.Time, opts Options) PeriodPnL {
	day := utils.DayRangeIn(ref, opts.Location)
	week := utils.WeekRangeIn(ref, opts.Location, opts.WeekStart)
	month := utils.MonthRangeIn(ref, opts.Location)

	var today, wk, mo decimal.Decimal
	var res PeriodPnL

	for _, e := range entries {
		at := e.trade.EntryTime
		if day.Contains(at) {
			today = today.Add(e.pnl)
			res.TodayTrades++
		}
		if week.Contains(at) {
			wk = wk.Add(e.pnl)
			res.WeekTrades++
		}
		if month.Contains(at) {
			mo = mo.Add(e.pnl)
			res.MonthTrades++
		}
	}

	res.Today = toFloat(today)
	res.Week = toFloat(wk)
	res.Month = toFloat(mo)
	return res
}

// ============================================================
// Средние выигрыш и проигрыш
// ============================================================

// AvgWinLoss средние значения по выигрышным и проигрышным сделкам
type AvgWinLoss struct {
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	ProfitFactor float64 `json:"profit_factor"`
}

// ComputeAvgWinLoss считает средний выигрыш, средний проигрыш (отрицательный)
// и profit factor = avg_win / |avg_loss| (0 при avg_loss = 0).
// Сделки breakeven не входят ни в одно из подмножеств.
func ComputeAvgWinLoss(trades []models.Trade) AvgWinLoss {
	return avgWinLoss(prepare(trades, nil).entries)
}

func avgWinLoss(entries []entry) AvgWinLoss {
	var winSum, lossSum decimal.Decimal
	var wins, losses int64

	for _, e := range entries {
		switch e.outcome {
		case models.OutcomeWin:
			winSum = winSum.Add(e.pnl)
			wins++
		case models.OutcomeLoss:
			lossSum = lossSum.Add(e.pnl)
			losses++
		}
	}

	var avgWin, avgLoss decimal.Decimal
	if wins > 0 {
		avgWin = winSum.Div(decimal.NewFromInt(wins))
	}
	if losses > 0 {
		avgLoss = lossSum.Div(decimal.NewFromInt(losses))
	}

	res := AvgWinLoss{AvgWin: toFloat(avgWin), AvgLoss: toFloat(avgLoss)}
	if !avgLoss.IsZero() {
		// без округления, как и avg_win / avg_loss
		res.ProfitFactor = toFloat(avgWin.Div(avgLoss.Abs()))
	}
	return res
}

// ============================================================
// Максимальная просадка
// ============================================================

// ComputeMaxDrawdown возвращает максимальное падение накопленного P&L от
// текущего пика. Пик инициализируется первым накопленным значением, поэтому
// неубывающая серия дает 0. Результат всегда >= 0.
func ComputeMaxDrawdown(trades []models.Trade) float64 {
	return maxDrawdown(prepare(trades, nil).entries)
}

func maxDrawdown(entries []entry) float64 {
	if len(entries) == 0 {
		return 0
	}

	cumulative := decimal.Zero
	var peak, worst decimal.Decimal

	for i, e := range entries {
		cumulative = cumulative.Add(e.pnl)
		if i == 0 || cumulative.GreaterThan(peak) {
			peak = cumulative
		}
		if dd := peak.Sub(cumulative); dd.GreaterThan(worst) {
			worst = dd
		}
	}
	return toFloat(worst)
}

// ============================================================
// Полный снимок
// ============================================================

// Aggregate строит снимок статистики по сделкам относительно ref.
//
// Если задан opts.Range, он ограничивает набор сделок для всех метрик.
// Пустой набор дает нейтральный снимок: нули и пустой спарклайн.
func Aggregate(trades []models.Trade, ref time.Time, opts Options) *models.Snapshot {
	opts = opts.withDefaults()
	p := prepare(trades, opts.Range)

	basic := basicStats(p.entries)
	period := periodPnL(p.entries, ref, opts)
	avg := avgWinLoss(p.entries)
	wins, losses := streaks(p.entries)

	snap := &models.Snapshot{
		TotalTrades:     basic.Total,
		WinningTrades:   basic.Winning,
		LosingTrades:    basic.Losing,
		BreakevenTrades: basic.Breakeven,
		OpenTrades:      p.open,
		ExcludedTrades:  p.excluded,
		WinRate:         basic.WinRate,

		TotalPnl:    toFloat(totalPnl(p.entries)),
		TodayPnl:    period.Today,
		TodayTrades: period.TodayTrades,
		WeekPnl:     period.Week,
		WeekTrades:  period.WeekTrades,
		MonthPnl:    period.Month,
		MonthTrades: period.MonthTrades,

		AvgWin:       avg.AvgWin,
		AvgLoss:      avg.AvgLoss,
		ProfitFactor: avg.ProfitFactor,
		MaxDrawdown:  maxDrawdown(p.entries),

		MaxConsecutiveWins:   wins,
		MaxConsecutiveLosses: losses,
		AvgRiskReward:        avgRiskReward(p.entries),

		Sparkline:       slices.Collect(sparkline(p.entries, opts.SparklinePeriods, opts.SparklineMetric)),
		SparklineMetric: string(opts.SparklineMetric),

		BySetup:  groupBy(p.entries, setupKey),
		BySymbol: groupBy(p.entries, symbolKey),

		ReferenceDate: ref,
		Range:         opts.Range,
		WeekStart:     string(opts.WeekStart),
		Timezone:      opts.Location.String(),
		Issues:        p.issues,
	}
	snap.LargestWin, snap.LargestLoss = extremes(p.entries)

	if snap.Sparkline == nil {
		snap.Sparkline = []float64{}
	}
	return snap
}

func totalPnl(entries []entry) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.pnl)
	}
	return sum
}

// extremes возвращает наибольший выигрыш (>= 0) и наибольший проигрыш (<= 0)
func extremes(entries []entry) (largestWin, largestLoss float64) {
	var win, loss decimal.Decimal
	for _, e := range entries {
		if e.pnl.GreaterThan(win) {
			win = e.pnl
		}
		if e.pnl.LessThan(loss) {
			loss = e.pnl
		}
	}
	return toFloat(win), toFloat(loss)
}

// streaks возвращает длины наибольших серий побед и поражений.
// Сделка breakeven прерывает обе серии.
func streaks(entries []entry) (maxWins, maxLosses int) {
	var curWins, curLosses int
	for _, e := range entries {
		switch e.outcome {
		case models.OutcomeWin:
			curWins++
			curLosses = 0
		case models.OutcomeLoss:
			curLosses++
			curWins = 0
		default:
			curWins, curLosses = 0, 0
		}
		maxWins = max(maxWins, curWins)
		maxLosses = max(maxLosses, curLosses)
	}
	return maxWins, maxLosses
}

// avgRiskReward - среднее плановое reward/risk по сделкам с заданными stop и target
func avgRiskReward(entries []entry) float64 {
	var sum float64
	var n int
	for _, e := range entries {
		t := e.trade
		if !t.StopLoss.Valid || !t.TakeProfit.Valid {
			continue
		}
		rr, ok := utils.CalculateRiskReward(string(t.Direction), t.EntryPrice, t.StopLoss.Decimal, t.TakeProfit.Decimal)
		if !ok {
			continue
		}
		sum += rr
		n++
	}
	if n == 0 {
		return 0
	}
	return utils.RoundTo(sum/float64(n), 2)
}

func setupKey(t *models.Trade) string {
	if t.SetupType == "" {
		return "unspecified"
	}
	return t.SetupType
}

func symbolKey(t *models.Trade) string {
	return t.Symbol
}

// groupBy строит статистику по группам.
// Сортировка: P&L по убыванию, затем ключ по возрастанию.
func groupBy(entries []entry, key func(*models.Trade) string) []models.GroupStat {
	type acc struct {
		trades int
		wins   int
		pnl    decimal.Decimal
	}

	groups := make(map[string]*acc)
	for _, e := range entries {
		k := key(e.trade)
		g, ok := groups[k]
		if !ok {
			g = &acc{}
			groups[k] = g
		}
		g.trades++
		g.pnl = g.pnl.Add(e.pnl)
		if e.outcome == models.OutcomeWin {
			g.wins++
		}
	}

	result := make([]models.GroupStat, 0, len(groups))
	for k, g := range groups {
		result = append(result, models.GroupStat{
			Key:     k,
			Trades:  g.trades,
			WinRate: utils.Percentage(g.wins, g.trades),
			Pnl:     toFloat(g.pnl),
		})
	}

	slices.SortFunc(result, func(a, b models.GroupStat) int {
		if c := cmp.Compare(b.Pnl, a.Pnl); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	return result
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
