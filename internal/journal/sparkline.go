package journal

import (
	"iter"

	"github.com/shopspring/decimal"

	"tradejournal/internal/models"
	"tradejournal/pkg/utils"
)

// Sparkline возвращает ленивую конечную последовательность точек спарклайна.
//
// Отсортированные сделки делятся на min(n, periods) корзин, размеры которых
// отличаются не больше чем на одну сделку. Пустые корзины (n < periods) пропускаются.
// Каждый проход по последовательности пересчитывает значения заново. Пустой
// набор дает пустую последовательность.
func Sparkline(trades []models.Trade, periods int, metric Metric) iter.Seq[float64] {
	return sparkline(prepare(trades, nil).entries, periods, metric)
}

func sparkline(entries []entry, periods int, metric Metric) iter.Seq[float64] {
	return func(yield func(float64) bool) {
		n := len(entries)
		if n == 0 || periods <= 0 {
			return
		}
		// граница i-й корзины ceil(i*n/periods)
		bound := func(i int) int { return (i*n + periods - 1) / periods }

		cumulative := decimal.Zero
		for i := 0; i < periods; i++ {
			bucket := entries[bound(i):bound(i+1)]
			if len(bucket) == 0 {
				continue
			}

			sum := decimal.Zero
			wins := 0
			for _, e := range bucket {
				sum = sum.Add(e.pnl)
				if e.outcome == models.OutcomeWin {
					wins++
				}
			}
			cumulative = cumulative.Add(sum)

			var v float64
			switch metric {
			case MetricPnL:
				v = toFloat(sum)
			case MetricWinRate:
				v = utils.Percentage(wins, len(bucket))
			case MetricTradeCount:
				v = float64(len(bucket))
			case MetricAvgPnL:
				v = toFloat(sum.Div(decimal.NewFromInt(int64(len(bucket)))))
			default:
				v = toFloat(cumulative)
			}

			if !yield(v) {
				return
			}
		}
	}
}
