package utils

import (
	"math"

	"github.com/shopspring/decimal"
)

// math.go - математические утилиты для торгового журнала
//
// Назначение:
// Вспомогательные функции для расчета P&L, risk/reward и процентов.
// Все функции являются чистыми (pure functions) без побочных эффектов.
//
// Функции:
// - CalculatePNL: P&L сделки по направлению (decimal, без потери точности)
// - CalculateRiskReward: плановое соотношение прибыль/риск
// - Percentage, RoundTo: округление и проценты

// CalculatePNL рассчитывает P&L закрытой сделки.
//
// Формулы:
//   - Long PNL = (exit - entry) × size
//   - Short PNL = (entry - exit) × size
//
// Возвращает ноль для неизвестного направления или неположительного размера.
func CalculatePNL(direction string, entry, exit, size decimal.Decimal) decimal.Decimal {
	if !size.IsPositive() {
		return decimal.Zero
	}

	switch direction {
	case "long":
		// Лонг: прибыль если цена выросла
		return exit.Sub(entry).Mul(size)
	case "short":
		// Шорт: прибыль если цена упала
		return entry.Sub(exit).Mul(size)
	default:
		return decimal.Zero
	}
}

// CalculateRiskReward возвращает плановое соотношение reward/risk.
//
// risk = |entry - stop|, reward = |target - entry|.
// ok=false если stop или target не по ту сторону от входа, либо risk = 0.
//
// Примеры:
//   - long, entry=100, stop=95, target=110 → 2.0
//   - short, entry=100, stop=105, target=85 → 3.0
func CalculateRiskReward(direction string, entry, stop, target decimal.Decimal) (float64, bool) {
	var risk, reward decimal.Decimal

	switch direction {
	case "long":
		risk = entry.Sub(stop)
		reward = target.Sub(entry)
	case "short":
		risk = stop.Sub(entry)
		reward = entry.Sub(target)
	default:
		return 0, false
	}

	if !risk.IsPositive() || reward.IsNegative() {
		return 0, false
	}

	rr, _ := reward.Div(risk).Float64()
	return rr, true
}

// Percentage возвращает part/total*100, округленное до целого.
// При total = 0 возвращает 0.
func Percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part) / float64(total) * 100)
}

// RoundTo округляет значение до указанного количества знаков после запятой.
func RoundTo(value float64, places int) float64 {
	if places < 0 {
		return value
	}
	p := math.Pow(10, float64(places))
	return math.Round(value*p) / p
}
