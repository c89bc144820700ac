package models

import (
	"time"

	"github.com/shopspring/decimal"

	"tradejournal/pkg/utils"
)

// Direction направление сделки
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Outcome результат сделки, указанный пользователем
type Outcome string

const (
	OutcomeWin       Outcome = "win"
	OutcomeLoss      Outcome = "loss"
	OutcomeBreakeven Outcome = "breakeven"
)

// TradeStatus статус сделки
type TradeStatus string

const (
	TradeStatusOpen   TradeStatus = "open"   // позиция еще не закрыта, в агрегаты не входит
	TradeStatusClosed TradeStatus = "closed" // есть цена выхода или явный P&L
)

// Trade представляет запись журнала сделок
type Trade struct {
	ID           int64               `json:"id" db:"id"`
	UserID       string              `json:"user_id" db:"user_id"`
	Symbol       string              `json:"symbol" db:"symbol"`
	Direction    Direction           `json:"direction" db:"direction"`
	Status       TradeStatus         `json:"status" db:"status"`
	EntryPrice   decimal.Decimal     `json:"entry_price" db:"entry_price"`
	ExitPrice    decimal.NullDecimal `json:"exit_price" db:"exit_price"` // null для открытой сделки
	PositionSize decimal.Decimal     `json:"position_size" db:"position_size"`
	StopLoss     decimal.NullDecimal `json:"stop_loss" db:"stop_loss"`     // плановый стоп (для risk/reward)
	TakeProfit   decimal.NullDecimal `json:"take_profit" db:"take_profit"` // плановая цель
	EntryTime    time.Time           `json:"entry_time" db:"entry_time"`
	ExitTime     *time.Time          `json:"exit_time,omitempty" db:"exit_time"`
	Outcome      Outcome             `json:"outcome,omitempty" db:"outcome"` // пусто = определяется по знаку P&L
	ProfitLoss   decimal.Decimal     `json:"profit_loss" db:"profit_loss"`
	SetupType    string              `json:"setup_type" db:"setup_type"`
	Notes        string              `json:"notes" db:"notes"`
	Tags         []string            `json:"tags" db:"tags"` // JSON в БД
	CreatedAt    time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at" db:"updated_at"`
}

// HasValidTiming проверяет инвариант exit_time >= entry_time
func (t *Trade) HasValidTiming() bool {
	return t.ExitTime == nil || !t.ExitTime.Before(t.EntryTime)
}

// ExpectedPNL рассчитывает P&L по ценам.
// ok=false если нет цены выхода, размер неположительный или направление неизвестно.
func (t *Trade) ExpectedPNL() (decimal.Decimal, bool) {
	if !t.ExitPrice.Valid || !t.PositionSize.IsPositive() {
		return decimal.Zero, false
	}
	if t.Direction != DirectionLong && t.Direction != DirectionShort {
		return decimal.Zero, false
	}
	return utils.CalculatePNL(string(t.Direction), t.EntryPrice, t.ExitPrice.Decimal, t.PositionSize), true
}

// TradeFilter параметры выборки сделок
type TradeFilter struct {
	Symbol    string      `json:"symbol,omitempty"`
	SetupType string      `json:"setup_type,omitempty"`
	Status    TradeStatus `json:"status,omitempty"`
	From      *time.Time  `json:"from,omitempty"` // entry_time >= From
	To        *time.Time  `json:"to,omitempty"`   // entry_time <= To
	Limit     int         `json:"limit,omitempty"`
	Offset    int         `json:"offset,omitempty"`

	// Границы из запроса; заменяют From/To после разрешения в поясе пользователя
	FromDate utils.DateValue `json:"-"`
	ToDate   utils.DateValue `json:"-"`
}
