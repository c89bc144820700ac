package websocket

import (
	"time"

	"tradejournal/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeSnapshotUpdate - свежий снимок статистики журнала
	// Отправляется после каждого изменения набора сделок
	MessageTypeSnapshotUpdate MessageType = "snapshotUpdate"

	// MessageTypeLayoutUpdate - раскладка дашборда изменилась
	// Позволяет синхронизировать несколько открытых вкладок
	MessageTypeLayoutUpdate MessageType = "layoutUpdate"

	// MessageTypeTradeUpdate - сделка создана, изменена, удалена или импортирована
	MessageTypeTradeUpdate MessageType = "tradeUpdate"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// SnapshotUpdateMessage - сообщение со снимком статистики
type SnapshotUpdateMessage struct {
	BaseMessage
	Data *models.Snapshot `json:"data"`
}

// LayoutUpdateMessage - сообщение с раскладкой дашборда
type LayoutUpdateMessage struct {
	BaseMessage
	Data *models.Layout `json:"data"`
}

// TradeUpdateMessage - сообщение об изменении сделки.
//
// Для удаления и импорта Trade может быть nil: клиенту достаточно
// перезапросить список.
type TradeUpdateMessage struct {
	BaseMessage
	Action  string        `json:"action"`
	TradeID int64         `json:"trade_id,omitempty"`
	Trade   *models.Trade `json:"trade,omitempty"`
}

// ============ Фабричные функции для создания сообщений ============

func newBase(t MessageType) BaseMessage {
	return BaseMessage{Type: t, Timestamp: time.Now()}
}

// NewSnapshotUpdateMessage создает сообщение со снимком статистики
func NewSnapshotUpdateMessage(snap *models.Snapshot) *SnapshotUpdateMessage {
	return &SnapshotUpdateMessage{
		BaseMessage: newBase(MessageTypeSnapshotUpdate),
		Data:        snap,
	}
}

// NewLayoutUpdateMessage создает сообщение с раскладкой
func NewLayoutUpdateMessage(layout *models.Layout) *LayoutUpdateMessage {
	return &LayoutUpdateMessage{
		BaseMessage: newBase(MessageTypeLayoutUpdate),
		Data:        layout,
	}
}

// NewTradeUpdateMessage создает сообщение об изменении сделки
func NewTradeUpdateMessage(action string, trade *models.Trade) *TradeUpdateMessage {
	msg := &TradeUpdateMessage{
		BaseMessage: newBase(MessageTypeTradeUpdate),
		Action:      action,
	}
	if trade != nil {
		msg.TradeID = trade.ID
		// для удаления отправляем только ID
		if trade.Symbol != "" {
			msg.Trade = trade
		}
	}
	return msg
}
