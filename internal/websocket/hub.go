package websocket

import (
	"bytes"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"

	"tradejournal/internal/metrics"
	"tradejournal/internal/models"
	"tradejournal/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// broadcastBufferSize размер очереди исходящих сообщений Hub
const broadcastBufferSize = 256

// sync.Pool для JSON буферов: BroadcastToUser вызывается после каждой мутации журнала
var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 1024))
	},
}

// envelope сообщение с адресатом
type envelope struct {
	userID  string
	msgType string
	data    []byte
}

// Hub управляет всеми активными WebSocket соединениями
//
// Назначение:
// Доставка real-time обновлений журнала на frontend без polling.
// Каждый клиент привязан к пользователю, сообщения журнала получают только
// соединения владельца.
//
// Функции:
// - Регистрация и отмена регистрации клиентов
// - Адресная отправка соединениям пользователя (BroadcastToUser)
// - Удаление медленных клиентов, у которых переполнен буфер
// - Неблокирующая постановка в очередь: при переполнении сообщение
//   отбрасывается и учитывается в метрике messages_dropped_total
//
// Типы сообщений:
// - snapshotUpdate: новый снимок статистики
// - layoutUpdate: изменение раскладки дашборда
// - tradeUpdate: изменение сделки
//
// Использование:
// 1. Создать hub: hub := NewHub()
// 2. Запустить в горутине: go hub.Run()
// 3. Отправлять сообщения: hub.BroadcastSnapshot(userID, snap)
// 4. При завершении: hub.Stop()
type Hub struct {
	// Зарегистрированные клиенты по пользователям
	clients map[string]map[*Client]struct{}

	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	stopOnce   sync.Once

	// Mutex для потокобезопасного доступа к clients
	mu sync.RWMutex

	clientCount atomic.Int64

	origins *OriginChecker
	logger  *utils.Logger
}

// NewHub создает новый Hub. Без SetAllowedOrigins разрешены все origin.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		broadcast:  make(chan envelope, broadcastBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		origins:    NewOriginChecker(nil),
		logger:     utils.L().WithComponent("websocket"),
	}
}

// SetAllowedOrigins ограничивает origin для upgrade. Вызывается до Run.
func (h *Hub) SetAllowedOrigins(origins []string) {
	h.origins = NewOriginChecker(origins)
}

// Run запускает главный цикл Hub
//
// Должен запускаться в отдельной горутине: go hub.Run()
// Завершается после Stop(), закрывая каналы всех клиентов.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.userID] = set
			}
			set[client] = struct{}{}
			h.mu.Unlock()

			n := h.clientCount.Add(1)
			metrics.SetWebsocketClients(int(n))
			h.logger.Debug("client connected", utils.UserID(client.userID), utils.Int64("clients", n))

		case client := <-h.unregister:
			if h.remove(client) {
				h.logger.Debug("client disconnected", utils.UserID(client.userID), utils.Int64("clients", h.clientCount.Load()))
			}

		case env := <-h.broadcast:
			h.deliver(env)

		case <-h.stop:
			h.mu.Lock()
			for _, set := range h.clients {
				for client := range set {
					close(client.send)
				}
			}
			h.clients = make(map[string]map[*Client]struct{})
			h.mu.Unlock()
			h.clientCount.Store(0)
			metrics.SetWebsocketClients(0)
			return
		}
	}
}

// deliver отправляет сообщение адресатам.
// Список клиентов копируется под коротким RLock, отправка идет без блокировки.
func (h *Hub) deliver(env envelope) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients[env.userID]))
	for client := range h.clients[env.userID] {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		select {
		case client.send <- env.data:
		default:
			// клиент не успевает читать - отключаем
			if h.remove(client) {
				metrics.RecordDroppedMessage(env.msgType)
				h.logger.Warn("slow client removed", utils.UserID(client.userID))
			}
		}
	}
}

// remove удаляет клиента и закрывает его канал. Возвращает false, если клиент уже удален.
func (h *Hub) remove(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[client.userID]
	if !ok {
		return false
	}
	if _, ok := set[client]; !ok {
		return false
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.clients, client.userID)
	}
	close(client.send)

	metrics.SetWebsocketClients(int(h.clientCount.Add(-1)))
	return true
}

// Stop останавливает Run. Повторный вызов безопасен.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// encode сериализует сообщение через пул буферов
func (h *Hub) encode(message interface{}) ([]byte, bool) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer jsonBufferPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		h.logger.Error("failed to marshal websocket message", utils.Err(err))
		return nil, false
	}

	data := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
	out := make([]byte, len(data))
	copy(out, data)
	return out, true
}

// enqueue ставит сообщение в очередь без блокировки
func (h *Hub) enqueue(env envelope) {
	select {
	case h.broadcast <- env:
	default:
		metrics.RecordDroppedMessage(env.msgType)
	}
}

// BroadcastToUser отправляет сообщение всем соединениям пользователя
func (h *Hub) BroadcastToUser(userID string, msgType MessageType, message interface{}) {
	if data, ok := h.encode(message); ok {
		h.enqueue(envelope{userID: userID, msgType: string(msgType), data: data})
	}
}

// BroadcastSnapshot отправляет snapshotUpdate владельцу журнала
func (h *Hub) BroadcastSnapshot(userID string, snap *models.Snapshot) {
	h.BroadcastToUser(userID, MessageTypeSnapshotUpdate, NewSnapshotUpdateMessage(snap))
}

// BroadcastLayout отправляет layoutUpdate владельцу дашборда
func (h *Hub) BroadcastLayout(userID string, layout *models.Layout) {
	h.BroadcastToUser(userID, MessageTypeLayoutUpdate, NewLayoutUpdateMessage(layout))
}

// BroadcastTrade отправляет tradeUpdate владельцу журнала
func (h *Hub) BroadcastTrade(userID string, action string, trade *models.Trade) {
	h.BroadcastToUser(userID, MessageTypeTradeUpdate, NewTradeUpdateMessage(action, trade))
}

// ClientCount возвращает количество подключенных клиентов (lock-free)
func (h *Hub) ClientCount() int {
	return int(h.clientCount.Load())
}

