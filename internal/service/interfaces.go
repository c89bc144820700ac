package service

import (
	"context"
	"time"

	"tradejournal/internal/journal"
	"tradejournal/internal/models"
	"tradejournal/internal/repository"
)

// TradeStore определяет интерфейс хранилища сделок
type TradeStore interface {
	Create(ctx context.Context, trade *models.Trade) error
	CreateBatch(ctx context.Context, trades []models.Trade) error
	GetByID(ctx context.Context, userID string, id int64) (*models.Trade, error)
	GetAllByUser(ctx context.Context, userID string) ([]models.Trade, error)
	GetInRange(ctx context.Context, userID string, from, to time.Time) ([]models.Trade, error)
	List(ctx context.Context, userID string, filter models.TradeFilter) ([]models.Trade, error)
	Update(ctx context.Context, trade *models.Trade) error
	Delete(ctx context.Context, userID string, id int64) error
}

// LayoutStore определяет интерфейс хранилища раскладок дашборда
type LayoutStore interface {
	Load(ctx context.Context, userID string) (*models.Layout, error)
	Save(ctx context.Context, layout *models.Layout) error
	Delete(ctx context.Context, userID string) error
}

// PreferencesStore определяет интерфейс хранилища настроек
type PreferencesStore interface {
	Get(ctx context.Context, userID string) (*models.Preferences, error)
	Update(ctx context.Context, prefs *models.Preferences) error
	ResetToDefaults(ctx context.Context, userID string) (*models.Preferences, error)
}

// Проверяем, что реальные репозитории реализуют интерфейсы
var _ TradeStore = (*repository.TradeRepository)(nil)
var _ LayoutStore = (*repository.LayoutRepository)(nil)
var _ PreferencesStore = (*repository.PreferencesRepository)(nil)

// Broadcaster - интерфейс для отправки обновлений через WebSocket.
// Сообщения адресуются только клиентам указанного пользователя.
type Broadcaster interface {
	BroadcastSnapshot(userID string, snap *models.Snapshot)
	BroadcastLayout(userID string, layout *models.Layout)
	BroadcastTrade(userID string, action string, trade *models.Trade)
}

// OptionsProvider возвращает параметры агрегации пользователя
type OptionsProvider interface {
	Options(ctx context.Context, userID string) (journal.Options, error)
}

// ============ Интерфейсы сервисов для Dependency Injection ============

// JournalServiceInterface определяет интерфейс сервиса журнала сделок
type JournalServiceInterface interface {
	CreateTrade(ctx context.Context, userID string, raw journal.RawTrade) (*models.Trade, error)
	UpdateTrade(ctx context.Context, userID string, id int64, patch journal.RawTrade) (*models.Trade, error)
	DeleteTrade(ctx context.Context, userID string, id int64) error
	GetTrade(ctx context.Context, userID string, id int64) (*models.Trade, error)
	ListTrades(ctx context.Context, userID string, filter models.TradeFilter) ([]models.Trade, error)
	ImportTrades(ctx context.Context, userID string, raws []journal.RawTrade) (*ImportResult, error)
	GetSnapshot(ctx context.Context, userID string, q SnapshotQuery) (*models.Snapshot, error)
	GetSparkline(ctx context.Context, userID string, q SnapshotQuery) (*SparklineResult, error)
}

// LayoutServiceInterface определяет интерфейс сервиса раскладки дашборда
type LayoutServiceInterface interface {
	GetLayout(ctx context.Context, userID string) (*models.Layout, error)
	AddWidget(ctx context.Context, userID, widgetID string) (*models.Layout, error)
	RemoveWidget(ctx context.Context, userID, widgetID string) (*models.Layout, error)
	UpdateLayout(ctx context.Context, userID string, breakpoints map[models.Breakpoint][]models.LayoutItem) (*models.Layout, error)
	ResetLayout(ctx context.Context, userID string) (*models.Layout, error)
	Catalog() []models.WidgetDefinition
}

// PreferencesServiceInterface определяет интерфейс сервиса настроек
type PreferencesServiceInterface interface {
	GetPreferences(ctx context.Context, userID string) (*models.Preferences, error)
	UpdatePreferences(ctx context.Context, userID string, req *UpdatePreferencesRequest) (*models.Preferences, error)
	ResetToDefaults(ctx context.Context, userID string) (*models.Preferences, error)
	Options(ctx context.Context, userID string) (journal.Options, error)
}

// Проверяем, что реальные сервисы реализуют интерфейсы
var _ JournalServiceInterface = (*JournalService)(nil)
var _ LayoutServiceInterface = (*LayoutService)(nil)
var _ PreferencesServiceInterface = (*PreferencesService)(nil)
var _ OptionsProvider = (*PreferencesService)(nil)
