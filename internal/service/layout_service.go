package service

import (
	"context"
	"errors"
	"fmt"

	"tradejournal/internal/dashboard"
	"tradejournal/internal/metrics"
	"tradejournal/internal/models"
	"tradejournal/internal/repository"
	"tradejournal/pkg/utils"
)

// ErrLayoutStoreUnavailable сбой хранилища раскладок
var ErrLayoutStoreUnavailable = errors.New("layout store unavailable")

// LayoutService предоставляет бизнес-логику раскладки дашборда.
//
// Функции:
// - GetLayout: сохраненная раскладка или раскладка по умолчанию
// - AddWidget / RemoveWidget: изменение набора виджетов с авторазмещением
// - UpdateLayout: замена сеток breakpoint после перетаскивания
// - ResetLayout: возврат к раскладке по умолчанию
//
// Загруженная раскладка всегда проходит dashboard.Repair, поэтому клиент
// получает согласованную сетку даже после смены каталога.
type LayoutService struct {
	layouts LayoutStore
	catalog *dashboard.Catalog
	wsHub   Broadcaster
	logger  *utils.Logger
}

// NewLayoutService создает новый экземпляр LayoutService.
// catalog nil = dashboard.DefaultCatalog().
func NewLayoutService(layouts LayoutStore, catalog *dashboard.Catalog) *LayoutService {
	if catalog == nil {
		catalog = dashboard.DefaultCatalog()
	}
	return &LayoutService{
		layouts: layouts,
		catalog: catalog,
		logger:  utils.L().WithComponent("layout"),
	}
}

// SetWebSocketHub устанавливает WebSocket hub для broadcast layoutUpdate
func (s *LayoutService) SetWebSocketHub(hub Broadcaster) {
	s.wsHub = hub
}

// GetLayout возвращает раскладку пользователя.
// Если раскладка не сохранена, возвращается раскладка по умолчанию (без записи в БД).
func (s *LayoutService) GetLayout(ctx context.Context, userID string) (*models.Layout, error) {
	layout, err := s.layouts.Load(ctx, userID)
	if errors.Is(err, repository.ErrLayoutNotFound) {
		return dashboard.DefaultLayout(userID, s.catalog), nil
	}
	if err != nil {
		return nil, s.storeErr("load", err)
	}
	return dashboard.Repair(layout, s.catalog), nil
}

// AddWidget добавляет виджет в активный набор и размещает его на всех breakpoint.
// Повторное добавление активного виджета ничего не меняет.
func (s *LayoutService) AddWidget(ctx context.Context, userID, widgetID string) (*models.Layout, error) {
	if err := utils.ValidateWidgetID(widgetID); err != nil {
		return nil, err
	}

	current, err := s.GetLayout(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current.HasWidget(widgetID) {
		return current, nil
	}

	next, err := dashboard.AddWidget(current, widgetID, s.catalog)
	if err != nil {
		return nil, err
	}
	return s.save(ctx, next, "add", utils.WidgetID(widgetID))
}

// RemoveWidget удаляет виджет из набора и со всех breakpoint.
// Удаление отсутствующего виджета не является ошибкой.
func (s *LayoutService) RemoveWidget(ctx context.Context, userID, widgetID string) (*models.Layout, error) {
	current, err := s.GetLayout(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !current.HasWidget(widgetID) {
		return current, nil
	}

	return s.save(ctx, dashboard.RemoveWidget(current, widgetID), "remove", utils.WidgetID(widgetID))
}

// UpdateLayout заменяет сетки переданных breakpoint
func (s *LayoutService) UpdateLayout(ctx context.Context, userID string, breakpoints map[models.Breakpoint][]models.LayoutItem) (*models.Layout, error) {
	current, err := s.GetLayout(ctx, userID)
	if err != nil {
		return nil, err
	}

	next, err := dashboard.UpdateLayout(current, breakpoints)
	if err != nil {
		return nil, err
	}
	fields := []utils.Field{utils.Int("breakpoints", len(breakpoints))}
	if len(breakpoints) == 1 {
		for bp := range breakpoints {
			fields = append(fields, utils.Breakpoint(string(bp)))
		}
	}
	return s.save(ctx, next, "update", fields...)
}

// ResetLayout сохраняет и возвращает раскладку по умолчанию
func (s *LayoutService) ResetLayout(ctx context.Context, userID string) (*models.Layout, error) {
	return s.save(ctx, dashboard.DefaultLayout(userID, s.catalog), "reset")
}

// Catalog возвращает список доступных виджетов
func (s *LayoutService) Catalog() []models.WidgetDefinition {
	return s.catalog.List()
}

func (s *LayoutService) save(ctx context.Context, layout *models.Layout, action string, fields ...utils.Field) (*models.Layout, error) {
	if err := s.layouts.Save(ctx, layout); err != nil {
		return nil, s.storeErr("save", err)
	}

	metrics.RecordLayoutChange(action)
	s.logger.Info("layout changed",
		append([]utils.Field{utils.UserID(layout.UserID), utils.String("action", action)}, fields...)...)

	if s.wsHub != nil {
		s.wsHub.BroadcastLayout(layout.UserID, layout)
	}
	return layout, nil
}

func (s *LayoutService) storeErr(op string, err error) error {
	s.logger.Error("layout store failure", utils.String("operation", op), utils.Err(err))
	return fmt.Errorf("%w: %w", ErrLayoutStoreUnavailable, err)
}
