package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"tradejournal/internal/api/middleware"
	"tradejournal/internal/dashboard"
	"tradejournal/internal/journal"
	"tradejournal/internal/models"
	"tradejournal/internal/service"
	"tradejournal/pkg/utils"
)

// ErrMockDatabase ошибка хранилища для тестов
var ErrMockDatabase = errors.New("mock database error")

// withUser добавляет пользователя (как Auth middleware) и переменные пути
func withUser(r *http.Request, userID string, vars map[string]string) *http.Request {
	r = r.WithContext(middleware.WithUserID(r.Context(), userID))
	if vars != nil {
		r = mux.SetURLVars(r, vars)
	}
	return r
}

// ============ Mock Journal Service ============

// MockJournalService мок для JournalServiceInterface
type MockJournalService struct {
	mu     sync.Mutex
	trades map[int64]*models.Trade
	nextID int64

	lastFilter  models.TradeFilter
	lastQuery   service.SnapshotQuery
	lastImport  []journal.RawTrade
	importValue *service.ImportResult

	createErr   error
	getErr      error
	listErr     error
	deleteErr   error
	importErr   error
	snapshotErr error
}

// NewMockJournalService создает новый мок сервиса журнала
func NewMockJournalService() *MockJournalService {
	return &MockJournalService{trades: make(map[int64]*models.Trade), nextID: 1}
}

func (m *MockJournalService) CreateTrade(ctx context.Context, userID string, raw journal.RawTrade) (*models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	if !raw.Symbol.Present {
		var verrs utils.ValidationErrors
		verrs.Add("trade", journal.ErrMissingSymbol.Error())
		return nil, verrs
	}
	trade := &models.Trade{
		ID:         m.nextID,
		UserID:     userID,
		Symbol:     raw.Symbol.Raw,
		ProfitLoss: decimal.NewFromInt(20),
	}
	m.nextID++
	m.trades[trade.ID] = trade
	return trade, nil
}

func (m *MockJournalService) UpdateTrade(ctx context.Context, userID string, id int64, patch journal.RawTrade) (*models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	trade, ok := m.trades[id]
	if !ok || trade.UserID != userID {
		return nil, service.ErrTradeNotFound
	}
	if patch.Notes.Present {
		trade.Notes = patch.Notes.Raw
	}
	return trade, nil
}

func (m *MockJournalService) DeleteTrade(ctx context.Context, userID string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	trade, ok := m.trades[id]
	if !ok || trade.UserID != userID {
		return service.ErrTradeNotFound
	}
	delete(m.trades, id)
	return nil
}

func (m *MockJournalService) GetTrade(ctx context.Context, userID string, id int64) (*models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	trade, ok := m.trades[id]
	if !ok || trade.UserID != userID {
		return nil, service.ErrTradeNotFound
	}
	return trade, nil
}

func (m *MockJournalService) ListTrades(ctx context.Context, userID string, filter models.TradeFilter) ([]models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = filter
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []models.Trade
	for _, t := range m.trades {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *MockJournalService) ImportTrades(ctx context.Context, userID string, raws []journal.RawTrade) (*service.ImportResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastImport = raws
	if m.importErr != nil {
		return nil, m.importErr
	}
	if m.importValue != nil {
		return m.importValue, nil
	}
	result := &service.ImportResult{}
	for i, raw := range raws {
		if !raw.Symbol.Present {
			result.Rejected = append(result.Rejected, journal.RejectedRecord{Index: i, Reason: "symbol is required"})
			continue
		}
		result.Imported++
	}
	return result, nil
}

func (m *MockJournalService) GetSnapshot(ctx context.Context, userID string, q service.SnapshotQuery) (*models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastQuery = q
	if m.snapshotErr != nil {
		return nil, m.snapshotErr
	}
	return &models.Snapshot{TotalTrades: 2, TotalPnl: 120, SparklineMetric: string(q.Metric), Issues: []models.DataIssue{}}, nil
}

func (m *MockJournalService) GetSparkline(ctx context.Context, userID string, q service.SnapshotQuery) (*service.SparklineResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastQuery = q
	if m.snapshotErr != nil {
		return nil, m.snapshotErr
	}
	return &service.SparklineResult{Metric: q.Metric, Periods: q.Periods, Points: []float64{5, 30}}, nil
}

// ============ Mock Layout Service ============

// MockLayoutService мок для LayoutServiceInterface на реальной логике dashboard
type MockLayoutService struct {
	mu      sync.Mutex
	layouts map[string]*models.Layout
	catalog *dashboard.Catalog
	getErr  error
}

// NewMockLayoutService создает новый мок сервиса раскладки
func NewMockLayoutService() *MockLayoutService {
	return &MockLayoutService{layouts: make(map[string]*models.Layout), catalog: dashboard.DefaultCatalog()}
}

func (m *MockLayoutService) current(userID string) *models.Layout {
	if l, ok := m.layouts[userID]; ok {
		return l
	}
	return dashboard.DefaultLayout(userID, m.catalog)
}

func (m *MockLayoutService) GetLayout(ctx context.Context, userID string) (*models.Layout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.current(userID), nil
}

func (m *MockLayoutService) AddWidget(ctx context.Context, userID, widgetID string) (*models.Layout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := utils.ValidateWidgetID(widgetID); err != nil {
		return nil, err
	}
	layout, err := dashboard.AddWidget(m.current(userID), widgetID, m.catalog)
	if err != nil {
		return nil, err
	}
	m.layouts[userID] = layout
	return layout, nil
}

func (m *MockLayoutService) RemoveWidget(ctx context.Context, userID, widgetID string) (*models.Layout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	layout := dashboard.RemoveWidget(m.current(userID), widgetID)
	m.layouts[userID] = layout
	return layout, nil
}

func (m *MockLayoutService) UpdateLayout(ctx context.Context, userID string, breakpoints map[models.Breakpoint][]models.LayoutItem) (*models.Layout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	layout, err := dashboard.UpdateLayout(m.current(userID), breakpoints)
	if err != nil {
		return nil, err
	}
	m.layouts[userID] = layout
	return layout, nil
}

func (m *MockLayoutService) ResetLayout(ctx context.Context, userID string) (*models.Layout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.layouts, userID)
	return m.current(userID), nil
}

func (m *MockLayoutService) Catalog() []models.WidgetDefinition {
	return m.catalog.List()
}

// ============ Mock Preferences Service ============

// MockPreferencesService мок для PreferencesServiceInterface
type MockPreferencesService struct {
	mu     sync.Mutex
	prefs  map[string]*models.Preferences
	getErr error
}

// NewMockPreferencesService создает новый мок сервиса настроек
func NewMockPreferencesService() *MockPreferencesService {
	return &MockPreferencesService{prefs: make(map[string]*models.Preferences)}
}

func (m *MockPreferencesService) get(userID string) *models.Preferences {
	p, ok := m.prefs[userID]
	if !ok {
		p = models.DefaultPreferences(userID)
		m.prefs[userID] = p
	}
	return p
}

func (m *MockPreferencesService) GetPreferences(ctx context.Context, userID string) (*models.Preferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.get(userID), nil
}

func (m *MockPreferencesService) UpdatePreferences(ctx context.Context, userID string, req *service.UpdatePreferencesRequest) (*models.Preferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.get(userID)
	var verrs utils.ValidationErrors
	if req.WeekStart != nil {
		if _, err := utils.ParseWeekStart(*req.WeekStart); err != nil {
			verrs.AddError("week_start", err)
		}
	}
	if req.SparklinePeriods != nil {
		verrs.AddError("sparkline_periods", utils.ValidateSparklinePeriods(*req.SparklinePeriods))
	}
	if err := verrs.Err(); err != nil {
		return nil, err
	}
	if req.WeekStart != nil {
		p.WeekStart = *req.WeekStart
	}
	if req.SparklinePeriods != nil {
		p.SparklinePeriods = *req.SparklinePeriods
	}
	return p, nil
}

func (m *MockPreferencesService) ResetToDefaults(ctx context.Context, userID string) (*models.Preferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := models.DefaultPreferences(userID)
	m.prefs[userID] = p
	return p, nil
}

func (m *MockPreferencesService) Options(ctx context.Context, userID string) (journal.Options, error) {
	return journal.DefaultOptions(), nil
}
