package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"tradejournal/internal/journal"
	"tradejournal/internal/models"
	"tradejournal/internal/repository"
)

// ============ Mock TradeStore ============

type MockTradeStore struct {
	mu        sync.Mutex
	trades    map[int64]*models.Trade
	nextID    int64
	createErr error
	getErr    error
	updateErr error
	deleteErr error
	listErr   error

	lastFilter models.TradeFilter
	rangeCalls int
}

func NewMockTradeStore() *MockTradeStore {
	return &MockTradeStore{
		trades: make(map[int64]*models.Trade),
		nextID: 1,
	}
}

func (m *MockTradeStore) add(t models.Trade) *models.Trade {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = m.nextID
	m.nextID++
	m.trades[t.ID] = &t
	return &t
}

func (m *MockTradeStore) Create(ctx context.Context, trade *models.Trade) error {
	if m.createErr != nil {
		return m.createErr
	}
	stored := m.add(*trade)
	trade.ID = stored.ID
	return nil
}

func (m *MockTradeStore) CreateBatch(ctx context.Context, trades []models.Trade) error {
	if m.createErr != nil {
		return m.createErr
	}
	for i := range trades {
		trades[i].ID = m.add(trades[i]).ID
	}
	return nil
}

func (m *MockTradeStore) GetByID(ctx context.Context, userID string, id int64) (*models.Trade, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.trades[id]; ok && t.UserID == userID {
		c := *t
		return &c, nil
	}
	return nil, repository.ErrTradeNotFound
}

func (m *MockTradeStore) byUser(userID string, keep func(*models.Trade) bool) []models.Trade {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := []models.Trade{}
	for _, t := range m.trades {
		if t.UserID == userID && (keep == nil || keep(t)) {
			result = append(result, *t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (m *MockTradeStore) GetAllByUser(ctx context.Context, userID string) ([]models.Trade, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.byUser(userID, nil), nil
}

func (m *MockTradeStore) GetInRange(ctx context.Context, userID string, from, to time.Time) ([]models.Trade, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.rangeCalls++
	return m.byUser(userID, func(t *models.Trade) bool {
		return !t.EntryTime.Before(from) && !t.EntryTime.After(to)
	}), nil
}

func (m *MockTradeStore) List(ctx context.Context, userID string, filter models.TradeFilter) ([]models.Trade, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.lastFilter = filter
	return m.byUser(userID, func(t *models.Trade) bool {
		return filter.Symbol == "" || t.Symbol == filter.Symbol
	}), nil
}

func (m *MockTradeStore) Update(ctx context.Context, trade *models.Trade) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.trades[trade.ID]; ok && t.UserID == trade.UserID {
		c := *trade
		m.trades[trade.ID] = &c
		return nil
	}
	return repository.ErrTradeNotFound
}

func (m *MockTradeStore) Delete(ctx context.Context, userID string, id int64) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.trades[id]; ok && t.UserID == userID {
		delete(m.trades, id)
		return nil
	}
	return repository.ErrTradeNotFound
}

// Count число сделок пользователя, для проверок в тестах
func (m *MockTradeStore) Count(ctx context.Context, userID string) (int, error) {
	if m.getErr != nil {
		return 0, m.getErr
	}
	return len(m.byUser(userID, nil)), nil
}

// ============ Mock LayoutStore ============

type MockLayoutStore struct {
	layouts map[string]*models.Layout
	loadErr error
	saveErr error
	saves   int
}

func NewMockLayoutStore() *MockLayoutStore {
	return &MockLayoutStore{layouts: make(map[string]*models.Layout)}
}

func (m *MockLayoutStore) Load(ctx context.Context, userID string) (*models.Layout, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if l, ok := m.layouts[userID]; ok {
		return l.Clone(), nil
	}
	return nil, repository.ErrLayoutNotFound
}

func (m *MockLayoutStore) Save(ctx context.Context, layout *models.Layout) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.layouts[layout.UserID] = layout.Clone()
	return nil
}

func (m *MockLayoutStore) Delete(ctx context.Context, userID string) error {
	if _, ok := m.layouts[userID]; !ok {
		return repository.ErrLayoutNotFound
	}
	delete(m.layouts, userID)
	return nil
}

// ============ Mock PreferencesStore ============

type MockPreferencesStore struct {
	prefs     map[string]*models.Preferences
	getErr    error
	updateErr error
}

func NewMockPreferencesStore() *MockPreferencesStore {
	return &MockPreferencesStore{prefs: make(map[string]*models.Preferences)}
}

func (m *MockPreferencesStore) Get(ctx context.Context, userID string) (*models.Preferences, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.prefs[userID]
	if !ok {
		p = models.DefaultPreferences(userID)
		m.prefs[userID] = p
	}
	c := *p
	return &c, nil
}

func (m *MockPreferencesStore) Update(ctx context.Context, prefs *models.Preferences) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.prefs[prefs.UserID]; !ok {
		return repository.ErrPreferencesNotFound
	}
	c := *prefs
	m.prefs[prefs.UserID] = &c
	return nil
}

func (m *MockPreferencesStore) ResetToDefaults(ctx context.Context, userID string) (*models.Preferences, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	p := models.DefaultPreferences(userID)
	m.prefs[userID] = p
	c := *p
	return &c, nil
}

// ============ Mock OptionsProvider ============

type MockOptionsProvider struct {
	opts journal.Options
	err  error
}

func (m *MockOptionsProvider) Options(ctx context.Context, userID string) (journal.Options, error) {
	return m.opts, m.err
}

// ============ Mock Broadcaster ============

type broadcastRecord struct {
	userID string
	kind   string
	action string
}

type MockBroadcaster struct {
	mu        sync.Mutex
	records   []broadcastRecord
	snapshots []*models.Snapshot
	layouts   []*models.Layout
}

func NewMockBroadcaster() *MockBroadcaster {
	return &MockBroadcaster{}
}

func (m *MockBroadcaster) BroadcastSnapshot(userID string, snap *models.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, broadcastRecord{userID: userID, kind: "snapshotUpdate"})
	m.snapshots = append(m.snapshots, snap)
}

func (m *MockBroadcaster) BroadcastLayout(userID string, layout *models.Layout) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, broadcastRecord{userID: userID, kind: "layoutUpdate"})
	m.layouts = append(m.layouts, layout)
}

func (m *MockBroadcaster) BroadcastTrade(userID string, action string, trade *models.Trade) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, broadcastRecord{userID: userID, kind: "tradeUpdate", action: action})
}

func (m *MockBroadcaster) kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]string, len(m.records))
	for i, r := range m.records {
		kinds[i] = r.kind
	}
	return kinds
}

var _ TradeStore = (*MockTradeStore)(nil)
var _ LayoutStore = (*MockLayoutStore)(nil)
var _ PreferencesStore = (*MockPreferencesStore)(nil)
var _ Broadcaster = (*MockBroadcaster)(nil)
