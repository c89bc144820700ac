package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"tradejournal/internal/journal"
	"tradejournal/internal/metrics"
	"tradejournal/internal/models"
	"tradejournal/internal/repository"
	"tradejournal/pkg/utils"
)

// Ошибки сервиса журнала
var (
	ErrTradeNotFound          = errors.New("trade not found")
	ErrTradeSourceUnavailable = errors.New("trade source unavailable")
	ErrInvalidRange           = errors.New("range end is before range start")
	ErrEmptyImport            = errors.New("import contains no records")
	ErrImportTooLarge         = errors.New("import exceeds maximum batch size")
)

// MaxImportBatch максимальное количество записей в одном импорте
const MaxImportBatch = 5000

// Действия для tradeUpdate
const (
	TradeActionCreated  = "created"
	TradeActionUpdated  = "updated"
	TradeActionDeleted  = "deleted"
	TradeActionImported = "imported"
)

// SnapshotQuery параметры построения снимка статистики
type SnapshotQuery struct {
	RefDate utils.DateValue   // опорная дата для today/week/month, по умолчанию сейчас
	From    utils.DateValue   // границы набора сделок (включительно), календарные дни
	To      utils.DateValue   // разрешаются в часовом поясе пользователя
	Range   *models.DateRange // готовый диапазон, приоритетнее From/To
	Period  utils.PeriodType  // day | week | month | all относительно RefDate, пусто = из настроек
	Metric  journal.Metric    // метрика спарклайна, пусто = cumulative_pnl
	Periods int               // точек спарклайна, 0 = из настроек
}

// SparklineResult точки спарклайна с параметрами построения
type SparklineResult struct {
	Metric  journal.Metric `json:"metric"`
	Periods int            `json:"periods"`
	Points  []float64      `json:"points"`
}

// ImportResult итог импорта набора записей
type ImportResult struct {
	Imported int                      `json:"imported"`
	Issues   []models.DataIssue       `json:"issues"`
	Rejected []journal.RejectedRecord `json:"rejected"`
}

// JournalService предоставляет бизнес-логику журнала сделок.
//
// Функции:
// - CRUD сделок со строгой валидацией ручного ввода
// - ImportTrades: импорт выгрузки в нестрогом режиме с отчетом о проблемах данных
// - GetSnapshot / GetSparkline: агрегированная статистика по запросу
//
// Ошибка хранилища при чтении возвращается как ErrTradeSourceUnavailable и
// не смешивается с пустым журналом.
//
// WebSocket интеграция:
// - После каждой мутации отправляет tradeUpdate и snapshotUpdate владельцу журнала
type JournalService struct {
	trades   TradeStore
	prefs    OptionsProvider
	defaults journal.Options
	wsHub    Broadcaster
	logger   *utils.Logger
	now      func() time.Time
}

// NewJournalService создает новый экземпляр JournalService.
// prefs может быть nil: тогда используются параметры по умолчанию.
func NewJournalService(trades TradeStore, prefs OptionsProvider) *JournalService {
	return &JournalService{
		trades:   trades,
		prefs:    prefs,
		defaults: journal.DefaultOptions(),
		logger:   utils.L().WithComponent("journal"),
		now:      time.Now,
	}
}

// SetDefaultOptions задает параметры агрегации для пользователей с
// недоступными или поврежденными настройками
func (s *JournalService) SetDefaultOptions(opts journal.Options) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	s.defaults = opts
}

// SetWebSocketHub устанавливает WebSocket hub для broadcast обновлений.
//
// Вызывается после инициализации Hub в main.go:
//
//	journalService := service.NewJournalService(tradeRepo, prefsService)
//	journalService.SetWebSocketHub(wsHub)
func (s *JournalService) SetWebSocketHub(hub Broadcaster) {
	s.wsHub = hub
}

// options возвращает параметры агрегации пользователя
func (s *JournalService) options(ctx context.Context, userID string) journal.Options {
	if s.prefs == nil {
		return s.defaults
	}
	opts, err := s.prefs.Options(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to load preferences, using defaults", utils.UserID(userID), utils.Err(err))
		return s.defaults
	}
	return opts
}

// sourceErr оборачивает ошибку хранилища в ErrTradeSourceUnavailable.
// Значения, отвергнутые базой, возвращаются как ошибка валидации.
func (s *JournalService) sourceErr(op string, err error) error {
	if errors.Is(err, repository.ErrTradeNotFound) {
		return ErrTradeNotFound
	}
	if repository.IsInvalidData(err) {
		s.logger.Warn("trade store rejected values", utils.String("operation", op), utils.Err(err))
		var errs utils.ValidationErrors
		errs.Add("trade", "rejected by storage: "+err.Error())
		return errs
	}
	metrics.RecordSourceFailure(op)
	s.logger.Error("trade store failure", utils.String("operation", op), utils.Err(err))
	return fmt.Errorf("%w: %w", ErrTradeSourceUnavailable, err)
}

// ============================================================
// CRUD
// ============================================================

// CreateTrade создает сделку из ручного ввода.
//
// Запись проходит строгую нормализацию: любая проблема данных, кроме
// рассчитанного по ценам P&L, возвращается как utils.ValidationErrors.
func (s *JournalService) CreateTrade(ctx context.Context, userID string, raw journal.RawTrade) (*models.Trade, error) {
	opts := s.options(ctx, userID)
	n := journal.Normalizer{Location: opts.Location, UserID: userID}

	trade, err := n.NormalizeStrict(raw)
	if err != nil {
		return nil, err
	}
	trade.ID = 0

	if err := s.trades.Create(ctx, &trade); err != nil {
		return nil, s.sourceErr("create", err)
	}

	metrics.RecordTradeMutation("create", 1)
	s.logger.WithUser(userID).WithTradeID(trade.ID).Info("trade created",
		utils.Symbol(trade.Symbol),
		utils.Direction(string(trade.Direction)),
	)

	s.notify(ctx, userID, TradeActionCreated, &trade)
	return &trade, nil
}

// UpdateTrade применяет частичное обновление к сделке.
//
// Переданные поля накладываются на текущую запись, результат проходит ту же
// строгую валидацию, что и при создании. Если изменены цены или размер без
// явного profit_loss, P&L пересчитывается.
func (s *JournalService) UpdateTrade(ctx context.Context, userID string, id int64, patch journal.RawTrade) (*models.Trade, error) {
	current, err := s.trades.GetByID(ctx, userID, id)
	if err != nil {
		return nil, s.sourceErr("get", err)
	}

	opts := s.options(ctx, userID)
	n := journal.Normalizer{Location: opts.Location, UserID: userID}

	updated, err := n.NormalizeStrict(journal.Merge(journal.ToRaw(*current), patch))
	if err != nil {
		return nil, err
	}
	updated.ID = current.ID
	updated.CreatedAt = current.CreatedAt

	if err := s.trades.Update(ctx, &updated); err != nil {
		return nil, s.sourceErr("update", err)
	}

	metrics.RecordTradeMutation("update", 1)
	s.logger.Info("trade updated", utils.UserID(userID), utils.TradeID(id))

	s.notify(ctx, userID, TradeActionUpdated, &updated)
	return &updated, nil
}

// DeleteTrade удаляет сделку пользователя
func (s *JournalService) DeleteTrade(ctx context.Context, userID string, id int64) error {
	if err := s.trades.Delete(ctx, userID, id); err != nil {
		return s.sourceErr("delete", err)
	}

	metrics.RecordTradeMutation("delete", 1)
	s.logger.Info("trade deleted", utils.UserID(userID), utils.TradeID(id))

	s.notify(ctx, userID, TradeActionDeleted, &models.Trade{ID: id, UserID: userID})
	return nil
}

// GetTrade возвращает сделку пользователя
func (s *JournalService) GetTrade(ctx context.Context, userID string, id int64) (*models.Trade, error) {
	trade, err := s.trades.GetByID(ctx, userID, id)
	if err != nil {
		return nil, s.sourceErr("get", err)
	}
	return trade, nil
}

// ListTrades возвращает страницу сделок по фильтру
func (s *JournalService) ListTrades(ctx context.Context, userID string, filter models.TradeFilter) ([]models.Trade, error) {
	if !filter.FromDate.IsZero() || !filter.ToDate.IsZero() {
		loc := s.options(ctx, userID).Location
		if !filter.FromDate.IsZero() {
			from := filter.FromDate.Start(loc)
			filter.From = &from
		}
		if !filter.ToDate.IsZero() {
			to := filter.ToDate.End(loc)
			filter.To = &to
		}
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, ErrInvalidRange
	}

	trades, err := s.trades.List(ctx, userID, filter)
	if err != nil {
		return nil, s.sourceErr("list", err)
	}
	return trades, nil
}

// ============================================================
// Импорт
// ============================================================

// ImportTrades импортирует выгрузку сделок в нестрогом режиме.
//
// Записи с фатальными ошибками (нет символа, направления или даты входа)
// попадают в Rejected, остальные сохраняются одной транзакцией. Проблемы
// качества данных возвращаются в Issues и не прерывают импорт.
func (s *JournalService) ImportTrades(ctx context.Context, userID string, raws []journal.RawTrade) (*ImportResult, error) {
	if len(raws) == 0 {
		return nil, ErrEmptyImport
	}
	if len(raws) > MaxImportBatch {
		return nil, fmt.Errorf("%w: %d > %d", ErrImportTooLarge, len(raws), MaxImportBatch)
	}

	opts := s.options(ctx, userID)
	n := journal.Normalizer{Location: opts.Location, UserID: userID}
	batch := n.NormalizeBatch(raws)

	for i := range batch.Trades {
		batch.Trades[i].ID = 0
	}
	for i := range batch.Issues {
		batch.Issues[i].TradeID = 0
	}

	if err := s.trades.CreateBatch(ctx, batch.Trades); err != nil {
		return nil, s.sourceErr("import", err)
	}

	metrics.RecordTradeMutation("import", len(batch.Trades))
	metrics.RecordImportRejected(len(batch.Rejected))
	metrics.RecordDataIssues(batch.Issues)

	log := s.logger.WithUser(userID)
	log.Info("trades imported",
		utils.Int("imported", len(batch.Trades)),
		utils.Int("rejected", len(batch.Rejected)),
		utils.Int("issues", len(batch.Issues)),
	)
	for _, r := range batch.Rejected {
		log.Warn("import record rejected", utils.Int("index", r.Index), utils.String("reason", r.Reason))
	}

	if len(batch.Trades) > 0 {
		s.notify(ctx, userID, TradeActionImported, nil)
	}

	return &ImportResult{
		Imported: len(batch.Trades),
		Issues:   batch.Issues,
		Rejected: batch.Rejected,
	}, nil
}

// ============================================================
// Статистика
// ============================================================

// load возвращает сделки пользователя с учетом диапазона и параметры агрегации
func (s *JournalService) load(ctx context.Context, userID string, q SnapshotQuery) ([]models.Trade, journal.Options, error) {
	opts := s.options(ctx, userID)
	if q.Range == nil && (!q.From.IsZero() || !q.To.IsZero()) {
		if q.From.IsZero() || q.To.IsZero() {
			return nil, opts, ErrInvalidRange
		}
		q.Range = &models.DateRange{Start: q.From.Start(opts.Location), End: q.To.End(opts.Location)}
	}
	if q.Range != nil && q.Range.End.Before(q.Range.Start) {
		return nil, opts, ErrInvalidRange
	}
	if q.Periods > 0 {
		if err := utils.ValidateSparklinePeriods(q.Periods); err != nil {
			return nil, opts, err
		}
		opts.SparklinePeriods = q.Periods
	}
	if q.Metric != "" {
		opts.SparklineMetric = q.Metric
	}
	if q.Range == nil {
		q.Range = s.periodRange(q, opts)
	}
	opts.Range = q.Range

	var (
		trades []models.Trade
		err    error
	)
	if q.Range != nil {
		trades, err = s.trades.GetInRange(ctx, userID, q.Range.Start, q.Range.End)
	} else {
		trades, err = s.trades.GetAllByUser(ctx, userID)
	}
	if err != nil {
		return nil, opts, s.sourceErr("load", err)
	}
	return trades, opts, nil
}

// periodRange переводит период (из запроса или настроек) в диапазон дат.
// Для all возвращает nil.
func (s *JournalService) periodRange(q SnapshotQuery, opts journal.Options) *models.DateRange {
	period := q.Period
	if period == "" {
		period = opts.Period
	}

	tr, ok := utils.PeriodRangeIn(period, s.reference(q, opts), opts.Location, opts.WeekStart)
	if !ok {
		return nil
	}
	return &models.DateRange{Start: tr.Start, End: tr.End}
}

// reference опорный момент запроса; календарный день берется в поясе пользователя
func (s *JournalService) reference(q SnapshotQuery, opts journal.Options) time.Time {
	if q.RefDate.IsZero() {
		return s.now()
	}
	return q.RefDate.Start(opts.Location)
}

// GetSnapshot строит снимок статистики пользователя.
//
// Пустой журнал дает нейтральный снимок с нулями, а недоступное хранилище
// ErrTradeSourceUnavailable. Проблемы данных логируются и попадают в
// snapshot.Issues.
func (s *JournalService) GetSnapshot(ctx context.Context, userID string, q SnapshotQuery) (*models.Snapshot, error) {
	trades, opts, err := s.load(ctx, userID, q)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	snap := journal.Aggregate(trades, s.reference(q, opts), opts)
	latency := float64(time.Since(start).Microseconds()) / 1000

	metrics.RecordAggregation("snapshot", latency, len(trades))
	metrics.RecordDataIssues(snap.Issues)

	if len(snap.Issues) > 0 {
		s.logger.Warn("data quality issues in journal",
			utils.UserID(userID),
			utils.Int("issues", len(snap.Issues)),
			utils.IssueKind(string(snap.Issues[0].Kind)),
		)
	}
	s.logger.Debug("snapshot computed",
		utils.UserID(userID),
		utils.TradeCount(len(trades)),
		utils.PNL(snap.TotalPnl),
		utils.Latency(latency),
	)
	return snap, nil
}

// GetSparkline возвращает точки спарклайна без построения полного снимка
func (s *JournalService) GetSparkline(ctx context.Context, userID string, q SnapshotQuery) (*SparklineResult, error) {
	trades, opts, err := s.load(ctx, userID, q)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	points := slices.Collect(journal.Sparkline(trades, opts.SparklinePeriods, opts.SparklineMetric))
	metrics.RecordAggregation("sparkline", float64(time.Since(start).Microseconds())/1000, len(trades))

	if points == nil {
		points = []float64{}
	}
	return &SparklineResult{
		Metric:  opts.SparklineMetric,
		Periods: opts.SparklinePeriods,
		Points:  points,
	}, nil
}

// ============================================================
// WebSocket
// ============================================================

// notify отправляет tradeUpdate и свежий snapshotUpdate владельцу журнала
func (s *JournalService) notify(ctx context.Context, userID, action string, trade *models.Trade) {
	if s.wsHub == nil {
		return
	}

	s.wsHub.BroadcastTrade(userID, action, trade)

	snap, err := s.GetSnapshot(ctx, userID, SnapshotQuery{})
	if err != nil {
		s.logger.Warn("failed to refresh snapshot for broadcast", utils.UserID(userID), utils.Err(err))
		return
	}
	s.wsHub.BroadcastSnapshot(userID, snap)
}
