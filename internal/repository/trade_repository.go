package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradejournal/internal/models"
)

// Ошибки репозитория сделок
var (
	ErrTradeNotFound = errors.New("trade not found")
)

const tradeColumns = `id, user_id, symbol, direction, status, entry_price, exit_price, position_size, stop_loss, take_profit,
		entry_time, exit_time, outcome, profit_loss, setup_type, notes, tags, created_at, updated_at`

// MaxListLimit ограничение размера страницы List
const MaxListLimit = 500

// TradeRepository - работа с таблицей trades
type TradeRepository struct {
	db *sql.DB
}

// NewTradeRepository создает новый экземпляр репозитория
func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// rowScanner общий интерфейс *sql.Row и *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(s rowScanner) (*models.Trade, error) {
	trade := &models.Trade{}
	var exitTime sql.NullTime
	var tagsJSON []byte

	err := s.Scan(
		&trade.ID,
		&trade.UserID,
		&trade.Symbol,
		&trade.Direction,
		&trade.Status,
		&trade.EntryPrice,
		&trade.ExitPrice,
		&trade.PositionSize,
		&trade.StopLoss,
		&trade.TakeProfit,
		&trade.EntryTime,
		&exitTime,
		&trade.Outcome,
		&trade.ProfitLoss,
		&trade.SetupType,
		&trade.Notes,
		&tagsJSON,
		&trade.CreatedAt,
		&trade.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if exitTime.Valid {
		t := exitTime.Time
		trade.ExitTime = &t
	}

	trade.Tags = []string{}
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &trade.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags of trade %d: %w", trade.ID, err)
		}
	}
	return trade, nil
}

func encodeTags(tags []string) ([]byte, error) {
	if tags == nil {
		tags = []string{}
	}
	return json.Marshal(tags)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

const insertTradeQuery = `
		INSERT INTO trades (user_id, symbol, direction, status, entry_price, exit_price, position_size, stop_loss, take_profit,
			entry_time, exit_time, outcome, profit_loss, setup_type, notes, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id`

func insertArgs(trade *models.Trade, tagsJSON []byte) []interface{} {
	return []interface{}{
		trade.UserID,
		trade.Symbol,
		trade.Direction,
		trade.Status,
		trade.EntryPrice,
		trade.ExitPrice,
		trade.PositionSize,
		trade.StopLoss,
		trade.TakeProfit,
		trade.EntryTime.UTC(),
		nullTime(trade.ExitTime),
		trade.Outcome,
		trade.ProfitLoss,
		trade.SetupType,
		trade.Notes,
		tagsJSON,
		trade.CreatedAt,
		trade.UpdatedAt,
	}
}

// Create сохраняет новую сделку и проставляет ID
func (r *TradeRepository) Create(ctx context.Context, trade *models.Trade) error {
	tagsJSON, err := encodeTags(trade.Tags)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	trade.CreatedAt = now
	trade.UpdatedAt = now

	return r.db.QueryRowContext(ctx, insertTradeQuery, insertArgs(trade, tagsJSON)...).Scan(&trade.ID)
}

// CreateBatch сохраняет набор сделок в одной транзакции.
// При ошибке ни одна сделка не сохраняется.
func (r *TradeRepository) CreateBatch(ctx context.Context, trades []models.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertTradeQuery)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range trades {
		trade := &trades[i]
		trade.CreatedAt = now
		trade.UpdatedAt = now

		tagsJSON, err := encodeTags(trade.Tags)
		if err != nil {
			return err
		}
		if err := stmt.QueryRowContext(ctx, insertArgs(trade, tagsJSON)...).Scan(&trade.ID); err != nil {
			return fmt.Errorf("failed to insert trade %d of batch: %w", i, err)
		}
	}

	return tx.Commit()
}

// GetByID возвращает сделку пользователя по ID
func (r *TradeRepository) GetByID(ctx context.Context, userID string, id int64) (*models.Trade, error) {
	query := `SELECT ` + tradeColumns + `
		FROM trades
		WHERE id = $1 AND user_id = $2`

	trade, err := scanTrade(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTradeNotFound
		}
		return nil, err
	}
	return trade, nil
}

// GetAllByUser возвращает все сделки пользователя в порядке entry_time
func (r *TradeRepository) GetAllByUser(ctx context.Context, userID string) ([]models.Trade, error) {
	query := `SELECT ` + tradeColumns + `
		FROM trades
		WHERE user_id = $1
		ORDER BY entry_time ASC, id ASC`

	return r.queryTrades(ctx, query, userID)
}

// GetInRange возвращает сделки с entry_time в [from, to]
func (r *TradeRepository) GetInRange(ctx context.Context, userID string, from, to time.Time) ([]models.Trade, error) {
	query := `SELECT ` + tradeColumns + `
		FROM trades
		WHERE user_id = $1 AND entry_time >= $2 AND entry_time <= $3
		ORDER BY entry_time ASC, id ASC`

	return r.queryTrades(ctx, query, userID, from.UTC(), to.UTC())
}

// List возвращает страницу сделок по фильтру, новые первыми
func (r *TradeRepository) List(ctx context.Context, userID string, filter models.TradeFilter) ([]models.Trade, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + tradeColumns + `
		FROM trades
		WHERE user_id = $1`)
	args := []interface{}{userID}

	where := func(cond string, arg interface{}) {
		args = append(args, arg)
		fmt.Fprintf(&sb, " AND %s $%d", cond, len(args))
	}
	if filter.Symbol != "" {
		where("symbol =", filter.Symbol)
	}
	if filter.SetupType != "" {
		where("setup_type =", filter.SetupType)
	}
	if filter.Status != "" {
		where("status =", filter.Status)
	}
	if filter.From != nil {
		where("entry_time >=", filter.From.UTC())
	}
	if filter.To != nil {
		where("entry_time <=", filter.To.UTC())
	}

	sb.WriteString(" ORDER BY entry_time DESC, id DESC")

	limit := filter.Limit
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}
	args = append(args, limit)
	fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}

	return r.queryTrades(ctx, sb.String(), args...)
}

func (r *TradeRepository) queryTrades(ctx context.Context, query string, args ...interface{}) ([]models.Trade, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trades := []models.Trade{}
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *trade)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return trades, nil
}

// Update сохраняет изменения сделки
func (r *TradeRepository) Update(ctx context.Context, trade *models.Trade) error {
	tagsJSON, err := encodeTags(trade.Tags)
	if err != nil {
		return err
	}

	query := `
		UPDATE trades
		SET symbol = $1, direction = $2, status = $3, entry_price = $4, exit_price = $5, position_size = $6,
			stop_loss = $7, take_profit = $8, entry_time = $9, exit_time = $10, outcome = $11, profit_loss = $12,
			setup_type = $13, notes = $14, tags = $15, updated_at = $16
		WHERE id = $17 AND user_id = $18`

	trade.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, query,
		trade.Symbol,
		trade.Direction,
		trade.Status,
		trade.EntryPrice,
		trade.ExitPrice,
		trade.PositionSize,
		trade.StopLoss,
		trade.TakeProfit,
		trade.EntryTime.UTC(),
		nullTime(trade.ExitTime),
		trade.Outcome,
		trade.ProfitLoss,
		trade.SetupType,
		trade.Notes,
		tagsJSON,
		trade.UpdatedAt,
		trade.ID,
		trade.UserID,
	)
	if err != nil {
		return err
	}

	return expectAffected(result, ErrTradeNotFound)
}

// Delete удаляет сделку пользователя
func (r *TradeRepository) Delete(ctx context.Context, userID string, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM trades WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}

	return expectAffected(result, ErrTradeNotFound)
}

// DeleteAllByUser удаляет все сделки пользователя и возвращает их количество
func (r *TradeRepository) DeleteAllByUser(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM trades WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Count возвращает количество сделок пользователя
func (r *TradeRepository) Count(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades WHERE user_id = $1`, userID).Scan(&count)
	return count, err
}

// expectAffected возвращает notFound, если запрос не затронул ни одной строки
func expectAffected(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return notFound
	}

	return nil
}
