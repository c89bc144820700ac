package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tradejournal/internal/models"
)

// Ошибки репозитория раскладок
var (
	ErrLayoutNotFound = errors.New("layout not found")
)

// LayoutRepository - работа с таблицей layouts.
// Раскладка хранится одним JSON документом на пользователя.
type LayoutRepository struct {
	db *sql.DB
}

// NewLayoutRepository создает новый экземпляр репозитория
func NewLayoutRepository(db *sql.DB) *LayoutRepository {
	return &LayoutRepository{db: db}
}

// Load возвращает сохраненную раскладку или ErrLayoutNotFound
func (r *LayoutRepository) Load(ctx context.Context, userID string) (*models.Layout, error) {
	query := `
		SELECT user_id, widgets, breakpoints, updated_at
		FROM layouts
		WHERE user_id = $1`

	layout := &models.Layout{}
	var widgetsJSON, breakpointsJSON []byte
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&layout.UserID,
		&widgetsJSON,
		&breakpointsJSON,
		&layout.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLayoutNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(widgetsJSON, &layout.Widgets); err != nil {
		return nil, fmt.Errorf("failed to decode widgets: %w", err)
	}
	if err := json.Unmarshal(breakpointsJSON, &layout.Breakpoints); err != nil {
		return nil, fmt.Errorf("failed to decode breakpoints: %w", err)
	}
	if layout.Widgets == nil {
		layout.Widgets = []string{}
	}
	if layout.Breakpoints == nil {
		layout.Breakpoints = map[models.Breakpoint][]models.LayoutItem{}
	}

	return layout, nil
}

// Save сохраняет раскладку (insert или update)
func (r *LayoutRepository) Save(ctx context.Context, layout *models.Layout) error {
	widgets := layout.Widgets
	if widgets == nil {
		widgets = []string{}
	}
	widgetsJSON, err := json.Marshal(widgets)
	if err != nil {
		return err
	}
	breakpoints := layout.Breakpoints
	if breakpoints == nil {
		breakpoints = map[models.Breakpoint][]models.LayoutItem{}
	}
	breakpointsJSON, err := json.Marshal(breakpoints)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO layouts (user_id, widgets, breakpoints, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET widgets = EXCLUDED.widgets, breakpoints = EXCLUDED.breakpoints, updated_at = EXCLUDED.updated_at`

	layout.UpdatedAt = time.Now().UTC()

	_, err = r.db.ExecContext(ctx, query, layout.UserID, widgetsJSON, breakpointsJSON, layout.UpdatedAt)
	return err
}

// Delete удаляет раскладку пользователя
func (r *LayoutRepository) Delete(ctx context.Context, userID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM layouts WHERE user_id = $1`, userID)
	if err != nil {
		return err
	}

	return expectAffected(result, ErrLayoutNotFound)
}
