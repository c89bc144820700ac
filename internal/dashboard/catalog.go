package dashboard

import (
	"fmt"

	"tradejournal/internal/models"
	"tradejournal/pkg/utils"
)

// defaultWidgets каталог виджетов дашборда.
// Размеры заданы для сетки lg (12 колонок), на узких breakpoint ширина обрезается.
var defaultWidgets = []models.WidgetDefinition{
	{ID: "pnl-summary", Title: "P&L Summary", DefaultW: 4, DefaultH: 2, MinW: 2, MinH: 2},
	{ID: "win-rate", Title: "Win Rate", DefaultW: 3, DefaultH: 2, MinW: 2, MinH: 2},
	{ID: "profit-factor", Title: "Profit Factor", DefaultW: 3, DefaultH: 2, MinW: 2, MinH: 2},
	{ID: "drawdown", Title: "Max Drawdown", DefaultW: 3, DefaultH: 2, MinW: 2, MinH: 2},
	{ID: "equity-curve", Title: "Equity Curve", DefaultW: 6, DefaultH: 4, MinW: 3, MinH: 3},
	{ID: "recent-trades", Title: "Recent Trades", DefaultW: 6, DefaultH: 4, MinW: 3, MinH: 3},
	{ID: "calendar", Title: "P&L Calendar", DefaultW: 6, DefaultH: 4, MinW: 4, MinH: 3},
	{ID: "setup-breakdown", Title: "Setup Breakdown", DefaultW: 4, DefaultH: 3, MinW: 3, MinH: 2},
}

// DefaultWidgetSet виджеты нового дашборда в порядке размещения
var DefaultWidgetSet = []string{
	"pnl-summary",
	"win-rate",
	"profit-factor",
	"drawdown",
	"equity-curve",
	"recent-trades",
}

// Catalog неизменяемый набор известных виджетов
type Catalog struct {
	defs  []models.WidgetDefinition
	index map[string]int
}

// NewCatalog создает каталог, проверяя id и размеры
func NewCatalog(defs []models.WidgetDefinition) (*Catalog, error) {
	c := &Catalog{
		defs:  make([]models.WidgetDefinition, 0, len(defs)),
		index: make(map[string]int, len(defs)),
	}

	for _, d := range defs {
		if err := utils.ValidateWidgetID(d.ID); err != nil {
			return nil, err
		}
		if d.DefaultW <= 0 || d.DefaultH <= 0 {
			return nil, fmt.Errorf("%w: widget %s has non-positive default size", ErrInvalidLayout, d.ID)
		}
		if _, dup := c.index[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate widget %s", ErrInvalidLayout, d.ID)
		}
		c.index[d.ID] = len(c.defs)
		c.defs = append(c.defs, d)
	}
	return c, nil
}

// DefaultCatalog возвращает встроенный каталог
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(defaultWidgets)
	if err != nil {
		panic(err)
	}
	return c
}

// Get возвращает описание виджета
func (c *Catalog) Get(id string) (models.WidgetDefinition, bool) {
	i, ok := c.index[id]
	if !ok {
		return models.WidgetDefinition{}, false
	}
	return c.defs[i], true
}

// List возвращает копию каталога в порядке объявления
func (c *Catalog) List() []models.WidgetDefinition {
	return append([]models.WidgetDefinition(nil), c.defs...)
}
