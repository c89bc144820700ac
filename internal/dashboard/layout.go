package dashboard

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"tradejournal/internal/models"
)

// layout.go - управление раскладкой дашборда
//
// Раскладка хранит активный набор виджетов и независимую сетку для каждого
// breakpoint. Все функции возвращают новую раскладку и не меняют аргумент.
//
// Размещение нового виджета - first-fit: строки сканируются сверху вниз,
// колонки слева направо, выбирается первая позиция без пересечений.

var (
	ErrUnknownWidget     = errors.New("unknown widget")
	ErrUnknownBreakpoint = errors.New("unknown breakpoint")
	ErrInvalidLayout     = errors.New("invalid layout")
)

// Breakpoints поддерживаемые breakpoint от широкого к узкому
var Breakpoints = []models.Breakpoint{
	models.BreakpointLG,
	models.BreakpointMD,
	models.BreakpointSM,
	models.BreakpointXS,
}

// BreakpointColumns количество колонок сетки
var BreakpointColumns = map[models.Breakpoint]int{
	models.BreakpointLG: 12,
	models.BreakpointMD: 10,
	models.BreakpointSM: 6,
	models.BreakpointXS: 4,
}

// NewLayout создает пустую раскладку со всеми breakpoint
func NewLayout(userID string) *models.Layout {
	l := &models.Layout{
		UserID:      userID,
		Widgets:     []string{},
		Breakpoints: make(map[models.Breakpoint][]models.LayoutItem, len(Breakpoints)),
	}
	for _, bp := range Breakpoints {
		l.Breakpoints[bp] = []models.LayoutItem{}
	}
	return l
}

// DefaultLayout раскладка нового пользователя с DefaultWidgetSet
func DefaultLayout(userID string, cat *Catalog) *models.Layout {
	l := NewLayout(userID)
	for _, id := range DefaultWidgetSet {
		if def, ok := cat.Get(id); ok {
			addInPlace(l, def)
		}
	}
	l.UpdatedAt = time.Now()
	return l
}

// AddWidget добавляет виджет в активный набор и размещает его на каждом breakpoint.
// Если виджет уже активен, возвращается неизмененная копия.
func AddWidget(l *models.Layout, widgetID string, cat *Catalog) (*models.Layout, error) {
	def, ok := cat.Get(widgetID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWidget, widgetID)
	}

	next := l.Clone()
	if next.HasWidget(widgetID) {
		return next, nil
	}
	addInPlace(next, def)
	next.UpdatedAt = time.Now()
	return next, nil
}

func addInPlace(l *models.Layout, def models.WidgetDefinition) {
	l.Widgets = append(l.Widgets, def.ID)
	if l.Breakpoints == nil {
		l.Breakpoints = make(map[models.Breakpoint][]models.LayoutItem, len(Breakpoints))
	}
	for _, bp := range Breakpoints {
		items := l.Breakpoints[bp]
		l.Breakpoints[bp] = append(items, Place(items, def.ID, def.DefaultW, def.DefaultH, BreakpointColumns[bp]))
	}
}

// Place находит первую свободную позицию для виджета w×h на сетке из cols колонок.
// Ширина обрезается до cols.
func Place(items []models.LayoutItem, widgetID string, w, h, cols int) models.LayoutItem {
	w = min(max(w, 1), cols)
	h = max(h, 1)

	for y := 0; ; y++ {
		for x := 0; x+w <= cols; x++ {
			cand := models.LayoutItem{WidgetID: widgetID, X: x, Y: y, W: w, H: h}
			if !overlapsAny(cand, items) {
				return cand
			}
		}
	}
}

func overlapsAny(cand models.LayoutItem, items []models.LayoutItem) bool {
	for _, it := range items {
		if cand.Overlaps(it) {
			return true
		}
	}
	return false
}

// RemoveWidget удаляет виджет из активного набора и со всех breakpoint.
// Удаление отсутствующего виджета не является ошибкой.
func RemoveWidget(l *models.Layout, widgetID string) *models.Layout {
	next := l.Clone()
	if !next.HasWidget(widgetID) {
		return next
	}

	next.Widgets = slices.DeleteFunc(next.Widgets, func(id string) bool { return id == widgetID })
	for bp, items := range next.Breakpoints {
		next.Breakpoints[bp] = slices.DeleteFunc(items, func(it models.LayoutItem) bool {
			return it.WidgetID == widgetID
		})
	}
	next.UpdatedAt = time.Now()
	return next
}

// UpdateLayout заменяет сетки переданных breakpoint целиком.
//
// Проверяется только структура: известные breakpoint, положительные размеры,
// неотрицательные координаты и ссылки на активные виджеты. Пересечения не
// проверяются, раскладку задает сам пользователь перетаскиванием.
// Breakpoint, которых нет в запросе, сохраняются без изменений.
func UpdateLayout(l *models.Layout, breakpoints map[models.Breakpoint][]models.LayoutItem) (*models.Layout, error) {
	for bp, items := range breakpoints {
		if _, ok := BreakpointColumns[bp]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownBreakpoint, bp)
		}
		for i, it := range items {
			if it.W <= 0 || it.H <= 0 {
				return nil, fmt.Errorf("%w: %s[%d] has non-positive size %dx%d", ErrInvalidLayout, bp, i, it.W, it.H)
			}
			if it.X < 0 || it.Y < 0 {
				return nil, fmt.Errorf("%w: %s[%d] has negative position", ErrInvalidLayout, bp, i)
			}
			if !l.HasWidget(it.WidgetID) {
				return nil, fmt.Errorf("%w: %s[%d] references %q", ErrUnknownWidget, bp, i, it.WidgetID)
			}
		}
	}

	next := l.Clone()
	for bp, items := range breakpoints {
		next.Breakpoints[bp] = append([]models.LayoutItem{}, items...)
	}
	next.UpdatedAt = time.Now()
	return next, nil
}

// Repair приводит загруженную раскладку в согласованное состояние:
// добавляет отсутствующие breakpoint, удаляет позиции неактивных виджетов
// и размещает активные виджеты, у которых нет позиции.
func Repair(l *models.Layout, cat *Catalog) *models.Layout {
	next := l.Clone()
	if next.Widgets == nil {
		next.Widgets = []string{}
	}

	for _, bp := range Breakpoints {
		items := slices.DeleteFunc(next.Breakpoints[bp], func(it models.LayoutItem) bool {
			return !next.HasWidget(it.WidgetID)
		})
		if items == nil {
			items = []models.LayoutItem{}
		}

		for _, id := range next.Widgets {
			if slices.ContainsFunc(items, func(it models.LayoutItem) bool { return it.WidgetID == id }) {
				continue
			}
			w, h := 1, 1
			if def, ok := cat.Get(id); ok {
				w, h = def.DefaultW, def.DefaultH
			}
			items = append(items, Place(items, id, w, h, BreakpointColumns[bp]))
		}
		next.Breakpoints[bp] = items
	}

	// неизвестные breakpoint не сохраняются
	for bp := range next.Breakpoints {
		if _, ok := BreakpointColumns[bp]; !ok {
			delete(next.Breakpoints, bp)
		}
	}
	return next
}

// HasOverlap проверяет, пересекаются ли какие-либо два элемента сетки
func HasOverlap(items []models.LayoutItem) bool {
	for i := range items {
		for j := i + 1; j < len(items); j++ {
			if items[i].Overlaps(items[j]) {
				return true
			}
		}
	}
	return false
}
