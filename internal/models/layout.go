package models

import "time"

// Breakpoint именованный диапазон ширины экрана
type Breakpoint string

const (
	BreakpointLG Breakpoint = "lg"
	BreakpointMD Breakpoint = "md"
	BreakpointSM Breakpoint = "sm"
	BreakpointXS Breakpoint = "xs"
)

// LayoutItem позиция виджета на сетке одного breakpoint
type LayoutItem struct {
	WidgetID string `json:"widget_id"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	W        int    `json:"w"`
	H        int    `json:"h"`
}

// Overlaps проверяет пересечение двух прямоугольников сетки
func (i LayoutItem) Overlaps(o LayoutItem) bool {
	return i.X < o.X+o.W && o.X < i.X+i.W &&
		i.Y < o.Y+o.H && o.Y < i.Y+i.H
}

// Layout представляет сохраненный дашборд пользователя.
//
// Widgets - упорядоченный набор активных виджетов; раскладки по breakpoint
// ссылаются на виджеты только по id.
type Layout struct {
	UserID      string                      `json:"user_id" db:"user_id"`
	Widgets     []string                    `json:"widgets" db:"widgets"`         // JSON в БД
	Breakpoints map[Breakpoint][]LayoutItem `json:"breakpoints" db:"breakpoints"` // JSON в БД
	UpdatedAt   time.Time                   `json:"updated_at" db:"updated_at"`
}

// HasWidget проверяет наличие виджета в активном наборе
func (l *Layout) HasWidget(id string) bool {
	for _, w := range l.Widgets {
		if w == id {
			return true
		}
	}
	return false
}

// Clone возвращает глубокую копию раскладки
func (l *Layout) Clone() *Layout {
	c := &Layout{
		UserID:      l.UserID,
		Widgets:     append([]string(nil), l.Widgets...),
		Breakpoints: make(map[Breakpoint][]LayoutItem, len(l.Breakpoints)),
		UpdatedAt:   l.UpdatedAt,
	}
	for bp, items := range l.Breakpoints {
		c.Breakpoints[bp] = append([]LayoutItem(nil), items...)
	}
	return c
}

// WidgetDefinition описание виджета из каталога
type WidgetDefinition struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	DefaultW int    `json:"default_w"`
	DefaultH int    `json:"default_h"`
	MinW     int    `json:"min_w"`
	MinH     int    `json:"min_h"`
}
