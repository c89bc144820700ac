package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"tradejournal/internal/models"
	"tradejournal/internal/service"
)

// DashboardHandler отвечает за раскладку дашборда
//
// Функции:
// - Получение раскладки (GET /api/v1/dashboard/layout)
// - Сохранение позиций виджетов (PUT /api/v1/dashboard/layout)
// - Сброс к раскладке по умолчанию (POST /api/v1/dashboard/layout/reset)
// - Каталог виджетов (GET /api/v1/dashboard/widgets)
// - Добавление и удаление виджета (POST /api/v1/dashboard/widgets, DELETE /api/v1/dashboard/widgets/{id})
type DashboardHandler struct {
	layoutService service.LayoutServiceInterface
}

// NewDashboardHandler создает новый DashboardHandler
func NewDashboardHandler(layoutService service.LayoutServiceInterface) *DashboardHandler {
	return &DashboardHandler{layoutService: layoutService}
}

// UpdateLayoutRequest тело PUT /dashboard/layout.
// Отсутствующие breakpoints сохраняются без изменений.
type UpdateLayoutRequest struct {
	Breakpoints map[models.Breakpoint][]models.LayoutItem `json:"breakpoints"`
}

// AddWidgetRequest тело POST /dashboard/widgets
type AddWidgetRequest struct {
	WidgetID string `json:"widget_id"`
}

// WidgetCatalogResponse каталог с отметкой активных виджетов
type WidgetCatalogResponse struct {
	Widgets []WidgetResponse `json:"widgets"`
}

// WidgetResponse виджет каталога
type WidgetResponse struct {
	models.WidgetDefinition
	Active bool `json:"active"`
}

// GetLayout возвращает раскладку пользователя
// GET /api/v1/dashboard/layout
func (h *DashboardHandler) GetLayout(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	layout, err := h.layoutService.GetLayout(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, layout)
}

// UpdateLayout сохраняет позиции виджетов
// PUT /api/v1/dashboard/layout
func (h *DashboardHandler) UpdateLayout(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req UpdateLayoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Breakpoints) == 0 {
		respondWithError(w, http.StatusBadRequest, "invalid_layout", "breakpoints are required", "")
		return
	}

	layout, err := h.layoutService.UpdateLayout(r.Context(), userID, req.Breakpoints)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, layout)
}

// ResetLayout возвращает раскладку по умолчанию
// POST /api/v1/dashboard/layout/reset
func (h *DashboardHandler) ResetLayout(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	layout, err := h.layoutService.ResetLayout(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, layout)
}

// GetWidgets возвращает каталог виджетов
// GET /api/v1/dashboard/widgets
func (h *DashboardHandler) GetWidgets(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	layout, err := h.layoutService.GetLayout(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	catalog := h.layoutService.Catalog()
	resp := WidgetCatalogResponse{Widgets: make([]WidgetResponse, 0, len(catalog))}
	for _, def := range catalog {
		resp.Widgets = append(resp.Widgets, WidgetResponse{
			WidgetDefinition: def,
			Active:           layout.HasWidget(def.ID),
		})
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// AddWidget добавляет виджет на дашборд
// POST /api/v1/dashboard/widgets
func (h *DashboardHandler) AddWidget(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req AddWidgetRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	layout, err := h.layoutService.AddWidget(r.Context(), userID, req.WidgetID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, layout)
}

// RemoveWidget убирает виджет с дашборда
// DELETE /api/v1/dashboard/widgets/{id}
func (h *DashboardHandler) RemoveWidget(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	layout, err := h.layoutService.RemoveWidget(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, layout)
}
