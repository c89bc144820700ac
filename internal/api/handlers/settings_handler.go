package handlers

import (
	"net/http"

	"tradejournal/internal/service"
)

// SettingsHandler отвечает за пользовательские настройки агрегации
//
// Функции:
// - Получение настроек (GET /api/v1/settings)
// - Обновление настроек (PATCH /api/v1/settings)
// - Сброс к значениям по умолчанию (POST /api/v1/settings/reset)
//
// Настройки влияют на статистику: начало недели, timezone для границ
// дней, количество точек спарклайна и период по умолчанию.
type SettingsHandler struct {
	preferencesService service.PreferencesServiceInterface
}

// NewSettingsHandler создает новый SettingsHandler
func NewSettingsHandler(preferencesService service.PreferencesServiceInterface) *SettingsHandler {
	return &SettingsHandler{preferencesService: preferencesService}
}

// GetSettings возвращает текущие настройки
// GET /api/v1/settings
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	prefs, err := h.preferencesService.GetPreferences(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, prefs)
}

// UpdateSettings обновляет переданные поля настроек
// PATCH /api/v1/settings
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req service.UpdatePreferencesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	prefs, err := h.preferencesService.UpdatePreferences(r.Context(), userID, &req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, prefs)
}

// ResetSettings сбрасывает настройки к значениям по умолчанию
// POST /api/v1/settings/reset
func (h *SettingsHandler) ResetSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	prefs, err := h.preferencesService.ResetToDefaults(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Settings reset to defaults", Data: prefs})
}
