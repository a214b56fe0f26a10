// templates.go — обработчики библиотеки шаблонов артефактов.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/arturkryukov/artstore/artifact-repository/internal/service"
)

// ListTemplates — GET /api/v1/templates.
func (h *APIHandler) ListTemplates(w http.ResponseWriter, _ *http.Request) {
	list := h.artifacts.Templates().List()
	writeJSON(w, http.StatusOK, map[string]any{
		"templates": list,
		"total":     len(list),
	})
}

// GetTemplate — GET /api/v1/templates/{templateID}.
func (h *APIHandler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := h.artifacts.Templates().Get(chi.URLParam(r, "templateID"))
	if err != nil {
		h.handleServiceError(w, err, "Ошибка получения шаблона")
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

// instantiateTemplateRequest — тело POST /api/v1/templates/{templateID}/instantiate.
type instantiateTemplateRequest struct {
	Title          string            `json:"title"`
	Description    string            `json:"description,omitempty"`
	Category       string            `json:"category,omitempty"`
	Tags           []string          `json:"tags,omitempty"`
	StrategicValue float64           `json:"strategic_value,omitempty"`
	Values         map[string]string `json:"values,omitempty"`
	ChangeLog      string            `json:"change_log,omitempty"`
}

// InstantiateTemplate — POST /api/v1/templates/{templateID}/instantiate.
// Создаёт артефакт из шаблона: скелет заполняется значениями values.
func (h *APIHandler) InstantiateTemplate(w http.ResponseWriter, r *http.Request) {
	var req instantiateTemplateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	a, v, err := h.artifacts.CreateFromTemplate(r.Context(), chi.URLParam(r, "templateID"), req.Values,
		service.CreateParams{
			Title:          req.Title,
			Description:    req.Description,
			Category:       req.Category,
			Tags:           req.Tags,
			StrategicValue: req.StrategicValue,
			ChangeLog:      req.ChangeLog,
			CreatorID:      actor(r),
		})
	if err != nil {
		h.handleServiceError(w, err, "Ошибка создания артефакта из шаблона")
		return
	}
	writeJSON(w, http.StatusCreated, artifactResponse{Artifact: a, Version: v})
}
