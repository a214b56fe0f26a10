// sessions.go — обработчики сессий совместного редактирования:
// жизненный цикл, предложение изменений, конфликты и их разрешение.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/arturkryukov/artstore/artifact-repository/internal/api/errors"
	"github.com/arturkryukov/artstore/artifact-repository/internal/collab"
	"github.com/arturkryukov/artstore/artifact-repository/internal/domain/model"
)

// startSessionRequest — тело POST /api/v1/sessions.
type startSessionRequest struct {
	ArtifactID   string   `json:"artifact_id"`
	Participants []string `json:"participants,omitempty"`
}

// StartSession — POST /api/v1/sessions.
// Открывает сессию редактирования current-версии артефакта.
func (h *APIHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ArtifactID == "" {
		apierrors.ValidationError(w, "Поле artifact_id обязательно")
		return
	}

	sess, err := h.sessions.Start(r.Context(), req.ArtifactID, req.Participants, actor(r))
	if err != nil {
		h.handleServiceError(w, err, "Ошибка создания сессии")
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// GetSession — GET /api/v1/sessions/{sessionID}.
func (h *APIHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.handleServiceError(w, err, "Ошибка получения сессии")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// proposeChangeRequest — тело POST /api/v1/sessions/{sessionID}/changes.
type proposeChangeRequest struct {
	Kind        model.ChangeKind      `json:"kind"`
	Description string                `json:"description,omitempty"`
	Location    *model.ChangeLocation `json:"location,omitempty"`
	NewText     string                `json:"new_text,omitempty"`
}

// ProposeChange — POST /api/v1/sessions/{sessionID}/changes.
func (h *APIHandler) ProposeChange(w http.ResponseWriter, r *http.Request) {
	var req proposeChangeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	change := model.Change{
		Kind:        req.Kind,
		Description: req.Description,
		Location:    req.Location,
		NewText:     req.NewText,
	}

	proposed, err := h.sessions.ProposeChange(chi.URLParam(r, "sessionID"), actor(r), change)
	if err != nil {
		h.handleServiceError(w, err, "Ошибка предложения изменения")
		return
	}
	writeJSON(w, http.StatusCreated, proposed)
}

// AcceptChange — POST /api/v1/sessions/{sessionID}/changes/{changeID}/accept.
func (h *APIHandler) AcceptChange(w http.ResponseWriter, r *http.Request) {
	err := h.sessions.AcceptChange(chi.URLParam(r, "sessionID"), chi.URLParam(r, "changeID"), actor(r))
	if err != nil {
		h.handleServiceError(w, err, "Ошибка принятия изменения")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RejectChange — POST /api/v1/sessions/{sessionID}/changes/{changeID}/reject.
func (h *APIHandler) RejectChange(w http.ResponseWriter, r *http.Request) {
	err := h.sessions.RejectChange(chi.URLParam(r, "sessionID"), chi.URLParam(r, "changeID"), actor(r))
	if err != nil {
		h.handleServiceError(w, err, "Ошибка отклонения изменения")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DetectConflicts — GET /api/v1/sessions/{sessionID}/conflicts.
func (h *APIHandler) DetectConflicts(w http.ResponseWriter, r *http.Request) {
	conflicts, err := h.sessions.DetectConflicts(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.handleServiceError(w, err, "Ошибка поиска конфликтов")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conflicts": conflicts,
		"total":     len(conflicts),
	})
}

// resolveConflictRequest — тело POST /api/v1/sessions/{sessionID}/conflicts/resolve.
type resolveConflictRequest struct {
	Type      model.ConflictType       `json:"type"`
	Strategy  model.ResolutionStrategy `json:"strategy"`
	ChangeIDs []string                 `json:"change_ids"`
	ConsentBy []string                 `json:"consent_by,omitempty"`
	Notes     string                   `json:"notes,omitempty"`
}

// ResolveConflict — POST /api/v1/sessions/{sessionID}/conflicts/resolve.
func (h *APIHandler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	var req resolveConflictRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Strategy == "" {
		apierrors.ValidationError(w, "Поле strategy обязательно")
		return
	}

	resolution, err := h.sessions.ResolveConflict(collab.ResolveParams{
		SessionID:  chi.URLParam(r, "sessionID"),
		ResolverID: actor(r),
		Type:       req.Type,
		Strategy:   req.Strategy,
		ChangeIDs:  req.ChangeIDs,
		ConsentBy:  req.ConsentBy,
		Notes:      req.Notes,
	})
	if err != nil {
		h.handleServiceError(w, err, "Ошибка разрешения конфликта")
		return
	}
	writeJSON(w, http.StatusOK, resolution)
}

// PauseSession — POST /api/v1/sessions/{sessionID}/pause.
func (h *APIHandler) PauseSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Pause(chi.URLParam(r, "sessionID"), actor(r))
	if err != nil {
		h.handleServiceError(w, err, "Ошибка приостановки сессии")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// ResumeSession — POST /api/v1/sessions/{sessionID}/resume.
func (h *APIHandler) ResumeSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Resume(chi.URLParam(r, "sessionID"), actor(r))
	if err != nil {
		h.handleServiceError(w, err, "Ошибка возобновления сессии")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// CompleteSession — POST /api/v1/sessions/{sessionID}/complete.
// Сворачивает принятые изменения в новую minor-версию артефакта.
func (h *APIHandler) CompleteSession(w http.ResponseWriter, r *http.Request) {
	sess, v, err := h.sessions.Complete(r.Context(), chi.URLParam(r, "sessionID"), actor(r))
	if err != nil {
		h.handleServiceError(w, err, "Ошибка завершения сессии")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": sess,
		"version": v,
	})
}

// CancelSession — POST /api/v1/sessions/{sessionID}/cancel.
func (h *APIHandler) CancelSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Cancel(chi.URLParam(r, "sessionID"), actor(r))
	if err != nil {
		h.handleServiceError(w, err, "Ошибка отмены сессии")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
