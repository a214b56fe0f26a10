// maintenance.go — обработчик POST /api/v1/maintenance/reconcile.
// Делегирует reconciliation в ReconcileService.
package handlers

import (
	"net/http"

	apierrors "github.com/arturkryukov/artstore/artifact-repository/internal/api/errors"
)

// Reconcile обрабатывает POST /api/v1/maintenance/reconcile.
// Запускает синхронный цикл reconciliation и возвращает результат.
// Если reconciliation уже выполняется — 409 RECONCILE_IN_PROGRESS.
func (h *APIHandler) Reconcile(w http.ResponseWriter, _ *http.Request) {
	result, inProgress := h.reconciler.RunOnce()
	if inProgress {
		apierrors.ReconcileInProgress(w, "Reconciliation уже выполняется")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
