// search.go — обработчик GET /api/v1/artifacts/search.
// Полнотекстовый поиск с фильтрами и ранжированием.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	apierrors "github.com/arturkryukov/artstore/artifact-repository/internal/api/errors"
	"github.com/arturkryukov/artstore/artifact-repository/internal/domain/model"
	"github.com/arturkryukov/artstore/artifact-repository/internal/storage/search"
)

// SearchArtifacts — GET /api/v1/artifacts/search.
//
// Query-параметры:
//   - q — поисковая строка (токены объединяются по AND)
//   - category, type, tag, business_impact, status — точные фильтры
//   - min_quality — нижний порог оценки качества (0..1)
//   - created_after, created_before — RFC3339
//   - limit, offset — пагинация
func (h *APIHandler) SearchArtifacts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := paginationParams(r)

	f := search.Filters{
		Keywords:       q.Get("q"),
		Category:       q.Get("category"),
		Type:           model.ArtifactType(q.Get("type")),
		Tag:            q.Get("tag"),
		BusinessImpact: model.BusinessImpact(q.Get("business_impact")),
		Status:         model.ArtifactStatus(q.Get("status")),
		Limit:          limit,
		Offset:         offset,
	}

	if v := q.Get("min_quality"); v != "" {
		mq, err := strconv.ParseFloat(v, 64)
		if err != nil || mq < 0 || mq > 1 {
			apierrors.ValidationError(w, "Параметр min_quality должен быть числом в диапазоне 0..1")
			return
		}
		f.MinQuality = mq
	}
	if v := q.Get("created_after"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			apierrors.ValidationError(w, "Параметр created_after должен быть в формате RFC3339")
			return
		}
		f.CreatedAfter = &ts
	}
	if v := q.Get("created_before"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			apierrors.ValidationError(w, "Параметр created_before должен быть в формате RFC3339")
			return
		}
		f.CreatedBefore = &ts
	}

	results, total := h.searchSvc.Query(f)

	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}
