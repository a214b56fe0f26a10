// system.go — обработчик GET /api/v1/system/info (информация о репозитории).
package handlers

import (
	"net/http"

	"github.com/arturkryukov/artstore/artifact-repository/internal/config"
	"github.com/arturkryukov/artstore/artifact-repository/internal/service"
)

// capacityInfo — ёмкость диска директории данных.
type capacityInfo struct {
	TotalBytes     int64 `json:"total_bytes"`
	UsedBytes      int64 `json:"used_bytes"`
	AvailableBytes int64 `json:"available_bytes"`
}

// infoResponse — информация о репозитории для service discovery и мониторинга.
type infoResponse struct {
	RepositoryID string        `json:"repository_id"`
	Service      string        `json:"service"`
	Version      string        `json:"version"`
	Stats        service.Stats `json:"stats"`
	Capacity     *capacityInfo `json:"capacity,omitempty"`
}

// SystemHandler — обработчик системных endpoints.
type SystemHandler struct {
	cfg       *config.Config
	artifacts *service.ArtifactService
}

// NewSystemHandler создаёт обработчик системных endpoints.
func NewSystemHandler(cfg *config.Config, artifacts *service.ArtifactService) *SystemHandler {
	return &SystemHandler{
		cfg:       cfg,
		artifacts: artifacts,
	}
}

// GetInfo обрабатывает GET /api/v1/system/info.
// Возвращает идентификатор репозитория, сводную статистику хранилищ
// и ёмкость диска директории данных.
func (h *SystemHandler) GetInfo(w http.ResponseWriter, _ *http.Request) {
	resp := infoResponse{
		RepositoryID: h.cfg.RepositoryID,
		Service:      "artifact-repository",
		Version:      config.Version,
		Stats:        h.artifacts.CollectStats(),
	}
	if total, used, available, err := getDiskUsage(h.cfg.DataDir); err == nil {
		resp.Capacity = &capacityInfo{
			TotalBytes:     total,
			UsedBytes:      used,
			AvailableBytes: available,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
