// Пакет record — чтение и запись write-through снапшотов артефактов
// ({artifact_id}.artifact.json). Каждый артефакт персистентен как один
// агрегат: метаданные + цепочка версий + исходящие рёбра зависимостей.
// Байты контента версий в снапшот не входят — они лежат в blob store
// и связаны по checksum.
// Все операции записи выполняются атомарно: temp → fsync → rename.
package record

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/arturkryukov/artstore/artifact-repository/internal/domain/model"
)

// RecordSuffix — суффикс файла снапшота.
const RecordSuffix = ".artifact.json"

// maxRecordFileSize — максимальный допустимый размер снапшота (1 МБ).
// Контент версий в снапшот не сериализуется, поэтому лимита достаточно
// для цепочек в сотни версий.
const maxRecordFileSize = 1 << 20

// ArtifactRecord — персистентный агрегат одного артефакта.
type ArtifactRecord struct {
	// Artifact — метаданные артефакта
	Artifact *model.Artifact `json:"artifact"`
	// Versions — цепочка версий в порядке создания
	Versions []*model.ArtifactVersion `json:"versions"`
	// Dependencies — исходящие рёбра зависимостей (FromID == ArtifactID)
	Dependencies []*model.Dependency `json:"dependencies,omitempty"`
}

// Path возвращает путь к снапшоту артефакта в указанной директории.
func Path(dir, artifactID string) string {
	return filepath.Join(dir, artifactID+RecordSuffix)
}

// IsRecordFile проверяет, является ли путь файлом снапшота.
func IsRecordFile(path string) bool {
	return strings.HasSuffix(path, RecordSuffix)
}

// Write атомарно записывает снапшот артефакта.
// Паттерн: JSON → temp файл → fsync → atomic rename.
func Write(path string, rec *ArtifactRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации снапшота: %w", err)
	}

	if len(data) > maxRecordFileSize {
		return fmt.Errorf("размер снапшота (%d байт) превышает максимум (%d байт)", len(data), maxRecordFileSize)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
	}

	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return nil
}

// Read читает и десериализует снапшот артефакта.
func Read(path string) (*ArtifactRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения снапшота %s: %w", path, err)
	}

	var rec ArtifactRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("ошибка десериализации снапшота %s: %w", path, err)
	}

	if rec.Artifact == nil || rec.Artifact.ArtifactID == "" {
		return nil, fmt.Errorf("снапшот %s не содержит артефакта", path)
	}

	return &rec, nil
}

// Delete удаляет снапшот. Возвращает nil если файл уже не существует.
func Delete(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления снапшота %s: %w", path, err)
	}
	return nil
}

// ScanDir сканирует директорию и возвращает все валидные снапшоты.
// Невалидные файлы пропускаются. Используется при восстановлении
// in-memory состояния и поискового индекса при старте.
func ScanDir(dir string) ([]*ArtifactRecord, error) {
	pattern := filepath.Join(dir, "*"+RecordSuffix)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("ошибка сканирования директории %s: %w", dir, err)
	}

	var result []*ArtifactRecord
	for _, path := range matches {
		rec, err := Read(path)
		if err != nil {
			// Невалидные снапшоты пропускаем, восстановление не прерываем
			continue
		}
		result = append(result, rec)
	}

	return result, nil
}
