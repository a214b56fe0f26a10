// Пакет blob — content-addressed хранилище байтов контента версий.
// Имя файла на диске — SHA-256 хэш содержимого, поэтому одинаковые
// payload-ы разных версий хранятся в одном экземпляре, а checksum
// версии одновременно является ключом blob-а.
// Запись: temp файл → подсчёт SHA-256 на лету → fsync → atomic rename.
package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"
)

// checksumRe — валидный hex SHA-256 (64 символа).
var checksumRe = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Store — content-addressed blob store на локальном диске.
type Store struct {
	// dataDir — корневая директория blob-ов (AR_DATA_DIR/blobs)
	dataDir string
}

// SaveResult — результат сохранения blob-а.
type SaveResult struct {
	// Checksum — SHA-256 хэш содержимого (hex), он же ключ blob-а
	Checksum string
	// Size — размер записанных данных в байтах
	Size int64
}

// New создаёт blob store. Проверяет и создаёт директорию
// если она не существует.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию blob store %s: %w", dataDir, err)
	}
	return &Store{dataDir: dataDir}, nil
}

// Save записывает данные из reader с подсчётом SHA-256 на лету.
// Если blob с таким checksum уже существует — temp файл удаляется,
// повторная запись не выполняется (контент неизменяем по построению).
func (s *Store) Save(reader io.Reader) (*SaveResult, error) {
	// Имя итогового файла неизвестно до конца чтения — пишем под uuid
	tmpPath := filepath.Join(s.dataDir, ".incoming_"+uuid.New().String())

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	hasher := sha256.New()
	tee := io.TeeReader(reader, hasher)

	size, err := io.Copy(f, tee)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	checksum := hex.EncodeToString(hasher.Sum(nil))
	targetPath := filepath.Join(s.dataDir, checksum)

	// Дедупликация: blob уже существует
	if _, statErr := os.Stat(targetPath); statErr == nil {
		os.Remove(tmpPath)
		return &SaveResult{Checksum: checksum, Size: size}, nil
	}

	if err := os.Rename(tmpPath, targetPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &SaveResult{Checksum: checksum, Size: size}, nil
}

// Read возвращает содержимое blob-а по checksum.
func (s *Store) Read(checksum string) ([]byte, error) {
	if !checksumRe.MatchString(checksum) {
		return nil, fmt.Errorf("недопустимый checksum: %q", checksum)
	}

	data, err := os.ReadFile(filepath.Join(s.dataDir, checksum))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob не найден: %s", checksum)
		}
		return nil, fmt.Errorf("ошибка чтения blob %s: %w", checksum, err)
	}
	return data, nil
}

// Exists проверяет наличие blob-а.
func (s *Store) Exists(checksum string) bool {
	if !checksumRe.MatchString(checksum) {
		return false
	}
	_, err := os.Stat(filepath.Join(s.dataDir, checksum))
	return err == nil
}

// Verify перечитывает blob и сверяет его SHA-256 с ключом.
// Используется reconciliation для обнаружения повреждённых данных.
func (s *Store) Verify(checksum string) error {
	data, err := s.Read(checksum)
	if err != nil {
		return err
	}

	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != checksum {
		return fmt.Errorf("blob %s повреждён: checksum не совпадает", checksum)
	}
	return nil
}

// PurgeOrphans удаляет blob-ы, checksum которых отсутствует в live наборе.
// Вызывается janitor-ом; live формируется из всех версий VersionStore.
func (s *Store) PurgeOrphans(live map[string]struct{}) (int, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return 0, fmt.Errorf("ошибка сканирования blob store: %w", err)
	}

	purged := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !checksumRe.MatchString(name) {
			continue
		}
		if _, ok := live[name]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(s.dataDir, name)); err != nil {
			continue
		}
		purged++
	}

	return purged, nil
}

// List возвращает checksums всех blob-ов.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("ошибка сканирования blob store: %w", err)
	}

	var result []string
	for _, entry := range entries {
		if !entry.IsDir() && checksumRe.MatchString(entry.Name()) {
			result = append(result, entry.Name())
		}
	}
	return result, nil
}

// Dir возвращает путь к директории blob store.
func (s *Store) Dir() string {
	return s.dataDir
}
