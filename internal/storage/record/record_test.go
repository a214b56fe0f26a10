package record

import (
	"os"
	"testing"
	"time"

	"github.com/arturkryukov/artstore/artifact-repository/internal/domain/model"
)

func testRecord(artifactID string) *ArtifactRecord {
	now := time.Now().UTC().Truncate(time.Second)
	return &ArtifactRecord{
		Artifact: &model.Artifact{
			ArtifactID:     artifactID,
			Title:          "Тестовый артефакт",
			Type:           model.TypeDocument,
			Status:         model.ArtifactActive,
			CurrentVersion: "1.0.0",
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		Versions: []*model.ArtifactVersion{
			{
				VersionID:  "v-1",
				ArtifactID: artifactID,
				Number:     "1.0.0",
				Status:     model.VersionDraft,
				CreatedAt:  now,
			},
		},
		Dependencies: []*model.Dependency{
			{DependencyID: "d-1", FromID: artifactID, ToID: "other", Type: model.DepReference},
		},
	}
}

func TestWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	rec := testRecord("art-1")

	if err := Write(Path(dir, "art-1"), rec); err != nil {
		t.Fatalf("Ошибка записи снапшота: %v", err)
	}

	got, err := Read(Path(dir, "art-1"))
	if err != nil {
		t.Fatalf("Ошибка чтения снапшота: %v", err)
	}
	if got.Artifact.ArtifactID != "art-1" || got.Artifact.Title != "Тестовый артефакт" {
		t.Errorf("Артефакт: %+v", got.Artifact)
	}
	if len(got.Versions) != 1 || got.Versions[0].Number != "1.0.0" {
		t.Errorf("Версии: %+v", got.Versions)
	}
	if len(got.Dependencies) != 1 || got.Dependencies[0].ToID != "other" {
		t.Errorf("Зависимости: %+v", got.Dependencies)
	}
}

func TestWrite_Overwrites(t *testing.T) {
	dir := t.TempDir()
	rec := testRecord("art-1")

	if err := Write(Path(dir, "art-1"), rec); err != nil {
		t.Fatalf("Ошибка записи: %v", err)
	}

	rec.Artifact.Title = "Обновлённый заголовок"
	if err := Write(Path(dir, "art-1"), rec); err != nil {
		t.Fatalf("Ошибка перезаписи: %v", err)
	}

	got, err := Read(Path(dir, "art-1"))
	if err != nil {
		t.Fatalf("Ошибка чтения: %v", err)
	}
	if got.Artifact.Title != "Обновлённый заголовок" {
		t.Errorf("Title после перезаписи: %s", got.Artifact.Title)
	}
}

func TestScanDir(t *testing.T) {
	dir := t.TempDir()

	for _, id := range []string{"art-1", "art-2"} {
		if err := Write(Path(dir, id), testRecord(id)); err != nil {
			t.Fatalf("Ошибка записи %s: %v", id, err)
		}
	}
	// Посторонний файл игнорируется
	if err := os.WriteFile(dir+"/readme.txt", []byte("не снапшот"), 0o600); err != nil {
		t.Fatalf("Ошибка записи файла: %v", err)
	}

	records, err := ScanDir(dir)
	if err != nil {
		t.Fatalf("Ошибка сканирования: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("Снапшоты: хотели 2, получили %d", len(records))
	}
}

func TestScanDir_MissingDirectory(t *testing.T) {
	records, err := ScanDir(t.TempDir() + "/нет-такой")
	if err != nil {
		t.Fatalf("Отсутствующая директория не должна быть ошибкой: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Снапшоты из несуществующей директории: %d", len(records))
	}
}

func TestDelete(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir, "art-1")

	if err := Write(path, testRecord("art-1")); err != nil {
		t.Fatalf("Ошибка записи: %v", err)
	}
	if err := Delete(path); err != nil {
		t.Fatalf("Ошибка удаления: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Снапшот не удалён")
	}
	// Повторное удаление идемпотентно
	if err := Delete(path); err != nil {
		t.Errorf("Повторное удаление: %v", err)
	}
}
