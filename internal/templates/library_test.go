package templates

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

// testLogger возвращает логгер для тестов (вывод подавляется).
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

const reportTemplate = `{
  "template_id": "tpl-report",
  "name": "Квартальный отчёт",
  "type": "document",
  "content_type": "text/markdown",
  "skeleton": "# Отчёт {{quarter}}\n\nАвтор: {{author}}\n\n{{body}}",
  "placeholders": [
    {"name": "quarter", "required": true},
    {"name": "author", "required": true},
    {"name": "body", "required": false, "default": "Нет данных."}
  ],
  "rules": [
    {"field": "quarter", "pattern": "^Q[1-4]-\\d{4}$", "message": "формат QN-ГГГГ"}
  ]
}`

func loadTestLibrary(t *testing.T) *Library {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "report"+TemplateSuffix)
	if err := os.WriteFile(path, []byte(reportTemplate), 0o640); err != nil {
		t.Fatalf("не удалось записать шаблон: %v", err)
	}
	// Невалидный файл должен быть пропущен
	if err := os.WriteFile(filepath.Join(dir, "broken"+TemplateSuffix), []byte("{мусор"), 0o640); err != nil {
		t.Fatalf("не удалось записать файл: %v", err)
	}

	lib, err := Load(dir, testLogger())
	if err != nil {
		t.Fatalf("не удалось загрузить библиотеку: %v", err)
	}
	return lib
}

// TestLoad проверяет загрузку шаблонов и пропуск невалидных файлов.
func TestLoad(t *testing.T) {
	lib := loadTestLibrary(t)

	if lib.Count() != 1 {
		t.Fatalf("ожидался 1 шаблон, получено %d", lib.Count())
	}

	tpl, err := lib.Get("tpl-report")
	if err != nil {
		t.Fatalf("шаблон не найден: %v", err)
	}
	if tpl.Name != "Квартальный отчёт" {
		t.Errorf("ожидалось имя 'Квартальный отчёт', получено %q", tpl.Name)
	}

	if _, err := lib.Get("ghost"); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("ожидалась ErrTemplateNotFound, получена %v", err)
	}
}

// TestLoad_EmptyDir проверяет, что пустая директория — не ошибка.
func TestLoad_EmptyDir(t *testing.T) {
	lib, err := Load("", testLogger())
	if err != nil {
		t.Fatalf("пустая директория не должна быть ошибкой: %v", err)
	}
	if lib.Count() != 0 {
		t.Errorf("библиотека должна быть пустой, получено %d", lib.Count())
	}
}

// TestRender проверяет подстановку значений и значений по умолчанию.
func TestRender(t *testing.T) {
	lib := loadTestLibrary(t)
	tpl, _ := lib.Get("tpl-report")

	result, err := lib.Render(tpl, map[string]string{
		"quarter": "Q1-2026",
		"author":  "Иванов",
	})
	if err != nil {
		t.Fatalf("не удалось применить шаблон: %v", err)
	}

	want := "# Отчёт Q1-2026\n\nАвтор: Иванов\n\nНет данных."
	if result.Content != want {
		t.Errorf("ожидалось %q, получено %q", want, result.Content)
	}

	// Заполненные вызывающим поля, без default-ов
	if len(result.CustomizedFields) != 2 {
		t.Fatalf("ожидалось 2 заполненных поля, получено %d", len(result.CustomizedFields))
	}
	if result.CustomizedFields[0] != "author" || result.CustomizedFields[1] != "quarter" {
		t.Errorf("ожидались [author quarter], получены %v", result.CustomizedFields)
	}
}

// TestRender_Validation проверяет обязательность и правила.
func TestRender_Validation(t *testing.T) {
	lib := loadTestLibrary(t)
	tpl, _ := lib.Get("tpl-report")

	// Пропущен обязательный placeholder
	_, err := lib.Render(tpl, map[string]string{"quarter": "Q1-2026"})
	if !errors.Is(err, ErrMissingPlaceholder) {
		t.Errorf("ожидалась ErrMissingPlaceholder, получена %v", err)
	}

	// Значение нарушает правило
	_, err = lib.Render(tpl, map[string]string{
		"quarter": "первый квартал",
		"author":  "Иванов",
	})
	if !errors.Is(err, ErrRuleViolation) {
		t.Errorf("ожидалась ErrRuleViolation, получена %v", err)
	}
}

// TestList проверяет сортировку по имени.
func TestList(t *testing.T) {
	lib := loadTestLibrary(t)
	list := lib.List()
	if len(list) != 1 {
		t.Fatalf("ожидался 1 шаблон, получено %d", len(list))
	}
	if list[0].TemplateID != "tpl-report" {
		t.Errorf("ожидался tpl-report, получен %s", list[0].TemplateID)
	}
}
