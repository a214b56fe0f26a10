// Пакет templates — read-only библиотека шаблонов контента.
//
// Шаблоны загружаются при старте из JSON-файлов (*.template.json)
// в AR_TEMPLATES_DIR и используются только при создании артефактов:
// скелет с {{placeholder}} подстановками рендерится в начальный
// контент, ссылка на шаблон фиксируется в TemplateReference.
package templates

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/arturkryukov/artstore/artifact-repository/internal/domain/model"
)

// TemplateSuffix — суффикс файла шаблона.
const TemplateSuffix = ".template.json"

// Ошибки библиотеки шаблонов.
var (
	// ErrTemplateNotFound — шаблон с указанным ID не существует
	ErrTemplateNotFound = errors.New("шаблон не найден")

	// ErrMissingPlaceholder — не заполнен обязательный placeholder
	ErrMissingPlaceholder = errors.New("обязательный placeholder не заполнен")

	// ErrRuleViolation — значение placeholder не прошло правило валидации
	ErrRuleViolation = errors.New("значение не соответствует правилу шаблона")
)

// Library — read-only библиотека шаблонов.
type Library struct {
	templates map[string]*model.Template
	logger    *slog.Logger
}

// Load загружает все шаблоны из директории. Отсутствующая директория —
// не ошибка: библиотека остаётся пустой. Невалидные файлы пропускаются
// с предупреждением.
func Load(dir string, logger *slog.Logger) (*Library, error) {
	lib := &Library{
		templates: make(map[string]*model.Template),
		logger:    logger.With(slog.String("component", "templates")),
	}

	if dir == "" {
		return lib, nil
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*"+TemplateSuffix))
	if err != nil {
		return nil, fmt.Errorf("ошибка сканирования директории шаблонов %s: %w", dir, err)
	}

	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			lib.logger.Warn("Не удалось прочитать шаблон",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}

		var tpl model.Template
		if err := json.Unmarshal(data, &tpl); err != nil || tpl.TemplateID == "" {
			lib.logger.Warn("Невалидный файл шаблона",
				slog.String("path", path),
			)
			continue
		}
		lib.templates[tpl.TemplateID] = &tpl
	}

	lib.logger.Info("Библиотека шаблонов загружена",
		slog.Int("templates", len(lib.templates)),
		slog.String("dir", dir),
	)

	return lib, nil
}

// Get возвращает шаблон по идентификатору.
func (l *Library) Get(templateID string) (*model.Template, error) {
	tpl, ok := l.templates[templateID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, templateID)
	}
	return tpl, nil
}

// List возвращает все шаблоны, отсортированные по имени.
func (l *Library) List() []*model.Template {
	result := make([]*model.Template, 0, len(l.templates))
	for _, tpl := range l.templates {
		result = append(result, tpl)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// Count возвращает количество загруженных шаблонов.
func (l *Library) Count() int {
	return len(l.templates)
}

// RenderResult — результат применения шаблона.
type RenderResult struct {
	// Content — скелет с заполненными подстановками
	Content string
	// CustomizedFields — имена placeholder-ов, заполненных вызывающим
	// (значения по умолчанию не входят)
	CustomizedFields []string
}

// Render применяет значения placeholder-ов к скелету шаблона.
// Обязательные placeholder-ы без значения — ошибка; необязательные
// заполняются значениями по умолчанию. Значения проверяются
// правилами шаблона до подстановки.
func (l *Library) Render(tpl *model.Template, values map[string]string) (*RenderResult, error) {
	resolved := make(map[string]string, len(tpl.Placeholders))
	var customized []string

	for _, ph := range tpl.Placeholders {
		value, ok := values[ph.Name]
		switch {
		case ok:
			resolved[ph.Name] = value
			customized = append(customized, ph.Name)
		case ph.Required:
			return nil, fmt.Errorf("%w: %s", ErrMissingPlaceholder, ph.Name)
		default:
			resolved[ph.Name] = ph.Default
		}
	}

	for _, rule := range tpl.Rules {
		value, ok := resolved[rule.Field]
		if !ok {
			continue
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("невалидное правило шаблона для %s: %w", rule.Field, err)
		}
		if !re.MatchString(value) {
			msg := rule.Message
			if msg == "" {
				msg = rule.Pattern
			}
			return nil, fmt.Errorf("%w: %s (%s)", ErrRuleViolation, rule.Field, msg)
		}
	}

	content := tpl.Skeleton
	for name, value := range resolved {
		content = strings.ReplaceAll(content, "{{"+name+"}}", value)
	}

	sort.Strings(customized)
	return &RenderResult{
		Content:          content,
		CustomizedFields: customized,
	}, nil
}
