// template.go — переиспользуемые шаблоны контента с placeholder-ами.
// Шаблоны read-only: библиотека загружает их при старте, артефакты
// ссылаются на них через TemplateReference.
package model

// Placeholder — именованная подстановка в скелете шаблона.
// В скелете placeholder записывается как {{name}}.
type Placeholder struct {
	// Name — имя placeholder
	Name string `json:"name"`
	// Description — назначение placeholder
	Description string `json:"description,omitempty"`
	// Required — обязателен ли при применении шаблона
	Required bool `json:"required"`
	// Default — значение по умолчанию для необязательных placeholder-ов
	Default string `json:"default,omitempty"`
}

// TemplateRule — правило валидации заполненного шаблона.
type TemplateRule struct {
	// Field — имя placeholder, к которому применяется правило
	Field string `json:"field"`
	// Pattern — регулярное выражение, которому должно соответствовать значение
	Pattern string `json:"pattern"`
	// Message — сообщение об ошибке при несоответствии
	Message string `json:"message,omitempty"`
}

// Template — переиспользуемый скелет контента.
type Template struct {
	// TemplateID — уникальный идентификатор шаблона
	TemplateID string `json:"template_id"`
	// Name — название шаблона
	Name string `json:"name"`
	// Description — описание
	Description string `json:"description,omitempty"`
	// Type — тип артефактов, создаваемых из шаблона
	Type ArtifactType `json:"type"`
	// ContentType — MIME-тип результата
	ContentType string `json:"content_type"`
	// Skeleton — текст скелета с {{placeholder}} подстановками
	Skeleton string `json:"skeleton"`
	// Placeholders — описание подстановок
	Placeholders []Placeholder `json:"placeholders,omitempty"`
	// Rules — правила валидации значений
	Rules []TemplateRule `json:"rules,omitempty"`
}
