// dependency.go — направленные рёбра зависимостей между артефактами.
package model

import (
	"time"
)

// DependencyType — тип зависимости между артефактами.
type DependencyType string

const (
	DepImport    DependencyType = "import"
	DepReference DependencyType = "reference"
	DepTemplate  DependencyType = "template"
	DepAsset     DependencyType = "asset"
	DepData      DependencyType = "data"
)

// ValidationStatus — статус валидации ребра зависимости.
// Пересчитывается при каждом изменении текущей версии любого из концов.
type ValidationStatus string

const (
	// ValidationValid — цель существует, constraint удовлетворён
	ValidationValid ValidationStatus = "valid"
	// ValidationOutdated — цель существует, но constraint не удовлетворён
	ValidationOutdated ValidationStatus = "outdated"
	// ValidationBroken — цель отсутствует или архивирована
	ValidationBroken ValidationStatus = "broken"
	// ValidationUnknown — constraint не удалось разобрать
	ValidationUnknown ValidationStatus = "unknown"
)

// Dependency — направленное ребро: FromID зависит от ToID.
// Владелец — DependencyGraph; персистентно в artifact.json
// зависимого артефакта (FromID).
type Dependency struct {
	// DependencyID — уникальный идентификатор ребра (UUID v4)
	DependencyID string `json:"dependency_id"`

	// FromID — зависимый артефакт
	FromID string `json:"from_id"`

	// ToID — артефакт-зависимость
	ToID string `json:"to_id"`

	// Type — тип зависимости
	Type DependencyType `json:"type"`

	// Constraint — ограничение версии ("", "*", "1.2.3", "^1.2.3", "~1.2.3", ">=1.2.3")
	Constraint string `json:"constraint,omitempty"`

	// Required — обязательная зависимость. Broken required ребро
	// блокирует публикацию зависимого артефакта.
	Required bool `json:"required"`

	// Validation — текущий статус валидации
	Validation ValidationStatus `json:"validation"`

	// CreatedAt — время создания ребра (UTC)
	CreatedAt time.Time `json:"created_at"`

	// ValidatedAt — время последней валидации (UTC)
	ValidatedAt time.Time `json:"validated_at"`
}
