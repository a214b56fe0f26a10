// merge.go — структурное объединение принятых изменений
// в текстовый контент.
//
// Алгоритм merge: изменения content_edit с попарно
// непересекающимися диапазонами [Offset, Offset+Length) применяются
// к базовому тексту в порядке убывания смещения, чтобы ранние
// замены не сдвигали диапазоны поздних. Rewrite заменяет контент
// целиком и несовместим с другими изменениями контента.
// Бинарный контент merge не поддерживает.
package collab

import (
	"errors"
	"fmt"
	"sort"

	"github.com/arturkryukov/artstore/artifact-repository/internal/domain/model"
)

// Ошибки слияния изменений.
var (
	// ErrMergeBinary — merge применим только к текстовому контенту
	ErrMergeBinary = errors.New("merge бинарного контента не поддерживается")

	// ErrChangeOutOfRange — диапазон изменения выходит за границы базы
	ErrChangeOutOfRange = errors.New("диапазон изменения выходит за границы контента")
)

// ApplyChanges применяет принятые изменения к базовому тексту
// и возвращает итоговый контент.
func ApplyChanges(base string, changes []model.Change) (string, error) {
	var rewrite *model.Change
	var edits []model.Change

	for i := range changes {
		c := changes[i]
		switch c.Kind {
		case model.ChangeRewrite:
			if rewrite != nil || len(edits) > 0 {
				return "", fmt.Errorf("%w: rewrite совместно с другими изменениями", ErrMergeOverlap)
			}
			rewrite = &c
		case model.ChangeContentEdit:
			if rewrite != nil {
				return "", fmt.Errorf("%w: rewrite совместно с другими изменениями", ErrMergeOverlap)
			}
			if c.Location == nil {
				return "", fmt.Errorf("изменение %s не содержит диапазона", c.ChangeID)
			}
			edits = append(edits, c)
		case model.ChangeMetadata:
			// Метаданные не затрагивают контент
		default:
			return "", fmt.Errorf("неизвестный вид изменения: %q", c.Kind)
		}
	}

	if rewrite != nil {
		return rewrite.NewText, nil
	}

	// Проверяем попарную непересекаемость диапазонов
	for i := 0; i < len(edits); i++ {
		for j := i + 1; j < len(edits); j++ {
			if edits[i].Location.Overlaps(*edits[j].Location) {
				return "", fmt.Errorf("%w: %s и %s", ErrMergeOverlap,
					edits[i].ChangeID, edits[j].ChangeID)
			}
		}
	}

	// Применяем в порядке убывания смещения
	sort.Slice(edits, func(i, j int) bool {
		return edits[i].Location.Offset > edits[j].Location.Offset
	})

	result := base
	for _, c := range edits {
		start := c.Location.Offset
		end := start + c.Location.Length
		if start < 0 || end > len(result) {
			return "", fmt.Errorf("%w: [%d, %d) при длине %d",
				ErrChangeOutOfRange, start, end, len(result))
		}
		result = result[:start] + c.NewText + result[end:]
	}
	return result, nil
}
