// constraint.go — проверка версионных ограничений рёбер зависимостей.
package deps

import (
	"strings"

	"github.com/arturkryukov/artstore/artifact-repository/internal/domain/model"
)

// MatchConstraint проверяет, удовлетворяет ли версия ограничению.
// Поддерживаемые формы:
//   - "" или "*"  — любая версия
//   - "1.2.3"     — точное совпадение
//   - "^1.2.3"    — тот же major, версия не ниже указанной
//   - "~1.2.3"    — те же major.minor, patch не ниже указанного
//   - ">=1.2.3"   — версия не ниже указанной
//
// Ошибка возвращается при нераспознанном ограничении или
// невалидном номере версии.
func MatchConstraint(constraint, version string) (bool, error) {
	constraint = strings.TrimSpace(constraint)
	if constraint == "" || constraint == "*" {
		return true, nil
	}

	switch {
	case strings.HasPrefix(constraint, ">="):
		base := strings.TrimSpace(strings.TrimPrefix(constraint, ">="))
		cmp, err := model.CompareVersions(version, base)
		if err != nil {
			return false, err
		}
		return cmp >= 0, nil

	case strings.HasPrefix(constraint, "^"):
		base := strings.TrimPrefix(constraint, "^")
		bMaj, _, _, err := model.ParseVersion(base)
		if err != nil {
			return false, err
		}
		vMaj, _, _, err := model.ParseVersion(version)
		if err != nil {
			return false, err
		}
		if vMaj != bMaj {
			return false, nil
		}
		cmp, err := model.CompareVersions(version, base)
		if err != nil {
			return false, err
		}
		return cmp >= 0, nil

	case strings.HasPrefix(constraint, "~"):
		base := strings.TrimPrefix(constraint, "~")
		bMaj, bMin, _, err := model.ParseVersion(base)
		if err != nil {
			return false, err
		}
		vMaj, vMin, _, err := model.ParseVersion(version)
		if err != nil {
			return false, err
		}
		if vMaj != bMaj || vMin != bMin {
			return false, nil
		}
		cmp, err := model.CompareVersions(version, base)
		if err != nil {
			return false, err
		}
		return cmp >= 0, nil

	default:
		cmp, err := model.CompareVersions(version, constraint)
		if err != nil {
			return false, err
		}
		return cmp == 0, nil
	}
}
