// Пакет deps — потокобезопасный направленный граф зависимостей
// между артефактами.
//
// Ребро (from → to) означает, что from зависит от to. Статус
// валидации ребра пересчитывается при каждой смене current-версии
// любого из концов (Revalidate). Обязательное ребро, указывающее
// на отсутствующий или архивированный артефакт, помечается broken
// и никогда не отбрасывается молча.
//
// Не персистентный per se: рёбра входят в artifact.json снапшот
// исходного артефакта и восстанавливаются через Restore при старте.
package deps

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arturkryukov/artstore/artifact-repository/internal/domain/model"
)

// Сентинельные ошибки графа зависимостей.
var (
	// ErrSourceNotFound — исходный артефакт ребра не существует
	ErrSourceNotFound = errors.New("исходный артефакт зависимости не найден")

	// ErrTargetNotFound — целевой артефакт ребра не существует.
	// Добавление ребра на несуществующий артефакт отклоняется явно.
	ErrTargetNotFound = errors.New("целевой артефакт зависимости не найден")

	// ErrDuplicateEdge — ребро (from, to, type) уже существует
	ErrDuplicateEdge = errors.New("зависимость уже существует")

	// ErrCycleDetected — добавление ребра замкнуло бы цикл
	// (при включённом AR_REJECT_DEPENDENCY_CYCLES)
	ErrCycleDetected = errors.New("обнаружен цикл зависимостей")

	// ErrDependencyNotFound — ребро с указанным ID не существует
	ErrDependencyNotFound = errors.New("зависимость не найдена")
)

// Resolver предоставляет графу состояние артефактов.
// Реализуется хранилищем VersionStore.
type Resolver interface {
	// Resolve возвращает current-версию и признак архивации артефакта.
	// ok=false — артефакт не существует.
	Resolve(artifactID string) (currentVersion string, archived bool, ok bool)
}

// Graph — направленный граф зависимостей.
type Graph struct {
	mu sync.RWMutex
	// out — исходящие рёбра: from_id → рёбра в порядке добавления
	out map[string][]*model.Dependency
	// in — обратный индекс: to_id → набор from_id
	in map[string]map[string]struct{}

	resolver Resolver
	// rejectCycles — отклонять рёбра, замыкающие цикл
	rejectCycles bool
	logger       *slog.Logger
}

// New создаёт пустой граф зависимостей.
func New(resolver Resolver, rejectCycles bool, logger *slog.Logger) *Graph {
	return &Graph{
		out:          make(map[string][]*model.Dependency),
		in:           make(map[string]map[string]struct{}),
		resolver:     resolver,
		rejectCycles: rejectCycles,
		logger:       logger.With(slog.String("component", "deps")),
	}
}

// Restore загружает рёбра артефакта из снапшота. Валидация
// не пересчитывается: статусы берутся как есть и актуализируются
// ближайшим Revalidate.
func (g *Graph) Restore(fromID string, edges []*model.Dependency) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, edge := range edges {
		copied := *edge
		g.out[fromID] = append(g.out[fromID], &copied)
		g.linkReverse(fromID, edge.ToID)
	}
}

// linkReverse добавляет запись в обратный индекс. Вызывается под mu.
func (g *Graph) linkReverse(fromID, toID string) {
	set, ok := g.in[toID]
	if !ok {
		set = make(map[string]struct{})
		g.in[toID] = set
	}
	set[fromID] = struct{}{}
}

// AddDependency добавляет ребро from → to. Отклоняет ребро, если
// любой из концов не существует, ребро (from, to, type) уже есть,
// или (при включённой проверке) ребро замыкает цикл.
// Статус валидации вычисляется сразу при добавлении.
func (g *Graph) AddDependency(fromID, toID string, depType model.DependencyType, constraint string, required bool) (*model.Dependency, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, _, ok := g.resolver.Resolve(fromID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, fromID)
	}
	targetVersion, targetArchived, ok := g.resolver.Resolve(toID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, toID)
	}

	for _, edge := range g.out[fromID] {
		if edge.ToID == toID && edge.Type == depType {
			return nil, fmt.Errorf("%w: %s → %s (%s)", ErrDuplicateEdge, fromID, toID, depType)
		}
	}

	if g.rejectCycles && g.reachable(toID, fromID) {
		return nil, fmt.Errorf("%w: %s → %s", ErrCycleDetected, fromID, toID)
	}

	now := time.Now().UTC()
	edge := &model.Dependency{
		DependencyID: uuid.New().String(),
		FromID:       fromID,
		ToID:         toID,
		Type:         depType,
		Constraint:   constraint,
		Required:     required,
		Validation:   validationStatus(targetVersion, targetArchived, true, constraint),
		CreatedAt:    now,
		ValidatedAt:  now,
	}

	g.out[fromID] = append(g.out[fromID], edge)
	g.linkReverse(fromID, toID)

	g.logger.Info("Зависимость добавлена",
		slog.String("from", fromID),
		slog.String("to", toID),
		slog.String("type", string(depType)),
		slog.String("validation", string(edge.Validation)),
	)

	copied := *edge
	return &copied, nil
}

// RemoveDependency удаляет ребро по идентификатору.
func (g *Graph) RemoveDependency(fromID, dependencyID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	edges := g.out[fromID]
	for i, edge := range edges {
		if edge.DependencyID != dependencyID {
			continue
		}
		g.out[fromID] = append(edges[:i], edges[i+1:]...)

		// Чистим обратный индекс, если это было последнее ребро from → to
		remaining := false
		for _, rest := range g.out[fromID] {
			if rest.ToID == edge.ToID {
				remaining = true
				break
			}
		}
		if !remaining {
			if set, ok := g.in[edge.ToID]; ok {
				delete(set, fromID)
				if len(set) == 0 {
					delete(g.in, edge.ToID)
				}
			}
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrDependencyNotFound, dependencyID)
}

// Dependencies возвращает копии исходящих рёбер артефакта.
func (g *Graph) Dependencies(artifactID string) []*model.Dependency {
	g.mu.RLock()
	defer g.mu.RUnlock()

	edges := g.out[artifactID]
	result := make([]*model.Dependency, 0, len(edges))
	for _, edge := range edges {
		copied := *edge
		result = append(result, &copied)
	}
	return result
}

// FindDependents возвращает транзитивное замыкание обратных рёбер:
// все артефакты, прямо или косвенно зависящие от указанного.
// Обход ограничен visited-набором, поэтому завершается и при
// наличии циклов в графе.
func (g *Graph) FindDependents(artifactID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := make(map[string]struct{})
	g.collectDependents(artifactID, visited)
	delete(visited, artifactID)

	result := make([]string, 0, len(visited))
	for id := range visited {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

// collectDependents — рекурсивный обход обратных рёбер. Вызывается под mu.
func (g *Graph) collectDependents(artifactID string, visited map[string]struct{}) {
	if _, ok := visited[artifactID]; ok {
		return
	}
	visited[artifactID] = struct{}{}
	for fromID := range g.in[artifactID] {
		g.collectDependents(fromID, visited)
	}
}

// reachable проверяет достижимость target из start по прямым рёбрам.
// Используется для обнаружения циклов. Вызывается под mu.
func (g *Graph) reachable(start, target string) bool {
	if start == target {
		return true
	}
	visited := make(map[string]struct{})
	stack := []string{start}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := visited[current]; ok {
			continue
		}
		visited[current] = struct{}{}
		for _, edge := range g.out[current] {
			if edge.ToID == target {
				return true
			}
			stack = append(stack, edge.ToID)
		}
	}
	return false
}

// Revalidate пересчитывает статусы всех рёбер, касающихся артефакта
// (входящих и исходящих). Вызывается после каждой смены
// current-версии и после архивации. Возвращает рёбра,
// ставшие broken при required=true.
func (g *Graph) Revalidate(artifactID string) []*model.Dependency {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UTC()
	var brokenRequired []*model.Dependency

	revalidateEdge := func(edge *model.Dependency) {
		version, archived, ok := g.resolver.Resolve(edge.ToID)
		edge.Validation = validationStatus(version, archived, ok, edge.Constraint)
		edge.ValidatedAt = now

		if edge.Required && edge.Validation == model.ValidationBroken {
			copied := *edge
			brokenRequired = append(brokenRequired, &copied)
			g.logger.Warn("Обязательная зависимость нарушена",
				slog.String("from", edge.FromID),
				slog.String("to", edge.ToID),
				slog.String("type", string(edge.Type)),
			)
		}
	}

	// Исходящие рёбра: состояние целей могло измениться
	// с момента последней проверки
	for _, edge := range g.out[artifactID] {
		revalidateEdge(edge)
	}

	// Входящие рёбра: изменилась цель — у зависимых артефактов
	// могли нарушиться ограничения
	for fromID := range g.in[artifactID] {
		for _, edge := range g.out[fromID] {
			if edge.ToID == artifactID {
				revalidateEdge(edge)
			}
		}
	}

	return brokenRequired
}

// BrokenRequired возвращает копии обязательных broken рёбер артефакта.
func (g *Graph) BrokenRequired(artifactID string) []*model.Dependency {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var result []*model.Dependency
	for _, edge := range g.out[artifactID] {
		if edge.Required && edge.Validation == model.ValidationBroken {
			copied := *edge
			result = append(result, &copied)
		}
	}
	return result
}

// Count возвращает общее количество рёбер в графе.
func (g *Graph) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	total := 0
	for _, edges := range g.out {
		total += len(edges)
	}
	return total
}

// validationStatus вычисляет статус ребра по состоянию цели.
//   - цель отсутствует или архивирована → broken
//   - ограничение не распознано → unknown
//   - ограничение не удовлетворено → outdated
//   - иначе → valid
func validationStatus(targetVersion string, targetArchived, targetExists bool, constraint string) model.ValidationStatus {
	if !targetExists || targetArchived {
		return model.ValidationBroken
	}
	matched, err := MatchConstraint(constraint, targetVersion)
	if err != nil {
		return model.ValidationUnknown
	}
	if !matched {
		return model.ValidationOutdated
	}
	return model.ValidationValid
}
