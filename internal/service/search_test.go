package service

import (
	"testing"
	"time"

	"github.com/arturkryukov/artstore/artifact-repository/internal/domain/model"
	"github.com/arturkryukov/artstore/artifact-repository/internal/storage/search"
)

func testSearchDoc(id, title string) *search.Document {
	return &search.Document{
		ArtifactID: id,
		Title:      title,
		Type:       model.TypeDocument,
		Status:     model.ArtifactActive,
		UpdatedAt:  time.Now().UTC(),
	}
}

func TestSearchService_QueryAndCache(t *testing.T) {
	idx := search.New(testLogger())
	svc := NewSearchService(idx, 16, time.Minute, testLogger())

	idx.Upsert(testSearchDoc("art-1", "Руководство оператора"))

	results, total := svc.Query(search.Filters{Keywords: "руководство"})
	if total != 1 || len(results) != 1 {
		t.Fatalf("Хотели 1 результат, получили %d", total)
	}

	// Индекс меняется, но кэш ещё держит старую страницу
	idx.Upsert(testSearchDoc("art-2", "Второе руководство"))

	if _, total := svc.Query(search.Filters{Keywords: "руководство"}); total != 1 {
		t.Errorf("Повторный запрос должен отдаваться из кэша: total=%d", total)
	}

	// После инвалидации запрос идёт в индекс
	svc.Invalidate()
	if _, total := svc.Query(search.Filters{Keywords: "руководство"}); total != 2 {
		t.Errorf("После инвалидации хотели 2 результата, получили %d", total)
	}
}

func TestSearchService_DistinctFiltersNotShared(t *testing.T) {
	idx := search.New(testLogger())
	svc := NewSearchService(idx, 16, time.Minute, testLogger())

	idx.Upsert(testSearchDoc("art-1", "Регламент выпуска"))

	if _, total := svc.Query(search.Filters{Keywords: "регламент"}); total != 1 {
		t.Fatalf("Хотели 1 результат, получили %d", total)
	}
	// Другая пагинация — другой ключ кэша
	if _, total := svc.Query(search.Filters{Keywords: "регламент", Offset: 5}); total != 1 {
		t.Errorf("Total со смещением: хотели 1, получили %d", total)
	}
	if results, _ := svc.Query(search.Filters{Keywords: "регламент", Offset: 5}); len(results) != 0 {
		t.Errorf("Страница за пределами результатов должна быть пустой, получили %d", len(results))
	}
}

func TestCacheKey_Canonical(t *testing.T) {
	a := cacheKey(search.Filters{Keywords: "Отчёт", Limit: 10})
	b := cacheKey(search.Filters{Keywords: "отчёт", Limit: 10})
	if a != b {
		t.Error("Регистр ключевых слов не должен влиять на ключ кэша")
	}

	c := cacheKey(search.Filters{Keywords: "отчёт", Limit: 20})
	if a == c {
		t.Error("Разные фильтры дали одинаковый ключ кэша")
	}
}
