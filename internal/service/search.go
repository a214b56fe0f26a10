// search.go — сервис поиска с LRU-кэшем результатов.
// Обёртка над hashicorp/golang-lru/v2/expirable: повторные запросы с теми же
// фильтрами отдаются из кэша, любая мутация индекса сбрасывает кэш целиком.
package service

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/artstore/artifact-repository/internal/storage/search"
)

// Prometheus-метрики кэша поиска.
var (
	searchCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ar_search_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш результатов поиска.",
	})
	searchCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ar_search_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша результатов поиска.",
	})
)

// cachedPage — закэшированная страница результатов поиска.
type cachedPage struct {
	Results []*search.Result
	Total   int
}

// SearchService — поиск по индексу артефактов с кэшированием результатов.
// Кэш per-instance: при рестарте прогревается заново.
type SearchService struct {
	idx    *search.Index
	cache  *expirable.LRU[string, *cachedPage]
	logger *slog.Logger
}

// NewSearchService создаёт сервис поиска.
// maxSize — максимальное количество закэшированных страниц.
// ttl — время жизни записи после добавления.
func NewSearchService(idx *search.Index, maxSize int, ttl time.Duration, logger *slog.Logger) *SearchService {
	return &SearchService{
		idx:    idx,
		cache:  expirable.NewLRU[string, *cachedPage](maxSize, nil, ttl),
		logger: logger.With(slog.String("component", "search_service")),
	}
}

// Query выполняет поиск по фильтрам. Результат кэшируется по
// каноническому ключу фильтров.
func (s *SearchService) Query(f search.Filters) ([]*search.Result, int) {
	key := cacheKey(f)
	if page, ok := s.cache.Get(key); ok {
		searchCacheHitsTotal.Inc()
		return page.Results, page.Total
	}
	searchCacheMissesTotal.Inc()

	results, total := s.idx.Query(f)
	s.cache.Add(key, &cachedPage{Results: results, Total: total})
	return results, total
}

// Invalidate сбрасывает кэш целиком. Вызывается при любой мутации индекса:
// точечная инвалидация невозможна, т.к. один документ влияет на
// произвольное число закэшированных страниц.
func (s *SearchService) Invalidate() {
	s.cache.Purge()
}

// cacheKey строит канонический ключ кэша из фильтров запроса.
func cacheKey(f search.Filters) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(f.Keywords))
	b.WriteByte('|')
	b.WriteString(f.Category)
	b.WriteByte('|')
	b.WriteString(string(f.Type))
	b.WriteByte('|')
	b.WriteString(f.Tag)
	b.WriteByte('|')
	if f.CreatedAfter != nil {
		b.WriteString(f.CreatedAfter.UTC().Format(time.RFC3339))
	}
	b.WriteByte('|')
	if f.CreatedBefore != nil {
		b.WriteString(f.CreatedBefore.UTC().Format(time.RFC3339))
	}
	b.WriteByte('|')
	fmt.Fprintf(&b, "%.4f|%s|%s|%d|%d",
		f.MinQuality, f.BusinessImpact, f.Status, f.Limit, f.Offset)
	return b.String()
}
