package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"corpora/api/internal/search"

	gocache "github.com/patrickmn/go-cache"
)

const (
	resultsCacheKey = "results"
	modelsCacheKey  = "models"
)

// newResultsCache returns nil when ttl is not positive, which turns caching off.
func newResultsCache(ttl time.Duration) *gocache.Cache {
	if ttl <= 0 {
		return nil
	}
	return gocache.New(ttl, 2*ttl)
}

func (s *Service) cached(key string) (any, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(key)
}

func (s *Service) remember(key string, value any) {
	if s.cache != nil {
		s.cache.SetDefault(key, value)
	}
}

// invalidate drops every cached aggregate. Called after each mutation.
func (s *Service) invalidate() {
	if s.cache == nil {
		return
	}
	s.cache.Delete(resultsCacheKey)
	s.cache.Delete(modelsCacheKey)
}

// Results builds the dashboard over fully annotated articles: tone
// distribution and monthly volume per language, and case counts per model.
func (s *Service) Results(ctx context.Context) (map[string]any, error) {
	if value, ok := s.cached(resultsCacheKey); ok {
		return value.(map[string]any), nil
	}

	tones, err := s.store.ToneDistribution(ctx)
	if err != nil {
		return nil, err
	}
	volume, err := s.store.MonthlyVolume(ctx)
	if err != nil {
		return nil, err
	}
	frequency, err := s.store.ModelFrequency(ctx)
	if err != nil {
		return nil, err
	}

	toneItems := make([]map[string]any, 0, len(tones))
	for _, item := range tones {
		tone := item.Tone
		if tone == "" {
			tone = "unset"
		}
		toneItems = append(toneItems, map[string]any{"lang": item.Lang, "tone": tone, "count": item.Count})
	}
	volumeItems := make([]map[string]any, 0, len(volume))
	for _, item := range volume {
		volumeItems = append(volumeItems, map[string]any{"lang": item.Lang, "month": item.Month.Format("2006-01"), "count": item.Count})
	}
	modelItems := make([]map[string]any, 0, len(frequency))
	for _, item := range frequency {
		modelItems = append(modelItems, map[string]any{"id": item.ModelID, "name": item.ModelName, "count": item.Count})
	}

	payload := map[string]any{
		"tones":       toneItems,
		"volume":      volumeItems,
		"models":      modelItems,
		"generatedAt": time.Now().UTC().Format(time.RFC3339),
	}
	s.remember(resultsCacheKey, payload)
	return payload, nil
}

type SearchInput struct {
	Text      string
	Type      string
	EditionID string
	Limit     int
	Offset    int
}

func (s *Service) Search(ctx context.Context, input SearchInput) (search.Response, error) {
	resultType, ok := search.ParseResultType(input.Type)
	if !ok {
		return search.Response{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "type must be article or case", map[string]any{"field": "type"})
	}
	limit := input.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}
	return s.search.Search(ctx, search.Query{
		Text:            strings.TrimSpace(input.Text),
		FilterType:      resultType,
		FilterEditionID: strings.TrimSpace(input.EditionID),
		Limit:           limit,
		Offset:          offset,
	}), nil
}
