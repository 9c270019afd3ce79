package app

import (
	"context"
	"errors"
	"strings"

	"corpora/api/internal/store"
	"corpora/api/internal/util"
)

type NewModel struct {
	Name    string `json:"name"`
	Comment string `json:"comment"`
}

type ModelPatch struct {
	Name    *string `json:"name"`
	Comment *string `json:"comment"`
}

func modelExists(name string) *DomainError {
	return conflictError("MODEL_EXISTS", "A metaphor model with this name already exists", map[string]any{"name": name})
}

// ListModels feeds the model picker; it is cached together with the results.
func (s *Service) ListModels(ctx context.Context) ([]map[string]any, error) {
	if value, ok := s.cached(modelsCacheKey); ok {
		return value.([]map[string]any), nil
	}
	models, err := s.store.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(models))
	for _, item := range models {
		items = append(items, modelView(item))
	}
	s.remember(modelsCacheKey, items)
	return items, nil
}

func (s *Service) CreateModel(ctx context.Context, input NewModel) (map[string]any, error) {
	name, err := requiredText("name", input.Name)
	if err != nil {
		return nil, err
	}
	item := store.MetaphorModel{
		ID:      util.NewID("mm"),
		Name:    name,
		Comment: strings.TrimSpace(input.Comment),
	}
	if err := s.store.InsertModel(ctx, item); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, modelExists(name)
		}
		return nil, err
	}
	s.invalidate()
	created, err := s.store.GetModel(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	return modelView(created), nil
}

// UpdateModel renames or re-comments a model. Cases show the model name, so
// they are pushed to the search index again.
func (s *Service) UpdateModel(ctx context.Context, modelID string, patch ModelPatch) (map[string]any, error) {
	item, err := s.store.GetModel(ctx, modelID)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		if item.Name, err = requiredText("name", *patch.Name); err != nil {
			return nil, err
		}
	}
	if patch.Comment != nil {
		item.Comment = strings.TrimSpace(*patch.Comment)
	}
	if err := s.store.UpdateModel(ctx, modelID, item.Name, item.Comment); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, modelExists(item.Name)
		}
		return nil, err
	}
	s.invalidate()

	cases, err := s.store.ListCasesByModel(ctx, modelID)
	if err != nil {
		return nil, err
	}
	s.search.IndexCases(cases)
	return modelView(item), nil
}

// DeleteModel refuses while any case still references the model.
func (s *Service) DeleteModel(ctx context.Context, modelID string) error {
	err := s.store.DeleteModel(ctx, modelID)
	if errors.Is(err, store.ErrModelInUse) {
		return conflictError("MODEL_IN_USE", "The metaphor model is still used by metaphor cases", map[string]any{"modelId": modelID})
	}
	if err != nil {
		return err
	}
	s.invalidate()
	return nil
}

func (s *Service) ListCasesByModel(ctx context.Context, modelID string) (map[string]any, error) {
	model, err := s.store.GetModel(ctx, modelID)
	if err != nil {
		return nil, err
	}
	cases, err := s.store.ListCasesByModel(ctx, modelID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(cases))
	for _, c := range cases {
		items = append(items, caseView(c))
	}
	return map[string]any{"model": modelView(model), "cases": items}, nil
}
