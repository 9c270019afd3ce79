package app

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"corpora/api/internal/annotate"
	"corpora/api/internal/store"
	"corpora/api/internal/util"
)

// ModelChoice names the model of a case: either an existing model by id, or a
// new one by name. A new model whose name already exists (case-insensitively)
// resolves to that model.
type ModelChoice struct {
	Existing string    `json:"existing"`
	New      *NewModel `json:"new"`
}

// resolve returns the model id to reference, or the model to create.
func (c ModelChoice) resolve() (string, *store.MetaphorModel, error) {
	existing := strings.TrimSpace(c.Existing)
	switch {
	case existing != "" && c.New != nil:
		return "", nil, validationError("model", "must name either an existing or a new model, not both")
	case existing != "":
		return existing, nil, nil
	case c.New != nil:
		name, err := requiredText("model.new.name", c.New.Name)
		if err != nil {
			return "", nil, err
		}
		return "", &store.MetaphorModel{
			ID:      util.NewID("mm"),
			Name:    name,
			Comment: strings.TrimSpace(c.New.Comment),
		}, nil
	default:
		return "", nil, validationError("model", "is required")
	}
}

// NewCase confirms a selection as a metaphor case. Range, when set, is the
// range the client was shown for the selection; it must still be what the
// selection locates to.
type NewCase struct {
	Selection annotate.Selection `json:"selection"`
	Range     *annotate.Range    `json:"char_range"`
	Comment   string             `json:"comment"`
	Model     ModelChoice        `json:"model"`
}

// CasePatch changes text, comment and model. Location and Range are only
// accepted when they equal the stored values.
type CasePatch struct {
	Text     *string            `json:"text"`
	Comment  *string            `json:"comment"`
	Model    *ModelChoice       `json:"model"`
	Location *annotate.Location `json:"location"`
	Range    *annotate.Range    `json:"char_range"`
}

func rejectionError(rejection *annotate.Rejection) *DomainError {
	details := map[string]any{"reason": string(rejection.Reason)}
	if notice := rejection.Notice(); notice != "" {
		details["notice"] = notice
	}
	return domainError(http.StatusUnprocessableEntity, string(rejection.Reason), rejection.Error(), details)
}

func fieldText(article store.Article, location annotate.Location) string {
	if location == annotate.LocationHeading {
		return article.Heading
	}
	return article.Body
}

// locate runs the span locator against the canonical field and refuses
// selections that overlap an existing case of that field.
func (s *Service) locate(article store.Article, cases []store.MetaphorCase, sel annotate.Selection) (annotate.PendingSelection, error) {
	location, ok := annotate.ParseLocation(string(sel.Location))
	if !ok {
		return annotate.PendingSelection{}, validationError("location", "must be heading or body")
	}
	sel.Location = location

	pending, err := s.locator.Locate(fieldText(article, location), sel)
	if rejection, ok := annotate.AsRejection(err); ok {
		return annotate.PendingSelection{}, rejectionError(rejection)
	}
	if err != nil {
		return annotate.PendingSelection{}, err
	}
	if _, hit := annotate.Collision(pending.Range, location, marksFor(cases)); hit {
		return annotate.PendingSelection{}, rejectionError(&annotate.Rejection{Reason: annotate.ReasonOverlapsAnnotation})
	}
	return pending, nil
}

// LocateSelection turns a client selection into a pending selection of the
// article without persisting anything.
func (s *Service) LocateSelection(ctx context.Context, articleID string, sel annotate.Selection) (map[string]any, error) {
	article, edition, cases, err := s.loadArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}
	pending, err := s.locate(article, cases, sel)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"location":        pending.Location,
		"char_range":      pending.Range,
		"text":            pending.Text,
		"sourceArticleId": article.ID,
		"editionId":       edition.ID,
		"lang":            edition.Lang,
	}, nil
}

// CreateCase locates the selection, resolves the model and persists the case.
// The selection is located again under the article lock so a case is never
// stored against text that changed in between.
func (s *Service) CreateCase(ctx context.Context, articleID string, input NewCase) (map[string]any, error) {
	modelID, newModel, err := input.Model.resolve()
	if err != nil {
		return nil, err
	}

	article, _, cases, err := s.loadArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}
	pending, err := s.locate(article, cases, input.Selection)
	if err != nil {
		return nil, err
	}
	if input.Range != nil && *input.Range != pending.Range {
		return nil, staleSelection(pending.Range)
	}

	item := store.MetaphorCase{
		ID:         util.NewID("mc"),
		ArticleID:  article.ID,
		Location:   string(pending.Location),
		RangeStart: pending.Range.Start(),
		RangeEnd:   pending.Range.End(),
		Text:       pending.Text,
		Comment:    strings.TrimSpace(input.Comment),
		ModelID:    modelID,
	}
	created, err := s.store.CreateCase(ctx, item, newModel, func(locked store.Article, lockedCases []store.MetaphorCase) error {
		again, err := s.locate(locked, lockedCases, input.Selection)
		if err != nil {
			return err
		}
		if again.Range != pending.Range {
			return staleSelection(again.Range)
		}
		return nil
	})
	if errors.Is(err, store.ErrCaseOverlap) {
		return nil, rejectionError(&annotate.Rejection{Reason: annotate.ReasonOverlapsAnnotation})
	}
	if err != nil {
		return nil, err
	}

	s.search.IndexCase(created)
	s.invalidate()

	updatedArticle, err := s.GetArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}
	model, err := s.store.GetModel(ctx, created.ModelID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"case":    caseView(created),
		"article": updatedArticle,
		"model":   modelView(model),
	}, nil
}

func staleSelection(current annotate.Range) *DomainError {
	return conflictError("STALE_SELECTION", "The article changed since the selection was made", map[string]any{"char_range": current})
}

// UpdateCase changes the text, comment or model of a case. Its location and
// range never change.
func (s *Service) UpdateCase(ctx context.Context, caseID string, patch CasePatch) (map[string]any, error) {
	current, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if patch.Location != nil && string(*patch.Location) != current.Location {
		return nil, immutableField("location")
	}
	if patch.Range != nil && *patch.Range != (annotate.Range{current.RangeStart, current.RangeEnd}) {
		return nil, immutableField("char_range")
	}

	var update store.CaseUpdate
	if patch.Text != nil {
		text, err := requiredText("text", *patch.Text)
		if err != nil {
			return nil, err
		}
		update.Text = &text
	}
	if patch.Comment != nil {
		comment := strings.TrimSpace(*patch.Comment)
		update.Comment = &comment
	}
	var newModel *store.MetaphorModel
	if patch.Model != nil {
		modelID, created, err := patch.Model.resolve()
		if err != nil {
			return nil, err
		}
		if modelID != "" {
			update.ModelID = &modelID
		}
		newModel = created
	}

	updated, err := s.store.UpdateCase(ctx, caseID, update, newModel)
	if err != nil {
		return nil, err
	}
	s.search.IndexCase(updated)
	s.invalidate()
	return caseView(updated), nil
}

func immutableField(field string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "IMMUTABLE_FIELD", field+" cannot change after a case is created", map[string]any{"field": field})
}

// DeleteCase removes one case of the article. The model stays.
func (s *Service) DeleteCase(ctx context.Context, articleID, caseID string) (map[string]any, error) {
	deleted, err := s.store.DeleteCase(ctx, articleID, caseID)
	if err != nil {
		return nil, err
	}
	s.search.Remove(nil, []string{deleted.ID})
	s.invalidate()

	updatedArticle, err := s.GetArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"case":    caseView(deleted),
		"article": updatedArticle,
	}, nil
}
