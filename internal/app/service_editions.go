package app

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"corpora/api/internal/blob"
	"corpora/api/internal/store"
	"corpora/api/internal/util"

	"golang.org/x/text/language"
)

type NewEdition struct {
	Name        string `json:"name"`
	Lang        string `json:"lang"`
	Description string `json:"description"`
}

// EditionPatch changes the non-nil fields of an edition.
type EditionPatch struct {
	Name        *string `json:"name"`
	Lang        *string `json:"lang"`
	Description *string `json:"description"`
}

// normalizeLang accepts any well formed BCP 47 tag and returns its canonical
// spelling ("DE" becomes "de", "pt-br" becomes "pt-BR").
func normalizeLang(value string) (string, error) {
	value, err := requiredText("lang", value)
	if err != nil {
		return "", err
	}
	tag, err := language.Parse(value)
	if err != nil {
		return "", validationError("lang", "must be a language tag such as en or de")
	}
	return tag.String(), nil
}

func (s *Service) ListEditions(ctx context.Context) ([]map[string]any, error) {
	editions, err := s.store.ListEditions(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(editions))
	for _, item := range editions {
		items = append(items, editionView(item))
	}
	return items, nil
}

func (s *Service) CreateEdition(ctx context.Context, input NewEdition) (map[string]any, error) {
	name, err := requiredText("name", input.Name)
	if err != nil {
		return nil, err
	}
	lang, err := normalizeLang(input.Lang)
	if err != nil {
		return nil, err
	}

	item := store.Edition{
		ID:          util.NewID("ed"),
		Name:        name,
		Lang:        lang,
		Description: strings.TrimSpace(input.Description),
	}
	if err := s.store.InsertEdition(ctx, item); err != nil {
		return nil, err
	}
	created, err := s.store.GetEdition(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	return editionView(created), nil
}

func (s *Service) UpdateEdition(ctx context.Context, editionID string, patch EditionPatch) (map[string]any, error) {
	item, err := s.store.GetEdition(ctx, editionID)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		if item.Name, err = requiredText("name", *patch.Name); err != nil {
			return nil, err
		}
	}
	langChanged := false
	if patch.Lang != nil {
		lang, err := normalizeLang(*patch.Lang)
		if err != nil {
			return nil, err
		}
		langChanged = lang != item.Lang
		item.Lang = lang
	}
	if patch.Description != nil {
		item.Description = strings.TrimSpace(*patch.Description)
	}

	if err := s.store.UpdateEdition(ctx, item); err != nil {
		return nil, err
	}
	s.invalidate()
	if langChanged {
		s.reindexEdition(ctx, item)
	}
	return editionView(item), nil
}

// reindexEdition pushes the new language of an edition to its articles and
// cases in the search index.
func (s *Service) reindexEdition(ctx context.Context, edition store.Edition) {
	articles, err := s.store.ListArticlesByEdition(ctx, edition.ID)
	if err != nil {
		log.Printf("search: list articles of edition %s: %v", edition.ID, err)
		return
	}
	ids := make([]string, 0, len(articles))
	for _, article := range articles {
		s.search.IndexArticle(article, edition.Lang)
		ids = append(ids, article.ID)
	}
	cases, err := s.store.ListCasesByArticles(ctx, ids)
	if err != nil {
		log.Printf("search: list cases of edition %s: %v", edition.ID, err)
		return
	}
	s.search.IndexCases(cases)
}

// UpdateEditionPicture stores a new PNG or JPEG picture for the edition and
// removes the object of the picture it replaces.
func (s *Service) UpdateEditionPicture(ctx context.Context, editionID, fileName string, r io.Reader, size int64) (map[string]any, error) {
	if s.pictures == nil {
		return nil, domainError(http.StatusServiceUnavailable, "PICTURES_UNAVAILABLE", "Picture storage is not configured", nil)
	}
	if _, err := s.store.GetEdition(ctx, editionID); err != nil {
		return nil, err
	}

	picture, err := s.pictures.Upload(ctx, fileName, r, size)
	switch {
	case errors.Is(err, blob.ErrUnsupportedType):
		return nil, domainError(http.StatusUnsupportedMediaType, "UNSUPPORTED_PICTURE", err.Error(), nil)
	case errors.Is(err, blob.ErrTooLarge):
		return nil, domainError(http.StatusRequestEntityTooLarge, "PICTURE_TOO_LARGE", err.Error(), map[string]any{"maxBytes": s.cfg.MaxPictureBytes})
	case errors.Is(err, blob.ErrEmpty):
		return nil, validationError("picture", "is empty")
	case err != nil:
		return nil, err
	}

	previous, err := s.store.SetEditionPicture(ctx, editionID, picture.Key, picture.URL)
	if err != nil {
		if removeErr := s.pictures.Remove(ctx, picture.Key); removeErr != nil {
			log.Printf("blob: remove orphaned picture %s: %v", picture.Key, removeErr)
		}
		return nil, err
	}
	if previous != "" && previous != picture.Key {
		if err := s.pictures.Remove(ctx, previous); err != nil {
			log.Printf("blob: remove replaced picture %s: %v", previous, err)
		}
	}

	updated, err := s.store.GetEdition(ctx, editionID)
	if err != nil {
		return nil, err
	}
	return editionView(updated), nil
}

// DeleteEdition removes the edition together with its articles and their
// cases, then cleans up search documents, revision histories and the picture.
func (s *Service) DeleteEdition(ctx context.Context, editionID string) error {
	removal, err := s.store.DeleteEdition(ctx, editionID)
	if err != nil {
		return err
	}
	s.invalidate()
	s.cleanup(ctx, removal)
	return nil
}

func (s *Service) cleanup(ctx context.Context, removal store.Removal) {
	s.search.Remove(removal.ArticleIDs, removal.CaseIDs)
	for _, articleID := range removal.ArticleIDs {
		if err := s.revisions.Remove(articleID); err != nil {
			log.Printf("revisions: remove history of %s: %v", articleID, err)
		}
	}
	if removal.PictureKey != "" && s.pictures != nil {
		if err := s.pictures.Remove(ctx, removal.PictureKey); err != nil {
			log.Printf("blob: remove picture %s: %v", removal.PictureKey, err)
		}
	}
}
