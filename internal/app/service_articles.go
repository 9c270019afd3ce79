package app

import (
	"context"
	"errors"
	"html/template"
	"log"
	"net/http"
	"strings"
	"time"

	"corpora/api/internal/annotate"
	"corpora/api/internal/export"
	"corpora/api/internal/revisions"
	"corpora/api/internal/store"
	"corpora/api/internal/util"
)

const historyLimit = 100

var allowedTones = map[string]struct{}{
	"positive": {},
	"negative": {},
	"neutral":  {},
}

type NewArticle struct {
	EditionID       string `json:"editionId"`
	Heading         string `json:"heading"`
	Body            string `json:"body"`
	URL             string `json:"url"`
	PublicationDate string `json:"publication_date"`
}

// ArticlePatch changes the non-nil content fields of an article. Tone, comment
// and the completeness flag have their own operations.
type ArticlePatch struct {
	Heading         *string `json:"heading"`
	Body            *string `json:"body"`
	URL             *string `json:"url"`
	PublicationDate *string `json:"publication_date"`
}

func parseDate(field, value string) (time.Time, error) {
	value, err := requiredText(field, value)
	if err != nil {
		return time.Time{}, err
	}
	for _, layout := range []string{dateLayout, time.RFC3339} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, validationError(field, "must be a date (YYYY-MM-DD)")
}

// canonicalText normalises a heading or body before it is stored. All case
// offsets refer to this form.
func canonicalText(field, value string) (string, error) {
	value = annotate.Canonicalize(value)
	if strings.TrimSpace(value) == "" {
		return "", validationError(field, "is required")
	}
	return value, nil
}

func (s *Service) ListArticles(ctx context.Context) ([]map[string]any, error) {
	articles, err := s.store.ListArticles(ctx)
	if err != nil {
		return nil, err
	}
	return s.articleViews(ctx, articles)
}

func (s *Service) ListArticlesByEdition(ctx context.Context, editionID string) ([]map[string]any, error) {
	if _, err := s.store.GetEdition(ctx, editionID); err != nil {
		return nil, err
	}
	articles, err := s.store.ListArticlesByEdition(ctx, editionID)
	if err != nil {
		return nil, err
	}
	return s.articleViews(ctx, articles)
}

// articleViews populates every article with its edition and cases using one
// query per collection.
func (s *Service) articleViews(ctx context.Context, articles []store.Article) ([]map[string]any, error) {
	editions, err := s.store.ListEditions(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]store.Edition, len(editions))
	for _, edition := range editions {
		byID[edition.ID] = edition
	}

	ids := make([]string, 0, len(articles))
	for _, article := range articles {
		ids = append(ids, article.ID)
	}
	cases, err := s.store.ListCasesByArticles(ctx, ids)
	if err != nil {
		return nil, err
	}
	casesByArticle := make(map[string][]store.MetaphorCase, len(articles))
	for _, c := range cases {
		casesByArticle[c.ArticleID] = append(casesByArticle[c.ArticleID], c)
	}

	items := make([]map[string]any, 0, len(articles))
	for _, article := range articles {
		items = append(items, articleView(article, byID[article.EditionID], casesByArticle[article.ID]))
	}
	return items, nil
}

func (s *Service) loadArticle(ctx context.Context, articleID string) (store.Article, store.Edition, []store.MetaphorCase, error) {
	article, err := s.store.GetArticle(ctx, articleID)
	if err != nil {
		return store.Article{}, store.Edition{}, nil, err
	}
	edition, err := s.store.GetEdition(ctx, article.EditionID)
	if err != nil {
		return store.Article{}, store.Edition{}, nil, err
	}
	cases, err := s.store.ListCasesByArticle(ctx, articleID)
	if err != nil {
		return store.Article{}, store.Edition{}, nil, err
	}
	return article, edition, cases, nil
}

func (s *Service) GetArticle(ctx context.Context, articleID string) (map[string]any, error) {
	article, edition, cases, err := s.loadArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}
	return articleView(article, edition, cases), nil
}

func (s *Service) CreateArticle(ctx context.Context, author string, input NewArticle) (map[string]any, error) {
	editionID, err := requiredText("editionId", input.EditionID)
	if err != nil {
		return nil, err
	}
	heading, err := canonicalText("heading", input.Heading)
	if err != nil {
		return nil, err
	}
	body, err := canonicalText("body", input.Body)
	if err != nil {
		return nil, err
	}
	url, err := requiredText("url", input.URL)
	if err != nil {
		return nil, err
	}
	published, err := parseDate("publication_date", input.PublicationDate)
	if err != nil {
		return nil, err
	}
	edition, err := s.store.GetEdition(ctx, editionID)
	if err != nil {
		return nil, err
	}

	article := store.Article{
		ID:              util.NewID("ar"),
		EditionID:       edition.ID,
		Heading:         heading,
		Body:            body,
		URL:             url,
		PublicationDate: published,
	}
	if err := s.store.InsertArticle(ctx, article); err != nil {
		return nil, err
	}
	created, err := s.store.GetArticle(ctx, article.ID)
	if err != nil {
		return nil, err
	}

	s.commitRevision(created, author, "Create article")
	s.search.IndexArticle(created, edition.Lang)
	s.invalidate()
	return articleView(created, edition, nil), nil
}

// UpdateArticleContent applies a content patch. A heading or body that already
// carries cases is locked: changing it would invalidate every stored range.
func (s *Service) UpdateArticleContent(ctx context.Context, articleID, author string, patch ArticlePatch) (map[string]any, error) {
	var update store.ArticleUpdate
	if patch.Heading != nil {
		heading, err := canonicalText("heading", *patch.Heading)
		if err != nil {
			return nil, err
		}
		update.Heading = &heading
	}
	if patch.Body != nil {
		body, err := canonicalText("body", *patch.Body)
		if err != nil {
			return nil, err
		}
		update.Body = &body
	}
	if patch.URL != nil {
		url, err := requiredText("url", *patch.URL)
		if err != nil {
			return nil, err
		}
		update.URL = &url
	}
	if patch.PublicationDate != nil {
		published, err := parseDate("publication_date", *patch.PublicationDate)
		if err != nil {
			return nil, err
		}
		update.PublicationDate = &published
	}

	var changed []string
	updated, err := s.store.UpdateArticleContent(ctx, articleID, update, func(current store.Article, cases []store.MetaphorCase) error {
		changed = changed[:0]
		if update.Heading != nil && *update.Heading != current.Heading {
			changed = append(changed, string(annotate.LocationHeading))
		}
		if update.Body != nil && *update.Body != current.Body {
			changed = append(changed, string(annotate.LocationBody))
		}
		for _, location := range changed {
			if ids := caseIDsAt(cases, location); len(ids) > 0 {
				return conflictError("ANNOTATED_CONTENT_LOCKED",
					"The "+location+" has metaphor cases and can no longer be edited",
					map[string]any{"location": location, "caseIds": ids})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	edition, err := s.store.GetEdition(ctx, updated.EditionID)
	if err != nil {
		return nil, err
	}
	cases, err := s.store.ListCasesByArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}

	if len(changed) > 0 {
		s.commitRevision(updated, author, "Update "+strings.Join(changed, " and "))
	}
	s.search.IndexArticle(updated, edition.Lang)
	s.invalidate()
	return articleView(updated, edition, cases), nil
}

func caseIDsAt(cases []store.MetaphorCase, location string) []string {
	ids := make([]string, 0)
	for _, c := range cases {
		if c.Location == location {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// commitRevision records the canonical text in the article history. The
// database is the source of truth, so a failed commit is only logged.
func (s *Service) commitRevision(article store.Article, author, message string) {
	_, err := s.revisions.Commit(article.ID, revisions.Content{Heading: article.Heading, Body: article.Body}, author, message)
	if err != nil {
		log.Printf("revisions: commit %s: %v", article.ID, err)
	}
}

func (s *Service) ToggleFullyAnnotated(ctx context.Context, articleID string) (map[string]any, error) {
	article, err := s.store.ToggleFullyAnnotated(ctx, articleID)
	if err != nil {
		return nil, err
	}
	return s.articleUpdated(ctx, article)
}

func (s *Service) UpdateTone(ctx context.Context, articleID, tone string) (map[string]any, error) {
	tone = strings.ToLower(strings.TrimSpace(tone))
	if _, ok := allowedTones[tone]; !ok {
		return nil, validationError("tone", "must be positive, negative or neutral")
	}
	article, err := s.store.UpdateArticleTone(ctx, articleID, tone)
	if err != nil {
		return nil, err
	}
	return s.articleUpdated(ctx, article)
}

func (s *Service) UpdateComment(ctx context.Context, articleID, comment string) (map[string]any, error) {
	article, err := s.store.UpdateArticleComment(ctx, articleID, strings.TrimSpace(comment))
	if err != nil {
		return nil, err
	}
	return s.articleUpdated(ctx, article)
}

func (s *Service) articleUpdated(ctx context.Context, article store.Article) (map[string]any, error) {
	s.invalidate()
	edition, err := s.store.GetEdition(ctx, article.EditionID)
	if err != nil {
		return nil, err
	}
	cases, err := s.store.ListCasesByArticle(ctx, article.ID)
	if err != nil {
		return nil, err
	}
	s.search.IndexArticle(article, edition.Lang)
	return articleView(article, edition, cases), nil
}

// DeleteArticle removes the article and its cases.
func (s *Service) DeleteArticle(ctx context.Context, articleID string) error {
	removal, err := s.store.DeleteArticle(ctx, articleID)
	if err != nil {
		return err
	}
	s.invalidate()
	s.cleanup(ctx, removal)
	return nil
}

func (s *Service) ArticleHistory(ctx context.Context, articleID string) (map[string]any, error) {
	if _, err := s.store.GetArticle(ctx, articleID); err != nil {
		return nil, err
	}
	commits, err := s.revisions.History(articleID, historyLimit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(commits))
	for _, commit := range commits {
		items = append(items, commitView(commit))
	}
	return map[string]any{"articleId": articleID, "revisions": items}, nil
}

func (s *Service) ArticleRevision(ctx context.Context, articleID, hash string) (map[string]any, error) {
	if _, err := s.store.GetArticle(ctx, articleID); err != nil {
		return nil, err
	}
	content, commit, err := s.revisions.Content(articleID, hash)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "REVISION_NOT_FOUND", "Revision not found", map[string]any{"hash": hash})
	}
	return map[string]any{
		"articleId": articleID,
		"heading":   content.Heading,
		"body":      content.Body,
		"revision":  commitView(commit),
	}, nil
}

// renderArticle runs the renderer over both fields with the complete case
// list of the article.
func renderArticle(article store.Article, cases []store.MetaphorCase) (annotate.Rendered, annotate.Rendered) {
	marks := marksFor(cases)
	heading := annotate.RenderReport(article.Heading, annotate.LocationHeading, marks)
	body := annotate.RenderReport(article.Body, annotate.LocationBody, marks)
	for _, skipped := range append(heading.Skipped, body.Skipped...) {
		log.Printf("annotate: article %s skipped case %s %v: %s", article.ID, skipped.ID, skipped.Range, skipped.Reason)
	}
	return heading, body
}

func (s *Service) RenderArticle(ctx context.Context, articleID string) (map[string]any, error) {
	article, edition, cases, err := s.loadArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}
	heading, body := renderArticle(article, cases)
	skipped := make([]annotate.Skipped, 0, len(heading.Skipped)+len(body.Skipped))
	skipped = append(skipped, heading.Skipped...)
	skipped = append(skipped, body.Skipped...)
	return map[string]any{
		"article": articleView(article, edition, cases),
		"heading": heading.HTML,
		"body":    body.HTML,
		"skipped": skipped,
	}, nil
}

func (s *Service) ExportArticle(ctx context.Context, articleID string, format export.Format) (*export.Result, error) {
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not configured", nil)
	}
	article, edition, cases, err := s.loadArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}
	heading, body := renderArticle(article, cases)

	doc := export.Document{
		ArticleID:       article.ID,
		Heading:         template.HTML(heading.HTML),
		Body:            template.HTML(body.HTML),
		EditionName:     edition.Name,
		Lang:            edition.Lang,
		URL:             article.URL,
		PublicationDate: article.PublicationDate,
		Tone:            article.Tone,
		Comment:         article.Comment,
		FullyAnnotated:  article.FullyAnnotated,
		Cases:           make([]export.Case, 0, len(cases)),
	}
	for _, c := range cases {
		doc.Cases = append(doc.Cases, export.Case{
			ID:       c.ID,
			Location: c.Location,
			Text:     c.Text,
			Model:    c.ModelName,
			Comment:  c.Comment,
		})
	}

	result, err := s.exporter.Export(ctx, doc, format)
	switch {
	case errors.Is(err, export.ErrUnsupportedFormat):
		return nil, validationError("format", "must be html, pdf or docx")
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error(), map[string]any{"format": format})
	case err != nil:
		return nil, err
	}
	return result, nil
}
