package search

import (
	"context"
	"log"

	"corpora/api/internal/store"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
// Either backend may be nil.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS. Backend
// failures degrade to an empty response.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}
	if s.pgfts == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}

	results, total, err := s.pgfts.Search(ctx, q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

func (s *Service) available() bool {
	return s != nil && s.meili != nil && s.meili.Healthy()
}

// IndexArticle indexes an article (fire-and-forget to Meilisearch).
func (s *Service) IndexArticle(article store.Article, lang string) {
	if !s.available() {
		return
	}
	record := ArticleFromStore(article, lang)
	go func() {
		if err := s.meili.IndexArticles([]ArticleRecord{record}); err != nil {
			log.Printf("search: index article %s: %v", record.ID, err)
		}
	}()
}

// IndexCase indexes a metaphor case (fire-and-forget to Meilisearch).
func (s *Service) IndexCase(item store.MetaphorCase) {
	if !s.available() {
		return
	}
	record := CaseFromStore(item)
	go func() {
		if err := s.meili.IndexCases([]CaseRecord{record}); err != nil {
			log.Printf("search: index case %s: %v", record.ID, err)
		}
	}()
}

// IndexCases re-indexes cases whose denormalised fields changed, e.g. after a
// model rename.
func (s *Service) IndexCases(items []store.MetaphorCase) {
	if !s.available() || len(items) == 0 {
		return
	}
	records := make([]CaseRecord, 0, len(items))
	for _, item := range items {
		records = append(records, CaseFromStore(item))
	}
	go func() {
		if err := s.meili.IndexCases(records); err != nil {
			log.Printf("search: index %d cases: %v", len(records), err)
		}
	}()
}

// Remove drops articles and cases from the index (fire-and-forget).
func (s *Service) Remove(articleIDs, caseIDs []string) {
	if !s.available() || len(articleIDs)+len(caseIDs) == 0 {
		return
	}
	go func() {
		for _, id := range articleIDs {
			if err := s.meili.DeleteArticle(id); err != nil {
				log.Printf("search: delete article %s: %v", id, err)
			}
		}
		for _, id := range caseIDs {
			if err := s.meili.DeleteCase(id); err != nil {
				log.Printf("search: delete case %s: %v", id, err)
			}
		}
	}()
}

// ReindexAllFromPG pushes every article and case from PostgreSQL into
// Meilisearch. It returns the number of records sent.
func (s *Service) ReindexAllFromPG(ctx context.Context) (int, error) {
	if !s.available() || s.pgfts == nil {
		return 0, nil
	}
	articles, cases, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.meili.IndexArticles(articles); err != nil {
		return 0, err
	}
	if err := s.meili.IndexCases(cases); err != nil {
		return len(articles), err
	}
	return len(articles) + len(cases), nil
}

func ArticleFromStore(article store.Article, lang string) ArticleRecord {
	return ArticleRecord{
		ID:              article.ID,
		Heading:         article.Heading,
		Body:            PlainText(article.Body),
		EditionID:       article.EditionID,
		Lang:            lang,
		PublicationDate: article.PublicationDate.Format("2006-01-02"),
		FullyAnnotated:  article.FullyAnnotated,
	}
}

func CaseFromStore(item store.MetaphorCase) CaseRecord {
	return CaseRecord{
		ID:        item.ID,
		Text:      item.Text,
		Comment:   item.Comment,
		ModelName: item.ModelName,
		ArticleID: item.ArticleID,
		EditionID: item.EditionID,
		Lang:      item.Lang,
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
