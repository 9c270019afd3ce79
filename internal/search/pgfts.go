package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS searches the generated tsvector columns of articles and metaphor_cases.
// Corpora are multilingual, so the 'simple' configuration is used throughout.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true: without Postgres nothing else works either.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across articles and metaphor_cases using
// plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('simple', $1)"
	args := []any{q.Text}
	editionFilter := ""
	if q.FilterEditionID != "" {
		editionFilter = " AND a.edition_id = $2"
		args = append(args, q.FilterEditionID)
	}

	var subQueries []string
	if q.FilterType == "" || q.FilterType == ResultArticle {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'article'::text AS type, a.id, a.heading AS title,
				ts_headline('simple', regexp_replace(a.body, '<[^>]+>', ' ', 'g'), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				a.id AS article_id, a.edition_id, e.lang,
				ts_rank(a.fts, %s) AS rank
			FROM articles a
			JOIN editions e ON e.id = a.edition_id
			WHERE a.fts @@ %s%s`, tsQuery, tsQuery, tsQuery, editionFilter))
	}
	if q.FilterType == "" || q.FilterType == ResultCase {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'case'::text AS type, mc.id, mc.text AS title,
				ts_headline('simple', mc.comment, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				mc.article_id, a.edition_id, e.lang,
				ts_rank(mc.fts, %s) AS rank
			FROM metaphor_cases mc
			JOIN articles a ON a.id = mc.article_id
			JOIN editions e ON e.id = a.edition_id
			WHERE mc.fts @@ %s%s`, tsQuery, tsQuery, tsQuery, editionFilter))
	}
	union := strings.Join(subQueries, " UNION ALL ")

	var total int
	if err := p.db.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM (%s) sub", union), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`SELECT type, id, title, snippet, article_id, edition_id, lang
		FROM (%s) sub
		ORDER BY rank DESC, id
		LIMIT %d OFFSET %d`, union, limit, offset), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.ArticleID, &r.EditionID, &r.Lang); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ArticleRecord, []CaseRecord, error) {
	articleRows, err := p.db.QueryContext(ctx, `
		SELECT a.id, a.heading, a.body, a.edition_id, e.lang, to_char(a.publication_date, 'YYYY-MM-DD'), a.fully_annotated
		FROM articles a
		JOIN editions e ON e.id = a.edition_id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load articles: %w", err)
	}
	defer articleRows.Close()

	articles := make([]ArticleRecord, 0)
	for articleRows.Next() {
		var a ArticleRecord
		if err := articleRows.Scan(&a.ID, &a.Heading, &a.Body, &a.EditionID, &a.Lang, &a.PublicationDate, &a.FullyAnnotated); err != nil {
			return nil, nil, fmt.Errorf("scan article: %w", err)
		}
		a.Body = PlainText(a.Body)
		articles = append(articles, a)
	}
	if err := articleRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate articles: %w", err)
	}

	caseRows, err := p.db.QueryContext(ctx, `
		SELECT mc.id, mc.text, mc.comment, mm.name, mc.article_id, a.edition_id, e.lang
		FROM metaphor_cases mc
		JOIN metaphor_models mm ON mm.id = mc.model_id
		JOIN articles a ON a.id = mc.article_id
		JOIN editions e ON e.id = a.edition_id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load metaphor cases: %w", err)
	}
	defer caseRows.Close()

	cases := make([]CaseRecord, 0)
	for caseRows.Next() {
		var c CaseRecord
		if err := caseRows.Scan(&c.ID, &c.Text, &c.Comment, &c.ModelName, &c.ArticleID, &c.EditionID, &c.Lang); err != nil {
			return nil, nil, fmt.Errorf("scan metaphor case: %w", err)
		}
		cases = append(cases, c)
	}
	if err := caseRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate metaphor cases: %w", err)
	}

	return articles, cases, nil
}
