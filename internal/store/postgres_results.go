package store

import (
	"context"
	"fmt"
)

// Results only ever look at fully annotated articles.

func (s *PostgresStore) ToneDistribution(ctx context.Context) ([]ToneCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.lang, a.tone, COUNT(*)
		FROM articles a
		JOIN editions e ON e.id = a.edition_id
		WHERE a.fully_annotated
		GROUP BY e.lang, a.tone
		ORDER BY e.lang, a.tone
	`)
	if err != nil {
		return nil, fmt.Errorf("tone distribution: %w", err)
	}
	defer rows.Close()

	items := make([]ToneCount, 0)
	for rows.Next() {
		var item ToneCount
		if err := rows.Scan(&item.Lang, &item.Tone, &item.Count); err != nil {
			return nil, fmt.Errorf("scan tone count: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tone counts: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) MonthlyVolume(ctx context.Context) ([]MonthlyCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.lang, date_trunc('month', a.publication_date)::date AS month, COUNT(*)
		FROM articles a
		JOIN editions e ON e.id = a.edition_id
		WHERE a.fully_annotated
		GROUP BY e.lang, month
		ORDER BY month, e.lang
	`)
	if err != nil {
		return nil, fmt.Errorf("monthly volume: %w", err)
	}
	defer rows.Close()

	items := make([]MonthlyCount, 0)
	for rows.Next() {
		var item MonthlyCount
		if err := rows.Scan(&item.Lang, &item.Month, &item.Count); err != nil {
			return nil, fmt.Errorf("scan monthly count: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate monthly counts: %w", err)
	}
	return items, nil
}

// ModelFrequency counts cases per model, most frequent first.
func (s *PostgresStore) ModelFrequency(ctx context.Context) ([]ModelFrequency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mm.id, mm.name, COUNT(mc.id) AS cases
		FROM metaphor_cases mc
		JOIN metaphor_models mm ON mm.id = mc.model_id
		JOIN articles a ON a.id = mc.article_id
		WHERE a.fully_annotated
		GROUP BY mm.id, mm.name
		ORDER BY cases DESC, mm.name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("model frequency: %w", err)
	}
	defer rows.Close()

	items := make([]ModelFrequency, 0)
	for rows.Next() {
		var item ModelFrequency
		if err := rows.Scan(&item.ModelID, &item.ModelName, &item.Count); err != nil {
			return nil, fmt.Errorf("scan model frequency: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate model frequency: %w", err)
	}
	return items, nil
}
