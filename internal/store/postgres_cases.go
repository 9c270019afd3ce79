package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const caseSelect = `
	SELECT mc.id, mc.article_id, mc.location, mc.range_start, mc.range_end, mc.text, mc.comment,
		mc.model_id, mm.name, a.edition_id, e.name, e.lang, mc.created_at, mc.updated_at
	FROM metaphor_cases mc
	JOIN metaphor_models mm ON mm.id = mc.model_id
	JOIN articles a ON a.id = mc.article_id
	JOIN editions e ON e.id = a.edition_id`

func scanCase(row scanner) (MetaphorCase, error) {
	var item MetaphorCase
	if err := row.Scan(
		&item.ID,
		&item.ArticleID,
		&item.Location,
		&item.RangeStart,
		&item.RangeEnd,
		&item.Text,
		&item.Comment,
		&item.ModelID,
		&item.ModelName,
		&item.EditionID,
		&item.EditionName,
		&item.Lang,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return MetaphorCase{}, err
	}
	return item, nil
}

func listCases(ctx context.Context, q queryer, query string, args ...any) ([]MetaphorCase, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list metaphor cases: %w", err)
	}
	defer rows.Close()

	items := make([]MetaphorCase, 0)
	for rows.Next() {
		item, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan metaphor case: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metaphor cases: %w", err)
	}
	return items, nil
}

func getCase(ctx context.Context, q queryer, caseID string) (MetaphorCase, error) {
	return scanCase(q.QueryRowContext(ctx, caseSelect+` WHERE mc.id=$1`, caseID))
}

func (s *PostgresStore) GetCase(ctx context.Context, caseID string) (MetaphorCase, error) {
	return getCase(ctx, s.db, caseID)
}

// ListCasesByArticle returns the complete case list of one article, ordered by
// location and range start.
func (s *PostgresStore) ListCasesByArticle(ctx context.Context, articleID string) ([]MetaphorCase, error) {
	return listCases(ctx, s.db, caseSelect+` WHERE mc.article_id=$1 ORDER BY mc.location, mc.range_start`, articleID)
}

func (s *PostgresStore) ListCasesByArticles(ctx context.Context, articleIDs []string) ([]MetaphorCase, error) {
	if len(articleIDs) == 0 {
		return []MetaphorCase{}, nil
	}
	return listCases(ctx, s.db, caseSelect+` WHERE mc.article_id = ANY($1) ORDER BY mc.article_id, mc.location, mc.range_start`, articleIDs)
}

func (s *PostgresStore) ListCasesByModel(ctx context.Context, modelID string) ([]MetaphorCase, error) {
	return listCases(ctx, s.db, caseSelect+` WHERE mc.model_id=$1 ORDER BY e.lang, mc.created_at`, modelID)
}

// CreateCase persists a case under a row lock on its article. check sees the
// locked article and its complete case list and may veto the insert. When
// newModel is set the model is resolved by name, created if absent, and its id
// replaces item.ModelID.
func (s *PostgresStore) CreateCase(ctx context.Context, item MetaphorCase, newModel *MetaphorModel, check func(Article, []MetaphorCase) error) (MetaphorCase, error) {
	var created MetaphorCase
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		article, cases, err := lockArticle(ctx, tx, item.ArticleID)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(article, cases); err != nil {
				return err
			}
		}
		for _, existing := range cases {
			if existing.Location == item.Location && existing.RangeStart < item.RangeEnd && item.RangeStart < existing.RangeEnd {
				return ErrCaseOverlap
			}
		}

		if newModel != nil {
			model, err := ensureModel(ctx, tx, *newModel)
			if err != nil {
				return err
			}
			item.ModelID = model.ID
		} else if err := modelExists(ctx, tx, item.ModelID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO metaphor_cases (id, article_id, location, range_start, range_end, text, comment, model_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, item.ID, item.ArticleID, item.Location, item.RangeStart, item.RangeEnd, item.Text, item.Comment, item.ModelID); err != nil {
			return fmt.Errorf("insert metaphor case: %w", err)
		}
		created, err = getCase(ctx, tx, item.ID)
		return err
	})
	if err != nil {
		return MetaphorCase{}, err
	}
	return created, nil
}

// UpdateCase changes text, comment and model only. Location and range are not
// part of CaseUpdate and a database trigger rejects any attempt to change them.
func (s *PostgresStore) UpdateCase(ctx context.Context, caseID string, update CaseUpdate, newModel *MetaphorModel) (MetaphorCase, error) {
	var updated MetaphorCase
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var id string
		if err := tx.QueryRowContext(ctx, `SELECT id FROM metaphor_cases WHERE id=$1 FOR UPDATE`, caseID).Scan(&id); err != nil {
			return err
		}
		if newModel != nil {
			model, err := ensureModel(ctx, tx, *newModel)
			if err != nil {
				return err
			}
			update.ModelID = &model.ID
		} else if update.ModelID != nil {
			if err := modelExists(ctx, tx, *update.ModelID); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE metaphor_cases
			SET text = COALESCE($2, text),
				comment = COALESCE($3, comment),
				model_id = COALESCE($4, model_id),
				updated_at = NOW()
			WHERE id=$1
		`, caseID, update.Text, update.Comment, update.ModelID); err != nil {
			return fmt.Errorf("update metaphor case: %w", err)
		}
		var err error
		updated, err = getCase(ctx, tx, caseID)
		return err
	})
	if err != nil {
		return MetaphorCase{}, err
	}
	return updated, nil
}

// DeleteCase removes a case that belongs to articleID and returns it.
func (s *PostgresStore) DeleteCase(ctx context.Context, articleID, caseID string) (MetaphorCase, error) {
	var deleted MetaphorCase
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var id string
		if err := tx.QueryRowContext(ctx, `SELECT id FROM articles WHERE id=$1 FOR UPDATE`, articleID).Scan(&id); err != nil {
			return err
		}
		item, err := scanCase(tx.QueryRowContext(ctx, caseSelect+` WHERE mc.id=$1 AND mc.article_id=$2`, caseID, articleID))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM metaphor_cases WHERE id=$1`, caseID); err != nil {
			return fmt.Errorf("delete metaphor case: %w", err)
		}
		deleted = item
		return nil
	})
	if err != nil {
		return MetaphorCase{}, err
	}
	return deleted, nil
}

// Metaphor models

const modelSelect = `
	SELECT mm.id, mm.name, mm.comment, COUNT(mc.id), mm.created_at, mm.updated_at
	FROM metaphor_models mm
	LEFT JOIN metaphor_cases mc ON mc.model_id = mm.id`

func scanModel(row scanner) (MetaphorModel, error) {
	var item MetaphorModel
	if err := row.Scan(&item.ID, &item.Name, &item.Comment, &item.CaseCount, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return MetaphorModel{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListModels(ctx context.Context) ([]MetaphorModel, error) {
	rows, err := s.db.QueryContext(ctx, modelSelect+` GROUP BY mm.id ORDER BY LOWER(mm.name)`)
	if err != nil {
		return nil, fmt.Errorf("list metaphor models: %w", err)
	}
	defer rows.Close()

	items := make([]MetaphorModel, 0)
	for rows.Next() {
		item, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan metaphor model: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metaphor models: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetModel(ctx context.Context, modelID string) (MetaphorModel, error) {
	return scanModel(s.db.QueryRowContext(ctx, modelSelect+` WHERE mm.id=$1 GROUP BY mm.id`, modelID))
}

func (s *PostgresStore) InsertModel(ctx context.Context, item MetaphorModel) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metaphor_models (id, name, comment) VALUES ($1, $2, $3)
	`, item.ID, item.Name, item.Comment)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert metaphor model: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateModel(ctx context.Context, modelID, name, comment string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE metaphor_models SET name=$2, comment=$3, updated_at=NOW() WHERE id=$1
	`, modelID, name, comment)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("update metaphor model: %w", err)
	}
	return requireAffected(result, "update metaphor model")
}

// DeleteModel refuses with ErrModelInUse while any case references the model.
func (s *PostgresStore) DeleteModel(ctx context.Context, modelID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var id string
		if err := tx.QueryRowContext(ctx, `SELECT id FROM metaphor_models WHERE id=$1 FOR UPDATE`, modelID).Scan(&id); err != nil {
			return err
		}
		var inUse bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM metaphor_cases WHERE model_id=$1)`, modelID).Scan(&inUse); err != nil {
			return fmt.Errorf("check metaphor model usage: %w", err)
		}
		if inUse {
			return ErrModelInUse
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM metaphor_models WHERE id=$1`, modelID); err != nil {
			return fmt.Errorf("delete metaphor model: %w", err)
		}
		return nil
	})
}

// ensureModel returns the model named like item (case-insensitively), creating
// it from item when it does not exist yet.
func ensureModel(ctx context.Context, tx *sql.Tx, item MetaphorModel) (MetaphorModel, error) {
	name := strings.TrimSpace(item.Name)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO metaphor_models (id, name, comment)
		VALUES ($1, $2, $3)
		ON CONFLICT ((LOWER(name))) DO NOTHING
	`, item.ID, name, item.Comment); err != nil {
		return MetaphorModel{}, fmt.Errorf("ensure metaphor model: %w", err)
	}
	model, err := scanModel(tx.QueryRowContext(ctx, modelSelect+` WHERE LOWER(mm.name) = LOWER($1) GROUP BY mm.id`, name))
	if err != nil {
		return MetaphorModel{}, fmt.Errorf("read metaphor model: %w", err)
	}
	return model, nil
}

func modelExists(ctx context.Context, q queryer, modelID string) error {
	var id string
	err := q.QueryRowContext(ctx, `SELECT id FROM metaphor_models WHERE id=$1`, modelID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return sql.ErrNoRows
	}
	if err != nil {
		return fmt.Errorf("lookup metaphor model: %w", err)
	}
	return nil
}
