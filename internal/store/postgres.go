package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrCaseOverlap is returned when a new case range intersects an existing
	// case at the same location of the same article.
	ErrCaseOverlap = errors.New("metaphor case overlaps an existing case")
	// ErrModelInUse is returned when deleting a model still referenced by cases.
	ErrModelInUse = errors.New("metaphor model is referenced by cases")
	// ErrDuplicate is returned for unique constraint violations.
	ErrDuplicate = errors.New("duplicate value")
)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withTx runs fn in a transaction, committing only when fn returns nil.
func (s *PostgresStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func requireAffected(result sql.Result, what string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", what, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Users

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, created_at, updated_at
		FROM users
		WHERE LOWER(username) = LOWER($1)
	`, username))
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, created_at, updated_at
		FROM users
		WHERE id = $1
	`, userID))
}

func scanUser(row scanner) (User, error) {
	var user User
	if err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, role)
		VALUES ($1, $2, $3, $4)
	`, user.ID, user.Username, user.PasswordHash, user.Role)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserCredentials(ctx context.Context, userID, passwordHash, role string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash=$2, role=$3, updated_at=NOW() WHERE id=$1
	`, userID, passwordHash, role)
	if err != nil {
		return fmt.Errorf("update user credentials: %w", err)
	}
	return requireAffected(result, "update user credentials")
}

// Editions

const editionColumns = `id, lang, name, description, picture_key, picture_url, created_at, updated_at`

func scanEdition(row scanner) (Edition, error) {
	var item Edition
	if err := row.Scan(&item.ID, &item.Lang, &item.Name, &item.Description, &item.PictureKey, &item.PictureURL, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return Edition{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListEditions(ctx context.Context) ([]Edition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+editionColumns+` FROM editions ORDER BY lang ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list editions: %w", err)
	}
	defer rows.Close()

	items := make([]Edition, 0)
	for rows.Next() {
		item, err := scanEdition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan edition: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate editions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetEdition(ctx context.Context, editionID string) (Edition, error) {
	return scanEdition(s.db.QueryRowContext(ctx, `SELECT `+editionColumns+` FROM editions WHERE id=$1`, editionID))
}

func (s *PostgresStore) InsertEdition(ctx context.Context, item Edition) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO editions (id, lang, name, description)
		VALUES ($1, $2, $3, $4)
	`, item.ID, item.Lang, item.Name, item.Description)
	if err != nil {
		return fmt.Errorf("insert edition: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateEdition(ctx context.Context, item Edition) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE editions
		SET lang=$2, name=$3, description=$4, updated_at=NOW()
		WHERE id=$1
	`, item.ID, item.Lang, item.Name, item.Description)
	if err != nil {
		return fmt.Errorf("update edition: %w", err)
	}
	return requireAffected(result, "update edition")
}

// SetEditionPicture stores the new picture and returns the key of the one it
// replaced, if any.
func (s *PostgresStore) SetEditionPicture(ctx context.Context, editionID, key, url string) (string, error) {
	var previous string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT picture_key FROM editions WHERE id=$1 FOR UPDATE`, editionID).Scan(&previous); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE editions SET picture_key=$2, picture_url=$3, updated_at=NOW() WHERE id=$1
		`, editionID, key, url); err != nil {
			return fmt.Errorf("update edition picture: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return previous, nil
}

// Removal lists what a cascading delete took with it.
type Removal struct {
	ArticleIDs []string
	CaseIDs    []string
	PictureKey string
}

func (s *PostgresStore) DeleteEdition(ctx context.Context, editionID string) (Removal, error) {
	var removal Removal
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT picture_key FROM editions WHERE id=$1 FOR UPDATE`, editionID).Scan(&removal.PictureKey); err != nil {
			return err
		}
		articleIDs, err := collectIDs(ctx, tx, `SELECT id FROM articles WHERE edition_id=$1`, editionID)
		if err != nil {
			return err
		}
		caseIDs, err := collectIDs(ctx, tx, `
			SELECT mc.id FROM metaphor_cases mc
			JOIN articles a ON a.id = mc.article_id
			WHERE a.edition_id=$1
		`, editionID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM editions WHERE id=$1`, editionID); err != nil {
			return fmt.Errorf("delete edition: %w", err)
		}
		removal.ArticleIDs = articleIDs
		removal.CaseIDs = caseIDs
		return nil
	})
	if err != nil {
		return Removal{}, err
	}
	return removal, nil
}

func collectIDs(ctx context.Context, q queryer, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("collect ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return ids, nil
}

// Articles

const articleColumns = `id, edition_id, heading, body, url, publication_date, fully_annotated, tone, comment, created_at, updated_at`

func scanArticle(row scanner) (Article, error) {
	var item Article
	if err := row.Scan(
		&item.ID,
		&item.EditionID,
		&item.Heading,
		&item.Body,
		&item.URL,
		&item.PublicationDate,
		&item.FullyAnnotated,
		&item.Tone,
		&item.Comment,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return Article{}, err
	}
	return item, nil
}

func (s *PostgresStore) listArticles(ctx context.Context, query string, args ...any) ([]Article, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	items := make([]Article, 0)
	for rows.Next() {
		item, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListArticles(ctx context.Context) ([]Article, error) {
	return s.listArticles(ctx, `SELECT `+articleColumns+` FROM articles ORDER BY publication_date DESC, created_at DESC`)
}

func (s *PostgresStore) ListArticlesByEdition(ctx context.Context, editionID string) ([]Article, error) {
	return s.listArticles(ctx, `
		SELECT `+articleColumns+`
		FROM articles
		WHERE edition_id=$1
		ORDER BY publication_date DESC, created_at DESC
	`, editionID)
}

func (s *PostgresStore) GetArticle(ctx context.Context, articleID string) (Article, error) {
	return scanArticle(s.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id=$1`, articleID))
}

func (s *PostgresStore) InsertArticle(ctx context.Context, item Article) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO articles (id, edition_id, heading, body, url, publication_date)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, item.EditionID, item.Heading, item.Body, item.URL, item.PublicationDate)
	if err != nil {
		return fmt.Errorf("insert article: %w", err)
	}
	return nil
}

// UpdateArticleContent locks the article and its cases, lets check veto the
// change against that locked state, then applies the non-nil columns.
func (s *PostgresStore) UpdateArticleContent(ctx context.Context, articleID string, update ArticleUpdate, check func(Article, []MetaphorCase) error) (Article, error) {
	var updated Article
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, cases, err := lockArticle(ctx, tx, articleID)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(current, cases); err != nil {
				return err
			}
		}
		updated, err = scanArticle(tx.QueryRowContext(ctx, `
			UPDATE articles
			SET heading = COALESCE($2, heading),
				body = COALESCE($3, body),
				url = COALESCE($4, url),
				publication_date = COALESCE($5, publication_date),
				updated_at = NOW()
			WHERE id=$1
			RETURNING `+articleColumns,
			articleID, update.Heading, update.Body, update.URL, update.PublicationDate,
		))
		if err != nil {
			return fmt.Errorf("update article: %w", err)
		}
		return nil
	})
	if err != nil {
		return Article{}, err
	}
	return updated, nil
}

func (s *PostgresStore) ToggleFullyAnnotated(ctx context.Context, articleID string) (Article, error) {
	return scanArticle(s.db.QueryRowContext(ctx, `
		UPDATE articles
		SET fully_annotated = NOT fully_annotated, updated_at = NOW()
		WHERE id=$1
		RETURNING `+articleColumns, articleID))
}

func (s *PostgresStore) UpdateArticleTone(ctx context.Context, articleID, tone string) (Article, error) {
	return scanArticle(s.db.QueryRowContext(ctx, `
		UPDATE articles SET tone=$2, updated_at=NOW() WHERE id=$1
		RETURNING `+articleColumns, articleID, tone))
}

func (s *PostgresStore) UpdateArticleComment(ctx context.Context, articleID, comment string) (Article, error) {
	return scanArticle(s.db.QueryRowContext(ctx, `
		UPDATE articles SET comment=$2, updated_at=NOW() WHERE id=$1
		RETURNING `+articleColumns, articleID, comment))
}

// DeleteArticle removes the article and, through the foreign key, its cases.
func (s *PostgresStore) DeleteArticle(ctx context.Context, articleID string) (Removal, error) {
	removal := Removal{ArticleIDs: []string{articleID}}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		caseIDs, err := collectIDs(ctx, tx, `SELECT id FROM metaphor_cases WHERE article_id=$1`, articleID)
		if err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM articles WHERE id=$1`, articleID)
		if err != nil {
			return fmt.Errorf("delete article: %w", err)
		}
		if err := requireAffected(result, "delete article"); err != nil {
			return err
		}
		removal.CaseIDs = caseIDs
		return nil
	})
	if err != nil {
		return Removal{}, err
	}
	return removal, nil
}

// lockArticle reads the article FOR UPDATE together with its full case list.
func lockArticle(ctx context.Context, tx *sql.Tx, articleID string) (Article, []MetaphorCase, error) {
	article, err := scanArticle(tx.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id=$1 FOR UPDATE`, articleID))
	if err != nil {
		return Article{}, nil, err
	}
	cases, err := listCases(ctx, tx, caseSelect+` WHERE mc.article_id=$1 ORDER BY mc.location, mc.range_start`, articleID)
	if err != nil {
		return Article{}, nil, err
	}
	return article, cases, nil
}
