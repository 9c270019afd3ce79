package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"corpora/api/internal/annotate"
	"corpora/api/internal/auth"
	"corpora/api/internal/authpw"
	"corpora/api/internal/blob"
	"corpora/api/internal/config"
	"corpora/api/internal/export"
	"corpora/api/internal/rbac"
	"corpora/api/internal/revisions"
	"corpora/api/internal/search"
	"corpora/api/internal/store"
	"corpora/api/internal/util"

	gocache "github.com/patrickmn/go-cache"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	Ping(context.Context) error

	GetUserByUsername(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	CreateUser(context.Context, store.User) error
	UpdateUserCredentials(context.Context, string, string, string) error

	ListEditions(context.Context) ([]store.Edition, error)
	GetEdition(context.Context, string) (store.Edition, error)
	InsertEdition(context.Context, store.Edition) error
	UpdateEdition(context.Context, store.Edition) error
	SetEditionPicture(context.Context, string, string, string) (string, error)
	DeleteEdition(context.Context, string) (store.Removal, error)

	ListArticles(context.Context) ([]store.Article, error)
	ListArticlesByEdition(context.Context, string) ([]store.Article, error)
	GetArticle(context.Context, string) (store.Article, error)
	InsertArticle(context.Context, store.Article) error
	UpdateArticleContent(context.Context, string, store.ArticleUpdate, func(store.Article, []store.MetaphorCase) error) (store.Article, error)
	ToggleFullyAnnotated(context.Context, string) (store.Article, error)
	UpdateArticleTone(context.Context, string, string) (store.Article, error)
	UpdateArticleComment(context.Context, string, string) (store.Article, error)
	DeleteArticle(context.Context, string) (store.Removal, error)

	GetCase(context.Context, string) (store.MetaphorCase, error)
	ListCasesByArticle(context.Context, string) ([]store.MetaphorCase, error)
	ListCasesByArticles(context.Context, []string) ([]store.MetaphorCase, error)
	ListCasesByModel(context.Context, string) ([]store.MetaphorCase, error)
	CreateCase(context.Context, store.MetaphorCase, *store.MetaphorModel, func(store.Article, []store.MetaphorCase) error) (store.MetaphorCase, error)
	UpdateCase(context.Context, string, store.CaseUpdate, *store.MetaphorModel) (store.MetaphorCase, error)
	DeleteCase(context.Context, string, string) (store.MetaphorCase, error)

	ListModels(context.Context) ([]store.MetaphorModel, error)
	GetModel(context.Context, string) (store.MetaphorModel, error)
	InsertModel(context.Context, store.MetaphorModel) error
	UpdateModel(context.Context, string, string, string) error
	DeleteModel(context.Context, string) error

	ToneDistribution(context.Context) ([]store.ToneCount, error)
	MonthlyVolume(context.Context) ([]store.MonthlyCount, error)
	ModelFrequency(context.Context) ([]store.ModelFrequency, error)
}

// SessionStore keeps refresh sessions and revoked access tokens.
type SessionStore interface {
	SaveRefreshSession(context.Context, string, store.User, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	Ping(context.Context) error
}

type revisionService interface {
	Commit(string, revisions.Content, string, string) (store.CommitInfo, error)
	History(string, int) ([]store.CommitInfo, error)
	Content(string, string) (revisions.Content, store.CommitInfo, error)
	Remove(string) error
}

type pictureStore interface {
	Upload(context.Context, string, io.Reader, int64) (blob.Picture, error)
	Remove(context.Context, string) error
}

type searchIndex interface {
	Search(context.Context, search.Query) search.Response
	IndexArticle(store.Article, string)
	IndexCase(store.MetaphorCase)
	IndexCases([]store.MetaphorCase)
	Remove([]string, []string)
}

type exporter interface {
	Export(context.Context, export.Document, export.Format) (*export.Result, error)
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  SessionStore
	passwords *authpw.Service
	revisions revisionService
	pictures  pictureStore
	search    searchIndex
	exporter  exporter
	locator   *annotate.Locator
	cache     *gocache.Cache
	logins    *loginLimiter
}

// New wires the service. pictures and exporter may be nil, in which case the
// picture upload and export endpoints answer 503.
func New(
	cfg config.Config,
	dataStore *store.PostgresStore,
	sessions SessionStore,
	revisionsService *revisions.Service,
	pictures *blob.Pictures,
	searchService *search.Service,
	exportService *export.Service,
) *Service {
	service := &Service{
		cfg:       cfg,
		store:     dataStore,
		sessions:  sessions,
		passwords: authpw.NewService(dataStore),
		revisions: revisionsService,
		search:    searchService,
		locator:   annotate.NewLocator(),
		cache:     newResultsCache(cfg.ResultsCacheTTL),
		logins:    newLoginLimiter(cfg.LoginRatePerMin),
	}
	if pictures != nil {
		service.pictures = pictures
	}
	if exportService != nil {
		service.exporter = exportService
	}
	return service
}

// Login checks the password of username. Attempts are throttled per client
// key before the password is looked at.
func (s *Service) Login(ctx context.Context, clientKey, username, password string) (Session, error) {
	if !s.logins.Allow(clientKey) {
		return Session{}, domainError(http.StatusTooManyRequests, "RATE_LIMITED", "Too many login attempts, try again later", nil)
	}
	user, err := s.passwords.SignIn(ctx, username, password)
	if errors.Is(err, authpw.ErrInvalidCredentials) {
		return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password", nil)
	}
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	// The role may have changed since the refresh token was issued.
	if current, err := s.store.GetUserByID(ctx, user.ID); err == nil {
		user = current
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:      user.ID,
		Username: user.Username,
		Role:     user.Role,
		JTI:      jti,
		Exp:      expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.Username,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.Username,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// Ping checks the database.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Readiness reports the state of every backing service. Only the database is
// required; the rest degrade the API without taking it down.
func (s *Service) Readiness(ctx context.Context) (bool, map[string]any) {
	checks := map[string]any{}
	ready := true

	if err := s.store.Ping(ctx); err != nil {
		ready = false
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	} else {
		checks["database"] = map[string]any{"status": "ok"}
	}

	if err := s.sessions.Ping(ctx); err != nil {
		checks["sessions"] = map[string]any{"status": "error", "error": err.Error()}
	} else {
		checks["sessions"] = map[string]any{"status": "ok"}
	}

	checks["pictures"] = map[string]any{"status": availability(s.pictures != nil)}
	checks["export"] = map[string]any{"status": availability(s.exporter != nil)}
	return ready, checks
}

func availability(ok bool) string {
	if ok {
		return "ok"
	}
	return "disabled"
}

func requiredText(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", validationError(field, "is required")
	}
	return value, nil
}
