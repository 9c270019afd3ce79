package app

import (
	"context"
	"database/sql"
	"io"
	"sync"
	"testing"
	"time"

	"corpora/api/internal/annotate"
	"corpora/api/internal/auth"
	"corpora/api/internal/authpw"
	"corpora/api/internal/blob"
	"corpora/api/internal/config"
	"corpora/api/internal/export"
	"corpora/api/internal/revisions"
	"corpora/api/internal/search"
	"corpora/api/internal/session"
	"corpora/api/internal/store"
)

type fakeStore struct {
	pingFn                  func(context.Context) error
	getUserByUsernameFn     func(context.Context, string) (store.User, error)
	getUserByIDFn           func(context.Context, string) (store.User, error)
	listEditionsFn          func(context.Context) ([]store.Edition, error)
	getEditionFn            func(context.Context, string) (store.Edition, error)
	insertEditionFn         func(context.Context, store.Edition) error
	updateEditionFn         func(context.Context, store.Edition) error
	setEditionPictureFn     func(context.Context, string, string, string) (string, error)
	deleteEditionFn         func(context.Context, string) (store.Removal, error)
	listArticlesFn          func(context.Context) ([]store.Article, error)
	listArticlesByEditionFn func(context.Context, string) ([]store.Article, error)
	getArticleFn            func(context.Context, string) (store.Article, error)
	insertArticleFn         func(context.Context, store.Article) error
	updateArticleContentFn  func(context.Context, string, store.ArticleUpdate, func(store.Article, []store.MetaphorCase) error) (store.Article, error)
	toggleFullyAnnotatedFn  func(context.Context, string) (store.Article, error)
	updateArticleToneFn     func(context.Context, string, string) (store.Article, error)
	updateArticleCommentFn  func(context.Context, string, string) (store.Article, error)
	deleteArticleFn         func(context.Context, string) (store.Removal, error)
	getCaseFn               func(context.Context, string) (store.MetaphorCase, error)
	listCasesByArticleFn    func(context.Context, string) ([]store.MetaphorCase, error)
	listCasesByArticlesFn   func(context.Context, []string) ([]store.MetaphorCase, error)
	listCasesByModelFn      func(context.Context, string) ([]store.MetaphorCase, error)
	createCaseFn            func(context.Context, store.MetaphorCase, *store.MetaphorModel, func(store.Article, []store.MetaphorCase) error) (store.MetaphorCase, error)
	updateCaseFn            func(context.Context, string, store.CaseUpdate, *store.MetaphorModel) (store.MetaphorCase, error)
	deleteCaseFn            func(context.Context, string, string) (store.MetaphorCase, error)
	listModelsFn            func(context.Context) ([]store.MetaphorModel, error)
	getModelFn              func(context.Context, string) (store.MetaphorModel, error)
	insertModelFn           func(context.Context, store.MetaphorModel) error
	updateModelFn           func(context.Context, string, string, string) error
	deleteModelFn           func(context.Context, string) error
	toneDistributionFn      func(context.Context) ([]store.ToneCount, error)
	monthlyVolumeFn         func(context.Context) ([]store.MonthlyCount, error)
	modelFrequencyFn        func(context.Context) ([]store.ModelFrequency, error)
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) GetUserByUsername(ctx context.Context, username string) (store.User, error) {
	if f.getUserByUsernameFn != nil {
		return f.getUserByUsernameFn(ctx, username)
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, id)
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) CreateUser(context.Context, store.User) error { return nil }

func (f *fakeStore) UpdateUserCredentials(context.Context, string, string, string) error { return nil }

func (f *fakeStore) ListEditions(ctx context.Context) ([]store.Edition, error) {
	if f.listEditionsFn != nil {
		return f.listEditionsFn(ctx)
	}
	return nil, nil
}

func (f *fakeStore) GetEdition(ctx context.Context, id string) (store.Edition, error) {
	if f.getEditionFn != nil {
		return f.getEditionFn(ctx, id)
	}
	return store.Edition{}, sql.ErrNoRows
}

func (f *fakeStore) InsertEdition(ctx context.Context, item store.Edition) error {
	if f.insertEditionFn != nil {
		return f.insertEditionFn(ctx, item)
	}
	return nil
}

func (f *fakeStore) UpdateEdition(ctx context.Context, item store.Edition) error {
	if f.updateEditionFn != nil {
		return f.updateEditionFn(ctx, item)
	}
	return nil
}

func (f *fakeStore) SetEditionPicture(ctx context.Context, id, key, url string) (string, error) {
	if f.setEditionPictureFn != nil {
		return f.setEditionPictureFn(ctx, id, key, url)
	}
	return "", nil
}

func (f *fakeStore) DeleteEdition(ctx context.Context, id string) (store.Removal, error) {
	if f.deleteEditionFn != nil {
		return f.deleteEditionFn(ctx, id)
	}
	return store.Removal{}, nil
}

func (f *fakeStore) ListArticles(ctx context.Context) ([]store.Article, error) {
	if f.listArticlesFn != nil {
		return f.listArticlesFn(ctx)
	}
	return nil, nil
}

func (f *fakeStore) ListArticlesByEdition(ctx context.Context, id string) ([]store.Article, error) {
	if f.listArticlesByEditionFn != nil {
		return f.listArticlesByEditionFn(ctx, id)
	}
	return nil, nil
}

func (f *fakeStore) GetArticle(ctx context.Context, id string) (store.Article, error) {
	if f.getArticleFn != nil {
		return f.getArticleFn(ctx, id)
	}
	return store.Article{}, sql.ErrNoRows
}

func (f *fakeStore) InsertArticle(ctx context.Context, item store.Article) error {
	if f.insertArticleFn != nil {
		return f.insertArticleFn(ctx, item)
	}
	return nil
}

func (f *fakeStore) UpdateArticleContent(ctx context.Context, id string, update store.ArticleUpdate, check func(store.Article, []store.MetaphorCase) error) (store.Article, error) {
	if f.updateArticleContentFn != nil {
		return f.updateArticleContentFn(ctx, id, update, check)
	}
	return store.Article{}, sql.ErrNoRows
}

func (f *fakeStore) ToggleFullyAnnotated(ctx context.Context, id string) (store.Article, error) {
	if f.toggleFullyAnnotatedFn != nil {
		return f.toggleFullyAnnotatedFn(ctx, id)
	}
	return store.Article{}, sql.ErrNoRows
}

func (f *fakeStore) UpdateArticleTone(ctx context.Context, id, tone string) (store.Article, error) {
	if f.updateArticleToneFn != nil {
		return f.updateArticleToneFn(ctx, id, tone)
	}
	return store.Article{}, sql.ErrNoRows
}

func (f *fakeStore) UpdateArticleComment(ctx context.Context, id, comment string) (store.Article, error) {
	if f.updateArticleCommentFn != nil {
		return f.updateArticleCommentFn(ctx, id, comment)
	}
	return store.Article{}, sql.ErrNoRows
}

func (f *fakeStore) DeleteArticle(ctx context.Context, id string) (store.Removal, error) {
	if f.deleteArticleFn != nil {
		return f.deleteArticleFn(ctx, id)
	}
	return store.Removal{}, sql.ErrNoRows
}

func (f *fakeStore) GetCase(ctx context.Context, id string) (store.MetaphorCase, error) {
	if f.getCaseFn != nil {
		return f.getCaseFn(ctx, id)
	}
	return store.MetaphorCase{}, sql.ErrNoRows
}

func (f *fakeStore) ListCasesByArticle(ctx context.Context, id string) ([]store.MetaphorCase, error) {
	if f.listCasesByArticleFn != nil {
		return f.listCasesByArticleFn(ctx, id)
	}
	return nil, nil
}

func (f *fakeStore) ListCasesByArticles(ctx context.Context, ids []string) ([]store.MetaphorCase, error) {
	if f.listCasesByArticlesFn != nil {
		return f.listCasesByArticlesFn(ctx, ids)
	}
	return nil, nil
}

func (f *fakeStore) ListCasesByModel(ctx context.Context, id string) ([]store.MetaphorCase, error) {
	if f.listCasesByModelFn != nil {
		return f.listCasesByModelFn(ctx, id)
	}
	return nil, nil
}

func (f *fakeStore) CreateCase(ctx context.Context, item store.MetaphorCase, newModel *store.MetaphorModel, check func(store.Article, []store.MetaphorCase) error) (store.MetaphorCase, error) {
	if f.createCaseFn != nil {
		return f.createCaseFn(ctx, item, newModel, check)
	}
	return store.MetaphorCase{}, sql.ErrNoRows
}

func (f *fakeStore) UpdateCase(ctx context.Context, id string, update store.CaseUpdate, newModel *store.MetaphorModel) (store.MetaphorCase, error) {
	if f.updateCaseFn != nil {
		return f.updateCaseFn(ctx, id, update, newModel)
	}
	return store.MetaphorCase{}, sql.ErrNoRows
}

func (f *fakeStore) DeleteCase(ctx context.Context, articleID, caseID string) (store.MetaphorCase, error) {
	if f.deleteCaseFn != nil {
		return f.deleteCaseFn(ctx, articleID, caseID)
	}
	return store.MetaphorCase{}, sql.ErrNoRows
}

func (f *fakeStore) ListModels(ctx context.Context) ([]store.MetaphorModel, error) {
	if f.listModelsFn != nil {
		return f.listModelsFn(ctx)
	}
	return nil, nil
}

func (f *fakeStore) GetModel(ctx context.Context, id string) (store.MetaphorModel, error) {
	if f.getModelFn != nil {
		return f.getModelFn(ctx, id)
	}
	return store.MetaphorModel{}, sql.ErrNoRows
}

func (f *fakeStore) InsertModel(ctx context.Context, item store.MetaphorModel) error {
	if f.insertModelFn != nil {
		return f.insertModelFn(ctx, item)
	}
	return nil
}

func (f *fakeStore) UpdateModel(ctx context.Context, id, name, comment string) error {
	if f.updateModelFn != nil {
		return f.updateModelFn(ctx, id, name, comment)
	}
	return nil
}

func (f *fakeStore) DeleteModel(ctx context.Context, id string) error {
	if f.deleteModelFn != nil {
		return f.deleteModelFn(ctx, id)
	}
	return nil
}

func (f *fakeStore) ToneDistribution(ctx context.Context) ([]store.ToneCount, error) {
	if f.toneDistributionFn != nil {
		return f.toneDistributionFn(ctx)
	}
	return nil, nil
}

func (f *fakeStore) MonthlyVolume(ctx context.Context) ([]store.MonthlyCount, error) {
	if f.monthlyVolumeFn != nil {
		return f.monthlyVolumeFn(ctx)
	}
	return nil, nil
}

func (f *fakeStore) ModelFrequency(ctx context.Context) ([]store.ModelFrequency, error) {
	if f.modelFrequencyFn != nil {
		return f.modelFrequencyFn(ctx)
	}
	return nil, nil
}

type fakeRevisions struct {
	mu      sync.Mutex
	commits []string
	removed []string
	history []store.CommitInfo
}

func (f *fakeRevisions) Commit(articleID string, _ revisions.Content, _ string, message string) (store.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = append(f.commits, articleID+":"+message)
	return store.CommitInfo{Hash: "abc1234", Message: message}, nil
}

func (f *fakeRevisions) History(string, int) ([]store.CommitInfo, error) {
	return f.history, nil
}

func (f *fakeRevisions) Content(string, string) (revisions.Content, store.CommitInfo, error) {
	return revisions.Content{}, store.CommitInfo{}, sql.ErrNoRows
}

func (f *fakeRevisions) Remove(articleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, articleID)
	return nil
}

type fakeSearch struct {
	mu              sync.Mutex
	indexedArticles []string
	indexedCases    []string
	removedArticles []string
	removedCases    []string
}

func (f *fakeSearch) Search(_ context.Context, q search.Query) search.Response {
	return search.Response{Results: []search.Result{}, Query: q.Text}
}

func (f *fakeSearch) IndexArticle(article store.Article, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexedArticles = append(f.indexedArticles, article.ID)
}

func (f *fakeSearch) IndexCase(item store.MetaphorCase) {
	f.IndexCases([]store.MetaphorCase{item})
}

func (f *fakeSearch) IndexCases(items []store.MetaphorCase) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range items {
		f.indexedCases = append(f.indexedCases, item.ID)
	}
}

func (f *fakeSearch) Remove(articleIDs, caseIDs []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removedArticles = append(f.removedArticles, articleIDs...)
	f.removedCases = append(f.removedCases, caseIDs...)
}

type fakePictures struct {
	uploadFn func(context.Context, string, io.Reader, int64) (blob.Picture, error)
	removed  []string
}

func (f *fakePictures) Upload(ctx context.Context, name string, r io.Reader, size int64) (blob.Picture, error) {
	if f.uploadFn != nil {
		return f.uploadFn(ctx, name, r, size)
	}
	return blob.Picture{Key: "editions/new.png", URL: "http://uploads/editions/new.png"}, nil
}

func (f *fakePictures) Remove(_ context.Context, key string) error {
	f.removed = append(f.removed, key)
	return nil
}

type fakeExporter struct {
	exportFn func(context.Context, export.Document, export.Format) (*export.Result, error)
}

func (f *fakeExporter) Export(ctx context.Context, doc export.Document, format export.Format) (*export.Result, error) {
	return f.exportFn(ctx, doc, format)
}

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg: config.Config{
			JWTSecret:  "test-secret",
			AccessTTL:  time.Hour,
			RefreshTTL: 24 * time.Hour,
		},
		store:     fs,
		sessions:  session.NewMemoryStore(),
		passwords: authpw.NewService(fs),
		revisions: &fakeRevisions{},
		search:    &fakeSearch{},
		locator:   annotate.NewLocator(),
		logins:    newLoginLimiter(0),
	}
}

// bearerFor issues an access token for a user that fs resolves by id.
func bearerFor(t *testing.T, svc *Service, fs *fakeStore, role string) string {
	t.Helper()
	user := store.User{ID: "usr_" + role, Username: "Avery", Role: role}
	previous := fs.getUserByIDFn
	fs.getUserByIDFn = func(ctx context.Context, id string) (store.User, error) {
		if id == user.ID {
			return user, nil
		}
		if previous != nil {
			return previous(ctx, id)
		}
		return store.User{}, sql.ErrNoRows
	}
	token, err := auth.IssueToken([]byte(svc.cfg.JWTSecret), auth.Claims{
		Sub:      user.ID,
		Username: user.Username,
		Role:     role,
		JTI:      "jti_" + role,
		Exp:      time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return "Bearer " + token
}

// articleFixture is a single-article corpus in the fake store.
type articleFixture struct {
	edition store.Edition
	article store.Article
	cases   []store.MetaphorCase
}

func newArticleFixture() *articleFixture {
	return &articleFixture{
		edition: store.Edition{ID: "ed_1", Lang: "en", Name: "Evening Post"},
		article: store.Article{
			ID:              "ar_1",
			EditionID:       "ed_1",
			Heading:         "The sun smiled at the blooming field.",
			Body:            "<div>Prices soared and prices fell.</div>",
			URL:             "https://example.org/a",
			PublicationDate: time.Date(2020, 3, 14, 0, 0, 0, 0, time.UTC),
		},
	}
}

func (f *articleFixture) install(fs *fakeStore) {
	fs.getArticleFn = func(_ context.Context, id string) (store.Article, error) {
		if id != f.article.ID {
			return store.Article{}, sql.ErrNoRows
		}
		return f.article, nil
	}
	fs.getEditionFn = func(_ context.Context, id string) (store.Edition, error) {
		if id != f.edition.ID {
			return store.Edition{}, sql.ErrNoRows
		}
		return f.edition, nil
	}
	fs.listEditionsFn = func(context.Context) ([]store.Edition, error) {
		return []store.Edition{f.edition}, nil
	}
	fs.listCasesByArticleFn = func(_ context.Context, id string) ([]store.MetaphorCase, error) {
		if id != f.article.ID {
			return nil, nil
		}
		return f.cases, nil
	}
	fs.listCasesByArticlesFn = func(context.Context, []string) ([]store.MetaphorCase, error) {
		return f.cases, nil
	}
}
