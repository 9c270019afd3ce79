package app

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"corpora/api/internal/export"
	"corpora/api/internal/store"

	"golang.org/x/crypto/bcrypt"
)

func newTestHTTP(fs *fakeStore) (*Service, http.Handler) {
	svc := newTestService(fs)
	return svc, NewHTTPServer(svc, "http://localhost:5173").Handler()
}

func doRequest(t *testing.T, handler http.Handler, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return payload
}

func TestHealthAndReadiness(t *testing.T) {
	_, handler := newTestHTTP(&fakeStore{})

	rec := doRequest(t, handler, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a request id header")
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/ready", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ready status = %d body=%s", rec.Code, rec.Body.String())
	}
	checks, _ := decodeMap(t, rec)["checks"].(map[string]any)
	pictures, _ := checks["pictures"].(map[string]any)
	if pictures["status"] != "disabled" {
		t.Fatalf("expected pictures to be reported disabled, got %v", checks)
	}
}

func TestReadinessFailsWithoutDatabase(t *testing.T) {
	_, handler := newTestHTTP(&fakeStore{
		pingFn: func(context.Context) error { return context.DeadlineExceeded },
	})
	rec := doRequest(t, handler, http.MethodGet, "/api/ready", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready status = %d", rec.Code)
	}
	if decodeMap(t, rec)["status"] != "not_ready" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestLoginAndSessionEndpoints(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := store.User{ID: "usr_1", Username: "avery", PasswordHash: string(hash), Role: "editor"}
	fs := &fakeStore{
		getUserByUsernameFn: func(context.Context, string) (store.User, error) { return user, nil },
		getUserByIDFn:       func(context.Context, string) (store.User, error) { return user, nil },
	}
	_, handler := newTestHTTP(fs)

	rec := doRequest(t, handler, http.MethodPost, "/api/auth/login", "", map[string]any{"username": "avery", "password": "nope"})
	if rec.Code != http.StatusUnauthorized || decodeMap(t, rec)["code"] != "INVALID_CREDENTIALS" {
		t.Fatalf("unexpected login failure response %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, handler, http.MethodPost, "/api/auth/login", "", map[string]any{"username": "avery", "password": "correct horse"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d body=%s", rec.Code, rec.Body.String())
	}
	login := decodeMap(t, rec)
	token, _ := login["token"].(string)
	if token == "" || login["role"] != "editor" {
		t.Fatalf("unexpected login payload %v", login)
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/auth/session", "Bearer "+token, nil)
	session := decodeMap(t, rec)
	if session["authenticated"] != true || session["userName"] != "avery" {
		t.Fatalf("unexpected session payload %v", session)
	}

	rec = doRequest(t, handler, http.MethodPost, "/api/auth/logout", "Bearer "+token, map[string]any{"refreshToken": login["refreshToken"]})
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d", rec.Code)
	}
	rec = doRequest(t, handler, http.MethodGet, "/api/auth/session", "Bearer "+token, nil)
	if decodeMap(t, rec)["authenticated"] != false {
		t.Fatalf("expected session to end after logout, got %s", rec.Body.String())
	}
}

func TestMutationsRequireRole(t *testing.T) {
	fixture := newArticleFixture()
	fs := &fakeStore{}
	fixture.install(fs)
	svc, handler := newTestHTTP(fs)
	viewer := bearerFor(t, svc, fs, "viewer")
	annotator := bearerFor(t, svc, fs, "annotator")

	rec := doRequest(t, handler, http.MethodPut, "/api/articles/ar_1/tone", "", map[string]any{"tone": "positive"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	rec = doRequest(t, handler, http.MethodPut, "/api/articles/ar_1/tone", viewer, map[string]any{"tone": "positive"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for viewer, got %d", rec.Code)
	}
	rec = doRequest(t, handler, http.MethodDelete, "/api/editions/ed_1", annotator, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for annotator deleting an edition, got %d", rec.Code)
	}
	rec = doRequest(t, handler, http.MethodPost, "/api/articles", annotator, map[string]any{"heading": "x"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for annotator creating an article, got %d", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/articles/ar_1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reads are public, got %d", rec.Code)
	}
	rec = doRequest(t, handler, http.MethodGet, "/api/articles/ar_missing", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a missing article, got %d", rec.Code)
	}
}

func TestRenderedArticleEndpoint(t *testing.T) {
	fixture := newArticleFixture()
	fixture.cases = []store.MetaphorCase{{ID: "mc_1", ArticleID: "ar_1", Location: "heading", RangeStart: 4, RangeEnd: 14}}
	fs := &fakeStore{}
	fixture.install(fs)
	_, handler := newTestHTTP(fs)

	rec := doRequest(t, handler, http.MethodGet, "/api/articles/ar_1/rendered", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("rendered status = %d body=%s", rec.Code, rec.Body.String())
	}
	payload := decodeMap(t, rec)
	heading, _ := payload["heading"].(string)
	if !strings.Contains(heading, `id="metaphorCaseId_mc_1">sun smiled</span>`) {
		t.Fatalf("unexpected rendered heading %q", heading)
	}
	article, _ := payload["article"].(map[string]any)
	metaphors, _ := article["metaphors"].([]any)
	if len(metaphors) != 1 {
		t.Fatalf("expected one case on the article, got %v", article["metaphors"])
	}
	first, _ := metaphors[0].(map[string]any)
	if r, _ := first["char_range"].([]any); len(r) != 2 || r[0] != float64(4) || r[1] != float64(14) {
		t.Fatalf("unexpected char_range %v", first["char_range"])
	}
}

func TestSelectionEndpointReportsNotice(t *testing.T) {
	fixture := newArticleFixture()
	fs := &fakeStore{}
	fixture.install(fs)
	svc, handler := newTestHTTP(fs)
	annotator := bearerFor(t, svc, fs, "annotator")

	rec := doRequest(t, handler, http.MethodPost, "/api/articles/ar_1/selections", annotator, map[string]any{
		"location": "body",
		"text":     "rices",
		"html":     "rices",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("selection status = %d body=%s", rec.Code, rec.Body.String())
	}
	payload := decodeMap(t, rec)
	details, _ := payload["details"].(map[string]any)
	if payload["code"] != "AMBIGUOUS_SELECTION" || details["notice"] == nil {
		t.Fatalf("unexpected payload %v", payload)
	}

	rec = doRequest(t, handler, http.MethodPost, "/api/articles/ar_1/selections", annotator, map[string]any{
		"location": "body",
		"text":     "soared",
		"html":     "soared",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("selection status = %d body=%s", rec.Code, rec.Body.String())
	}
	if got := decodeMap(t, rec)["char_range"]; got == nil {
		t.Fatalf("expected a char_range, got %s", rec.Body.String())
	}
}

func TestUpdateLockedHeadingReturnsConflict(t *testing.T) {
	fixture := newArticleFixture()
	fixture.cases = []store.MetaphorCase{{ID: "mc_1", ArticleID: "ar_1", Location: "heading", RangeStart: 4, RangeEnd: 14}}
	fs := &fakeStore{}
	fixture.install(fs)
	fs.updateArticleContentFn = updateThroughCheck(fixture)
	svc, handler := newTestHTTP(fs)
	editor := bearerFor(t, svc, fs, "editor")

	rec := doRequest(t, handler, http.MethodPut, "/api/articles/ar_1", editor, map[string]any{"heading": "Another heading"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("update status = %d body=%s", rec.Code, rec.Body.String())
	}
	payload := decodeMap(t, rec)
	details, _ := payload["details"].(map[string]any)
	if payload["code"] != "ANNOTATED_CONTENT_LOCKED" || details["location"] != "heading" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestExportEndpointWritesAttachment(t *testing.T) {
	fixture := newArticleFixture()
	fs := &fakeStore{}
	fixture.install(fs)
	svc, handler := newTestHTTP(fs)
	svc.exporter = &fakeExporter{exportFn: func(_ context.Context, _ export.Document, format export.Format) (*export.Result, error) {
		if format != export.FormatDOCX {
			t.Fatalf("unexpected format %s", format)
		}
		return &export.Result{
			Data:     []byte("docx-bytes"),
			Filename: "Evening Post - ar_1.docx",
			MimeType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		}, nil
	}}

	rec := doRequest(t, handler, http.MethodGet, "/api/articles/ar_1/export?format=docx", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d body=%s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "docx-bytes" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="Evening Post - ar_1.docx"` {
		t.Fatalf("unexpected content disposition %q", got)
	}
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "application/vnd.openxmlformats") {
		t.Fatalf("unexpected content type %q", got)
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/articles/ar_1/export?format=odt", "", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected unknown format to be rejected, got %d", rec.Code)
	}
}

func TestEditionPictureUpload(t *testing.T) {
	fixture := newArticleFixture()
	fs := &fakeStore{}
	fixture.install(fs)
	fs.setEditionPictureFn = func(_ context.Context, _, key, url string) (string, error) {
		fixture.edition.PictureKey = key
		fixture.edition.PictureURL = url
		return "", nil
	}
	svc, handler := newTestHTTP(fs)
	pictures := &fakePictures{}
	svc.pictures = pictures
	editor := bearerFor(t, svc, fs, "editor")

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("picture", "cover.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write([]byte("\x89PNG\r\n\x1a\n"))
	if err := form.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/editions/ed_1/picture", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", editor)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d body=%s", rec.Code, rec.Body.String())
	}
	if decodeMap(t, rec)["pictureURL"] != "http://uploads/editions/new.png" {
		t.Fatalf("unexpected payload %s", rec.Body.String())
	}
	if len(pictures.removed) != 0 {
		t.Fatalf("nothing should be removed on first upload, got %v", pictures.removed)
	}
}

func TestClientKeyTrustsForwardedForOnlyFromProxies(t *testing.T) {
	server := NewHTTPServer(newTestService(&fakeStore{}), "*")
	if err := server.TrustProxies([]string{"10.0.0.0/8", "192.0.2.10"}); err != nil {
		t.Fatalf("TrustProxies() error = %v", err)
	}

	tests := []struct {
		name      string
		peer      string
		forwarded string
		want      string
	}{
		{name: "direct client", peer: "198.51.100.4:51234", want: "198.51.100.4"},
		{name: "untrusted peer ignores header", peer: "198.51.100.4:51234", forwarded: "203.0.113.7", want: "198.51.100.4"},
		{name: "trusted peer", peer: "192.0.2.10:51234", forwarded: "203.0.113.7", want: "203.0.113.7"},
		{name: "spoofed first hop", peer: "192.0.2.10:51234", forwarded: "1.2.3.4, 203.0.113.7", want: "203.0.113.7"},
		{name: "proxy chain", peer: "10.1.1.1:443", forwarded: "1.2.3.4, 203.0.113.7, 10.2.2.2", want: "203.0.113.7"},
		{name: "trusted peer without header", peer: "10.1.1.1:443", want: "10.1.1.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
			req.RemoteAddr = tt.peer
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := server.clientKey(req); got != tt.want {
				t.Fatalf("clientKey() = %q, want %q", got, tt.want)
			}
		})
	}

	if err := server.TrustProxies([]string{"not-an-ip"}); err == nil {
		t.Fatal("expected an invalid proxy to be rejected")
	}
}

func TestLoginThrottleIgnoresRotatedForwardedFor(t *testing.T) {
	svc, handler := newTestHTTP(userStoreWithPassword(t, "correct horse"))
	svc.logins = newLoginLimiter(1)

	for i, forwarded := range []string{"203.0.113.1", "203.0.113.2"} {
		raw, _ := json.Marshal(map[string]any{"username": "avery", "password": "wrong"})
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		want := http.StatusUnauthorized
		if i > 0 {
			want = http.StatusTooManyRequests
		}
		if rec.Code != want {
			t.Fatalf("attempt %d status = %d, want %d body=%s", i, rec.Code, want, rec.Body.String())
		}
	}
}
