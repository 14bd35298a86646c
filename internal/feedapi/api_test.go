package feedapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/sift/internal/news"
	"github.com/linnemanlabs/sift/internal/news/memstore"
)

func newTestRouter(t *testing.T, store Store, token string) chi.Router {
	t.Helper()
	r := chi.NewRouter()
	New(nil, store, nil, token).RegisterRoutes(r)
	return r
}

func seedArticle(t *testing.T, store *memstore.Store, url string, published time.Time) *news.Article {
	t.Helper()
	a := &news.Article{
		Source:      "feed",
		Title:       "title for " + url,
		Content:     "content",
		URL:         url,
		PublishedAt: published,
		ScrapedAt:   published,
	}
	if _, err := store.InsertArticle(context.Background(), a); err != nil {
		t.Fatalf("InsertArticle: %v", err)
	}
	return a
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q, want application/json", ct)
	}
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestRecent(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	now := time.Now()
	fresh := seedArticle(t, store, "https://example.com/fresh", now.Add(-24*time.Hour))
	seedArticle(t, store, "https://example.com/stale", now.Add(-30*24*time.Hour))

	if err := store.UpsertVote(context.Background(), &news.Vote{
		ArticleID: fresh.ID, Label: news.LabelRelevant, RaterID: "r1", CreatedAt: now,
	}); err != nil {
		t.Fatalf("UpsertVote: %v", err)
	}

	router := newTestRouter(t, store, "")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/articles/recent", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		Articles []struct {
			ID      int64 `json:"id"`
			Upvotes int   `json:"upvotes"`
		} `json:"articles"`
	}
	decodeBody(t, rec, &resp)

	if len(resp.Articles) != 1 {
		t.Fatalf("got %d articles in the default window, want 1", len(resp.Articles))
	}
	if resp.Articles[0].ID != fresh.ID {
		t.Errorf("article ID = %d, want %d", resp.Articles[0].ID, fresh.ID)
	}
	if resp.Articles[0].Upvotes != 1 {
		t.Errorf("upvotes = %d, want 1", resp.Articles[0].Upvotes)
	}

	// first visit mints the rater cookie
	var raterCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == raterCookieName {
			raterCookie = c
		}
	}
	if raterCookie == nil {
		t.Fatal("expected rater cookie on first visit")
	}
	if raterCookie.Value == "" || !raterCookie.HttpOnly {
		t.Errorf("cookie = %+v, want non-empty HttpOnly value", raterCookie)
	}
}

func TestRecent_DaysParam(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	seedArticle(t, store, "https://example.com/old", time.Now().Add(-20*24*time.Hour))
	router := newTestRouter(t, store, "")

	tests := []struct {
		name      string
		query     string
		status    int
		nArticles int
	}{
		{"wider window includes older article", "?days=30", http.StatusOK, 1},
		{"narrow window excludes it", "?days=7", http.StatusOK, 0},
		{"zero rejected", "?days=0", http.StatusBadRequest, 0},
		{"negative rejected", "?days=-3", http.StatusBadRequest, 0},
		{"non-numeric rejected", "?days=soon", http.StatusBadRequest, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/articles/recent"+tc.query, nil))
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			if tc.status != http.StatusOK {
				return
			}
			var resp struct {
				Articles []json.RawMessage `json:"articles"`
			}
			decodeBody(t, rec, &resp)
			if len(resp.Articles) != tc.nArticles {
				t.Errorf("got %d articles, want %d", len(resp.Articles), tc.nArticles)
			}
		})
	}
}

func TestNextUnlabeled(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	router := newTestRouter(t, store, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/articles/next", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var empty struct {
		Article *json.RawMessage `json:"article"`
	}
	decodeBody(t, rec, &empty)
	if empty.Article != nil {
		t.Errorf("article = %s, want null on empty queue", *empty.Article)
	}

	a := seedArticle(t, store, "https://example.com/queued", time.Now())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/articles/next", nil))
	var resp struct {
		Article *struct {
			ID int64 `json:"id"`
		} `json:"article"`
	}
	decodeBody(t, rec, &resp)
	if resp.Article == nil || resp.Article.ID != a.ID {
		t.Errorf("article = %+v, want ID %d", resp.Article, a.ID)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	a := seedArticle(t, store, "https://example.com/one", time.Now())
	seedArticle(t, store, "https://example.com/two", time.Now())
	if err := store.UpsertVote(context.Background(), &news.Vote{
		ArticleID: a.ID, Label: news.LabelRelevant, RaterID: "r1", CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("UpsertVote: %v", err)
	}

	router := newTestRouter(t, store, "")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var stats news.Stats
	decodeBody(t, rec, &stats)
	if stats.Articles != 2 || stats.Labeled != 1 || stats.Relevant != 1 {
		t.Errorf("stats = %+v, want 2 articles, 1 labeled, 1 relevant", stats)
	}
}

func TestSubmitVote(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	a := seedArticle(t, store, "https://example.com/voted", time.Now())
	router := newTestRouter(t, store, "")

	body := `{"article_id": ` + jsonInt(a.ID) + `, "label": "relevant", "notes": "worth a read"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/votes", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// the vote shows up as the caller's own vote on a follow-up read
	var raterCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == raterCookieName {
			raterCookie = c
		}
	}
	if raterCookie == nil {
		t.Fatal("expected rater cookie on vote submission")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/articles/recent", nil)
	req.AddCookie(raterCookie)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp struct {
		Articles []struct {
			Upvotes int     `json:"upvotes"`
			OwnVote *string `json:"own_vote"`
		} `json:"articles"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Articles) != 1 {
		t.Fatalf("got %d articles, want 1", len(resp.Articles))
	}
	got := resp.Articles[0]
	if got.Upvotes != 1 {
		t.Errorf("upvotes = %d, want 1", got.Upvotes)
	}
	if got.OwnVote == nil || *got.OwnVote != "relevant" {
		t.Errorf("own_vote = %v, want relevant", got.OwnVote)
	}
}

func TestSubmitVote_Rejections(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	a := seedArticle(t, store, "https://example.com/target", time.Now())
	router := newTestRouter(t, store, "")

	tests := []struct {
		name string
		body string
	}{
		{"invalid label", `{"article_id": ` + jsonInt(a.ID) + `, "label": "maybe"}`},
		{"missing article_id", `{"label": "relevant"}`},
		{"malformed payload", `{"article_id":`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/votes", strings.NewReader(tc.body)))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestSubmitArticle(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	router := newTestRouter(t, store, "sekrit")

	body := `{"source": "manual", "title": "New campaign", "content": "details", ` +
		`"url": "https://example.com/campaign", "published_at": "2026-03-01"}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/articles", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer sekrit")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Success   bool  `json:"success"`
		ArticleID int64 `json:"article_id"`
	}
	decodeBody(t, rec, &resp)
	if !resp.Success || resp.ArticleID == 0 {
		t.Errorf("response = %+v, want success with article_id", resp)
	}

	// same URL again is a no-op acknowledged with 200
	req = httptest.NewRequest(http.MethodPost, "/api/v1/articles", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer sekrit")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("duplicate status = %d, want %d", rec.Code, http.StatusOK)
	}
	var dup struct {
		Message string `json:"message"`
	}
	decodeBody(t, rec, &dup)
	if !strings.Contains(dup.Message, "duplicate URL") {
		t.Errorf("message = %q, want duplicate URL notice", dup.Message)
	}
}

func TestSubmitArticle_Unauthorized(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, memstore.New(), "sekrit")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/articles", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestSubmitArticle_MissingFields(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, memstore.New(), "sekrit")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/articles",
		strings.NewReader(`{"title": "only a title"}`))
	req.Header.Set("Authorization", "Bearer sekrit")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	var resp struct {
		Error string `json:"error"`
	}
	decodeBody(t, rec, &resp)
	for _, field := range []string{"source", "content", "url"} {
		if !strings.Contains(resp.Error, field) {
			t.Errorf("error %q does not name missing field %q", resp.Error, field)
		}
	}
}

func TestParsePublishedAt(t *testing.T) {
	t.Parallel()

	fallback := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"rfc3339", "2026-03-01T10:30:00Z", time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)},
		{"no zone", "2026-03-01T10:30:00", time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)},
		{"space separated", "2026-03-01 10:30:00", time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)},
		{"date only", "2026-03-01", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"empty", "", fallback},
		{"garbage", "yesterday", fallback},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := parsePublishedAt(tc.input, fallback)
			if !got.Equal(tc.want) {
				t.Errorf("parsePublishedAt(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
