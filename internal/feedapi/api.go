// Package feedapi exposes the feedback ledger over HTTP for the labeling
// UI: recent articles with vote aggregates, the unlabeled queue, stats,
// vote submission, and authenticated manual article submission.
package feedapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/sift/internal/authmw"
	"github.com/linnemanlabs/sift/internal/news"
)

// Store defines the store operations feedapi needs.
type Store interface {
	RecentWithVotes(ctx context.Context, since time.Time, raterID string, limit int) ([]news.ArticleVotes, error)
	NextUnlabeled(ctx context.Context) (*news.Article, bool, error)
	Stats(ctx context.Context) (*news.Stats, error)
	UpsertVote(ctx context.Context, v *news.Vote) error
	InsertArticle(ctx context.Context, a *news.Article) (bool, error)
}

const (
	defaultWindowDays = 7
	recentLimit       = 100
)

// API holds dependencies for HTTP handlers.
type API struct {
	logger  log.Logger
	store   Store
	metrics *news.Metrics
	// submitToken guards the manual article submission endpoint.
	submitToken string
}

// New creates a new API handler.
func New(logger log.Logger, store Store, metrics *news.Metrics, submitToken string) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if metrics == nil {
		metrics = news.NopMetrics()
	}
	return &API{
		logger:      logger,
		store:       store,
		metrics:     metrics,
		submitToken: submitToken,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/articles/recent", a.handleRecent)
		r.Get("/articles/next", a.handleNextUnlabeled)
		r.Get("/stats", a.handleStats)
		r.Post("/votes", a.handleSubmitVote)
		r.With(authmw.BearerToken(a.submitToken)).Post("/articles", a.handleSubmitArticle)
	})
}

func (a *API) handleRecent(w http.ResponseWriter, r *http.Request) {
	days := defaultWindowDays
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = parsed
	}

	raterID := a.ensureRater(w, r)
	since := time.Now().AddDate(0, 0, -days)

	articles, err := a.store.RecentWithVotes(r.Context(), since, raterID, recentLimit)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to load recent articles")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"articles": articles})
}

func (a *API) handleNextUnlabeled(w http.ResponseWriter, r *http.Request) {
	article, ok, err := a.store.NextUnlabeled(r.Context())
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to load next unlabeled article")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"article": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"article": article})
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.store.Stats(r.Context())
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to load stats")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleSubmitVote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ArticleID int64  `json:"article_id"`
		Label     string `json:"label"`
		Notes     string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.ArticleID <= 0 {
		writeError(w, http.StatusBadRequest, "article_id is required")
		return
	}

	label := news.Label(req.Label)
	if !label.Valid() {
		writeError(w, http.StatusBadRequest, news.ErrInvalidLabel.Error())
		return
	}

	vote := &news.Vote{
		ArticleID: req.ArticleID,
		Label:     label,
		RaterID:   a.ensureRater(w, r),
		Notes:     req.Notes,
		CreatedAt: time.Now(),
	}

	if err := a.store.UpsertVote(r.Context(), vote); err != nil {
		a.logger.Error(r.Context(), err, "failed to save vote",
			"article_id", req.ArticleID, "rater_id", vote.RaterID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	a.metrics.VotesTotal.WithLabelValues(string(label), "api").Inc()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleSubmitArticle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source      string `json:"source"`
		Title       string `json:"title"`
		Content     string `json:"content"`
		URL         string `json:"url"`
		PublishedAt string `json:"published_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	now := time.Now().UTC()
	article := &news.Article{
		Source:      req.Source,
		Title:       req.Title,
		Content:     req.Content,
		URL:         req.URL,
		PublishedAt: parsePublishedAt(req.PublishedAt, now),
		ScrapedAt:   now,
	}

	if err := news.ValidateSubmission(article); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	inserted, err := a.store.InsertArticle(r.Context(), article)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to insert submitted article", "url", article.URL)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if !inserted {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "article already exists (duplicate URL)",
		})
		return
	}

	a.metrics.ArticlesInserted.WithLabelValues(article.Source).Inc()
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":    true,
		"article_id": article.ID,
	})
}

// publishedAtFormats are tried in order for manually submitted articles.
var publishedAtFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parsePublishedAt parses a best-effort timestamp, falling back to the
// submission time when the value is absent or unparseable.
func parsePublishedAt(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	for _, layout := range publishedAtFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
