// Package memstore provides an in-memory implementation of news.Store.
// Suitable for dev and testing; production runs use pgstore.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/linnemanlabs/sift/internal/news"
)

type embKey struct {
	articleID int64
	model     string
}

type voteKey struct {
	articleID int64
	raterID   string
}

// Store holds the full pipeline state in memory.
type Store struct {
	mu       sync.RWMutex
	nextID   int64
	articles map[int64]*news.Article
	byURL    map[string]int64
	embs     map[embKey][]float32
	votes    map[voteKey]*news.Vote
	runs     []*news.ModelRun
}

// New initializes an empty in-memory Store.
func New() *Store {
	return &Store{
		nextID:   1,
		articles: make(map[int64]*news.Article),
		byURL:    make(map[string]int64),
		embs:     make(map[embKey][]float32),
		votes:    make(map[voteKey]*news.Vote),
	}
}

// InsertArticle stores a new article, assigning its ID. A duplicate URL is
// a silent no-op returning false.
func (s *Store) InsertArticle(_ context.Context, a *news.Article) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byURL[a.URL]; ok {
		return false, nil
	}
	a.ID = s.nextID
	s.nextID++
	cp := *a
	s.articles[a.ID] = &cp
	s.byURL[a.URL] = a.ID
	return true, nil
}

// MissingEmbeddings returns articles with no embedding for the model,
// newest scraped first.
func (s *Store) MissingEmbeddings(_ context.Context, model string, limit int) ([]news.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []news.Article
	for id, a := range s.articles {
		if _, ok := s.embs[embKey{id, model}]; !ok {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScrapedAt.Equal(out[j].ScrapedAt) {
			return out[i].ScrapedAt.After(out[j].ScrapedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PutEmbedding upserts the vector for (ArticleID, Model).
func (s *Store) PutEmbedding(_ context.Context, e *news.Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	vec := make([]float32, len(e.Vector))
	copy(vec, e.Vector)
	s.embs[embKey{e.ArticleID, e.Model}] = vec
	return nil
}

// CountEmbeddings returns the number of embedding rows for a model.
func (s *Store) CountEmbeddings(_ context.Context, model string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for k := range s.embs {
		if k.model == model {
			n++
		}
	}
	return n, nil
}

// UpsertVote writes a vote keyed by (ArticleID, RaterID).
func (s *Store) UpsertVote(_ context.Context, v *news.Vote) error {
	if !v.Label.Valid() {
		return news.ErrInvalidLabel
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.votes[voteKey{v.ArticleID, v.RaterID}] = &cp
	return nil
}

func (s *Store) votedLocked(articleID int64) bool {
	for k := range s.votes {
		if k.articleID == articleID {
			return true
		}
	}
	return false
}

// Unlabeled returns articles with zero votes, most recently published first.
func (s *Store) Unlabeled(_ context.Context, limit int) ([]news.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []news.Article
	for id, a := range s.articles {
		if !s.votedLocked(id) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].PublishedAt.After(out[j].PublishedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// NextUnlabeled returns at most one unlabeled article.
func (s *Store) NextUnlabeled(ctx context.Context) (*news.Article, bool, error) {
	items, err := s.Unlabeled(ctx, 1)
	if err != nil || len(items) == 0 {
		return nil, false, err
	}
	return &items[0], true, nil
}

// Stats returns labeling progress counts.
func (s *Store) Stats(_ context.Context) (*news.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := &news.Stats{Articles: len(s.articles)}
	labeled := make(map[int64]struct{})
	for k, v := range s.votes {
		labeled[k.articleID] = struct{}{}
		switch v.Label {
		case news.LabelRelevant:
			st.Relevant++
		case news.LabelNotRelevant:
			st.NotRelevant++
		}
	}
	st.Labeled = len(labeled)
	return st, nil
}

// CountBySource returns article counts per feed source, largest first.
func (s *Store) CountBySource(_ context.Context) ([]news.SourceCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, a := range s.articles {
		counts[a.Source]++
	}
	out := make([]news.SourceCount, 0, len(counts))
	for src, n := range counts {
		out = append(out, news.SourceCount{Source: src, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Source < out[j].Source
	})
	return out, nil
}

// Latest returns the most recently scraped articles.
func (s *Store) Latest(_ context.Context, n int) ([]news.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]news.Article, 0, len(s.articles))
	for _, a := range s.articles {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScrapedAt.Equal(out[j].ScrapedAt) {
			return out[i].ScrapedAt.After(out[j].ScrapedAt)
		}
		return out[i].ID > out[j].ID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// RecentWithVotes returns articles published after since with their vote
// aggregates and the given rater's own vote, newest first.
func (s *Store) RecentWithVotes(_ context.Context, since time.Time, raterID string, limit int) ([]news.ArticleVotes, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []news.ArticleVotes
	for id, a := range s.articles {
		if !a.PublishedAt.After(since) {
			continue
		}
		av := news.ArticleVotes{Article: *a}
		for k, v := range s.votes {
			if k.articleID != id {
				continue
			}
			switch v.Label {
			case news.LabelRelevant:
				av.Upvotes++
			case news.LabelNotRelevant:
				av.Downvotes++
			}
			if raterID != "" && k.raterID == raterID {
				label := v.Label
				av.OwnVote = &label
			}
		}
		out = append(out, av)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].PublishedAt.After(out[j].PublishedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// TrainingRows returns the inner join of articles that have both an
// embedding for the model and at least one vote.
func (s *Store) TrainingRows(_ context.Context, model string) ([]news.TrainingRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []news.TrainingRow
	for id, a := range s.articles {
		vec, ok := s.embs[embKey{id, model}]
		if !ok {
			continue
		}
		var votes []news.Vote
		for k, v := range s.votes {
			if k.articleID == id {
				votes = append(votes, *v)
			}
		}
		if len(votes) == 0 {
			continue
		}
		vcp := make([]float32, len(vec))
		copy(vcp, vec)
		out = append(out, news.TrainingRow{
			ArticleID: id,
			Title:     a.Title,
			Vector:    vcp,
			Votes:     votes,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ArticleID < out[j].ArticleID })
	return out, nil
}

// PutModelRun records a completed training run.
func (s *Store) PutModelRun(_ context.Context, r *news.ModelRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.runs = append(s.runs, &cp)
	return nil
}

// LatestModelRun returns the most recent training run, if any.
func (s *Store) LatestModelRun(_ context.Context) (*news.ModelRun, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.runs) == 0 {
		return nil, false, nil
	}
	latest := s.runs[0]
	for _, r := range s.runs[1:] {
		if r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	cp := *latest
	return &cp, true, nil
}
