package news

import (
	"context"
	"time"
)

// TrainingRow is the raw join of one article with its embedding vector and
// every vote cast on it, before label resolution.
type TrainingRow struct {
	ArticleID int64
	Title     string
	Vector    []float32
	Votes     []Vote
}

// Store is the persistence interface for the triage pipeline. Writes are
// idempotent upserts or conflict-free inserts, so ingestion and embedding
// generation are safe to re-run concurrently with reads.
type Store interface {
	// InsertArticle stores a new article, assigning its ID. It returns
	// false without error when the URL already exists.
	InsertArticle(ctx context.Context, a *Article) (bool, error)

	// MissingEmbeddings returns articles that have no embedding row for
	// the given model, newest scraped first. limit <= 0 means no limit.
	MissingEmbeddings(ctx context.Context, model string, limit int) ([]Article, error)

	// PutEmbedding upserts the vector for (ArticleID, Model); a conflict
	// overwrites, never duplicates.
	PutEmbedding(ctx context.Context, e *Embedding) error

	// CountEmbeddings returns the number of embedding rows for a model.
	CountEmbeddings(ctx context.Context, model string) (int, error)

	// UpsertVote writes a vote keyed by (ArticleID, RaterID): insert for
	// a new pair, in-place label and timestamp update otherwise.
	UpsertVote(ctx context.Context, v *Vote) error

	// Unlabeled returns articles with zero votes, most recently
	// published first. limit <= 0 means no limit.
	Unlabeled(ctx context.Context, limit int) ([]Article, error)

	// NextUnlabeled returns at most one unlabeled article.
	NextUnlabeled(ctx context.Context) (*Article, bool, error)

	// Stats returns labeling progress counts.
	Stats(ctx context.Context) (*Stats, error)

	// CountBySource returns article counts per feed source, largest first.
	CountBySource(ctx context.Context) ([]SourceCount, error)

	// Latest returns the most recently scraped articles.
	Latest(ctx context.Context, n int) ([]Article, error)

	// RecentWithVotes returns articles published after since with their
	// vote aggregates and the given rater's own vote, newest first.
	RecentWithVotes(ctx context.Context, since time.Time, raterID string, limit int) ([]ArticleVotes, error)

	// TrainingRows returns the inner join of articles that have both an
	// embedding for the given model and at least one vote.
	TrainingRows(ctx context.Context, model string) ([]TrainingRow, error)

	// PutModelRun records a completed training run.
	PutModelRun(ctx context.Context, r *ModelRun) error

	// LatestModelRun returns the most recent training run, if any.
	LatestModelRun(ctx context.Context) (*ModelRun, bool, error)
}
