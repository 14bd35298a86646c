// Package news defines the domain model for the cybersecurity news triage
// pipeline: articles pulled from feeds, their embeddings, reader votes, and
// the records of classifier training runs built on top of them.
package news

import (
	"encoding/json"
	"time"
)

// Label is a binary relevance judgement on an article.
type Label string

const (
	// LabelRelevant means the article is worth the reader's attention.
	LabelRelevant Label = "relevant"

	// LabelNotRelevant means the article can be ignored.
	LabelNotRelevant Label = "not_relevant"
)

// Valid reports whether l is one of the two accepted label values.
func (l Label) Valid() bool {
	return l == LabelRelevant || l == LabelNotRelevant
}

// Article is a canonical article record. URL is the global dedup key:
// re-ingesting the same URL is a no-op. Articles are immutable once stored.
type Article struct {
	ID          int64     `json:"id"`
	Source      string    `json:"source"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	ScrapedAt   time.Time `json:"scraped_at"`
}

// Embedding is a fixed-length vector for one article under one embedding
// model identity. At most one row exists per (ArticleID, Model) pair.
type Embedding struct {
	ArticleID int64     `json:"article_id"`
	Model     string    `json:"model"`
	Vector    []float32 `json:"vector"`
}

// Vote is one rater's relevance judgement on one article. RaterID is empty
// for votes recorded through the single-rater CLI. In multi-rater mode a
// resubmission updates the existing row in place rather than adding one.
type Vote struct {
	ArticleID int64     `json:"article_id"`
	Label     Label     `json:"label"`
	RaterID   string    `json:"rater_id,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ArticleVotes is an article with its vote aggregates for a windowed feed
// view, plus the requesting rater's own vote if they cast one.
type ArticleVotes struct {
	Article
	Upvotes   int    `json:"upvotes"`
	Downvotes int    `json:"downvotes"`
	OwnVote   *Label `json:"own_vote,omitempty"`
}

// Stats summarizes labeling progress.
type Stats struct {
	Articles    int `json:"articles"`
	Labeled     int `json:"labeled"`
	Relevant    int `json:"relevant"`
	NotRelevant int `json:"not_relevant"`
}

// SourceCount is the number of stored articles for one feed source.
type SourceCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// TrainingExample is one supervised example: an article's embedding joined
// with its resolved label. Derived at training time, never persisted.
type TrainingExample struct {
	ArticleID int64
	Title     string
	Vector    []float32
	Label     Label
}

// ModelRun records one classifier training run with its hyperparameters,
// evaluation metrics, and the fitted model parameters. Artifact is the
// classifier's own JSON document; together with the hyperparameters it is
// enough to reconstruct the trained model.
type ModelRun struct {
	ID             string             `json:"id"`
	Classifier     string             `json:"classifier"`
	EmbeddingModel string             `json:"embedding_model"`
	Resolution     string             `json:"resolution"`
	Examples       int                `json:"examples"`
	TestFraction   float64            `json:"test_fraction"`
	Seed           int64              `json:"seed"`
	TrainMetrics   map[string]float64 `json:"train_metrics"`
	TestMetrics    map[string]float64 `json:"test_metrics"`
	Artifact       json.RawMessage    `json:"artifact,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}
