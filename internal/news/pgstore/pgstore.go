// Package pgstore provides a PostgreSQL implementation of news.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/sift/internal/news"
)

var tracer = otel.Tracer("github.com/linnemanlabs/sift/internal/news/pgstore")

//go:embed schema.sql
var schema string

// Store persists articles, embeddings, votes, and model runs in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store. The pool stays owned
// by the caller.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// InsertArticle stores a new article, assigning its ID. A duplicate URL
// returns false without error.
func (s *Store) InsertArticle(ctx context.Context, a *news.Article) (bool, error) {
	ctx, span := startSpan(ctx, "pgstore.InsertArticle", "INSERT")
	defer span.End()

	err := s.pool.QueryRow(ctx,
		`INSERT INTO articles (source, title, content, url, published_at, scraped_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (url) DO NOTHING
		 RETURNING id`,
		a.Source, a.Title, a.Content, a.URL, a.PublishedAt, a.ScrapedAt,
	).Scan(&a.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fail(span, fmt.Errorf("insert article: %w", err))
	}
	return true, nil
}

const articleColumns = `id, source, title, content, url, published_at, scraped_at`

func scanArticles(rows pgx.Rows) ([]news.Article, error) {
	defer rows.Close()
	var out []news.Article
	for rows.Next() {
		var a news.Article
		if err := rows.Scan(&a.ID, &a.Source, &a.Title, &a.Content, &a.URL, &a.PublishedAt, &a.ScrapedAt); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return out, nil
}

// MissingEmbeddings returns articles with no embedding row for the model,
// newest scraped first.
func (s *Store) MissingEmbeddings(ctx context.Context, model string, limit int) ([]news.Article, error) {
	ctx, span := startSpan(ctx, "pgstore.MissingEmbeddings", "SELECT")
	defer span.End()

	query := `SELECT ` + articleColumns + ` FROM articles a
		WHERE NOT EXISTS (
			SELECT 1 FROM embeddings e WHERE e.article_id = a.id AND e.model = $1
		)
		ORDER BY scraped_at DESC, id DESC`
	args := []any{model}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query missing embeddings: %w", err))
	}
	out, err := scanArticles(rows)
	if err != nil {
		return nil, fail(span, err)
	}
	return out, nil
}

// PutEmbedding upserts the vector for (ArticleID, Model).
func (s *Store) PutEmbedding(ctx context.Context, e *news.Embedding) error {
	ctx, span := startSpan(ctx, "pgstore.PutEmbedding", "UPSERT")
	defer span.End()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO embeddings (article_id, model, vector)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (article_id, model) DO UPDATE SET vector = EXCLUDED.vector`,
		e.ArticleID, e.Model, e.Vector,
	)
	if err != nil {
		return fail(span, fmt.Errorf("upsert embedding: %w", err))
	}
	return nil
}

// CountEmbeddings returns the number of embedding rows for a model.
func (s *Store) CountEmbeddings(ctx context.Context, model string) (int, error) {
	ctx, span := startSpan(ctx, "pgstore.CountEmbeddings", "SELECT")
	defer span.End()

	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM embeddings WHERE model = $1`, model,
	).Scan(&n)
	if err != nil {
		return 0, fail(span, fmt.Errorf("count embeddings: %w", err))
	}
	return n, nil
}

// UpsertVote writes a vote keyed by (ArticleID, RaterID). The unique
// constraint makes concurrent submissions from the same rater converge on
// a single row without any application-level locking.
func (s *Store) UpsertVote(ctx context.Context, v *news.Vote) error {
	if !v.Label.Valid() {
		return news.ErrInvalidLabel
	}

	ctx, span := startSpan(ctx, "pgstore.UpsertVote", "UPSERT")
	defer span.End()

	createdAt := v.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO votes (article_id, rater_id, label, notes, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (article_id, rater_id) DO UPDATE SET
			label      = EXCLUDED.label,
			notes      = EXCLUDED.notes,
			created_at = EXCLUDED.created_at`,
		v.ArticleID, v.RaterID, string(v.Label), v.Notes, createdAt,
	)
	if err != nil {
		return fail(span, fmt.Errorf("upsert vote: %w", err))
	}
	return nil
}

// Unlabeled returns articles with zero votes, most recently published first.
func (s *Store) Unlabeled(ctx context.Context, limit int) ([]news.Article, error) {
	ctx, span := startSpan(ctx, "pgstore.Unlabeled", "SELECT")
	defer span.End()

	query := `SELECT ` + articleColumns + ` FROM articles a
		WHERE NOT EXISTS (SELECT 1 FROM votes v WHERE v.article_id = a.id)
		ORDER BY published_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query unlabeled: %w", err))
	}
	out, err := scanArticles(rows)
	if err != nil {
		return nil, fail(span, err)
	}
	return out, nil
}

// NextUnlabeled returns at most one unlabeled article.
func (s *Store) NextUnlabeled(ctx context.Context) (*news.Article, bool, error) {
	items, err := s.Unlabeled(ctx, 1)
	if err != nil {
		return nil, false, err
	}
	if len(items) == 0 {
		return nil, false, nil
	}
	return &items[0], true, nil
}

// Stats returns labeling progress counts.
func (s *Store) Stats(ctx context.Context) (*news.Stats, error) {
	ctx, span := startSpan(ctx, "pgstore.Stats", "SELECT")
	defer span.End()

	var st news.Stats
	err := s.pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM articles),
			(SELECT COUNT(DISTINCT article_id) FROM votes),
			(SELECT COUNT(*) FROM votes WHERE label = 'relevant'),
			(SELECT COUNT(*) FROM votes WHERE label = 'not_relevant')`,
	).Scan(&st.Articles, &st.Labeled, &st.Relevant, &st.NotRelevant)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query stats: %w", err))
	}
	return &st, nil
}

// CountBySource returns article counts per feed source, largest first.
func (s *Store) CountBySource(ctx context.Context) ([]news.SourceCount, error) {
	ctx, span := startSpan(ctx, "pgstore.CountBySource", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT source, COUNT(*) FROM articles GROUP BY source ORDER BY COUNT(*) DESC, source`,
	)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query counts by source: %w", err))
	}
	defer rows.Close()

	var out []news.SourceCount
	for rows.Next() {
		var sc news.SourceCount
		if err := rows.Scan(&sc.Source, &sc.Count); err != nil {
			return nil, fail(span, fmt.Errorf("scan source count: %w", err))
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("iterate source counts: %w", err))
	}
	return out, nil
}

// Latest returns the most recently scraped articles.
func (s *Store) Latest(ctx context.Context, n int) ([]news.Article, error) {
	ctx, span := startSpan(ctx, "pgstore.Latest", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT `+articleColumns+` FROM articles ORDER BY scraped_at DESC, id DESC LIMIT $1`, n,
	)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query latest: %w", err))
	}
	out, err := scanArticles(rows)
	if err != nil {
		return nil, fail(span, err)
	}
	return out, nil
}

// RecentWithVotes returns articles published after since with their vote
// aggregates and the given rater's own vote, newest first.
func (s *Store) RecentWithVotes(ctx context.Context, since time.Time, raterID string, limit int) ([]news.ArticleVotes, error) {
	ctx, span := startSpan(ctx, "pgstore.RecentWithVotes", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT a.id, a.source, a.title, a.content, a.url, a.published_at, a.scraped_at,
			COUNT(*) FILTER (WHERE v.label = 'relevant'),
			COUNT(*) FILTER (WHERE v.label = 'not_relevant'),
			MAX(v.label) FILTER (WHERE $2 <> '' AND v.rater_id = $2)
		 FROM articles a
		 LEFT JOIN votes v ON v.article_id = a.id
		 WHERE a.published_at > $1
		 GROUP BY a.id
		 ORDER BY a.published_at DESC, a.id DESC
		 LIMIT $3`,
		since, raterID, limit,
	)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query recent: %w", err))
	}
	defer rows.Close()

	var out []news.ArticleVotes
	for rows.Next() {
		var (
			av  news.ArticleVotes
			own *string
		)
		err := rows.Scan(
			&av.ID, &av.Source, &av.Title, &av.Content, &av.URL, &av.PublishedAt, &av.ScrapedAt,
			&av.Upvotes, &av.Downvotes, &own,
		)
		if err != nil {
			return nil, fail(span, fmt.Errorf("scan recent: %w", err))
		}
		if own != nil {
			label := news.Label(*own)
			av.OwnVote = &label
		}
		out = append(out, av)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("iterate recent: %w", err))
	}
	return out, nil
}

// TrainingRows returns the inner join of articles that have both an
// embedding for the model and at least one vote.
func (s *Store) TrainingRows(ctx context.Context, model string) ([]news.TrainingRow, error) {
	ctx, span := startSpan(ctx, "pgstore.TrainingRows", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT a.id, a.title, e.vector, v.rater_id, v.label, v.notes, v.created_at
		 FROM articles a
		 JOIN embeddings e ON e.article_id = a.id AND e.model = $1
		 JOIN votes v ON v.article_id = a.id
		 ORDER BY a.id, v.created_at`,
		model,
	)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query training rows: %w", err))
	}
	defer rows.Close()

	var out []news.TrainingRow
	for rows.Next() {
		var (
			id     int64
			title  string
			vector []float32
			vote   news.Vote
			label  string
		)
		if err := rows.Scan(&id, &title, &vector, &vote.RaterID, &label, &vote.Notes, &vote.CreatedAt); err != nil {
			return nil, fail(span, fmt.Errorf("scan training row: %w", err))
		}
		vote.ArticleID = id
		vote.Label = news.Label(label)

		if n := len(out); n > 0 && out[n-1].ArticleID == id {
			out[n-1].Votes = append(out[n-1].Votes, vote)
			continue
		}
		out = append(out, news.TrainingRow{
			ArticleID: id,
			Title:     title,
			Vector:    vector,
			Votes:     []news.Vote{vote},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("iterate training rows: %w", err))
	}
	return out, nil
}

// PutModelRun records a completed training run.
func (s *Store) PutModelRun(ctx context.Context, r *news.ModelRun) error {
	ctx, span := startSpan(ctx, "pgstore.PutModelRun", "INSERT")
	defer span.End()

	trainJSON, err := json.Marshal(r.TrainMetrics)
	if err != nil {
		return fail(span, fmt.Errorf("marshal train metrics: %w", err))
	}
	testJSON, err := json.Marshal(r.TestMetrics)
	if err != nil {
		return fail(span, fmt.Errorf("marshal test metrics: %w", err))
	}

	artifact := r.Artifact
	if len(artifact) == 0 {
		artifact = json.RawMessage(`{}`)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO model_runs (
			id, classifier, embedding_model, resolution, examples,
			test_fraction, seed, train_metrics, test_metrics, artifact, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		r.ID, r.Classifier, r.EmbeddingModel, r.Resolution, r.Examples,
		r.TestFraction, r.Seed, trainJSON, testJSON, []byte(artifact), r.CreatedAt,
	)
	if err != nil {
		return fail(span, fmt.Errorf("insert model run: %w", err))
	}
	return nil
}

// LatestModelRun returns the most recent training run, if any.
func (s *Store) LatestModelRun(ctx context.Context) (*news.ModelRun, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.LatestModelRun", "SELECT")
	defer span.End()

	var (
		r         news.ModelRun
		trainJSON []byte
		testJSON  []byte
		artifact  []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, classifier, embedding_model, resolution, examples,
			test_fraction, seed, train_metrics, test_metrics, artifact, created_at
		 FROM model_runs ORDER BY created_at DESC LIMIT 1`,
	).Scan(
		&r.ID, &r.Classifier, &r.EmbeddingModel, &r.Resolution, &r.Examples,
		&r.TestFraction, &r.Seed, &trainJSON, &testJSON, &artifact, &r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fail(span, fmt.Errorf("query latest model run: %w", err))
	}

	if err := json.Unmarshal(trainJSON, &r.TrainMetrics); err != nil {
		return nil, false, fail(span, fmt.Errorf("unmarshal train metrics: %w", err))
	}
	if err := json.Unmarshal(testJSON, &r.TestMetrics); err != nil {
		return nil, false, fail(span, fmt.Errorf("unmarshal test metrics: %w", err))
	}
	r.Artifact = json.RawMessage(artifact)
	return &r, true, nil
}
