// Package embed maintains the embedding cache: every article gets exactly
// one vector per embedding model identity, computed once and never
// recomputed unless the model identity changes.
package embed

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/sift/internal/news"
)

// maxContentChars bounds the content slice fed to the embedding backend so
// the title stays weighted when content is long or noisy.
const maxContentChars = 500

// Embedder is the capability interface for an embedding backend.
type Embedder interface {
	// Embed maps a batch of texts to vectors, one per input, each of
	// length Dimension().
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Identity names the model and version; it keys the cache.
	Identity() string
	// Dimension is the declared vector length.
	Dimension() int
}

// Store is the store surface the cache needs.
type Store interface {
	MissingEmbeddings(ctx context.Context, model string, limit int) ([]news.Article, error)
	PutEmbedding(ctx context.Context, e *news.Embedding) error
}

// Cache fills in missing embedding rows for the active model.
type Cache struct {
	store    Store
	embedder Embedder
	logger   log.Logger
	metrics  *news.Metrics
}

// New creates a Cache.
func New(store Store, embedder Embedder, logger log.Logger, metrics *news.Metrics) *Cache {
	if logger == nil {
		logger = log.Nop()
	}
	if metrics == nil {
		metrics = news.NopMetrics()
	}
	return &Cache{store: store, embedder: embedder, logger: logger, metrics: metrics}
}

// InputText builds the embedding input for one article. The content bound
// counts characters, not bytes, so a multibyte rune is never split.
func InputText(a *news.Article) string {
	content := a.Content
	if utf8.RuneCountInString(content) > maxContentChars {
		runes := []rune(content)
		content = string(runes[:maxContentChars])
	}
	return a.Title + ". " + content
}

// EnsureEmbeddings embeds every article that has no vector for the active
// model, in batches of batchSize, newest first. It returns the number of
// articles processed; a second run with no new articles processes zero.
//
// A batch whose embedding call fails is logged and skipped; a vector of
// the wrong length is a configuration error and aborts the run before
// anything from that batch is written.
func (c *Cache) EnsureEmbeddings(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 32
	}

	model := c.embedder.Identity()
	L := c.logger.With("model", model)

	articles, err := c.store.MissingEmbeddings(ctx, model, 0)
	if err != nil {
		return 0, fmt.Errorf("list missing embeddings: %w", err)
	}
	if len(articles) == 0 {
		L.Info(ctx, "embedding cache is warm, nothing to do")
		return 0, nil
	}

	L.Info(ctx, "embedding articles", "missing", len(articles), "batch_size", batchSize)

	processed := 0
	for start := 0; start < len(articles); start += batchSize {
		end := min(start+batchSize, len(articles))
		batch := articles[start:end]

		n, err := c.embedBatch(ctx, model, batch)
		if err != nil {
			return processed, err
		}
		processed += n
	}

	L.Info(ctx, "embedding run complete", "processed", processed)
	return processed, nil
}

func (c *Cache) embedBatch(ctx context.Context, model string, batch []news.Article) (int, error) {
	texts := make([]string, len(batch))
	for i := range batch {
		texts[i] = InputText(&batch[i])
	}

	start := time.Now()
	vectors, err := c.embedder.Embed(ctx, texts)
	c.metrics.EmbeddingBatches.Inc()
	c.metrics.EmbeddingDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		// Transient backend failure: skip this batch, keep the run.
		c.logger.Warn(ctx, "embedding batch failed, skipping",
			"batch_size", len(batch), "error", err)
		return 0, nil
	}

	if len(vectors) != len(batch) {
		return 0, fmt.Errorf("backend returned %d vectors for %d inputs: %w",
			len(vectors), len(batch), news.ErrDimensionMismatch)
	}

	dim := c.embedder.Dimension()
	for _, vec := range vectors {
		if len(vec) != dim {
			return 0, fmt.Errorf("vector length %d, model %s declares %d: %w",
				len(vec), model, dim, news.ErrDimensionMismatch)
		}
	}

	for i := range batch {
		emb := &news.Embedding{
			ArticleID: batch[i].ID,
			Model:     model,
			Vector:    vectors[i],
		}
		if err := c.store.PutEmbedding(ctx, emb); err != nil {
			return i, fmt.Errorf("store embedding for article %d: %w", batch[i].ID, err)
		}
		c.metrics.EmbeddingsWritten.Inc()
	}
	return len(batch), nil
}
