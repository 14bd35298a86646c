// Package ingest pulls articles from configured feed sources into the
// store. Feeds are untrusted input: a malformed entry or an unreachable
// source is logged and skipped, never fatal for the batch.
package ingest

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/sift/internal/news"
)

// Inserter is the store surface ingestion needs.
type Inserter interface {
	InsertArticle(ctx context.Context, a *news.Article) (bool, error)
}

// Config tunes the politeness policy and per-feed bounds.
type Config struct {
	// SourceDelay is the pause between feed sources.
	SourceDelay time.Duration
	// MaxPerFeed caps the entries taken from a single feed. 0 = no cap.
	MaxPerFeed int
	// FetchTimeout bounds a single feed fetch.
	FetchTimeout time.Duration
}

// Result aggregates one ingestion run for observability.
type Result struct {
	Fetched  int `json:"fetched"`
	Inserted int `json:"inserted"`
}

// Coordinator fetches feeds and writes deduplicated articles.
type Coordinator struct {
	store   Inserter
	parser  *gofeed.Parser
	cfg     Config
	logger  log.Logger
	metrics *news.Metrics
	now     func() time.Time
}

// New creates a Coordinator. A nil metrics registers nothing.
func New(store Inserter, cfg Config, logger log.Logger, metrics *news.Metrics) *Coordinator {
	if logger == nil {
		logger = log.Nop()
	}
	if metrics == nil {
		metrics = news.NopMetrics()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}

	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: cfg.FetchTimeout}
	parser.UserAgent = "sift/1.0"

	return &Coordinator{
		store:   store,
		parser:  parser,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Ingest fetches every source and inserts what is new. Sources are
// processed in name order with the configured delay between them. The
// returned counts cover all sources; per-source failures are absorbed.
// Only a store write failure is fatal.
func (c *Coordinator) Ingest(ctx context.Context, sources map[string]string) (*Result, error) {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	res := &Result{}
	for i, name := range names {
		if i > 0 && c.cfg.SourceDelay > 0 {
			select {
			case <-time.After(c.cfg.SourceDelay):
			case <-ctx.Done():
				return res, ctx.Err()
			}
		}

		if err := c.ingestSource(ctx, name, sources[name], res); err != nil {
			return res, err
		}
	}

	c.logger.Info(ctx, "ingestion complete",
		"sources", len(names),
		"fetched", res.Fetched,
		"inserted", res.Inserted,
		"duplicates", res.Fetched-res.Inserted,
	)
	return res, nil
}

func (c *Coordinator) ingestSource(ctx context.Context, name, url string, res *Result) error {
	L := c.logger.With("source", name)

	feed, err := c.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		// Unreachable or malformed feed: skip the source, keep the batch.
		L.Warn(ctx, "feed fetch failed, skipping source", "url", url, "error", err)
		c.metrics.IngestErrors.WithLabelValues(name, "fetch").Inc()
		return nil
	}

	items := feed.Items
	if c.cfg.MaxPerFeed > 0 && len(items) > c.cfg.MaxPerFeed {
		items = items[:c.cfg.MaxPerFeed]
	}

	inserted := 0
	for _, item := range items {
		article := c.normalize(name, item)
		if article.URL == "" {
			L.Warn(ctx, "feed entry without link, skipping", "title", article.Title)
			c.metrics.IngestErrors.WithLabelValues(name, "normalize").Inc()
			continue
		}

		res.Fetched++
		c.metrics.ArticlesFetched.WithLabelValues(name).Inc()

		ok, err := c.store.InsertArticle(ctx, article)
		if err != nil {
			// Store failures are fatal for the run: without the store
			// there is nothing left to do.
			return err
		}
		if ok {
			inserted++
			res.Inserted++
			c.metrics.ArticlesInserted.WithLabelValues(name).Inc()
		}
	}

	L.Info(ctx, "source ingested", "fetched", len(items), "inserted", inserted)
	return nil
}

// normalize maps a feed entry onto an Article. Missing fields degrade to
// empty strings; a missing published timestamp falls back to scrape time.
func (c *Coordinator) normalize(source string, item *gofeed.Item) *news.Article {
	now := c.now().UTC()

	content := item.Description
	if content == "" {
		content = item.Content
	}

	publishedAt := now
	switch {
	case item.PublishedParsed != nil:
		publishedAt = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		publishedAt = item.UpdatedParsed.UTC()
	}

	return &news.Article{
		Source:      source,
		Title:       item.Title,
		Content:     content,
		URL:         item.Link,
		PublishedAt: publishedAt,
		ScrapedAt:   now,
	}
}
