// Sift collects cybersecurity news from RSS feeds, caches article
// embeddings, gathers relevance votes, and trains a relevance classifier
// over the labeled corpus.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/httpserver"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/opshttp"
	v "github.com/linnemanlabs/go-core/version"

	sc "github.com/linnemanlabs/sift/internal/cfg"
	"github.com/linnemanlabs/sift/internal/embed"
	embopenai "github.com/linnemanlabs/sift/internal/embed/openai"
	"github.com/linnemanlabs/sift/internal/ingest"
	"github.com/linnemanlabs/sift/internal/label"
	"github.com/linnemanlabs/sift/internal/mlflow"
	"github.com/linnemanlabs/sift/internal/news"
	"github.com/linnemanlabs/sift/internal/news/memstore"
	"github.com/linnemanlabs/sift/internal/news/pgstore"
	"github.com/linnemanlabs/sift/internal/notify/slack"
	"github.com/linnemanlabs/sift/internal/postgres"
	"github.com/linnemanlabs/sift/internal/train"
)

const appName = "sift"

const usageText = `usage: sift <command> [flags]

commands:
  ingest  fetch configured RSS feeds and store new articles
  embed   compute embeddings for articles that lack them
  label   label unlabeled articles interactively
  train   train the relevance classifier on labeled articles
  status  print corpus and model status
  serve   run the HTTP API server

run "sift <command> -h" for flags; every flag can also be set via the
environment with prefix SIFT_ (e.g. SIFT_DATABASE_URL).`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usageText)
		return errors.New("no command given")
	}
	command := args[0]

	v.AppName = appName
	v.Component = command
	vi := v.Get()

	// each package registers its own flags and options struct
	var (
		appCfg    sc.Config
		httpCfg   httpserver.Config
		httpmwCfg httpmw.Config
		logCfg    log.Config
		opsCfg    opshttp.Config
	)

	appCfg.RegisterFlags(flag.CommandLine)
	httpCfg.RegisterFlags(flag.CommandLine)
	httpmwCfg.RegisterFlags(flag.CommandLine)
	logCfg.RegisterFlags(flag.CommandLine)
	opsCfg.RegisterFlags(flag.CommandLine)
	var showVersion bool
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")

	// parse flags to get config values from cmdline, we check env vars next which do not override cmdline flags
	flag.CommandLine.Parse(args[1:]) //nolint:errcheck // ExitOnError flagset

	if showVersion {
		fmt.Printf(
			"%s (%s) %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Component, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		return nil
	}

	// Fill in config values from environment variables with prefix SIFT_,
	// these do not override cmdline flags
	cfg.FillFromEnv(flag.CommandLine, "SIFT_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := errors.Join(
		appCfg.Validate(),
		httpCfg.Validate(),
		httpmwCfg.Validate(),
		logCfg.Validate(),
		opsCfg.Validate(),
	); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	// initialize logger early
	lg, err := log.New(logCfg.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = lg.Sync() }()

	L := lg.With("component", command)
	ctx = log.WithContext(ctx, L)

	switch command {
	case "serve":
		return runServe(ctx, L, &appCfg, &httpCfg, &httpmwCfg, &opsCfg)
	case "ingest", "embed", "label", "train", "status":
	default:
		fmt.Fprintln(os.Stderr, usageText)
		return fmt.Errorf("unknown command %q", command)
	}

	store, closeStore, err := newStore(ctx, L, &appCfg)
	if err != nil {
		return err
	}
	defer closeStore()

	switch command {
	case "ingest":
		return runIngest(ctx, L, &appCfg, store)
	case "embed":
		return runEmbed(ctx, L, &appCfg, store)
	case "label":
		return runLabel(ctx, L, &appCfg, store)
	case "train":
		return runTrain(ctx, L, &appCfg, store)
	case "status":
		return runStatus(ctx, os.Stdout, &appCfg, store)
	}
	return nil
}

// newStore builds the configured article store. The returned close
// function is a no-op for the in-memory store.
func newStore(ctx context.Context, L log.Logger, appCfg *sc.Config) (news.Store, func(), error) {
	if appCfg.DatabaseURL == "" {
		L.Info(ctx, "using in-memory store (no database-url configured)")
		return memstore.New(), func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, appCfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres pool: %w", err)
	}
	pgStore, err := pgstore.New(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pgstore init: %w", err)
	}
	L.Info(ctx, "using postgres store")
	return pgStore, pool.Close, nil
}

func runIngest(ctx context.Context, L log.Logger, appCfg *sc.Config, store news.Store) error {
	feeds, err := appCfg.ParseFeeds()
	if err != nil {
		return err
	}

	coord := ingest.New(store, ingest.Config{
		SourceDelay:  time.Duration(appCfg.SourceDelaySeconds) * time.Second,
		MaxPerFeed:   appCfg.MaxPerFeed,
		FetchTimeout: time.Duration(appCfg.FetchTimeoutSecs) * time.Second,
	}, L, nil)

	res, err := coord.Ingest(ctx, feeds)
	if err != nil {
		return err
	}

	fmt.Printf("fetched %d entries from %d feeds, inserted %d new articles\n",
		res.Fetched, len(feeds), res.Inserted)
	return nil
}

func runEmbed(ctx context.Context, L log.Logger, appCfg *sc.Config, store news.Store) error {
	if appCfg.EmbeddingAPIKey == "" {
		return errors.New("embedding-api-key is required for embed")
	}

	embedder := embopenai.New(embopenai.Config{
		APIKey:    appCfg.EmbeddingAPIKey,
		BaseURL:   appCfg.EmbeddingBaseURL,
		Model:     appCfg.EmbeddingModel,
		Dimension: appCfg.EmbeddingDimension,
	})
	cache := embed.New(store, embedder, L, nil)

	written, err := cache.EnsureEmbeddings(ctx, appCfg.EmbeddingBatchSize)
	if err != nil {
		return err
	}

	fmt.Printf("wrote %d embeddings (model %s)\n", written, appCfg.EmbeddingModel)
	return nil
}

func runLabel(ctx context.Context, L log.Logger, appCfg *sc.Config, store news.Store) error {
	sess := label.New(store, os.Stdin, os.Stdout, L, nil)
	sess.Limit = appCfg.LabelLimit

	labeled, err := sess.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("recorded %d votes\n", labeled)
	return nil
}

func runTrain(ctx context.Context, L log.Logger, appCfg *sc.Config, store news.Store) error {
	var tracker train.Tracker
	if appCfg.MLflowEndpoint != "" {
		tracker = mlflow.New(appCfg.MLflowEndpoint, appCfg.MLflowExperiment)
		L.Info(ctx, "mlflow tracking enabled", "endpoint", appCfg.MLflowEndpoint, "experiment", appCfg.MLflowExperiment)
	}

	var notifier train.Notifier
	if appCfg.SlackWebhookURL != "" {
		notifier = slack.New(appCfg.SlackWebhookURL)
		L.Info(ctx, "notifier enabled", "type", "slack")
	}

	pipeline := train.New(store, tracker, notifier, L, nil)
	run, err := pipeline.Train(ctx, train.Params{
		Classifier:     appCfg.Classifier,
		EmbeddingModel: appCfg.EmbeddingModel,
		Resolution:     appCfg.Resolution,
		TestFraction:   appCfg.TestFraction,
		Seed:           appCfg.Seed,
	})
	if err != nil {
		return err
	}

	fmt.Printf("run %s: %s classifier, %d examples (resolution=%s)\n",
		run.ID, run.Classifier, run.Examples, run.Resolution)
	printMetrics(os.Stdout, "train", run.TrainMetrics)
	printMetrics(os.Stdout, "test", run.TestMetrics)
	return nil
}

func printMetrics(w io.Writer, partition string, values map[string]float64) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s %s=%.4f\n", partition, name, values[name])
	}
}

// statusLatestN caps how many recent articles the status report lists.
const statusLatestN = 5

func runStatus(ctx context.Context, w io.Writer, appCfg *sc.Config, store news.Store) error {
	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "articles: %d total, %d labeled (%d relevant, %d not relevant)\n",
		stats.Articles, stats.Labeled, stats.Relevant, stats.NotRelevant)

	embedded, err := store.CountEmbeddings(ctx, appCfg.EmbeddingModel)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "embeddings: %d of %d articles (model %s)\n",
		embedded, stats.Articles, appCfg.EmbeddingModel)

	sources, err := store.CountBySource(ctx)
	if err != nil {
		return err
	}
	for _, s := range sources {
		fmt.Fprintf(w, "  %-24s %d\n", s.Source, s.Count)
	}

	latest, err := store.Latest(ctx, statusLatestN)
	if err != nil {
		return err
	}
	if len(latest) > 0 {
		fmt.Fprintln(w, "latest articles:")
		for _, a := range latest {
			fmt.Fprintf(w, "  %s  [%s]  %s\n", a.ScrapedAt.Format("2006-01-02"), a.Source, a.Title)
		}
	}

	run, ok, err := store.LatestModelRun(ctx)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(w, "no model trained yet")
		return nil
	}
	fmt.Fprintf(w, "last run %s (%s): %s, %d examples\n",
		run.ID, run.CreatedAt.Format(time.RFC3339), run.Classifier, run.Examples)
	printMetrics(w, "test", run.TestMetrics)
	return nil
}
