// Package cfg holds the application configuration, bound to flags and
// validated before any component starts.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"strings"
)

// DefaultFeeds is the out-of-the-box source list, comma-separated
// name=url pairs.
const DefaultFeeds = "BleepingComputer=https://www.bleepingcomputer.com/feed/," +
	"TheHackerNews=https://feeds.feedburner.com/TheHackersNews," +
	"SecurityWeek=https://feeds.feedburner.com/securityweek," +
	"KrebsOnSecurity=https://krebsonsecurity.com/feed/," +
	"DarkReading=https://www.darkreading.com/rss.xml"

// Config adds sift-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DatabaseURL string
	HTTPPort    int
	APIToken    string

	DrainSeconds          int
	ShutdownBudgetSeconds int

	Feeds              string
	SourceDelaySeconds int
	MaxPerFeed         int
	FetchTimeoutSecs   int

	EmbeddingAPIKey    string
	EmbeddingBaseURL   string
	EmbeddingModel     string
	EmbeddingDimension int
	EmbeddingBatchSize int

	Classifier   string
	TestFraction float64
	Seed         int64
	Resolution   string

	MLflowEndpoint   string
	MLflowExperiment string
	SlackWebhookURL  string

	LabelLimit int
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token for the manual article submission endpoint (empty = endpoint disabled)")
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")

	fs.StringVar(&c.Feeds, "feeds", DefaultFeeds, "comma-separated name=url RSS feed pairs")
	fs.IntVar(&c.SourceDelaySeconds, "source-delay-seconds", 1, "pause between feed fetches (0..60)")
	fs.IntVar(&c.MaxPerFeed, "max-per-feed", 0, "cap on entries taken per feed (0 = no cap)")
	fs.IntVar(&c.FetchTimeoutSecs, "fetch-timeout-seconds", 30, "per-feed HTTP fetch timeout (1..300)")

	fs.StringVar(&c.EmbeddingAPIKey, "embedding-api-key", "", "API key for the embedding provider")
	fs.StringVar(&c.EmbeddingBaseURL, "embedding-base-url", "", "base URL of the embedding provider (empty = OpenAI)")
	fs.StringVar(&c.EmbeddingModel, "embedding-model", "all-MiniLM-L6-v2", "embedding model identifier")
	fs.IntVar(&c.EmbeddingDimension, "embedding-dimension", 384, "expected embedding vector length")
	fs.IntVar(&c.EmbeddingBatchSize, "embedding-batch-size", 32, "articles embedded per provider request (1..256)")

	fs.StringVar(&c.Classifier, "classifier", "logistic", "classifier kind: logistic or centroid")
	fs.Float64Var(&c.TestFraction, "test-fraction", 0.2, "fraction of examples held out for evaluation (0..1 exclusive)")
	fs.Int64Var(&c.Seed, "seed", 42, "random seed for the train/test split")
	fs.StringVar(&c.Resolution, "resolution", "latest", "vote resolution strategy: latest or majority")

	fs.StringVar(&c.MLflowEndpoint, "mlflow-endpoint", "", "MLflow tracking server URL (empty = tracking disabled)")
	fs.StringVar(&c.MLflowExperiment, "mlflow-experiment", "news-triage", "MLflow experiment name")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for notifications")

	fs.IntVar(&c.LabelLimit, "label-limit", 50, "articles offered per interactive labeling session (1..1000)")
}

// ParseFeeds splits the feeds flag into a source name to URL map.
func (c *Config) ParseFeeds() (map[string]string, error) {
	feeds := make(map[string]string)
	for _, pair := range strings.Split(c.Feeds, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, url, ok := strings.Cut(pair, "=")
		if !ok || name == "" || url == "" {
			return nil, fmt.Errorf("malformed feed entry %q (want name=url)", pair)
		}
		feeds[name] = url
	}
	if len(feeds) == 0 {
		return nil, errors.New("no feeds configured")
	}
	return feeds, nil
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}

	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	if _, err := c.ParseFeeds(); err != nil {
		errs = append(errs, fmt.Errorf("invalid FEEDS: %w", err))
	}
	if c.SourceDelaySeconds < 0 || c.SourceDelaySeconds > 60 {
		errs = append(errs, fmt.Errorf("invalid SOURCE_DELAY_SECONDS %d (must be 0..60)", c.SourceDelaySeconds))
	}
	if c.MaxPerFeed < 0 {
		errs = append(errs, fmt.Errorf("invalid MAX_PER_FEED %d (must be >= 0)", c.MaxPerFeed))
	}
	if c.FetchTimeoutSecs <= 0 || c.FetchTimeoutSecs > 300 {
		errs = append(errs, fmt.Errorf("invalid FETCH_TIMEOUT_SECONDS %d (must be 1..300)", c.FetchTimeoutSecs))
	}

	if c.EmbeddingModel == "" {
		errs = append(errs, errors.New("EMBEDDING_MODEL is required"))
	}
	if c.EmbeddingDimension <= 0 {
		errs = append(errs, fmt.Errorf("invalid EMBEDDING_DIMENSION %d (must be > 0)", c.EmbeddingDimension))
	}
	if c.EmbeddingBatchSize <= 0 || c.EmbeddingBatchSize > 256 {
		errs = append(errs, fmt.Errorf("invalid EMBEDDING_BATCH_SIZE %d (must be 1..256)", c.EmbeddingBatchSize))
	}

	switch c.Classifier {
	case "logistic", "centroid":
	default:
		errs = append(errs, fmt.Errorf("invalid CLASSIFIER %q (must be logistic or centroid)", c.Classifier))
	}
	if c.TestFraction <= 0 || c.TestFraction >= 1 {
		errs = append(errs, fmt.Errorf("invalid TEST_FRACTION %g (must be between 0 and 1 exclusive)", c.TestFraction))
	}
	switch c.Resolution {
	case "latest", "majority":
	default:
		errs = append(errs, fmt.Errorf("invalid RESOLUTION %q (must be latest or majority)", c.Resolution))
	}

	if c.MLflowEndpoint != "" && c.MLflowExperiment == "" {
		errs = append(errs, errors.New("MLFLOW_EXPERIMENT is required when MLFLOW_ENDPOINT is set"))
	}

	if c.LabelLimit <= 0 || c.LabelLimit > 1000 {
		errs = append(errs, fmt.Errorf("invalid LABEL_LIMIT %d (must be 1..1000)", c.LabelLimit))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
