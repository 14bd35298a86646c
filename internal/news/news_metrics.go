package news

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the triage pipeline.
type Metrics struct {
	ArticlesFetched   *prometheus.CounterVec
	ArticlesInserted  *prometheus.CounterVec
	IngestErrors      *prometheus.CounterVec
	EmbeddingsWritten prometheus.Counter
	EmbeddingBatches  prometheus.Counter
	EmbeddingDuration prometheus.Histogram
	VotesTotal        *prometheus.CounterVec
	TrainingRuns      *prometheus.CounterVec
	TrainingDuration  prometheus.Histogram
	TrainingExamples  prometheus.Histogram
}

// NewMetrics registers and returns pipeline metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ArticlesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sift_articles_fetched_total",
			Help: "Feed entries fetched, by source.",
		}, []string{"source"}),
		ArticlesInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sift_articles_inserted_total",
			Help: "New articles stored, by source.",
		}, []string{"source"}),
		IngestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sift_ingest_errors_total",
			Help: "Per-item ingestion failures absorbed, by source and stage.",
		}, []string{"source", "stage"}),
		EmbeddingsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sift_embeddings_written_total",
			Help: "Embedding rows upserted.",
		}),
		EmbeddingBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sift_embedding_batches_total",
			Help: "Embedding backend batch calls.",
		}),
		EmbeddingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sift_embedding_batch_duration_seconds",
			Help:    "Duration of embedding backend batch calls.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s .. ~51s
		}),
		VotesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sift_votes_total",
			Help: "Votes recorded, by label and mode (cli/api).",
		}, []string{"label", "mode"}),
		TrainingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sift_training_runs_total",
			Help: "Classifier training runs, by outcome.",
		}, []string{"outcome"}),
		TrainingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sift_training_duration_seconds",
			Help:    "Duration of training runs.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms .. ~102s
		}),
		TrainingExamples: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sift_training_examples",
			Help:    "Dataset size per training run.",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12), // 10 .. ~20480
		}),
	}

	reg.MustRegister(
		m.ArticlesFetched,
		m.ArticlesInserted,
		m.IngestErrors,
		m.EmbeddingsWritten,
		m.EmbeddingBatches,
		m.EmbeddingDuration,
		m.VotesTotal,
		m.TrainingRuns,
		m.TrainingDuration,
		m.TrainingExamples,
	)

	return m
}

// NopMetrics returns metrics bound to a private registry, for tests and
// one-shot CLI runs that do not expose a metrics endpoint.
func NopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
