// Package train assembles the supervised dataset from the store, fits a
// relevance classifier, evaluates it, and records the run.
package train

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/sift/internal/news"
)

// Store is the store surface training needs.
type Store interface {
	TrainingRows(ctx context.Context, model string) ([]news.TrainingRow, error)
	PutModelRun(ctx context.Context, r *news.ModelRun) error
}

// Tracker records a run in an external experiment tracker. Tracking is a
// side effect: an unavailable tracker never fails the run.
type Tracker interface {
	LogRun(ctx context.Context, run *news.ModelRun) error
}

// Notifier announces a completed run. Best-effort, like Tracker.
type Notifier interface {
	TrainingComplete(ctx context.Context, run *news.ModelRun) error
}

// Params configures one training run.
type Params struct {
	// Classifier kind: logistic (default) or centroid.
	Classifier string
	// EmbeddingModel selects which embedding set feeds the dataset.
	EmbeddingModel string
	// Resolution names the multi-rater label resolution strategy.
	Resolution string
	// TestFraction of examples held out for evaluation.
	TestFraction float64
	// Seed makes the split reproducible.
	Seed int64
}

// Pipeline runs training end to end.
type Pipeline struct {
	store    Store
	tracker  Tracker
	notifier Notifier
	logger   log.Logger
	metrics  *news.Metrics
}

// New creates a Pipeline. tracker and notifier may be nil.
func New(store Store, tracker Tracker, notifier Notifier, logger log.Logger, metrics *news.Metrics) *Pipeline {
	if logger == nil {
		logger = log.Nop()
	}
	if metrics == nil {
		metrics = news.NopMetrics()
	}
	return &Pipeline{
		store:    store,
		tracker:  tracker,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
	}
}

// Train assembles the dataset, fits the configured classifier, evaluates
// train and test partitions, and persists the run record. Preconditions
// (unknown classifier, empty dataset) are rejected before any write.
func (p *Pipeline) Train(ctx context.Context, params Params) (*news.ModelRun, error) {
	clf, err := NewClassifier(params.Classifier)
	if err != nil {
		return nil, err
	}

	strategy, err := news.ResolveStrategy(params.Resolution)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	rows, err := p.store.TrainingRows(ctx, params.EmbeddingModel)
	if err != nil {
		p.metrics.TrainingRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("load training rows: %w", err)
	}

	examples := news.BuildExamples(rows, strategy)
	if len(examples) == 0 {
		return nil, news.ErrNoTrainingData
	}

	var relevant int
	for _, ex := range examples {
		if ex.Label == news.LabelRelevant {
			relevant++
		}
	}
	p.logger.Info(ctx, "dataset assembled",
		"examples", len(examples),
		"relevant", relevant,
		"not_relevant", len(examples)-relevant,
		"resolution", strategy.Name(),
	)

	split, err := StratifiedSplit(examples, params.TestFraction, params.Seed)
	if err != nil {
		return nil, err
	}
	if len(split.Train) == 0 {
		return nil, fmt.Errorf("test fraction %v leaves no training examples: %w",
			params.TestFraction, news.ErrNoTrainingData)
	}

	XTrain, yTrain := features(split.Train)
	XTest, yTest := features(split.Test)

	if err := clf.Fit(XTrain, yTrain); err != nil {
		p.metrics.TrainingRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("fit %s: %w", clf.Name(), err)
	}

	artifact, err := clf.Artifact()
	if err != nil {
		p.metrics.TrainingRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("serialize %s model: %w", clf.Name(), err)
	}

	run := &news.ModelRun{
		ID:             ulid.Make().String(),
		Classifier:     clf.Name(),
		EmbeddingModel: params.EmbeddingModel,
		Resolution:     strategy.Name(),
		Examples:       len(examples),
		TestFraction:   params.TestFraction,
		Seed:           params.Seed,
		TrainMetrics:   Evaluate(yTrain, clf.Predict(XTrain)),
		Artifact:       artifact,
		CreatedAt:      time.Now(),
	}
	if len(split.Test) > 0 {
		run.TestMetrics = Evaluate(yTest, clf.Predict(XTest))
	} else {
		run.TestMetrics = map[string]float64{}
	}

	if err := p.store.PutModelRun(ctx, run); err != nil {
		p.metrics.TrainingRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("record model run: %w", err)
	}

	p.metrics.TrainingRuns.WithLabelValues("ok").Inc()
	p.metrics.TrainingDuration.Observe(time.Since(start).Seconds())
	p.metrics.TrainingExamples.Observe(float64(len(examples)))

	// Side effects after the run is durable. Failures are logged only.
	if p.tracker != nil {
		if err := p.tracker.LogRun(ctx, run); err != nil {
			p.logger.Warn(ctx, "experiment tracker unavailable, run not logged",
				"run_id", run.ID, "error", err)
		}
	}
	if p.notifier != nil {
		if err := p.notifier.TrainingComplete(ctx, run); err != nil {
			p.logger.Warn(ctx, "training notification failed", "run_id", run.ID, "error", err)
		}
	}

	p.logger.Info(ctx, "training complete",
		"run_id", run.ID,
		"classifier", run.Classifier,
		"examples", run.Examples,
		"train_accuracy", run.TrainMetrics["accuracy"],
		"test_accuracy", run.TestMetrics["accuracy"],
		"test_f1", run.TestMetrics["f1_score"],
		"duration", time.Since(start).Seconds(),
	)

	return run, nil
}
