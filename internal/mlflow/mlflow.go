// Package mlflow is a minimal write-only client for the MLflow tracking
// REST API. The pipeline only pushes runs; nothing is ever read back.
package mlflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/linnemanlabs/sift/internal/news"
)

const httpTimeout = 15 * time.Second

// Client logs training runs to an MLflow tracking server.
type Client struct {
	endpoint   string
	experiment string
	httpClient *http.Client
}

// New creates a Client for the given tracking server endpoint and
// experiment name.
func New(endpoint, experiment string) *Client {
	return &Client{
		endpoint:   endpoint,
		experiment: experiment,
		httpClient: &http.Client{Timeout: httpTimeout},
	}
}

type kv struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type metric struct {
	Key       string  `json:"key"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
	Step      int64   `json:"step"`
}

// LogRun implements train.Tracker: it records the run's parameters and
// metrics under the configured experiment and marks the run finished.
func (c *Client) LogRun(ctx context.Context, run *news.ModelRun) error {
	expID, err := c.experimentID(ctx)
	if err != nil {
		return fmt.Errorf("mlflow: resolve experiment: %w", err)
	}

	now := time.Now().UnixMilli()

	var created struct {
		Run struct {
			Info struct {
				RunID string `json:"run_id"`
			} `json:"info"`
		} `json:"run"`
	}
	err = c.post(ctx, "/api/2.0/mlflow/runs/create", map[string]any{
		"experiment_id": expID,
		"run_name":      run.ID,
		"start_time":    now,
	}, &created)
	if err != nil {
		return fmt.Errorf("mlflow: create run: %w", err)
	}
	runID := created.Run.Info.RunID

	params := []kv{
		{"classifier", run.Classifier},
		{"embedding_model", run.EmbeddingModel},
		{"resolution", run.Resolution},
		{"examples", strconv.Itoa(run.Examples)},
		{"test_fraction", strconv.FormatFloat(run.TestFraction, 'g', -1, 64)},
		{"seed", strconv.FormatInt(run.Seed, 10)},
	}

	metrics := make([]metric, 0, len(run.TrainMetrics)+len(run.TestMetrics))
	metrics = append(metrics, prefixed("train_", run.TrainMetrics, now)...)
	metrics = append(metrics, prefixed("test_", run.TestMetrics, now)...)

	err = c.post(ctx, "/api/2.0/mlflow/runs/log-batch", map[string]any{
		"run_id":  runID,
		"params":  params,
		"metrics": metrics,
	}, nil)
	if err != nil {
		return fmt.Errorf("mlflow: log batch: %w", err)
	}

	if len(run.Artifact) > 0 {
		if err := c.logModel(ctx, runID, run, now); err != nil {
			return fmt.Errorf("mlflow: log model: %w", err)
		}
	}

	err = c.post(ctx, "/api/2.0/mlflow/runs/update", map[string]any{
		"run_id":   runID,
		"status":   "FINISHED",
		"end_time": time.Now().UnixMilli(),
	}, nil)
	if err != nil {
		return fmt.Errorf("mlflow: finish run: %w", err)
	}

	return nil
}

// logModel records the fitted model under the run. model_json is MLflow's
// MLmodel metadata document; the classifier's serialized parameters ride
// along in a custom flavor.
func (c *Client) logModel(ctx context.Context, runID string, run *news.ModelRun, ts int64) error {
	modelJSON, err := json.Marshal(map[string]any{
		"artifact_path":    "relevance-classifier",
		"run_id":           runID,
		"utc_time_created": time.UnixMilli(ts).UTC().Format("2006-01-02 15:04:05.000000"),
		"flavors": map[string]any{
			"sift": map[string]any{
				"classifier":      run.Classifier,
				"embedding_model": run.EmbeddingModel,
				"parameters":      run.Artifact,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal model document: %w", err)
	}

	return c.post(ctx, "/api/2.0/mlflow/runs/log-model", map[string]any{
		"run_id":     runID,
		"model_json": string(modelJSON),
	}, nil)
}

// experimentID fetches the experiment by name, creating it on first use.
func (c *Client) experimentID(ctx context.Context) (string, error) {
	var got struct {
		Experiment struct {
			ExperimentID string `json:"experiment_id"`
		} `json:"experiment"`
	}
	err := c.post(ctx, "/api/2.0/mlflow/experiments/get-by-name", map[string]any{
		"experiment_name": c.experiment,
	}, &got)
	if err == nil && got.Experiment.ExperimentID != "" {
		return got.Experiment.ExperimentID, nil
	}

	var created struct {
		ExperimentID string `json:"experiment_id"`
	}
	err = c.post(ctx, "/api/2.0/mlflow/experiments/create", map[string]any{
		"name": c.experiment,
	}, &created)
	if err != nil {
		return "", err
	}
	return created.ExperimentID, nil
}

func prefixed(prefix string, values map[string]float64, ts int64) []metric {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]metric, 0, len(keys))
	for _, k := range keys {
		out = append(out, metric{Key: prefix + k, Value: values[k], Timestamp: ts})
	}
	return out
}

func (c *Client) post(ctx context.Context, path string, payload any, into any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, string(respBody))
	}

	if into != nil {
		if err := json.Unmarshal(respBody, into); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
