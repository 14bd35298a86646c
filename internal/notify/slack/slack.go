// Package slack announces completed training runs via Slack incoming
// webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/sift/internal/news"
)

const httpTimeout = 10 * time.Second

// Notifier posts training run summaries to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Slack notifier. If webhookURL is empty,
// TrainingComplete is a no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// TrainingComplete posts a run summary to the configured webhook. With no
// webhook URL configured it returns nil immediately.
func (n *Notifier) TrainingComplete(ctx context.Context, run *news.ModelRun) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(buildMessage(run))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(run *news.ModelRun) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(run),
			{"type": "divider"},
			fieldsBlock(run),
			{"type": "divider"},
			contextBlock(run),
		},
	}
}

func headerBlock(run *news.ModelRun) map[string]any {
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": fmt.Sprintf("\U0001f4c8 Relevance model trained: %s", run.Classifier),
		},
	}
}

func fieldsBlock(run *news.ModelRun) map[string]any {
	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Examples:* %d", run.Examples),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Embedding model:* %s", run.EmbeddingModel),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Test accuracy:* %.3f", run.TestMetrics["accuracy"]),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Test F1:* %.3f", run.TestMetrics["f1_score"]),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Precision:* %.3f", run.TestMetrics["precision"]),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Recall:* %.3f", run.TestMetrics["recall"]),
		},
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func contextBlock(run *news.ModelRun) map[string]any {
	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("sift • run %s • %s", run.ID, run.CreatedAt.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}
