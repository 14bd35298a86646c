package slack

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/sift/internal/news"
)

func sampleRun() *news.ModelRun {
	return &news.ModelRun{
		ID:             "01JRUN",
		Classifier:     "logistic",
		EmbeddingModel: "all-MiniLM-L6-v2",
		Examples:       40,
		TestMetrics: map[string]float64{
			"accuracy":  0.875,
			"f1_score":  0.857,
			"precision": 0.9,
			"recall":    0.818,
		},
		CreatedAt: time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC),
	}
}

func TestTrainingComplete(t *testing.T) {
	t.Parallel()

	var (
		gotBody        string
		gotContentType string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := New(srv.URL).TrainingComplete(context.Background(), sampleRun()); err != nil {
		t.Fatalf("TrainingComplete: %v", err)
	}

	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}
	for _, want := range []string{
		"logistic",
		"01JRUN",
		"all-MiniLM-L6-v2",
		"*Examples:* 40",
		"*Test accuracy:* 0.875",
		"2026-03-01 10:30 UTC",
	} {
		if !strings.Contains(gotBody, want) {
			t.Errorf("message missing %q:\n%s", want, gotBody)
		}
	}
}

func TestTrainingComplete_NoWebhookConfigured(t *testing.T) {
	t.Parallel()

	if err := New("").TrainingComplete(context.Background(), sampleRun()); err != nil {
		t.Fatalf("expected no-op without webhook URL, got %v", err)
	}
}

func TestTrainingComplete_WebhookRejects(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := New(srv.URL).TrainingComplete(context.Background(), sampleRun())
	if err == nil {
		t.Fatal("expected error for rejected webhook")
	}
	if !strings.Contains(err.Error(), "400") {
		t.Errorf("err = %v, want status code in message", err)
	}
}

func TestTrainingComplete_Unreachable(t *testing.T) {
	t.Parallel()

	err := New("http://127.0.0.1:1/webhook").TrainingComplete(context.Background(), sampleRun())
	if err == nil {
		t.Fatal("expected error for unreachable webhook")
	}
}
