package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sc "github.com/linnemanlabs/sift/internal/cfg"
	"github.com/linnemanlabs/sift/internal/news"
	"github.com/linnemanlabs/sift/internal/news/memstore"
)

func TestNotifySystemd_NoSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")

	err := notifySystemd()
	if err == nil {
		t.Fatal("expected error when NOTIFY_SOCKET is empty")
	}
	if !strings.Contains(err.Error(), "NOTIFY_SOCKET not set") {
		t.Errorf("error = %q, want substring %q", err, "NOTIFY_SOCKET not set")
	}
}

func TestNotifySystemd_InvalidPath(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", filepath.Join(t.TempDir(), "nonexistent.sock"))

	err := notifySystemd()
	if err == nil {
		t.Fatal("expected error for nonexistent socket")
	}
	if !strings.Contains(err.Error(), "dial failed") {
		t.Errorf("error = %q, want substring %q", err, "dial failed")
	}
}

func TestNotifySystemd_Success(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "notify.sock")

	// Create a real unixgram listener.
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(context.Background(), "unixgram", sockPath)
	if err != nil {
		t.Fatalf("listen unixgram: %v", err)
	}
	defer func() { _ = conn.Close() }()

	t.Setenv("NOTIFY_SOCKET", sockPath)

	if err := notifySystemd(); err != nil {
		t.Fatalf("notifySystemd() = %v, want nil", err)
	}

	buf := make([]byte, 256)
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read from socket: %v", err)
	}

	got := string(buf[:n])
	if got != "READY=1" {
		t.Errorf("payload = %q, want %q", got, "READY=1")
	}
}

func TestRunStatus(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	scraped := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i, source := range []string{"krebs", "krebs", "darkreading"} {
		a := &news.Article{
			Source:      source,
			Title:       fmt.Sprintf("headline %d", i),
			Content:     "content",
			URL:         fmt.Sprintf("https://example.com/status/%d", i),
			PublishedAt: scraped,
			ScrapedAt:   scraped.Add(time.Duration(i) * time.Hour),
		}
		if _, err := store.InsertArticle(ctx, a); err != nil {
			t.Fatalf("InsertArticle: %v", err)
		}
		if i == 0 {
			e := &news.Embedding{ArticleID: a.ID, Model: "all-MiniLM-L6-v2", Vector: []float32{1, 2}}
			if err := store.PutEmbedding(ctx, e); err != nil {
				t.Fatalf("PutEmbedding: %v", err)
			}
			v := &news.Vote{ArticleID: a.ID, Label: news.LabelRelevant, CreatedAt: scraped}
			if err := store.UpsertVote(ctx, v); err != nil {
				t.Fatalf("UpsertVote: %v", err)
			}
		}
	}

	appCfg := sc.Config{EmbeddingModel: "all-MiniLM-L6-v2"}
	var out bytes.Buffer
	if err := runStatus(ctx, &out, &appCfg, store); err != nil {
		t.Fatalf("runStatus: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"articles: 3 total, 1 labeled (1 relevant, 0 not relevant)",
		"embeddings: 1 of 3 articles (model all-MiniLM-L6-v2)",
		"krebs",
		"darkreading",
		"latest articles:",
		"headline 2",
		"no model trained yet",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("status output missing %q:\n%s", want, got)
		}
	}
}

func TestRunStatus_WithModelRun(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	run := &news.ModelRun{
		ID:          "01JRUN",
		Classifier:  "logistic",
		Examples:    40,
		TestMetrics: map[string]float64{"accuracy": 0.875},
		CreatedAt:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := store.PutModelRun(ctx, run); err != nil {
		t.Fatalf("PutModelRun: %v", err)
	}

	var out bytes.Buffer
	if err := runStatus(ctx, &out, &sc.Config{EmbeddingModel: "m"}, store); err != nil {
		t.Fatalf("runStatus: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "last run 01JRUN") {
		t.Errorf("status output missing run line:\n%s", got)
	}
	if !strings.Contains(got, "test accuracy=0.8750") {
		t.Errorf("status output missing test metrics:\n%s", got)
	}
}
