// Package label implements the interactive single-rater labeling session.
// Every judgement is committed immediately, so quitting or killing the
// process never loses prior progress.
package label

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/sift/internal/news"
)

const contentPreviewLen = 400

// Store is the store surface labeling needs.
type Store interface {
	Unlabeled(ctx context.Context, limit int) ([]news.Article, error)
	UpsertVote(ctx context.Context, v *news.Vote) error
	Stats(ctx context.Context) (*news.Stats, error)
}

// Session runs one interactive labeling pass over unlabeled articles.
type Session struct {
	store   Store
	in      io.Reader
	out     io.Writer
	logger  log.Logger
	metrics *news.Metrics
	// Limit caps how many unlabeled articles one session presents.
	Limit int
}

// New creates a Session reading commands from in and writing prompts to out.
func New(store Store, in io.Reader, out io.Writer, logger log.Logger, metrics *news.Metrics) *Session {
	if logger == nil {
		logger = log.Nop()
	}
	if metrics == nil {
		metrics = news.NopMetrics()
	}
	return &Session{
		store:   store,
		in:      in,
		out:     out,
		logger:  logger,
		metrics: metrics,
		Limit:   50,
	}
}

// Run presents unlabeled articles newest-published first and records one
// vote per article. It returns the number of articles labeled. Input
// commands: r (relevant), n (not relevant), s (skip), q (quit now,
// keeping everything already committed).
func (s *Session) Run(ctx context.Context) (int, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return 0, fmt.Errorf("load stats: %w", err)
	}

	fmt.Fprintf(s.out, "Labels so far: %d relevant, %d not relevant (%d articles labeled)\n\n",
		stats.Relevant, stats.NotRelevant, stats.Labeled)

	articles, err := s.store.Unlabeled(ctx, s.Limit)
	if err != nil {
		return 0, fmt.Errorf("load unlabeled: %w", err)
	}
	if len(articles) == 0 {
		fmt.Fprintln(s.out, "All articles have been labeled.")
		return 0, nil
	}

	fmt.Fprintf(s.out, "%d unlabeled articles. Commands: r=relevant  n=not relevant  s=skip  q=quit\n", len(articles))

	scanner := bufio.NewScanner(s.in)
	labeled := 0

	for i := range articles {
		a := &articles[i]
		s.display(i+1, len(articles), a)

		cmd, ok := s.prompt(scanner)
		if !ok {
			// input closed: same as quit
			break
		}

		switch cmd {
		case "q":
			fmt.Fprintf(s.out, "\nLabeled %d articles this session\n", labeled)
			return labeled, nil
		case "s":
			fmt.Fprintln(s.out, "skipped")
			continue
		case "r", "n":
			vote := &news.Vote{ArticleID: a.ID, Label: news.LabelRelevant, CreatedAt: time.Now()}
			if cmd == "n" {
				vote.Label = news.LabelNotRelevant
			}
			if err := s.store.UpsertVote(ctx, vote); err != nil {
				return labeled, fmt.Errorf("save vote for article %d: %w", a.ID, err)
			}
			labeled++
			s.metrics.VotesTotal.WithLabelValues(string(vote.Label), "cli").Inc()
			fmt.Fprintf(s.out, "marked %s\n", vote.Label)
		}
	}

	fmt.Fprintf(s.out, "\nLabeled %d articles this session\n", labeled)
	return labeled, nil
}

// prompt reads commands until it sees a valid one. ok=false means the
// input stream ended.
func (s *Session) prompt(scanner *bufio.Scanner) (string, bool) {
	for {
		fmt.Fprint(s.out, "\n[r/n/s/q] > ")
		if !scanner.Scan() {
			return "", false
		}
		cmd := strings.ToLower(strings.TrimSpace(scanner.Text()))
		switch cmd {
		case "r", "n", "s", "q":
			return cmd, true
		}
		fmt.Fprintln(s.out, "invalid choice: r (relevant), n (not relevant), s (skip), q (quit)")
	}
}

func (s *Session) display(idx, total int, a *news.Article) {
	preview := a.Content
	if len(preview) > contentPreviewLen {
		preview = preview[:contentPreviewLen] + "..."
	}

	fmt.Fprintf(s.out, "\n%s\n", strings.Repeat("=", 72))
	fmt.Fprintf(s.out, "Article %d/%d  [%s]  %s\n", idx, total, a.Source, a.PublishedAt.Format("2006-01-02"))
	fmt.Fprintf(s.out, "%s\n\n%s\n%s\n", a.Title, preview, a.URL)
}
