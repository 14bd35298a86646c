package news

import (
	"fmt"
	"sort"
)

// ResolutionStrategy collapses the votes on one article into a single
// training label. Returning ok=false excludes the article from the
// training set. The strategy name is recorded on every ModelRun;
// "latest" is the default.
type ResolutionStrategy interface {
	Name() string
	Resolve(votes []Vote) (Label, bool)
}

// ResolveStrategy returns the named strategy, or an error listing the
// known names.
func ResolveStrategy(name string) (ResolutionStrategy, error) {
	switch name {
	case "latest", "":
		return latestWins{}, nil
	case "majority":
		return majorityWins{}, nil
	}
	return nil, fmt.Errorf("unknown resolution strategy %q (known: latest, majority)", name)
}

// latestWins resolves to the most recently updated vote.
type latestWins struct{}

func (latestWins) Name() string { return "latest" }

func (latestWins) Resolve(votes []Vote) (Label, bool) {
	if len(votes) == 0 {
		return "", false
	}
	latest := votes[0]
	for _, v := range votes[1:] {
		if v.CreatedAt.After(latest.CreatedAt) {
			latest = v
		}
	}
	return latest.Label, true
}

// majorityWins resolves to the label with more votes; contested articles
// (ties) are excluded.
type majorityWins struct{}

func (majorityWins) Name() string { return "majority" }

func (majorityWins) Resolve(votes []Vote) (Label, bool) {
	var up, down int
	for _, v := range votes {
		switch v.Label {
		case LabelRelevant:
			up++
		case LabelNotRelevant:
			down++
		}
	}
	switch {
	case up > down:
		return LabelRelevant, true
	case down > up:
		return LabelNotRelevant, true
	}
	return "", false
}

// BuildExamples applies the strategy to raw training rows. Rows whose
// votes do not resolve are dropped. Output order is by article ID so the
// dataset is deterministic for a given store state.
func BuildExamples(rows []TrainingRow, strategy ResolutionStrategy) []TrainingExample {
	examples := make([]TrainingExample, 0, len(rows))
	for _, row := range rows {
		label, ok := strategy.Resolve(row.Votes)
		if !ok {
			continue
		}
		examples = append(examples, TrainingExample{
			ArticleID: row.ArticleID,
			Title:     row.Title,
			Vector:    row.Vector,
			Label:     label,
		})
	}
	sort.Slice(examples, func(i, j int) bool { return examples[i].ArticleID < examples[j].ArticleID })
	return examples
}
