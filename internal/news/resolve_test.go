package news

import (
	"errors"
	"testing"
	"time"
)

func vote(label Label, rater string, at time.Time) Vote {
	return Vote{ArticleID: 1, Label: label, RaterID: rater, CreatedAt: at}
}

func TestResolveStrategy_Names(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		wantName string
		wantErr  bool
	}{
		{"latest", "latest", false},
		{"", "latest", false},
		{"majority", "majority", false},
		{"newest", "", true},
	}

	for _, tt := range tests {
		t.Run("name "+tt.name, func(t *testing.T) {
			t.Parallel()

			s, err := ResolveStrategy(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveStrategy(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if err == nil && s.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", s.Name(), tt.wantName)
			}
		})
	}
}

func TestLatestWins(t *testing.T) {
	t.Parallel()

	s, _ := ResolveStrategy("latest")
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	label, ok := s.Resolve([]Vote{
		vote(LabelRelevant, "r1", base),
		vote(LabelNotRelevant, "r2", base.Add(time.Hour)),
		vote(LabelRelevant, "r3", base.Add(30*time.Minute)),
	})
	if !ok {
		t.Fatal("expected resolution")
	}
	if label != LabelNotRelevant {
		t.Errorf("label = %q, want %q (newest vote)", label, LabelNotRelevant)
	}

	if _, ok := s.Resolve(nil); ok {
		t.Error("expected ok=false for no votes")
	}
}

func TestMajorityWins(t *testing.T) {
	t.Parallel()

	s, _ := ResolveStrategy("majority")
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		votes  []Vote
		want   Label
		wantOK bool
	}{
		{
			"clear majority relevant",
			[]Vote{
				vote(LabelRelevant, "r1", base),
				vote(LabelRelevant, "r2", base),
				vote(LabelNotRelevant, "r3", base),
			},
			LabelRelevant, true,
		},
		{
			"clear majority not relevant",
			[]Vote{
				vote(LabelNotRelevant, "r1", base),
				vote(LabelNotRelevant, "r2", base),
				vote(LabelRelevant, "r3", base),
			},
			LabelNotRelevant, true,
		},
		{
			"tie is contested",
			[]Vote{
				vote(LabelRelevant, "r1", base),
				vote(LabelNotRelevant, "r2", base),
			},
			"", false,
		},
		{"no votes", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			label, ok := s.Resolve(tt.votes)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && label != tt.want {
				t.Errorf("label = %q, want %q", label, tt.want)
			}
		})
	}
}

func TestBuildExamples(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	rows := []TrainingRow{
		{
			ArticleID: 3,
			Title:     "tie",
			Vector:    []float32{3},
			Votes: []Vote{
				vote(LabelRelevant, "r1", base),
				vote(LabelNotRelevant, "r2", base),
			},
		},
		{
			ArticleID: 1,
			Title:     "relevant",
			Vector:    []float32{1},
			Votes:     []Vote{vote(LabelRelevant, "r1", base)},
		},
		{
			ArticleID: 2,
			Title:     "not relevant",
			Vector:    []float32{2},
			Votes:     []Vote{vote(LabelNotRelevant, "r1", base)},
		},
	}

	strategy, _ := ResolveStrategy("majority")
	examples := BuildExamples(rows, strategy)

	// the tied article drops out, the rest come back sorted by article ID
	if len(examples) != 2 {
		t.Fatalf("len = %d, want 2", len(examples))
	}
	if examples[0].ArticleID != 1 || examples[1].ArticleID != 2 {
		t.Errorf("order = [%d %d], want [1 2]", examples[0].ArticleID, examples[1].ArticleID)
	}
	if examples[0].Label != LabelRelevant {
		t.Errorf("examples[0].Label = %q, want %q", examples[0].Label, LabelRelevant)
	}
}

func TestLabelValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		label Label
		want  bool
	}{
		{LabelRelevant, true},
		{LabelNotRelevant, true},
		{"", false},
		{"maybe", false},
		{"Relevant", false},
	}

	for _, tt := range tests {
		if got := tt.label.Valid(); got != tt.want {
			t.Errorf("Label(%q).Valid() = %v, want %v", tt.label, got, tt.want)
		}
	}
}

func TestValidateSubmission(t *testing.T) {
	t.Parallel()

	valid := &Article{Source: "s", Title: "t", Content: "c", URL: "https://example.com"}
	if err := ValidateSubmission(valid); err != nil {
		t.Errorf("ValidateSubmission(valid) = %v, want nil", err)
	}

	invalid := &Article{Title: "t"}
	err := ValidateSubmission(invalid)
	if err == nil {
		t.Fatal("expected error for missing fields")
	}

	var mfe *MissingFieldsError
	if !errors.As(err, &mfe) {
		t.Fatalf("error type = %T, want *MissingFieldsError", err)
	}
	want := []string{"source", "content", "url"}
	if len(mfe.Fields) != len(want) {
		t.Fatalf("Fields = %v, want %v", mfe.Fields, want)
	}
	for i := range want {
		if mfe.Fields[i] != want[i] {
			t.Errorf("Fields[%d] = %q, want %q", i, mfe.Fields[i], want[i])
		}
	}
}
