package news

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for precondition and configuration failures. These are
// rejected before any write; callers match them with errors.Is.
var (
	// ErrNoTrainingData means no article has both an embedding for the
	// active model and at least one vote.
	ErrNoTrainingData = errors.New("no labeled and embedded articles available for training")

	// ErrInvalidLabel means a vote carried a label outside
	// relevant/not_relevant.
	ErrInvalidLabel = errors.New("label must be \"relevant\" or \"not_relevant\"")

	// ErrDimensionMismatch means an embedding backend returned a vector
	// whose length differs from its declared dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrUnknownClassifier means the configured classifier kind has no
	// registered implementation.
	ErrUnknownClassifier = errors.New("unknown classifier kind")
)

// MissingFieldsError lists the required fields absent from an externally
// submitted article.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}

// ValidateSubmission checks an externally sourced article for the fields
// ingestion cannot default. PublishedAt is not required; it falls back to
// the scrape time.
func ValidateSubmission(a *Article) error {
	var missing []string
	if a.Source == "" {
		missing = append(missing, "source")
	}
	if a.Title == "" {
		missing = append(missing, "title")
	}
	if a.Content == "" {
		missing = append(missing, "content")
	}
	if a.URL == "" {
		missing = append(missing, "url")
	}
	if len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}
	return nil
}
