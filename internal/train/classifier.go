package train

import (
	"fmt"

	"github.com/linnemanlabs/sift/internal/news"
)

// Classifier is the capability interface for a binary relevance model.
// Implementations must be deterministic: the same training data always
// yields the same fitted model. Artifact serializes the fitted parameters
// so a run record can reconstruct the exact model.
type Classifier interface {
	Name() string
	Fit(X [][]float32, y []int) error
	Predict(X [][]float32) []int
	Artifact() ([]byte, error)
}

// NewClassifier returns the named classifier variant.
func NewClassifier(kind string) (Classifier, error) {
	switch kind {
	case "logistic", "":
		return NewLogistic(), nil
	case "centroid":
		return &Centroid{}, nil
	}
	return nil, fmt.Errorf("%q (known: logistic, centroid): %w", kind, news.ErrUnknownClassifier)
}

// classWeights returns inverse-frequency weights per class, compensating
// for the skew between relevant and not-relevant articles.
// weight(c) = n / (2 * count(c)), so a balanced set weighs both at 1.
func classWeights(y []int) (w0, w1 float64) {
	var n0, n1 float64
	for _, v := range y {
		if v == 1 {
			n1++
		} else {
			n0++
		}
	}
	n := n0 + n1
	w0, w1 = 1, 1
	if n0 > 0 {
		w0 = n / (2 * n0)
	}
	if n1 > 0 {
		w1 = n / (2 * n1)
	}
	return w0, w1
}
