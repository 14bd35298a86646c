package train

import (
	"encoding/json"
	"errors"
	"math"
)

// Centroid is a nearest-class-centroid classifier: each class is reduced
// to the mean of its training vectors and prediction picks the closer
// centroid by Euclidean distance. Cheap, deterministic, and a useful
// baseline against the logistic model.
type Centroid struct {
	relevant    []float64
	notRelevant []float64
}

// Name implements Classifier.
func (c *Centroid) Name() string { return "centroid" }

// Fit implements Classifier.
func (c *Centroid) Fit(X [][]float32, y []int) error {
	if len(X) == 0 {
		return errors.New("centroid: empty training set")
	}
	if len(X) != len(y) {
		return errors.New("centroid: feature and label counts differ")
	}

	dim := len(X[0])
	sums := [2][]float64{make([]float64, dim), make([]float64, dim)}
	var counts [2]int

	for i, row := range X {
		if len(row) != dim {
			return errors.New("centroid: ragged feature matrix")
		}
		cls := y[i]
		counts[cls]++
		for j, v := range row {
			sums[cls][j] += float64(v)
		}
	}

	c.notRelevant = mean(sums[0], counts[0])
	c.relevant = mean(sums[1], counts[1])
	return nil
}

// Predict implements Classifier. With a single-class fit every input maps
// to that class.
func (c *Centroid) Predict(X [][]float32) []int {
	out := make([]int, len(X))
	for i, row := range X {
		dRel := distance(row, c.relevant)
		dNot := distance(row, c.notRelevant)
		if dRel <= dNot {
			out[i] = 1
		}
	}
	return out
}

// Artifact implements Classifier. A class with no training examples is
// recorded as null.
func (c *Centroid) Artifact() ([]byte, error) {
	if c.relevant == nil && c.notRelevant == nil {
		return nil, errors.New("centroid: not fitted")
	}
	return json.Marshal(struct {
		Kind        string    `json:"kind"`
		Relevant    []float64 `json:"relevant"`
		NotRelevant []float64 `json:"not_relevant"`
	}{
		Kind:        c.Name(),
		Relevant:    c.relevant,
		NotRelevant: c.notRelevant,
	})
}

func mean(sum []float64, count int) []float64 {
	if count == 0 {
		return nil
	}
	out := make([]float64, len(sum))
	for j, v := range sum {
		out[j] = v / float64(count)
	}
	return out
}

// distance returns the Euclidean distance, or +Inf for a class that had no
// training examples so the other centroid always wins.
func distance(row []float32, centroid []float64) float64 {
	if centroid == nil {
		return math.Inf(1)
	}
	var sum float64
	for j, v := range row {
		if j >= len(centroid) {
			break
		}
		d := float64(v) - centroid[j]
		sum += d * d
	}
	return math.Sqrt(sum)
}
