package train

import (
	"encoding/json"
	"errors"
	"math"
)

// Logistic is a class-weighted logistic regression trained by full-batch
// gradient descent. Weights start at zero and the schedule is fixed, so
// fitting is fully deterministic.
type Logistic struct {
	// LearningRate and Iterations control the descent schedule.
	LearningRate float64
	Iterations   int
	// L2 is the ridge penalty applied to all weights except the bias.
	L2 float64

	weights []float64
	bias    float64
}

// NewLogistic returns a Logistic with the default schedule.
func NewLogistic() *Logistic {
	return &Logistic{
		LearningRate: 0.5,
		Iterations:   500,
		L2:           1e-4,
	}
}

// Name implements Classifier.
func (l *Logistic) Name() string { return "logistic" }

// Fit implements Classifier with inverse-frequency class weighting.
func (l *Logistic) Fit(X [][]float32, y []int) error {
	if len(X) == 0 {
		return errors.New("logistic: empty training set")
	}
	if len(X) != len(y) {
		return errors.New("logistic: feature and label counts differ")
	}

	dim := len(X[0])
	for _, row := range X {
		if len(row) != dim {
			return errors.New("logistic: ragged feature matrix")
		}
	}

	w0, w1 := classWeights(y)
	n := float64(len(X))

	l.weights = make([]float64, dim)
	l.bias = 0

	grad := make([]float64, dim)
	for iter := 0; iter < l.Iterations; iter++ {
		for j := range grad {
			grad[j] = 0
		}
		var gradBias float64

		for i, row := range X {
			p := sigmoid(l.decision(row))
			weight := w0
			if y[i] == 1 {
				weight = w1
			}
			residual := weight * (p - float64(y[i]))
			for j, v := range row {
				grad[j] += residual * float64(v)
			}
			gradBias += residual
		}

		for j := range l.weights {
			l.weights[j] -= l.LearningRate * (grad[j]/n + l.L2*l.weights[j])
		}
		l.bias -= l.LearningRate * gradBias / n
	}

	return nil
}

// Predict implements Classifier.
func (l *Logistic) Predict(X [][]float32) []int {
	out := make([]int, len(X))
	for i, row := range X {
		if sigmoid(l.decision(row)) >= 0.5 {
			out[i] = 1
		}
	}
	return out
}

// Artifact implements Classifier. The document carries the hyperparameters
// alongside the fitted weights so a run is reproducible from the record
// alone.
func (l *Logistic) Artifact() ([]byte, error) {
	if l.weights == nil {
		return nil, errors.New("logistic: not fitted")
	}
	return json.Marshal(struct {
		Kind         string    `json:"kind"`
		Weights      []float64 `json:"weights"`
		Bias         float64   `json:"bias"`
		LearningRate float64   `json:"learning_rate"`
		Iterations   int       `json:"iterations"`
		L2           float64   `json:"l2"`
	}{
		Kind:         l.Name(),
		Weights:      l.weights,
		Bias:         l.bias,
		LearningRate: l.LearningRate,
		Iterations:   l.Iterations,
		L2:           l.L2,
	})
}

func (l *Logistic) decision(row []float32) float64 {
	z := l.bias
	for j, v := range row {
		if j >= len(l.weights) {
			break
		}
		z += l.weights[j] * float64(v)
	}
	return z
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
