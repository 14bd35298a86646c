package train

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/linnemanlabs/sift/internal/news"
)

// Split is a partition of the dataset into train and test examples.
type Split struct {
	Train []news.TrainingExample
	Test  []news.TrainingExample
}

// StratifiedSplit partitions examples into train/test preserving the class
// ratio within rounding. The same seed and input set always produce the
// same partition membership: examples are ordered by article ID before the
// seeded shuffle, so the result does not depend on map or store iteration
// order.
func StratifiedSplit(examples []news.TrainingExample, testFraction float64, seed int64) (*Split, error) {
	if testFraction < 0 || testFraction >= 1 {
		return nil, fmt.Errorf("test fraction %v out of range [0, 1)", testFraction)
	}

	byClass := map[news.Label][]int{}
	for i, ex := range examples {
		byClass[ex.Label] = append(byClass[ex.Label], i)
	}

	rng := rand.New(rand.NewSource(seed))
	split := &Split{}

	// Fixed class order keeps the rng stream stable across runs.
	for _, label := range []news.Label{news.LabelNotRelevant, news.LabelRelevant} {
		indices := byClass[label]
		if len(indices) == 0 {
			continue
		}

		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})

		testN := int(math.Round(float64(len(indices)) * testFraction))
		for i, idx := range indices {
			if i < testN {
				split.Test = append(split.Test, examples[idx])
			} else {
				split.Train = append(split.Train, examples[idx])
			}
		}
	}

	return split, nil
}

// features splits examples into a feature matrix and a label vector with
// relevant encoded as 1.
func features(examples []news.TrainingExample) ([][]float32, []int) {
	X := make([][]float32, len(examples))
	y := make([]int, len(examples))
	for i, ex := range examples {
		X[i] = ex.Vector
		if ex.Label == news.LabelRelevant {
			y[i] = 1
		}
	}
	return X, y
}
