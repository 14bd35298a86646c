package train

// Evaluate computes binary classification metrics with relevant as the
// positive class. Undefined ratios (zero denominator, e.g. a single-class
// partition with no positive predictions) report 0 rather than failing.
//
// The class-conditional keys precision_relevant and recall_relevant are
// present only when both classes appear in yTrue.
func Evaluate(yTrue, yPred []int) map[string]float64 {
	var tp, tn, fp, fn float64
	for i := range yTrue {
		switch {
		case yTrue[i] == 1 && yPred[i] == 1:
			tp++
		case yTrue[i] == 0 && yPred[i] == 0:
			tn++
		case yTrue[i] == 0 && yPred[i] == 1:
			fp++
		default:
			fn++
		}
	}

	precision := safeRatio(tp, tp+fp)
	recall := safeRatio(tp, tp+fn)

	metrics := map[string]float64{
		"accuracy":  safeRatio(tp+tn, float64(len(yTrue))),
		"precision": precision,
		"recall":    recall,
		"f1_score":  safeRatio(2*precision*recall, precision+recall),
	}

	if bothClassesPresent(yTrue) {
		metrics["precision_relevant"] = precision
		metrics["recall_relevant"] = recall
	}

	return metrics
}

func safeRatio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func bothClassesPresent(y []int) bool {
	var pos, neg bool
	for _, v := range y {
		if v == 1 {
			pos = true
		} else {
			neg = true
		}
	}
	return pos && neg
}
