package classifier

import "math"

// Threshold is the probability at or above which a chunk is predicted
// positive. Exactly 0.5 rounds up to 1.
const Threshold = 0.5

// Sigmoid is the logistic function, computed without overflow for large |x|.
func Sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// Decide rounds probability p half-up to a prediction and returns the
// predicted class's own probability as confidence.
func Decide(p float64) Result {
	if p >= Threshold {
		return Result{Prediction: 1, Confidence: p, Probability: p}
	}
	return Result{Prediction: 0, Confidence: 1 - p, Probability: p}
}
