package ml

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// mapeEpsilon keeps MAPE finite for zero targets.
const mapeEpsilon = 2.220446049250313e-16

func MAE(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	var sum float64
	for i := range actual {
		sum += math.Abs(actual[i] - predicted[i])
	}
	return sum / float64(len(actual))
}

func RMSE(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	var sum float64
	for i := range actual {
		d := actual[i] - predicted[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(actual)))
}

// R2 is the coefficient of determination. It is 0 when fewer than two
// targets exist or the targets have no variance.
func R2(actual, predicted []float64) float64 {
	if len(actual) < 2 {
		return 0
	}
	if stat.Variance(actual, nil) == 0 {
		return 0
	}
	r2 := stat.RSquaredFrom(predicted, actual, nil)
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		return 0
	}
	return r2
}

// MAPE is the mean absolute percentage error, in percent.
func MAPE(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	var sum float64
	for i := range actual {
		sum += math.Abs(actual[i]-predicted[i]) / math.Max(math.Abs(actual[i]), mapeEpsilon)
	}
	return sum / float64(len(actual)) * 100
}
