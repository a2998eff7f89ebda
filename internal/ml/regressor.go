// Package ml holds the small regression toolkit behind the forecasting
// engine: feature scaling, CART trees and their ensembles, ordinary least
// squares, held-out splits and error metrics.
package ml

import (
	"errors"
	"fmt"
)

var ErrEmptyDataset = errors.New("ml: empty dataset")

// Regressor predicts a scalar target from a feature vector.
type Regressor interface {
	Name() string
	Fit(X [][]float64, y []float64) error
	Predict(x []float64) float64
}

// PredictAll applies r to every row of X.
func PredictAll(r Regressor, X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		out[i] = r.Predict(x)
	}
	return out
}

func checkDataset(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return ErrEmptyDataset
	}
	if len(X) != len(y) {
		return fmt.Errorf("ml: %d feature rows but %d targets", len(X), len(y))
	}
	width := len(X[0])
	if width == 0 {
		return fmt.Errorf("ml: feature rows are empty")
	}
	for i, row := range X {
		if len(row) != width {
			return fmt.Errorf("ml: row %d has %d features, want %d", i, len(row), width)
		}
	}
	return nil
}

// Take returns the rows of X and y at idx.
func Take(X [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	xs := make([][]float64, len(idx))
	ys := make([]float64, len(idx))
	for i, j := range idx {
		xs[i] = X[j]
		ys[i] = y[j]
	}
	return xs, ys
}
