package ml

import (
	"gonum.org/v1/gonum/stat"
)

// StandardScaler centers features to zero mean and unit variance. Columns
// with zero variance keep scale 1.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// FitScaler learns the column statistics of X.
func FitScaler(X [][]float64) (*StandardScaler, error) {
	if len(X) == 0 {
		return nil, ErrEmptyDataset
	}
	width := len(X[0])
	s := &StandardScaler{Mean: make([]float64, width), Scale: make([]float64, width)}
	col := make([]float64, len(X))
	for j := 0; j < width; j++ {
		for i := range X {
			col[i] = X[i][j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		s.Mean[j] = mean
		if std == 0 {
			std = 1
		}
		s.Scale[j] = std
	}
	return s, nil
}

// TransformRow scales one feature vector into a new slice.
func (s *StandardScaler) TransformRow(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out
}

// Transform scales every row of X into new slices.
func (s *StandardScaler) Transform(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, x := range X {
		out[i] = s.TransformRow(x)
	}
	return out
}
