package ml

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// rankTolerance separates significant singular values from noise. Calendar
// features are collinear (months_from_start is a combination of year and
// month), so the minimum-norm least squares solution is used.
const rankTolerance = 1e-10

// LinearRegression is ordinary least squares with an intercept.
type LinearRegression struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

func NewLinearRegression() *LinearRegression { return &LinearRegression{} }

func (l *LinearRegression) Name() string { return "Linear Regression" }

func (l *LinearRegression) Fit(X [][]float64, y []float64) error {
	if err := checkDataset(X, y); err != nil {
		return err
	}
	n, p := len(X), len(X[0])

	xMean := make([]float64, p)
	var yMean float64
	for i := range X {
		for j, v := range X[i] {
			xMean[j] += v
		}
		yMean += y[i]
	}
	for j := range xMean {
		xMean[j] /= float64(n)
	}
	yMean /= float64(n)

	xc := mat.NewDense(n, p, nil)
	yc := mat.NewVecDense(n, nil)
	for i := range X {
		for j, v := range X[i] {
			xc.Set(i, j, v-xMean[j])
		}
		yc.SetVec(i, y[i]-yMean)
	}

	l.Coef = make([]float64, p)
	var svd mat.SVD
	if !svd.Factorize(xc, mat.SVDThin) {
		return fmt.Errorf("ml: least squares factorization failed")
	}
	if rank := svd.Rank(rankTolerance); rank > 0 {
		var beta mat.VecDense
		svd.SolveVecTo(&beta, yc, rank)
		for j := 0; j < p; j++ {
			l.Coef[j] = beta.AtVec(j)
		}
	}

	l.Intercept = yMean
	for j := range l.Coef {
		l.Intercept -= l.Coef[j] * xMean[j]
	}
	return nil
}

func (l *LinearRegression) Predict(x []float64) float64 {
	v := l.Intercept
	for j, c := range l.Coef {
		v += c * x[j]
	}
	return v
}
