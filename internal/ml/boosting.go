package ml

import (
	"math/rand/v2"
)

// BoostingParams configure gradient boosting.
type BoostingParams struct {
	Stages       int     `json:"stages"`
	LearningRate float64 `json:"learningRate"`
	// Subsample is the fraction of rows drawn without replacement per stage.
	Subsample float64 `json:"subsample"`
	Seed      int64   `json:"seed"`
	TreeParams
}

// GradientBoosting fits shallow trees to squared-error residuals.
type GradientBoosting struct {
	Params BoostingParams  `json:"params"`
	Base   float64         `json:"base"`
	Trees  []*DecisionTree `json:"trees"`
}

func NewGradientBoosting(p BoostingParams) *GradientBoosting {
	if p.Stages <= 0 {
		p.Stages = 100
	}
	if p.LearningRate <= 0 {
		p.LearningRate = 0.1
	}
	if p.Subsample <= 0 || p.Subsample > 1 {
		p.Subsample = 1
	}
	if p.MaxDepth <= 0 {
		p.MaxDepth = 3
	}
	p.TreeParams.fill()
	return &GradientBoosting{Params: p}
}

func (g *GradientBoosting) Name() string { return "Gradient Boosting" }

func (g *GradientBoosting) Fit(X [][]float64, y []float64) error {
	if err := checkDataset(X, y); err != nil {
		return err
	}
	n := len(X)

	var sum float64
	for _, v := range y {
		sum += v
	}
	g.Base = sum / float64(n)

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = g.Base
	}
	residual := make([]float64, n)
	rng := rand.New(rand.NewPCG(uint64(g.Params.Seed), 0x9e3779b9))
	size := max(1, int(g.Params.Subsample*float64(n)))

	g.Trees = g.Trees[:0]
	for s := 0; s < g.Params.Stages; s++ {
		for i := range residual {
			residual[i] = y[i] - pred[i]
		}
		idx := rng.Perm(n)[:size]
		t := NewDecisionTree(g.Params.TreeParams)
		t.fitIndices(X, residual, idx, rng)
		for i := range pred {
			pred[i] += g.Params.LearningRate * t.Predict(X[i])
		}
		g.Trees = append(g.Trees, t)
	}
	return nil
}

func (g *GradientBoosting) Predict(x []float64) float64 {
	v := g.Base
	for _, t := range g.Trees {
		v += g.Params.LearningRate * t.Predict(x)
	}
	return v
}
