package ml

import (
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ForestParams configure a random forest.
type ForestParams struct {
	Trees int   `json:"trees"`
	Seed  int64 `json:"seed"`
	TreeParams
	// Workers caps concurrent tree fits; 0 means GOMAXPROCS.
	Workers int `json:"-"`
}

// RandomForest averages bootstrap-trained regression trees.
type RandomForest struct {
	Params ForestParams    `json:"params"`
	Trees  []*DecisionTree `json:"trees"`
}

func NewRandomForest(p ForestParams) *RandomForest {
	if p.Trees <= 0 {
		p.Trees = 100
	}
	p.TreeParams.fill()
	return &RandomForest{Params: p}
}

func (f *RandomForest) Name() string { return "Random Forest" }

// Fit trains the trees in parallel. Each tree draws its bootstrap sample from
// its own generator seeded by (Seed, tree index), so the fitted forest does
// not depend on scheduling.
func (f *RandomForest) Fit(X [][]float64, y []float64) error {
	if err := checkDataset(X, y); err != nil {
		return err
	}
	n := len(X)
	trees := make([]*DecisionTree, f.Params.Trees)

	workers := f.Params.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for i := range trees {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(uint64(f.Params.Seed), uint64(i)))
			sample := make([]int, n)
			for k := range sample {
				sample[k] = rng.IntN(n)
			}
			t := NewDecisionTree(f.Params.TreeParams)
			t.fitIndices(X, y, sample, rng)
			trees[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	f.Trees = trees
	return nil
}

func (f *RandomForest) Predict(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	var sum float64
	for _, t := range f.Trees {
		sum += t.Predict(x)
	}
	return sum / float64(len(f.Trees))
}
