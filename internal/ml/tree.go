package ml

import (
	"math/rand/v2"
	"sort"
)

// TreeParams bound the growth of a regression tree.
type TreeParams struct {
	MaxDepth        int `json:"maxDepth"`
	MinSamplesSplit int `json:"minSamplesSplit"`
	MinSamplesLeaf  int `json:"minSamplesLeaf"`
}

func (p *TreeParams) fill() {
	if p.MaxDepth <= 0 {
		p.MaxDepth = 10
	}
	if p.MinSamplesSplit < 2 {
		p.MinSamplesSplit = 2
	}
	if p.MinSamplesLeaf < 1 {
		p.MinSamplesLeaf = 1
	}
}

// Node is a flattened tree node. Leaves have Feature -1.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
}

// DecisionTree is a CART regression tree splitting on squared error.
type DecisionTree struct {
	Params TreeParams `json:"params"`
	Nodes  []Node     `json:"nodes"`
}

func NewDecisionTree(p TreeParams) *DecisionTree {
	p.fill()
	return &DecisionTree{Params: p}
}

func (t *DecisionTree) Name() string { return "Decision Tree" }

func (t *DecisionTree) Fit(X [][]float64, y []float64) error {
	if err := checkDataset(X, y); err != nil {
		return err
	}
	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	t.fitIndices(X, y, idx, nil)
	return nil
}

// fitIndices grows the tree on the rows at idx, which may repeat. When rng is
// set, features are visited in a random order so ties between equally good
// splits do not always favour the first column.
func (t *DecisionTree) fitIndices(X [][]float64, y []float64, idx []int, rng *rand.Rand) {
	t.Params.fill()
	t.Nodes = t.Nodes[:0]
	b := &treeBuilder{tree: t, X: X, y: y, rng: rng, width: len(X[0])}
	b.grow(idx, 0)
}

func (t *DecisionTree) Predict(x []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (t *DecisionTree) Depth() int {
	if len(t.Nodes) == 0 {
		return 0
	}
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	return walk(0)
}

type treeBuilder struct {
	tree  *DecisionTree
	X     [][]float64
	y     []float64
	rng   *rand.Rand
	width int
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	var sum float64
	for _, i := range idx {
		sum += b.y[i]
	}
	n := len(idx)
	mean := sum / float64(n)

	self := len(b.tree.Nodes)
	b.tree.Nodes = append(b.tree.Nodes, Node{Feature: -1, Value: mean})

	p := b.tree.Params
	if depth >= p.MaxDepth || n < p.MinSamplesSplit || n < 2*p.MinSamplesLeaf || b.constant(idx) {
		return self
	}

	feature, threshold, ok := b.bestSplit(idx, sum)
	if !ok {
		return self
	}

	var left, right []int
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.tree.Nodes[self] = Node{Feature: feature, Threshold: threshold, Left: l, Right: r, Value: mean}
	return self
}

func (b *treeBuilder) constant(idx []int) bool {
	first := b.y[idx[0]]
	for _, i := range idx[1:] {
		if b.y[i] != first {
			return false
		}
	}
	return true
}

// bestSplit maximizes sumL²/nL + sumR²/nR, which is the same as minimizing
// the children's squared error.
func (b *treeBuilder) bestSplit(idx []int, total float64) (int, float64, bool) {
	n := len(idx)
	minLeaf := b.tree.Params.MinSamplesLeaf
	parentScore := total * total / float64(n)

	features := make([]int, b.width)
	for j := range features {
		features[j] = j
	}
	if b.rng != nil {
		b.rng.Shuffle(len(features), func(i, j int) { features[i], features[j] = features[j], features[i] })
	}

	bestScore := parentScore
	bestFeature, bestThreshold := -1, 0.0
	sorted := make([]int, n)

	for _, f := range features {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, c int) bool { return b.X[sorted[a]][f] < b.X[sorted[c]][f] })

		var leftSum float64
		for k := 1; k < n; k++ {
			leftSum += b.y[sorted[k-1]]
			lo, hi := b.X[sorted[k-1]][f], b.X[sorted[k]][f]
			if lo == hi || k < minLeaf || n-k < minLeaf {
				continue
			}
			rightSum := total - leftSum
			score := leftSum*leftSum/float64(k) + rightSum*rightSum/float64(n-k)
			if score > bestScore+1e-12*abs(bestScore) {
				bestScore = score
				bestFeature = f
				bestThreshold = lo + (hi-lo)/2
				if bestThreshold >= hi {
					bestThreshold = lo
				}
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
