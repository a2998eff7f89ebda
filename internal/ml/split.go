package ml

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// TrainTestSplit shuffles 0..n-1 with a seeded generator and returns the
// train and test positions. The test set has ceil(ratio·n) rows and both
// sides keep at least one row.
func TrainTestSplit(n int, ratio float64, seed int64) (train, test []int, err error) {
	if n < 2 {
		return nil, nil, fmt.Errorf("ml: need at least 2 rows to split, have %d", n)
	}
	if ratio <= 0 || ratio >= 1 {
		return nil, nil, fmt.Errorf("ml: split ratio %v out of (0, 1)", ratio)
	}
	nTest := int(math.Ceil(ratio * float64(n)))
	nTest = min(max(nTest, 1), n-1)

	perm := rand.New(rand.NewPCG(uint64(seed), 0)).Perm(n)
	return perm[nTest:], perm[:nTest], nil
}
