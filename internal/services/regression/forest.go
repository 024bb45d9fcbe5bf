package regression

import (
	"math/rand"
)

// Forest is a bagged ensemble of CART trees. Each tree sees a bootstrap
// sample of the rows and, when Features < 1, a random subset of columns at
// every split. Prediction is the mean over trees.
type Forest struct {
	Trees    int
	Tree     treeParams
	Features float64
	Seed     int64

	trees []*regressionTree
	width int
}

func (f *Forest) Fit(x [][]float64, y []float64) error {
	p, err := checkInput(x, y)
	if err != nil {
		return err
	}
	trees := f.Trees
	if trees < 1 {
		trees = 1
	}
	rng := rand.New(rand.NewSource(f.Seed))
	n := len(x)
	k := featureCount(f.Features, p)

	f.trees = make([]*regressionTree, 0, trees)
	f.width = p
	sample := make([]int, n)
	for t := 0; t < trees; t++ {
		for i := range sample {
			sample[i] = rng.Intn(n)
		}
		tree := newTree(f.Tree, k, rand.New(rand.NewSource(rng.Int63())))
		tree.fit(x, y, sample)
		f.trees = append(f.trees, tree)
	}
	return nil
}

func (f *Forest) Predict(x [][]float64) ([]float64, error) {
	if len(f.trees) == 0 {
		return nil, ErrNotFitted
	}
	if err := checkRows(x, f.width); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i, row := range x {
		var sum float64
		for _, t := range f.trees {
			sum += t.predictRow(row)
		}
		out[i] = sum / float64(len(f.trees))
	}
	return out, nil
}
