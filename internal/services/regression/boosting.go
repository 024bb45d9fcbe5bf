package regression

import (
	"math/rand"

	"gonum.org/v1/gonum/stat"
)

// Boosting is least-squares gradient boosting over shallow CART trees.
// The model starts from the label mean and each round fits a tree to the
// current residuals, added with weight LearningRate.
type Boosting struct {
	Rounds       int
	LearningRate float64
	Tree         treeParams
	Seed         int64

	base  float64
	trees []*regressionTree
	width int
}

func (b *Boosting) Fit(x [][]float64, y []float64) error {
	p, err := checkInput(x, y)
	if err != nil {
		return err
	}
	rounds := b.Rounds
	if rounds < 0 {
		rounds = 0
	}
	lr := b.LearningRate
	if lr <= 0 {
		lr = 0.1
	}
	b.LearningRate = lr
	b.width = p
	b.base = stat.Mean(y, nil)
	b.trees = make([]*regressionTree, 0, rounds)

	rng := rand.New(rand.NewSource(b.Seed))
	n := len(x)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	current := make([]float64, n)
	for i := range current {
		current[i] = b.base
	}
	residual := make([]float64, n)
	for r := 0; r < rounds; r++ {
		for i := range residual {
			residual[i] = y[i] - current[i]
		}
		tree := newTree(b.Tree, 0, rand.New(rand.NewSource(rng.Int63())))
		tree.fit(x, residual, idx)
		b.trees = append(b.trees, tree)
		for i, row := range x {
			current[i] += lr * tree.predictRow(row)
		}
	}
	return nil
}

func (b *Boosting) Predict(x [][]float64) ([]float64, error) {
	if b.trees == nil {
		return nil, ErrNotFitted
	}
	if err := checkRows(x, b.width); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i, row := range x {
		v := b.base
		for _, t := range b.trees {
			v += b.LearningRate * t.predictRow(row)
		}
		out[i] = v
	}
	return out, nil
}
