package regression

import (
	"math"
	"math/rand"
	"sort"
)

type treeParams struct {
	maxDepth int // 0 = unlimited
	minSplit int
	minLeaf  int
}

func treeParamsFrom(p Params) treeParams {
	tp := treeParams{
		maxDepth: p.int(ParamMaxDepth, 0),
		minSplit: p.int(ParamMinSamplesSplit, 2),
		minLeaf:  p.int(ParamMinSamplesLeaf, 1),
	}
	if tp.maxDepth < 0 {
		tp.maxDepth = 0
	}
	if tp.minSplit < 2 {
		tp.minSplit = 2
	}
	if tp.minLeaf < 1 {
		tp.minLeaf = 1
	}
	return tp
}

type treeNode struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	left      int
	right     int
}

// regressionTree is a CART tree minimising squared error.
type regressionTree struct {
	params   treeParams
	features int // columns tried per split, <= 0 means all
	rng      *rand.Rand
	nodes    []treeNode
	width    int
}

func newTree(tp treeParams, features int, rng *rand.Rand) *regressionTree {
	return &regressionTree{params: tp, features: features, rng: rng}
}

// fit grows the tree on the rows named by idx. Rows may repeat.
func (t *regressionTree) fit(x [][]float64, y []float64, idx []int) {
	t.nodes = t.nodes[:0]
	t.width = len(x[0])
	t.grow(x, y, idx, 0)
}

func (t *regressionTree) grow(x [][]float64, y []float64, idx []int, depth int) int {
	mean, sse := meanSSE(y, idx)
	node := len(t.nodes)
	t.nodes = append(t.nodes, treeNode{leaf: true, value: mean})

	if len(idx) < t.params.minSplit || sse <= 1e-12 {
		return node
	}
	if t.params.maxDepth > 0 && depth >= t.params.maxDepth {
		return node
	}

	feature, threshold, ok := t.bestSplit(x, y, idx, sse)
	if !ok {
		return node
	}
	var left, right []int
	for _, i := range idx {
		if x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := t.grow(x, y, left, depth+1)
	r := t.grow(x, y, right, depth+1)
	t.nodes[node] = treeNode{feature: feature, threshold: threshold, left: l, right: r, value: mean}
	return node
}

func (t *regressionTree) candidates() []int {
	if t.features <= 0 || t.features >= t.width {
		all := make([]int, t.width)
		for j := range all {
			all[j] = j
		}
		return all
	}
	perm := t.rng.Perm(t.width)[:t.features]
	sort.Ints(perm)
	return perm
}

func (t *regressionTree) bestSplit(x [][]float64, y []float64, idx []int, parentSSE float64) (int, float64, bool) {
	bestGain := 1e-12
	bestFeature, bestThreshold := -1, 0.0
	n := len(idx)
	order := make([]int, n)
	minLeaf := t.params.minLeaf

	for _, j := range t.candidates() {
		copy(order, idx)
		sort.SliceStable(order, func(a, b int) bool { return x[order[a]][j] < x[order[b]][j] })

		var total, totalSq float64
		for _, i := range order {
			total += y[i]
			totalSq += y[i] * y[i]
		}
		var leftSum, leftSq float64
		for k := 0; k < n-1; k++ {
			v := y[order[k]]
			leftSum += v
			leftSq += v * v
			nl, nr := k+1, n-k-1
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			lo, hi := x[order[k]][j], x[order[k+1]][j]
			if lo == hi {
				continue
			}
			rightSum, rightSq := total-leftSum, totalSq-leftSq
			sse := (leftSq - leftSum*leftSum/float64(nl)) + (rightSq - rightSum*rightSum/float64(nr))
			if gain := parentSSE - sse; gain > bestGain {
				bestGain = gain
				bestFeature = j
				bestThreshold = lo + (hi-lo)/2
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

func (t *regressionTree) predictRow(row []float64) float64 {
	n := 0
	for {
		node := t.nodes[n]
		if node.leaf {
			return node.value
		}
		if row[node.feature] <= node.threshold {
			n = node.left
		} else {
			n = node.right
		}
	}
}

func meanSSE(y []float64, idx []int) (float64, float64) {
	if len(idx) == 0 {
		return 0, 0
	}
	var sum float64
	for _, i := range idx {
		sum += y[i]
	}
	mean := sum / float64(len(idx))
	var sse float64
	for _, i := range idx {
		d := y[i] - mean
		sse += d * d
	}
	return mean, sse
}

// featureCount turns a fraction of p columns into a count in [1, p].
func featureCount(frac float64, p int) int {
	if frac <= 0 || frac >= 1 {
		return p
	}
	k := int(math.Ceil(frac * float64(p)))
	if k < 1 {
		k = 1
	}
	return k
}
