package regression

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrNoCandidate is returned when every grid candidate failed to fit.
var ErrNoCandidate = errors.New("regression: no candidate could be fitted")

// Candidate is one scored grid point.
type Candidate struct {
	Params Params
	MAE    float64
}

// SearchResult holds the winning parameters and every candidate's score.
type SearchResult struct {
	Best       Params
	Score      float64
	Folds      int
	Candidates []Candidate
}

// MeanAbsoluteError of pred against want. Both must have the same length.
func MeanAbsoluteError(want, pred []float64) float64 {
	if len(want) == 0 {
		return 0
	}
	var sum float64
	for i := range want {
		sum += math.Abs(want[i] - pred[i])
	}
	return sum / float64(len(want))
}

// KFold splits n rows into k contiguous folds. The first n%k folds hold one
// extra row. k is capped at n; k < 2 yields no folds.
func KFold(n, k int) [][]int {
	if k > n {
		k = n
	}
	if k < 2 {
		return nil
	}
	folds := make([][]int, k)
	size, extra := n/k, n%k
	start := 0
	for f := 0; f < k; f++ {
		m := size
		if f < extra {
			m++
		}
		fold := make([]int, m)
		for i := range fold {
			fold[i] = start + i
		}
		folds[f] = fold
		start += m
	}
	return folds
}

// CrossValidate returns the mean out-of-fold MAE of a strategy with params.
func CrossValidate(s Strategy, p Params, seed int64, x [][]float64, y []float64, folds [][]int) (float64, error) {
	if len(folds) == 0 {
		return 0, fmt.Errorf("%w: no folds", ErrEmptyInput)
	}
	n := len(x)
	var total float64
	for _, test := range folds {
		inTest := make(map[int]bool, len(test))
		for _, i := range test {
			inTest[i] = true
		}
		trainX := make([][]float64, 0, n-len(test))
		trainY := make([]float64, 0, n-len(test))
		for i := 0; i < n; i++ {
			if !inTest[i] {
				trainX = append(trainX, x[i])
				trainY = append(trainY, y[i])
			}
		}
		testX := make([][]float64, len(test))
		testY := make([]float64, len(test))
		for k, i := range test {
			testX[k] = x[i]
			testY[k] = y[i]
		}

		m, err := New(s, p, seed)
		if err != nil {
			return 0, err
		}
		if err := m.Fit(trainX, trainY); err != nil {
			return 0, err
		}
		pred, err := m.Predict(testX)
		if err != nil {
			return 0, err
		}
		total += MeanAbsoluteError(testY, pred)
	}
	return total / float64(len(folds)), nil
}

// GridSearch scores every grid point with k-fold cross-validation and keeps
// the lowest mean MAE, earliest candidate winning ties. ctx is checked before
// each candidate; cancellation returns ctx.Err().
func GridSearch(ctx context.Context, s Strategy, grid Grid, folds int, seed int64, x [][]float64, y []float64) (*SearchResult, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
	if _, err := checkInput(x, y); err != nil {
		return nil, err
	}
	split := KFold(len(x), folds)
	if split == nil {
		return nil, fmt.Errorf("%w: %d rows cannot be split into folds", ErrEmptyInput, len(x))
	}

	res := &SearchResult{Score: math.Inf(1), Folds: len(split)}
	var lastErr error
	for _, p := range grid.Expand() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		score, err := CrossValidate(s, p, seed, x, y, split)
		if err != nil {
			lastErr = err
			continue
		}
		res.Candidates = append(res.Candidates, Candidate{Params: p, MAE: score})
		if score < res.Score {
			res.Score = score
			res.Best = p
		}
	}
	if res.Best == nil {
		if lastErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoCandidate, lastErr)
		}
		return nil, ErrNoCandidate
	}
	return res, nil
}

// Fit builds a regressor for s with p and fits it on all of x.
func Fit(s Strategy, p Params, seed int64, x [][]float64, y []float64) (Regressor, error) {
	m, err := New(s, p, seed)
	if err != nil {
		return nil, err
	}
	if err := m.Fit(x, y); err != nil {
		return nil, err
	}
	return m, nil
}
