// Package regression holds the model strategies the forecaster can train:
// ordinary least squares, random forest and gradient-boosted trees, plus a
// k-fold cross-validated grid search over their hyperparameters.
//
// Every strategy is deterministic for a given seed; none reads ambient
// randomness.
package regression

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrUnknownStrategy = errors.New("regression: unknown strategy")
	ErrEmptyInput      = errors.New("regression: empty training set")
	ErrNonFinite       = errors.New("regression: non-finite input")
	ErrShape           = errors.New("regression: inconsistent input shape")
	ErrNotFitted       = errors.New("regression: model not fitted")
)

// Strategy names a model family.
type Strategy string

const (
	OLS              Strategy = "ols"
	RandomForest     Strategy = "random_forest"
	GradientBoosting Strategy = "gradient_boosting"
)

// Strategies lists every supported strategy.
func Strategies() []Strategy { return []Strategy{OLS, RandomForest, GradientBoosting} }

// Valid reports whether s is a supported strategy.
func (s Strategy) Valid() bool {
	switch s {
	case OLS, RandomForest, GradientBoosting:
		return true
	default:
		return false
	}
}

// Regressor is the capability shared by every strategy.
type Regressor interface {
	Fit(x [][]float64, y []float64) error
	Predict(x [][]float64) ([]float64, error)
}

// Params are hyperparameters by name. Missing names take strategy defaults.
type Params map[string]float64

// Clone returns an independent copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func (p Params) get(name string, def float64) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return def
}

func (p Params) int(name string, def int) int {
	return int(math.Round(p.get(name, float64(def))))
}

// Hyperparameter names.
const (
	ParamRidge           = "ridge"
	ParamEstimators      = "n_estimators"
	ParamMaxDepth        = "max_depth" // 0 = unlimited
	ParamMinSamplesSplit = "min_samples_split"
	ParamMinSamplesLeaf  = "min_samples_leaf"
	ParamMaxFeatures     = "max_features" // fraction of columns tried per split
	ParamLearningRate    = "learning_rate"
)

// DefaultParams returns the parameters used when no search runs.
func DefaultParams(s Strategy) Params {
	switch s {
	case OLS:
		return Params{ParamRidge: 0}
	case RandomForest:
		return Params{
			ParamEstimators:      100,
			ParamMaxDepth:        0,
			ParamMinSamplesSplit: 2,
			ParamMinSamplesLeaf:  1,
			ParamMaxFeatures:     1,
		}
	case GradientBoosting:
		return Params{
			ParamEstimators:      100,
			ParamLearningRate:    0.1,
			ParamMaxDepth:        3,
			ParamMinSamplesSplit: 2,
			ParamMinSamplesLeaf:  1,
		}
	default:
		return Params{}
	}
}

// New builds an unfitted regressor.
func New(s Strategy, p Params, seed int64) (Regressor, error) {
	merged := DefaultParams(s)
	for k, v := range p {
		merged[k] = v
	}
	switch s {
	case OLS:
		return &LeastSquares{Ridge: merged.get(ParamRidge, 0)}, nil
	case RandomForest:
		return &Forest{
			Trees:    merged.int(ParamEstimators, 100),
			Tree:     treeParamsFrom(merged),
			Features: merged.get(ParamMaxFeatures, 1),
			Seed:     seed,
		}, nil
	case GradientBoosting:
		return &Boosting{
			Rounds:       merged.int(ParamEstimators, 100),
			LearningRate: merged.get(ParamLearningRate, 0.1),
			Tree:         treeParamsFrom(merged),
			Seed:         seed,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// Grid maps a parameter name to the values to try.
type Grid map[string][]float64

// DefaultGrid returns the search space of a strategy.
func DefaultGrid(s Strategy) Grid {
	switch s {
	case OLS:
		return Grid{ParamRidge: {0, 0.1, 1, 10}}
	case RandomForest:
		return Grid{
			ParamEstimators:     {50, 100, 200},
			ParamMaxDepth:       {0, 4, 8},
			ParamMinSamplesLeaf: {1, 2},
			ParamMaxFeatures:    {1, 0.5},
		}
	case GradientBoosting:
		return Grid{
			ParamEstimators:   {50, 100, 200},
			ParamLearningRate: {0.05, 0.1, 0.3},
			ParamMaxDepth:     {2, 3},
		}
	default:
		return Grid{}
	}
}

// Expand returns every parameter combination in a stable order: names sorted,
// values in declared order, last name varying fastest.
func (g Grid) Expand() []Params {
	names := make([]string, 0, len(g))
	for k := range g {
		if len(g[k]) > 0 {
			names = append(names, k)
		}
	}
	sort.Strings(names)

	out := []Params{{}}
	for _, name := range names {
		next := make([]Params, 0, len(out)*len(g[name]))
		for _, base := range out {
			for _, v := range g[name] {
				p := base.Clone()
				p[name] = v
				next = append(next, p)
			}
		}
		out = next
	}
	return out
}

func checkInput(x [][]float64, y []float64) (int, error) {
	if len(x) == 0 {
		return 0, ErrEmptyInput
	}
	if len(x) != len(y) {
		return 0, fmt.Errorf("%w: %d rows, %d labels", ErrShape, len(x), len(y))
	}
	p := len(x[0])
	for i, row := range x {
		if len(row) != p {
			return 0, fmt.Errorf("%w: row %d has %d columns, want %d", ErrShape, i, len(row), p)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, fmt.Errorf("%w: row %d", ErrNonFinite, i)
			}
		}
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			return 0, fmt.Errorf("%w: label %d", ErrNonFinite, i)
		}
	}
	return p, nil
}

func checkRows(x [][]float64, p int) error {
	for i, row := range x {
		if len(row) != p {
			return fmt.Errorf("%w: row %d has %d columns, want %d", ErrShape, i, len(row), p)
		}
	}
	return nil
}
