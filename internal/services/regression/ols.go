package regression

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// rankTol is the relative singular value cutoff for the least squares solve.
const rankTol = 1e-10

// LeastSquares is ordinary least squares with an intercept, optionally ridge
// penalised. Features and labels are centered before solving and the
// minimum-norm solution is taken, so collinear or constant columns never
// fail: constant labels give a constant predictor.
type LeastSquares struct {
	Ridge float64

	coef      []float64
	intercept float64
	fitted    bool
}

func (m *LeastSquares) Fit(x [][]float64, y []float64) error {
	p, err := checkInput(x, y)
	if err != nil {
		return err
	}
	n := len(x)

	xMean := make([]float64, p)
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		xMean[j] = stat.Mean(col, nil)
	}
	yMean := stat.Mean(y, nil)

	m.coef = make([]float64, p)
	m.intercept = yMean
	m.fitted = true
	if p == 0 {
		return nil
	}

	rows := n
	if m.Ridge > 0 {
		rows += p
	}
	a := mat.NewDense(rows, p, nil)
	b := mat.NewVecDense(rows, nil)
	for i := range x {
		for j := 0; j < p; j++ {
			a.Set(i, j, x[i][j]-xMean[j])
		}
		b.SetVec(i, y[i]-yMean)
	}
	if m.Ridge > 0 {
		s := math.Sqrt(m.Ridge)
		for j := 0; j < p; j++ {
			a.Set(n+j, j, s)
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return fmt.Errorf("%w: svd did not converge", ErrNonFinite)
	}
	rank := svd.Rank(rankTol)
	if rank == 0 {
		return nil
	}
	beta := mat.NewVecDense(p, nil)
	svd.SolveVecTo(beta, b, rank)
	for j := 0; j < p; j++ {
		m.coef[j] = beta.AtVec(j)
	}
	m.intercept = yMean - floats.Dot(m.coef, xMean)
	if math.IsNaN(m.intercept) || math.IsInf(m.intercept, 0) {
		m.fitted = false
		return fmt.Errorf("%w: intercept", ErrNonFinite)
	}
	return nil
}

func (m *LeastSquares) Predict(x [][]float64) ([]float64, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}
	if err := checkRows(x, len(m.coef)); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = m.intercept + floats.Dot(m.coef, row)
	}
	return out, nil
}
