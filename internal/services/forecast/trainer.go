package forecast

import (
	"context"
	"errors"
	"fmt"

	"SalesCast/internal/services/features"
	"SalesCast/internal/services/regression"
	"SalesCast/pkg/logger"
)

// TrainedModel is a fitted regressor plus the schema it was fit on. It is
// immutable once returned and safe for concurrent Predict calls.
type TrainedModel struct {
	Segment  SegmentKey
	Strategy regression.Strategy
	Params   regression.Params
	Schema   []string
	Rows     int
	CVScore  *float64

	model regression.Regressor
}

// Predict aligns f to the model schema and returns one amount per row.
func (m *TrainedModel) Predict(f *features.Frame) ([]float64, error) {
	return m.model.Predict(features.Align(m.Schema, f).Features())
}

// fitModel is swapped in tests to force strategy failures.
var fitModel = regression.Fit

// Trainer fits one model per segment.
type Trainer struct {
	opts Options
	log  *logger.Logger
}

func NewTrainer(opts Options, log *logger.Logger) *Trainer {
	if log == nil {
		log = logger.Nop()
	}
	return &Trainer{opts: opts, log: log}
}

// strategies returns the primary strategy followed by distinct fallbacks.
func (t *Trainer) strategies() []regression.Strategy {
	out := []regression.Strategy{t.opts.Strategy}
	seen := map[regression.Strategy]bool{t.opts.Strategy: true}
	for _, s := range t.opts.Fallbacks {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Train fits the segment's rows of f. Segments below the minimum row count
// return ErrInsufficientData; a cancelled ctx returns ErrCancelled; when the
// primary strategy and every fallback fail the result is ErrTrainingFailure.
func (t *Trainer) Train(ctx context.Context, seg Segment, f *features.Frame) (*TrainedModel, error) {
	rows := len(seg.Rows)
	if rows < t.opts.MinSegmentRows {
		return nil, &PipelineError{
			Kind:    ErrInsufficientData,
			Segment: string(seg.Key),
			Rows:    rows,
			Err:     fmt.Errorf("need at least %d rows", t.opts.MinSegmentRows),
		}
	}

	data := features.Align(seg.Columns, f.Subset(seg.Rows))
	x, y := data.Features(), data.Label()

	var errs []error
	for i, s := range t.strategies() {
		m, err := t.fit(ctx, s, x, y)
		if err == nil {
			m.Segment = seg.Key
			m.Schema = data.Columns()
			m.Rows = rows
			if i > 0 {
				t.log.Warn("segment trained with fallback strategy",
					logger.String("segment", string(seg.Key)),
					logger.String("strategy", string(s)),
					logger.Error(errors.Join(errs...)))
			}
			return m, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &PipelineError{Kind: ErrCancelled, Segment: string(seg.Key), Rows: rows, Strategy: string(s), Err: ctxErr}
		}
		errs = append(errs, fmt.Errorf("%s: %w", s, err))
	}
	return nil, &PipelineError{
		Kind:     ErrTrainingFailure,
		Segment:  string(seg.Key),
		Rows:     rows,
		Strategy: string(t.opts.Strategy),
		Err:      errors.Join(errs...),
	}
}

func (t *Trainer) fit(ctx context.Context, s regression.Strategy, x [][]float64, y []float64) (*TrainedModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := &TrainedModel{Strategy: s, Params: regression.DefaultParams(s)}
	if t.opts.Search && len(x) >= 2 {
		res, err := regression.GridSearch(ctx, s, regression.DefaultGrid(s), t.opts.CVFolds, t.opts.Seed, x, y)
		if err != nil {
			return nil, err
		}
		for k, v := range res.Best {
			m.Params[k] = v
		}
		score := res.Score
		m.CVScore = &score
		t.log.Debug("hyperparameter search finished",
			logger.String("strategy", string(s)),
			logger.Int("candidates", len(res.Candidates)),
			logger.Int("folds", res.Folds),
			logger.Float64("cv_mae", score))
	}
	model, err := fitModel(s, m.Params, t.opts.Seed, x, y)
	if err != nil {
		return nil, err
	}
	m.model = model
	return m, nil
}
