package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"SalesCast/internal/domain/models"
	"SalesCast/internal/services/features"
	"SalesCast/pkg/logger"
)

// Result is the outcome of one forecasting run.
type Result struct {
	Snapshot    string
	Predictions models.Predictions
	Segments    []models.SegmentReport
	History     models.Series
	Dropped     models.DroppedRows
	Cached      bool
}

// ModelSet holds every segment's trained model for one series and options
// fingerprint. Segments with insufficient data have a report but no model.
type ModelSet struct {
	Models  map[SegmentKey]*TrainedModel
	Reports []models.SegmentReport
}

// Forecaster drives the pipeline end to end.
type Forecaster struct {
	opts     Options
	engineer *features.Engineer
	trainer  *Trainer
	cache    *ModelCache
	log      *logger.Logger
}

// New validates opts and builds a forecaster. cache may be nil, in which
// case every call trains its own models.
func New(opts Options, cache *ModelCache, log *logger.Logger) (*Forecaster, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	eng, err := features.NewEngineer(opts.FeatureConfig())
	if err != nil {
		return nil, invalidConfig("%v", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Forecaster{
		opts:     opts,
		engineer: eng,
		trainer:  NewTrainer(opts, log),
		cache:    cache,
		log:      log,
	}, nil
}

// Options returns the options the forecaster was built with.
func (f *Forecaster) Options() Options { return f.opts }

// Run preprocesses a raw batch and forecasts from the resulting series.
func (f *Forecaster) Run(ctx context.Context, batch *models.SalesBatch) (*Result, error) {
	series, dropped, err := Preprocess(batch)
	if dropped.Total() > 0 {
		f.log.Warn("dropped sales rows during preprocessing",
			logger.Int("unparseable", dropped.Unparseable),
			logger.Int("negative", dropped.Negative),
			logger.Int("invalid_period", dropped.InvalidPeriod))
	}
	if err != nil {
		return nil, err
	}
	res, err := f.Forecast(ctx, series)
	if err != nil {
		return nil, err
	}
	res.Dropped = dropped
	return res, nil
}

// Forecast trains per segment and predicts the configured horizon.
func (f *Forecaster) Forecast(ctx context.Context, series models.Series) (*Result, error) {
	if len(series) == 0 {
		return nil, &PipelineError{Kind: ErrEmptySeries}
	}
	snapshot := series.Fingerprint()
	started := time.Now()

	set, cached, err := f.cache.GetOrTrain(ctx, snapshot+":"+f.opts.Fingerprint(), func(ctx context.Context) (*ModelSet, error) {
		return f.TrainAll(ctx, series)
	})
	if err != nil {
		return nil, err
	}

	horizon := f.Horizon(series)
	future := f.engineer.Future(horizon)
	preds := make(models.Predictions, len(horizon))
	for i, p := range horizon {
		preds[i] = models.Prediction{Year: p.Year, Month: p.Month}
		m, ok := set.Models[SegmentFor(f.opts.Granularity, p)]
		if !ok {
			continue
		}
		out, err := m.Predict(future.Subset([]int{i}))
		if err != nil {
			return nil, &PipelineError{Kind: ErrTrainingFailure, Segment: string(m.Segment), Rows: m.Rows, Strategy: string(m.Strategy), Err: err}
		}
		if math.IsNaN(out[0]) || math.IsInf(out[0], 0) {
			return nil, &PipelineError{Kind: ErrTrainingFailure, Segment: string(m.Segment), Rows: m.Rows, Strategy: string(m.Strategy),
				Err: fmt.Errorf("non-finite prediction for %s", p.Label())}
		}
		preds[i].Amount = decimal.NewNullDecimal(decimal.NewFromFloat(out[0]).Round(2))
	}

	f.log.Info("forecast generated",
		logger.String("snapshot", snapshot),
		logger.String("granularity", string(f.opts.Granularity)),
		logger.String("strategy", string(f.opts.Strategy)),
		logger.Int("history", len(series)),
		logger.Int("horizon", len(horizon)),
		logger.Bool("cached_models", cached),
		logger.Duration("elapsed_ms", time.Since(started)))

	return &Result{
		Snapshot:    snapshot,
		Predictions: preds,
		Segments:    set.Reports,
		History:     series,
		Cached:      cached,
	}, nil
}

// TrainAll plans segments over series and trains each one. Insufficient
// segments are reported, not returned as errors.
func (f *Forecaster) TrainAll(ctx context.Context, series models.Series) (*ModelSet, error) {
	frame := f.engineer.Build(series)
	segments := Plan(f.opts.Granularity, frame)
	set := &ModelSet{Models: make(map[SegmentKey]*TrainedModel, len(segments))}

	for _, seg := range segments {
		m, err := f.trainer.Train(ctx, seg, frame)
		switch {
		case err == nil:
			set.Models[seg.Key] = m
			set.Reports = append(set.Reports, models.SegmentReport{
				Segment:  string(seg.Key),
				Status:   models.SegmentTrained,
				Rows:     m.Rows,
				Strategy: string(m.Strategy),
				Params:   m.Params.Clone(),
				CVScore:  m.CVScore,
				Schema:   append([]string(nil), m.Schema...),
			})
		case errors.Is(err, ErrInsufficientData):
			f.log.Debug("segment has insufficient data",
				logger.String("segment", string(seg.Key)),
				logger.Int("rows", len(seg.Rows)))
			set.Reports = append(set.Reports, models.SegmentReport{
				Segment: string(seg.Key),
				Status:  models.SegmentInsufficientData,
				Rows:    len(seg.Rows),
			})
		default:
			return nil, err
		}
	}
	return set, nil
}

// Horizon returns the periods to forecast, in order.
func (f *Forecaster) Horizon(series models.Series) []models.Period {
	var start models.Period
	if last, ok := series.Last(); ok && f.opts.Anchor == AnchorNextPeriod {
		start = last.Next()
	} else {
		start = models.Period{Year: f.opts.now().Year(), Month: 1}
	}
	out := make([]models.Period, f.opts.HorizonMonths)
	for i := range out {
		out[i] = start
		start = start.Next()
	}
	return out
}
