package forecast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SalesCast/internal/domain/models"
	"SalesCast/internal/services/features"
	"SalesCast/internal/services/regression"
)

func fixedOptions() Options {
	opts := DefaultOptions()
	opts.Now = func() time.Time { return time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC) }
	return opts
}

func monthly(year, month int, total float64) models.MonthlyTotal {
	return models.MonthlyTotal{Year: year, Month: month, Total: decimal.NewFromFloat(total)}
}

func TestScenarioFlatSeriesOLS(t *testing.T) {
	f, err := New(fixedOptions(), nil, nil)
	require.NoError(t, err)

	series := models.Series{monthly(2023, 1, 100), monthly(2023, 2, 100), monthly(2023, 3, 100)}
	res, err := f.Forecast(context.Background(), series)
	require.NoError(t, err)
	require.Len(t, res.Predictions, 12)

	for i, p := range res.Predictions {
		assert.Equal(t, models.Period{Year: 2024, Month: i + 1}, p.Period())
		require.False(t, p.Absent(), "period %s", p.Period().Label())
		assert.InDelta(t, 100, p.Amount.Decimal.InexactFloat64(), 0.01)
	}
	require.Len(t, res.Segments, 1)
	assert.Equal(t, models.SegmentTrained, res.Segments[0].Status)
	assert.Equal(t, "ALL", res.Segments[0].Segment)
	assert.Equal(t, series.Fingerprint(), res.Snapshot)
}

func TestScenarioSparseCalendarMonth(t *testing.T) {
	opts := fixedOptions()
	opts.Granularity = PerCalendarMonth
	f, err := New(opts, nil, nil)
	require.NoError(t, err)

	var series models.Series
	for _, y := range []int{2021, 2022, 2023} {
		for m := 1; m <= 6; m++ {
			series = append(series, monthly(y, m, float64(100*m+10*(y-2021))))
		}
	}
	series = append(series, monthly(2023, 7, 500))
	res, err := f.Run(context.Background(), &models.SalesBatch{Monthly: series})
	require.NoError(t, err)

	byLabel := map[string]models.Prediction{}
	for _, p := range res.Predictions {
		byLabel[p.Period().Label()] = p
	}
	assert.True(t, byLabel["2024-07"].Absent(), "single-row segment must be absent")
	assert.True(t, byLabel["2024-12"].Absent(), "month without history must be absent")
	require.False(t, byLabel["2024-01"].Absent())
	assert.InDelta(t, 130, byLabel["2024-01"].Amount.Decimal.InexactFloat64(), 0.01)
	assert.InDelta(t, 630, byLabel["2024-06"].Amount.Decimal.InexactFloat64(), 0.01)

	var statuses = map[string]string{}
	for _, s := range res.Segments {
		statuses[s.Segment] = s.Status
	}
	assert.Equal(t, models.SegmentInsufficientData, statuses["07"])
	assert.Equal(t, models.SegmentTrained, statuses["01"])
	assert.Equal(t, []string{"year"}, res.Segments[0].Schema)
}

func TestScenarioUnparseableDateDropped(t *testing.T) {
	batch := &models.SalesBatch{Records: []models.SalesRecord{
		{Date: "2023-01-05", GrossAmount: decimal.NewFromInt(10)},
		{Date: "yesterday-ish", GrossAmount: decimal.NewFromInt(999)},
		{Date: "2023-02-01", GrossAmount: decimal.NewFromInt(20)},
	}}
	series, dropped, err := Preprocess(batch)
	require.NoError(t, err)
	assert.Equal(t, 1, dropped.Unparseable)
	assert.Equal(t, 1, dropped.Total())
	require.Len(t, series, 2)

	f, err := New(fixedOptions(), nil, nil)
	require.NoError(t, err)
	res, err := f.Run(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Dropped.Unparseable)
}

func TestPreprocessBareIntegersAreNotTimestamps(t *testing.T) {
	batch := &models.SalesBatch{Records: []models.SalesRecord{
		{Date: "2023-01-05", GrossAmount: decimal.NewFromInt(10)},
		{Date: "20230115", GrossAmount: decimal.NewFromInt(999)},
		{Date: "2023", GrossAmount: decimal.NewFromInt(5)},
	}}
	series, dropped, err := Preprocess(batch)
	require.NoError(t, err)
	assert.Equal(t, 1, dropped.Unparseable)
	require.Len(t, series, 1)
	assert.Equal(t, models.Period{Year: 2023, Month: 1}, series[0].Period())
	assert.True(t, series[0].Total.Equal(decimal.NewFromInt(1009)), "got %s", series[0].Total)
}

func TestScenarioEmptyInput(t *testing.T) {
	f, err := New(fixedOptions(), nil, nil)
	require.NoError(t, err)

	res, err := f.Run(context.Background(), &models.SalesBatch{})
	require.ErrorIs(t, err, ErrEmptySeries)
	assert.Nil(t, res)

	_, err = f.Forecast(context.Background(), nil)
	require.ErrorIs(t, err, ErrEmptySeries)

	_, _, err = Preprocess(&models.SalesBatch{Records: []models.SalesRecord{{Date: "??", GrossAmount: decimal.NewFromInt(1)}}})
	require.ErrorIs(t, err, ErrEmptySeries)
}

func TestPreprocessSumsDuplicates(t *testing.T) {
	batch := &models.SalesBatch{
		Records: []models.SalesRecord{
			{Date: "2023-03-20", GrossAmount: decimal.RequireFromString("15.50")},
			{Date: "2023-01-05", GrossAmount: decimal.RequireFromString("10")},
			{Date: "2023-01-28 14:00:00", GrossAmount: decimal.RequireFromString("2.25")},
			{Date: "2023-02-01", GrossAmount: decimal.RequireFromString("-4")},
		},
		Monthly: []models.MonthlyTotal{
			monthly(2023, 1, 7.75),
			monthly(2023, 13, 1),
		},
	}
	series, dropped, err := Preprocess(batch)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, models.Period{Year: 2023, Month: 1}, series[0].Period())
	assert.True(t, series[0].Total.Equal(decimal.RequireFromString("20")), "got %s", series[0].Total)
	assert.Equal(t, models.Period{Year: 2023, Month: 3}, series[1].Period())
	assert.Equal(t, models.DroppedRows{Negative: 1, InvalidPeriod: 1}, dropped)
}

func TestForecastDeterministic(t *testing.T) {
	var series models.Series
	for i := 0; i < 30; i++ {
		p := models.Period{Year: 2021 + i/12, Month: i%12 + 1}
		series = append(series, monthly(p.Year, p.Month, float64(1000+37*i+(i%5)*90)))
	}
	for _, s := range regression.Strategies() {
		opts := fixedOptions()
		opts.Strategy = s
		opts.Seed = 7
		opts.SpecialMonths = []features.SpecialMonth{{Name: "decline_march", Month: 3}}

		a, err := New(opts, nil, nil)
		require.NoError(t, err)
		b, err := New(opts, nil, nil)
		require.NoError(t, err)
		ra, err := a.Forecast(context.Background(), series)
		require.NoError(t, err)
		rb, err := b.Forecast(context.Background(), series)
		require.NoError(t, err)
		assert.Equal(t, ra.Predictions, rb.Predictions, "strategy %s", s)
	}
}

func TestForecastDeterministicWithSearch(t *testing.T) {
	var series models.Series
	for i := 0; i < 24; i++ {
		series = append(series, monthly(2022+i/12, i%12+1, float64(400+23*i+(i%4)*60)))
	}
	opts := fixedOptions()
	opts.Strategy = regression.RandomForest
	opts.Search = true
	opts.CVFolds = 3
	opts.Seed = 11

	run := func() *Result {
		f, err := New(opts, nil, nil)
		require.NoError(t, err)
		res, err := f.Forecast(context.Background(), series)
		require.NoError(t, err)
		return res
	}
	a, b := run(), run()
	assert.Equal(t, a.Predictions, b.Predictions)
	assert.Equal(t, a.Segments, b.Segments)

	scored := 0
	for _, seg := range a.Segments {
		if seg.CVScore != nil {
			scored++
		}
	}
	assert.Positive(t, scored)
}

func TestHyperparameterSearchReportsScore(t *testing.T) {
	opts := fixedOptions()
	opts.Strategy = regression.GradientBoosting
	opts.Search = true
	opts.CVFolds = 3
	f, err := New(opts, nil, nil)
	require.NoError(t, err)

	var series models.Series
	for i := 0; i < 12; i++ {
		series = append(series, monthly(2023, i+1, float64(50+i*5)))
	}
	res, err := f.Forecast(context.Background(), series)
	require.NoError(t, err)
	require.Len(t, res.Segments, 1)
	require.NotNil(t, res.Segments[0].CVScore)
	assert.Contains(t, res.Segments[0].Params, regression.ParamLearningRate)
}

func TestForecastCancelled(t *testing.T) {
	opts := fixedOptions()
	opts.Strategy = regression.RandomForest
	opts.Search = true
	f, err := New(opts, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	series := models.Series{monthly(2023, 1, 1), monthly(2023, 2, 2), monthly(2023, 3, 3)}
	res, err := f.Forecast(ctx, series)
	require.ErrorIs(t, err, ErrCancelled)
	assert.Nil(t, res)
}

func TestTrainingFailureCarriesContext(t *testing.T) {
	f, err := New(fixedOptions(), nil, nil)
	require.NoError(t, err)
	series := models.Series{
		{Year: 2023, Month: 1, Total: decimal.RequireFromString("1e400")},
		monthly(2023, 2, 2),
	}
	_, err = f.Forecast(context.Background(), series)
	require.ErrorIs(t, err, ErrTrainingFailure)
	require.ErrorIs(t, err, regression.ErrNonFinite)

	var pe *PipelineError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "ALL", pe.Segment)
	assert.Equal(t, 2, pe.Rows)
}

func TestInvalidConfiguration(t *testing.T) {
	cases := map[string]func(*Options){
		"strategy":    func(o *Options) { o.Strategy = "svm" },
		"granularity": func(o *Options) { o.Granularity = "WEEKLY" },
		"lag":         func(o *Options) { o.LagWindows = []int{0} },
		"rolling":     func(o *Options) { o.RollingWindows = []int{-1} },
		"min rows":    func(o *Options) { o.MinSegmentRows = 0 },
		"horizon":     func(o *Options) { o.HorizonMonths = 0 },
		"folds":       func(o *Options) { o.Search = true; o.CVFolds = 1 },
		"anchor":      func(o *Options) { o.Anchor = "someday" },
		"fallback":    func(o *Options) { o.Fallbacks = []regression.Strategy{"svm"} },
	}
	for name, mutate := range cases {
		opts := fixedOptions()
		mutate(&opts)
		_, err := New(opts, nil, nil)
		assert.ErrorIs(t, err, ErrInvalidConfiguration, name)
	}
}

func TestHorizonAnchors(t *testing.T) {
	series := models.Series{monthly(2023, 11, 1), monthly(2023, 12, 2)}

	opts := fixedOptions()
	opts.HorizonMonths = 3
	f, err := New(opts, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []models.Period{{Year: 2024, Month: 1}, {Year: 2024, Month: 2}, {Year: 2024, Month: 3}}, f.Horizon(series))

	opts.Anchor = AnchorNextPeriod
	opts.HorizonMonths = 2
	f, err = New(opts, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []models.Period{{Year: 2023, Month: 12}, {Year: 2024, Month: 1}}, f.Horizon(series[:1]))
}

func TestPlanCoversEveryRowOnce(t *testing.T) {
	eng, err := features.NewEngineer(features.DefaultConfig())
	require.NoError(t, err)
	var series models.Series
	for i := 0; i < 27; i++ {
		series = append(series, monthly(2020+i/12, i%12+1, float64(i)))
	}
	frame := eng.Build(series)
	for _, g := range []Granularity{Global, PerCalendarMonth} {
		seen := make(map[int]int)
		for _, seg := range Plan(g, frame) {
			for _, r := range seg.Rows {
				seen[r]++
			}
			if g == PerCalendarMonth {
				assert.Equal(t, []string{features.ColYear}, seg.Columns)
			}
		}
		require.Len(t, seen, frame.Len(), "granularity %s", g)
		for r, n := range seen {
			assert.Equal(t, 1, n, "row %d under %s", r, g)
		}
	}
	assert.Equal(t, SegmentAll, SegmentFor(Global, models.Period{Year: 2024, Month: 7}))
	assert.Equal(t, SegmentKey("07"), SegmentFor(PerCalendarMonth, models.Period{Year: 2024, Month: 7}))
}

func TestModelCacheSingleTraining(t *testing.T) {
	cache, err := NewModelCache(8)
	require.NoError(t, err)

	var calls atomic.Int32
	train := func(ctx context.Context) (*ModelSet, error) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		return &ModelSet{Models: map[SegmentKey]*TrainedModel{}}, nil
	}

	const n = 16
	var wg sync.WaitGroup
	sets := make([]*ModelSet, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sets[i], _, errs[i] = cache.GetOrTrain(context.Background(), "k", train)
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	assert.EqualValues(t, 1, cache.Trainings())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, sets[0], sets[i])
	}

	_, hit, err := cache.GetOrTrain(context.Background(), "k", train)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, cache.Len())
}

func TestModelCacheFollowerRetriesAfterLeaderCancel(t *testing.T) {
	cache, err := NewModelCache(8)
	require.NoError(t, err)

	started := make(chan struct{})
	var calls atomic.Int32
	train := func(ctx context.Context) (*ModelSet, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-ctx.Done()
			return nil, &PipelineError{Kind: ErrCancelled, Err: ctx.Err()}
		}
		return &ModelSet{}, nil
	}

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, _, err := cache.GetOrTrain(leaderCtx, "k", train)
		leaderErr <- err
	}()
	<-started

	followerDone := make(chan error, 1)
	go func() {
		set, _, err := cache.GetOrTrain(context.Background(), "k", train)
		if err == nil && set == nil {
			err = errors.New("nil set")
		}
		followerDone <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	require.ErrorIs(t, <-leaderErr, ErrCancelled)
	require.NoError(t, <-followerDone)
	assert.EqualValues(t, 2, calls.Load())
}

func TestForecastUsesModelCache(t *testing.T) {
	cache, err := NewModelCache(4)
	require.NoError(t, err)
	f, err := New(fixedOptions(), cache, nil)
	require.NoError(t, err)

	series := models.Series{monthly(2023, 1, 10), monthly(2023, 2, 20), monthly(2023, 3, 30)}
	first, err := f.Forecast(context.Background(), series)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	second, err := f.Forecast(context.Background(), series)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Predictions, second.Predictions)
	assert.EqualValues(t, 1, cache.Trainings())
}

func failing(strategies ...regression.Strategy) func(regression.Strategy, regression.Params, int64, [][]float64, []float64) (regression.Regressor, error) {
	return func(s regression.Strategy, p regression.Params, seed int64, x [][]float64, y []float64) (regression.Regressor, error) {
		for _, f := range strategies {
			if s == f {
				return nil, errors.New("fit exploded")
			}
		}
		return regression.Fit(s, p, seed, x, y)
	}
}

func TestFallbackStrategyUsed(t *testing.T) {
	orig := fitModel
	t.Cleanup(func() { fitModel = orig })
	fitModel = failing(regression.RandomForest)

	opts := fixedOptions()
	opts.Strategy = regression.RandomForest
	opts.Fallbacks = []regression.Strategy{regression.OLS}
	f, err := New(opts, nil, nil)
	require.NoError(t, err)

	res, err := f.Forecast(context.Background(), models.Series{monthly(2023, 1, 50), monthly(2023, 2, 50), monthly(2023, 3, 50)})
	require.NoError(t, err)
	require.Len(t, res.Segments, 1)
	assert.Equal(t, string(regression.OLS), res.Segments[0].Strategy)
	for _, p := range res.Predictions {
		require.True(t, p.Amount.Valid)
		assert.InDelta(t, 50, p.Amount.Decimal.InexactFloat64(), 1e-6)
	}
}

func TestAllStrategiesFail(t *testing.T) {
	orig := fitModel
	t.Cleanup(func() { fitModel = orig })
	fitModel = failing(regression.GradientBoosting, regression.OLS)

	opts := fixedOptions()
	opts.Strategy = regression.GradientBoosting
	opts.Fallbacks = []regression.Strategy{regression.OLS, regression.GradientBoosting}
	f, err := New(opts, nil, nil)
	require.NoError(t, err)

	_, err = f.Forecast(context.Background(), models.Series{monthly(2023, 1, 5), monthly(2023, 2, 6)})
	require.ErrorIs(t, err, ErrTrainingFailure)
	assert.Contains(t, err.Error(), "gradient_boosting: fit exploded")
	assert.Contains(t, err.Error(), "ols: fit exploded")
}
