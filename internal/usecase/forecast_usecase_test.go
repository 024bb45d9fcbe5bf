package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SalesCast/internal/domain/models"
	"SalesCast/internal/domain/repository"
	"SalesCast/internal/services/forecast"
	"SalesCast/pkg/cache"
)

type fakeSource struct {
	mu      sync.Mutex
	batch   *models.SalesBatch
	err     error
	queries []repository.SalesQuery
}

func (f *fakeSource) FetchSales(_ context.Context, q repository.SalesQuery) (*models.SalesBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return f.batch, f.err
}

func (f *fakeSource) Health(context.Context) error { return f.err }
func (f *fakeSource) Close() error                 { return nil }

type fakeMetrics struct {
	mu        sync.Mutex
	forecasts int
	errors    map[string]int
	cache     map[string]int
	dropped   map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{errors: map[string]int{}, cache: map[string]int{}, dropped: map[string]int{}}
}

func (m *fakeMetrics) RecordForecast(string, string, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forecasts++
}

func (m *fakeMetrics) RecordDroppedRows(reason string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped[reason] += n
}

func (m *fakeMetrics) RecordSegment(string) {}

func (m *fakeMetrics) RecordCache(_ string, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[result]++
}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *fakeMetrics) RecordLatency(string, float64) {}

type fakePublisher struct {
	mu     sync.Mutex
	events []*repository.ForecastEvent
	err    error
}

func (p *fakePublisher) PublishForecast(_ context.Context, ev *repository.ForecastEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *fakePublisher) Close() error { return nil }

// contendedCache reports every lock as held by another instance. When peer
// is set, that instance stores peer under the locked key shortly after.
type contendedCache struct {
	*cache.MemoryCache
	attempts int
	peer     *models.ForecastReport
}

func (c *contendedCache) TryLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	c.attempts++
	if c.peer != nil {
		go func() {
			time.Sleep(20 * time.Millisecond)
			_ = c.MemoryCache.Set(context.Background(), strings.TrimSuffix(key, ":lock"), c.peer, time.Hour)
		}()
	}
	return false, nil
}

func flatHistory() *models.SalesBatch {
	var b models.SalesBatch
	for m := 1; m <= 12; m++ {
		b.Monthly = append(b.Monthly, models.MonthlyTotal{Year: 2023, Month: m, Total: decimal.NewFromInt(100)})
	}
	return &b
}

type harness struct {
	uc      *ForecastUsecase
	src     *fakeSource
	pub     *fakePublisher
	models  *forecast.ModelCache
	metrics *fakeMetrics
}

func newHarness(t *testing.T, src *fakeSource, results cache.Service) *harness {
	t.Helper()
	mc, err := forecast.NewModelCache(8)
	require.NoError(t, err)
	rec := newFakeMetrics()
	pub := &fakePublisher{}
	uc, err := NewForecastUsecase(src, forecast.DefaultOptions(), mc, results, pub, rec, nil, ForecastSettings{
		ResultTTL:          time.Hour,
		LockTTL:            time.Minute,
		LockPoll:           5 * time.Millisecond,
		PreAggregated:      true,
		ExcludeCurrentYear: true,
	})
	require.NoError(t, err)
	uc.now = func() time.Time { return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC) }
	return &harness{uc: uc, src: src, pub: pub, models: mc, metrics: rec}
}

func TestForecastFlatHistory(t *testing.T) {
	h := newHarness(t, &fakeSource{batch: flatHistory()}, cache.NewMemoryCache())

	report, err := h.uc.Forecast(context.Background(), &models.ForecastRequest{FromYear: 2019})
	require.NoError(t, err)
	require.Len(t, report.Predictions, 12)
	for i, p := range report.Predictions {
		assert.Equal(t, models.Period{Year: 2024, Month: i + 1}, p.Period())
		require.False(t, p.Absent())
		assert.InDelta(t, 100, p.Amount.Decimal.InexactFloat64(), 0.01)
	}
	assert.Equal(t, "GLOBAL", report.Granularity)
	assert.Equal(t, "ols", report.Strategy)
	assert.False(t, report.Cached)
	assert.Len(t, report.History, 12)

	require.Len(t, h.src.queries, 1)
	assert.Equal(t, repository.SalesQuery{FromYear: 2019, ToYear: 2023, PreAggregated: true}, h.src.queries[0])

	require.Len(t, h.pub.events, 1)
	assert.Equal(t, report.Snapshot, h.pub.events[0].Snapshot)
	assert.Equal(t, 1, h.metrics.forecasts)
	assert.Equal(t, 1, h.metrics.cache["miss"])
}

func TestForecastServedFromResultCache(t *testing.T) {
	h := newHarness(t, &fakeSource{batch: flatHistory()}, cache.NewMemoryCache())
	ctx := context.Background()

	first, err := h.uc.Forecast(ctx, &models.ForecastRequest{})
	require.NoError(t, err)
	second, err := h.uc.Forecast(ctx, &models.ForecastRequest{})
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.Equal(t, first.Snapshot, second.Snapshot)
	require.Len(t, second.Predictions, len(first.Predictions))
	for i := range first.Predictions {
		assert.True(t, first.Predictions[i].Amount.Decimal.Equal(second.Predictions[i].Amount.Decimal))
	}
	assert.Len(t, h.pub.events, 1, "cached results are not republished")
	assert.Equal(t, int64(1), h.models.Trainings())
	assert.Equal(t, 1, h.metrics.cache["hit"])
}

func TestForecastWaitsForLockHolderResult(t *testing.T) {
	peer := &models.ForecastReport{
		Snapshot:    "from-peer",
		Granularity: "GLOBAL",
		Strategy:    "ols",
		Predictions: models.Predictions{
			{Year: 2024, Month: 1, Amount: decimal.NewNullDecimal(decimal.NewFromInt(77))},
		},
	}
	results := &contendedCache{MemoryCache: cache.NewMemoryCache(), peer: peer}
	h := newHarness(t, &fakeSource{batch: flatHistory()}, results)

	report, err := h.uc.Forecast(context.Background(), &models.ForecastRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, results.attempts)
	assert.Equal(t, "from-peer", report.Snapshot)
	assert.True(t, report.Cached)
	require.Len(t, report.Predictions, 1)
	assert.True(t, report.Predictions[0].Amount.Decimal.Equal(decimal.NewFromInt(77)))
	assert.Equal(t, int64(0), h.models.Trainings(), "the lock holder trains, not this instance")
	assert.Empty(t, h.pub.events)
	assert.Equal(t, 1, h.metrics.cache["peer"])
}

func TestForecastTrainsWhenLockHolderStalls(t *testing.T) {
	results := &contendedCache{MemoryCache: cache.NewMemoryCache()}
	h := newHarness(t, &fakeSource{batch: flatHistory()}, results)
	h.uc.settings.LockTTL = 40 * time.Millisecond

	report, err := h.uc.Forecast(context.Background(), &models.ForecastRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, results.attempts)
	assert.False(t, report.Cached)
	assert.Len(t, report.Predictions, 12)
	assert.Equal(t, int64(1), h.models.Trainings())
}

func TestForecastCancelledWhileWaitingForLock(t *testing.T) {
	results := &contendedCache{MemoryCache: cache.NewMemoryCache()}
	h := newHarness(t, &fakeSource{batch: flatHistory()}, results)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err := h.uc.Forecast(ctx, &models.ForecastRequest{})
	require.ErrorIs(t, err, forecast.ErrCancelled)
	assert.Equal(t, int64(0), h.models.Trainings())
}

func TestForecastWithoutResultCache(t *testing.T) {
	h := newHarness(t, &fakeSource{batch: flatHistory()}, nil)
	_, err := h.uc.Forecast(context.Background(), nil)
	require.NoError(t, err)
	report, err := h.uc.Forecast(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, report.Cached)
	assert.Equal(t, int64(1), h.models.Trainings(), "model cache still dedupes training")
}

func TestForecastRequestOverrides(t *testing.T) {
	search := true
	seed := int64(7)
	opts := OptionsFor(forecast.DefaultOptions(), &models.ForecastRequest{
		Granularity: "per_calendar_month",
		Strategy:    "RANDOM_FOREST",
		Search:      &search,
		Horizon:     3,
		Seed:        &seed,
		Anchor:      "next_period",
	})
	assert.Equal(t, forecast.PerCalendarMonth, opts.Granularity)
	assert.Equal(t, "random_forest", string(opts.Strategy))
	assert.True(t, opts.Search)
	assert.Equal(t, 3, opts.HorizonMonths)
	assert.Equal(t, int64(7), opts.Seed)
	assert.Equal(t, forecast.AnchorNextPeriod, opts.Anchor)

	base := forecast.DefaultOptions()
	same := OptionsFor(base, &models.ForecastRequest{})
	assert.Equal(t, base.Fingerprint(), same.Fingerprint())
	assert.Equal(t, base.HorizonMonths, same.HorizonMonths)
}

func TestForecastNextPeriodAnchor(t *testing.T) {
	h := newHarness(t, &fakeSource{batch: flatHistory()}, nil)
	report, err := h.uc.Forecast(context.Background(), &models.ForecastRequest{Anchor: "next_period", Horizon: 2})
	require.NoError(t, err)
	require.Len(t, report.Predictions, 2)
	assert.Equal(t, models.Period{Year: 2024, Month: 1}, report.Predictions[0].Period())
	assert.Equal(t, models.Period{Year: 2024, Month: 2}, report.Predictions[1].Period())
}

func TestForecastInvalidOverride(t *testing.T) {
	src := &fakeSource{batch: flatHistory()}
	h := newHarness(t, src, nil)
	_, err := h.uc.Forecast(context.Background(), &models.ForecastRequest{Granularity: "WEEKLY"})
	require.ErrorIs(t, err, forecast.ErrInvalidConfiguration)
	assert.Empty(t, src.queries, "invalid options must not hit the source")
	assert.Equal(t, "invalid_configuration", ErrorKind(err))
}

func TestForecastSourceFailure(t *testing.T) {
	boom := errors.New("connection refused")
	h := newHarness(t, &fakeSource{err: boom}, nil)
	_, err := h.uc.Forecast(context.Background(), nil)
	require.ErrorIs(t, err, ErrSource)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "source", ErrorKind(err))
	assert.Equal(t, 1, h.metrics.errors["source"])
	assert.Empty(t, h.pub.events)
}

func TestForecastCancelledFetch(t *testing.T) {
	h := newHarness(t, &fakeSource{err: context.Canceled}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.uc.Forecast(ctx, nil)
	require.ErrorIs(t, err, forecast.ErrCancelled)
}

func TestForecastEmptySource(t *testing.T) {
	h := newHarness(t, &fakeSource{batch: &models.SalesBatch{}}, nil)
	_, err := h.uc.Forecast(context.Background(), nil)
	require.ErrorIs(t, err, forecast.ErrEmptySeries)
	assert.Equal(t, "empty_series", ErrorKind(err))
}

func TestForecastPublishFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, &fakeSource{batch: flatHistory()}, nil)
	h.pub.err = errors.New("broker down")
	report, err := h.uc.Forecast(context.Background(), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, report.Predictions)
}

func TestMonthlyHistory(t *testing.T) {
	src := &fakeSource{batch: &models.SalesBatch{Records: []models.SalesRecord{
		{Date: "2023-02-10", GrossAmount: decimal.NewFromInt(5)},
		{Date: "2023-01-03", GrossAmount: decimal.NewFromInt(2)},
		{Date: "2023-01-20", GrossAmount: decimal.NewFromInt(3)},
		{Date: "garbage", GrossAmount: decimal.NewFromInt(9)},
	}}}
	h := newHarness(t, src, nil)
	series, err := h.uc.MonthlyHistory(context.Background(), repository.SalesQuery{FromYear: 2019})
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, 1, series[0].Month)
	assert.True(t, series[0].Total.Equal(decimal.NewFromInt(5)))
	assert.True(t, src.queries[0].PreAggregated)
	assert.Equal(t, 1, h.metrics.dropped["unparseable"])

	h = newHarness(t, &fakeSource{batch: &models.SalesBatch{}}, nil)
	series, err = h.uc.MonthlyHistory(context.Background(), repository.SalesQuery{})
	require.NoError(t, err)
	assert.Empty(t, series)
}

func TestHealthWrapsSourceError(t *testing.T) {
	h := newHarness(t, &fakeSource{err: errors.New("down")}, nil)
	assert.ErrorIs(t, h.uc.Health(context.Background()), ErrSource)
}
