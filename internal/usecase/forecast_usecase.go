package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"SalesCast/internal/domain/models"
	"SalesCast/internal/domain/repository"
	"SalesCast/internal/services/forecast"
	"SalesCast/internal/services/regression"
	"SalesCast/pkg/cache"
	applogger "SalesCast/pkg/logger"
)

// ErrSource marks failures of the sales ingestion adapter.
var ErrSource = errors.New("sales source unavailable")

// ForecastSettings tune the usecase around the pipeline.
type ForecastSettings struct {
	ResultTTL          time.Duration
	LockTTL            time.Duration
	LockPoll           time.Duration // first wait between result polls while a peer holds the lock
	Timeout            time.Duration
	PreAggregated      bool
	ExcludeCurrentYear bool
	PublishTimeout     time.Duration
}

// ForecastUsecase fetches sales history, runs the pipeline and caches and
// publishes the outcome.
type ForecastUsecase struct {
	source   repository.SalesSource
	base     forecast.Options
	models   *forecast.ModelCache
	results  cache.Service
	pub      repository.ForecastPublisher
	metrics  repository.Metrics
	log      *applogger.Logger
	settings ForecastSettings
	now      func() time.Time
}

// NewForecastUsecase wires the usecase. modelCache, results and pub may be nil.
func NewForecastUsecase(
	source repository.SalesSource,
	base forecast.Options,
	modelCache *forecast.ModelCache,
	results cache.Service,
	pub repository.ForecastPublisher,
	metrics repository.Metrics,
	log *applogger.Logger,
	settings ForecastSettings,
) (*ForecastUsecase, error) {
	if err := base.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = applogger.Nop()
	}
	if settings.PublishTimeout <= 0 {
		settings.PublishTimeout = 5 * time.Second
	}
	if settings.LockTTL <= 0 {
		settings.LockTTL = 2 * time.Minute
	}
	if settings.LockPoll <= 0 {
		settings.LockPoll = 100 * time.Millisecond
	}
	return &ForecastUsecase{
		source:   source,
		base:     base,
		models:   modelCache,
		results:  results,
		pub:      pub,
		metrics:  metrics,
		log:      log,
		settings: settings,
		now:      time.Now,
	}, nil
}

// SetClock replaces the reference clock used for horizons and year bounds.
func (u *ForecastUsecase) SetClock(now func() time.Time) {
	if now != nil {
		u.now = now
	}
}

// OptionsFor merges request overrides into the base options. Validation is
// left to the forecaster.
func OptionsFor(base forecast.Options, req *models.ForecastRequest) forecast.Options {
	opts := base
	if req == nil {
		return opts
	}
	if req.Granularity != "" {
		opts.Granularity = forecast.Granularity(strings.ToUpper(req.Granularity))
	}
	if req.Strategy != "" {
		opts.Strategy = regression.Strategy(strings.ToLower(req.Strategy))
	}
	if req.Search != nil {
		opts.Search = *req.Search
	}
	if req.Horizon > 0 {
		opts.HorizonMonths = req.Horizon
	}
	if req.Seed != nil {
		opts.Seed = *req.Seed
	}
	if req.Anchor != "" {
		opts.Anchor = forecast.Anchor(strings.ToLower(req.Anchor))
	}
	return opts
}

// Forecast answers one forecasting request.
func (u *ForecastUsecase) Forecast(ctx context.Context, req *models.ForecastRequest) (*models.ForecastReport, error) {
	start := time.Now()
	if u.settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.settings.Timeout)
		defer cancel()
	}

	opts := OptionsFor(u.base, req)
	opts.Now = u.now
	fc, err := forecast.New(opts, u.models, u.log)
	if err != nil {
		u.recordError(err)
		return nil, err
	}

	fromYear := 0
	if req != nil {
		fromYear = req.FromYear
	}
	batch, err := u.fetch(ctx, u.query(fromYear))
	if err != nil {
		return nil, err
	}

	series, dropped, err := forecast.Preprocess(batch)
	u.recordDropped(dropped)
	if dropped.Total() > 0 {
		u.log.Warn("dropped sales rows during preprocessing",
			applogger.Int("unparseable", dropped.Unparseable),
			applogger.Int("negative", dropped.Negative),
			applogger.Int("invalid_period", dropped.InvalidPeriod))
	}
	if err != nil {
		u.recordError(err)
		return nil, err
	}

	horizon := fc.Horizon(series)
	key := cache.GenerateKeyWithParams("forecast", series.Fingerprint(), opts.Fingerprint(),
		horizon[0].Label(), len(horizon))

	if report, ok := u.cached(ctx, key); ok {
		return report, nil
	}

	if u.results != nil {
		locked, err := u.results.TryLock(ctx, key+":lock", u.settings.LockTTL)
		switch {
		case err != nil:
			u.log.Warn("forecast lock failed", applogger.String("key", key), applogger.Error(err))
		case locked:
			defer func() {
				if err := u.results.Unlock(context.WithoutCancel(ctx), key+":lock"); err != nil {
					u.log.Warn("forecast unlock failed", applogger.String("key", key), applogger.Error(err))
				}
			}()
		default:
			if report, ok := u.awaitPeer(ctx, key); ok {
				return report, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				err := &forecast.PipelineError{Kind: forecast.ErrCancelled, Err: ctxErr}
				u.recordError(err)
				return nil, err
			}
			u.log.Warn("forecast lock holder produced no result, training locally", applogger.String("key", key))
		}
	}

	res, err := fc.Forecast(ctx, series)
	if err != nil {
		u.recordError(err)
		u.log.Error("forecast failed",
			applogger.String("granularity", string(opts.Granularity)),
			applogger.String("strategy", string(opts.Strategy)),
			applogger.Error(err))
		return nil, err
	}

	report := &models.ForecastReport{
		Snapshot:    res.Snapshot,
		GeneratedAt: u.now().UTC(),
		Granularity: string(opts.Granularity),
		Strategy:    string(opts.Strategy),
		Predictions: res.Predictions,
		Segments:    res.Segments,
		History:     res.History,
		Dropped:     dropped,
	}
	u.recordOutcome(report, time.Since(start))

	if u.results != nil {
		if err := u.results.Set(ctx, key, report, u.settings.ResultTTL); err != nil {
			u.log.Warn("forecast cache store failed", applogger.String("key", key), applogger.Error(err))
		}
	}
	u.publish(ctx, report)
	return report, nil
}

// MonthlyHistory returns the canonical monthly series for q. An empty
// source yields an empty series.
func (u *ForecastUsecase) MonthlyHistory(ctx context.Context, q repository.SalesQuery) (models.Series, error) {
	q.PreAggregated = u.settings.PreAggregated
	batch, err := u.fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	series, dropped, err := forecast.Preprocess(batch)
	u.recordDropped(dropped)
	if errors.Is(err, forecast.ErrEmptySeries) {
		return models.Series{}, nil
	}
	return series, err
}

// Health reports the sales source health.
func (u *ForecastUsecase) Health(ctx context.Context) error {
	if err := u.source.Health(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrSource, err)
	}
	return nil
}

func (u *ForecastUsecase) query(fromYear int) repository.SalesQuery {
	q := repository.SalesQuery{FromYear: fromYear, PreAggregated: u.settings.PreAggregated}
	if u.settings.ExcludeCurrentYear {
		q.ToYear = u.now().Year() - 1
	}
	return q
}

func (u *ForecastUsecase) fetch(ctx context.Context, q repository.SalesQuery) (*models.SalesBatch, error) {
	start := time.Now()
	batch, err := u.source.FetchSales(ctx, q)
	if u.metrics != nil {
		u.metrics.RecordLatency("fetch_sales", time.Since(start).Seconds())
	}
	if err != nil {
		if ctx.Err() != nil {
			err = &forecast.PipelineError{Kind: forecast.ErrCancelled, Err: err}
		} else {
			err = fmt.Errorf("%w: %w", ErrSource, err)
		}
		u.recordError(err)
		u.log.Error("fetch sales failed",
			applogger.Int("from_year", q.FromYear),
			applogger.Int("to_year", q.ToYear),
			applogger.Error(err))
		return nil, err
	}
	return batch, nil
}

func (u *ForecastUsecase) cached(ctx context.Context, key string) (*models.ForecastReport, bool) {
	if u.results == nil {
		return nil, false
	}
	var report models.ForecastReport
	err := u.results.Get(ctx, key, &report)
	switch {
	case err == nil:
		u.recordCache("hit")
		report.Cached = true
		return &report, true
	case errors.Is(err, cache.ErrCacheMiss):
		u.recordCache("miss")
	default:
		u.recordCache("error")
		u.log.Warn("forecast cache read failed", applogger.String("key", key), applogger.Error(err))
	}
	return nil, false
}

// awaitPeer polls the result cache with backoff while another instance holds
// the lock for key. It gives up after the lock TTL, or half of what is left of
// ctx, so a stalled holder still leaves time to train locally.
func (u *ForecastUsecase) awaitPeer(ctx context.Context, key string) (*models.ForecastReport, bool) {
	wait := u.settings.LockTTL
	if dl, ok := ctx.Deadline(); ok {
		if half := time.Until(dl) / 2; half < wait {
			wait = half
		}
	}
	u.log.Debug("forecast lock held elsewhere, waiting for result",
		applogger.String("key", key),
		applogger.Duration("wait_ms", wait))

	giveUp := time.NewTimer(wait)
	defer giveUp.Stop()
	backoff := u.settings.LockPoll
	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-giveUp.C:
			return nil, false
		case <-time.After(backoff):
		}

		var report models.ForecastReport
		err := u.results.Get(ctx, key, &report)
		switch {
		case err == nil:
			u.recordCache("peer")
			report.Cached = true
			return &report, true
		case !errors.Is(err, cache.ErrCacheMiss):
			u.log.Warn("forecast cache read failed while waiting", applogger.String("key", key), applogger.Error(err))
			return nil, false
		}
		backoff = min(2*backoff, maxLockPoll)
	}
}

const maxLockPoll = time.Second

func (u *ForecastUsecase) publish(ctx context.Context, report *models.ForecastReport) {
	if u.pub == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.settings.PublishTimeout)
	defer cancel()
	err := u.pub.PublishForecast(pctx, &repository.ForecastEvent{
		Snapshot:    report.Snapshot,
		GeneratedAt: report.GeneratedAt,
		Granularity: report.Granularity,
		Strategy:    report.Strategy,
		Predictions: report.Predictions,
	})
	if err != nil {
		u.recordError(err)
		u.log.Warn("forecast publish failed", applogger.String("snapshot", report.Snapshot), applogger.Error(err))
	}
}

func (u *ForecastUsecase) recordOutcome(report *models.ForecastReport, elapsed time.Duration) {
	if u.metrics == nil {
		return
	}
	u.metrics.RecordForecast(report.Granularity, report.Strategy, elapsed.Seconds())
	for _, s := range report.Segments {
		u.metrics.RecordSegment(s.Status)
	}
}

func (u *ForecastUsecase) recordDropped(d models.DroppedRows) {
	if u.metrics == nil {
		return
	}
	u.metrics.RecordDroppedRows("unparseable", d.Unparseable)
	u.metrics.RecordDroppedRows("negative", d.Negative)
	u.metrics.RecordDroppedRows("invalid_period", d.InvalidPeriod)
}

func (u *ForecastUsecase) recordCache(result string) {
	if u.metrics != nil {
		u.metrics.RecordCache("result", result)
	}
}

func (u *ForecastUsecase) recordError(err error) {
	if u.metrics != nil {
		u.metrics.RecordError(ErrorKind(err))
	}
}

// ErrorKind names the class of err for metrics and logs.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrSource):
		return "source"
	case errors.Is(err, ErrNoSales):
		return "no_sales"
	case errors.Is(err, forecast.ErrEmptySeries):
		return "empty_series"
	case errors.Is(err, forecast.ErrInvalidConfiguration):
		return "invalid_configuration"
	case errors.Is(err, forecast.ErrCancelled):
		return "cancelled"
	case errors.Is(err, forecast.ErrTrainingFailure):
		return "training_failure"
	default:
		return "other"
	}
}
