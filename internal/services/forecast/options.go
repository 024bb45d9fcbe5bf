package forecast

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"SalesCast/internal/services/features"
	"SalesCast/internal/services/regression"
)

// Granularity selects how history is partitioned into training segments.
type Granularity string

const (
	Global           Granularity = "GLOBAL"
	PerCalendarMonth Granularity = "PER_CALENDAR_MONTH"
)

// Valid reports whether g is a supported granularity.
func (g Granularity) Valid() bool { return g == Global || g == PerCalendarMonth }

// Anchor selects the first forecast period.
type Anchor string

const (
	// AnchorCalendarYear starts in January of the reference year.
	AnchorCalendarYear Anchor = "calendar_year"
	// AnchorNextPeriod starts the month after the last observed period.
	AnchorNextPeriod Anchor = "next_period"
)

// Valid reports whether a is a supported anchor.
func (a Anchor) Valid() bool { return a == AnchorCalendarYear || a == AnchorNextPeriod }

// Options configure one pipeline run.
type Options struct {
	Granularity    Granularity             `yaml:"segment_granularity" json:"segment_granularity"`
	LagWindows     []int                   `yaml:"lag_windows" json:"lag_windows"`
	RollingWindows []int                   `yaml:"rolling_windows" json:"rolling_windows"`
	SpecialMonths  []features.SpecialMonth `yaml:"special_months" json:"special_months"`
	MinSegmentRows int                     `yaml:"min_segment_rows" json:"min_segment_rows"`
	Strategy       regression.Strategy     `yaml:"model_strategy" json:"model_strategy"`
	Fallbacks      []regression.Strategy   `yaml:"fallback_strategies" json:"fallback_strategies"`
	Search         bool                    `yaml:"hyperparameter_search" json:"hyperparameter_search"`
	CVFolds        int                     `yaml:"cv_folds" json:"cv_folds"`
	HorizonMonths  int                     `yaml:"forecast_horizon_months" json:"forecast_horizon_months"`
	Anchor         Anchor                  `yaml:"horizon_anchor" json:"horizon_anchor"`
	Seed           int64                   `yaml:"random_seed" json:"random_seed"`

	// Now supplies the reference time for the calendar_year anchor.
	Now func() time.Time `yaml:"-" json:"-"`
}

// DefaultOptions mirror the production defaults.
func DefaultOptions() Options {
	fc := features.DefaultConfig()
	return Options{
		Granularity:    Global,
		LagWindows:     fc.LagWindows,
		RollingWindows: fc.RollingWindows,
		MinSegmentRows: 2,
		Strategy:       regression.OLS,
		Fallbacks:      []regression.Strategy{regression.OLS},
		CVFolds:        5,
		HorizonMonths:  12,
		Anchor:         AnchorCalendarYear,
		Seed:           42,
		Now:            time.Now,
	}
}

// Validate reports the first invalid option as ErrInvalidConfiguration.
func (o Options) Validate() error {
	if !o.Granularity.Valid() {
		return invalidConfig("segment_granularity %q", o.Granularity)
	}
	if !o.Strategy.Valid() {
		return invalidConfig("model_strategy %q", o.Strategy)
	}
	for _, s := range o.Fallbacks {
		if !s.Valid() {
			return invalidConfig("fallback strategy %q", s)
		}
	}
	if o.MinSegmentRows < 1 {
		return invalidConfig("min_segment_rows must be >= 1, got %d", o.MinSegmentRows)
	}
	if o.Search && o.CVFolds < 2 {
		return invalidConfig("cv_folds must be >= 2, got %d", o.CVFolds)
	}
	if o.HorizonMonths < 1 {
		return invalidConfig("forecast_horizon_months must be >= 1, got %d", o.HorizonMonths)
	}
	if !o.Anchor.Valid() {
		return invalidConfig("horizon_anchor %q", o.Anchor)
	}
	if _, err := features.NewEngineer(o.FeatureConfig()); err != nil {
		return invalidConfig("%v", err)
	}
	return nil
}

// FeatureConfig returns the feature engineering part of the options.
func (o Options) FeatureConfig() features.Config {
	return features.Config{
		SpecialMonths:  o.SpecialMonths,
		LagWindows:     o.LagWindows,
		RollingWindows: o.RollingWindows,
	}
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Fingerprint identifies the training-relevant options. Horizon and anchor
// are excluded since they do not change fitted models.
func (o Options) Fingerprint() string {
	var b strings.Builder
	fmt.Fprintf(&b, "g=%s;lag=%v;roll=%v;sm=", o.Granularity, o.LagWindows, o.RollingWindows)
	for _, sm := range o.SpecialMonths {
		fmt.Fprintf(&b, "%s:%d,", sm.Name, sm.Month)
	}
	fmt.Fprintf(&b, ";min=%d;s=%s;fb=%v;search=%t;cv=%d;seed=%d",
		o.MinSegmentRows, o.Strategy, o.Fallbacks, o.Search, o.CVFolds, o.Seed)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:8])
}
