package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"SalesCast/internal/di"
	"SalesCast/internal/domain/models"
	internalrepo "SalesCast/internal/repository"
	"SalesCast/internal/services/forecast"
	"SalesCast/internal/usecase"
	"SalesCast/pkg/config"
	applogger "SalesCast/pkg/logger"
)

var version = "dev"

type forecastFlags struct {
	csv         string
	granularity string
	strategy    string
	search      bool
	horizon     int
	seed        int64
	anchor      string
	year        int
	fromYear    int
	full        bool
	verbose     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "forecastctl",
		Short:         "Offline monthly sales forecasting",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(forecastCmd())
	root.AddCommand(productsCmd())
	root.AddCommand(versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version)
			return err
		},
	}
}

func forecastCmd() *cobra.Command {
	f := &forecastFlags{}
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Forecast monthly sales from a CSV file",
		Long: `Reads date,gross_sales[,product_name,quantity] or year,month,total rows,
trains the configured model and prints the ordered "YYYY-MM" predictions.
Periods without trainable history print as null.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runForecast(cmd.Context(), cmd.OutOrStdout(), f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.csv, "csv", "", "sales CSV file (required)")
	fl.StringVar(&f.granularity, "granularity", "", "GLOBAL or PER_CALENDAR_MONTH")
	fl.StringVar(&f.strategy, "strategy", "", "ols, random_forest or gradient_boosting")
	fl.BoolVar(&f.search, "search", false, "cross-validated hyperparameter search")
	fl.IntVar(&f.horizon, "horizon", 0, "months to forecast (default 12)")
	fl.Int64Var(&f.seed, "seed", 42, "random seed for tree strategies")
	fl.StringVar(&f.anchor, "anchor", "", "calendar_year or next_period")
	fl.IntVar(&f.year, "year", 0, "reference year for the calendar_year anchor (default current year)")
	fl.IntVar(&f.fromYear, "from-year", 0, "ignore history before this year")
	fl.BoolVar(&f.full, "full", false, "print the full report instead of predictions only")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "log pipeline progress to stderr")
	_ = cmd.MarkFlagRequired("csv")
	return cmd
}

func productsCmd() *cobra.Command {
	var (
		csv                string
		year, month, limit int
	)
	cmd := &cobra.Command{
		Use:   "products",
		Short: "Rank products sold in one month by quantity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			uc, err := csvUsecase(csv, applogger.Nop())
			if err != nil {
				return err
			}
			report, err := uc.ProductDemand(cmd.Context(), year, month, limit)
			if err != nil {
				return withKind(err)
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&csv, "csv", "", "sales CSV file with product_name and quantity columns (required)")
	fl.IntVar(&year, "year", 0, "year to rank (required)")
	fl.IntVar(&month, "month", 0, "month to rank, 1-12 (required)")
	fl.IntVar(&limit, "limit", 10, "products to print, 0 for all")
	for _, name := range []string{"csv", "year", "month"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func csvUsecase(path string, log *applogger.Logger) (*usecase.ForecastUsecase, error) {
	cfg, err := config.Default()
	if err != nil {
		return nil, err
	}
	opts, err := di.ProvideForecastOptions(cfg)
	if err != nil {
		return nil, err
	}
	return usecase.NewForecastUsecase(
		internalrepo.NewCSVSalesSource(path),
		opts, nil, nil, internalrepo.NopForecastPublisher{}, nil, log,
		usecase.ForecastSettings{PreAggregated: false},
	)
}

func withKind(err error) error {
	if forecast.Kind(err) != nil || errors.Is(err, usecase.ErrNoSales) {
		return fmt.Errorf("%s: %w", usecase.ErrorKind(err), err)
	}
	return err
}

func printJSON(out io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(b))
	return err
}

func runForecast(ctx context.Context, out io.Writer, f *forecastFlags) error {
	log := applogger.Nop()
	if f.verbose {
		log = applogger.NewWriter(zerolog.ConsoleWriter{Out: os.Stderr}, zerolog.DebugLevel)
	}

	uc, err := csvUsecase(f.csv, log)
	if err != nil {
		return err
	}
	if f.year > 0 {
		ref := time.Date(f.year, time.January, 1, 0, 0, 0, 0, time.UTC)
		uc.SetClock(func() time.Time { return ref })
	}

	search := f.search
	seed := f.seed
	report, err := uc.Forecast(ctx, &models.ForecastRequest{
		Granularity: f.granularity,
		Strategy:    f.strategy,
		Search:      &search,
		Horizon:     f.horizon,
		Seed:        &seed,
		Anchor:      f.anchor,
		FromYear:    f.fromYear,
	})
	if err != nil {
		return withKind(err)
	}

	if f.full {
		return printJSON(out, report)
	}
	return printJSON(out, report.Predictions)
}
