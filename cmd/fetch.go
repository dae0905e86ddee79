package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/gmn-data-platform/gmntraj/internal/backoff"
	"github.com/gmn-data-platform/gmntraj/internal/config"
	"github.com/gmn-data-platform/gmntraj/reader"
	"github.com/gmn-data-platform/gmntraj/source"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download trajectory summaries from the GMN data directory or data store",
	Long: `Downloads trajectory summary files and either writes them unchanged (--raw)
or reads them into a typed table and writes it like the read command does.`,
}

var fetchDailyCmd = &cobra.Command{
	Use:   "daily [YYYY-MM-DD]",
	Short: "Fetch the daily file of a date (default: today's latest file)",
	Args:  cobra.MaximumNArgs(1),
	Example: `  gmntraj fetch daily 2022-03-04 -f parquet -o 20220304.parquet
  gmntraj fetch daily --from 2022-03-01 --to 2022-03-07 --camel-case`,
	PreRunE: bindFetchFlags,
	RunE:    runFetchDaily,
}

var fetchMonthlyCmd = &cobra.Command{
	Use:     "monthly YYYY-MM",
	Short:   "Fetch the monthly file of a month",
	Args:    cobra.ExactArgs(1),
	PreRunE: bindFetchFlags,
	RunE:    runFetchMonthly,
}

var fetchStoreCmd = &cobra.Command{
	Use:     "store",
	Short:   "Query the meteor summary table of the data store REST API",
	Example: `  gmntraj fetch store --where "iau_code = 'PER'" -f arrow -o per.arrow`,
	Args:    cobra.NoArgs,
	PreRunE: bindFetchFlags,
	RunE:    runFetchStore,
}

var fetchListCmd = &cobra.Command{
	Use:       "list daily|monthly",
	Short:     "List the files of the data directory",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"daily", "monthly"},
	PreRunE:   bindFetchFlags,
	RunE:      runFetchList,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.AddCommand(fetchDailyCmd, fetchMonthlyCmd, fetchStoreCmd, fetchListCmd)

	def := config.Default()
	pf := fetchCmd.PersistentFlags()
	pf.String("directory-url", def.Source.DirectoryURL, "base URL of the data directory")
	pf.String("data-store-url", def.Source.DataStoreURL, "base URL of the data store")
	pf.Float64("rate-limit", def.Source.RateLimit, "requests per second (0 = unlimited)")
	pf.Int("max-retries", def.Source.MaxRetries, "retries of failed requests")
	pf.Int("concurrency", def.Source.Concurrency, "parallel downloads")
	pf.Bool("raw", false, "write downloaded content unchanged")

	for _, c := range []*cobra.Command{fetchDailyCmd, fetchMonthlyCmd, fetchStoreCmd} {
		addTableFlags(c.Flags())
	}
	fetchDailyCmd.Flags().String("from", "", "first date of a range (YYYY-MM-DD)")
	fetchDailyCmd.Flags().String("to", "", "last date of a range (YYYY-MM-DD, default: --from)")
	fetchStoreCmd.Flags().String("where", "", "SQL WHERE clause, e.g. \"iau_no = 4\"")
	fetchStoreCmd.Flags().Int("max-pages", def.Source.MaxPages, "maximum number of pages to follow (0 = all)")
}

func bindFetchFlags(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	mustBindPFlag("source.directory_url", f.Lookup("directory-url"))
	mustBindPFlag("source.data_store_url", f.Lookup("data-store-url"))
	mustBindPFlag("source.rate_limit", f.Lookup("rate-limit"))
	mustBindPFlag("source.max_retries", f.Lookup("max-retries"))
	mustBindPFlag("source.concurrency", f.Lookup("concurrency"))
	if f.Lookup("max-pages") != nil {
		mustBindPFlag("source.max_pages", f.Lookup("max-pages"))
	}
	if f.Lookup("format") != nil {
		return bindTableFlags(cmd, args)
	}
	return nil
}

func newSourceClient(cfg config.Config, name string, tp trace.TracerProvider) *source.Client {
	return source.NewClient(name,
		source.WithHTTPClient(&http.Client{Timeout: cfg.Source.RequestTimeout}),
		source.WithRateLimit(cfg.Source.RateLimit, cfg.Source.RateBurst),
		source.WithRetryPolicy(backoff.Policy{
			Base:       cfg.Source.BackoffBase,
			Cap:        cfg.Source.BackoffCap,
			MaxRetries: cfg.Source.MaxRetries,
		}),
		source.WithCircuitBreaker(cfg.Source.BreakerFailures, cfg.Source.BreakerReset),
		source.WithClientLogger(slog.Default()),
		source.WithTracerProvider(tp),
	)
}

func newDataDirectory(cfg config.Config, tp trace.TracerProvider) *source.DataDirectory {
	return source.NewDataDirectory(newSourceClient(cfg, "data_directory", tp),
		source.WithBaseURL(cfg.Source.DirectoryURL),
		source.WithConcurrency(cfg.Source.Concurrency),
		source.WithDirectoryLogger(slog.Default()),
	)
}

// fetchSetup loads the configuration and opens the command context.
func fetchSetup(cmd *cobra.Command) (config.Config, context.Context, trace.TracerProvider, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return cfg, nil, nil, nil, err
	}
	ctx, tp, done, err := commandContext(cmd, cfg)
	if err != nil {
		return cfg, nil, nil, nil, err
	}
	return cfg, ctx, tp, done, nil
}

func runFetchDaily(cmd *cobra.Command, args []string) error {
	cfg, ctx, tp, done, err := fetchSetup(cmd)
	if err != nil {
		return err
	}
	defer done()
	dir := newDataDirectory(cfg, tp)

	var urls []string
	if fromFlag, _ := cmd.Flags().GetString("from"); fromFlag != "" {
		if len(args) > 0 {
			return fmt.Errorf("a date argument cannot be combined with --from")
		}
		toFlag, _ := cmd.Flags().GetString("to")
		if toFlag == "" {
			toFlag = fromFlag
		}
		from, err := time.Parse(time.DateOnly, fromFlag)
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		to, err := time.Parse(time.DateOnly, toFlag)
		if err != nil {
			return fmt.Errorf("--to: %w", err)
		}
		if urls, err = dir.DailyURLsBetween(ctx, from, to); err != nil {
			return err
		}
	} else {
		date := time.Now()
		if len(args) == 1 {
			if date, err = time.Parse(time.DateOnly, args[0]); err != nil {
				return fmt.Errorf("date: %w", err)
			}
		}
		u, err := dir.DailyURL(ctx, date)
		if err != nil {
			return err
		}
		urls = []string{u}
	}

	chunks, err := dir.Download(ctx, urls)
	if err != nil {
		return err
	}
	return emitChunks(ctx, cmd, cfg, tp, chunks, reader.DataDirectory)
}

func runFetchMonthly(cmd *cobra.Command, args []string) error {
	month, err := time.Parse("2006-01", args[0])
	if err != nil {
		return fmt.Errorf("month: %w", err)
	}
	cfg, ctx, tp, done, err := fetchSetup(cmd)
	if err != nil {
		return err
	}
	defer done()

	content, err := newDataDirectory(cfg, tp).MonthlyContent(ctx, month)
	if err != nil {
		return err
	}
	return emitChunks(ctx, cmd, cfg, tp, []string{content}, reader.DataDirectory)
}

func runFetchStore(cmd *cobra.Command, args []string) error {
	cfg, ctx, tp, done, err := fetchSetup(cmd)
	if err != nil {
		return err
	}
	defer done()

	store := source.NewDataStore(newSourceClient(cfg, "data_store", tp),
		source.WithDataStoreURL(cfg.Source.DataStoreURL),
		source.WithMaxPages(cfg.Source.MaxPages),
		source.WithDataStoreLogger(slog.Default()),
	)
	q := source.Query{Table: source.MeteorSummaryTable, Format: source.FormatCSV, Shape: source.ShapeArray}
	if where, _ := cmd.Flags().GetString("where"); where != "" {
		q.Args = url.Values{"_where": {where}}
	}
	pages, err := store.All(ctx, q)
	if err != nil {
		return err
	}
	return emitChunks(ctx, cmd, cfg, tp, pages, reader.RESTAPI)
}

func runFetchList(cmd *cobra.Command, args []string) error {
	cfg, ctx, tp, done, err := fetchSetup(cmd)
	if err != nil {
		return err
	}
	defer done()

	dir := newDataDirectory(cfg, tp)
	var urls []string
	switch args[0] {
	case "daily":
		urls, err = dir.DailyURLs(ctx)
	case "monthly":
		urls, err = dir.MonthlyURLs(ctx)
	default:
		return fmt.Errorf("unknown listing %q (expected daily or monthly)", args[0])
	}
	if err != nil {
		return err
	}
	_, err = io.WriteString(cmd.OutOrStdout(), strings.Join(urls, "\n")+"\n")
	return err
}

// emitChunks writes downloaded content raw, or reads it as one chunk
// sequence in dialect and emits the table.
func emitChunks(ctx context.Context, cmd *cobra.Command, cfg config.Config, tp trace.TracerProvider, chunks []string, dialect reader.Dialect) error {
	if raw, _ := cmd.Flags().GetBool("raw"); raw {
		output, _ := cmd.Flags().GetString("output")
		w, closeFn, err := openOutput(cmd, output)
		if err != nil {
			return err
		}
		for _, c := range chunks {
			if _, err := io.WriteString(w, c); err != nil {
				_ = closeFn()
				return err
			}
		}
		return closeFn()
	}

	if cmd.Flags().Changed("dialect") {
		slog.Warn("ignoring --dialect for fetched content", "dialect", dialect)
	}
	cfg.Read.Dialect = string(dialect)
	t, err := readTable(ctx, cfg, tp, chunks)
	if err != nil {
		return err
	}
	return emitTable(cmd, cfg, t)
}
