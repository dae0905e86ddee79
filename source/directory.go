package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gmn-data-platform/gmntraj/internal/safegoroutine"
	"github.com/gmn-data-platform/gmntraj/metrics"
)

const (
	DefaultDirectoryURL = "https://globalmeteornetwork.org/data/traj_summary_data/"

	DailyDirectory   = "daily/"
	MonthlyDirectory = "monthly/"
	SummaryExtension = "txt"

	LatestDailyFile = "traj_summary_latest_daily.txt"
	YesterdayFile   = "traj_summary_yesterday.txt"

	defaultConcurrency = 4
)

// DataStartDate is the date of the earliest published summary file.
var DataStartDate = time.Date(2018, 1, 9, 0, 0, 0, 0, time.UTC)

// ErrNoSummaryFile is returned when the listing has no file for a date.
var ErrNoSummaryFile = errors.New("no summary file")

// DataDirectory locates and downloads summary files from the data
// directory. Dates are compared as UTC calendar days.
type DataDirectory struct {
	client      *Client
	baseURL     string
	concurrency int
	now         func() time.Time
	logger      *slog.Logger
}

// DirectoryOption configures a DataDirectory.
type DirectoryOption func(*DataDirectory)

// WithBaseURL overrides DefaultDirectoryURL. A trailing slash is added.
func WithBaseURL(u string) DirectoryOption {
	return func(d *DataDirectory) {
		if !strings.HasSuffix(u, "/") {
			u += "/"
		}
		d.baseURL = u
	}
}

// WithConcurrency bounds parallel downloads in Download.
func WithConcurrency(n int) DirectoryOption {
	return func(d *DataDirectory) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithClock sets the source of the current date used by DailyURL.
func WithClock(now func() time.Time) DirectoryOption {
	return func(d *DataDirectory) { d.now = now }
}

func WithDirectoryLogger(l *slog.Logger) DirectoryOption {
	return func(d *DataDirectory) { d.logger = l }
}

func NewDataDirectory(c *Client, opts ...DirectoryOption) *DataDirectory {
	d := &DataDirectory{
		client:      c,
		baseURL:     DefaultDirectoryURL,
		concurrency: defaultConcurrency,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	d.logger = d.logger.With("component", "data_directory")
	return d
}

// DailyURLs lists every daily summary file.
func (d *DataDirectory) DailyURLs(ctx context.Context) ([]string, error) {
	return d.client.List(ctx, d.baseURL+DailyDirectory, SummaryExtension)
}

// MonthlyURLs lists every monthly summary file.
func (d *DataDirectory) MonthlyURLs(ctx context.Context) ([]string, error) {
	return d.client.List(ctx, d.baseURL+MonthlyDirectory, SummaryExtension)
}

// DailyURL returns the daily file for date. Today and yesterday map to the
// fixed latest and yesterday files without listing the directory.
func (d *DataDirectory) DailyURL(ctx context.Context, date time.Time) (string, error) {
	day := civilDay(date)
	today := civilDay(d.now())
	switch {
	case day.Equal(today):
		return d.baseURL + DailyDirectory + LatestDailyFile, nil
	case day.Equal(today.AddDate(0, 0, -1)):
		return d.baseURL + DailyDirectory + YesterdayFile, nil
	case day.Before(DataStartDate) || day.After(today):
		return "", fmt.Errorf("daily %s: %w", day.Format(time.DateOnly), ErrNoSummaryFile)
	}

	urls, err := d.DailyURLs(ctx)
	if err != nil {
		return "", fmt.Errorf("list daily files: %w", err)
	}
	return matchFile(urls, day.Format("20060102"), "daily "+day.Format(time.DateOnly))
}

// DailyURLsBetween returns the listed daily files dated from through to,
// in date order, from a single listing. Days without a file are skipped.
func (d *DataDirectory) DailyURLsBetween(ctx context.Context, from, to time.Time) ([]string, error) {
	first, last := civilDay(from), civilDay(to)
	if last.Before(first) {
		return nil, fmt.Errorf("daily range %s..%s: end before start", first.Format(time.DateOnly), last.Format(time.DateOnly))
	}
	urls, err := d.DailyURLs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list daily files: %w", err)
	}
	var out []string
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		u, err := matchFile(urls, day.Format("20060102"), "daily "+day.Format(time.DateOnly))
		if err != nil {
			d.logger.Warn("no daily file", "date", day.Format(time.DateOnly))
			continue
		}
		out = append(out, u)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("daily range %s..%s: %w", first.Format(time.DateOnly), last.Format(time.DateOnly), ErrNoSummaryFile)
	}
	return out, nil
}

// MonthlyURL returns the monthly file covering the month of date.
func (d *DataDirectory) MonthlyURL(ctx context.Context, date time.Time) (string, error) {
	urls, err := d.MonthlyURLs(ctx)
	if err != nil {
		return "", fmt.Errorf("list monthly files: %w", err)
	}
	return matchFile(urls, date.UTC().Format("200601"), "monthly "+date.UTC().Format("2006-01"))
}

// DailyContent downloads the daily file for date.
func (d *DataDirectory) DailyContent(ctx context.Context, date time.Time) (string, error) {
	u, err := d.DailyURL(ctx, date)
	if err != nil {
		return "", err
	}
	body, err := d.client.Fetch(ctx, u)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// MonthlyContent downloads the monthly file covering date.
func (d *DataDirectory) MonthlyContent(ctx context.Context, date time.Time) (string, error) {
	u, err := d.MonthlyURL(ctx, date)
	if err != nil {
		return "", err
	}
	body, err := d.client.Fetch(ctx, u)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Download fetches urls concurrently and returns their contents in input
// order, ready to be normalized as a chunk sequence. The first failure
// cancels the remaining downloads.
func (d *DataDirectory) Download(ctx context.Context, urls []string) ([]string, error) {
	out := make([]string, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, u := range urls {
		safegoroutine.Go(g, d.logger, "download", func() error {
			metrics.DownloadsInFlight.Inc()
			defer metrics.DownloadsInFlight.Dec()

			body, err := d.client.Fetch(gctx, u)
			if err != nil {
				return fmt.Errorf("download %s: %w", path.Base(u), err)
			}
			out[i] = string(body)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	d.logger.Info("downloaded summary files", "files", len(urls))
	return out, nil
}

func matchFile(urls []string, stamp, what string) (string, error) {
	for _, u := range urls {
		if strings.Contains(path.Base(u), stamp) {
			return u, nil
		}
	}
	return "", fmt.Errorf("%s: %w", what, ErrNoSummaryFile)
}

func civilDay(t time.Time) time.Time {
	y, m, dd := t.UTC().Date()
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}
