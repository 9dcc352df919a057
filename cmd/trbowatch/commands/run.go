package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"
	"trbowatch/internal/components/chrono"
	"trbowatch/internal/components/telemetry"
	"trbowatch/internal/config"
	"trbowatch/internal/csvstore"
	"trbowatch/internal/history"
	"trbowatch/internal/notify"
	"trbowatch/internal/pipeline"
	"trbowatch/internal/scrapers/callwatch"
	"trbowatch/internal/scrapers/radioid"

	"github.com/dustin/go-humanize"
)

// runner performs pipeline runs of one mode with one config.
type runner struct {
	cfg   config.Config
	mode  string
	out   io.Writer
	tel   telemetry.API
	clock chrono.API
}

func newRunner(cfg config.Config, mode string, out io.Writer) (runner, error) {
	clock, err := chrono.NewStandardImpl(cfg.Timezone)
	if err != nil {
		return runner{}, fmt.Errorf("timezone: %w", err)
	}
	return runner{
		cfg:   cfg,
		mode:  mode,
		out:   out,
		tel:   telemetry.SlogAPI{},
		clock: clock,
	}, nil
}

// dumpOutput returns where a component dumps its HTTP exchanges, nil when
// dumping is off.
func (r runner) dumpOutput(component string) (telemetry.MessageOutput, error) {
	if !*dumpHttp {
		return nil, nil
	}
	out, err := telemetry.NewFilesystemOutput(filepath.Join(r.cfg.DumpDir, component))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r runner) newBrowser(ctx context.Context) (callwatch.Browser, error) {
	if r.cfg.Browser.Driver == config.DriverHTTP {
		dump, err := r.dumpOutput("browser")
		if err != nil {
			return nil, err
		}
		browser, err := callwatch.NewHTTPBrowser(callwatch.HTTPBrowserOptions{
			Timeout:           r.cfg.Browser.Timeout(),
			RequestsPerSecond: r.cfg.Browser.RequestsPerSecond,
			UserAgent:         r.cfg.Browser.UserAgent,
			DumpOutput:        dump,
		}, r.tel)
		if err != nil {
			return nil, err
		}
		return browser, nil
	}

	browser, err := callwatch.NewChromeBrowser(ctx, callwatch.ChromeBrowserOptions{
		Headless:  !r.cfg.Browser.ShowBrowser,
		ExecPath:  r.cfg.Browser.ExecPath,
		UserAgent: r.cfg.Browser.UserAgent,
		Timeout:   r.cfg.Browser.Timeout(),
	}, r.tel)
	if err != nil {
		return nil, err
	}
	return browser, nil
}

func (r runner) newFetcher(browser callwatch.Browser) callwatch.Fetcher {
	if r.mode == config.ModeBackend {
		return callwatch.NewBackendFetcher(callwatch.BackendOptions{
			BaseUrl:       r.cfg.Backend.BaseUrl,
			Username:      r.cfg.Backend.Username,
			Password:      r.cfg.Backend.Password,
			NetworkButton: r.cfg.Backend.NetworkButton,
			PageSize:      r.cfg.Backend.PageSize,
			MaxPages:      r.cfg.Backend.MaxPages,
			OnPageStart: func(page int) {
				fmt.Fprintf(r.out, "Scraping page %d...\n", page)
			},
			OnPage: func(page, rows int) {
				if rows == 0 {
					fmt.Fprintf(r.out, "No data on page %d, stopping.\n", page)
					return
				}
				fmt.Fprintf(r.out, "Collected %s records from page %d.\n", humanize.Comma(int64(rows)), page)
			},
		}, browser, r.tel)
	}
	return callwatch.NewPublicFetcher(r.cfg.CallWatch.Url, browser, r.tel)
}

func (r runner) newPipeline(fetcher callwatch.Fetcher) (pipeline.Pipeline, error) {
	dump, err := r.dumpOutput("radioid")
	if err != nil {
		return pipeline.Pipeline{}, err
	}
	lookup := radioid.NewClient(radioid.ClientOptions{
		BaseUrl:           r.cfg.RadioID.BaseUrl,
		Timeout:           r.cfg.RadioID.Timeout(),
		RequestsPerSecond: r.cfg.RadioID.RequestsPerSecond,
		DumpOutput:        dump,
	}, r.tel)

	stores := pipeline.Stores{
		Roster:    csvstore.New(r.cfg.Stores.Roster, r.tel),
		Audit:     csvstore.New(r.cfg.Stores.Audit, r.tel),
		TalkGroup: csvstore.New(r.cfg.Stores.TalkGroup, r.tel),
	}

	return pipeline.New(fetcher, lookup, stores, pipeline.Options{
		Criteria:       r.cfg.Criteria(r.mode),
		ExpandCallsign: r.cfg.RadioID.ExpandCallsign,
	}, r.tel), nil
}

// runOnce scrapes, updates the stores, then records and reports the run.
// The browser is closed before it returns.
func (r runner) runOnce(ctx context.Context) (pipeline.Summary, error) {
	browser, err := r.newBrowser(ctx)
	if err != nil {
		return pipeline.Summary{}, fmt.Errorf("start browser: %w", err)
	}
	defer browser.Close()

	p, err := r.newPipeline(r.newFetcher(browser))
	if err != nil {
		return pipeline.Summary{}, err
	}

	startedAt := r.clock.Now()
	summary, runErr := p.Run(ctx)
	finishedAt := r.clock.Now()

	// interrupted runs are recorded too
	r.record(context.WithoutCancel(ctx), startedAt, finishedAt, summary, runErr)
	if runErr != nil {
		return summary, runErr
	}

	r.printSummary(summary)
	r.notify(ctx, summary, finishedAt)
	return summary, nil
}

func (r runner) printSummary(summary pipeline.Summary) {
	fmt.Fprintf(r.out, "%s Radio IDs examined.\n", humanize.Comma(int64(summary.Fetched)))
	fmt.Fprintf(r.out, "SUCCESS: %s New Users discovered.\n", humanize.Comma(int64(len(summary.NewUsers))))
	fmt.Fprintf(r.out, "%s talk-group users recorded.\n", humanize.Comma(int64(len(summary.TalkGroupUsers))))
}

// openHistory returns nil when no history database is configured.
func (r runner) openHistory(ctx context.Context) (*history.DB, func(), error) {
	if r.cfg.History.File == "" && r.cfg.History.Url == "" {
		return nil, func() {}, nil
	}
	db, err := r.cfg.History.OpenDB()
	if err != nil {
		return nil, nil, err
	}
	h, err := history.Open(ctx, db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return &h, func() { db.Close() }, nil
}

// record never fails the run, the stores are already up to date.
func (r runner) record(ctx context.Context, startedAt, finishedAt time.Time, summary pipeline.Summary, runErr error) {
	h, closeDB, err := r.openHistory(ctx)
	if err != nil {
		slog.Warn("failed to open run history", "err", err.Error())
		return
	}
	defer closeDB()
	if h == nil {
		return
	}

	id, err := h.Record(ctx, r.mode, startedAt, finishedAt, summary, runErr)
	if err != nil {
		slog.Warn("failed to record run", "err", err.Error())
		return
	}
	slog.Debug("recorded run", "id", id)
}

func (r runner) notify(ctx context.Context, summary pipeline.Summary, at time.Time) {
	if !r.cfg.Notify.Enabled() {
		return
	}
	err := notify.NewMailer(r.cfg.Notify).Send(ctx, r.mode, summary, at)
	if err != nil {
		slog.Warn("failed to send notification", "err", err.Error())
	}
}

// exitReason describes a failed run for the final log line.
func exitReason(err error) string {
	switch {
	case errors.Is(err, callwatch.ErrAuthFailure):
		return "authentication failed, check the backend username and password"
	case errors.Is(err, callwatch.ErrFetchTimeout):
		return "the call log did not load in time"
	case errors.Is(err, callwatch.ErrElementNotFound):
		return "the call log pages did not have the expected layout"
	default:
		return "run failed"
	}
}
