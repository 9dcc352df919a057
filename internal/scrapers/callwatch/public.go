package callwatch

import (
	"context"
	"errors"
	"fmt"
	"trbowatch/internal/components/telemetry"
	"trbowatch/internal/roster"
)

const report_public_fetch = "public.fetch"

// PublicFetcher reads the live CallWatch monitor. It needs no credentials and
// sees only the most recent calls.
type PublicFetcher struct {
	url     string
	browser Browser
	tel     telemetry.API
}

func NewPublicFetcher(url string, browser Browser, tel telemetry.API) PublicFetcher {
	if url == "" {
		url = DefaultCallWatchUrl
	}
	return PublicFetcher{
		url:     url,
		browser: browser,
		tel:     telemetry.NewScopedAPI("callwatch", tel),
	}
}

func (f PublicFetcher) Fetch(ctx context.Context) ([]roster.Record, error) {
	doc, err := f.browser.Open(ctx, f.url)
	if err != nil {
		return nil, fmt.Errorf("open callwatch: %w", err)
	}

	body, err := openFrame(ctx, f.browser, doc, callWatchFrame)
	if err != nil {
		f.tel.ReportBroken(report_public_fetch, err, f.url)
		if errors.Is(err, ErrFetchTimeout) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrFetchTimeout, err)
	}

	table := firstTable(body)
	if table.Length() == 0 {
		err = fmt.Errorf("%w: %w: call table", ErrFetchTimeout, ErrElementNotFound)
		f.tel.ReportBroken(report_public_fetch, err, f.url)
		return nil, err
	}

	records := ParseTable(table, PublicLayout)
	f.tel.ReportDebug("parsed callwatch table", len(records))
	return records, nil
}
