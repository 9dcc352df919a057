package callwatch

import (
	"context"
	"trbowatch/internal/components/telemetry"
	"trbowatch/internal/roster"
)

const report_paginate_page = "paginate.page"

// Paginate collects pages 1..maxPages from src in order. It stops at the first
// page that yields no rows or fails, so the page after it is never requested.
// A failing page is reported and ends pagination without failing the scrape.
// Cancellation of ctx fails the scrape and discards the collected pages.
func Paginate(
	ctx context.Context,
	src PageSource,
	maxPages int,
	onPage func(page, rows int),
	tel telemetry.API,
) ([]roster.Record, error) {
	var out []roster.Record
	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		records, err := src.FetchPage(ctx, page)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err != nil {
			tel.ReportWarning(report_paginate_page, err, page)
			break
		}
		if onPage != nil {
			onPage(page, len(records))
		}
		if len(records) == 0 {
			break
		}
		out = append(out, records...)
	}
	return out, nil
}
