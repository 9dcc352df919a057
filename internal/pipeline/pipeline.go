// Package pipeline runs one scrape end to end: fetch, filter, diff against
// the roster, enrich and persist.
package pipeline

import (
	"context"
	"fmt"
	"trbowatch/internal/components/assert"
	"trbowatch/internal/components/telemetry"
	"trbowatch/internal/roster"
	"trbowatch/internal/scrapers/callwatch"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("trbowatch/pipeline")
var meter = otel.Meter("trbowatch/pipeline")

var fetchedCounter, _ = meter.Int64Counter("records_fetched")
var newUsersCounter, _ = meter.Int64Counter("new_users")
var talkGroupUsersCounter, _ = meter.Int64Counter("talk_group_users")
var missCounter, _ = meter.Int64Counter("enrichment_misses")

const (
	report_run_fetch   = "run.fetch"
	report_run_persist = "run.persist"
)

// Store is an append-only set of users keyed by radio id.
type Store interface {
	Keys() (roster.IDSet, error)
	Append(users []roster.User) ([]roster.User, error)
}

type Stores struct {
	// Roster is the list of users already programmed into radios.
	Roster Store
	// Audit receives a copy of every user added to Roster.
	Audit Store
	// TalkGroup collects the users seen on the tracked talk-group.
	TalkGroup Store
}

type Options struct {
	Criteria roster.Criteria
	// ExpandCallsign adds every radio id registered to the callsign of a
	// new user.
	ExpandCallsign bool
}

// Summary describes what one run did.
type Summary struct {
	Fetched          int
	NetworkMatches   int
	TalkGroupMatches int
	EnrichmentMisses int
	// NewUsers were added to the roster and audit stores.
	NewUsers []roster.User
	// TalkGroupUsers were added to the talk-group store.
	TalkGroupUsers []roster.User
}

type Pipeline struct {
	fetcher callwatch.Fetcher
	lookup  Lookup
	stores  Stores
	opts    Options
	tel     telemetry.API
}

func New(fetcher callwatch.Fetcher, lookup Lookup, stores Stores, opts Options, tel telemetry.API) Pipeline {
	assert.NotNil(fetcher, "fetcher")
	assert.NotNil(lookup, "lookup")
	assert.NotNil(stores.Roster, "roster store")
	assert.NotNil(stores.Audit, "audit store")
	assert.NotNil(stores.TalkGroup, "talk-group store")

	return Pipeline{
		fetcher: fetcher,
		lookup:  lookup,
		stores:  stores,
		opts:    opts,
		tel:     telemetry.NewScopedAPI("pipeline", tel),
	}
}

// Run performs one scrape. Nothing is written when fetching fails, and
// nothing more is written once ctx is cancelled.
func (p Pipeline) Run(ctx context.Context) (Summary, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	summary, err := p.run(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return summary, err
	}

	span.SetAttributes(
		attribute.Int("fetched", summary.Fetched),
		attribute.Int("new_users", len(summary.NewUsers)),
		attribute.Int("talk_group_users", len(summary.TalkGroupUsers)),
	)
	return summary, nil
}

func (p Pipeline) run(ctx context.Context) (Summary, error) {
	var summary Summary

	records, err := p.fetch(ctx)
	if err != nil {
		p.tel.ReportBroken(report_run_fetch, err)
		return summary, err
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	summary.Fetched = len(records)

	matches := roster.Select(records, p.opts.Criteria)
	summary.NetworkMatches = len(matches.Network)
	summary.TalkGroupMatches = len(matches.TalkGroup)
	p.tel.ReportDebug("filtered records", summary.NetworkMatches, summary.TalkGroupMatches)

	known, err := p.stores.Roster.Keys()
	if err != nil {
		return summary, fmt.Errorf("read roster: %w", err)
	}
	_, fresh := roster.Partition(matches.Network, known)

	e := newEnricher(p.lookup, p.tel)

	newUsers := p.enrichNew(ctx, e, fresh, known)
	// lookups under a cancelled ctx all miss, their rows must not reach the
	// append-only stores
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	summary.NewUsers, err = p.persistNew(ctx, newUsers)
	if err != nil {
		return summary, err
	}

	summary.TalkGroupUsers, err = p.persistTalkGroup(ctx, e, matches.TalkGroup)
	if err != nil {
		return summary, err
	}

	summary.EnrichmentMisses = e.misses

	fetchedCounter.Add(ctx, int64(summary.Fetched))
	newUsersCounter.Add(ctx, int64(len(summary.NewUsers)))
	talkGroupUsersCounter.Add(ctx, int64(len(summary.TalkGroupUsers)))
	missCounter.Add(ctx, int64(summary.EnrichmentMisses), metric.WithAttributes(
		attribute.String("network", p.opts.Criteria.Network),
	))
	p.tel.ReportCount("new-users", int64(len(summary.NewUsers)))
	p.tel.ReportCount("talk-group-users", int64(len(summary.TalkGroupUsers)))

	return summary, nil
}

func (p Pipeline) fetch(ctx context.Context) ([]roster.Record, error) {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()

	records, err := p.fetcher.Fetch(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("fetch: %w", err)
	}
	span.SetAttributes(attribute.Int("records", len(records)))
	return records, nil
}

// enrichNew looks up every fresh record. Ids that miss are kept with only the
// radio id set.
func (p Pipeline) enrichNew(ctx context.Context, e *enricher, fresh []roster.Record, known roster.IDSet) []roster.User {
	ctx, span := tracer.Start(ctx, "EnrichNew")
	defer span.End()

	seen := roster.NewIDSet()
	var users []roster.User
	add := func(u roster.User) {
		if known.Has(u.RadioID) || seen.Has(u.RadioID) {
			return
		}
		seen.Add(u.RadioID)
		users = append(users, u)
	}

	for _, r := range fresh {
		u, found := e.user(ctx, r.RadioID)
		add(u)
		if !found || !p.opts.ExpandCallsign {
			continue
		}
		for _, related := range e.expand(ctx, u.Callsign) {
			add(related)
		}
	}

	span.SetAttributes(attribute.Int("users", len(users)))
	return users
}

// persistNew appends users to the roster, then the rows that were actually
// written to the audit store.
func (p Pipeline) persistNew(ctx context.Context, users []roster.User) ([]roster.User, error) {
	_, span := tracer.Start(ctx, "PersistNew")
	defer span.End()

	written, err := p.stores.Roster.Append(users)
	if err != nil {
		p.tel.ReportBroken(report_run_persist, "roster", err)
		return nil, fmt.Errorf("append roster: %w", err)
	}
	_, err = p.stores.Audit.Append(written)
	if err != nil {
		p.tel.ReportBroken(report_run_persist, "audit", err)
		return written, fmt.Errorf("append audit: %w", err)
	}
	return written, nil
}

// persistTalkGroup enriches and stores the talk-group matches that are not
// yet recorded, independent of the roster.
func (p Pipeline) persistTalkGroup(ctx context.Context, e *enricher, matches []roster.Record) ([]roster.User, error) {
	ctx, span := tracer.Start(ctx, "PersistTalkGroup")
	defer span.End()

	recorded, err := p.stores.TalkGroup.Keys()
	if err != nil {
		return nil, fmt.Errorf("read talk-group store: %w", err)
	}
	_, fresh := roster.Partition(matches, recorded)

	users := make([]roster.User, 0, len(fresh))
	for _, r := range fresh {
		u, _ := e.user(ctx, r.RadioID)
		users = append(users, u)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	written, err := p.stores.TalkGroup.Append(users)
	if err != nil {
		p.tel.ReportBroken(report_run_persist, "talk-group", err)
		return nil, fmt.Errorf("append talk-group store: %w", err)
	}
	return written, nil
}
