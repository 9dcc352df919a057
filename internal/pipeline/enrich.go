package pipeline

import (
	"context"
	"errors"
	"trbowatch/internal/components/telemetry"
	"trbowatch/internal/roster"
	"trbowatch/internal/scrapers/radioid"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	report_enrich_miss   = "enrich.miss"
	report_enrich_expand = "enrich.expand"
)

// Lookup resolves radio ids and callsigns to registrations.
type Lookup interface {
	LookupID(ctx context.Context, id int64) ([]radioid.Entry, error)
	LookupCallsign(ctx context.Context, callsign string) ([]radioid.Entry, error)
}

type lookupResult struct {
	entry radioid.Entry
	found bool
}

// enricher turns radio ids into users. Results (misses included) are cached
// for the lifetime of one run so no id is looked up twice.
type enricher struct {
	lookup Lookup
	tel    telemetry.API
	cache  map[int64]lookupResult
	misses int
}

func newEnricher(lookup Lookup, tel telemetry.API) *enricher {
	return &enricher{
		lookup: lookup,
		tel:    tel,
		cache:  map[int64]lookupResult{},
	}
}

func userFromEntry(e radioid.Entry) roster.User {
	return roster.User{
		RadioID:   e.ID,
		Callsign:  e.Callsign,
		FirstName: e.FirstName,
		State:     e.State,
	}
}

// user always returns a user for id, with only the id set when the lookup
// missed. found reports whether the registration was found.
func (e *enricher) user(ctx context.Context, id int64) (u roster.User, found bool) {
	res, ok := e.cache[id]
	if !ok {
		res = e.resolve(ctx, id)
		e.cache[id] = res
		if !res.found {
			e.misses++
		}
	}
	if !res.found {
		return roster.User{RadioID: id}, false
	}
	u = userFromEntry(res.entry)
	// the registration is filed under the queried id
	u.RadioID = id
	return u, true
}

func (e *enricher) resolve(ctx context.Context, id int64) lookupResult {
	entries, err := e.lookup.LookupID(ctx, id)
	if err == nil && len(entries) == 0 {
		err = radioid.ErrNotFound
	}
	if err != nil {
		e.tel.ReportWarning(report_enrich_miss, id, err)
		trace.SpanFromContext(ctx).AddEvent("enrichment miss", trace.WithAttributes(
			attribute.Int64("radio_id", id),
			attribute.String("error", err.Error()),
		))
		return lookupResult{}
	}
	return lookupResult{entry: entries[0], found: true}
}

// expand returns every registration sharing callsign. Each is cached as a
// hit for its own id.
func (e *enricher) expand(ctx context.Context, callsign string) []roster.User {
	if callsign == "" {
		return nil
	}
	entries, err := e.lookup.LookupCallsign(ctx, callsign)
	if err != nil {
		if !errors.Is(err, radioid.ErrNotFound) {
			e.tel.ReportWarning(report_enrich_expand, callsign, err)
		}
		return nil
	}

	users := make([]roster.User, 0, len(entries))
	for _, entry := range entries {
		if _, ok := e.cache[entry.ID]; !ok {
			e.cache[entry.ID] = lookupResult{entry: entry, found: true}
		}
		users = append(users, userFromEntry(entry))
	}
	return users
}
