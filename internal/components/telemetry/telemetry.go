package telemetry

import (
	"fmt"
)

// API is an abstraction over logging/metrics so that components can be
// asserted on in tests.
type API interface {
	// ReportBroken reports a component that broke in a way that should be addressed.
	//
	// The `id` names the **component** that broke, not the line that failed:
	// a failed frame lookup during backend navigation is `backend.navigate`,
	// not `backend.navigate-frame-lookup`. Details go in params or in the
	// wrapped error.
	//
	// Formatting rules:
	// 1) all lowercase
	// 2) use underscores for large components
	// 3) use dashes for methods part of a larger component
	ReportBroken(id string, params ...any)

	// ReportWarning reports something that does not stop a run but may be
	// worth a look (an enrichment miss, a page that failed to load).
	ReportWarning(id string, params ...any)

	// ReportDebug reports debug information that is dropped unless verbose.
	ReportDebug(msg string, params ...any)

	// ReportCount reports the current count of an event. Counts are points
	// in time, not deltas.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id with a namespace, like a sub-logger.
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(fmt.Sprintf("%s: %s", s.namespace, msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(fmt.Sprintf("%s: %s", s.namespace, id), count)
}
