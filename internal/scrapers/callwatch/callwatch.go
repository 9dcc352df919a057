// Package callwatch scrapes call records from the TRBOnet web interface,
// either from the public CallWatch monitor or from the authenticated backend.
//
// Everything that depends on the page structure (frame names, control
// labels, column offsets) lives in this package.
package callwatch

import (
	"context"
	"errors"
	"trbowatch/internal/roster"

	"github.com/PuerkitoBio/goquery"
)

var (
	// ErrAuthFailure means the login form came back instead of the frameset.
	ErrAuthFailure = errors.New("callwatch: authentication failed")
	// ErrFetchTimeout means a page, frame or table never appeared in time.
	ErrFetchTimeout = errors.New("callwatch: timed out waiting for content")
	// ErrElementNotFound means a control, form or frame was missing from a page.
	ErrElementNotFound = errors.New("callwatch: element not found")
)

const (
	DefaultCallWatchUrl = "http://184.191.128.77:42420/CallWatch"
	DefaultBackendUrl   = "http://184.191.128.77:42420"

	callWatchFrame = "CallWatchBody"
	navFrame       = "leftmainpagebar"
	mainFrame      = "main"

	loginUserField     = "user"
	loginPasswordField = "pass"
	loginButton        = `input[name="Login"]`
	callsButton        = `input[value="Calls"]`

	pageSizeSelect   = "selectpagesize"
	pageNumberSelect = "selectpagenumber"
)

// Fetcher produces every record of one scrape.
type Fetcher interface {
	Fetch(ctx context.Context) ([]roster.Record, error)
}

// PageSource returns the records of one page of a paginated table, pages
// start at 1.
type PageSource interface {
	FetchPage(ctx context.Context, page int) ([]roster.Record, error)
}

// Browser is the narrow set of page interactions the scrapers need.
//
// Every returned document has its Url set to the address it was loaded from
// so relative links and frame sources can be resolved against it.
type Browser interface {
	// Open loads link and returns the resulting document.
	Open(ctx context.Context, link string) (*goquery.Document, error)
	// Submit activates the element matching the `control` selector inside
	// doc, after setting the named form fields, and returns the page that
	// results. Select fields are set by option value.
	Submit(ctx context.Context, doc *goquery.Document, control string, fields map[string]string) (*goquery.Document, error)
	// Close releases the browser, it is safe to call more than once.
	Close() error
}
