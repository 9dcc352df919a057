package callwatch

import (
	"context"
	"fmt"
	"strconv"
	"trbowatch/internal/components/telemetry"
	"trbowatch/internal/roster"

	"github.com/PuerkitoBio/goquery"
)

const (
	report_backend_login     = "backend.login"
	report_backend_navigate  = "backend.navigate"
	report_backend_page_size = "backend.page-size"
)

type BackendOptions struct {
	BaseUrl  string
	Username string
	Password string
	// NetworkButton is the label of the control that opens the call table
	// of one network.
	NetworkButton string
	PageSize      int
	MaxPages      int
	// OnPageStart is called before a page is requested, can be nil.
	OnPageStart func(page int)
	// OnPage is called after every page is read, can be nil.
	OnPage func(page, rows int)
}

// BackendFetcher logs into the TRBOnet backend and reads the paginated call
// history of one network.
type BackendFetcher struct {
	opts    BackendOptions
	browser Browser
	tel     telemetry.API
}

func NewBackendFetcher(opts BackendOptions, browser Browser, tel telemetry.API) BackendFetcher {
	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBackendUrl
	}
	if opts.NetworkButton == "" {
		opts.NetworkButton = "AZ-TRBONET"
	}
	if opts.PageSize == 0 {
		opts.PageSize = 100
	}
	if opts.MaxPages == 0 {
		opts.MaxPages = 100
	}
	return BackendFetcher{
		opts:    opts,
		browser: browser,
		tel:     telemetry.NewScopedAPI("callwatch", tel),
	}
}

// Login submits the credentials and returns the frameset shown to an
// authenticated session.
func (f BackendFetcher) Login(ctx context.Context) (*goquery.Document, error) {
	doc, err := f.browser.Open(ctx, f.opts.BaseUrl)
	if err != nil {
		return nil, fmt.Errorf("open login page: %w", err)
	}
	if doc.Find(loginButton).Length() == 0 {
		return nil, fmt.Errorf("%w: login form", ErrElementNotFound)
	}

	result, err := f.browser.Submit(ctx, doc, loginButton, map[string]string{
		loginUserField:     f.opts.Username,
		loginPasswordField: f.opts.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("submit login: %w", err)
	}

	if result.Find(loginButton).Length() > 0 || !isFrameset(result) {
		f.tel.ReportWarning(report_backend_login, ErrAuthFailure, f.opts.Username)
		return nil, ErrAuthFailure
	}
	return result, nil
}

func (f BackendFetcher) networkSelector() string {
	return fmt.Sprintf(`input[value="%s"]`, f.opts.NetworkButton)
}

// navigate goes from the authenticated frameset to the first page of the
// network's call table.
func (f BackendFetcher) navigate(ctx context.Context, frameset *goquery.Document) (*goquery.Document, error) {
	nav, err := openFrame(ctx, f.browser, frameset, navFrame)
	if err != nil {
		return nil, fmt.Errorf("navigation frame: %w", err)
	}
	calls, err := f.browser.Submit(ctx, nav, callsButton, nil)
	if err != nil {
		return nil, fmt.Errorf("open calls: %w", err)
	}

	network := f.networkSelector()
	if calls.Find(network).Length() == 0 {
		// the calls page was rendered into the main frame of a new frameset
		main, err := openFrame(ctx, f.browser, calls, mainFrame)
		if err != nil {
			main, err = openFrame(ctx, f.browser, frameset, mainFrame)
		}
		if err != nil {
			return nil, fmt.Errorf("main frame: %w", err)
		}
		calls = main
	}

	table, err := f.browser.Submit(ctx, calls, network, nil)
	if err != nil {
		return nil, fmt.Errorf("open %s calls: %w", f.opts.NetworkButton, err)
	}
	return table, nil
}

// setPageSize selects the page size by its visible text, failing only
// reports a warning and leaves the current page as is.
func (f BackendFetcher) setPageSize(ctx context.Context, doc *goquery.Document) *goquery.Document {
	text := strconv.Itoa(f.opts.PageSize)
	value, ok := optionValue(doc, pageSizeSelect, text)
	if !ok {
		f.tel.ReportWarning(report_backend_page_size, ErrElementNotFound, text)
		return doc
	}
	resized, err := f.browser.Submit(
		ctx, doc,
		fmt.Sprintf(`select[name="%s"]`, pageSizeSelect),
		map[string]string{pageSizeSelect: value},
	)
	if err != nil {
		f.tel.ReportWarning(report_backend_page_size, err, text)
		return doc
	}
	return resized
}

func (f BackendFetcher) Fetch(ctx context.Context) ([]roster.Record, error) {
	frameset, err := f.Login(ctx)
	if err != nil {
		return nil, err
	}

	first, err := f.navigate(ctx, frameset)
	if err != nil {
		f.tel.ReportBroken(report_backend_navigate, err)
		return nil, err
	}
	first = f.setPageSize(ctx, first)

	pages := &backendPages{browser: f.browser, current: first, onStart: f.opts.OnPageStart}
	return Paginate(ctx, pages, f.opts.MaxPages, f.opts.OnPage, f.tel)
}

// backendPages walks the call table through its page number select. It
// must be read in order starting from page 1.
type backendPages struct {
	browser Browser
	current *goquery.Document
	onStart func(page int)
}

func (p *backendPages) FetchPage(ctx context.Context, page int) ([]roster.Record, error) {
	if p.onStart != nil {
		p.onStart(page)
	}
	if page > 1 {
		value, ok := optionValue(p.current, pageNumberSelect, strconv.Itoa(page))
		if !ok {
			// no such page, the table ended on the previous one
			return nil, nil
		}
		next, err := p.browser.Submit(
			ctx, p.current,
			fmt.Sprintf(`select[name="%s"]`, pageNumberSelect),
			map[string]string{pageNumberSelect: value},
		)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		p.current = next
	}
	return ParseTable(firstTable(p.current), BackendLayout), nil
}
