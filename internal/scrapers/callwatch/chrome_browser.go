package callwatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
	"trbowatch/internal/components/telemetry"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
)

const (
	report_chrome_browser_open   = "chrome-browser.open"
	report_chrome_browser_submit = "chrome-browser.submit"
)

type ChromeBrowserOptions struct {
	// Headless runs the browser without a window.
	Headless bool
	// ExecPath of a Chromium based browser, empty means search the PATH.
	ExecPath  string
	UserAgent string
	// Timeout bounds every page load and element wait.
	Timeout time.Duration
}

// ChromeBrowser drives a real Chromium based browser over the DevTools
// protocol. Every page is loaded as the top-level document of a single tab,
// frames included.
type ChromeBrowser struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	tel     telemetry.API

	closeOnce sync.Once
}

// NewChromeBrowser launches the browser. The process stays alive until Close
// is called or ctx is cancelled.
func NewChromeBrowser(ctx context.Context, opts ChromeBrowserOptions, tel telemetry.API) (*ChromeBrowser, error) {
	tel = telemetry.NewScopedAPI("callwatch", tel)

	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}

	allocOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(opts.UserAgent),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	cancel := func() {
		browserCancel()
		allocCancel()
	}

	// an empty run starts the browser so launch failures surface here
	err := chromedp.Run(browserCtx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	return &ChromeBrowser{
		ctx:     browserCtx,
		cancel:  cancel,
		timeout: opts.Timeout,
		tel:     tel,
	}, nil
}

// navigate runs trigger, which must cause a navigation, then snapshots the
// resulting page.
func (b *ChromeBrowser) navigate(ctx context.Context, trigger chromedp.Action) (*goquery.Document, error) {
	runCtx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	_, err := chromedp.RunResponse(runCtx, trigger)
	if err != nil {
		return nil, classify(err)
	}

	var markup, location string
	err = chromedp.Run(
		runCtx,
		chromedp.WaitReady("body, frameset", chromedp.ByQuery),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &markup, chromedp.ByQuery),
	)
	if err != nil {
		return nil, classify(err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	doc.Url, err = url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse location: %w", err)
	}
	return doc, nil
}

func (b *ChromeBrowser) Open(ctx context.Context, link string) (*goquery.Document, error) {
	doc, err := b.navigate(ctx, chromedp.Navigate(link))
	if err != nil {
		b.tel.ReportWarning(report_chrome_browser_open, err, link)
		return nil, err
	}
	return doc, nil
}

// submitScript sets the given fields, drops the form target so the result
// replaces the current tab instead of a frame that does not exist here, then
// clicks the control (or submits the form when the control is a select).
const submitScript = `(() => {
	const ctrl = document.querySelector(%s);
	if (!ctrl) return false;
	const fields = %s;
	const form = ctrl.form || ctrl.closest("form");
	const scope = form || document;
	for (const [name, value] of Object.entries(fields)) {
		const el = scope.querySelector('[name="' + name + '"]');
		if (el) el.value = value;
	}
	if (form) form.removeAttribute("target");
	if (ctrl.tagName === "SELECT") {
		if (form) { form.submit(); } else { ctrl.dispatchEvent(new Event("change", { bubbles: true })); }
	} else {
		ctrl.click();
	}
	return true;
})()`

func (b *ChromeBrowser) Submit(ctx context.Context, doc *goquery.Document, control string, fields map[string]string) (*goquery.Document, error) {
	// doc is the snapshot of the page currently loaded in the tab
	if doc.Find(control).Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, control)
	}
	if fields == nil {
		fields = map[string]string{}
	}

	selector, err := json.Marshal(control)
	if err != nil {
		return nil, err
	}
	values, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}

	var clicked bool
	script := fmt.Sprintf(submitScript, selector, values)
	result, err := b.navigate(ctx, chromedp.Evaluate(script, &clicked))
	if err != nil {
		b.tel.ReportWarning(report_chrome_browser_submit, err, control)
		return nil, err
	}
	return result, nil
}

// Close shuts the browser down and waits for the process to exit.
func (b *ChromeBrowser) Close() error {
	b.closeOnce.Do(b.cancel)
	return nil
}
