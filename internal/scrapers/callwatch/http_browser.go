package callwatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
	"trbowatch/internal/components/telemetry"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_http_browser_open   = "http-browser.open"
	report_http_browser_submit = "http-browser.submit"
)

type HTTPBrowserOptions struct {
	Timeout time.Duration
	// RequestsPerSecond of 0 disables rate limiting.
	RequestsPerSecond float64
	UserAgent         string
	// DumpOutput receives the full HTTP exchanges, can be nil.
	DumpOutput telemetry.MessageOutput
}

// HTTPBrowser drives the site with plain HTTP requests: forms are serialized
// and submitted the way a browser would, and frames are loaded by their src.
// It needs no browser binary but cannot run page scripts.
type HTTPBrowser struct {
	http *resty.Client
	tel  telemetry.API
}

func NewHTTPBrowser(opts HTTPBrowserOptions, tel telemetry.API) (*HTTPBrowser, error) {
	tel = telemetry.NewScopedAPI("callwatch", tel)

	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}

	httpClient := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpClient.SetCookieJar(jar)
	httpClient.SetHeader("user-agent", opts.UserAgent)
	httpClient.SetTimeout(opts.Timeout)

	if opts.RequestsPerSecond > 0 {
		limiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(httpClient, tel, opts.DumpOutput)

	return &HTTPBrowser{http: httpClient, tel: tel}, nil
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// classify marks timeouts with ErrFetchTimeout.
func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", ErrFetchTimeout, err)
	}
	return err
}

func (b *HTTPBrowser) document(res *resty.Response) (*goquery.Document, error) {
	if res.IsError() {
		return nil, fmt.Errorf("unexpected status %s", res.Status())
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		doc.Url = res.RawResponse.Request.URL
	}
	return doc, nil
}

func (b *HTTPBrowser) Open(ctx context.Context, link string) (*goquery.Document, error) {
	res, err := b.http.R().
		SetContext(ctx).
		Get(link)
	if err != nil {
		return nil, classify(err)
	}
	doc, err := b.document(res)
	if err != nil {
		b.tel.ReportBroken(report_http_browser_open, err, link)
		return nil, err
	}
	return doc, nil
}

// formValues serializes the successful controls of form, excluding buttons.
func formValues(form *goquery.Selection) url.Values {
	values := url.Values{}
	form.Find("input, select, textarea").Each(func(_ int, el *goquery.Selection) {
		name := el.AttrOr("name", "")
		if name == "" {
			return
		}
		if _, disabled := el.Attr("disabled"); disabled {
			return
		}

		switch goquery.NodeName(el) {
		case "input":
			switch strings.ToLower(el.AttrOr("type", "text")) {
			case "submit", "button", "image", "reset", "file":
				return
			case "checkbox", "radio":
				if _, checked := el.Attr("checked"); !checked {
					return
				}
				values.Add(name, el.AttrOr("value", "on"))
			default:
				values.Add(name, el.AttrOr("value", ""))
			}
		case "select":
			opt := el.Find("option[selected]").First()
			if opt.Length() == 0 {
				opt = el.Find("option").First()
			}
			if opt.Length() > 0 {
				values.Add(name, opt.AttrOr("value", strings.TrimSpace(opt.Text())))
			}
		case "textarea":
			values.Add(name, el.Text())
		}
	})
	return values
}

func (b *HTTPBrowser) Submit(ctx context.Context, doc *goquery.Document, control string, fields map[string]string) (*goquery.Document, error) {
	ctrl := doc.Find(control).First()
	if ctrl.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, control)
	}
	form := ctrl.Closest("form")
	if form.Length() == 0 {
		return nil, fmt.Errorf("%w: form enclosing %s", ErrElementNotFound, control)
	}

	values := formValues(form)
	switch goquery.NodeName(ctrl) {
	case "input", "button":
		if name := ctrl.AttrOr("name", ""); name != "" {
			values.Set(name, ctrl.AttrOr("value", ""))
		}
	}
	for name, value := range fields {
		values.Set(name, value)
	}

	action, err := resolve(doc, form.AttrOr("action", ""))
	if err != nil {
		return nil, fmt.Errorf("form action: %w", err)
	}

	b.tel.ReportDebug(report_http_browser_submit, control, action)

	req := b.http.R().SetContext(ctx)
	var res *resty.Response
	if strings.EqualFold(form.AttrOr("method", "get"), "post") {
		res, err = req.SetFormDataFromValues(values).Post(action)
	} else {
		target, parseErr := url.Parse(action)
		if parseErr != nil {
			return nil, parseErr
		}
		target.RawQuery = values.Encode()
		res, err = req.Get(target.String())
	}
	if err != nil {
		return nil, classify(err)
	}

	result, err := b.document(res)
	if err != nil {
		b.tel.ReportBroken(report_http_browser_submit, err, control, action)
		return nil, err
	}
	return result, nil
}

func (b *HTTPBrowser) Close() error {
	return nil
}
