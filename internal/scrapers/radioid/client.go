// Package radioid looks up DMR subscriber registrations on radioid.net.
package radioid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
	"trbowatch/internal/components/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_client_lookup_id       = "client.lookup-id"
	report_client_lookup_callsign = "client.lookup-callsign"
)

const DefaultBaseUrl = "https://database.radioid.net"

// ErrNotFound is returned when the lookup succeeded but matched nothing.
var ErrNotFound = errors.New("radioid: no matching registration")

// Entry is one registration as returned by the user endpoint.
type Entry struct {
	ID        int64  `json:"id"`
	Callsign  string `json:"callsign"`
	FirstName string `json:"fname"`
	Surname   string `json:"surname"`
	City      string `json:"city"`
	State     string `json:"state"`
	Country   string `json:"country"`
	Remarks   string `json:"remarks"`
}

type userResponse struct {
	Count   int     `json:"count"`
	Results []Entry `json:"results"`
}

type ClientOptions struct {
	BaseUrl string
	Timeout time.Duration
	// RequestsPerSecond of 0 disables rate limiting.
	RequestsPerSecond float64
	// DumpOutput receives the full HTTP exchanges, can be nil.
	DumpOutput telemetry.MessageOutput
}

type Client struct {
	http *resty.Client
	tel  telemetry.API
}

func NewClient(opts ClientOptions, tel telemetry.API) *Client {
	tel = telemetry.NewScopedAPI("radioid", tel)

	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(opts.BaseUrl)
	httpClient.SetTimeout(opts.Timeout)
	httpClient.SetHeader("accept", "application/json")
	httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)

	if opts.RequestsPerSecond > 0 {
		// burst >= 1 just means that no requests will be dropped
		limiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(httpClient, tel, opts.DumpOutput)

	return &Client{http: httpClient, tel: tel}
}

func (c *Client) query(ctx context.Context, reportId, key, value string) ([]Entry, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam(key, value).
		Get("/api/dmr/user/")
	if err != nil {
		c.tel.ReportWarning(reportId, fmt.Errorf("fetch: %w", err), value)
		return nil, err
	}
	if res.IsError() {
		err = fmt.Errorf("unexpected status %s", res.Status())
		c.tel.ReportWarning(reportId, err, value)
		return nil, err
	}

	var parsed userResponse
	err = json.Unmarshal(res.Body(), &parsed)
	if err != nil {
		c.tel.ReportWarning(reportId, fmt.Errorf("unmarshal json: %w", err), value)
		return nil, err
	}
	if len(parsed.Results) == 0 {
		return nil, ErrNotFound
	}

	c.tel.ReportDebug(reportId, value, len(parsed.Results))
	return parsed.Results, nil
}

// LookupID returns the registrations for a radio id.
func (c *Client) LookupID(ctx context.Context, id int64) ([]Entry, error) {
	return c.query(ctx, report_client_lookup_id, "id", strconv.FormatInt(id, 10))
}

// LookupCallsign returns every registration held by a callsign.
func (c *Client) LookupCallsign(ctx context.Context, callsign string) ([]Entry, error) {
	return c.query(ctx, report_client_lookup_callsign, "callsign", callsign)
}
