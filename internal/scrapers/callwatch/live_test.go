package callwatch

import (
	"context"
	"testing"
	"time"
	devenv "trbowatch/dev/env"
	"trbowatch/internal/components/telemetry"
	libtelemetry "trbowatch/lib/telemetry"
)

func liveBrowser(t *testing.T, config devenv.CallWatchTestConfig) Browser {
	t.Helper()
	if config.Driver == "chrome" {
		browser, err := NewChromeBrowser(context.Background(), ChromeBrowserOptions{
			Headless: true,
			Timeout:  time.Minute,
		}, telemetry.SlogAPI{})
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { browser.Close() })
		return browser
	}

	browser, err := NewHTTPBrowser(HTTPBrowserOptions{Timeout: time.Minute}, telemetry.SlogAPI{})
	if err != nil {
		t.Fatal(err)
	}
	return browser
}

func TestLive(t *testing.T) {
	cleanup := libtelemetry.SetupForTesting(t, "test:scrapers/callwatch")
	defer cleanup()

	config, err := devenv.GetStateConfig[devenv.CallWatchTestConfig]("callwatch.json5")
	if err != nil {
		t.Skip("live server tests need dev/.state/callwatch.json5:", err)
	}

	t.Run("Public", func(t *testing.T) {
		fetcher := NewPublicFetcher(config.CallWatchUrl, liveBrowser(t, config), telemetry.SlogAPI{})
		records, err := fetcher.Fetch(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		t.Log("records", len(records))
	})

	t.Run("Backend", func(t *testing.T) {
		if config.Username == "" {
			t.Skip("no backend credentials")
		}
		fetcher := NewBackendFetcher(BackendOptions{
			BaseUrl:  config.BaseUrl,
			Username: config.Username,
			Password: config.Password,
			MaxPages: 2,
			OnPage: func(page, rows int) {
				t.Log("page", page, "rows", rows)
			},
		}, liveBrowser(t, config), telemetry.SlogAPI{})
		records, err := fetcher.Fetch(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		t.Log("records", len(records))
	})
}
