package callwatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
	"trbowatch/internal/components/telemetry"

	"github.com/stretchr/testify/require"
)

const loginPage = `<html><body>
<form method="post" action="/login">
<input type="text" name="user"><input type="password" name="pass">
<input type="submit" name="Login" value="Login">
</form></body></html>`

// fakeSite imitates the frames, forms and pagination of a TRBOnet web
// server closely enough for the HTTP driver.
type fakeSite struct {
	totalRows   int
	omitFrame   bool
	mu          sync.Mutex
	tablePages  []int
	loginFailed int
}

func (s *fakeSite) authed(r *http.Request) bool {
	c, err := r.Cookie("session")
	return err == nil && c.Value == "ok"
}

func (s *fakeSite) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/CallWatch", func(w http.ResponseWriter, r *http.Request) {
		if s.omitFrame {
			fmt.Fprint(w, `<frameset><frame name="top" src="/CallWatch/top"></frameset>`)
			return
		}
		fmt.Fprint(w, `<frameset rows="10%,*"><frame name="top" src="/CallWatch/top"><frameset><frame name="CallWatchBody" src="/CallWatch/body"></frameset></frameset>`)
	})
	mux.HandleFunc("/CallWatch/top", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<p>AZ-TRBONET CallWatch</p>`)
	})
	mux.HandleFunc("/CallWatch/body", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<table>
<tr><th>Time</th><th>Type</th><th>Slot</th><th>Source</th><th>Target</th><th>Duration</th><th>Network</th></tr>
<tr><td>10:00</td><td>Group</td><td>1</td><td>Alice KX1AA 1001</td><td>MWave</td><td>3s</td><td>AZ-TRBONET</td></tr>
<tr><td>10:01</td><td>Group</td><td>2</td><td>Bob 2002</td><td>Local</td><td>5s</td><td>AZ-TRBONET</td></tr>
<tr><td>10:02</td><td>Group</td><td>2</td><td>Carol 3003</td><td>MWave</td><td>5s</td><td>BM</td></tr>
</table>`)
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, loginPage)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if r.PostFormValue("user") != "admin" || r.PostFormValue("pass") != "secret" || r.PostFormValue("Login") != "Login" {
			s.mu.Lock()
			s.loginFailed++
			s.mu.Unlock()
			fmt.Fprint(w, loginPage)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "ok", Path: "/"})
		fmt.Fprint(w, `<frameset cols="20%,*"><frame name="leftmainpagebar" src="/nav"><frame name="main" src="/welcome"></frameset>`)
	})
	mux.HandleFunc("/nav", func(w http.ResponseWriter, r *http.Request) {
		if !s.authed(r) {
			fmt.Fprint(w, loginPage)
			return
		}
		fmt.Fprint(w, `<form method="post" action="/calls" target="main"><input type="submit" name="menu" value="Calls"></form>`)
	})
	mux.HandleFunc("/welcome", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<p>welcome</p>`)
	})
	mux.HandleFunc("/calls", func(w http.ResponseWriter, r *http.Request) {
		if !s.authed(r) || r.Method != http.MethodPost {
			fmt.Fprint(w, loginPage)
			return
		}
		fmt.Fprint(w, `<form method="post" action="/table"><input type="submit" name="net" value="AZ-TRBONET"><input type="submit" name="net" value="OTHER"></form>`)
	})
	mux.HandleFunc("/table", func(w http.ResponseWriter, r *http.Request) {
		if !s.authed(r) || r.PostFormValue("net") != "AZ-TRBONET" {
			fmt.Fprint(w, loginPage)
			return
		}
		size := 10
		if r.PostFormValue("selectpagesize") == "s100" {
			size = 100
		}
		page := 1
		if v := strings.TrimPrefix(r.PostFormValue("selectpagenumber"), "p"); v != "" {
			page, _ = strconv.Atoi(v)
		}
		s.mu.Lock()
		s.tablePages = append(s.tablePages, page)
		s.mu.Unlock()
		s.renderTable(w, size, page)
	})

	return mux
}

func (s *fakeSite) renderTable(w http.ResponseWriter, size, page int) {
	var b strings.Builder
	b.WriteString("<table><tr><th>#</th></tr>")
	for i := (page - 1) * size; i < min(page*size, s.totalRows); i++ {
		group := "9"
		if i%2 == 0 {
			group = "310564"
		}
		b.WriteString(backendRow(strconv.Itoa(10000+i), group, "AZ-TRBONET"))
	}
	b.WriteString("</table>")

	b.WriteString(`<form method="post" action="/table"><input type="hidden" name="net" value="AZ-TRBONET">`)
	b.WriteString(`<select name="selectpagesize">`)
	for _, n := range []int{10, 100} {
		selected := ""
		if n == size {
			selected = " selected"
		}
		fmt.Fprintf(&b, `<option value="s%d"%s>%d</option>`, n, selected, n)
	}
	b.WriteString(`</select><select name="selectpagenumber">`)
	pages := max(1, (s.totalRows+size-1)/size)
	for n := 1; n <= pages; n++ {
		selected := ""
		if n == page {
			selected = " selected"
		}
		fmt.Fprintf(&b, `<option value="p%d"%s>%d</option>`, n, selected, n)
	}
	b.WriteString(`</select></form>`)

	fmt.Fprint(w, b.String())
}

func newFakeSite(t *testing.T, site *fakeSite) (*httptest.Server, Browser) {
	t.Helper()
	srv := httptest.NewServer(site.handler())
	t.Cleanup(srv.Close)

	browser, err := NewHTTPBrowser(HTTPBrowserOptions{Timeout: 5 * time.Second}, telemetry.NewRecordingAPI())
	require.NoError(t, err)
	t.Cleanup(func() { browser.Close() })
	return srv, browser
}

func TestPublicFetch(t *testing.T) {
	srv, browser := newFakeSite(t, &fakeSite{})

	fetcher := NewPublicFetcher(srv.URL+"/CallWatch", browser, telemetry.NewRecordingAPI())
	records, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, int64(1001), records[0].RadioID)
	require.Equal(t, "MWave", records[0].Group)
	require.Equal(t, "BM", records[2].Network)
}

func TestPublicFetchMissingFrame(t *testing.T) {
	srv, browser := newFakeSite(t, &fakeSite{omitFrame: true})

	rec := telemetry.NewRecordingAPI()
	fetcher := NewPublicFetcher(srv.URL+"/CallWatch", browser, rec)
	records, err := fetcher.Fetch(context.Background())
	require.Nil(t, records)
	require.True(t, errors.Is(err, ErrFetchTimeout))
	require.Len(t, rec.BrokenFor(report_public_fetch), 1)
}

func TestBackendFetch(t *testing.T) {
	site := &fakeSite{totalRows: 250}
	srv, browser := newFakeSite(t, site)

	var progress []string
	fetcher := NewBackendFetcher(BackendOptions{
		BaseUrl:  srv.URL,
		Username: "admin",
		Password: "secret",
		OnPage: func(page, rows int) {
			progress = append(progress, fmt.Sprintf("%d:%d", page, rows))
		},
	}, browser, telemetry.NewRecordingAPI())

	records, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 250)
	require.Equal(t, int64(10000), records[0].RadioID)
	require.Equal(t, "310564", records[0].Group)
	require.Equal(t, int64(10249), records[249].RadioID)

	// page 4 has no option so it is never requested
	require.Equal(t, []string{"1:100", "2:100", "3:50", "4:0"}, progress)
	require.Equal(t, []int{1, 1, 2, 3}, site.tablePages)
}

func TestBackendFetchMaxPages(t *testing.T) {
	site := &fakeSite{totalRows: 250}
	srv, browser := newFakeSite(t, site)

	fetcher := NewBackendFetcher(BackendOptions{
		BaseUrl:  srv.URL,
		Username: "admin",
		Password: "secret",
		MaxPages: 2,
	}, browser, telemetry.NewRecordingAPI())

	records, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 200)
}

func TestBackendWrongCredentials(t *testing.T) {
	site := &fakeSite{totalRows: 250}
	srv, browser := newFakeSite(t, site)

	fetcher := NewBackendFetcher(BackendOptions{
		BaseUrl:  srv.URL,
		Username: "admin",
		Password: "wrong",
	}, browser, telemetry.NewRecordingAPI())

	records, err := fetcher.Fetch(context.Background())
	require.Nil(t, records)
	require.True(t, errors.Is(err, ErrAuthFailure))
	require.Equal(t, 1, site.loginFailed)
	require.Empty(t, site.tablePages)
}

func TestBackendMissingLoginForm(t *testing.T) {
	srv, browser := newFakeSite(t, &fakeSite{})

	fetcher := NewBackendFetcher(BackendOptions{
		BaseUrl:  srv.URL + "/welcome",
		Username: "admin",
		Password: "secret",
	}, browser, telemetry.NewRecordingAPI())

	_, err := fetcher.Fetch(context.Background())
	require.True(t, errors.Is(err, ErrElementNotFound))
	require.False(t, errors.Is(err, ErrAuthFailure))
}
