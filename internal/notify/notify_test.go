package notify

import (
	"context"
	"io"
	"log"
	"strings"
	"testing"
	"time"
	"trbowatch/internal/pipeline"
	"trbowatch/internal/roster"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var summary = pipeline.Summary{
	Fetched:          1234,
	EnrichmentMisses: 1,
	NewUsers: []roster.User{
		{RadioID: 2002, Callsign: "KX1BB", FirstName: "Bob", State: "NM"},
		{RadioID: 5005},
	},
	TalkGroupUsers: []roster.User{{RadioID: 3003, Callsign: "KX1CC", FirstName: "Carol", State: "AZ"}},
}

func TestRender(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	subject, body := Render("backend", summary, at)

	require.Equal(t, "trbowatch: 2 new user(s), 1 talk-group user(s)", subject)
	require.Contains(t, body, "Run (backend) finished 2024-05-01 10:00 UTC.")
	require.Contains(t, body, "1,234 Radio IDs examined.")
	require.Contains(t, body, "1 Radio IDs had no radioid.net registration.")
	require.Contains(t, body, "KX1BB")
	require.Contains(t, body, "5005")

	newAt := strings.Index(body, "New users:")
	talkGroupAt := strings.Index(body, "Talk-group users:")
	require.True(t, newAt >= 0 && talkGroupAt > newAt)
}

func TestRenderNothingFound(t *testing.T) {
	_, body := Render("callwatch", pipeline.Summary{Fetched: 12}, time.Now())
	require.NotContains(t, body, "New users:")
	require.NotContains(t, body, "registration")
}

func TestConfigEnabled(t *testing.T) {
	require.False(t, Config{}.Enabled())
	require.False(t, Config{Server: "smtp.example.com", EmailAddress: "a@example.com"}.Enabled())
	require.True(t, Config{Server: "smtp.example.com", EmailAddress: "a@example.com", To: []string{"b@example.com"}}.Enabled())
}

func TestSendSkipsEmptyRuns(t *testing.T) {
	// an unreachable server proves nothing is dialed
	mailer := NewMailer(Config{Server: "127.0.0.1", Port: 1, EmailAddress: "a@example.com", To: []string{"b@example.com"}})
	err := mailer.Send(context.Background(), "callwatch", pipeline.Summary{Fetched: 10}, time.Now())
	require.NoError(t, err)
}

func TestSend(t *testing.T) {
	// suppress logging
	testcontainers.Logger = log.New(io.Discard, "", 0)

	smtp, err := testcontainers.GenericContainer(
		context.Background(),
		testcontainers.GenericContainerRequest{
			Started: true,
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "haravich/fake-smtp-server",
				ExposedPorts: []string{"1025/tcp", "1080/tcp"},
				WaitingFor:   wait.ForLog("smtp://0.0.0.0:1025"),
			},
		},
	)
	if err != nil {
		t.Skip("smtp container unavailable:", err)
	}
	defer smtp.Terminate(context.Background())

	ctx := context.Background()
	host, err := smtp.Host(ctx)
	require.NoError(t, err)
	smtpPort, err := smtp.MappedPort(ctx, "1025/tcp")
	require.NoError(t, err)
	webPort, err := smtp.MappedPort(ctx, "1080/tcp")
	require.NoError(t, err)

	mailer := NewMailer(Config{
		Server:       host,
		Port:         smtpPort.Int(),
		EmailAddress: "alice@email.com",
		Password:     "default",
		To:           []string{"bob@email.com"},
	})
	err = mailer.Send(ctx, "backend", summary, time.Now())
	require.NoError(t, err)

	res, err := resty.New().R().Get("http://" + host + ":" + webPort.Port() + "/messages/1.plain")
	require.NoError(t, err)
	require.Contains(t, res.String(), "KX1BB")
}
