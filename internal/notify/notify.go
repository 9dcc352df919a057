// Package notify emails a report of newly discovered users after a run.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strconv"
	"strings"
	"time"
	"trbowatch/internal/pipeline"
	"trbowatch/internal/roster"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("trbowatch/notify")

type Config struct {
	Server       string   `json:"server"`
	Port         int      `json:"port"`
	EmailAddress string   `json:"email_address"`
	Password     string   `json:"password"`
	To           []string `json:"to"`
}

// Enabled reports whether enough is configured to send mail.
func (c Config) Enabled() bool {
	return c.Server != "" && c.EmailAddress != "" && len(c.To) > 0
}

type Mailer struct {
	config Config
}

func NewMailer(config Config) Mailer {
	if config.Port == 0 {
		config.Port = 587
	}
	return Mailer{config: config}
}

func userTable(users []roster.User) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Radio ID", "Callsign", "First name", "State"})
	for _, u := range users {
		t.AppendRow(table.Row{strconv.FormatInt(u.RadioID, 10), u.Callsign, u.FirstName, u.State})
	}
	t.SetStyle(table.StyleLight)
	return t.Render()
}

// Render builds the subject and plain text body of a run report.
func Render(mode string, summary pipeline.Summary, at time.Time) (subject, body string) {
	subject = fmt.Sprintf(
		"trbowatch: %s new user(s), %s talk-group user(s)",
		humanize.Comma(int64(len(summary.NewUsers))),
		humanize.Comma(int64(len(summary.TalkGroupUsers))),
	)

	var b strings.Builder
	fmt.Fprintf(&b, "Run (%s) finished %s.\n\n", mode, at.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "%s Radio IDs examined.\n", humanize.Comma(int64(summary.Fetched)))
	if summary.EnrichmentMisses > 0 {
		fmt.Fprintf(&b, "%s Radio IDs had no radioid.net registration.\n", humanize.Comma(int64(summary.EnrichmentMisses)))
	}
	if len(summary.NewUsers) > 0 {
		b.WriteString("\nNew users:\n")
		b.WriteString(userTable(summary.NewUsers))
		b.WriteString("\n")
	}
	if len(summary.TalkGroupUsers) > 0 {
		b.WriteString("\nTalk-group users:\n")
		b.WriteString(userTable(summary.TalkGroupUsers))
		b.WriteString("\n")
	}
	return subject, b.String()
}

// Send mails the report of a run. Runs that found nobody are not reported.
func (m Mailer) Send(ctx context.Context, mode string, summary pipeline.Summary, at time.Time) error {
	_, span := tracer.Start(ctx, "Send")
	defer span.End()

	if len(summary.NewUsers) == 0 && len(summary.TalkGroupUsers) == 0 {
		return nil
	}

	subject, body := Render(mode, summary, at)
	mail := email.NewEmail()
	mail.From = fmt.Sprintf("trbowatch <%s>", m.config.EmailAddress)
	mail.To = m.config.To
	mail.Subject = subject
	mail.Text = []byte(body)

	addr := fmt.Sprintf("%s:%d", m.config.Server, m.config.Port)
	err := mail.Send(addr, smtp.PlainAuth("", m.config.EmailAddress, m.config.Password, m.config.Server))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return err
	}
	return nil
}
