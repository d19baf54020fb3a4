package notifier

import (
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"log/slog"
	"time"

	"gopkg.in/gomail.v2"
)

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// SMTP sends alert emails. It fails soft: when the transport is
// unconfigured or errors, Send returns false and logs; ingestion is never
// blocked by an inability to alert.
type SMTP struct {
	cfg    Config
	logger *slog.Logger
}

func NewSMTP(cfg Config, logger *slog.Logger) *SMTP {
	return &SMTP{cfg: cfg, logger: logger}
}

func (n *SMTP) Send(ctx context.Context, to, subject, htmlBody string) bool {
	if n.cfg.Host == "" || n.cfg.User == "" {
		n.logger.Warn("smtp credentials missing, email skipped", "subject", subject)
		return false
	}

	if err := ctx.Err(); err != nil {
		n.logger.Warn("email skipped, context done", "subject", subject, "error", err)
		return false
	}

	from := n.cfg.From
	if from == "" {
		from = fmt.Sprintf("Inventory Sync <%s>", n.cfg.User)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	d := gomail.NewDialer(n.cfg.Host, n.cfg.Port, n.cfg.User, n.cfg.Password)
	d.SSL = n.cfg.Port == 465
	d.TLSConfig = &tls.Config{ServerName: n.cfg.Host, InsecureSkipVerify: true}

	if err := d.DialAndSend(m); err != nil {
		n.logger.Error("failed to send email", "to", to, "subject", subject, "error", err)
		return false
	}

	n.logger.Info("alert email sent", "to", to, "subject", subject)
	return true
}

// SyncFailureHTML formats the critical alert body for a failed snapshot run.
func SyncFailureHTML(errText string) string {
	return fmt.Sprintf(
		`<h2>Inventory Sync Failed</h2>
<p>The inventory snapshot could not be applied. The feed producer will retry on its own schedule.</p>
<p><b>Error:</b> %s</p>
<p><small>%s</small></p>`,
		html.EscapeString(errText),
		time.Now().UTC().Format(time.RFC3339),
	)
}

// BridgeFailureHTML formats the critical alert body for a FAILED status
// reported by the feed bridge.
func BridgeFailureHTML(message string) string {
	return fmt.Sprintf(
		`<h2>Inventory Feed Bridge Failure</h2>
<p>The feed bridge gave up after exhausting its retries. Manual intervention is likely required.</p>
<p><b>Reported:</b> %s</p>
<p><small>%s</small></p>`,
		html.EscapeString(message),
		time.Now().UTC().Format(time.RFC3339),
	)
}
