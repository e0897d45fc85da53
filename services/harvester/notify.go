package harvester

import (
	"fmt"
	"net/smtp"
	"strings"

	"stockharvest-backend/lib/timezone"

	"github.com/jordan-wright/email"
)

type EmailConfig struct {
	Enabled  bool     `json:"enabled"`
	Host     string   `json:"host"`
	Port     int      `json:"port"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	From     string   `json:"from"`
	To       []string `json:"to"`
}

// SendRunReport emails a summary of a harvest pass. Disabled config or a
// run with no failures sends nothing.
func SendRunReport(cfg EmailConfig, report RunReport) error {
	if !cfg.Enabled || len(report.Failures) == 0 {
		return nil
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Harvest run %s to %s\n\n",
		report.Started.In(timezone.Location).Format("2006-01-02 15:04:05"),
		report.Finished.In(timezone.Location).Format("15:04:05"),
	)
	fmt.Fprintf(&body, "Targets: %d, succeeded: %d, failed: %d, new items: %d\n\n",
		report.Targets, report.Succeeded, len(report.Failures), report.NewItems)
	body.WriteString("Failures:\n")
	for _, f := range report.Failures {
		fmt.Fprintf(&body, "  %s (%s): %v\n", f.Target.Name, f.Target.Key().String(), f.Err)
	}

	msg := email.NewEmail()
	msg.From = cfg.From
	msg.To = cfg.To
	msg.Subject = fmt.Sprintf("harvest run: %d of %d targets failed", len(report.Failures), report.Targets)
	msg.Text = []byte(body.String())

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return msg.Send(addr, smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host))
}
