package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/containrrr/shoutrrr"
	"github.com/sirupsen/logrus"

	"github.com/JGeek00/crowdsec-monitor-api/internal/logger"
	"github.com/JGeek00/crowdsec-monitor-api/internal/models"
	"github.com/JGeek00/crowdsec-monitor-api/internal/util"
)

// maxNotifiedAlerts caps the number of alert lines in a single message.
const maxNotifiedAlerts = 10

const alertsTemplate = `{{len .Alerts}} new CrowdSec alert{{if gt (len .Alerts) 1}}s{{end}}
{{range .Shown}}
- {{.Scenario}} from {{source .}}{{with .Source.Data.CN}} ({{.}}){{end}}{{end}}{{if .More}}
... and {{.More}} more{{end}}`

var alertsTmpl = template.Must(template.New("alerts").Funcs(template.FuncMap{
	"source": func(a models.Alert) string {
		src := a.Source.Data()
		if src.Value != "" {
			return src.Value
		}
		return src.IP
	},
}).Parse(alertsTemplate))

// NotificationService forwards newly synced alerts to a shoutrrr URL
// (Discord, Slack, Telegram, generic webhook...).
type NotificationService struct {
	url  string
	send func(url, message string) error
	log  *logrus.Entry
	wg   sync.WaitGroup
}

// NewNotificationService returns a notifier. An empty URL disables it.
func NewNotificationService(url string) *NotificationService {
	return &NotificationService{
		url: strings.TrimSpace(url),
		send: func(url, message string) error {
			return shoutrrr.Send(url, message)
		},
		log: logger.Component("notifications"),
	}
}

func (s *NotificationService) Enabled() bool {
	return s != nil && s.url != ""
}

// NotifyNewAlerts sends one message describing the alerts in the background.
func (s *NotificationService) NotifyNewAlerts(_ context.Context, alerts []models.Alert) {
	if !s.Enabled() || len(alerts) == 0 {
		return
	}
	message, err := renderAlertsMessage(alerts)
	if err != nil {
		s.log.WithError(err).Error("Failed to render alert notification")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.send(s.url, message); err != nil {
			s.log.WithError(err).Warn("Failed to send alert notification")
			return
		}
		s.log.WithField("alerts", len(alerts)).Debug("Alert notification sent")
	}()
}

// Wait blocks until in-flight notifications are done.
func (s *NotificationService) Wait() {
	s.wg.Wait()
}

func renderAlertsMessage(alerts []models.Alert) (string, error) {
	n := len(alerts)
	if n > maxNotifiedAlerts {
		n = maxNotifiedAlerts
	}
	shown := make([]models.Alert, n)
	copy(shown, alerts)
	for i := range shown {
		shown[i].Scenario = util.SanitizeForLog(shown[i].Scenario)
	}

	var buf bytes.Buffer
	err := alertsTmpl.Execute(&buf, map[string]any{
		"Alerts": alerts,
		"Shown":  shown,
		"More":   len(alerts) - len(shown),
	})
	if err != nil {
		return "", fmt.Errorf("render alerts message: %w", err)
	}
	return buf.String(), nil
}
