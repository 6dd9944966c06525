// Package seed generates realistic CrowdSec alert snapshots for local
// development and tests.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/JGeek00/crowdsec-monitor-api/internal/crowdsec"
	"github.com/JGeek00/crowdsec-monitor-api/internal/models"
)

var scenarios = []string{
	"crowdsecurity/ssh-bf",
	"crowdsecurity/http-probing",
	"crowdsecurity/http-crawl-non_statics",
	"crowdsecurity/http-bad-user-agent",
	"crowdsecurity/CVE-2021-41773",
}

var decisionTypes = []string{"ban", "ban", "ban", "captcha", "throttle"}

var durations = []string{"4h", "3h59m12s", "24h", "15m", "168h"}

// Generator produces alerts with increasing upstream ids.
type Generator struct {
	faker          *gofakeit.Faker
	nextAlertID    int64
	nextDecisionID int64
	now            time.Time
}

// NewGenerator returns a deterministic generator for the given seed.
func NewGenerator(seed int64) *Generator {
	return &Generator{
		faker:          gofakeit.New(seed),
		nextAlertID:    1,
		nextDecisionID: 1,
		now:            time.Now().UTC(),
	}
}

// Alert builds one alert carrying the given number of decisions, created
// within the last week.
func (g *Generator) Alert(decisions int) crowdsec.Alert {
	ip := g.faker.IPv4Address()
	scenario := g.faker.RandomString(scenarios)
	created := g.now.Add(-time.Duration(g.faker.IntRange(0, 7*24*60)) * time.Minute)
	target := g.faker.DomainName()

	alert := crowdsec.Alert{
		ID:              g.nextAlertID,
		UUID:            g.faker.UUID(),
		Scenario:        scenario,
		ScenarioVersion: "0.3",
		ScenarioHash:    g.faker.LetterN(16),
		Message:         fmt.Sprintf("Ip %s performed '%s' (%d events over 10s)", ip, scenario, 6),
		Capacity:        5,
		Leakspeed:       "10s",
		Remediation:     true,
		EventsCount:     6,
		MachineID:       g.faker.Username(),
		Source: models.AlertSource{
			IP:     ip,
			Scope:  "Ip",
			Value:  ip,
			CN:     g.faker.CountryAbr(),
			ASName: g.faker.Company(),
		},
		Meta: []models.Meta{
			{Key: "target_fqdn", Value: models.ScalarMeta(fmt.Sprintf("[%q]", target))},
		},
		Events: []models.Event{{
			Timestamp: created.Format(time.RFC3339),
			Meta: []models.Meta{
				{Key: "target_fqdn", Value: models.ScalarMeta(target)},
				{Key: "source_ip", Value: models.ScalarMeta(ip)},
			},
		}},
		CreatedAt: created.Format(time.RFC3339),
		StartAt:   created.Add(-10 * time.Second).Format(time.RFC3339),
		StopAt:    created.Format(time.RFC3339),
	}
	g.nextAlertID++

	for i := 0; i < decisions; i++ {
		alert.Decisions = append(alert.Decisions, crowdsec.Decision{
			ID:       g.nextDecisionID,
			Origin:   "crowdsec",
			Type:     g.faker.RandomString(decisionTypes),
			Scope:    "Ip",
			Value:    ip,
			Duration: g.faker.RandomString(durations),
			Scenario: scenario,
		})
		g.nextDecisionID++
	}
	return alert
}

// Snapshot builds n alerts, most of them with one decision.
func (g *Generator) Snapshot(n int) []crowdsec.Alert {
	out := make([]crowdsec.Alert, 0, n)
	for i := 0; i < n; i++ {
		decisions := 1
		if g.faker.Number(0, 9) == 0 {
			decisions = 0
		}
		out = append(out, g.Alert(decisions))
	}
	return out
}

// StaticFetcher serves a fixed snapshot in place of LAPI.
type StaticFetcher struct {
	Alerts []crowdsec.Alert
}

// FetchAlerts returns the stored snapshot.
func (f StaticFetcher) FetchAlerts(_ context.Context, _ crowdsec.AlertFilter) ([]crowdsec.Alert, error) {
	return f.Alerts, nil
}
