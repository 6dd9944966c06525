package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/JGeek00/crowdsec-monitor-api/internal/crowdsec"
	"github.com/JGeek00/crowdsec-monitor-api/internal/models"
)

type storedAlert struct {
	id        int64
	scenario  string
	simulated bool
	createdAt time.Time
	source    models.AlertSource
	targets   []string
}

func storeAlert(t *testing.T, db *gorm.DB, a storedAlert) models.Alert {
	t.Helper()
	if a.scenario == "" {
		a.scenario = "crowdsecurity/ssh-bf"
	}
	var events []models.Event
	for _, target := range a.targets {
		events = append(events, models.Event{
			Timestamp: a.createdAt.Format(time.RFC3339),
			Meta:      []models.Meta{{Key: "target_fqdn", Value: models.ScalarMeta(target)}},
		})
	}
	alert := models.Alert{
		ID:                a.id,
		UUID:              "uuid",
		Scenario:          a.scenario,
		Simulated:         a.simulated,
		Source:            datatypes.NewJSONType(a.source),
		Events:            events,
		CrowdsecCreatedAt: a.createdAt.UTC(),
		StartAt:           a.createdAt.UTC(),
		StopAt:            a.createdAt.UTC(),
	}
	require.NoError(t, db.Create(&alert).Error)
	return alert
}

func storeDecision(t *testing.T, db *gorm.DB, d models.Decision) models.Decision {
	t.Helper()
	if d.Origin == "" {
		d.Origin = "crowdsec"
	}
	d.CrowdsecCreatedAt = d.CrowdsecCreatedAt.UTC()
	d.Expiration = d.Expiration.UTC()
	require.NoError(t, db.Create(&d).Error)
	return d
}

func utc(value string) time.Time {
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return ts.UTC()
}

func alertIDs(items []models.Alert) []int64 {
	ids := make([]int64, 0, len(items))
	for _, a := range items {
		ids = append(ids, a.ID)
	}
	return ids
}

func decisionIDsOf(items []models.Decision) []int64 {
	ids := make([]int64, 0, len(items))
	for _, d := range items {
		ids = append(ids, d.ID)
	}
	return ids
}

type fakeLAPI struct {
	mu        sync.Mutex
	created   [][]crowdsec.CreateAlert
	createIDs []string
	deleted   int
	err       error
	calls     []int64
}

func (f *fakeLAPI) CreateAlerts(_ context.Context, alerts []crowdsec.CreateAlert) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, alerts)
	return f.createIDs, nil
}

func (f *fakeLAPI) DeleteAlert(_ context.Context, id int64) (int, error) {
	return f.delete(id)
}

func (f *fakeLAPI) DeleteDecision(_ context.Context, id int64) (int, error) {
	return f.delete(id)
}

func (f *fakeLAPI) delete(id int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	if f.err != nil {
		return 0, f.err
	}
	return f.deleted, nil
}

type countingSyncer struct {
	mu    sync.Mutex
	calls int
}

func (c *countingSyncer) SyncAlerts(context.Context) SyncResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return SyncResult{}
}

func (c *countingSyncer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
