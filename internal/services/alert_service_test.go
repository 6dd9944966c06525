package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/JGeek00/crowdsec-monitor-api/internal/crowdsec"
	"github.com/JGeek00/crowdsec-monitor-api/internal/database"
	"github.com/JGeek00/crowdsec-monitor-api/internal/models"
)

func seedAlerts(t *testing.T, db *gorm.DB) {
	t.Helper()
	storeAlert(t, db, storedAlert{
		id: 1, scenario: "crowdsecurity/ssh-bf", createdAt: utc("2024-01-01T10:00:00Z"),
		source: models.AlertSource{IP: "1.2.3.4", Value: "1.2.3.4", Scope: "Ip", CN: "FR", ASName: "OVH SAS"},
	})
	storeAlert(t, db, storedAlert{
		id: 2, scenario: "crowdsecurity/http-probing", simulated: true, createdAt: utc("2024-01-02T10:00:00Z"),
		source: models.AlertSource{IP: "5.6.7.8", Value: "5.6.7.8", Scope: "Ip", CN: "de", ASName: "Hetzner Online GmbH"},
	})
	storeAlert(t, db, storedAlert{
		id: 3, scenario: "crowdsecurity/ssh-slow-bf", createdAt: utc("2024-01-03T10:00:00Z"),
		source: models.AlertSource{IP: "9.9.9.9", Value: "9.9.9.9", Scope: "Ip", CN: "FR", ASName: "OVH SAS"},
	})
}

func TestAlertService_ListFilters(t *testing.T) {
	db := database.OpenTestDB(t)
	seedAlerts(t, db)
	svc := NewAlertService(db, &fakeLAPI{}, nil)
	ctx := context.Background()
	yes, no := true, false

	tests := []struct {
		name   string
		filter AlertFilter
		want   []int64
	}{
		{"no filter newest first", AlertFilter{}, []int64{3, 2, 1}},
		{"scenario substring", AlertFilter{Scenarios: []string{"ssh"}}, []int64{3, 1}},
		{"scenarios are OR-ed", AlertFilter{Scenarios: []string{"probing", "slow"}}, []int64{3, 2}},
		{"simulated", AlertFilter{Simulated: &yes}, []int64{2}},
		{"ip addresses", AlertFilter{IPAddresses: []string{"1.2.3.4", "5.6.7.8"}}, []int64{2, 1}},
		{"single ip with simulated", AlertFilter{IPAddresses: []string{"9.9.9.9"}, Simulated: &no}, []int64{3}},
		{"single ip excluded by simulated", AlertFilter{IPAddresses: []string{"9.9.9.9"}, Simulated: &yes}, []int64{}},
		{"country case-insensitive", AlertFilter{Countries: []string{"fr"}}, []int64{3, 1}},
		{"stored lowercase country", AlertFilter{Countries: []string{"DE"}}, []int64{2}},
		{"ip owner substring", AlertFilter{IPOwners: []string{"ovh"}}, []int64{3, 1}},
		{"ip owners are OR-ed", AlertFilter{IPOwners: []string{"hetzner", "ovh"}, Scenarios: []string{"ssh-bf"}}, []int64{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.List(ctx, tt.filter, Pagination{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, alertIDs(page.Items))
			assert.Equal(t, int64(len(tt.want)), page.Total)
		})
	}
}

func TestAlertService_ListPagination(t *testing.T) {
	db := database.OpenTestDB(t)
	seedAlerts(t, db)
	svc := NewAlertService(db, &fakeLAPI{}, nil)
	ctx := context.Background()

	page, err := svc.List(ctx, AlertFilter{}, Pagination{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, alertIDs(page.Items))
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 2, page.Number())

	page, err = svc.List(ctx, AlertFilter{}, Pagination{Offset: 3})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, DefaultPageLimit, page.Pagination.Limit)

	_, err = svc.List(ctx, AlertFilter{}, Pagination{Limit: 10, Offset: 4})
	require.ErrorIs(t, err, ErrInvalidOffset)
	assert.Equal(t, "Invalid parameter: offset (4) cannot be greater than total items (3)", err.Error())

	page, err = svc.List(ctx, AlertFilter{}, Pagination{Limit: 1, Offset: 10, Unpaged: true})
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)
}

func TestAlertService_Get(t *testing.T) {
	db := database.OpenTestDB(t)
	seedAlerts(t, db)
	storeDecision(t, db, models.Decision{ID: 11, AlertID: 1, Type: "ban", Expiration: utc("2024-01-01T14:00:00Z")})
	storeDecision(t, db, models.Decision{ID: 10, AlertID: 1, Type: "captcha", Expiration: utc("2024-01-01T14:00:00Z")})
	svc := NewAlertService(db, &fakeLAPI{}, nil)

	alert, err := svc.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "OVH SAS", alert.Source.Data().ASName)
	assert.Equal(t, []int64{10, 11}, decisionIDsOf(alert.Decisions))

	_, err = svc.Get(context.Background(), 99)
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestAlertService_Stats(t *testing.T) {
	db := database.OpenTestDB(t)
	svc := NewAlertService(db, &fakeLAPI{}, nil)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Total)
	assert.NotNil(t, stats.TopScenarios)

	seedAlerts(t, db)
	storeAlert(t, db, storedAlert{id: 4, createdAt: utc("2024-01-04T00:00:00Z"), source: models.AlertSource{Scope: "Ip", Value: "10.0.0.1"}})

	stats, err = svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, int64(1), stats.Simulated)
	assert.Equal(t, int64(3), stats.Real)
	assert.Equal(t, []ScenarioCount{
		{Scenario: "crowdsecurity/ssh-bf", Count: 2},
		{Scenario: "crowdsecurity/http-probing", Count: 1},
		{Scenario: "crowdsecurity/ssh-slow-bf", Count: 1},
	}, stats.TopScenarios)
	assert.Equal(t, []CountryCount{{Country: "FR", Count: 2}, {Country: "de", Count: 1}}, stats.TopCountries)
	assert.Equal(t, []OrganizationCount{
		{Organization: "OVH SAS", Count: 2},
		{Organization: "Hetzner Online GmbH", Count: 1},
	}, stats.TopOrganizations)
}

func TestAlertService_Delete(t *testing.T) {
	db := database.OpenTestDB(t)
	seedAlerts(t, db)
	storeDecision(t, db, models.Decision{ID: 10, AlertID: 1, Type: "ban", Expiration: time.Now().Add(time.Hour)})
	lapi := &fakeLAPI{deleted: 1}
	syncer := &countingSyncer{}
	svc := NewAlertService(db, lapi, syncer)

	n, err := svc.Delete(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{1}, lapi.calls)
	assert.Equal(t, 1, syncer.count())
	assert.ErrorIs(t, db.First(&models.Alert{}, 1).Error, gorm.ErrRecordNotFound)
	assert.ErrorIs(t, db.First(&models.Decision{}, 10).Error, gorm.ErrRecordNotFound)
}

func TestAlertService_DeleteErrors(t *testing.T) {
	db := database.OpenTestDB(t)
	seedAlerts(t, db)
	ctx := context.Background()

	syncer := &countingSyncer{}
	_, err := NewAlertService(db, &fakeLAPI{deleted: 0}, syncer).Delete(ctx, 2)
	assert.ErrorIs(t, err, ErrAlertNotFound)

	_, err = NewAlertService(db, &fakeLAPI{err: &crowdsec.APIError{Action: "deleting alert", StatusCode: 404}}, syncer).Delete(ctx, 2)
	assert.ErrorIs(t, err, ErrAlertNotFound)

	upstream := &crowdsec.APIError{Action: "deleting alert", StatusCode: 403, Message: "forbidden"}
	_, err = NewAlertService(db, &fakeLAPI{err: upstream}, syncer).Delete(ctx, 2)
	var apiErr *crowdsec.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 403, crowdsec.StatusCode(err))

	assert.Equal(t, 0, syncer.count())
	assert.NoError(t, db.First(&models.Alert{}, 2).Error)
}
