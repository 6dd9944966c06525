package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/JGeek00/crowdsec-monitor-api/internal/crowdsec"
	"github.com/JGeek00/crowdsec-monitor-api/internal/logger"
	"github.com/JGeek00/crowdsec-monitor-api/internal/models"
)

// TopItemsLimit caps the ranked lists returned by the stats endpoints.
const TopItemsLimit = 10

// LAPIActions are the single-item upstream writes triggered from the API.
// *crowdsec.Client implements it.
type LAPIActions interface {
	CreateAlerts(ctx context.Context, alerts []crowdsec.CreateAlert) ([]string, error)
	DeleteAlert(ctx context.Context, id int64) (int, error)
	DeleteDecision(ctx context.Context, id int64) (int, error)
}

// Syncer runs an out-of-band reconciliation pass after an upstream write.
type Syncer interface {
	SyncAlerts(ctx context.Context) SyncResult
}

// AlertFilter narrows the alert list. Empty fields are ignored.
type AlertFilter struct {
	Scenarios   []string
	Simulated   *bool
	IPAddresses []string
	Countries   []string
	IPOwners    []string
}

func (f AlertFilter) scope(db *gorm.DB) *gorm.DB {
	if len(f.Scenarios) > 0 {
		db = db.Where(likeAny("alerts", "scenario", f.Scenarios))
	}
	if f.Simulated != nil {
		db = db.Where("alerts.simulated = ?", *f.Simulated)
	}
	src := sourceFilter{IPAddresses: f.IPAddresses, Countries: f.Countries, IPOwners: f.IPOwners}
	return src.apply(db, "alerts.source")
}

type ScenarioCount struct {
	Scenario string `json:"scenario"`
	Count    int64  `json:"count"`
}

type CountryCount struct {
	Country string `json:"country"`
	Count   int64  `json:"count"`
}

type OrganizationCount struct {
	Organization string `json:"organization"`
	Count        int64  `json:"count"`
}

// AlertStats summarizes the stored alerts.
type AlertStats struct {
	Total            int64               `json:"total"`
	Simulated        int64               `json:"simulated"`
	Real             int64               `json:"real"`
	TopScenarios     []ScenarioCount     `json:"topScenarios"`
	TopCountries     []CountryCount      `json:"topCountries"`
	TopOrganizations []OrganizationCount `json:"topOrganizations"`
}

type AlertService struct {
	db   *gorm.DB
	lapi LAPIActions
	sync Syncer
	log  *logrus.Entry
}

func NewAlertService(db *gorm.DB, lapi LAPIActions, syncer Syncer) *AlertService {
	return &AlertService{db: db, lapi: lapi, sync: syncer, log: logger.Component("alerts")}
}

// List returns the filtered alerts, newest first.
func (s *AlertService) List(ctx context.Context, filter AlertFilter, p Pagination) (*Page[models.Alert], error) {
	page, err := listPage[models.Alert](s.db.WithContext(ctx), filter.scope, p, "alerts.crowdsec_created_at DESC, alerts.id DESC")
	if err != nil {
		if errors.Is(err, ErrInvalidOffset) {
			return nil, err
		}
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return page, nil
}

// Get returns one alert with its decisions.
func (s *AlertService) Get(ctx context.Context, id int64) (*models.Alert, error) {
	var alert models.Alert
	err := s.db.WithContext(ctx).Preload("Decisions", func(db *gorm.DB) *gorm.DB {
		return db.Order("decisions.id ASC")
	}).First(&alert, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get alert %d: %w", id, err)
	}
	return &alert, nil
}

// Stats counts alerts and ranks scenarios, countries and AS owners.
func (s *AlertService) Stats(ctx context.Context) (*AlertStats, error) {
	db := s.db.WithContext(ctx)
	stats := &AlertStats{
		TopScenarios:     []ScenarioCount{},
		TopCountries:     []CountryCount{},
		TopOrganizations: []OrganizationCount{},
	}

	if err := db.Model(&models.Alert{}).Count(&stats.Total).Error; err != nil {
		return nil, fmt.Errorf("count alerts: %w", err)
	}
	if err := db.Model(&models.Alert{}).Where("simulated = ?", true).Count(&stats.Simulated).Error; err != nil {
		return nil, fmt.Errorf("count simulated alerts: %w", err)
	}
	stats.Real = stats.Total - stats.Simulated

	if err := db.Model(&models.Alert{}).
		Select("scenario, COUNT(id) AS count").
		Group("scenario").
		Order("count DESC, scenario ASC").
		Limit(TopItemsLimit).
		Scan(&stats.TopScenarios).Error; err != nil {
		return nil, fmt.Errorf("rank scenarios: %w", err)
	}
	if err := rankSourceField(db, "cn", "country", "count", TopItemsLimit).Scan(&stats.TopCountries).Error; err != nil {
		return nil, fmt.Errorf("rank countries: %w", err)
	}
	if err := rankSourceField(db, "as_name", "organization", "count", TopItemsLimit).Scan(&stats.TopOrganizations).Error; err != nil {
		return nil, fmt.Errorf("rank organizations: %w", err)
	}
	return stats, nil
}

// rankSourceField groups alerts by one key of the source column, skipping
// alerts where it is missing or empty. A limit below 1 returns every group.
func rankSourceField(db *gorm.DB, key, alias, countAlias string, limit int) *gorm.DB {
	expr := fmt.Sprintf("JSON_EXTRACT(source, '$.%s')", key)
	q := db.Model(&models.Alert{}).
		Select(fmt.Sprintf("%s AS %s, COUNT(id) AS %s", expr, alias, countAlias)).
		Where(fmt.Sprintf("COALESCE(%s, '') <> ''", expr)).
		Group(alias).
		Order(fmt.Sprintf("%s DESC, %s ASC", countAlias, alias))
	if limit > 0 {
		q = q.Limit(limit)
	}
	return q
}

// Delete removes the alert upstream, drops the local row and resyncs.
// It returns the number of alerts LAPI reported as deleted.
func (s *AlertService) Delete(ctx context.Context, id int64) (int, error) {
	deleted, err := s.lapi.DeleteAlert(ctx, id)
	if err != nil {
		if crowdsec.StatusCode(err) == http.StatusNotFound {
			return 0, ErrAlertNotFound
		}
		return 0, err
	}
	if deleted == 0 {
		return 0, ErrAlertNotFound
	}

	if err := s.db.WithContext(ctx).Delete(&models.Alert{}, id).Error; err != nil {
		return deleted, fmt.Errorf("delete local alert %d: %w", id, err)
	}
	s.log.WithField("alert_id", id).Info("Alert deleted")

	if s.sync != nil {
		s.sync.SyncAlerts(ctx)
	}
	return deleted, nil
}
