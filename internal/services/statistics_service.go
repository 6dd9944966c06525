package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/JGeek00/crowdsec-monitor-api/internal/models"
)

// dateExpr buckets a timestamp column into a UTC calendar day.
const dateExpr = "strftime('%Y-%m-%d', crowdsec_created_at)"

const targetBatchSize = 500

type CountryAmount struct {
	CountryCode string `json:"countryCode"`
	Amount      int64  `json:"amount"`
}

type ScenarioAmount struct {
	Scenario string `json:"scenario"`
	Amount   int64  `json:"amount"`
}

type IPOwnerAmount struct {
	IPOwner string `json:"ipOwner"`
	Amount  int64  `json:"amount"`
}

type TargetAmount struct {
	Target string `json:"target"`
	Amount int64  `json:"amount"`
}

// DateAmount is one day of an item history.
type DateAmount struct {
	Date   string `json:"date"`
	Amount int64  `json:"amount"`
}

// ActivityDay counts alerts and decisions created on one day.
type ActivityDay struct {
	Date            string `json:"date"`
	AmountAlerts    int64  `json:"amountAlerts"`
	AmountDecisions int64  `json:"amountDecisions"`
}

// GeneralStatistics is the dashboard summary.
type GeneralStatistics struct {
	AlertsLast24Hours int64            `json:"alertsLast24Hours"`
	ActiveDecisions   int64            `json:"activeDecisions"`
	ActivityHistory   []ActivityDay    `json:"activityHistory"`
	TopCountries      []CountryAmount  `json:"topCountries"`
	TopScenarios      []ScenarioAmount `json:"topScenarios"`
	TopIPOwners       []IPOwnerAmount  `json:"topIpOwners"`
	TopTargets        []TargetAmount   `json:"topTargets"`
}

// StatisticsQuery scopes the general statistics. A zero Since covers all
// data; Amount below 1 falls back to TopItemsLimit.
type StatisticsQuery struct {
	Since  time.Time
	Amount int
}

type StatisticsService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStatisticsService(db *gorm.DB) *StatisticsService {
	return &StatisticsService{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (q StatisticsQuery) since(db *gorm.DB) *gorm.DB {
	if q.Since.IsZero() {
		return db
	}
	return db.Where("crowdsec_created_at >= ?", q.Since.UTC())
}

// General builds the dashboard summary.
func (s *StatisticsService) General(ctx context.Context, q StatisticsQuery) (*GeneralStatistics, error) {
	if q.Amount < 1 {
		q.Amount = TopItemsLimit
	}
	db := s.db.WithContext(ctx)
	now := s.now()
	out := &GeneralStatistics{}

	if err := db.Model(&models.Alert{}).
		Where("crowdsec_created_at >= ?", now.Add(-24*time.Hour)).
		Count(&out.AlertsLast24Hours).Error; err != nil {
		return nil, fmt.Errorf("count recent alerts: %w", err)
	}
	if err := db.Model(&models.Decision{}).Scopes(q.since).
		Where("expiration > ?", now).
		Count(&out.ActiveDecisions).Error; err != nil {
		return nil, fmt.Errorf("count active decisions: %w", err)
	}

	history, err := s.activity(db, q)
	if err != nil {
		return nil, err
	}
	out.ActivityHistory = history

	out.TopCountries = make([]CountryAmount, 0)
	if err := rankSourceField(db.Scopes(q.since), "cn", "country_code", "amount", q.Amount).Scan(&out.TopCountries).Error; err != nil {
		return nil, fmt.Errorf("rank countries: %w", err)
	}
	out.TopIPOwners = make([]IPOwnerAmount, 0)
	if err := rankSourceField(db.Scopes(q.since), "as_name", "ip_owner", "amount", q.Amount).Scan(&out.TopIPOwners).Error; err != nil {
		return nil, fmt.Errorf("rank ip owners: %w", err)
	}
	out.TopScenarios = make([]ScenarioAmount, 0)
	if err := rankScenarios(db.Scopes(q.since), q.Amount).Scan(&out.TopScenarios).Error; err != nil {
		return nil, fmt.Errorf("rank scenarios: %w", err)
	}
	targets, err := s.rankTargets(db.Scopes(q.since))
	if err != nil {
		return nil, err
	}
	if len(targets) > q.Amount {
		targets = targets[:q.Amount]
	}
	out.TopTargets = targets
	return out, nil
}

func (s *StatisticsService) activity(db *gorm.DB, q StatisticsQuery) ([]ActivityDay, error) {
	type dayCount struct {
		Date  string
		Count int64
	}
	var alerts, decisions []dayCount
	if err := db.Model(&models.Alert{}).Scopes(q.since).
		Select(dateExpr + " AS date, COUNT(id) AS count").
		Group("date").
		Scan(&alerts).Error; err != nil {
		return nil, fmt.Errorf("alerts by date: %w", err)
	}
	if err := db.Model(&models.Decision{}).Scopes(q.since).
		Select(dateExpr + " AS date, COUNT(id) AS count").
		Group("date").
		Scan(&decisions).Error; err != nil {
		return nil, fmt.Errorf("decisions by date: %w", err)
	}

	byDate := make(map[string]*ActivityDay)
	day := func(date string) *ActivityDay {
		d, ok := byDate[date]
		if !ok {
			d = &ActivityDay{Date: date}
			byDate[date] = d
		}
		return d
	}
	for _, a := range alerts {
		day(a.Date).AmountAlerts = a.Count
	}
	for _, d := range decisions {
		day(d.Date).AmountDecisions = d.Count
	}

	out := make([]ActivityDay, 0, len(byDate))
	for _, d := range byDate {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func rankScenarios(db *gorm.DB, limit int) *gorm.DB {
	q := db.Model(&models.Alert{}).
		Select("scenario, COUNT(id) AS amount").
		Group("scenario").
		Order("amount DESC, scenario ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return q
}

// rankTargets counts, per target_fqdn, the alerts whose events mention it.
func (s *StatisticsService) rankTargets(db *gorm.DB) ([]TargetAmount, error) {
	counts := make(map[string]int64)
	err := s.eachAlertEvents(db, func(a *models.Alert) {
		for _, t := range a.Targets() {
			counts[t]++
		}
	})
	if err != nil {
		return nil, fmt.Errorf("rank targets: %w", err)
	}

	out := make([]TargetAmount, 0, len(counts))
	for target, n := range counts {
		out = append(out, TargetAmount{Target: target, Amount: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Target < out[j].Target
	})
	return out, nil
}

// eachAlertEvents streams alert events in batches.
func (s *StatisticsService) eachAlertEvents(db *gorm.DB, fn func(*models.Alert)) error {
	var batch []models.Alert
	return db.Model(&models.Alert{}).
		Select("id", "events", "crowdsec_created_at").
		FindInBatches(&batch, targetBatchSize, func(tx *gorm.DB, _ int) error {
			for i := range batch {
				fn(&batch[i])
			}
			return nil
		}).Error
}

// Countries ranks every country code seen in alert sources.
func (s *StatisticsService) Countries(ctx context.Context) ([]CountryAmount, error) {
	out := make([]CountryAmount, 0)
	if err := rankSourceField(s.db.WithContext(ctx), "cn", "country_code", "amount", 0).Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("rank countries: %w", err)
	}
	return out, nil
}

func (s *StatisticsService) Scenarios(ctx context.Context) ([]ScenarioAmount, error) {
	out := make([]ScenarioAmount, 0)
	if err := rankScenarios(s.db.WithContext(ctx), 0).Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("rank scenarios: %w", err)
	}
	return out, nil
}

func (s *StatisticsService) IPOwners(ctx context.Context) ([]IPOwnerAmount, error) {
	out := make([]IPOwnerAmount, 0)
	if err := rankSourceField(s.db.WithContext(ctx), "as_name", "ip_owner", "amount", 0).Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("rank ip owners: %w", err)
	}
	return out, nil
}

func (s *StatisticsService) Targets(ctx context.Context) ([]TargetAmount, error) {
	return s.rankTargets(s.db.WithContext(ctx))
}

// CountryHistory counts alerts per day for one country, case-insensitively.
func (s *StatisticsService) CountryHistory(ctx context.Context, country string) ([]DateAmount, error) {
	return s.history(s.db.WithContext(ctx).
		Where("UPPER(JSON_EXTRACT(source, '$.cn')) = ?", strings.ToUpper(country)))
}

func (s *StatisticsService) ScenarioHistory(ctx context.Context, scenario string) ([]DateAmount, error) {
	return s.history(s.db.WithContext(ctx).Where("scenario = ?", scenario))
}

func (s *StatisticsService) IPOwnerHistory(ctx context.Context, owner string) ([]DateAmount, error) {
	return s.history(s.db.WithContext(ctx).Where("JSON_EXTRACT(source, '$.as_name') = ?", owner))
}

// TargetHistory counts alerts per day whose events mention target.
func (s *StatisticsService) TargetHistory(ctx context.Context, target string) ([]DateAmount, error) {
	counts := make(map[string]int64)
	err := s.eachAlertEvents(s.db.WithContext(ctx), func(a *models.Alert) {
		for _, t := range a.Targets() {
			if t == target {
				counts[a.CrowdsecCreatedAt.UTC().Format(time.DateOnly)]++
				return
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("target history: %w", err)
	}

	out := make([]DateAmount, 0, len(counts))
	for date, n := range counts {
		out = append(out, DateAmount{Date: date, Amount: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *StatisticsService) history(db *gorm.DB) ([]DateAmount, error) {
	out := make([]DateAmount, 0)
	err := db.Model(&models.Alert{}).
		Select(dateExpr + " AS date, COUNT(id) AS amount").
		Group("date").
		Order("date ASC").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return out, nil
}
