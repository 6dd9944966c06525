package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/JGeek00/crowdsec-monitor-api/internal/crowdsec"
	"github.com/JGeek00/crowdsec-monitor-api/internal/logger"
	"github.com/JGeek00/crowdsec-monitor-api/internal/models"
)

// ManualDecisionScenario tags alerts created through the API.
const ManualDecisionScenario = "crowdsec-monitor/manual-decision"

// ActiveDecisionsLimit caps the active decisions listing.
const ActiveDecisionsLimit = 100

// DecisionTypes are the remediations accepted when creating a decision.
var DecisionTypes = []string{"ban", "captcha", "throttle", "allow"}

// DecisionFilter narrows the decision list. Country and owner filters match
// the source of the owning alert.
type DecisionFilter struct {
	Type        string
	Scope       string
	Value       string
	Simulated   *bool
	OnlyActive  bool
	Scenarios   []string
	IPAddresses []string
	Countries   []string
	IPOwners    []string

	now time.Time
}

func (f DecisionFilter) scope(db *gorm.DB) *gorm.DB {
	if f.Type != "" {
		db = db.Where("decisions.type = ?", f.Type)
	}
	if f.Scope != "" {
		db = db.Where("decisions.scope = ?", f.Scope)
	}
	if f.Value != "" {
		db = db.Where(likeAny("decisions", "value", []string{f.Value}))
	}
	if len(f.IPAddresses) > 0 {
		db = db.Where("decisions.value IN ?", f.IPAddresses)
	}
	if f.Simulated != nil {
		db = db.Where("decisions.simulated = ?", *f.Simulated)
	}
	if f.OnlyActive {
		db = db.Where("decisions.expiration > ?", f.now)
	}
	if len(f.Scenarios) > 0 {
		db = db.Where(likeAny("decisions", "scenario", f.Scenarios))
	}

	src := sourceFilter{Countries: f.Countries, IPOwners: f.IPOwners}
	if !src.empty() {
		owners := src.apply(db.Session(&gorm.Session{NewDB: true}).Model(&models.Alert{}).Select("alerts.id"), "alerts.source")
		db = db.Where("decisions.alert_id IN (?)", owners)
	}
	return db
}

type TypeCount struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

type ScopeCount struct {
	Scope string `json:"scope"`
	Count int64  `json:"count"`
}

// DecisionStats counts decisions by type and scope.
type DecisionStats struct {
	Total   int64        `json:"total"`
	ByType  []TypeCount  `json:"byType"`
	ByScope []ScopeCount `json:"byScope"`
}

// CreateDecisionInput is a manual decision against one IP.
type CreateDecisionInput struct {
	IP       string
	Duration string
	Reason   string
	Type     string
}

type DecisionService struct {
	db     *gorm.DB
	lapi   LAPIActions
	sync   Syncer
	origin string
	log    *logrus.Entry
	now    func() time.Time
}

// NewDecisionService builds the service. origin is recorded on decisions
// created through the API, normally the LAPI machine id.
func NewDecisionService(db *gorm.DB, lapi LAPIActions, syncer Syncer, origin string) *DecisionService {
	return &DecisionService{
		db:     db,
		lapi:   lapi,
		sync:   syncer,
		origin: origin,
		log:    logger.Component("decisions"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// List returns the filtered decisions, newest first.
func (s *DecisionService) List(ctx context.Context, filter DecisionFilter, p Pagination) (*Page[models.Decision], error) {
	filter.now = s.now()
	page, err := listPage[models.Decision](s.db.WithContext(ctx), filter.scope, p, "decisions.crowdsec_created_at DESC, decisions.id DESC")
	if err != nil {
		if errors.Is(err, ErrInvalidOffset) {
			return nil, err
		}
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	return page, nil
}

// Active returns decisions whose expiration is still in the future.
func (s *DecisionService) Active(ctx context.Context) ([]models.Decision, error) {
	items := make([]models.Decision, 0)
	err := s.db.WithContext(ctx).
		Where("expiration > ?", s.now()).
		Order("crowdsec_created_at DESC, id DESC").
		Limit(ActiveDecisionsLimit).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list active decisions: %w", err)
	}
	return items, nil
}

func (s *DecisionService) Get(ctx context.Context, id int64) (*models.Decision, error) {
	var decision models.Decision
	err := s.db.WithContext(ctx).First(&decision, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDecisionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get decision %d: %w", id, err)
	}
	return &decision, nil
}

func (s *DecisionService) Stats(ctx context.Context) (*DecisionStats, error) {
	db := s.db.WithContext(ctx)
	stats := &DecisionStats{ByType: []TypeCount{}, ByScope: []ScopeCount{}}

	if err := db.Model(&models.Decision{}).Count(&stats.Total).Error; err != nil {
		return nil, fmt.Errorf("count decisions: %w", err)
	}
	if err := db.Model(&models.Decision{}).
		Select("type, COUNT(id) AS count").
		Group("type").
		Order("count DESC, type ASC").
		Scan(&stats.ByType).Error; err != nil {
		return nil, fmt.Errorf("group decisions by type: %w", err)
	}
	if err := db.Model(&models.Decision{}).
		Select("scope, COUNT(id) AS count").
		Group("scope").
		Order("count DESC, scope ASC").
		Scan(&stats.ByScope).Error; err != nil {
		return nil, fmt.Errorf("group decisions by scope: %w", err)
	}
	return stats, nil
}

// Create pushes an alert carrying a single decision to LAPI and resyncs.
// It returns the ids of the alerts LAPI created.
func (s *DecisionService) Create(ctx context.Context, in CreateDecisionInput) ([]string, error) {
	now := s.now().Format(time.RFC3339Nano)
	payload := []crowdsec.CreateAlert{{
		Scenario:        ManualDecisionScenario,
		CampaignName:    ManualDecisionScenario,
		Message:         in.Reason,
		EventsCount:     1,
		StartAt:         now,
		StopAt:          now,
		Capacity:        0,
		Leakspeed:       "0",
		Simulated:       false,
		Events:          []models.Event{},
		ScenarioHash:    "",
		ScenarioVersion: "",
		Source:          crowdsec.CreateSource{Scope: "ip", Value: in.IP},
		Decisions: []crowdsec.CreateDecision{{
			Type:     in.Type,
			Duration: in.Duration,
			Value:    in.IP,
			Origin:   s.origin,
			Scenario: ManualDecisionScenario,
			Scope:    "ip",
		}},
	}}

	ids, err := s.lapi.CreateAlerts(ctx, payload)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"type": in.Type, "duration": in.Duration, "alert_ids": ids}).Info("Decision created")

	if s.sync != nil {
		s.sync.SyncAlerts(ctx)
	}
	return ids, nil
}

// Delete removes the decision upstream, expires the local copy and
// resyncs. It returns the number of decisions LAPI reported as deleted.
func (s *DecisionService) Delete(ctx context.Context, id int64) (int, error) {
	deleted, err := s.lapi.DeleteDecision(ctx, id)
	if err != nil {
		if crowdsec.StatusCode(err) == http.StatusNotFound {
			return 0, ErrDecisionNotFound
		}
		return 0, err
	}
	if deleted == 0 {
		return 0, ErrDecisionNotFound
	}

	err = s.db.WithContext(ctx).Model(&models.Decision{}).
		Where("id = ?", id).
		Update("expiration", s.now()).Error
	if err != nil {
		return deleted, fmt.Errorf("expire local decision %d: %w", id, err)
	}
	s.log.WithField("decision_id", id).Info("Decision deleted")

	if s.sync != nil {
		s.sync.SyncAlerts(ctx)
	}
	return deleted, nil
}
