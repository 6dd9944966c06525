package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JGeek00/crowdsec-monitor-api/internal/crowdsec"
	"github.com/JGeek00/crowdsec-monitor-api/internal/logger"
	"github.com/JGeek00/crowdsec-monitor-api/internal/metrics"
	"github.com/JGeek00/crowdsec-monitor-api/internal/models"
	"github.com/JGeek00/crowdsec-monitor-api/internal/util"
)

// AlertFetcher pulls the full alert snapshot from LAPI.
type AlertFetcher interface {
	FetchAlerts(ctx context.Context, filter crowdsec.AlertFilter) ([]crowdsec.Alert, error)
}

// AlertNotifier is told about alerts imported for the first time.
type AlertNotifier interface {
	NotifyNewAlerts(ctx context.Context, alerts []models.Alert)
}

// SyncResult summarizes one reconciliation pass.
type SyncResult struct {
	Created          int  `json:"created"`
	Updated          int  `json:"updated"`
	Decisions        int  `json:"decisions"`
	DecisionsDeleted int  `json:"decisions_deleted"`
	Errors           int  `json:"errors"`
	Failed           bool `json:"failed"`
}

// CleanupResult reports rows removed by retention.
type CleanupResult struct {
	Alerts    int64 `json:"alerts"`
	Decisions int64 `json:"decisions"`
}

// SyncService mirrors LAPI alerts and decisions into the local store.
// Passes are serialized; a pass never runs concurrently with another pass
// or with retention cleanup.
type SyncService struct {
	DB        *gorm.DB
	fetcher   AlertFetcher
	retention string
	notifier  AlertNotifier
	log       *logrus.Entry

	mu sync.Mutex

	statusMu sync.RWMutex
	lastSync time.Time
}

// NewSyncService builds the engine. An invalid retention string is reported
// once and disables retention.
func NewSyncService(db *gorm.DB, fetcher AlertFetcher, retention string) *SyncService {
	s := &SyncService{
		DB:      db,
		fetcher: fetcher,
		log:     logger.Component("sync"),
	}
	if _, ok := util.ParseRetentionPeriod(retention); ok {
		s.retention = retention
	}
	return s
}

// SetNotifier registers a receiver for newly imported alerts.
func (s *SyncService) SetNotifier(n AlertNotifier) {
	s.notifier = n
}

// LastSuccessfulSync returns when the last complete pass finished.
func (s *SyncService) LastSuccessfulSync() (time.Time, bool) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.lastSync, !s.lastSync.IsZero()
}

// SyncAll runs every entity sync. Alerts carry their decisions, so this is
// currently a single pass.
func (s *SyncService) SyncAll(ctx context.Context) SyncResult {
	return s.SyncAlerts(ctx)
}

// SyncAlerts fetches the full snapshot and converges the local store on it.
// Record-level failures are counted and skipped. If the fetch itself fails
// nothing is written and the last sync time is left unchanged.
//
// Alerts and decisions are only rewritten when a synced field differs, so
// updated_at records the last real change, not the last pass that saw the
// record.
func (s *SyncService) SyncAlerts(ctx context.Context) SyncResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	s.log.Info("Starting alerts sync")

	remote, err := s.fetcher.FetchAlerts(ctx, crowdsec.AlertFilter{})
	if err != nil {
		s.log.WithError(err).Error("Error syncing alerts")
		metrics.ObserveSync(true, time.Since(start))
		return SyncResult{Errors: 1, Failed: true}
	}

	var (
		result  SyncResult
		created []models.Alert
	)
	for _, ra := range remote {
		out, err := s.syncAlert(ctx, ra)
		if err != nil {
			result.Errors++
			s.log.WithError(err).WithField("alert_id", ra.ID).Error("Error processing alert")
			continue
		}
		if out.created {
			result.Created++
			created = append(created, out.alert)
		} else {
			result.Updated++
		}
		result.Decisions += out.decisions
		result.DecisionsDeleted += out.decisionsDeleted
		result.Errors += out.decisionErrors
	}

	s.cleanup(ctx)

	now := time.Now().UTC()
	s.statusMu.Lock()
	s.lastSync = now
	s.statusMu.Unlock()

	metrics.ObserveSync(false, time.Since(start))
	metrics.SetLastSuccessfulSync(now)
	metrics.AddSyncRecords("alerts_created", result.Created)
	metrics.AddSyncRecords("alerts_updated", result.Updated)
	metrics.AddSyncRecords("decisions_synced", result.Decisions)
	metrics.AddSyncRecords("decisions_deleted", result.DecisionsDeleted)
	metrics.AddSyncErrors(result.Errors)

	s.log.WithFields(logrus.Fields{
		"created":           result.Created,
		"updated":           result.Updated,
		"decisions":         result.Decisions,
		"decisions_deleted": result.DecisionsDeleted,
		"errors":            result.Errors,
		"duration_ms":       time.Since(start).Milliseconds(),
	}).Info("Alerts sync completed")

	if s.notifier != nil && len(created) > 0 {
		s.notifier.NotifyNewAlerts(ctx, created)
	}

	return result
}

type alertOutcome struct {
	alert            models.Alert
	created          bool
	decisions        int
	decisionsDeleted int
	decisionErrors   int
}

func (s *SyncService) syncAlert(ctx context.Context, ra crowdsec.Alert) (alertOutcome, error) {
	var out alertOutcome

	alert, err := alertFromRemote(ra)
	if err != nil {
		return out, err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Alert
		err := tx.First(&existing, alert.ID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Omit(clause.Associations).Create(&alert).Error; err != nil {
				return fmt.Errorf("create alert %d: %w", alert.ID, err)
			}
			out.created = true
		case err != nil:
			return fmt.Errorf("lookup alert %d: %w", alert.ID, err)
		default:
			alert.CreatedAt = existing.CreatedAt
			if alertChanged(&existing, &alert) {
				if err := tx.Omit(clause.Associations).Save(&alert).Error; err != nil {
					return fmt.Errorf("update alert %d: %w", alert.ID, err)
				}
			} else {
				alert.UpdatedAt = existing.UpdatedAt
			}
		}

		deleted, err := s.pruneDecisions(tx, alert.ID, ra.Decisions)
		if err != nil {
			return err
		}
		out.decisionsDeleted = deleted

		for _, rd := range ra.Decisions {
			err := tx.Transaction(func(dtx *gorm.DB) error {
				return upsertDecision(dtx, decisionFromRemote(rd, alert.ID, alert.CrowdsecCreatedAt))
			})
			if err != nil {
				out.decisionErrors++
				s.log.WithError(err).WithFields(logrus.Fields{
					"alert_id":    alert.ID,
					"decision_id": rd.ID,
				}).Error("Error processing decision")
				continue
			}
			out.decisions++
		}
		return nil
	})
	if err != nil {
		return alertOutcome{}, err
	}

	out.alert = alert
	return out, nil
}

// pruneDecisions removes local decisions of alertID that LAPI no longer
// reports. An alert reporting no decisions loses all of them.
func (s *SyncService) pruneDecisions(tx *gorm.DB, alertID int64, remote []crowdsec.Decision) (int, error) {
	q := tx.Where("alert_id = ?", alertID)
	if len(remote) > 0 {
		ids := make([]int64, 0, len(remote))
		for _, d := range remote {
			ids = append(ids, d.ID)
		}
		q = q.Where("id NOT IN ?", ids)
	}
	res := q.Delete(&models.Decision{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune decisions of alert %d: %w", alertID, res.Error)
	}
	return int(res.RowsAffected), nil
}

func upsertDecision(tx *gorm.DB, d models.Decision) error {
	var existing models.Decision
	err := tx.First(&existing, d.ID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := tx.Omit(clause.Associations).Create(&d).Error; err != nil {
			return fmt.Errorf("create decision %d: %w", d.ID, err)
		}
	case err != nil:
		return fmt.Errorf("lookup decision %d: %w", d.ID, err)
	default:
		d.CreatedAt = existing.CreatedAt
		if !decisionChanged(&existing, &d) {
			return nil
		}
		if err := tx.Omit(clause.Associations).Save(&d).Error; err != nil {
			return fmt.Errorf("update decision %d: %w", d.ID, err)
		}
	}
	return nil
}

// CleanupOldData removes decisions and then alerts stored before the
// retention cutoff. It does nothing when retention is not configured.
func (s *SyncService) CleanupOldData(ctx context.Context) CleanupResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanup(ctx)
}

func (s *SyncService) cleanup(ctx context.Context) CleanupResult {
	cutoff, ok := util.CalculateRetentionCutoff(s.retention)
	if !ok {
		return CleanupResult{}
	}

	var result CleanupResult
	db := s.DB.WithContext(ctx)

	res := db.Where("created_at < ?", cutoff).Delete(&models.Decision{})
	if res.Error != nil {
		s.log.WithError(res.Error).Error("Error cleaning up old decisions")
		return result
	}
	result.Decisions = res.RowsAffected

	res = db.Where("created_at < ?", cutoff).Delete(&models.Alert{})
	if res.Error != nil {
		s.log.WithError(res.Error).Error("Error cleaning up old alerts")
		return result
	}
	result.Alerts = res.RowsAffected

	metrics.AddRetentionDeleted("decisions", result.Decisions)
	metrics.AddRetentionDeleted("alerts", result.Alerts)
	if result.Alerts > 0 || result.Decisions > 0 {
		s.log.WithFields(logrus.Fields{
			"alerts":    result.Alerts,
			"decisions": result.Decisions,
			"cutoff":    cutoff.Format(time.RFC3339),
		}).Info("Retention cleanup removed old data")
	}
	return result
}

func alertFromRemote(ra crowdsec.Alert) (models.Alert, error) {
	createdAt, err := parseTimestamp("created_at", ra.CreatedAt)
	if err != nil {
		return models.Alert{}, fmt.Errorf("alert %d: %w", ra.ID, err)
	}
	startAt, err := parseTimestamp("start_at", ra.StartAt)
	if err != nil {
		return models.Alert{}, fmt.Errorf("alert %d: %w", ra.ID, err)
	}
	stopAt, err := parseTimestamp("stop_at", ra.StopAt)
	if err != nil {
		return models.Alert{}, fmt.Errorf("alert %d: %w", ra.ID, err)
	}

	meta := ra.Meta
	if meta == nil {
		meta = []models.Meta{}
	}
	events := ra.Events
	if events == nil {
		events = []models.Event{}
	}

	alert := models.Alert{
		ID:                ra.ID,
		UUID:              ra.UUID,
		Scenario:          ra.Scenario,
		ScenarioVersion:   ra.ScenarioVersion,
		ScenarioHash:      ra.ScenarioHash,
		Message:           ra.Message,
		Capacity:          ra.Capacity,
		Leakspeed:         ra.Leakspeed,
		Simulated:         ra.Simulated,
		Remediation:       ra.Remediation,
		EventsCount:       ra.EventsCount,
		MachineID:         ra.MachineID,
		Labels:            ra.Labels,
		Meta:              meta,
		Events:            events,
		CrowdsecCreatedAt: createdAt,
		StartAt:           startAt,
		StopAt:            stopAt,
		Source:            datatypes.NewJSONType(ra.Source),
	}
	return alert, nil
}

func decisionFromRemote(rd crowdsec.Decision, alertID int64, anchor time.Time) models.Decision {
	return models.Decision{
		ID:                rd.ID,
		AlertID:           alertID,
		Origin:            rd.Origin,
		Type:              rd.Type,
		Scope:             rd.Scope,
		Value:             rd.Value,
		Duration:          rd.Duration,
		Scenario:          rd.Scenario,
		Simulated:         rd.Simulated,
		Expiration:        util.CalculateExpiration(rd.Duration, anchor),
		CrowdsecCreatedAt: anchor,
	}
}

func parseTimestamp(field, raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: %w", field, util.SanitizeForLog(raw), err)
	}
	return t.UTC(), nil
}

func alertChanged(old, cur *models.Alert) bool {
	if old.UUID != cur.UUID ||
		old.Scenario != cur.Scenario ||
		old.ScenarioVersion != cur.ScenarioVersion ||
		old.ScenarioHash != cur.ScenarioHash ||
		old.Message != cur.Message ||
		old.Capacity != cur.Capacity ||
		old.Leakspeed != cur.Leakspeed ||
		old.Simulated != cur.Simulated ||
		old.Remediation != cur.Remediation ||
		old.EventsCount != cur.EventsCount ||
		old.MachineID != cur.MachineID {
		return true
	}
	if !old.CrowdsecCreatedAt.Equal(cur.CrowdsecCreatedAt) ||
		!old.StartAt.Equal(cur.StartAt) ||
		!old.StopAt.Equal(cur.StopAt) {
		return true
	}
	return !jsonEqual(old.Source, cur.Source) ||
		!jsonEqual(old.Labels, cur.Labels) ||
		!jsonEqual(old.Meta, cur.Meta) ||
		!jsonEqual(old.Events, cur.Events)
}

func decisionChanged(old, cur *models.Decision) bool {
	return old.AlertID != cur.AlertID ||
		old.Origin != cur.Origin ||
		old.Type != cur.Type ||
		old.Scope != cur.Scope ||
		old.Value != cur.Value ||
		old.Duration != cur.Duration ||
		old.Scenario != cur.Scenario ||
		old.Simulated != cur.Simulated ||
		!old.Expiration.Equal(cur.Expiration) ||
		!old.CrowdsecCreatedAt.Equal(cur.CrowdsecCreatedAt)
}

// jsonEqual compares the stored representation of two JSON columns.
func jsonEqual(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
