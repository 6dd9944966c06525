package models

import "time"

// Decision is a remediation (ban, captcha, ...) issued by CrowdSec for an
// alert. Expiration is derived from the upstream duration anchored on the
// owning alert's creation time.
type Decision struct {
	ID                int64     `json:"id" gorm:"primaryKey;autoIncrement:false"`
	AlertID           int64     `json:"alert_id" gorm:"not null;index:idx_decisions_alert_id"`
	Origin            string    `json:"origin"`
	Type              string    `json:"type" gorm:"index:idx_decisions_type"`
	Scope             string    `json:"scope" gorm:"index:idx_decisions_scope"`
	Value             string    `json:"value" gorm:"index:idx_decisions_value"`
	Duration          string    `json:"duration"`
	Scenario          string    `json:"scenario"`
	Simulated         bool      `json:"simulated" gorm:"index:idx_decisions_simulated"`
	Expiration        time.Time `json:"expiration" gorm:"index:idx_decisions_expiration"`
	CrowdsecCreatedAt time.Time `json:"crowdsec_created_at"`
	CreatedAt         time.Time `json:"created_at" gorm:"index:idx_decisions_created_at"`
	UpdatedAt         time.Time `json:"updated_at"`

	Alert *Alert `json:"alert,omitempty" gorm:"foreignKey:AlertID"`
}

// IsActive reports whether the decision is still in force at t.
func (d *Decision) IsActive(t time.Time) bool {
	return d.Expiration.After(t)
}
