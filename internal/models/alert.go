package models

import (
	"time"

	"gorm.io/datatypes"
)

// AlertSource describes where an alert originated, as reported by CrowdSec.
type AlertSource struct {
	IP        string   `json:"ip"`
	Scope     string   `json:"scope"`
	Value     string   `json:"value"`
	Range     string   `json:"range,omitempty"`
	CN        string   `json:"cn,omitempty"`
	ASName    string   `json:"as_name,omitempty"`
	ASNumber  string   `json:"as_number,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// Meta is a single key/value pair attached to an alert or one of its events.
type Meta struct {
	Key   string    `json:"key"`
	Value MetaValue `json:"value"`
}

// Event is one of the log events that caused an alert to fire.
type Event struct {
	Timestamp string `json:"timestamp"`
	Meta      []Meta `json:"meta"`
}

// Alert mirrors a CrowdSec alert. The ID is the upstream identifier and is
// never generated locally.
type Alert struct {
	ID                int64                           `json:"id" gorm:"primaryKey;autoIncrement:false"`
	UUID              string                          `json:"uuid" gorm:"index"`
	Scenario          string                          `json:"scenario" gorm:"index:idx_alerts_scenario"`
	ScenarioVersion   string                          `json:"scenario_version"`
	ScenarioHash      string                          `json:"scenario_hash"`
	Message           string                          `json:"message" gorm:"type:text"`
	Capacity          int                             `json:"capacity"`
	Leakspeed         string                          `json:"leakspeed"`
	Simulated         bool                            `json:"simulated" gorm:"index:idx_alerts_simulated"`
	Remediation       bool                            `json:"remediation"`
	EventsCount       int                             `json:"events_count"`
	MachineID         string                          `json:"machine_id"`
	Source            datatypes.JSONType[AlertSource] `json:"source"`
	Labels            datatypes.JSONSlice[string]     `json:"labels"`
	Meta              datatypes.JSONSlice[Meta]       `json:"meta"`
	Events            datatypes.JSONSlice[Event]      `json:"events"`
	CrowdsecCreatedAt time.Time                       `json:"crowdsec_created_at" gorm:"index:idx_alerts_crowdsec_created_at"`
	StartAt           time.Time                       `json:"start_at" gorm:"index:idx_alerts_start_at"`
	StopAt            time.Time                       `json:"stop_at"`
	CreatedAt         time.Time                       `json:"created_at" gorm:"index:idx_alerts_created_at"`
	UpdatedAt         time.Time                       `json:"updated_at"`

	Decisions []Decision `json:"decisions,omitempty" gorm:"foreignKey:AlertID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// Targets returns the distinct target_fqdn values found in the alert's
// events, in first-seen order.
func (a *Alert) Targets() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, ev := range a.Events {
		for _, m := range ev.Meta {
			if m.Key != "target_fqdn" {
				continue
			}
			for _, v := range m.Value.Strings() {
				if v == "" {
					continue
				}
				if _, ok := seen[v]; ok {
					continue
				}
				seen[v] = struct{}{}
				out = append(out, v)
			}
		}
	}
	return out
}
