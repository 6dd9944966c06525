package crowdsec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/JGeek00/crowdsec-monitor-api/internal/models"
)

// LoginScenario is the scenario tag sent when this service logs in as a watcher.
const LoginScenario = "manual/crowdsec-monitor"

type loginRequest struct {
	MachineID string   `json:"machine_id"`
	Password  string   `json:"password"`
	Scenarios []string `json:"scenarios"`
}

type loginResponse struct {
	Code   int    `json:"code"`
	Expire string `json:"expire"`
	Token  string `json:"token"`
}

// Alert is an alert as returned by GET /v1/alerts. Timestamps are kept as
// strings so a malformed value fails only the record that carries it.
type Alert struct {
	ID              int64              `json:"id"`
	UUID            string             `json:"uuid"`
	Scenario        string             `json:"scenario"`
	ScenarioVersion string             `json:"scenario_version"`
	ScenarioHash    string             `json:"scenario_hash"`
	Message         string             `json:"message"`
	Capacity        int                `json:"capacity"`
	Leakspeed       string             `json:"leakspeed"`
	Simulated       bool               `json:"simulated"`
	Remediation     bool               `json:"remediation"`
	EventsCount     int                `json:"events_count"`
	MachineID       string             `json:"machine_id"`
	Source          models.AlertSource `json:"source"`
	Labels          []string           `json:"labels"`
	Meta            []models.Meta      `json:"meta"`
	Events          []models.Event     `json:"events"`
	Decisions       []Decision         `json:"decisions,omitempty"`
	CreatedAt       string             `json:"created_at"`
	StartAt         string             `json:"start_at"`
	StopAt          string             `json:"stop_at"`
}

// Decision is a decision embedded in an upstream alert.
type Decision struct {
	ID        int64  `json:"id"`
	Origin    string `json:"origin"`
	Type      string `json:"type"`
	Scope     string `json:"scope"`
	Value     string `json:"value"`
	Duration  string `json:"duration"`
	Scenario  string `json:"scenario"`
	Simulated bool   `json:"simulated"`
}

// AlertFilter narrows GET /v1/alerts. Since and Until use CrowdSec relative
// durations such as "1h".
type AlertFilter struct {
	Since             string
	Until             string
	HasActiveDecision *bool
	Limit             int
}

// CreateAlert is one element of the POST /v1/alerts payload.
type CreateAlert struct {
	Scenario        string           `json:"scenario"`
	CampaignName    string           `json:"campaign_name,omitempty"`
	Message         string           `json:"message"`
	EventsCount     int              `json:"events_count"`
	StartAt         string           `json:"start_at"`
	StopAt          string           `json:"stop_at"`
	Capacity        int              `json:"capacity"`
	Leakspeed       string           `json:"leakspeed"`
	Simulated       bool             `json:"simulated"`
	Events          []models.Event   `json:"events"`
	ScenarioHash    string           `json:"scenario_hash"`
	ScenarioVersion string           `json:"scenario_version"`
	Source          CreateSource     `json:"source"`
	Decisions       []CreateDecision `json:"decisions,omitempty"`
}

// CreateSource is the source block of a created alert.
type CreateSource struct {
	Scope string `json:"scope"`
	Value string `json:"value"`
	IP    string `json:"ip,omitempty"`
	Range string `json:"range,omitempty"`
}

// CreateDecision is a decision attached to a created alert.
type CreateDecision struct {
	Type      string `json:"type"`
	Duration  string `json:"duration"`
	Value     string `json:"value"`
	Origin    string `json:"origin"`
	Scenario  string `json:"scenario"`
	Scope     string `json:"scope"`
	Simulated bool   `json:"simulated"`
}

// flexInt decodes a count that LAPI may encode as a string or a number.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid count %q: %w", raw, err)
	}
	*f = flexInt(n)
	return nil
}

type deleteResponse struct {
	NbDeleted flexInt `json:"nbDeleted"`
}

// idList decodes an array of ids sent as strings or numbers.
type idList []string

func (l *idList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		out = append(out, strings.Trim(strings.TrimSpace(string(item)), `"`))
	}
	*l = out
	return nil
}
