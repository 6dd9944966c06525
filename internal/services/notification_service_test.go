package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/JGeek00/crowdsec-monitor-api/internal/models"
)

func notifiedAlert(scenario, ip, country string) models.Alert {
	return models.Alert{
		Scenario: scenario,
		Source:   datatypes.NewJSONType(models.AlertSource{IP: ip, Value: ip, Scope: "Ip", CN: country}),
	}
}

func TestRenderAlertsMessage(t *testing.T) {
	msg, err := renderAlertsMessage([]models.Alert{
		notifiedAlert("crowdsecurity/ssh-bf", "1.2.3.4", "FR"),
		notifiedAlert("crowdsecurity/http-probing\n", "5.6.7.8", ""),
	})
	require.NoError(t, err)
	assert.Contains(t, msg, "2 new CrowdSec alerts")
	assert.Contains(t, msg, "- crowdsecurity/ssh-bf from 1.2.3.4 (FR)")
	assert.Contains(t, msg, "- crowdsecurity/http-probing  from 5.6.7.8")
	assert.NotContains(t, msg, "more")
}

func TestRenderAlertsMessage_Truncates(t *testing.T) {
	alerts := make([]models.Alert, 12)
	for i := range alerts {
		alerts[i] = notifiedAlert(fmt.Sprintf("scenario-%d", i), "10.0.0.1", "")
	}
	msg, err := renderAlertsMessage(alerts)
	require.NoError(t, err)
	assert.Contains(t, msg, "12 new CrowdSec alerts")
	assert.Contains(t, msg, "scenario-9 ")
	assert.NotContains(t, msg, "scenario-10 ")
	assert.Contains(t, msg, "... and 2 more")
}

func TestNotificationService_NotifyNewAlerts(t *testing.T) {
	var mu sync.Mutex
	var sent []string
	ns := NewNotificationService(" generic://example.test/hook ")
	ns.send = func(url, message string) error {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "generic://example.test/hook", url)
		sent = append(sent, message)
		return nil
	}

	ns.NotifyNewAlerts(context.Background(), []models.Alert{notifiedAlert("s1", "1.1.1.1", "US")})
	ns.NotifyNewAlerts(context.Background(), nil)
	ns.Wait()

	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "1 new CrowdSec alert\n")
}

func TestNotificationService_Disabled(t *testing.T) {
	ns := NewNotificationService("")
	called := false
	ns.send = func(string, string) error {
		called = true
		return nil
	}
	assert.False(t, ns.Enabled())
	ns.NotifyNewAlerts(context.Background(), []models.Alert{notifiedAlert("s1", "1.1.1.1", "")})
	ns.Wait()
	assert.False(t, called)

	var nilService *NotificationService
	assert.False(t, nilService.Enabled())
}

func TestNotificationService_SendFailureIsLogged(t *testing.T) {
	ns := NewNotificationService("generic://example.test")
	ns.send = func(string, string) error { return errors.New("boom") }
	ns.NotifyNewAlerts(context.Background(), []models.Alert{notifiedAlert("s1", "1.1.1.1", "")})
	ns.Wait()
}
