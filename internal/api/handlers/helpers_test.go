package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/JGeek00/crowdsec-monitor-api/internal/api/handlers"
	"github.com/JGeek00/crowdsec-monitor-api/internal/crowdsec"
	"github.com/JGeek00/crowdsec-monitor-api/internal/models"
	"github.com/JGeek00/crowdsec-monitor-api/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeLAPI struct {
	mu        sync.Mutex
	created   []crowdsec.CreateAlert
	createIDs []string
	deleted   int
	err       error
}

func (f *fakeLAPI) CreateAlerts(_ context.Context, alerts []crowdsec.CreateAlert) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, alerts...)
	return f.createIDs, nil
}

func (f *fakeLAPI) DeleteAlert(context.Context, int64) (int, error) {
	return f.deleted, f.err
}

func (f *fakeLAPI) DeleteDecision(context.Context, int64) (int, error) {
	return f.deleted, f.err
}

type noopSyncer struct{}

func (noopSyncer) SyncAlerts(context.Context) services.SyncResult { return services.SyncResult{} }

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	require.NoError(t, handlers.RegisterValidators())
	r := gin.New()
	r.UseRawPath = true
	r.UnescapePathValues = true
	return r
}

func do(r http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func seedAlert(t *testing.T, db *gorm.DB, id int64, scenario string, created time.Time, src models.AlertSource) {
	t.Helper()
	alert := models.Alert{
		ID:                id,
		UUID:              "uuid",
		Scenario:          scenario,
		Source:            datatypes.NewJSONType(src),
		CrowdsecCreatedAt: created.UTC(),
		StartAt:           created.UTC(),
		StopAt:            created.UTC(),
	}
	require.NoError(t, db.Create(&alert).Error)
}

func seedDecision(t *testing.T, db *gorm.DB, d models.Decision) {
	t.Helper()
	if d.Origin == "" {
		d.Origin = "crowdsec"
	}
	require.NoError(t, db.Create(&d).Error)
}
