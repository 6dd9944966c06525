package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JGeek00/crowdsec-monitor-api/internal/api/routes"
	"github.com/JGeek00/crowdsec-monitor-api/internal/config"
	"github.com/JGeek00/crowdsec-monitor-api/internal/database"
	"github.com/JGeek00/crowdsec-monitor-api/internal/services"
)

type stubStatus struct{}

func (stubStatus) CheckStatus(context.Context) bool { return false }
func (stubStatus) LastSuccessfulSync() (time.Time, bool) { return time.Time{}, false }
func (stubStatus) CurrentVersion() string { return "test" }
func (stubStatus) LatestVersion() (string, bool) { return "", false }

func testDeps(t *testing.T, cfg config.Config) routes.Deps {
	db := database.OpenTestDB(t)
	return routes.Deps{
		Config:     cfg,
		Alerts:     services.NewAlertService(db, nil, nil),
		Decisions:  services.NewDecisionService(db, nil, nil, "test"),
		Statistics: services.NewStatisticsService(db),
		LAPI:       stubStatus{},
		Sync:       stubStatus{},
		Version:    stubStatus{},
		Gatherer:   prometheus.NewRegistry(),
	}
}

func TestNew(t *testing.T) {
	srv, err := New(testDeps(t, config.Config{Environment: "development"}))
	require.NoError(t, err)
	assert.Equal(t, gin.DebugMode, gin.Mode())

	w := httptest.NewRecorder()
	srv.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	_, err = New(testDeps(t, config.Config{Environment: "production"}))
	require.NoError(t, err)
	assert.Equal(t, gin.ReleaseMode, gin.Mode())
	gin.SetMode(gin.TestMode)
}

func TestRunStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)
	require.NoError(t, ln.Close())

	srv, err := New(testDeps(t, config.Config{HTTPPort: port}))
	require.NoError(t, err)
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:" + port + "/api/v1/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunReportsBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()
	port := strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)

	srv, err := New(testDeps(t, config.Config{HTTPPort: port}))
	require.NoError(t, err)
	gin.SetMode(gin.TestMode)

	err = srv.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen on port "+port)
}
