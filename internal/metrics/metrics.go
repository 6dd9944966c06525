package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	syncRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crowdsec_monitor_sync_runs_total",
		Help: "Total number of reconciliation passes by outcome",
	}, []string{"outcome"})
	syncRecordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crowdsec_monitor_sync_records_total",
		Help: "Alerts and decisions written or removed by reconciliation",
	}, []string{"kind"})
	syncErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crowdsec_monitor_sync_record_errors_total",
		Help: "Total number of per-record reconciliation failures",
	})
	syncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "crowdsec_monitor_sync_duration_seconds",
		Help:    "Duration of reconciliation passes",
		Buckets: prometheus.DefBuckets,
	})
	lastSuccessfulSync = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "crowdsec_monitor_last_successful_sync_timestamp_seconds",
		Help: "Unix time of the last complete reconciliation pass",
	})
	retentionDeletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crowdsec_monitor_retention_deleted_total",
		Help: "Rows removed by retention cleanup",
	}, []string{"kind"})
	lapiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crowdsec_monitor_lapi_requests_total",
		Help: "Requests sent to the CrowdSec Local API by action and outcome",
	}, []string{"action", "outcome"})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry prometheus.Registerer) {
	registry.MustRegister(
		syncRunsTotal,
		syncRecordsTotal,
		syncErrorsTotal,
		syncDuration,
		lastSuccessfulSync,
		retentionDeletedTotal,
		lapiRequestsTotal,
	)
}

// ObserveSync records one reconciliation pass.
func ObserveSync(failed bool, elapsed time.Duration) {
	outcome := "success"
	if failed {
		outcome = "failure"
	}
	syncRunsTotal.WithLabelValues(outcome).Inc()
	syncDuration.Observe(elapsed.Seconds())
}

// AddSyncRecords adds n to the counter for kind (alerts_created, alerts_updated,
// decisions_synced, decisions_deleted).
func AddSyncRecords(kind string, n int) {
	if n > 0 {
		syncRecordsTotal.WithLabelValues(kind).Add(float64(n))
	}
}

// AddSyncErrors counts per-record failures.
func AddSyncErrors(n int) {
	if n > 0 {
		syncErrorsTotal.Add(float64(n))
	}
}

// SetLastSuccessfulSync exports the last complete pass time.
func SetLastSuccessfulSync(t time.Time) { lastSuccessfulSync.Set(float64(t.Unix())) }

// AddRetentionDeleted counts rows pruned by retention.
func AddRetentionDeleted(kind string, n int64) {
	if n > 0 {
		retentionDeletedTotal.WithLabelValues(kind).Add(float64(n))
	}
}

// IncLAPIRequest counts one upstream call.
func IncLAPIRequest(action string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "error"
	}
	lapiRequestsTotal.WithLabelValues(action, outcome).Inc()
}
