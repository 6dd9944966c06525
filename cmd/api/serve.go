package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/JGeek00/crowdsec-monitor-api/internal/api/middleware"
	"github.com/JGeek00/crowdsec-monitor-api/internal/api/routes"
	"github.com/JGeek00/crowdsec-monitor-api/internal/logger"
	"github.com/JGeek00/crowdsec-monitor-api/internal/metrics"
	"github.com/JGeek00/crowdsec-monitor-api/internal/scheduler"
	"github.com/JGeek00/crowdsec-monitor-api/internal/server"
	"github.com/JGeek00/crowdsec-monitor-api/internal/services"
	"github.com/JGeek00/crowdsec-monitor-api/internal/version"
)

const (
	versionCheckInterval     = 3600
	rateLimitCleanupInterval = 60
	schedulerDrainTimeout    = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync engine and the HTTP API (default)",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	log := logger.Log()
	log.WithFields(logrus.Fields{"version": version.Full(), "environment": cfg.Environment}).
		Infof("Starting %s", version.Name)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register(prometheus.DefaultRegisterer)

	client := newClient(cfg)
	syncService, err := openSync(cfg, client)
	if err != nil {
		return err
	}

	notifier := services.NewNotificationService(cfg.NotifyURL)
	if notifier.Enabled() {
		syncService.SetNotifier(notifier)
	}

	log.Info("Testing CrowdSec LAPI connection...")
	if client.TestConnection(ctx) {
		log.Info("CrowdSec LAPI connection successful, performing initial sync")
		syncService.SyncAll(ctx)
	} else {
		log.Warn("Unable to connect to CrowdSec LAPI. Please check your configuration")
	}

	versionService := services.NewVersionService(cfg.VersionCheckURL)

	var limiter *middleware.RateLimiter
	if rl, ok := cfg.RateLimitSettings(); ok {
		limiter = middleware.NewRateLimiter(rl.Max, rl.Window)
		log.WithFields(logrus.Fields{"max": rl.Max, "window": rl.Window.String()}).Info("Rate limiting enabled")
	}

	sched := scheduler.New()
	if err := scheduleTasks(sched, cfg.SyncIntervalSeconds(), syncService, versionService, limiter); err != nil {
		return err
	}

	srv, err := server.New(routes.Deps{
		Config:      cfg,
		Alerts:      services.NewAlertService(syncService.DB, client, syncService),
		Decisions:   services.NewDecisionService(syncService.DB, client, syncService, cfg.CrowdSec.User),
		Statistics:  services.NewStatisticsService(syncService.DB),
		LAPI:        client,
		Sync:        syncService,
		Version:     versionService,
		RateLimiter: limiter,
	})
	if err != nil {
		return err
	}

	runErr := srv.Run(ctx)

	log.Info("Shutting down")
	drainCtx, cancel := context.WithTimeout(context.Background(), schedulerDrainTimeout)
	defer cancel()
	if err := sched.Shutdown(drainCtx); err != nil {
		log.WithError(err).Warn("Scheduled tasks did not finish in time")
	}
	notifier.Wait()

	return runErr
}

func scheduleTasks(sched *scheduler.Scheduler, syncInterval int, syncService *services.SyncService, versionService *services.VersionService, limiter *middleware.RateLimiter) error {
	err := sched.Schedule("sync", func(ctx context.Context) error {
		if res := syncService.SyncAll(ctx); res.Failed {
			return errors.New("sync pass failed")
		}
		return nil
	}, syncInterval, false)
	if err != nil {
		return err
	}

	if err := sched.Schedule("version-check", versionService.Check, versionCheckInterval, true); err != nil {
		return err
	}

	if limiter == nil {
		return nil
	}
	return sched.Schedule("rate-limit-cleanup", func(context.Context) error {
		if n := limiter.Cleanup(); n > 0 {
			logger.Log().WithField("removed", n).Debug("Pruned idle rate limit entries")
		}
		return nil
	}, rateLimitCleanupInterval, false)
}
