package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/JGeek00/crowdsec-monitor-api/internal/logger"
	"github.com/JGeek00/crowdsec-monitor-api/internal/version"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass against LAPI and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		syncService, err := openSync(cfg, newClient(cfg))
		if err != nil {
			return err
		}

		res := syncService.SyncAll(cmd.Context())
		logger.Log().WithFields(logrus.Fields{
			"created":           res.Created,
			"updated":           res.Updated,
			"decisions":         res.Decisions,
			"decisions_deleted": res.DecisionsDeleted,
			"errors":            res.Errors,
		}).Info("Sync finished")
		if res.Failed {
			return fmt.Errorf("sync failed")
		}
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Apply DATA_RETENTION to the local store and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		if cfg.DataRetention == "" {
			logger.Log().Info("DATA_RETENTION is not set, nothing to clean up")
			return nil
		}
		syncService, err := openSync(cfg, newClient(cfg))
		if err != nil {
			return err
		}

		res := syncService.CleanupOldData(cmd.Context())
		logger.Log().WithFields(logrus.Fields{"alerts": res.Alerts, "decisions": res.Decisions}).Info("Cleanup finished")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", version.Name, version.Full())
	},
}

var alertCmd = &cobra.Command{
	Use:   "alert <id>",
	Short: "Fetch one alert straight from LAPI and print it as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid alert id %q", args[0])
		}
		cfg, err := setup()
		if err != nil {
			return err
		}

		alert, err := newClient(cfg).GetAlertByID(cmd.Context(), id)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(alert)
	},
}
