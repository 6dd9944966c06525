package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/JGeek00/crowdsec-monitor-api/internal/config"
	"github.com/JGeek00/crowdsec-monitor-api/internal/crowdsec"
	"github.com/JGeek00/crowdsec-monitor-api/internal/database"
	"github.com/JGeek00/crowdsec-monitor-api/internal/logger"
	"github.com/JGeek00/crowdsec-monitor-api/internal/services"
	"github.com/JGeek00/crowdsec-monitor-api/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "crowdsec-monitor-api",
	Short: "Mirror CrowdSec LAPI alerts and decisions into a queryable store",
	Long: `crowdsec-monitor-api keeps a local copy of the alerts and decisions known
to a CrowdSec Local API and serves them over a REST API with filtering,
pagination and statistics.`,
	Version:       version.Full(),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Log().WithError(err).Fatal("command failed")
	}
}

func init() {
	rootCmd.AddCommand(serveCmd, syncCmd, cleanupCmd, versionCmd, alertCmd)
}

// setup loads configuration and routes logs to stdout and a rotating file.
func setup() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	out := io.Writer(os.Stdout)
	logDir := cfg.LogDir
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		logger.Log().WithError(err).WithField("dir", logDir).Warn("Cannot create log directory, logging to stdout only")
	} else {
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(logDir, "crowdsec-monitor.log"),
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotator)
	}
	logger.Init(cfg.Debug, out)
	return cfg, nil
}

func newClient(cfg config.Config) *crowdsec.Client {
	return crowdsec.NewClient(crowdsec.Options{
		BaseURL:  cfg.CrowdSec.LAPIURL,
		User:     cfg.CrowdSec.User,
		Password: cfg.CrowdSec.Password,
	})
}

func openSync(cfg config.Config, client *crowdsec.Client) (*services.SyncService, error) {
	db, err := database.Connect(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	return services.NewSyncService(db, client, cfg.DataRetention), nil
}
