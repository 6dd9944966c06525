package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/JGeek00/crowdsec-monitor-api/internal/database"
	"github.com/JGeek00/crowdsec-monitor-api/internal/logger"
	"github.com/JGeek00/crowdsec-monitor-api/internal/seed"
	"github.com/JGeek00/crowdsec-monitor-api/internal/services"
)

// seed fills a development database with generated alerts by running them
// through the regular sync pass.
func main() {
	dbPath := flag.String("db", "./database/crowdsec.db", "SQLite database path")
	count := flag.Int("count", 200, "number of alerts to generate")
	rngSeed := flag.Int64("seed", 42, "random seed")
	flag.Parse()

	logger.Init(true, os.Stdout)
	log := logger.Log()

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0o755); err != nil {
		log.WithError(err).Fatal("Failed to create database directory")
	}
	db, err := database.Connect(*dbPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}

	fetcher := seed.StaticFetcher{Alerts: seed.NewGenerator(*rngSeed).Snapshot(*count)}
	res := services.NewSyncService(db, fetcher, "").SyncAll(context.Background())
	if res.Failed {
		log.Fatal("Seeding failed")
	}

	log.WithFields(logrus.Fields{
		"created":   res.Created,
		"updated":   res.Updated,
		"decisions": res.Decisions,
		"errors":    res.Errors,
	}).Info("Database seeded")
}
