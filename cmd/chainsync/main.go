// cmd/chainsync/main.go
//
// Batch reconciler: scans every program account on the ledger and rebuilds
// the product mirror. Safe to re-run; intended for cron.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chainproof/provenance-backend/internal/chain"
	"github.com/chainproof/provenance-backend/internal/config"
	"github.com/chainproof/provenance-backend/internal/database"
	"github.com/chainproof/provenance-backend/internal/services"
)

func main() {
	timeout := flag.Duration("timeout", 10*time.Minute, "overall deadline for one sync pass")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	db, err := database.Initialize(cfg.Database)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer database.Close(db)

	if err := database.RunMigrations(db); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	client := chain.NewRPCClient(chain.RPCConfig{
		URL:             cfg.Chain.RPCURL,
		Commitment:      cfg.Chain.Commitment,
		Timeout:         cfg.Chain.RequestTimeout,
		ConfirmInterval: cfg.Chain.ConfirmInterval,
		ConfirmTimeout:  cfg.Chain.ConfirmTimeout,
	})

	users := services.NewUserService(db)
	metadata, err := services.NewMetadataService(db, cfg)
	if err != nil {
		log.Fatal("Failed to initialize metadata service:", err)
	}
	sync := services.NewSyncService(db, users, metadata, nil, client, cfg.Chain.ProgramID)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	report, err := sync.Run(ctx)
	if err != nil {
		logrus.WithError(err).Fatal("Sync pass failed")
	}

	logrus.WithFields(logrus.Fields{
		"scanned":   report.Scanned,
		"created":   report.Created,
		"updated":   report.Updated,
		"unchanged": report.Unchanged,
		"skipped":   report.Skipped,
	}).Info("Sync pass finished")
}
