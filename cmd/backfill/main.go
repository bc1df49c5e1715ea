// Command backfill scores stored transactions in batch mode.
//
// It fetches every transaction (optionally from a -since timestamp) in
// timestamp order, runs the rule set over each one, and writes any
// alerts that are not already present. Because alerts are deduplicated per
// (txn_id, rule_id), the command is idempotent and safe to re-run.
//
// Usage:
//
//	DATABASE_URL=... go run ./cmd/backfill
//	DATABASE_URL=... go run ./cmd/backfill -since 2026-08-01T00:00:00Z
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/svdesai/fraudscope/internal/config"
	"github.com/svdesai/fraudscope/internal/fraud"
	"github.com/svdesai/fraudscope/internal/logging"
)

func main() {
	sinceFlag := flag.String("since", "", "only score transactions at or after this RFC3339 timestamp")
	flag.Parse()

	logger := logging.New("info", "text")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	var since *time.Time
	if *sinceFlag != "" {
		t, err := time.Parse(time.RFC3339, *sinceFlag)
		if err != nil {
			logger.Error("invalid -since value", "value", *sinceFlag, "error", err)
			os.Exit(1)
		}
		since = &t
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	ruleCfg := cfg.RuleConfig()
	engine := fraud.NewEngine(fraud.NewWindowStore(ruleCfg.WindowCapacity), fraud.DefaultRules(ruleCfg))
	sink := fraud.NewSink(fraud.NewPostgresAlertStore(db), nil, logger)
	runner := fraud.NewRunner(engine, sink, fraud.NewPostgresTransactionStore(db), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	result, err := runner.RunBatch(ctx, since)
	if err != nil {
		logger.Error("backfill failed", "error", err)
		os.Exit(1)
	}

	logger.Info("backfill complete",
		"processed", result.Processed,
		"skipped", result.Skipped,
		"alerts", result.Alerts,
		"duplicates", result.Duplicates,
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)
}
