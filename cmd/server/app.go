package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/iliyamo/mobile-seat-admission/internal/config"
	"github.com/iliyamo/mobile-seat-admission/internal/database"
	"github.com/iliyamo/mobile-seat-admission/internal/logging"
	"github.com/iliyamo/mobile-seat-admission/internal/observe"
	"github.com/iliyamo/mobile-seat-admission/internal/repository"
	"github.com/iliyamo/mobile-seat-admission/internal/session"
)

// app holds the dependencies shared by all subcommands.
type app struct {
	cfg      config.Config
	log      zerolog.Logger
	db       *sql.DB
	registry *prometheus.Registry
	manager  *session.Manager
}

func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info().Msg("schema migrated")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	manager := session.NewManager(
		repository.NewLicenseRepo(db),
		repository.NewSeatRepo(db),
		observe.NewReporter(log, reg),
		log,
	)
	return &app{cfg: cfg, log: log, db: db, registry: reg, manager: manager}, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.log.Warn().Err(err).Msg("close database")
	}
}
