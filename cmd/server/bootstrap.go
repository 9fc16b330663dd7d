package main

import (
	"fmt"

	"github.com/glycopilot/glycopilot-api/internal/config"
	"github.com/glycopilot/glycopilot-api/internal/event"
	"github.com/glycopilot/glycopilot-api/internal/logger"
	"github.com/glycopilot/glycopilot-api/internal/repository"
	"github.com/glycopilot/glycopilot-api/internal/service"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// core holds what every command needs: config, database, repositories and
// the services that only depend on them
type core struct {
	cfg *config.Config
	db  *gorm.DB

	accounts    *repository.AccountRepository
	alerts      *repository.AlertRepository
	readings    *repository.ReadingRepository
	devices     *repository.DeviceRepository
	team        *repository.CareTeamRepository
	carelogs    *repository.CareLogRepository
	tokens      *repository.PushTokenRepository
	predictions *repository.PredictionRepository

	bus        *event.Bus
	registry   *service.RegistryService
	readingSvc *service.ReadingService
}

func loadCore() (*core, error) {
	cfg := config.Load()
	logger.Setup(cfg.App.Env, cfg.App.LogLevel)

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	c := &core{
		cfg:         cfg,
		db:          db,
		accounts:    repository.NewAccountRepository(db),
		alerts:      repository.NewAlertRepository(db),
		readings:    repository.NewReadingRepository(db),
		devices:     repository.NewDeviceRepository(db),
		team:        repository.NewCareTeamRepository(db),
		carelogs:    repository.NewCareLogRepository(db),
		tokens:      repository.NewPushTokenRepository(db),
		predictions: repository.NewPredictionRepository(db),
		bus:         event.NewBus(256),
	}
	c.registry = service.NewRegistryService(db, c.accounts, c.alerts, c.team)
	c.readingSvc = service.NewReadingService(db, c.readings, c.devices, c.bus, cfg.Glycemia.Retention())
	return c, nil
}

func openDB(cfg *config.Config) (*gorm.DB, error) {
	gormLogger := gormlogger.Default.LogMode(gormlogger.Info)
	if cfg.App.IsProduction() {
		gormLogger = gormlogger.Default.LogMode(gormlogger.Warn)
	}

	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info().Str("host", cfg.DB.Host).Str("db", cfg.DB.Name).Msg("connected to PostgreSQL")
	return db, nil
}

func (c *core) close() {
	c.bus.Close()
	if sqlDB, err := c.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
