package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glycopilot/glycopilot-api/internal/handler"
	"github.com/glycopilot/glycopilot-api/internal/metrics"
	"github.com/glycopilot/glycopilot-api/internal/middleware"
	"github.com/glycopilot/glycopilot-api/internal/model"
	"github.com/glycopilot/glycopilot-api/internal/service"
	"github.com/glycopilot/glycopilot-api/internal/sink"
	"github.com/glycopilot/glycopilot-api/internal/ws"
	"github.com/glycopilot/glycopilot-api/migrations"
	"github.com/glycopilot/glycopilot-api/pkg/auth"
	"github.com/glycopilot/glycopilot-api/pkg/mailer"
	"github.com/glycopilot/glycopilot-api/pkg/notification"
	"github.com/glycopilot/glycopilot-api/pkg/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	c, err := loadCore()
	if err != nil {
		return err
	}
	defer c.close()
	cfg := c.cfg
	log.Info().Str("env", cfg.App.Env).Msg("starting Glycopilot API server")

	// ==================== Run Migrations ====================
	if err := migrations.Run(cfg.DB.URL()); err != nil {
		log.Warn().Err(err).Msg("migration failed, falling back to GORM AutoMigrate")
		if err := c.db.AutoMigrate(model.All()...); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	log.Info().Msg("database migrated")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// ==================== Redis ====================
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       0,
	})
	defer rdb.Close()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info().Str("addr", cfg.Redis.Addr()).Msg("connected to Redis")

	// ==================== Email (SMTP / Mailpit) ====================
	mailClient := mailer.New(mailer.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		FromName: cfg.SMTP.FromName,
		BaseURL:  cfg.App.BaseURL,
	})
	log.Info().Str("host", cfg.SMTP.Host).Str("port", cfg.SMTP.Port).Msg("SMTP configured")

	// ==================== Push (FCM) ====================
	var push notification.Transport
	fcm, err := notification.NewFCM(ctx, cfg.Push.CredentialsFile)
	if err != nil {
		log.Warn().Err(err).Msg("FCM not available, push notifications disabled")
	} else if fcm != nil {
		push = fcm
	}

	// ==================== Initialize Layers ====================
	jwtManager := auth.NewJWTManager(auth.KeySet{
		Main:  []byte(cfg.JWT.Secret),
		Admin: []byte(cfg.JWT.AdminSecret),
	}, cfg.JWT.Expiry, metrics.AdminKeyAccepted)

	alertService := service.NewAlertService(c.db, c.alerts, c.tokens, push, cfg.Push.Timeout)
	authService := service.NewAuthService(c.registry, c.accounts, c.tokens, jwtManager, auth.NewRedisRevocations(rdb))
	careTeam := service.NewCareTeamService(c.db, c.accounts, c.team, mailClient)
	defer careTeam.Flush()
	summary := service.NewSummaryService(c.readings, c.alerts, c.carelogs, service.SummaryConfig{
		CaloriesGoal: cfg.Nutrition.CaloriesGoal,
		CarbsGoal:    cfg.Nutrition.CarbsGoal,
		RangeLow:     cfg.Glycemia.HypoThreshold,
		RangeHigh:    cfg.Glycemia.HyperThreshold,
	})
	gateway := service.NewDoctorGateway(careTeam, summary, c.readingSvc, c.carelogs)
	predictions := service.NewPredictionService(c.predictions)

	// Realtime hub (with Redis Pub/Sub for horizontal scaling)
	hub := ws.NewHub(rdb)
	go hub.Run(ctx)

	// ==================== Reading subscribers ====================
	c.bus.SubscribeTx(alertService)
	c.bus.Subscribe(ws.NewFanout(hub, cfg.Glycemia.HypoThreshold, cfg.Glycemia.HyperThreshold))

	if cfg.Influx.URL != "" {
		influx, err := sink.NewInflux(ctx, cfg.Influx.URL, cfg.Influx.Token, cfg.Influx.Org, cfg.Influx.Bucket)
		if err != nil {
			log.Warn().Err(err).Msg("InfluxDB not available, time-series mirror disabled")
		} else {
			defer influx.Close()
			c.bus.Subscribe(influx)
			log.Info().Str("url", cfg.Influx.URL).Str("bucket", cfg.Influx.Bucket).Msg("InfluxDB mirror enabled")
		}
	}
	if len(cfg.Kafka.Brokers) > 0 {
		kafka := sink.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kafka.Close()
		c.bus.Subscribe(kafka)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Kafka publication enabled")
	}

	go c.readingSvc.RunSweeper(ctx, cfg.Glycemia.SweepInterval)

	// MinIO Storage
	var photos storage.Storage
	minioStorage, err := storage.NewMinIO(ctx, storage.Config{
		Endpoint:  cfg.MinIO.Endpoint,
		PublicURL: cfg.MinIO.PublicURL,
		AccessKey: cfg.MinIO.AccessKey,
		SecretKey: cfg.MinIO.SecretKey,
		Bucket:    cfg.MinIO.Bucket,
		UseSSL:    cfg.MinIO.UseSSL,
	})
	if err != nil {
		log.Warn().Err(err).Msg("MinIO not available, photo upload disabled")
	} else {
		photos = minioStorage
		log.Info().Str("endpoint", cfg.MinIO.Endpoint).Msg("connected to MinIO")
	}

	// ==================== Gin Router ====================
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery(), middleware.RequestLogger(), middleware.CORSMiddleware(cfg.CORS))

	// Serve swagger.json at /docs/swagger.json to avoid conflict with /swagger/* wildcard
	router.StaticFile("/docs/swagger.json", "./docs/swagger.json")
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/docs/swagger.json")))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "glycopilot-api",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	handler.RegisterRoutes(router, handler.Handlers{
		Auth:      handler.NewAuthHandler(authService),
		Glycemia:  handler.NewGlycemiaHandler(c.readingSvc),
		Photos:    handler.NewPhotoHandler(photos),
		Alerts:    handler.NewAlertHandler(alertService),
		CareTeam:  handler.NewCareTeamHandler(careTeam, gateway),
		Dashboard: handler.NewDashboardHandler(summary, predictions),
		WS:        handler.NewWSHandler(hub, authService, careTeam),
	}, authService)

	// ==================== Start Server ====================
	srv := &http.Server{
		Addr:    ":" + cfg.App.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info().
		Str("addr", "http://0.0.0.0:"+cfg.App.Port).
		Str("docs", "/swagger/index.html").
		Str("realtime", "/ws/glycemia/?token=<jwt>").
		Msg("Glycopilot API running")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}
	log.Info().Msg("shutting down server")

	// Give ongoing requests 5 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Drain reading subscribers before the hub and sinks go away
	c.bus.Close()
	stop()
	log.Info().Msg("server exited gracefully")
	return nil
}
