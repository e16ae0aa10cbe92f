package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"condortrader/internal/client/tradestation"
	"condortrader/internal/compliance"
	"condortrader/internal/config"
	"condortrader/internal/db"
	"condortrader/internal/engine"
	"condortrader/internal/handler"
	"condortrader/internal/logger"
	"condortrader/internal/marketdata"
	gormrepository "condortrader/internal/repository/gorm"
	"condortrader/internal/scheduler"
	"condortrader/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CT_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("CT_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)
	settingsSvc := &service.SettingsService{Repo: store, Static: cfg.Strategy}
	if err := settingsSvc.EnsureDefaults(context.Background()); err != nil {
		logger.Warn("init default strategy switches failed", zap.Error(err))
	}

	brokerHTTP := &http.Client{Timeout: cfg.Broker.Timeout}
	simBroker := tradestation.NewClient(cfg.Broker, false, brokerHTTP, logger)
	liveBroker := tradestation.NewClient(cfg.Broker, true, brokerHTTP, logger)
	marketSvc := marketdata.NewService(store, cfg.MarketData, logger)
	pdtTracker := compliance.NewTracker(store, cfg.Compliance, logger)
	tradeEngine := engine.New(store, settingsSvc, marketSvc, pdtTracker, simBroker, liveBroker, cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched, err := scheduler.New(&engineJobs{engine: tradeEngine}, cfg.Schedule, logger, ctx)
	if err != nil {
		logger.Fatal("scheduler init failed", zap.Error(err))
	}
	if !settingsSvc.IsEnabled(ctx, service.KeyStrategyEnabled, false) {
		sched.Pause()
	}
	sched.Start()
	defer sched.Stop()

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm, Scheduler: sched}
	healthHandler.Register(router)
	strategyHandler := &handler.StrategyHandler{
		Settings:   settingsSvc,
		Engine:     tradeEngine,
		Scheduler:  sched,
		Compliance: pdtTracker,
		Config:     cfg,
		Logger:     logger,
	}
	strategyHandler.Register(router)
	tradesHandler := &handler.TradesHandler{Repo: store, Engine: tradeEngine}
	tradesHandler.Register(router)
	analyticsHandler := &handler.AnalyticsHandler{
		Repo:       store,
		Compliance: pdtTracker,
		Settings:   settingsSvc,
		Market:     cfg.MarketData,
	}
	analyticsHandler.Register(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// engineJobs adapts the decision engine to the scheduler callbacks. The
// scheduler does not consume cycle results; every outcome lands in the
// decision audit trail regardless.
type engineJobs struct {
	engine *engine.Engine
}

func (j *engineJobs) RunEntryCycle(ctx context.Context) { j.engine.RunEntry(ctx) }

func (j *engineJobs) RunExitCycle(ctx context.Context) { j.engine.RunExit(ctx) }

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
