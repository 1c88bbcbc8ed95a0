package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"minesweeper-rewards/internal/config"
	"minesweeper-rewards/internal/handlers"
	"minesweeper-rewards/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	setupLogging(cfg)
	log := logrus.WithField("component", "api")

	redisService, err := services.NewRedisService(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisService.Close()

	jwtService := services.NewJWTService(cfg)

	hub := handlers.NewWebSocketHub()
	go hub.Run()

	engineCfg, err := services.EngineConfigFromConfig(cfg)
	if err != nil {
		log.Fatalf("Invalid engine config: %v", err)
	}
	engine, err := services.NewEngine(engineCfg,
		services.WithSinks(redisService, hub),
		services.WithLogger(logrus.WithField("component", "engine")),
	)
	if err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}

	domain := engine.Domain()
	log.WithFields(logrus.Fields{
		"chain_id":      domain.ChainID.String(),
		"game":          domain.VerifyingContract.Hex(),
		"signer_policy": cfg.SignerPolicy,
		"server_signer": cfg.ServerSigner.Hex(),
	}).Info("Engine ready")

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Engine:         engine,
		Store:          redisService,
		JWT:            jwtService,
		Hub:            hub,
		Log:            logrus.WithField("component", "http"),
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}
}

func setupLogging(cfg *config.Config) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.IsProduction() {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
