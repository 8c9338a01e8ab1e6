package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"rwa-raffle-backend/internal/common/config"
	organizerhttp "rwa-raffle-backend/internal/features/organizer/delivery/http"
	organizerredis "rwa-raffle-backend/internal/features/organizer/repository/redis"
	organizerservice "rwa-raffle-backend/internal/features/organizer/service"
	permithttp "rwa-raffle-backend/internal/features/permit/delivery/http"
	permitservice "rwa-raffle-backend/internal/features/permit/service"
	rafflehttp "rwa-raffle-backend/internal/features/raffle/delivery/http"
	drawredis "rwa-raffle-backend/internal/features/raffle/draw/redis"
	raffleengine "rwa-raffle-backend/internal/features/raffle/engine"
	raffleredis "rwa-raffle-backend/internal/features/raffle/repository/redis"
	raffleservice "rwa-raffle-backend/internal/features/raffle/service"
	"rwa-raffle-backend/internal/middleware"
	ledgerredis "rwa-raffle-backend/internal/platform/ledger/redis"
	redisplatform "rwa-raffle-backend/internal/platform/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.Debug {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	logger.Info().Bool("debug", cfg.Debug).Msg("starting raffle backend")

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rdb, err := redisplatform.Open(ctx, redisAddr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", redisAddr).Msg("failed to connect to redis")
	}
	defer rdb.Close()

	organizerRepo := organizerredis.NewRedisOrganizerRepository(rdb.Client)
	raffleRepo := raffleredis.NewRaffleRepository(rdb.Client)
	randomness := drawredis.NewSource(rdb.Client)
	funds := ledgerredis.NewLedger(rdb.Client)

	organizerSvc := organizerservice.NewOrganizerService(organizerRepo, logger)
	permitSvc := permitservice.NewService(organizerSvc, cfg.Raffle.ProgramID, time.Duration(cfg.Raffle.PermitTTL)*time.Second, logger)
	eng := raffleengine.New(cfg.Raffle.ProgramID, organizerSvc, raffleRepo, raffleRepo)
	raffleSvc := raffleservice.NewRaffleService(raffleRepo, eng, randomness, funds, logger)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Server.Origin}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Authorization", "Accept", "X-Admin-API-Key"}
	router.Use(cors.New(corsConfig))

	raffleHandler := rafflehttp.NewRaffleHandler(raffleSvc, cfg.Raffle.ProgramID)

	v1 := router.Group("/api/v1")
	{
		permithttp.NewPermitHandler(permitSvc).RegisterRoutes(v1)
		raffleHandler.RegisterRoutes(v1)

		admin := v1.Group("/admin", middleware.AdminKeyMiddleware(cfg.Admin.APIKey))
		{
			organizerhttp.NewOrganizerHandler(organizerSvc).RegisterRoutes(admin)
			raffleHandler.RegisterAdminRoutes(admin)
		}
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "rwa-raffle-backend"})
	})
	router.GET("/ready", func(c *gin.Context) {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	// Deadline watcher: expired raffles are refunded lazily on access, and
	// this sweep catches the ones nobody touches.
	go func() {
		interval := time.Duration(cfg.Raffle.SweepInterval) * time.Second
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := raffleSvc.SweepDeadlines(ctx); err != nil {
					logger.Error().Err(err).Msg("deadline sweep failed")
				}
			}
		}
	}()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
	}
	logger.Info().Msg("server stopped")
}
