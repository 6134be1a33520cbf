package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"dreamscape/internal/config"
	"dreamscape/internal/db"
	"dreamscape/internal/email"
	apihttp "dreamscape/internal/http"
	"dreamscape/internal/repository"
	"dreamscape/internal/service"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(pool); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}

	emailSender := email.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}

	var (
		codeLimiter service.CodeRateLimiter
		denylist    service.SessionDenylist
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			codeLimiter = service.NewRedisCodeRateLimiter(redisClient, 10*time.Minute, 3)
			denylist = service.NewRedisSessionDenylist(redisClient)
		}
		cancel()
	}

	tokenSvc := service.NewTokenServiceWithDenylist(
		cfg.JWTSecret,
		time.Duration(cfg.SessionTTLHours)*time.Hour,
		denylist,
	)

	userRepo := repository.NewPgUserRepository(pool)
	entryRepo := repository.NewPgEntryRepository(pool)
	authSvc := service.NewAuthService(logger, userRepo, emailSender, codeLimiter, cfg.AppBaseURL)

	authHandler := apihttp.NewAuthHandler(logger, authSvc, tokenSvc)
	journalHandler := apihttp.NewJournalHandler(logger, entryRepo)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := apihttp.NewMetrics(registry)

	authLimiter := apihttp.NewIPRateLimiter(rate.Limit(2), 20)
	defer authLimiter.Stop()

	router := apihttp.NewRouter(logger, authHandler, journalHandler, tokenSvc, authLimiter, metrics, registry)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
