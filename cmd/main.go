/**
 * @description
 * Entry point for the booking service. Wires configuration, Postgres, Redis,
 * RabbitMQ, Stripe, the reconcile poller and the HTTP server.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/cutline/booking-service/internal/api"
	"github.com/cutline/booking-service/internal/app"
	"github.com/cutline/booking-service/internal/config"
	"github.com/cutline/booking-service/internal/store"
	bookingrabbit "github.com/cutline/booking-service/pkg/rabbitmq"
	"github.com/cutline/booking-service/pkg/stripeclient"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, relying on environment")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.StripeSecretKey == "" || cfg.StripeWebhookSecret == "" {
		logger.Error("stripe credentials must be configured", "env", "STRIPE_SECRET_KEY,STRIPE_WEBHOOK_SECRET")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	pgConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	pgConfig.MaxConns = 50
	pgConfig.MinConns = 5
	pgConfig.MaxConnLifetime = 30 * time.Minute
	pgConfig.MaxConnIdleTime = 5 * time.Minute
	pgConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, pgConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	var limiter api.RateLimiter
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Warn("invalid REDIS_URL, booking rate limiting disabled", "error", err)
		} else {
			redisClient := redis.NewClient(redisOpts)
			pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
			if err := redisClient.Ping(pingCtx).Err(); err != nil {
				logger.Warn("redis unreachable, booking rate limiting disabled", "error", err)
				_ = redisClient.Close()
			} else {
				limiter = app.NewBookingAttemptLimiter(redisClient, cfg.RedisRateLimitPrefix, cfg.BookingRateLimitPerMinute, time.Minute)
				defer redisClient.Close()
				logger.Info("redis connection established")
			}
			pingCancel()
		}
	}

	var publisher app.EventPublisher = &bookingrabbit.EventProducerFallback{}
	var consumer *bookingrabbit.Consumer
	if cfg.RabbitMQURL != "" {
		if producer, err := bookingrabbit.NewEventProducer(cfg.RabbitMQURL); err == nil {
			publisher = producer
			defer producer.Close()
		} else {
			logger.Warn("failed to connect to RabbitMQ, using fallback publisher", "error", err)
		}
		if c, err := bookingrabbit.NewConsumer(cfg.RabbitMQURL); err == nil {
			consumer = c
			defer consumer.Close()
		} else {
			logger.Warn("failed to start RabbitMQ consumer, lifecycle events disabled", "error", err)
		}
	}

	repository := store.NewRepository(dbpool)
	stripe := stripeclient.NewClient(cfg.StripeSecretKey)
	service := app.NewService(repository, stripe, publisher, cfg, logger)

	if consumer != nil {
		lifecycle := app.NewBookingLifecycleConsumer(repository, logger)
		err := consumer.ConsumeWithBindings(cfg.EventsExchange, cfg.BookingLifecycleQueue, map[string]func([]byte) bool{
			"booking.lifecycle.completed": lifecycle.HandleMessage,
			"booking.lifecycle.cancelled": lifecycle.HandleMessage,
		})
		if err != nil {
			logger.Warn("failed to bind lifecycle queue", "error", err)
		}
	}

	scheduler := app.NewScheduler(service, cfg.ReconcilePollSchedule, time.Duration(cfg.ReconcilePollWindowMin)*time.Minute, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error("reconcile poller not started", "error", err)
		os.Exit(1)
	}

	if cfg.InternalAPIKey == "" {
		logger.Warn("INTERNAL_API_KEY is not set, internal reconcile endpoints will refuse every call")
	}

	handler := api.NewHandler(service, limiter)
	webhook := api.NewWebhookHandler(stripeclient.NewWebhookVerifier(cfg.StripeWebhookSecret), service)
	router := api.NewRouter(handler, webhook, cfg.SupabaseJWTSecret, cfg.InternalAPIKey)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	<-scheduler.Stop().Done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}
