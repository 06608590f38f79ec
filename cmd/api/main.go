package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/otp-identity/internal/application/delivery"
	"github.com/otp-identity/internal/config"
	"github.com/otp-identity/internal/infrastructure/dynamo"
	jwtinfra "github.com/otp-identity/internal/infrastructure/jwt"
	redisinfra "github.com/otp-identity/internal/infrastructure/redis"
	"github.com/otp-identity/internal/infrastructure/sns"
	"github.com/otp-identity/internal/metrics"
	transporthttp "github.com/otp-identity/internal/transport/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	setupLogger(cfg)
	if envErr != nil {
		slog.Info("no .env file found, reading from environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := redisinfra.NewClient(ctx, cfg)
	if err != nil {
		slog.Error("redis unavailable", "err", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		slog.Error("dynamodb client", "err", err)
		os.Exit(1)
	}
	dynamo.Bootstrap(ctx, dynamoClient, cfg.UsersTable)

	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		slog.Error("jwt provider", "err", err)
		os.Exit(1)
	}

	publisher, err := newPublisher(ctx, cfg, redisClient)
	if err != nil {
		slog.Error("queue publisher", "backend", cfg.QueueBackend, "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	outbox := redisinfra.NewOutbox(redisClient, redisinfra.DefaultOutboxKey)
	relay := delivery.NewRelay(delivery.RelayDeps{
		Outbox:    outbox,
		Publisher: publisher,
		Metrics:   collector,
		MaxAge:    cfg.OTPTTL,
		Timeout:   cfg.OperationTimeout,
	})
	var relayWG sync.WaitGroup
	relayWG.Add(1)
	go func() {
		defer relayWG.Done()
		relay.Run(ctx, cfg.OutboxInterval)
	}()

	router := transporthttp.NewRouter(cfg, &transporthttp.Deps{
		UserRepo:    dynamo.NewUserRepo(dynamoClient, cfg.UsersTable),
		Cache:       redisinfra.NewCache(redisClient),
		Publisher:   publisher,
		Outbox:      outbox,
		JWTProvider: jwtProvider,
		Metrics:     collector,
		Gatherer:    reg,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv, "queue_backend", cfg.QueueBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "err", err)
	}
	// The relay settles its in-flight entry before returning; redis must
	// stay open until then.
	relayWG.Wait()
	slog.Info("server stopped")
}

func newPublisher(ctx context.Context, cfg *config.Config, client *redis.Client) (transporthttp.Publisher, error) {
	if cfg.QueueBackend == config.QueueBackendSNS {
		return sns.NewPublisher(ctx, cfg)
	}
	return redisinfra.NewStreamPublisher(client), nil
}

func setupLogger(cfg *config.Config) {
	var h slog.Handler
	if cfg.IsDevelopment() {
		h = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		h = slog.NewJSONHandler(os.Stdout, nil)
	}
	slog.SetDefault(slog.New(h))
}
