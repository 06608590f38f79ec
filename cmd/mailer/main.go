package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/otp-identity/internal/application/delivery"
	"github.com/otp-identity/internal/config"
	redisinfra "github.com/otp-identity/internal/infrastructure/redis"
	"github.com/otp-identity/internal/infrastructure/smtp"
)

// pendingRetry is how often messages left unacknowledged by a failed send
// are picked up again.
const pendingRetry = 30 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	setupLogger(cfg)
	if cfg.QueueBackend != config.QueueBackendRedis {
		slog.Error("mailer consumes redis streams only", "queue_backend", cfg.QueueBackend)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := redisinfra.NewClient(ctx, cfg)
	if err != nil {
		slog.Error("redis unavailable", "err", err)
		os.Exit(1)
	}
	defer client.Close()

	worker := delivery.NewWorker(smtp.NewMailer(cfg), 30*time.Second)
	consumer := redisinfra.NewStreamConsumer(client, cfg.QueueName, cfg.MailerGroup, cfg.MailerConsumer)

	slog.Info("mailer starting", "queue", cfg.QueueName, "group", cfg.MailerGroup, "consumer", cfg.MailerConsumer)
	if err := consumer.Run(ctx, worker.Handle, pendingRetry); err != nil {
		slog.Error("mailer stopped", "err", err)
		os.Exit(1)
	}
	slog.Info("mailer stopped")
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
