package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"propchat/internal/attachment"
	"propchat/internal/config"
	"propchat/internal/db"
	"propchat/internal/observability/logging"
	"propchat/internal/observability/metrics"
	"propchat/internal/observability/middleware"
	"propchat/internal/push"
	"propchat/internal/realtime"
	"propchat/internal/service"
	"propchat/internal/store"
	transport "propchat/internal/transport/http"
)

func main() {
	_ = godotenv.Load()

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}

	logger := logging.NewLogger(logging.Config{
		ServiceName: "chatd",
		Environment: env,
		Level:       os.Getenv("LOG_LEVEL"),
	})
	slog.SetDefault(logger)
	metrics.MustRegister("chatd")

	cfg := config.Load()

	gormDB, err := db.OpenGorm(db.Config{DSN: cfg.DatabaseURL, LogSQL: cfg.LogSQL})
	if err != nil {
		logger.Error("gorm open", "error", err)
		os.Exit(1)
	}

	st := store.New(gormDB)
	if err := st.AutoMigrate(context.Background()); err != nil {
		logger.Error("auto migrate", "error", err)
		os.Exit(1)
	}

	registry := realtime.NewRegistry()
	signer := attachment.NewSigner(cfg.StorageAPIKey, cfg.StorageAPISecret, cfg.SignedURLTTL)
	pushClient := push.NewClient(cfg.PushEndpoint, cfg.PushTimeout)
	notifier := service.NewPushService(st, pushClient, logger)
	chat := service.NewChatService(st, registry, signer, notifier, logger)

	router := transport.NewRouter(chat, registry, transport.Options{
		IdentitySecret:  cfg.IdentitySecret,
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
	})
	handler := middleware.WithRequestAndTrace(middleware.WithMetrics(router))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("chat service listening", "addr", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
