package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lromero-dev/takeout-orders/internal/checkout"
	"github.com/lromero-dev/takeout-orders/internal/config"
	"github.com/lromero-dev/takeout-orders/internal/httpx"
	"github.com/lromero-dev/takeout-orders/internal/order"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("postgres connect: %v", err)
	}
	defer pool.Close()

	provider := checkout.NewStripeProvider(cfg.StripeSecretKey, cfg.StripeWebhookSecret, logger)
	repo := order.NewPGRepo(pool)
	svc := order.NewService(repo, logger)

	r := gin.New()
	r.Use(gin.Recovery(), httpx.RequestID(), httpx.Logger(logger))

	r.POST("/webhooks/stripe", webhookHandler(svc, provider, logger))
	r.POST("/orders/ensure", ensureOrderHandler(svc, provider))
	r.GET("/orders/:id", getOrderHandler(repo))
	r.GET("/orders/session/:session_id", getOrderBySessionHandler(repo))
	r.GET("/orders/phone/:phone", lookupByPhoneHandler(repo))
	r.PUT("/orders/:id/status", updateOrderStatusHandler(repo))
	r.GET("/healthz", healthHandler(pool))

	srv := &http.Server{Addr: cfg.Addr, Handler: r}

	go func() {
		logger.Info("service_started", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown_failed", "error", err)
	}
	logger.Info("service_stopped")
}
