package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lienzolab/storefront/internal/cart"
	"github.com/lienzolab/storefront/internal/config"
	"github.com/lienzolab/storefront/internal/httpx"
	"github.com/lienzolab/storefront/internal/order/sqlite"
	"github.com/lienzolab/storefront/internal/payment/webpay"
	"github.com/lienzolab/storefront/internal/pkg/cache"
	"github.com/lienzolab/storefront/internal/pkg/telemetry"
	"github.com/lienzolab/storefront/internal/reconcile"
)

func main() {
	telemetry.InitLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(os.Getenv("STOREFRONT_CONFIG"))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	shutdown, err := telemetry.SetupTracer(ctx, "storefront")
	if err != nil {
		slog.Error("failed to initialise tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Error("tracer shutdown error", "error", err)
		}
	}()

	orders, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		slog.Error("failed to open order store", "path", cfg.SQLitePath, "error", err)
		os.Exit(1)
	}
	defer orders.Close()

	carts := cart.NewStore(cache.NewRedisCache(cfg.RedisAddr, "storefront"), cfg.CartTTL)

	gateway := webpay.New(webpay.Config{
		BaseURL:      cfg.Webpay.BaseURL,
		CommerceCode: cfg.Webpay.CommerceCode,
		APIKey:       cfg.Webpay.APIKey,
		Timeout:      cfg.Webpay.Timeout,
	})

	recon := reconcile.New(orders, gateway, cfg.Webpay.ReturnURL, decimal.NewFromInt(cfg.AmountTolerance))

	handler := httpx.NewHandler(orders, carts, recon)
	router := httpx.NewRouter(handler, httpx.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("storefront API running", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
}
