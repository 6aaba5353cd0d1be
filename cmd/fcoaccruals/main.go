// Package main запускает HTTP-сервер сервиса согласования начислений.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/fcoaccruals/internal/cache"
	"github.com/mmeshcher/fcoaccruals/internal/config"
	"github.com/mmeshcher/fcoaccruals/internal/costcenter"
	"github.com/mmeshcher/fcoaccruals/internal/handler"
	"github.com/mmeshcher/fcoaccruals/internal/middleware"
	"github.com/mmeshcher/fcoaccruals/internal/procurement"
	"github.com/mmeshcher/fcoaccruals/internal/repository"
	"github.com/mmeshcher/fcoaccruals/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	if cfg.ProcurementSystemAddress == "" {
		sugar.Warn("procurement system address is not set, reconciliation will fail")
	}
	gateway := procurement.NewClient(cfg.ProcurementSystemAddress)

	var orderCache costcenter.Cache
	if cfg.RedisAddress != "" {
		redisClient, err := cache.New(context.Background(), cfg.RedisAddress)
		if err != nil {
			sugar.Fatalw("redis initialization error", "error", err.Error())
		}
		defer redisClient.Close()
		orderCache = cache.NewInternalOrderCache(redisClient, cfg.InternalOrderCacheTTL)
		sugar.Infow("internal order cache enabled", "addr", cfg.RedisAddress, "ttl", cfg.InternalOrderCacheTTL)
	}

	resolver := costcenter.NewResolver(gateway, orderCache, logger)

	svc := service.NewService(repo, gateway, resolver, logger, cfg.ReconcileWorkers)
	defer svc.Close()

	if cfg.IdentitySecret == "" {
		sugar.Warn("identity secret is not set, generated key will reject gateway headers")
	}
	identity := middleware.NewIdentityMiddleware(cfg.IdentitySecret)
	h := handler.NewHandler(svc, logger, identity)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting accruals server", "addr", cfg.RunAddress, "workers", cfg.ReconcileWorkers)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
