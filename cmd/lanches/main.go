// Package main inicia o servidor HTTP da lanchonete.
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

	"github.com/JuniorMeloDev/Tio-Flavio-Lanches-sub000/internal/config"
	"github.com/JuniorMeloDev/Tio-Flavio-Lanches-sub000/internal/handler"
	"github.com/JuniorMeloDev/Tio-Flavio-Lanches-sub000/internal/middleware"
	"github.com/JuniorMeloDev/Tio-Flavio-Lanches-sub000/internal/push"
	"github.com/JuniorMeloDev/Tio-Flavio-Lanches-sub000/internal/repository"
	"github.com/JuniorMeloDev/Tio-Flavio-Lanches-sub000/internal/service"
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
	defer repo.Close()

	pusher := push.NewClient()

	svc := service.NewService(repo, pusher, service.Merchant{
		PixKey: cfg.PixKey,
		Name:   cfg.PixMerchantName,
		City:   cfg.PixMerchantCity,
	}, cfg.OrderWatchPeriod, logger)

	authMiddleware := middleware.NewAuthMiddleware(cfg.SessionSecret)
	h := handler.NewHandler(svc, logger, authMiddleware, cfg.StaffPassword)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Vigia de pedidos novos em segundo plano.
	svc.StartOrderWatch(ctx)

	g, ctx := errgroup.WithContext(ctx)

	// Servidor HTTP.
	g.Go(func() error {
		sugar.Infow("starting lanches server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Encerramento gracioso quando o contexto for cancelado.
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
