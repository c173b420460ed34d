package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LavaJover/shvark-settlement-service/internal/app/background"
	"github.com/LavaJover/shvark-settlement-service/internal/app/setup"
	"github.com/LavaJover/shvark-settlement-service/internal/delivery/grpcapi"
	"github.com/LavaJover/shvark-settlement-service/internal/delivery/http/handlers"
	"github.com/LavaJover/shvark-settlement-service/internal/delivery/mq"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

const (
	shutdownTimeout     = 15 * time.Second
	healthCheckInterval = 10 * time.Second
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, webhook receiver, gRPC health server and reconciliation",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	deps, err := setup.InitializeDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	useCases, err := setup.InitializeUseCases(deps)
	if err != nil {
		return err
	}
	uc := useCases.SettlementUsecase

	if cfg.Reconcile.Enabled {
		tasks := background.NewBackgroundTasks(uc, cfg.Reconcile.Interval)
		if err := tasks.StartAll(ctx); err != nil {
			return err
		}
	}

	if deps.Subscriber != nil {
		consumer := mq.NewWebhookConsumer(deps.Subscriber, uc, cfg.KafkaService.WebhookTopic, cfg.KafkaService.GroupID, deps.Metrics, deps.Logger)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("webhook consumer stopped", "error", err.Error())
			}
		}()
	}

	sqlDB, err := deps.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	health := grpcapi.NewHealthHandler(sqlDB)
	grpcServer := grpc.NewServer()
	health.Register(grpcServer)
	go health.Watch(ctx, healthCheckInterval)

	lis, err := net.Listen("tcp", cfg.GRPCServer.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	if cfg.Webhook.Secret == "" {
		slog.Warn("webhook secret is not set, every gateway webhook will be rejected")
	}
	app := handlers.NewRouter(handlers.RouterConfig{
		Settlement:   handlers.NewSettlementHandler(uc),
		Webhook:      handlers.NewWebhookHandler(uc, cfg.Webhook.Secret, deps.Metrics),
		ServiceToken: cfg.HTTPServer.ServiceToken,
		Gatherer:     deps.Registry,
		Logger:       deps.Logger,
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
	})

	errCh := make(chan error, 2)
	go func() {
		slog.Info("gRPC health server started", "addr", cfg.GRPCServer.Addr())
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		slog.Info("HTTP server started", "addr", cfg.HTTPServer.Addr())
		if err := app.Listen(cfg.HTTPServer.Addr()); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err = <-errCh:
		slog.Error("server failed", "error", err.Error())
	}

	if serr := app.ShutdownWithTimeout(shutdownTimeout); serr != nil {
		slog.Error("failed to stop HTTP server", "error", serr.Error())
	}
	grpcServer.GracefulStop()
	return err
}
