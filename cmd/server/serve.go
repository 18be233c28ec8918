package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dipr-ads/be-release-orders/internal/client"
	"github.com/dipr-ads/be-release-orders/internal/config"
	"github.com/dipr-ads/be-release-orders/internal/database"
	"github.com/dipr-ads/be-release-orders/internal/handler"
	"github.com/dipr-ads/be-release-orders/internal/logger"
	"github.com/dipr-ads/be-release-orders/internal/middleware"
	"github.com/dipr-ads/be-release-orders/internal/notification"
	"github.com/dipr-ads/be-release-orders/internal/repository"
	"github.com/dipr-ads/be-release-orders/internal/service"
)

func newServeCmd(load func() (*config.Config, error)) *cobra.Command {
	var migrateFirst bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("migrate") {
				cfg.Database.MigrateOnStart = migrateFirst
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().BoolVar(&migrateFirst, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting release-order service")

	if cfg.Database.MigrateOnStart {
		version, err := database.Migrate(cfg.Database.URL)
		if err != nil {
			return err
		}
		log.Info().Uint("version", version).Msg("Database migrated")
	}

	db, err := database.New(ctx, database.Config{
		URL:         cfg.Database.URL,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnLifetime,
		MaxIdleTime: cfg.Database.MaxConnIdleTime,
		HealthCheck: cfg.Database.HealthCheckPeriod,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize repositories
	adRepo := repository.NewAdvertisementRepository(db)
	allocationRepo := repository.NewAllocationRepository(db)
	jobLogicRepo := repository.NewJobLogicRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	worklistRepo := repository.NewWorklistRepository(db)
	noteSheetRepo := repository.NewNoteSheetRepository(db)
	adminRepo := repository.NewAdminRepository(db)
	userRepo := repository.NewUserRepository(db)
	actionLogRepo := repository.NewActionLogRepository(db)

	// Notification pipeline
	mailer := client.NewMailerClient(client.MailerConfig{
		BaseURL: cfg.Mailer.BaseURL,
		Timeout: cfg.Mailer.Timeout,
	})
	var events notification.EventPublisher
	if cfg.NATS.URL != "" {
		nc, err := client.ConnectNATS(cfg.NATS.URL, log.Logger)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer drainNATS(nc, log)
		events = client.NewNotificationPublisher(nc, cfg.NATS.SubjectPrefix, log.Logger)
		log.Info().Str("url", cfg.NATS.URL).Msg("Notification events mirrored to NATS")
	}
	dispatcher := notification.NewDispatcher(notification.Config{
		Workers:       cfg.Mailer.Workers,
		QueueSize:     cfg.Mailer.QueueSize,
		MaxAttempts:   cfg.Mailer.MaxAttempts,
		Backoff:       cfg.Mailer.Backoff,
		RatePerSecond: cfg.Mailer.RatePerSecond,
	}, mailer, events, actionLogRepo, log)
	dispatcher.Start()

	// Initialize services
	audit := service.NewAuditor(actionLogRepo, log)
	invoiceService := service.NewInvoiceService(
		invoiceRepo, adRepo, allocationRepo, worklistRepo, userRepo,
		audit, dispatcher, cfg.Mailboxes, cfg.InvoiceRouting, log,
	)
	svc := handler.Services{
		Advertisements: service.NewAdvertisementService(adRepo, allocationRepo, userRepo, audit, dispatcher, cfg.Mailboxes, log),
		Invoices:       invoiceService,
		NoteSheets:     service.NewNoteSheetService(noteSheetRepo, worklistRepo, userRepo, audit, dispatcher, cfg.Mailboxes, log),
		Allocations:    service.NewAllocationService(allocationRepo, adRepo, userRepo, audit, dispatcher, cfg.Mailboxes, log),
		ActionLogs:     service.NewActionLogService(actionLogRepo, audit, log),
		Admin:          service.NewAdminService(jobLogicRepo, adminRepo, userRepo, audit, log),
		Stats:          service.NewStatsService(noteSheetRepo),
		Reports:        service.NewReportService(adRepo, userRepo, log),
	}

	// HTTP
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	router := handler.NewHTTPHandler(svc, db.Ping, log).Router()
	httpServer := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: middleware.Chain(router,
			middleware.Logging(log.Logger),
			middleware.Recovery,
			middleware.CORS(cfg.Server.CORSOrigins),
			middleware.RequestInfo,
			limiter.Handler,
			middleware.APIKey(cfg.Security.APIKey, "/health", "/metrics"),
			middleware.Timeout(cfg.Server.RequestTimeout),
		),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	if cfg.Security.APIKey == "" {
		log.Warn().Msg("FLUTTER_API_KEY is not set; API key check disabled")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		limiter.Run(gctx, time.Minute)
		return nil
	})

	if cfg.GRPC.Enabled {
		grpcServer, healthServer := handler.NewGRPCServer(handler.NewGRPCHandler(svc, log.Logger), cfg.Security.APIKey)
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
		if err != nil {
			return fmt.Errorf("failed to create gRPC listener: %w", err)
		}
		g.Go(func() error {
			log.Info().Int("port", cfg.GRPC.Port).Msg("Starting gRPC server")
			return grpcServer.Serve(lis)
		})
		g.Go(func() error {
			<-gctx.Done()
			healthServer.Shutdown()
			grpcServer.GracefulStop()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown failed")
		}
		if err := dispatcher.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Notification queue not drained before shutdown")
		}
		return nil
	})

	err = g.Wait()
	log.Info().Msg("Server stopped")
	return err
}

func drainNATS(nc *nats.Conn, log *logger.Logger) {
	if err := nc.Drain(); err != nil {
		log.Warn().Err(err).Msg("Failed to drain NATS connection")
	}
}
