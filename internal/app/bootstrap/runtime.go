package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/shoplane/commerce-core/internal/adapters/cache"
	"github.com/shoplane/commerce-core/internal/adapters/docstore"
	eventadapter "github.com/shoplane/commerce-core/internal/adapters/events"
	httpadapter "github.com/shoplane/commerce-core/internal/adapters/http"
	"github.com/shoplane/commerce-core/internal/adapters/postgres"
	"github.com/shoplane/commerce-core/internal/adapters/security"
	"github.com/shoplane/commerce-core/internal/application"
	"github.com/shoplane/commerce-core/internal/ports"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	outbox     *eventadapter.OutboxWorker
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With("service", cfg.ServiceID)
	slog.SetDefault(logger)

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := postgres.RunMigrations(ctx, db); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	redisClient, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	verifier, err := security.NewJWKSVerifier(security.VerifierConfig{
		JWKSURL:  cfg.JWKSURL,
		Issuer:   cfg.Issuer,
		Audience: cfg.Audience,
		CacheTTL: cfg.KeyCacheTTL,
	}, nil, cache.NewRedisKeyCache(redisClient), logger)
	if err != nil {
		_ = redisClient.Close()
		_ = sqlDB.Close()
		return nil, err
	}

	// Store stack: raw Postgres driver wrapped by the retrying client; every
	// repository routes through the client so throttle handling is uniform.
	store := docstore.NewRetryClient(postgres.NewDocumentStore(db), docstore.RetryPolicy{
		MaxAttempts: cfg.StoreMaxAttempts,
		BaseBackoff: cfg.StoreBaseBackoff,
		MaxBackoff:  cfg.StoreMaxBackoff,
		CallTimeout: cfg.StoreCallTimeout,
	}, logger)
	repos := docstore.NewRepositories(store)
	outboxRepo := postgres.NewOutboxRepository(db)

	var publisher ports.EventPublisher
	var closers []io.Closer
	if cfg.EventLogOnly {
		logger.WarnContext(ctx, "event log only mode: envelopes are logged, never delivered to a broker")
		publisher = eventadapter.NewLoggingPublisher(logger)
	} else {
		kafkaPublisher, pubErr := eventadapter.NewKafkaPublisher(cfg.KafkaBrokers)
		if pubErr != nil {
			_ = redisClient.Close()
			_ = sqlDB.Close()
			return nil, fmt.Errorf("kafka publisher: %w", pubErr)
		}
		publisher = kafkaPublisher
		closers = append(closers, kafkaPublisher)
	}

	service := application.NewService(application.Dependencies{
		Logger:     logger,
		Users:      repos.Users,
		Products:   repos.Products,
		Categories: repos.Categories,
		Carts:      repos.Carts,
		Orders:     repos.Orders,
		Inventory:  repos.Inventory,
		Payments:   repos.Payments,
		Reviews:    repos.Reviews,
		Shipments:  repos.Shipments,
		Returns:    repos.Returns,
		Tickets:    repos.Tickets,
		Outbox:     outboxRepo,
		Publisher:  publisher,
	})

	handler := httpadapter.NewHandler(service, verifier, func(ctx context.Context) error {
		return sqlDB.PingContext(ctx)
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           httpadapter.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		for _, closer := range closers {
			_ = closer.Close()
		}
		_ = redisClient.Close()
		_ = sqlDB.Close()
		return nil, err
	}

	outbox := eventadapter.NewOutboxWorker(logger, outboxRepo, publisher,
		cfg.OutboxPollInterval, cfg.OutboxBatchSize, cfg.OutboxClaimTTL, cfg.OutboxMaxRetries)

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcLis:    lis,
		outbox:     outbox,
		cleanupFn: func(ctx context.Context) {
			for _, closer := range closers {
				_ = closer.Close()
			}
			_ = redisClient.Close()
			_ = sqlDB.Close()
		},
	}, nil
}

func Build(ctx context.Context, configPath string) (*Runtime, error) {
	return NewRuntime(ctx, configPath)
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	errCh := make(chan error, 2)

	go func() {
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		r.logger.ErrorContext(ctx, "runtime failure", "error", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return nil
}

func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := r.outbox.Run(ctx)
	r.cleanupFn(context.Background())
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
