package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	cartapp "github.com/shopfront/backend/internal/application/cart"
	catalogapp "github.com/shopfront/backend/internal/application/catalog"
	eventapp "github.com/shopfront/backend/internal/application/event"
	identityapp "github.com/shopfront/backend/internal/application/identity"
	inventoryapp "github.com/shopfront/backend/internal/application/inventory"
	orderapp "github.com/shopfront/backend/internal/application/order"
	reportapp "github.com/shopfront/backend/internal/application/report"
	supportapp "github.com/shopfront/backend/internal/application/support"
	"github.com/shopfront/backend/internal/infrastructure/auth"
	"github.com/shopfront/backend/internal/infrastructure/cache"
	"github.com/shopfront/backend/internal/infrastructure/config"
	"github.com/shopfront/backend/internal/infrastructure/event"
	"github.com/shopfront/backend/internal/infrastructure/logger"
	"github.com/shopfront/backend/internal/infrastructure/messaging"
	"github.com/shopfront/backend/internal/infrastructure/persistence"
	"github.com/shopfront/backend/internal/infrastructure/scheduler"
	"github.com/shopfront/backend/internal/infrastructure/stockclient"
	"github.com/shopfront/backend/internal/infrastructure/storage"
	"github.com/shopfront/backend/internal/infrastructure/telemetry"
	"github.com/shopfront/backend/internal/interfaces/http/handler"
	"github.com/shopfront/backend/internal/interfaces/http/router"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	stockMetricsInterval = time.Minute
	outboxCleanupEvery   = time.Hour
)

// app owns every long-lived dependency of the server
type app struct {
	cfg *config.Config
	log *zap.Logger

	db      *persistence.Database
	backend *cache.Backend
	nats    *nats.Conn
	jwt     *auth.JWTService

	authService      *identityapp.AuthService
	userService      *identityapp.UserService
	productService   *catalogapp.ProductService
	imageService     *catalogapp.ImageService
	inventoryService *inventoryapp.InventoryService
	cartService      *cartapp.CartService
	orderService     *orderapp.OrderService
	chatService      *supportapp.ChatService
	dashboard        *reportapp.DashboardService
	outboxService    *eventapp.OutboxService

	hub         *supportapp.Hub
	eventBus    *event.InMemoryEventBus
	processor   *event.OutboxProcessor
	broadcaster *messaging.ChatBroadcaster
	scheduler   *scheduler.Scheduler
	trigger     *scheduler.IntervalTrigger
	metrics     *telemetry.BusinessMetrics
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger, meters *telemetry.MeterProvider) (*app, error) {
	a := &app{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
		logger.WithIgnoreRecordNotFoundError(true),
	)
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithLogger(gormLog))
	if err != nil {
		return nil, err
	}
	a.db = db
	log.Info("Database connected", zap.String("dbname", cfg.Database.DBName))

	meter := meters.Meter("shopfront")
	instrumentation, err := telemetry.NewDBInstrumentation(meter, cfg.Telemetry, cfg.Database.DBName, log)
	if err != nil {
		return nil, err
	}
	if err := db.DB.Use(instrumentation); err != nil {
		return nil, fmt.Errorf("register db instrumentation: %w", err)
	}
	if sqlDB, err := db.DB.DB(); err == nil {
		if err := meters.RegisterDBStats(sqlDB, cfg.Database.DBName); err != nil {
			log.Warn("Connection pool metrics unavailable", zap.Error(err))
		}
	}

	if a.backend, err = cache.NewBackend(cfg.Redis, log); err != nil {
		return nil, err
	}
	var blacklist auth.TokenBlacklist = auth.NewInMemoryTokenBlacklist()
	if a.backend.IsRedis() {
		blacklist = auth.NewRedisTokenBlacklist(a.backend.Client())
	}

	serializer := event.NewEventSerializer()
	if err := event.RegisterAllEvents(serializer); err != nil {
		return nil, err
	}
	outboxPublisher := event.NewOutboxPublisher(serializer, cfg.Event.MaxRetries)
	outboxRepo := event.NewGormOutboxRepository(db.DB).WithClaimTimeout(cfg.Event.ClaimTimeout)

	userRepo := persistence.NewGormUserRepository(db.DB)
	productRepo := persistence.NewGormProductRepository(db.DB)
	orderRepo := persistence.NewGormOrderRepository(db.DB)
	cartRepo := persistence.NewGormCartRepository(db.DB)
	supportRepo := persistence.NewGormSupportRepository(db.DB)
	movementRepo := persistence.NewGormMovementRepository(db.DB)
	stockRepo := persistence.NewGormStockRepository(db.DB)
	userRepo.SetOutboxEventSaver(outboxPublisher)
	productRepo.SetOutboxEventSaver(outboxPublisher)
	orderRepo.SetOutboxEventSaver(outboxPublisher)
	supportRepo.SetOutboxEventSaver(outboxPublisher)

	a.jwt = auth.NewJWTService(cfg.JWT)
	a.authService = identityapp.NewAuthService(userRepo, a.jwt, blacklist, identityapp.DefaultAuthServiceConfig(), log)
	a.userService = identityapp.NewUserService(userRepo, a.jwt, blacklist, log)

	a.inventoryService = inventoryapp.NewInventoryService(
		persistence.NewGormTransactionScope(db.DB, outboxPublisher),
		movementRepo, stockRepo,
		inventoryapp.Options{
			CASRetryAttempts:  cfg.Inventory.CASRetryAttempts,
			LowStockThreshold: cfg.Inventory.LowStockThreshold,
		},
	)
	stock, err := newStockGateway(cfg.Inventory, a.inventoryService, log)
	if err != nil {
		return nil, err
	}

	a.productService = catalogapp.NewProductService(productRepo, a.inventoryService, orderRepo, log)
	if cfg.Storage.Enabled {
		objects, err := storage.NewS3Storage(ctx, cfg.Storage, storage.WithLogger(log))
		if err != nil {
			return nil, err
		}
		if err := objects.EnsureBucket(ctx); err != nil {
			log.Warn("Could not verify image bucket", zap.String("bucket", objects.Bucket()), zap.Error(err))
		}
		a.imageService = catalogapp.NewImageService(productRepo, objects, log)
		imageConfig := catalogapp.DefaultImageServiceConfig()
		if cfg.Storage.PresignExpiry > 0 {
			imageConfig.UploadURLExpiry = cfg.Storage.PresignExpiry
		}
		a.imageService.SetConfig(imageConfig)
		a.productService.SetImageService(a.imageService)
	}

	orderConfig, err := parseOrderConfig(cfg.Order)
	if err != nil {
		return nil, err
	}
	a.cartService = cartapp.NewCartService(cartRepo, productRepo, orderConfig.Currency, log)
	a.orderService = orderapp.NewOrderService(orderRepo, productRepo, cartRepo, stock, orderConfig, log)

	a.hub = supportapp.NewHub(cfg.Support.MaxStreamClients, log)
	var broadcaster supportapp.Broadcaster
	a.eventBus = event.NewInMemoryEventBus(log)
	if cfg.NATS.Enabled {
		if a.nats, err = messaging.Connect(cfg.NATS, cfg.App.Name, log); err != nil {
			return nil, err
		}
		a.broadcaster = messaging.NewChatBroadcaster(a.nats, a.hub, cfg.NATS.SubjectPrefix, log)
		broadcaster = a.broadcaster
		a.eventBus.Subscribe(messaging.NewEventForwarder(a.nats, serializer, cfg.NATS.SubjectPrefix, log))
	}
	a.chatService = supportapp.NewChatService(supportRepo, a.hub, broadcaster, log)

	idempotency := a.backend.IdempotencyStore()
	a.eventBus.Subscribe(event.NewIdempotentHandler("order-cancelled-release",
		orderapp.NewOrderCancelledHandler(orderRepo, stock, log), idempotency, log))
	a.eventBus.Subscribe(inventoryapp.NewVariantStockLowHandler(log).
		WithNotifier(inventoryapp.NewLoggingStockAlertNotifier(log)))

	a.outboxService = eventapp.NewOutboxService(outboxRepo, log)
	if cfg.Event.ProcessorEnabled {
		a.processor = event.NewOutboxProcessor(outboxRepo, a.eventBus, serializer, event.OutboxProcessorConfig{
			BatchSize:        cfg.Event.BatchSize,
			PollInterval:     cfg.Event.PollInterval,
			CleanupEnabled:   cfg.Event.CleanupEnabled,
			CleanupRetention: cfg.Event.CleanupRetention,
			DeadRetention:    cfg.Event.DeadRetention,
			CleanupInterval:  outboxCleanupEvery,
		}, log)
	}

	a.dashboard = reportapp.NewDashboardService(
		persistence.NewGormReportRepository(db.DB),
		a.backend.DashboardCache(),
		reportapp.DashboardConfig{
			CacheTTL:          cfg.Report.CacheTTL,
			LowStockThreshold: cfg.Inventory.LowStockThreshold,
		},
		log,
	)

	a.metrics, err = telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter:             meter,
		Logger:            log,
		StockProvider:     telemetry.NewGormStockMetricsProvider(db.DB),
		LowStockThreshold: cfg.Inventory.LowStockThreshold,
	})
	if err != nil {
		return nil, err
	}
	a.inventoryService.SetMetrics(a.metrics)
	a.orderService.SetMetrics(a.metrics)
	if a.processor != nil {
		a.processor.SetMetrics(a.metrics)
	}

	a.setupScheduler(movementRepo, orderRepo)

	ok = true
	return a, nil
}

// newStockGateway picks the in-process ledger or the remote inventory API
func newStockGateway(cfg config.InventoryConfig, ledger *inventoryapp.InventoryService, log *zap.Logger) (orderapp.StockGateway, error) {
	if !cfg.IsRemote() {
		return orderapp.NewLocalStockGateway(ledger), nil
	}
	client, err := stockclient.New(stockclient.Config{
		BaseURL:        cfg.RemoteBaseURL,
		ServiceToken:   cfg.ServiceToken,
		RequestTimeout: cfg.RequestTimeout,
		MaxAttempts:    cfg.MaxAttempts,
	}, log)
	if err != nil {
		return nil, err
	}
	log.Info("Orders reserve stock remotely", zap.String("base_url", cfg.RemoteBaseURL))
	return client, nil
}

func parseOrderConfig(cfg config.OrderConfig) (orderapp.Config, error) {
	out := orderapp.Config{Currency: cfg.Currency, ShippingFee: decimal.Zero}
	if cfg.ShippingFee != "" {
		fee, err := decimal.NewFromString(cfg.ShippingFee)
		if err != nil {
			return out, fmt.Errorf("order.shipping_fee: %w", err)
		}
		out.ShippingFee = fee
	}
	if cfg.FreeShippingThreshold != "" {
		threshold, err := decimal.NewFromString(cfg.FreeShippingThreshold)
		if err != nil {
			return out, fmt.Errorf("order.free_shipping_threshold: %w", err)
		}
		out.FreeShippingThreshold = &threshold
	}
	return out, nil
}

// setupScheduler registers the periodic jobs. The reconciler runs where the
// ledger lives and only releases reservations this instance placed itself;
// remote callers release their own through the stock API.
func (a *app) setupScheduler(movements *persistence.GormMovementRepository, orders *persistence.GormOrderRepository) {
	dispatcher := scheduler.NewDispatcher()
	var schedules []scheduler.Schedule

	if a.cfg.Inventory.ReconcileEnabled && !a.cfg.Inventory.IsRemote() {
		reconciler := inventoryapp.NewReservationReconciler(movements, orders, a.inventoryService,
			a.cfg.Inventory.ReservationGrace, a.log)
		reconciler.SetBatchSize(a.cfg.Inventory.ReconcileBatchLimit)
		dispatcher.Register(scheduler.JobReconcileReservations, func(ctx context.Context) error {
			stats, err := reconciler.ReconcileOrphanReservations(ctx, 0)
			if err != nil {
				return err
			}
			if stats.Released > 0 || stats.FailedReleases > 0 {
				a.log.Info("Released orphan reservations",
					zap.Int("inspected", stats.Inspected),
					zap.Int("released", stats.Released),
					zap.Int("failed", stats.FailedReleases),
				)
			}
			return nil
		})
		schedules = append(schedules, scheduler.Schedule{
			Kind:     scheduler.JobReconcileReservations,
			Interval: a.cfg.Inventory.ReconcileInterval,
		})
	}

	if a.cfg.Report.WarmEnabled {
		dispatcher.Register(scheduler.JobWarmDashboard, a.dashboard.Warm)
		schedules = append(schedules, scheduler.Schedule{
			Kind:       scheduler.JobWarmDashboard,
			Interval:   a.cfg.Report.WarmInterval,
			RunOnStart: true,
		})
	}

	if len(schedules) == 0 {
		return
	}
	a.scheduler = scheduler.NewScheduler(scheduler.DefaultSchedulerConfig(), dispatcher, a.log)
	a.scheduler.SetRecorder(scheduler.NewGormJobRunRepository(a.db.DB))
	a.trigger = scheduler.NewIntervalTrigger(a.scheduler, a.log, schedules...)
}

// Start launches the background workers
func (a *app) Start(ctx context.Context) error {
	if err := a.eventBus.Start(ctx); err != nil {
		return fmt.Errorf("start event bus: %w", err)
	}
	if a.broadcaster != nil {
		if err := a.broadcaster.Start(ctx); err != nil {
			return fmt.Errorf("start chat broadcaster: %w", err)
		}
	}
	if a.processor != nil {
		if err := a.processor.Start(ctx); err != nil {
			return fmt.Errorf("start outbox processor: %w", err)
		}
		a.log.Info("Outbox processor started",
			zap.Int("batch_size", a.cfg.Event.BatchSize),
			zap.Duration("poll_interval", a.cfg.Event.PollInterval),
		)
	}
	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		if err := a.trigger.Start(ctx); err != nil {
			return fmt.Errorf("start job trigger: %w", err)
		}
	}
	a.metrics.StartPeriodicCollection(ctx, stockMetricsInterval)
	return nil
}

// Stop halts the background workers in reverse start order
func (a *app) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	a.metrics.Stop()
	if a.trigger != nil {
		errs = append(errs, a.trigger.Stop(ctx))
	}
	if a.scheduler != nil {
		errs = append(errs, a.scheduler.Stop(ctx))
	}
	if a.processor != nil {
		errs = append(errs, a.processor.Stop(ctx))
	}
	if a.broadcaster != nil {
		errs = append(errs, a.broadcaster.Stop(ctx))
	}
	errs = append(errs, a.eventBus.Stop(ctx))
	if err := errors.Join(errs...); err != nil {
		a.log.Error("Error stopping background workers", zap.Error(err))
	}
}

// Close releases connections. It tolerates a partially built app.
func (a *app) Close() {
	if a.hub != nil {
		a.hub.Close()
	}
	if a.nats != nil {
		if err := a.nats.Drain(); err != nil {
			a.log.Warn("Error draining NATS connection", zap.Error(err))
		}
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.log.Error("Error closing cache backend", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Error("Error closing database", zap.Error(err))
		}
	}
}

// Handlers builds the HTTP layer
func (a *app) Handlers(name, version string) router.Handlers {
	checks := []handler.HealthCheck{{Name: "database", Ping: a.db.Ping}}
	if client := a.backend.Client(); client != nil {
		checks = append(checks, handler.HealthCheck{
			Name:     "redis",
			Optional: true,
			Ping:     func(ctx context.Context) error { return client.Ping(ctx).Err() },
		})
	}
	if conn := a.nats; conn != nil {
		checks = append(checks, handler.HealthCheck{
			Name:     "nats",
			Optional: true,
			Ping: func(context.Context) error {
				if !conn.IsConnected() {
					return fmt.Errorf("nats: %s", conn.Status())
				}
				return nil
			},
		})
	}

	return router.Handlers{
		Auth:      handler.NewAuthHandler(a.authService),
		User:      handler.NewUserHandler(a.userService),
		Product:   handler.NewProductHandler(a.productService, a.imageService),
		Inventory: handler.NewInventoryHandler(a.inventoryService),
		Cart:      handler.NewCartHandler(a.cartService),
		Order:     handler.NewOrderHandler(a.orderService),
		Support:   handler.NewSupportHandler(a.chatService, a.cfg.Support.HeartbeatInterval, a.log),
		Report:    handler.NewReportHandler(a.dashboard),
		Outbox:    handler.NewOutboxHandler(a.outboxService),
		System:    handler.NewSystemHandler(name, version, checks...),
	}
}
