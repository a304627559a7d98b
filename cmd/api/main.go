package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roombook/internal/api"
	"roombook/internal/config"
	"roombook/internal/database"
	"roombook/internal/domain"
	"roombook/internal/events"
	"roombook/internal/export"
	"roombook/internal/logging"
	"roombook/internal/metrics"
	"roombook/internal/notify"
	"roombook/internal/repository"
	"roombook/internal/rooms"
	"roombook/internal/service"
	"roombook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(cfg.Database.Path, logging.Component(logger, "database"))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	aliases, err := rooms.NewAliasTable(cfg.RoomAliases)
	if err != nil {
		return fmt.Errorf("room aliases: %w", err)
	}
	roomService := service.NewRoomService(db, aliases, logging.Component(logger, "rooms"))
	if err := syncRooms(ctx, cfg, roomService); err != nil {
		logger.Error().Err(err).Msg("sync rooms")
		return err
	}

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}
	locker, limiter := initCoordination(cfg, redisClient, logger)

	eventBus := events.NewEventBus(logging.Component(logger, "events"))
	subscribeAudit(eventBus, logger)

	notificationWorker := initNotifications(cfg, db, redisClient, logger)
	var queue domain.NotificationQueue
	if notificationWorker != nil {
		queue = notificationWorker
		go notificationWorker.Start(ctx)
	}

	bookingService := service.NewBookingService(db, roomService, locker, eventBus, queue, service.Options{
		Location:    cfg.Location(),
		AutoConfirm: cfg.Booking.AutoConfirm,
		LockWait:    cfg.Booking.LockWait,
		Managers:    cfg.Managers,
	}, logging.Component(logger, "bookings"))
	go bookingService.RunCompletion(ctx, cfg.Booking.CompletionInterval)

	backupService := database.NewBackupService(db, cfg.Backup, logging.Component(logger, "backup"))
	go backupService.Start(ctx)

	startMetrics(ctx, cfg, logger)

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config; running background jobs only")
		<-ctx.Done()
		return nil
	}

	httpServer := api.NewHTTPServer(cfg.API, api.Deps{
		Bookings: bookingService,
		Rooms:    roomService,
		Exporter: export.New(cfg.Location()),
		Limiter:  limiter,
		Health:   db.Health,
		Logger:   logger,
	})

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, db.Health, logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}

	return startServers(ctx, grpcServer, httpServer, cfg, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

// syncRooms upserts the configured rooms, or loads the stored ones when the
// config lists none.
func syncRooms(ctx context.Context, cfg *config.Config, roomService *service.RoomService) error {
	if len(cfg.Rooms) == 0 {
		return roomService.Refresh(ctx)
	}
	return roomService.Sync(ctx, cfg.Rooms)
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing with in-process coordination")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// initCoordination picks the room locker and write limiter. With Redis they
// are shared across instances and fall back to in-process ones on outages.
func initCoordination(cfg *config.Config, client *redis.Client, logger *zerolog.Logger) (domain.RoomLocker, domain.RateLimiter) {
	memLocker := repository.NewMemoryRoomLocker()
	memLimiter := repository.NewMemoryRateLimiter()
	if client == nil {
		return memLocker, memLimiter
	}

	l := logging.Component(logger, "coordination")
	locker := repository.NewFailoverRoomLocker(repository.NewRedisRoomLocker(client, cfg.Booking.LockTTL), memLocker, l)
	limiter := repository.NewFailoverRateLimiter(repository.NewRedisRateLimiter(client), memLimiter, l)
	return locker, limiter
}

func initNotifications(cfg *config.Config, db *database.DB, client *redis.Client, logger *zerolog.Logger) *worker.NotificationWorker {
	if !cfg.Notifications.Enabled {
		return nil
	}

	var notifiers notify.Multi
	if client != nil {
		notifiers = append(notifiers, notify.NewRedisNotifier(client, cfg.Notifications.RedisChannelPrefix))
	}
	if tg := cfg.Notifications.Telegram; tg.BotToken != "" && len(tg.ManagerChatIDs) > 0 {
		telegram, err := notify.NewTelegramNotifier(tg.BotToken, tg.ManagerChatIDs, cfg.Location(), logging.Component(logger, "telegram"))
		if err != nil {
			logger.Warn().Err(err).Msg("telegram notifier init failed, continuing without it")
		} else {
			notifiers = append(notifiers, telegram)
		}
	}
	if len(notifiers) == 0 {
		logger.Warn().Msg("notifications enabled but no channel is configured")
		return nil
	}

	w := cfg.Notifications.Worker
	return worker.NewNotificationWorker(db, notifiers, client, worker.RetryPolicy{
		MaxRetries:    w.MaxRetries,
		InitialDelay:  w.InitialDelay,
		MaxDelay:      w.MaxDelay,
		BackoffFactor: w.BackoffFactor,
	}, w.PollInterval, logging.Component(logger, "notifications"))
}

// subscribeAudit logs every booking change and rejected commit.
func subscribeAudit(bus *events.EventBus, logger *zerolog.Logger) {
	audit := logging.Component(logger, "audit")
	handler := func(e *events.Event) error {
		var p events.BookingEventPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		audit.Info().
			Str("event", e.Type).
			Int64("booking_id", p.BookingID).
			Int64("room_id", p.RoomID).
			Str("status", p.Status).
			Str("conflict_date", p.ConflictDate).
			Msg("booking event")
		return nil
	}
	for _, t := range []string{
		events.EventBookingCreated,
		events.EventBookingConfirmed,
		events.EventBookingCancelled,
		events.EventBookingUpdated,
		events.EventBookingConflict,
	} {
		bus.Subscribe(t, handler)
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(ctx); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Bool("grpc", grpcServer != nil).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
