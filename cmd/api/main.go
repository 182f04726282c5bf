package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/maplebug/helpdesk/internal/api/http"
	"github.com/maplebug/helpdesk/internal/api/http/handlers"
	"github.com/maplebug/helpdesk/internal/auth"
	"github.com/maplebug/helpdesk/internal/config"
	"github.com/maplebug/helpdesk/internal/events"
	"github.com/maplebug/helpdesk/internal/geoip"
	"github.com/maplebug/helpdesk/internal/observability"
	"github.com/maplebug/helpdesk/internal/persistence"
	"github.com/maplebug/helpdesk/internal/repository"
	"github.com/maplebug/helpdesk/internal/service"
	"github.com/maplebug/helpdesk/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	chatRepo := repository.NewChatRepository(redis.Client, cfg.Chat.HistoryLimit)

	resolver := geoip.NewHTTPResolver(cfg.GeoIP.BaseURL, cfg.GeoIP.Timeout(), logger)
	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: ticketRepo,
		Resolver:   resolver,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo: userRepo,
		Resolver: resolver,
	})
	chatService := service.NewChatService(chatRepo, cfg.Chat.PageSize)
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	authMiddleware := auth.NewMiddleware(authService.TokenManager(), userRepo)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Users:          handlers.NewUsersHandler(authService),
		Chat:           handlers.NewChatHandler(chatService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
