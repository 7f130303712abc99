// Package citycom собирает основное приложение: хранилища, клиенты,
// сервисы сверки платежей и HTTP сервер.
package citycom

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/citycom/internal/cache"
	"github.com/magabrotheeeer/citycom/internal/config"
	"github.com/magabrotheeeer/citycom/internal/identity"
	"github.com/magabrotheeeer/citycom/internal/lib/jwt"
	"github.com/magabrotheeeer/citycom/internal/migrations"
	"github.com/magabrotheeeer/citycom/internal/paymentprovider"
	"github.com/magabrotheeeer/citycom/internal/paymentreturn"
	"github.com/magabrotheeeer/citycom/internal/rabbitmq"
	"github.com/magabrotheeeer/citycom/internal/services/bootstrap"
	"github.com/magabrotheeeer/citycom/internal/services/notify"
	"github.com/magabrotheeeer/citycom/internal/services/reconcile"
	"github.com/magabrotheeeer/citycom/internal/services/verification"
	"github.com/magabrotheeeer/citycom/internal/session"
	"github.com/magabrotheeeer/citycom/internal/storage/repository"
)

// App основное приложение.
type App struct {
	server  *http.Server
	logger  *slog.Logger
	db      *repository.Storage
	amqp    *amqp.Connection
	unwatch func()
}

// New собирает приложение из конфигурации.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, "./migrations"); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	identClient := identity.NewClient(cfg.IdentityURL, cfg.IdentityAPIKey, cfg.IdentityTimeout)
	providerClient := paymentprovider.NewClient(cfg.MPAccessToken, cfg.MPBaseURL)
	tokenMaker := jwt.NewMaker(cfg.SessionSecretKey, cfg.SessionTTL)

	// Почтовая очередь вторична: без брокера приложение стартует,
	// а уведомления остаются только в Redis.
	var publisher notify.Publisher
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		logger.Warn("rabbitmq unavailable, email notifications disabled", slog.Any("err", err))
		conn = nil
	} else {
		ch, chErr := rabbitmq.SetupChannel(conn, cfg.RabbitMQPrefetch, rabbitmq.GetNotificationQueues())
		if chErr != nil {
			logger.Warn("rabbitmq channel setup failed, email notifications disabled", slog.Any("err", chErr))
			_ = conn.Close()
			conn = nil
		} else {
			publisher = rabbitmq.NewPublisher(ch)
		}
	}

	noticeService := notify.New(cacheRedis, publisher, logger, cfg.NoticeTTL)

	sessions := session.NewStore(identClient, noticeService, logger, cfg.InactivityTolerance)
	verifier := verification.New(providerClient, db, logger)
	machine := reconcile.New(verifier, db, sessions, noticeService, logger)
	bootstrapService := bootstrap.New(identClient, db, sessions, machine, logger)

	// Слушатель событий сессии: во время сверки платежа навигационный
	// эффект входа подавляется. Маршрут на сервере только журналируется,
	// навигацию выполняет клиент.
	unwatch := bootstrapService.Watch(ctx, func(route bootstrap.Route) {
		logger.Info("session change resolved to route", slog.String("route", string(route)))
	})

	// Защёлка переживает сам процесс сверки: повторный редирект той же
	// транзакции не должен запускать её заново и спустя часы.
	latch := paymentreturn.NewCacheLatch(cacheRedis, 24*time.Hour)
	detector := paymentreturn.New(latch, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg, RouteDeps{
		DB:               db,
		TokenMaker:       tokenMaker,
		Provider:         providerClient,
		Sessions:         sessions,
		Machine:          machine,
		Detector:         detector,
		BootstrapService: bootstrapService,
		Notices:          noticeService,
	})

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:  srv,
		logger:  logger,
		db:      db,
		amqp:    conn,
		unwatch: unwatch,
	}, nil
}

// Run запускает HTTP сервер и останавливает его при отмене контекста.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		a.unwatch()
		err := a.server.Shutdown(timeoutCtx)
		if a.amqp != nil {
			if closeErr := a.amqp.Close(); closeErr != nil {
				a.logger.Error("failed to close rabbitmq connection", slog.Any("err", closeErr))
			}
		}
		if closeErr := a.db.DB.Close(); closeErr != nil {
			a.logger.Error("failed to close database", slog.Any("err", closeErr))
		}
		return err
	}
}
