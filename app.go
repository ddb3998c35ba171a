package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"medicare-scheduler/internal/config"
	"medicare-scheduler/internal/handlers"
	"medicare-scheduler/internal/logger"
	"medicare-scheduler/internal/middleware"
	"medicare-scheduler/internal/models"
	"medicare-scheduler/internal/notify"
	"medicare-scheduler/internal/queue"
	"medicare-scheduler/internal/reminder"
	"medicare-scheduler/internal/repository"
	"medicare-scheduler/internal/routes"
	"medicare-scheduler/internal/runlock"
	"medicare-scheduler/internal/scheduling"
	"medicare-scheduler/internal/telemetry"
	"medicare-scheduler/internal/transport"
	"medicare-scheduler/internal/websocket"
)

// app holds the long-lived dependencies shared by every subcommand.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB

	lock *runlock.RedisLock
	mq   *queue.RabbitMQ
	hub  *websocket.Hub

	appointments  *repository.AppointmentRepo
	notifications *repository.NotificationRepo
	directory     *repository.Directory
	dispatcher    *notify.Dispatcher
	breakers      map[string]handlers.BreakerState

	closers []func()
}

func loadConfig() (*config.Config, error) {
	// .env is optional, the environment wins
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return config.LoadConfig()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: log, hub: websocket.NewHub()}
	a.closers = append(a.closers, func() { _ = log.Sync() })

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, cfg.Environment)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.onClose(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.Warn("tracer shutdown failed", zap.Error(err))
		}
	})

	db, err := repository.Open(cfg.Database, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.db = db
	a.onClose(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	if cfg.Redis.Addr != "" {
		client, err := runlock.NewClient(ctx, cfg.Redis)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.lock = runlock.New(client, log)
		a.onClose(func() { client.Close() })
	}

	if cfg.RabbitMQ.URL != "" {
		mq, err := queue.Dial(cfg.RabbitMQ)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.mq = mq
		a.onClose(mq.Close)
	}

	a.appointments = repository.NewAppointmentRepo(db)
	a.notifications = repository.NewNotificationRepo(db)
	a.directory = repository.NewDirectory(db)
	a.dispatcher = notify.NewDispatcher(a.appointments, a.directory, a.notifications, a.senders(), notify.Options{
		Workers: cfg.Dispatch.Workers,
		Timeout: cfg.Dispatch.TransportTimeout,
		Retry: notify.RetryPolicy{
			Enabled:    cfg.Dispatch.RetryEnabled,
			MaxRetries: cfg.Dispatch.MaxRetries,
			Backoff:    cfg.Dispatch.RetryBackoff,
		},
		Channels: cfg.Channels,
	}, log)
	return a, nil
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// senders builds one transport per channel, each behind its own breaker.
// Channels without credentials log instead of sending.
func (a *app) senders() map[models.Channel]transport.Sender {
	console := func(ch models.Channel) transport.Sender {
		a.logger.Warn("channel not configured, deliveries are logged only", zap.String("channel", string(ch)))
		return &transport.ConsoleSender{Channel: string(ch), Logger: a.logger.Named("console")}
	}

	var sms, whatsapp, email transport.Sender
	tw := a.cfg.Twilio
	if tw.AccountSID != "" && tw.AuthToken != "" {
		api := transport.NewTwilioAPI(tw.AccountSID, tw.AuthToken)
		if tw.PhoneNumber != "" {
			sms = transport.NewSMSSender(api, tw.PhoneNumber)
		}
		if tw.WhatsAppNumber != "" {
			whatsapp = transport.NewWhatsAppSender(api, tw.WhatsAppNumber)
		}
	}
	if sms == nil {
		sms = console(models.ChannelSMS)
	}
	if whatsapp == nil {
		whatsapp = console(models.ChannelWhatsApp)
	}
	if a.mq != nil {
		email = transport.NewEmailSender(a.mq, a.mq.EmailRoutingKey(), a.cfg.RabbitMQ.EmailFrom)
	} else {
		email = console(models.ChannelEmail)
	}

	raw := map[models.Channel]transport.Sender{
		models.ChannelSMS:      sms,
		models.ChannelWhatsApp: whatsapp,
		models.ChannelEmail:    email,
		models.ChannelPush:     transport.NewPushSender(a.hub),
	}
	out := make(map[models.Channel]transport.Sender, len(raw))
	a.breakers = make(map[string]handlers.BreakerState, len(raw))
	for ch, sender := range raw {
		b := transport.WithBreaker(string(ch), sender)
		out[ch] = b
		a.breakers[string(ch)] = b
	}
	return out
}

func (a *app) sweeper() *reminder.Sweeper {
	return reminder.NewSweeper(a.notifications, a.cfg.Reminders.Retention, a.logger)
}

func (a *app) buildScheduler() *reminder.Scheduler {
	rc := a.cfg.Reminders
	evaluator := reminder.NewEvaluator(
		a.appointments,
		reminder.NewGate(a.appointments),
		a.dispatcher,
		rc.Offsets,
		rc.PollInterval,
		a.cfg.Dispatch.Workers,
		a.logger,
	)
	var lock reminder.RunLock
	if a.lock != nil {
		lock = a.lock
	}
	return reminder.NewScheduler(evaluator, a.sweeper(), rc.PollInterval, rc.CleanupInterval, lock, a.logger)
}

func (a *app) router() *gin.Engine {
	if a.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.CorrelationID(), middleware.RequestLogger(a.logger))

	// Configure CORS
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{a.cfg.Origin}
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.CorrelationIDHeader}
	corsConfig.ExposeHeaders = []string{middleware.CorrelationIDHeader}
	router.Use(cors.New(corsConfig))

	svc := scheduling.NewService(a.appointments, a.directory, a.dispatcher, a.logger)
	a.onClose(svc.Wait)

	var redisCheck handlers.Pinger
	if a.lock != nil {
		redisCheck = a.lock
	}
	var queueCheck handlers.ConnectionChecker
	if a.mq != nil {
		queueCheck = a.mq
	}

	routes.SetupRoutes(router, routes.Handlers{
		Appointments:  handlers.NewAppointmentHandler(svc),
		Notifications: handlers.NewNotificationHandler(a.notifications),
		WebSocket:     handlers.NewWebSocketHandler(a.hub, a.cfg.JWTSecret, a.cfg.Origin, a.logger),
		Health: handlers.NewHealthHandler(
			handlers.PingFunc(func(ctx context.Context) error { return repository.Ping(ctx, a.db) }),
			redisCheck,
			queueCheck,
			a.breakers,
		),
	}, a.cfg.JWTSecret)
	return router
}

func runServer(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := repository.Migrate(a.db); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           a.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	scheduler := a.buildScheduler()
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		scheduler.Start(ctx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("server running", zap.String("port", a.cfg.Port), zap.String("env", a.cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			cancel()
			<-schedulerDone
			return fmt.Errorf("http server: %w", err)
		}
	}

	a.logger.Info("shutting down server")
	cancel()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown failed", zap.Error(err))
	}
	<-schedulerDone
	a.logger.Info("server stopped")
	return nil
}
