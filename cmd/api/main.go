package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/kojjob/property-marketplace-sub000/internal/app"
	"github.com/kojjob/property-marketplace-sub000/internal/audit"
	"github.com/kojjob/property-marketplace-sub000/internal/clock"
	"github.com/kojjob/property-marketplace-sub000/internal/config"
	"github.com/kojjob/property-marketplace-sub000/internal/gateway"
	"github.com/kojjob/property-marketplace-sub000/internal/notify"
	"github.com/kojjob/property-marketplace-sub000/internal/obs"
	"github.com/kojjob/property-marketplace-sub000/internal/storage/postgres"
	transporthttp "github.com/kojjob/property-marketplace-sub000/internal/transport/http"
	"github.com/kojjob/property-marketplace-sub000/migrations"
)

const (
	serviceName     = "marketplace-api"
	shutdownTimeout = 10 * time.Second
)

func main() {
	logger := logrus.New()
	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	configureLogger(logger, cfg)

	startupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownTracer, err := obs.InitTracer(startupCtx, serviceName, cfg.Env, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatalf("init tracer: %v", err)
	}

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("connect to db: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		logger.Fatalf("db ping: %v", err)
	}
	if err := migrations.Apply(startupCtx, pool, logger); err != nil {
		logger.Fatalf("apply migrations: %v", err)
	}

	gw, err := newGateway(cfg, logger)
	if err != nil {
		logger.Fatalf("payment gateway: %v", err)
	}

	sinks, closeSinks := newSinks(cfg, logger)
	dispatcher := notify.NewDispatcher(logger, cfg.NotifyTimeout, sinks...)

	clk := clock.NewSystem()
	bookingSvc := app.NewBookingService(
		postgres.NewBookingRepository(pool), clk,
		app.WithBookingNotifier(dispatcher),
		app.WithBookingLogger(logger),
	)
	ledger := app.NewLedger(
		postgres.NewPaymentRepository(pool), gw, clk,
		app.WithLedgerNotifier(dispatcher),
		app.WithLedgerLogger(logger),
	)
	chargeSvc := app.NewChargeService(ledger,
		app.WithChargeNotifier(dispatcher),
		app.WithChargeLogger(logger),
	)

	var limiter *transporthttp.RateLimiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		if err := rdb.Ping(startupCtx).Err(); err != nil {
			logger.Warnf("redis ping failed, rate limiter will fail open: %v", err)
		}
		limiter = transporthttp.NewRateLimiter(rdb, cfg.RateLimitPerMinute, logger)
	}

	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := transporthttp.NewRouter(transporthttp.RouterDeps{
		Bookings:    bookingSvc,
		Charges:     chargeSvc,
		Payments:    ledger,
		Logger:      logger,
		CORSOrigins: cfg.CORSOrigins,
		JWTSecret:   []byte(cfg.JWTSecret),
		RateLimiter: limiter,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Infof("api listening on :%s", cfg.Port)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server error: %v", err)
		}
	case <-stopCtx.Done():
		logger.Info("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("server shutdown error: %v", err)
	}
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		logger.Warnf("pending notifications dropped: %v", err)
	}
	closeSinks()
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Warnf("tracer shutdown: %v", err)
	}
	logger.Info("server stopped")
}

func configureLogger(logger *logrus.Logger, cfg config.Config) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warnf("unknown LOG_LEVEL %q, using info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.Env != "dev" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
}

func newGateway(cfg config.Config, logger logrus.FieldLogger) (app.PaymentGateway, error) {
	opts := []gateway.Option{
		gateway.WithTimeout(cfg.GatewayTimeout),
		gateway.WithRetries(cfg.GatewayMaxRetries),
		gateway.WithBackoff(cfg.GatewayBackoff),
		gateway.WithLogger(logger),
	}

	var next gateway.PaymentGateway
	switch strings.ToLower(cfg.Gateway) {
	case "stripe":
		next = gateway.NewStripe(cfg.StripeSecretKey, cfg.GatewayTimeout)
	case "omise":
		o, err := gateway.NewOmise(cfg.OmisePublicKey, cfg.OmiseSecretKey)
		if err != nil {
			return nil, err
		}
		next = o
		// Omise charges carry no idempotency key, so a retry could charge twice.
		opts = append(opts, gateway.WithRetries(0))
	default:
		logger.Warn("PAYMENT_GATEWAY=fake, charges are simulated")
		next = gateway.NewFake()
	}
	return gateway.NewResilient(next, opts...), nil
}

// newSinks builds the notification sinks for the configured integrations.
// The returned func closes their connections.
func newSinks(cfg config.Config, logger logrus.FieldLogger) ([]notify.Sink, func()) {
	sinks := []notify.Sink{notify.LogSink{Logger: logger}}
	var closers []func() error

	if cfg.RabbitURL != "" {
		pub, err := notify.NewAMQPPublisher(cfg.RabbitURL, cfg.NotifyExchange)
		if err != nil {
			logger.Warnf("rabbitmq unavailable, events will not be published: %v", err)
		} else {
			sinks = append(sinks, pub)
			closers = append(closers, pub.Close)
		}
	}

	if len(cfg.ScyllaHosts) > 0 {
		journal, err := audit.NewJournal(cfg.ScyllaHosts, cfg.ScyllaKeyspace, cfg.NotifyTimeout)
		if err != nil {
			logger.Warnf("audit journal unavailable: %v", err)
		} else {
			sinks = append(sinks, journal)
			closers = append(closers, func() error { journal.Close(); return nil })
		}
	}

	return sinks, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warnf("close sink: %v", err)
			}
		}
	}
}
