package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/ardanlabs/conf/v3"
	"github.com/joho/godotenv"
	mystic "github.com/phbpx/mystic-services"
	"github.com/phbpx/mystic-services/booking"
	"github.com/phbpx/mystic-services/calendar"
	"github.com/phbpx/mystic-services/catalog"
	"github.com/phbpx/mystic-services/handler"
	"github.com/phbpx/mystic-services/intake"
	"github.com/phbpx/mystic-services/payment"
	"github.com/phbpx/mystic-services/payment/stripecheckout"
	"github.com/phbpx/mystic-services/pkg/auth"
	"github.com/phbpx/mystic-services/pkg/cache"
	"github.com/phbpx/mystic-services/pkg/database"
	"github.com/phbpx/mystic-services/pkg/metrics"
	"github.com/phbpx/mystic-services/pkg/mq"
	"github.com/phbpx/mystic-services/sqlstore"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {

	log, err := newLog("mystic-api")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run("mystic-api", log); err != nil {
		log.Errorw("startup", "err", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(serverName string, log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	cfg := struct {
		Http struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:40s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			Host            string        `conf:"default:0.0.0.0:3000"`
			CORSOrigins     []string      `conf:"default:*"`
		}
		DB struct {
			Driver       string `conf:"default:postgres"`
			User         string `conf:"default:mystic"`
			Password     string `conf:"default:mystic,mask"`
			Host         string `conf:"default:localhost"`
			Name         string `conf:"default:mystic"`
			MaxIdleConns int    `conf:"default:0"`
			MaxOpenConns int    `conf:"default:0"`
			DisableTLS   bool   `conf:"default:true"`
		}
		Schedule struct {
			Open     time.Duration `conf:"default:14h"`
			Close    time.Duration `conf:"default:22h"`
			SlotSize time.Duration `conf:"default:20m"`
			TimeZone string        `conf:"default:America/Sao_Paulo"`
		}
		Payment struct {
			StripeKey     string        `conf:"mask"`
			WebhookSecret string        `conf:"mask"`
			Currency      string        `conf:"default:brl"`
			PollInterval  time.Duration `conf:"default:2s"`
			MaxAttempts   int           `conf:"default:10"`
		}
		Catalog struct {
			Path string
		}
		Redis struct {
			Address  string
			Password string        `conf:"mask"`
			DB       int           `conf:"default:0"`
			PoolSize int           `conf:"default:10"`
			TTL      time.Duration `conf:"default:30s"`
		}
		Rabbit struct {
			URL      string `conf:"mask"`
			Exchange string `conf:"default:mystic.events"`
		}
		Admin struct {
			Password  string        `conf:"mask"`
			JWTSecret string        `conf:"mask"`
			TokenTTL  time.Duration `conf:"default:12h"`
		}
		Jaeger struct {
			ReporterURI string  `conf:"default:http://localhost:14268/api/traces"`
			ServiceName string  `conf:"default:mystic-api"`
			Probability float64 `conf:"default:0.5"`
		}
	}{}

	// The .env file is optional.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	help, err := conf.Parse("RITUAL", &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	switch {
	case cfg.Payment.StripeKey == "":
		return errors.New("RITUAL_PAYMENT_STRIPE_KEY is required")
	case cfg.Admin.Password == "" || cfg.Admin.JWTSecret == "":
		return errors.New("RITUAL_ADMIN_PASSWORD and RITUAL_ADMIN_JWT_SECRET are required")
	}

	// =========================================================================
	// Database Support

	// Create connectivity to the database.
	log.Infow("startup", "status", "initializing database support", "driver", cfg.DB.Driver, "host", cfg.DB.Host)

	db, err := database.Open(database.Config{
		Driver:       cfg.DB.Driver,
		User:         cfg.DB.User,
		Password:     cfg.DB.Password,
		Host:         cfg.DB.Host,
		Name:         cfg.DB.Name,
		MaxIdleConns: cfg.DB.MaxIdleConns,
		MaxOpenConns: cfg.DB.MaxOpenConns,
		DisableTLS:   cfg.DB.DisableTLS,
	})
	if err != nil {
		return fmt.Errorf("connecting to db: %w", err)
	}
	defer func() {
		log.Infow("shutdown", "status", "stopping database support", "host", cfg.DB.Host)
		db.Close()
	}()

	// =========================================================================
	// Update database schema

	log.Infow("startup", "status", "updating database schema", "database", cfg.DB.Name, "host", cfg.DB.Host)

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelMigrate()

	if err := database.Migrate(migrateCtx, db); err != nil {
		return fmt.Errorf("updating database schema: %w", err)
	}

	// =========================================================================
	// Start Tracing Support

	log.Infow("startup", "status", "initializing OT/Jaeger tracing support")

	traceProvider, err := startTracing(
		cfg.Jaeger.ServiceName,
		cfg.Jaeger.ReporterURI,
		cfg.Jaeger.Probability,
	)
	if err != nil {
		return fmt.Errorf("starting tracing: %w", err)
	}
	defer traceProvider.Shutdown(context.Background())

	metrics.Register()

	// =========================================================================
	// Domain Support

	log.Infow("startup", "status", "initializing domain support")

	otelLog := otelzap.New(log.Desugar(), otelzap.WithStackTrace(true)).Sugar()

	loc, err := time.LoadLocation(cfg.Schedule.TimeZone)
	if err != nil {
		return fmt.Errorf("loading time zone: %w", err)
	}
	schedule := calendar.Schedule{
		Open:     cfg.Schedule.Open,
		Close:    cfg.Schedule.Close,
		SlotSize: cfg.Schedule.SlotSize,
		Location: loc,
	}
	if err := schedule.Validate(); err != nil {
		return err
	}

	services := catalog.Default()
	if cfg.Catalog.Path != "" {
		if services, err = catalog.Load(cfg.Catalog.Path); err != nil {
			return err
		}
	}

	events, closeEvents, err := newPublisher(mq.Config{URL: cfg.Rabbit.URL, Exchange: cfg.Rabbit.Exchange}, log)
	if err != nil {
		return err
	}
	defer closeEvents()

	store := sqlstore.New(db)
	reservations, closeCache, err := newReservationStore(store, cache.Config{
		Address:  cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}, cfg.Redis.TTL, otelLog)
	if err != nil {
		return err
	}
	defer closeCache()

	issuer := auth.NewIssuer(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL)
	admin, err := auth.NewAdmin(cfg.Admin.Password, issuer)
	if err != nil {
		return err
	}

	provider := stripecheckout.New(cfg.Payment.StripeKey, nil)
	ledger := booking.NewLedger(schedule, reservations, events, otelLog)
	poller := payment.NewPoller(provider, store, events, otelLog,
		payment.WithInterval(cfg.Payment.PollInterval),
		payment.WithMaxAttempts(cfg.Payment.MaxAttempts),
	)
	intakes := intake.NewService(store, store, events, otelLog)

	api := handler.API{
		ServerName:  serverName,
		CORSOrigins: cfg.Http.CORSOrigins,
		Storefront:  handler.NewStorefrontHandler(
			services,
			calendar.New(schedule, reservations),
			ledger,
			payment.NewInitiator(services, provider, cfg.Payment.Currency, otelLog),
			poller,
			intakes,
			otelLog,
		),
		Admin:     handler.NewAdminHandler(admin, ledger, intakes, otelLog),
		Readiness: func(ctx context.Context) error { return database.StatusCheck(ctx, db) },
		Metrics:   promhttp.Handler(),
	}
	if cfg.Payment.WebhookSecret != "" {
		api.Webhook = handler.NewWebhookHandler(stripecheckout.NewWebhook(cfg.Payment.WebhookSecret), poller, otelLog)
	}

	// =========================================================================
	// Start API Server

	log.Infow("startup", "status", "initializing http server", "host", cfg.Http.Host)

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	server := &http.Server{
		Addr:         cfg.Http.Host,
		Handler:      handler.Routes(api),
		ReadTimeout:  cfg.Http.ReadTimeout,
		WriteTimeout: cfg.Http.WriteTimeout,
		IdleTimeout:  cfg.Http.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Http.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			server.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	return nil
}

func newPublisher(cfg mq.Config, log *zap.SugaredLogger) (mystic.Publisher, func(), error) {
	if cfg.URL == "" {
		log.Infow("startup", "status", "event publishing disabled")
		return mq.Discard{}, func() {}, nil
	}

	log.Infow("startup", "status", "initializing rabbitmq publisher", "exchange", cfg.Exchange)

	pub, err := mq.NewPublisher(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to rabbitmq: %w", err)
	}
	return pub, func() { pub.Close() }, nil
}

func newReservationStore(store *sqlstore.Store, cfg cache.Config, ttl time.Duration, log *otelzap.SugaredLogger) (mystic.ReservationStore, func(), error) {
	if cfg.Address == "" {
		return store, func() {}, nil
	}

	log.Infow("startup", "status", "initializing redis availability cache", "address", cfg.Address)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cached, err := cache.New(ctx, cfg, store, ttl, log)
	if err != nil {
		return nil, nil, err
	}
	return cached, func() { cached.Close() }, nil
}

func newLog(serviceName string) (*zap.SugaredLogger, error) {
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{"stdout"}
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.DisableStacktrace = true
	config.InitialFields = map[string]interface{}{
		"service": serviceName,
	}

	log, err := config.Build()
	if err != nil {
		return nil, err
	}

	return log.Sugar(), nil
}

func startTracing(serviceName, reporterURL string, probability float64) (*tracesdk.TracerProvider, error) {
	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(reporterURL)))
	if err != nil {
		return nil, fmt.Errorf("creating new exporter: %w", err)
	}

	tp := tracesdk.NewTracerProvider(
		tracesdk.WithSampler(tracesdk.ParentBased(tracesdk.TraceIDRatioBased(probability))),
		tracesdk.WithBatcher(exp,
			tracesdk.WithMaxExportBatchSize(tracesdk.DefaultMaxExportBatchSize),
			tracesdk.WithBatchTimeout(tracesdk.DefaultScheduleDelay*time.Millisecond),
		),
		tracesdk.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
			attribute.String("exporter", "jaeger"),
		)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp, nil
}
