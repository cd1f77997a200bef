package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/torim-app/torim/internal/httpapi"
	"github.com/torim-app/torim/internal/observability/metrics"
	"github.com/torim-app/torim/internal/outbox"
	"github.com/torim-app/torim/internal/schedule"
	"github.com/torim-app/torim/internal/settings"
	"github.com/torim-app/torim/internal/storage"
	"github.com/torim-app/torim/internal/timeutil"
	"github.com/torim-app/torim/internal/whatsapp"
	"github.com/torim-app/torim/internal/worker"
	"github.com/torim-app/torim/libs/config"
	"github.com/torim-app/torim/libs/db"
	"github.com/torim-app/torim/libs/httpx"
	"github.com/torim-app/torim/libs/kafkax"
	otelx "github.com/torim-app/torim/libs/otel"
	"github.com/torim-app/torim/libs/runtime"
)

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "torim")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	zone, err := timeutil.LoadZone(config.String("TIMEZONE", timeutil.DefaultZoneName))
	if err != nil {
		logger.Error("timezone load failed", "err", err)
		panic(err)
	}
	clock := timeutil.SystemClock()

	settingsCache := settings.NewCache(settings.NewRepository(pool), clock, settings.DefaultCacheTTL)
	evaluator := schedule.NewEvaluator(zone, clock)

	consultantRepo := storage.NewConsultantRepository(pool)
	appointmentRepo := storage.NewAppointmentRepository(pool)
	queueRepo := storage.NewQueueRepository(pool)

	outboxRepo := outbox.NewRepository()
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	broker := whatsapp.NewBroker()
	var sender worker.Sender
	var channel httpapi.Channel
	switch strings.ToLower(config.String("WHATSAPP_PROVIDER", "whatsmeow")) {
	case "noop":
		sender = whatsapp.NewNoopSender(logger)
	default:
		client, err := whatsapp.NewClient(whatsapp.Config{
			SessionDSN: config.String("WHATSAPP_SESSION_DSN", whatsapp.DefaultSessionDSN),
			PrintQR:    config.String("WHATSAPP_PRINT_QR", "true") == "true",
		}, broker, logger)
		if err != nil {
			logger.Error("whatsapp client init failed", "err", err)
			panic(err)
		}
		if err := client.Connect(ctx); err != nil {
			// The queue keeps reminders durable while the channel is down;
			// pairing can happen later through /api/whatsapp/refresh.
			logger.Error("whatsapp connect failed", "err", err)
		}
		defer client.Disconnect()
		sender = client
		channel = client
	}

	queueMetrics := metrics.NewQueueMetrics(nil)
	queueWorker := worker.New(queueRepo, sender, logger, worker.Config{
		BatchSize:   config.Int("WORKER_BATCH_SIZE", worker.DefaultBatchSize),
		SendTimeout: config.Duration("WORKER_SEND_TIMEOUT", worker.DefaultSendTimeout),
		Clock:       clock,
		Events:      worker.NewOutboxSink(pool, outboxRepo),
		Metrics:     queueMetrics,
	})
	go queueWorker.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.Handle("GET /metrics", promhttp.Handler())

	handlers := httpapi.Handlers{
		Consultants:  httpapi.NewConsultantHandler(consultantRepo, logger),
		Appointments: httpapi.NewAppointmentHandler(appointmentRepo, consultantRepo, queueRepo, outboxRepo, settingsCache, evaluator, zone, queueWorker, logger),
		Settings:     httpapi.NewSettingsHandler(settingsCache, logger),
	}
	if channel != nil {
		handlers.WhatsApp = httpapi.NewWhatsAppHandler(channel, broker, logger)
	}
	handlers.Register(mux)

	middlewares := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1 << 20),
		httpx.WithTimeout(config.Duration("HTTP_TIMEOUT", 60*time.Second)),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: kafkax.SplitBrokers(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		}),
	}
	rateLimit := config.Int("RATE_LIMIT", 120)
	rateWindow := config.Duration("RATE_LIMIT_WINDOW", time.Minute)
	if redisAddr := config.String("REDIS_ADDR", ""); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		defer rdb.Close()
		limiter := httpx.NewRedisRateLimiter(rdb, rateLimit, rateWindow, service)
		middlewares = append(middlewares, limiter.Middleware(logger, true))
	} else {
		middlewares = append(middlewares, httpx.NewRateLimiter(rateLimit, rateWindow).Middleware())
	}

	handler := httpx.Chain(mux, middlewares...)
	handler = otelhttp.NewHandler(handler, service)

	root := http.NewServeMux()
	handlers.RegisterSocket(root)
	root.Handle("/", handler)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           root,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
