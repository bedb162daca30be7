package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/j-arredondo/cleansched/internal/booking"
	"github.com/j-arredondo/cleansched/internal/handlers"
	"github.com/j-arredondo/cleansched/internal/outbox"
	"github.com/j-arredondo/cleansched/internal/payments"
	"github.com/j-arredondo/cleansched/internal/schedule"
	"github.com/j-arredondo/cleansched/internal/storage"
	"github.com/j-arredondo/cleansched/libs/config"
	"github.com/j-arredondo/cleansched/libs/db"
	"github.com/j-arredondo/cleansched/libs/httpx"
	"github.com/j-arredondo/cleansched/libs/kafkax"
	"github.com/j-arredondo/cleansched/libs/otelx"
	"github.com/j-arredondo/cleansched/libs/runtime"
)

func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func main() {
	service := config.String("SERVICE_NAME", "scheduling-service")
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

	loc := config.Location("TIMEZONE")

	serviceRepo := storage.NewServiceRepository(pool)
	employeeRepo := storage.NewEmployeeRepository(pool)
	overrideRepo := storage.NewOverrideRepository(pool)
	apptRepo := storage.NewAppointmentRepository(pool)
	quoteRepo := storage.NewQuoteRepository(pool)
	paymentRepo := storage.NewPaymentRepository(pool)
	staffRepo := storage.NewStaffRepository(pool)
	outboxRepo := outbox.NewRepository(pool)

	var rdb *redis.Client
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()
	}

	calendar := schedule.NewCalendar(overrideRepo, logger)
	detector := schedule.NewDetector(apptRepo)
	engine := schedule.NewEngine(employeeRepo, calendar, detector, logger)
	resolver := schedule.NewResolver(engine, employeeRepo)
	slotLock := booking.NewSlotLock(rdb, time.Duration(config.Int("SLOT_LOCK_TTL_SECONDS", 10))*time.Second)
	booker := booking.NewBooker(serviceRepo, apptRepo, quoteRepo, outboxRepo, resolver, engine, slotLock, logger)

	deposits := payments.NewDeposits(paymentRepo, booker, logger, payments.Config{
		SecretKey:   config.String("STRIPE_SECRET_KEY", ""),
		AmountCents: int64(config.Int("DEPOSIT_AMOUNT_CENTS", 0)),
		Currency:    config.String("DEPOSIT_CURRENCY", "usd"),
	})

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	jwtSecret := config.String("JWT_SECRET", "dev-secret")
	availabilityHandler := handlers.NewAvailabilityHandler(serviceRepo, employeeRepo, engine, loc, logger)
	bookingHandler := handlers.NewBookingHandler(booker, apptRepo, deposits, loc, logger)
	staffHandler := handlers.NewStaffHandler(staffRepo, jwtSecret, logger)
	adminHandler := handlers.NewAdminHandler(serviceRepo, employeeRepo, overrideRepo, quoteRepo, booker, loc, logger)
	webhookHandler := handlers.NewStripeWebhookHandler(paymentRepo, deposits,
		config.String("STRIPE_WEBHOOK_SECRET", ""),
		time.Duration(config.Int("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 300))*time.Second,
		logger)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	}
	if rdb != nil {
		readyChecks = append(readyChecks, runtime.ReadyCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)

	mux.HandleFunc("/api/v1/public/services", availabilityHandler.Services)
	mux.HandleFunc("/api/v1/public/slots", availabilityHandler.Slots)
	mux.HandleFunc("/api/v1/public/availability/check", availabilityHandler.Check)
	mux.HandleFunc("/api/v1/public/quotes", bookingHandler.RequestQuote)
	mux.HandleFunc("/api/v1/public/book", bookingHandler.Book)
	mux.HandleFunc("/api/v1/public/book/deposit", bookingHandler.Deposit)
	mux.HandleFunc("/api/v1/webhooks/stripe", webhookHandler.Handle)
	mux.HandleFunc("/api/v1/staff/login", staffHandler.Login)

	staffOnly := func(h http.HandlerFunc) http.Handler {
		return handlers.RequireAuth(handlers.RequireRole(h, "staff", "admin"), jwtSecret)
	}
	adminOnly := func(h http.HandlerFunc) http.Handler {
		return handlers.RequireAuth(handlers.RequireRole(h, "admin"), jwtSecret)
	}

	mux.Handle("/api/v1/appointments", staffOnly(bookingHandler.List))
	mux.Handle("/api/v1/appointments/get", staffOnly(bookingHandler.Get))
	mux.Handle("/api/v1/appointments/cancel", staffOnly(bookingHandler.Cancel))
	mux.Handle("/api/v1/appointments/reschedule", staffOnly(bookingHandler.Reschedule))
	mux.Handle("/api/v1/appointments/status", staffOnly(bookingHandler.UpdateStatus))
	mux.Handle("/api/v1/admin/quotes", staffOnly(adminHandler.Quotes))
	mux.Handle("/api/v1/admin/services", adminOnly(adminHandler.Services))
	mux.Handle("/api/v1/admin/services/status", adminOnly(adminHandler.ServiceStatus))
	mux.Handle("/api/v1/admin/employees", adminOnly(adminHandler.Employees))
	mux.Handle("/api/v1/admin/employees/status", adminOnly(adminHandler.EmployeeStatus))
	mux.Handle("/api/v1/admin/employees/working-hours", adminOnly(adminHandler.WorkingHours))
	mux.Handle("/api/v1/admin/overrides", adminOnly(adminHandler.Overrides))
	mux.Handle("/api/v1/admin/staff", adminOnly(staffHandler.Register))

	if err := startGrpcServer(ctx, logger, serviceRepo, employeeRepo, engine, loc); err != nil {
		logger.Error("grpc server failed to start", "err", err)
	}

	var rateLimitMW httpx.Middleware
	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if rdb != nil {
		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS")),
			AllowedHeaders: parseList(config.String("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id,Idempotency-Key")),
		}),
		httpx.WithRequestID,
		rateLimitMW,
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(time.Duration(config.Int("REQUEST_TIMEOUT_SECONDS", 15))*time.Second),
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduling")

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
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
