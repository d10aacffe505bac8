package main

import (
	"context"
	"net/http"
	"time"

	"github.com/pawmeet/pawmeet/libs/config"
	"github.com/pawmeet/pawmeet/libs/db"
	"github.com/pawmeet/pawmeet/libs/httpx"
	"github.com/pawmeet/pawmeet/libs/kafkax"
	otelx "github.com/pawmeet/pawmeet/libs/otel"
	"github.com/pawmeet/pawmeet/libs/runtime"
	"github.com/pawmeet/pawmeet/services/appointment-service/internal/consumer"
	"github.com/pawmeet/pawmeet/services/appointment-service/internal/handlers"
	"github.com/pawmeet/pawmeet/services/appointment-service/internal/inbox"
	"github.com/pawmeet/pawmeet/services/appointment-service/internal/match"
	"github.com/pawmeet/pawmeet/services/appointment-service/internal/moderation"
	"github.com/pawmeet/pawmeet/services/appointment-service/internal/outbox"
	"github.com/pawmeet/pawmeet/services/appointment-service/internal/service"
	"github.com/pawmeet/pawmeet/services/appointment-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	serviceName := config.String("SERVICE_NAME", "appointment-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(serviceName)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(serviceName))
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

	appointmentRepo := storage.NewAppointmentRepository(pool)
	locationRepo := storage.NewLocationRepository(pool)
	matchRepo := storage.NewMatchRepository(pool)
	outboxRepo := outbox.NewRepository(pool)

	// The local match cache is authoritative for precondition checks; the
	// profile-service gRPC lookup is layered on top when configured.
	matchProvider, err := match.NewProfileProvider(config.String("PROFILE_GRPC_ADDR", ""), match.NewCacheProvider(matchRepo))
	if err != nil {
		logger.Error("match provider init failed; using cache only", "err", err)
		matchProvider = match.NewCacheProvider(matchRepo)
	}

	var moderationProvider moderation.Provider = moderation.NewNoopProvider()
	if url := config.String("MODERATION_WEBHOOK_URL", ""); url != "" {
		moderationProvider = moderation.NewWebhookProvider(url, config.String("MODERATION_WEBHOOK_TOKEN", ""))
	}

	svc := service.New(appointmentRepo, locationRepo, outboxRepo, matchProvider, moderationProvider, service.Config{
		MaxCounterOffers: config.Int("COUNTER_OFFER_MAX", 3),
	}, logger)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	inboxRepo := inbox.NewRepository(pool)
	matchHandler := consumer.MatchHandler(matchRepo, logger)
	for _, topic := range []string{
		config.String("KAFKA_CONSUME_TOPIC", "match.created.v1"),
		config.String("KAFKA_CONSUME_TOPIC_2", "match.updated.v1"),
	} {
		if topic == "" {
			continue
		}
		eventConsumer := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "appointment-service"),
			Topic:   topic,
		}, matchHandler)
		go eventConsumer.Run(ctx)
	}

	appointmentHandler := handlers.NewAppointmentHandler(svc, logger)
	locationHandler := handlers.NewLocationHandler(locationRepo, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("POST /api/v1/appointments", appointmentHandler.Create)
	mux.HandleFunc("GET /api/v1/appointments", appointmentHandler.List)
	mux.HandleFunc("POST /api/v1/appointments/validate", appointmentHandler.ValidatePreconditions)
	mux.HandleFunc("GET /api/v1/appointments/{id}", appointmentHandler.Get)
	mux.HandleFunc("POST /api/v1/appointments/{id}/accept", appointmentHandler.Accept)
	mux.HandleFunc("POST /api/v1/appointments/{id}/decline", appointmentHandler.Decline)
	mux.HandleFunc("POST /api/v1/appointments/{id}/counter-offer", appointmentHandler.CounterOffer)
	mux.HandleFunc("POST /api/v1/appointments/{id}/cancel", appointmentHandler.Cancel)
	mux.HandleFunc("POST /api/v1/appointments/{id}/check-in", appointmentHandler.CheckIn)
	mux.HandleFunc("GET /api/v1/admin/appointments", appointmentHandler.AdminList)
	mux.HandleFunc("GET /api/v1/locations", locationHandler.List)
	mux.HandleFunc("POST /api/v1/locations", locationHandler.Create)
	mux.HandleFunc("GET /api/v1/locations/{id}", locationHandler.Get)
	mux.HandleFunc("DELETE /api/v1/locations/{id}", locationHandler.Deactivate)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "appointment")
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
