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
	"github.com/pawmeet/pawmeet/services/profile-service/internal/handlers"
	"github.com/pawmeet/pawmeet/services/profile-service/internal/outbox"
	"github.com/pawmeet/pawmeet/services/profile-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "profile-service")
	port, err := config.Port("PORT", "8082")
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

	repo := storage.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	httpHandler := handlers.New(repo, outboxRepo, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("POST /api/v1/profile/pets", httpHandler.CreatePet)
	mux.HandleFunc("GET /api/v1/profile/pets", httpHandler.ListMyPets)
	mux.HandleFunc("GET /api/v1/profile/pets/{id}", httpHandler.GetPet)
	mux.HandleFunc("PUT /api/v1/profile/pets/{id}", httpHandler.UpdatePet)
	mux.HandleFunc("DELETE /api/v1/profile/pets/{id}", httpHandler.DeactivatePet)
	mux.HandleFunc("POST /api/v1/profile/matches", httpHandler.CreateMatch)
	mux.HandleFunc("GET /api/v1/profile/matches", httpHandler.ListMyMatches)
	mux.HandleFunc("GET /api/v1/profile/matches/{id}", httpHandler.GetMatch)
	mux.HandleFunc("POST /api/v1/profile/matches/{id}/end", httpHandler.EndMatch)
	mux.HandleFunc("POST /api/v1/profile/matches/{id}/block", httpHandler.BlockMatch)
	mux.HandleFunc("POST /api/v1/profile/consent", httpHandler.RecordConsent)
	mux.HandleFunc("GET /api/v1/profile/consent/mine", httpHandler.ListMyConsents)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "profile")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	if err := startGrpcServer(ctx, logger, pool, repo); err != nil {
		logger.Error("grpc server failed to start", "err", err)
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
