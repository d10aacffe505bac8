package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pawmeet/pawmeet/libs/config"
	"github.com/pawmeet/pawmeet/libs/db"
	"github.com/pawmeet/pawmeet/libs/httpx"
	"github.com/pawmeet/pawmeet/libs/kafkax"
	otelx "github.com/pawmeet/pawmeet/libs/otel"
	"github.com/pawmeet/pawmeet/libs/runtime"
	"github.com/pawmeet/pawmeet/services/scheduler-service/internal/consumer"
	"github.com/pawmeet/pawmeet/services/scheduler-service/internal/inbox"
	"github.com/pawmeet/pawmeet/services/scheduler-service/internal/jobs"
	"github.com/pawmeet/pawmeet/services/scheduler-service/internal/outbox"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func parseReminderOffsets(raw string, logger *slog.Logger) []time.Duration {
	var offsets []time.Duration
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mins, err := strconv.Atoi(part)
		if err != nil || mins <= 0 {
			logger.Warn("invalid reminder offset", "value", part)
			continue
		}
		offsets = append(offsets, time.Duration(mins)*time.Minute)
	}
	if len(offsets) == 0 {
		offsets = []time.Duration{24 * time.Hour, 1 * time.Hour}
	}
	return offsets
}

type appointmentEvent struct {
	AppointmentID string `json:"appointment_id"`
	MatchID       string `json:"match_id"`
	InviterUserID string `json:"inviter_user_id"`
	InviteeUserID string `json:"invitee_user_id"`
	ScheduledAt   string `json:"scheduled_at"`
	LocationID    string `json:"location_id"`
	Activity      string `json:"activity"`
	Status        string `json:"status"`
}

func main() {
	service := config.String("SERVICE_NAME", "scheduler-service")
	port, err := config.Port("PORT", "8087")
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

	inboxRepo := inbox.NewRepository(pool)
	jobRepo := jobs.NewRepository()
	outboxRepo := outbox.NewRepository(pool)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	backoffSeconds, err := strconv.Atoi(config.String("SCHEDULER_BACKOFF_SECONDS", "60"))
	if err != nil || backoffSeconds <= 0 {
		backoffSeconds = 60
	}
	jobWorker := jobs.NewWorker(pool, jobRepo, outboxRepo, logger, jobs.WorkerConfig{
		Interval:  2 * time.Second,
		BatchSize: 50,
		Backoff:   time.Duration(backoffSeconds) * time.Second,
	})
	go jobWorker.Run(ctx)

	offsets := parseReminderOffsets(config.String("REMINDER_OFFSETS_MINUTES", "1440,60"), logger)

	// Confirmed meetups get one reminder per participant per offset;
	// past-due offsets are skipped so late confirmations don't fire stale
	// reminders.
	onConfirmed := func(ctx context.Context, msg kafka.Message) error {
		var payload appointmentEvent
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid appointment event", "err", err, "topic", msg.Topic)
			return nil
		}
		if payload.AppointmentID == "" || payload.ScheduledAt == "" {
			logger.Error("missing appointment fields", "topic", msg.Topic)
			return nil
		}
		scheduledAt, err := time.Parse(time.RFC3339, payload.ScheduledAt)
		if err != nil {
			logger.Error("invalid scheduled_at", "err", err)
			return nil
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		now := time.Now().UTC()
		templateData := map[string]any{
			"match_id":     payload.MatchID,
			"location_id":  payload.LocationID,
			"activity":     payload.Activity,
			"scheduled_at": payload.ScheduledAt,
		}
		for _, offset := range offsets {
			remindAt := scheduledAt.Add(-offset)
			if remindAt.Before(now) {
				continue
			}
			for _, userID := range []string{payload.InviterUserID, payload.InviteeUserID} {
				if userID == "" {
					continue
				}
				if err := jobRepo.Insert(ctx, tx, jobs.Job{
					IdempotencyKey: payload.AppointmentID + "|" + userID + "|" + remindAt.UTC().Format(time.RFC3339),
					AppointmentID:  payload.AppointmentID,
					UserID:         userID,
					RemindAt:       remindAt.UTC(),
					TemplateData:   templateData,
				}); err != nil {
					return err
				}
			}
		}

		return tx.Commit(ctx)
	}

	onClosed := func(ctx context.Context, msg kafka.Message) error {
		var payload appointmentEvent
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid appointment event", "err", err, "topic", msg.Topic)
			return nil
		}
		if payload.AppointmentID == "" {
			return nil
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		n, err := jobRepo.CancelByAppointment(ctx, tx, payload.AppointmentID)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("reminders cancelled", "appointment_id", payload.AppointmentID, "count", n)
		}
		return tx.Commit(ctx)
	}

	startConsumer := func(topic string, handler consumer.Handler) {
		if strings.TrimSpace(topic) == "" {
			return
		}
		eventConsumer := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "scheduler-service"),
			Topic:   topic,
		}, handler)
		go eventConsumer.Run(ctx)
	}

	startConsumer(config.String("KAFKA_CONFIRMED_TOPIC", "meetup.appointment.confirmed.v1"), onConfirmed)
	startConsumer(config.String("KAFKA_CANCELLED_TOPIC", "meetup.appointment.cancelled.v1"), onClosed)
	startConsumer(config.String("KAFKA_DECLINED_TOPIC", "meetup.appointment.declined.v1"), onClosed)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "scheduler")
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

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
