package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pawmeet/pawmeet/libs/config"
	"github.com/pawmeet/pawmeet/libs/db"
	"github.com/pawmeet/pawmeet/libs/httpx"
	"github.com/pawmeet/pawmeet/libs/kafkax"
	otelx "github.com/pawmeet/pawmeet/libs/otel"
	"github.com/pawmeet/pawmeet/libs/runtime"
	"github.com/pawmeet/pawmeet/services/analytics-service/internal/consumer"
	"github.com/pawmeet/pawmeet/services/analytics-service/internal/inbox"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "analytics-service")
	port, err := config.Port("PORT", "8086")
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
	brokers := config.String("KAFKA_BROKERS", "")
	groupID := config.String("KAFKA_GROUP_ID", "analytics-service")
	startConsumer := func(topic string, handler consumer.Handler) {
		c := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
		}, handler)
		go c.Run(ctx)
	}

	handleMeetupEvent := func(ctx context.Context, msg kafka.Message, kind string) error {
		var payload struct {
			AppointmentID string `json:"appointment_id"`
			MatchID       string `json:"match_id"`
			LocationID    string `json:"location_id"`
			Activity      string `json:"activity"`
			ScheduledAt   string `json:"scheduled_at"`
		}

		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid meetup payload", "err", err)
			return nil
		}
		if payload.AppointmentID == "" || payload.LocationID == "" || payload.ScheduledAt == "" {
			logger.Error("missing meetup fields")
			return nil
		}
		scheduledAt, err := time.Parse(time.RFC3339, payload.ScheduledAt)
		if err != nil {
			logger.Error("invalid scheduled_at", "err", err)
			return nil
		}

		meta := kafkax.ExtractEventMeta(msg)

		tx, err := pool.Begin(ctx)
		if err != nil {
			logger.Error("db begin failed", "err", err)
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		tag, err := tx.Exec(ctx, `
			INSERT INTO meetup_events (event_id, event_type, appointment_id, match_id, location_id, activity, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (event_id) DO NOTHING
		`, meta.EventID, meta.EventType, payload.AppointmentID, payload.MatchID, payload.LocationID, payload.Activity, scheduledAt.UTC())
		if err != nil {
			logger.Error("failed to insert meetup event", "err", err)
			return err
		}
		if tag.RowsAffected() == 0 {
			_ = tx.Commit(ctx)
			return nil
		}

		confirmedInc := 0
		cancelledInc := 0
		completedInc := 0
		switch kind {
		case "confirmed":
			confirmedInc = 1
		case "cancelled":
			cancelledInc = 1
		case "completed":
			completedInc = 1
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO daily_meetup_metrics (location_id, day, confirmed_count, cancelled_count, completed_count)
			VALUES ($1, $2::date, $3, $4, $5)
			ON CONFLICT (location_id, day)
			DO UPDATE SET confirmed_count = daily_meetup_metrics.confirmed_count + EXCLUDED.confirmed_count,
			              cancelled_count = daily_meetup_metrics.cancelled_count + EXCLUDED.cancelled_count,
			              completed_count = daily_meetup_metrics.completed_count + EXCLUDED.completed_count,
			              updated_at = now()
		`, payload.LocationID, scheduledAt.UTC(), confirmedInc, cancelledInc, completedInc); err != nil {
			logger.Error("failed to update daily meetup metrics", "err", err)
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			logger.Error("failed to commit meetup metric", "err", err)
			return err
		}

		logger.Info("meetup metric recorded", "appointment_id", payload.AppointmentID, "location_id", payload.LocationID, "event_type", meta.EventType)
		return nil
	}

	startConsumer("meetup.appointment.confirmed.v1", func(ctx context.Context, msg kafka.Message) error {
		return handleMeetupEvent(ctx, msg, "confirmed")
	})
	startConsumer("meetup.appointment.cancelled.v1", func(ctx context.Context, msg kafka.Message) error {
		return handleMeetupEvent(ctx, msg, "cancelled")
	})
	startConsumer("meetup.appointment.completed.v1", func(ctx context.Context, msg kafka.Message) error {
		return handleMeetupEvent(ctx, msg, "completed")
	})

	handleNotificationEvent := func(ctx context.Context, msg kafka.Message, status string) error {
		var payload struct {
			UserID        string `json:"user_id"`
			AppointmentID string `json:"appointment_id"`
			Kind          string `json:"kind"`
			SentAt        string `json:"sent_at"`
			FailedAt      string `json:"failed_at"`
		}

		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid notification payload", "err", err)
			return nil
		}
		occurredAt := payload.SentAt
		if status == "failed" {
			occurredAt = payload.FailedAt
		}
		if payload.UserID == "" || payload.Kind == "" || occurredAt == "" {
			logger.Error("missing notification fields")
			return nil
		}
		t, err := time.Parse(time.RFC3339, occurredAt)
		if err != nil {
			logger.Error("invalid notification timestamp", "err", err)
			return nil
		}

		_, err = pool.Exec(ctx, `
			INSERT INTO notification_metrics (user_id, appointment_id, kind, occurred_at, status)
			VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5)
		`, payload.UserID, payload.AppointmentID, payload.Kind, t.UTC(), status)
		if err != nil {
			logger.Error("failed to write notification metric", "err", err)
			return err
		}

		sentInc := 0
		failedInc := 0
		if status == "sent" {
			sentInc = 1
		} else {
			failedInc = 1
		}
		if _, err := pool.Exec(ctx, `
			INSERT INTO daily_notification_metrics (day, kind, sent_count, failed_count)
			VALUES ($1::date, $2, $3, $4)
			ON CONFLICT (day, kind)
			DO UPDATE SET sent_count = daily_notification_metrics.sent_count + EXCLUDED.sent_count,
			              failed_count = daily_notification_metrics.failed_count + EXCLUDED.failed_count,
			              updated_at = now()
		`, t.UTC(), payload.Kind, sentInc, failedInc); err != nil {
			logger.Error("failed to update daily notification metrics", "err", err)
			return err
		}

		logger.Info("notification metric recorded", "kind", payload.Kind, "status", status)
		return nil
	}

	startConsumer("notification.sent.v1", func(ctx context.Context, msg kafka.Message) error {
		return handleNotificationEvent(ctx, msg, "sent")
	})
	startConsumer("notification.failed.v1", func(ctx context.Context, msg kafka.Message) error {
		return handleNotificationEvent(ctx, msg, "failed")
	})

	startConsumer("meetup.reminder.dlq.v1", func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			AppointmentID string `json:"appointment_id"`
			UserID        string `json:"user_id"`
			RemindAt      string `json:"remind_at"`
			ErrorReason   string `json:"error_reason"`
			FailedAt      string `json:"failed_at"`
		}

		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid dlq payload", "err", err)
			return nil
		}
		if payload.AppointmentID == "" || payload.UserID == "" || payload.RemindAt == "" || payload.ErrorReason == "" || payload.FailedAt == "" {
			logger.Error("missing dlq fields")
			return nil
		}
		remindAt, err := time.Parse(time.RFC3339, payload.RemindAt)
		if err != nil {
			logger.Error("invalid remind_at", "err", err)
			return nil
		}
		if _, err := time.Parse(time.RFC3339, payload.FailedAt); err != nil {
			logger.Error("invalid failed_at", "err", err)
			return nil
		}

		_, err = pool.Exec(ctx, `
			INSERT INTO scheduler_dlq_events (appointment_id, user_id, remind_at, error_reason, failed_at)
			VALUES ($1, $2, $3, $4, $5)
		`, payload.AppointmentID, payload.UserID, remindAt, payload.ErrorReason, payload.FailedAt)
		if err != nil {
			logger.Error("failed to write dlq event", "err", err)
			return err
		}

		logger.Warn("scheduler dlq recorded", "appointment_id", payload.AppointmentID, "user_id", payload.UserID)
		return nil
	})

	startConsumer("auth.audit.v1", func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			EventType string          `json:"event_type"`
			ActorID   string          `json:"actor_id"`
			Metadata  json.RawMessage `json:"metadata"`
			CreatedAt string          `json:"created_at"`
		}

		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid auth audit payload", "err", err)
			return nil
		}
		if payload.EventType == "" || payload.CreatedAt == "" {
			logger.Error("missing auth audit fields")
			return nil
		}
		if _, err := time.Parse(time.RFC3339, payload.CreatedAt); err != nil {
			logger.Error("invalid auth audit created_at", "err", err)
			return nil
		}

		_, err := pool.Exec(ctx, `
			INSERT INTO security_audit_events (event_type, actor_id, metadata, created_at)
			VALUES ($1, NULLIF($2, ''), $3, $4)
		`, payload.EventType, payload.ActorID, payload.Metadata, payload.CreatedAt)
		if err != nil {
			logger.Error("failed to write security audit event", "err", err)
			return err
		}

		logger.Info("security audit recorded", "event_type", payload.EventType)
		return nil
	})

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "analytics")
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
