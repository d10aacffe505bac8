package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pawmeet/pawmeet/libs/config"
	"github.com/pawmeet/pawmeet/libs/db"
	"github.com/pawmeet/pawmeet/libs/httpx"
	"github.com/pawmeet/pawmeet/libs/kafkax"
	otelx "github.com/pawmeet/pawmeet/libs/otel"
	"github.com/pawmeet/pawmeet/libs/runtime"
	"github.com/pawmeet/pawmeet/services/notification-service/internal/consumer"
	"github.com/pawmeet/pawmeet/services/notification-service/internal/email"
	"github.com/pawmeet/pawmeet/services/notification-service/internal/inbox"
	"github.com/pawmeet/pawmeet/services/notification-service/internal/notify"
	"github.com/pawmeet/pawmeet/services/notification-service/internal/outbox"
	"github.com/pawmeet/pawmeet/services/notification-service/internal/push"
	"github.com/pawmeet/pawmeet/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type reminderPayload struct {
	AppointmentID string         `json:"appointment_id"`
	UserID        string         `json:"user_id"`
	RemindAt      string         `json:"remind_at"`
	TemplateData  map[string]any `json:"template_data"`
}

type appointmentPayload struct {
	AppointmentID string `json:"appointment_id"`
	MatchID       string `json:"match_id"`
	InviterUserID string `json:"inviter_user_id"`
	InviteeUserID string `json:"invitee_user_id"`
	ScheduledAt   string `json:"scheduled_at"`
	LocationID    string `json:"location_id"`
	Activity      string `json:"activity"`
	Status        string `json:"status"`
	ActorUserID   string `json:"actor_user_id"`
	Reason        string `json:"reason"`
}

type userCreatedPayload struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// recipients returns the participants who should hear about an appointment
// event. The actor already knows what they did, so they are excluded unless
// the event closes the loop for both sides.
func recipients(p appointmentPayload, includeActor bool) []string {
	var out []string
	for _, id := range []string{p.InviterUserID, p.InviteeUserID} {
		if id == "" {
			continue
		}
		if !includeActor && id == p.ActorUserID {
			continue
		}
		out = append(out, id)
	}
	return out
}

func appointmentMessage(kind string, p appointmentPayload, userID string) notify.Message {
	title := ""
	body := ""
	when := p.ScheduledAt
	switch kind {
	case "appointment_requested":
		title = "New meetup invitation"
		body = fmt.Sprintf("You have a meetup invitation for %s at %s.", p.Activity, when)
	case "appointment_counter_offered":
		title = "Meetup counter-offer"
		body = fmt.Sprintf("The other owner proposed a new time for your %s meetup: %s.", p.Activity, when)
	case "appointment_confirmed":
		title = "Meetup confirmed"
		body = fmt.Sprintf("Your %s meetup is confirmed for %s.", p.Activity, when)
	case "appointment_declined":
		title = "Meetup declined"
		body = fmt.Sprintf("Your %s meetup invitation was declined.", p.Activity)
	case "appointment_cancelled":
		title = "Meetup cancelled"
		body = fmt.Sprintf("Your %s meetup scheduled for %s was cancelled.", p.Activity, when)
	case "appointment_completed":
		title = "Meetup completed"
		body = fmt.Sprintf("Your %s meetup is complete. Hope it went well!", p.Activity)
	}
	if kind == "appointment_declined" || kind == "appointment_cancelled" {
		if p.Reason != "" {
			body = fmt.Sprintf("%s Reason: %s", body, p.Reason)
		}
	}
	return notify.Message{
		UserID:        userID,
		AppointmentID: p.AppointmentID,
		Kind:          kind,
		Title:         title,
		Body:          body,
		Payload: map[string]any{
			"match_id":     p.MatchID,
			"location_id":  p.LocationID,
			"activity":     p.Activity,
			"scheduled_at": p.ScheduledAt,
			"status":       p.Status,
		},
	}
}

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
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
	notificationsRepo := storage.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	smtpHost := config.String("SMTP_HOST", "mailpit")
	smtpPort := config.String("SMTP_PORT", "1025")
	smtpFrom := config.String("SMTP_FROM", "no-reply@pawmeet.local")
	emailSender := email.NewSMTPSender(smtpHost, smtpPort, smtpFrom)

	pushProvider := strings.ToLower(config.String("PUSH_PROVIDER", "noop"))
	pushWebhookURL := config.String("PUSH_WEBHOOK_URL", "")
	pushWebhookToken := config.String("PUSH_WEBHOOK_TOKEN", "")
	var pushSender push.Sender
	switch pushProvider {
	case "webhook":
		pushSender = push.NewWebhookSender(pushWebhookURL, pushWebhookToken)
	case "noop":
		pushSender = push.NewNoopSender()
	default:
		pushSender = push.NewWebhookSender(pushWebhookURL, pushWebhookToken)
	}

	notifier := notify.New(pool, notificationsRepo, outboxRepo, pushSender, emailSender, logger)

	onReminder := func(ctx context.Context, msg kafka.Message) error {
		var payload reminderPayload
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid reminder payload", "err", err)
			return nil
		}
		if payload.AppointmentID == "" || payload.UserID == "" || payload.RemindAt == "" {
			logger.Error("missing reminder fields")
			return nil
		}
		if _, err := time.Parse(time.RFC3339, payload.RemindAt); err != nil {
			logger.Error("invalid remind_at", "err", err)
			return nil
		}

		activity, _ := payload.TemplateData["activity"].(string)
		scheduledAt, _ := payload.TemplateData["scheduled_at"].(string)
		body := fmt.Sprintf("Reminder: your meetup is coming up at %s.", scheduledAt)
		if activity != "" {
			body = fmt.Sprintf("Reminder: your %s meetup is coming up at %s.", activity, scheduledAt)
		}
		return notifier.Deliver(ctx, notify.Message{
			UserID:        payload.UserID,
			AppointmentID: payload.AppointmentID,
			Kind:          "reminder",
			Title:         "Meetup reminder",
			Body:          body,
			Payload:       payload.TemplateData,
		})
	}

	onAppointment := func(kind string, includeActor bool) consumer.Handler {
		return func(ctx context.Context, msg kafka.Message) error {
			var payload appointmentPayload
			if err := json.Unmarshal(msg.Value, &payload); err != nil {
				logger.Error("invalid appointment payload", "err", err, "kind", kind)
				return nil
			}
			if payload.AppointmentID == "" {
				logger.Error("missing appointment_id", "kind", kind)
				return nil
			}
			for _, userID := range recipients(payload, includeActor) {
				if err := notifier.Deliver(ctx, appointmentMessage(kind, payload, userID)); err != nil {
					return err
				}
			}
			return nil
		}
	}

	onUserCreated := func(ctx context.Context, msg kafka.Message) error {
		var payload userCreatedPayload
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid user created payload", "err", err)
			return nil
		}
		if payload.UserID == "" || payload.Email == "" {
			logger.Error("missing user contact fields")
			return nil
		}
		return notificationsRepo.UpsertContact(ctx, storage.Contact{
			UserID:      payload.UserID,
			Email:       payload.Email,
			DisplayName: payload.DisplayName,
		})
	}

	brokers := config.String("KAFKA_BROKERS", "")
	groupID := config.String("KAFKA_GROUP_ID", "notification-service")
	startConsumer := func(topic string, handler consumer.Handler) {
		c := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
		}, handler)
		go c.Run(ctx)
	}

	startConsumer(config.String("KAFKA_REMINDER_TOPIC", "meetup.reminder.due.v1"), onReminder)
	startConsumer(config.String("KAFKA_REQUESTED_TOPIC", "meetup.appointment.requested.v1"), onAppointment("appointment_requested", false))
	startConsumer(config.String("KAFKA_COUNTER_TOPIC", "meetup.appointment.counter_offered.v1"), onAppointment("appointment_counter_offered", false))
	startConsumer(config.String("KAFKA_CONFIRMED_TOPIC", "meetup.appointment.confirmed.v1"), onAppointment("appointment_confirmed", false))
	startConsumer(config.String("KAFKA_DECLINED_TOPIC", "meetup.appointment.declined.v1"), onAppointment("appointment_declined", false))
	startConsumer(config.String("KAFKA_CANCELLED_TOPIC", "meetup.appointment.cancelled.v1"), onAppointment("appointment_cancelled", false))
	startConsumer(config.String("KAFKA_COMPLETED_TOPIC", "meetup.appointment.completed.v1"), onAppointment("appointment_completed", true))
	startConsumer(config.String("KAFKA_USER_CREATED_TOPIC", "auth.user.created.v1"), onUserCreated)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.HandleFunc("GET /api/v1/notifications", func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
		if userID == "" {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil || limit <= 0 || limit > 200 {
				limit = 50
			}
		}
		items, err := notificationsRepo.ListByUser(r.Context(), userID, limit)
		if err != nil {
			logger.Error("failed to list notifications", "err", err)
			http.Error(w, "failed to list notifications", http.StatusInternalServerError)
			return
		}
		if items == nil {
			items = []storage.Notification{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"notifications": items})
	})

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "http.server")

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("notification-service listening", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}
