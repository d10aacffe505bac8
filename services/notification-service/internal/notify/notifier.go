package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/pawmeet/pawmeet/libs/db"
	"github.com/pawmeet/pawmeet/services/notification-service/internal/email"
	"github.com/pawmeet/pawmeet/services/notification-service/internal/outbox"
	"github.com/pawmeet/pawmeet/services/notification-service/internal/push"
	"github.com/pawmeet/pawmeet/services/notification-service/internal/storage"
)

// Message is one notification addressed to a user. Kind names the trigger
// (reminder, appointment_confirmed, appointment_declined, ...).
type Message struct {
	UserID        string
	AppointmentID string
	Kind          string
	Title         string
	Body          string
	Payload       map[string]any
}

type Notifier struct {
	pool   *db.Pool
	store  *storage.Repository
	outbox *outbox.Repository
	push   push.Sender
	email  email.Sender
	logger *slog.Logger
}

func New(pool *db.Pool, store *storage.Repository, outboxRepo *outbox.Repository, pushSender push.Sender, emailSender email.Sender, logger *slog.Logger) *Notifier {
	return &Notifier{
		pool:   pool,
		store:  store,
		outbox: outboxRepo,
		push:   pushSender,
		email:  emailSender,
		logger: logger,
	}
}

// Deliver pushes the message, falls back to email when the push provider
// rejects it and a contact address is known, persists the notification row,
// and stages a sent/failed event. The row is written regardless of delivery
// outcome so the in-app list stays complete.
func (n *Notifier) Deliver(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.UserID) == "" {
		n.logger.Error("notification without user_id dropped", "kind", msg.Kind)
		return nil
	}

	status := "sent"
	failureReason := ""
	providerID := ""

	if err := n.push.Send(ctx, msg.UserID, msg.Title, msg.Body); err != nil {
		n.logger.Warn("push send failed", "err", err, "user_id", msg.UserID)
		status = "failed"
		failureReason = err.Error()
	} else {
		providerID = n.push.ProviderID()
	}

	if status == "failed" {
		contact, err := n.store.GetContact(ctx, msg.UserID)
		if err == nil && contact.Email != "" {
			if err := n.email.Send(contact.Email, msg.Title, msg.Body); err != nil {
				n.logger.Error("email fallback failed", "err", err, "user_id", msg.UserID)
			} else {
				status = "sent"
				failureReason = ""
				providerID = "smtp"
			}
		}
	}

	if err := n.store.Insert(ctx, &storage.Notification{
		UserID:        msg.UserID,
		AppointmentID: msg.AppointmentID,
		Kind:          msg.Kind,
		Title:         msg.Title,
		Body:          msg.Body,
		Payload:       msg.Payload,
		Status:        status,
	}); err != nil {
		n.logger.Error("failed to persist notification", "err", err)
		return err
	}

	if status == "failed" {
		return n.stageEvent(ctx, outbox.EventNotificationFailed, msg, map[string]any{
			"error_reason": failureReason,
			"failed_at":    time.Now().UTC().Format(time.RFC3339),
		})
	}
	return n.stageEvent(ctx, outbox.EventNotificationSent, msg, map[string]any{
		"provider_id": providerID,
		"sent_at":     time.Now().UTC().Format(time.RFC3339),
	})
}

func (n *Notifier) stageEvent(ctx context.Context, eventType string, msg Message, extra map[string]any) error {
	tx, err := n.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	body := map[string]any{
		"user_id":        msg.UserID,
		"appointment_id": msg.AppointmentID,
		"kind":           msg.Kind,
	}
	for k, v := range extra {
		body[k] = v
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	aggregateID := msg.AppointmentID
	if aggregateID == "" {
		aggregateID = msg.UserID
	}
	if err := n.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "notification",
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
