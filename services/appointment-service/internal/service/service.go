package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pawmeet/pawmeet/services/appointment-service/internal/domain"
	"github.com/pawmeet/pawmeet/services/appointment-service/internal/match"
	"github.com/pawmeet/pawmeet/services/appointment-service/internal/moderation"
	"github.com/pawmeet/pawmeet/services/appointment-service/internal/outbox"
	"github.com/pawmeet/pawmeet/services/appointment-service/internal/preconditions"
	"github.com/pawmeet/pawmeet/services/appointment-service/internal/storage"
)

// ErrMatchNotFound surfaces as 404 on the validation endpoint and as a
// failed precondition on create.
var ErrMatchNotFound = errors.New("match not found")

// Service owns the appointment lifecycle. Every mutation runs in one
// transaction: load, apply the domain rule, persist under a version check,
// and stage the outbound event. A failed rule rolls everything back.
type Service struct {
	appointments *storage.AppointmentRepository
	locations    *storage.LocationRepository
	outbox       *outbox.Repository
	matches      match.Provider
	moderation   moderation.Provider
	maxCounters  int
	logger       *slog.Logger
	now          func() time.Time
}

type Config struct {
	MaxCounterOffers int
}

func New(appointments *storage.AppointmentRepository, locations *storage.LocationRepository, outboxRepo *outbox.Repository, matches match.Provider, mod moderation.Provider, cfg Config, logger *slog.Logger) *Service {
	if cfg.MaxCounterOffers <= 0 {
		cfg.MaxCounterOffers = domain.DefaultMaxCounterOffers
	}
	return &Service{
		appointments: appointments,
		locations:    locations,
		outbox:       outboxRepo,
		matches:      matches,
		moderation:   mod,
		maxCounters:  cfg.MaxCounterOffers,
		logger:       logger,
		now:          time.Now,
	}
}

type CreateInput struct {
	MatchID      string
	InviterPetID string
	InviteePetID string
	ScheduledAt  time.Time
	LocationID   string
	Activity     string
}

// ValidatePreconditions runs the create-time checks without creating
// anything. The result is advisory; Create re-runs the same checks.
func (s *Service) ValidatePreconditions(ctx context.Context, in CreateInput) (preconditions.Result, error) {
	rec, err := s.matches.GetMatch(ctx, in.MatchID)
	if err != nil {
		if errors.Is(err, match.ErrNotFound) {
			return preconditions.Result{}, ErrMatchNotFound
		}
		return preconditions.Result{}, err
	}
	res := preconditions.Validate(rec, in.InviterPetID, in.InviteePetID, in.ScheduledAt, s.now(), in.Activity)
	if res.Valid && in.LocationID != "" {
		if _, err := s.locations.Get(ctx, in.LocationID); err != nil {
			if storage.IsNotFound(err) {
				res = preconditions.Result{Message: "location does not exist"}
			} else {
				return preconditions.Result{}, err
			}
		}
	}
	return res, nil
}

func (s *Service) Create(ctx context.Context, callerID string, in CreateInput) (domain.Appointment, error) {
	if in.LocationID == "" {
		return domain.Appointment{}, fmt.Errorf("%w: locationId is required", domain.ErrValidation)
	}
	res, err := s.ValidatePreconditions(ctx, in)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !res.Valid {
		return domain.Appointment{}, fmt.Errorf("%w: %s", domain.ErrValidation, res.Message)
	}
	if callerID != res.InviterUserID {
		return domain.Appointment{}, domain.ErrNotParticipant
	}

	now := s.now()
	a := domain.New(uuid.NewString(), in.MatchID, in.InviterPetID, in.InviteePetID,
		res.InviterUserID, res.InviteeUserID, in.ScheduledAt.UTC(), in.LocationID,
		domain.Activity(in.Activity), now)

	tx, err := s.appointments.Begin(ctx)
	if err != nil {
		return domain.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.appointments.Create(ctx, tx, a); err != nil {
		return domain.Appointment{}, err
	}
	if err := s.stageEvent(ctx, tx, outbox.EventAppointmentRequested, *a, callerID, ""); err != nil {
		return domain.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Appointment{}, err
	}

	s.logger.Info("appointment requested", "appointment_id", a.ID, "match_id", a.MatchID)
	return *a, nil
}

func (s *Service) Get(ctx context.Context, callerID, role, id string) (domain.Appointment, error) {
	a, err := s.appointments.Get(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if _, ok := a.PartyOf(callerID); !ok && role != "admin" {
		return domain.Appointment{}, domain.ErrNotParticipant
	}
	return a, nil
}

func (s *Service) ListForUser(ctx context.Context, userID string, limit int) ([]domain.Appointment, error) {
	return s.appointments.ListByUser(ctx, userID, limit)
}

func (s *Service) ListForMatch(ctx context.Context, callerID, role, matchID string, limit int) ([]domain.Appointment, error) {
	if role != "admin" {
		rec, err := s.matches.GetMatch(ctx, matchID)
		if err != nil {
			if errors.Is(err, match.ErrNotFound) {
				return nil, ErrMatchNotFound
			}
			return nil, err
		}
		if callerID != rec.OwnerOneID && callerID != rec.OwnerTwoID {
			return nil, domain.ErrNotParticipant
		}
	}
	return s.appointments.ListByMatch(ctx, matchID, limit)
}

func (s *Service) ListRecent(ctx context.Context, limit int) ([]domain.Appointment, error) {
	return s.appointments.ListRecent(ctx, limit)
}

// mutate wraps the shared load-apply-persist-stage cycle. apply receives the
// freshly loaded aggregate and the caller's party and returns the events to
// stage once the update lands.
func (s *Service) mutate(ctx context.Context, callerID, id string, apply func(a *domain.Appointment, actor domain.Party) ([]stagedEvent, error)) (domain.Appointment, error) {
	tx, err := s.appointments.Begin(ctx)
	if err != nil {
		return domain.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := s.appointments.GetTx(ctx, tx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	actor, ok := a.PartyOf(callerID)
	if !ok {
		return domain.Appointment{}, domain.ErrNotParticipant
	}

	events, err := apply(&a, actor)
	if err != nil {
		return domain.Appointment{}, err
	}

	if err := s.appointments.Update(ctx, tx, &a); err != nil {
		return domain.Appointment{}, err
	}
	for _, evt := range events {
		if err := s.stageEvent(ctx, tx, evt.eventType, a, callerID, evt.reason); err != nil {
			return domain.Appointment{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Appointment{}, err
	}
	return a, nil
}

type stagedEvent struct {
	eventType string
	reason    string
}

func (s *Service) Accept(ctx context.Context, callerID, id string) (domain.Appointment, error) {
	a, err := s.mutate(ctx, callerID, id, func(a *domain.Appointment, actor domain.Party) ([]stagedEvent, error) {
		if err := a.Accept(actor, s.now()); err != nil {
			return nil, err
		}
		return []stagedEvent{{eventType: outbox.EventAppointmentConfirmed}}, nil
	})
	if err == nil {
		s.logger.Info("appointment confirmed", "appointment_id", a.ID)
	}
	return a, err
}

func (s *Service) Decline(ctx context.Context, callerID, id, reason string) (domain.Appointment, error) {
	if err := s.screen(ctx, reason); err != nil {
		return domain.Appointment{}, err
	}
	a, err := s.mutate(ctx, callerID, id, func(a *domain.Appointment, actor domain.Party) ([]stagedEvent, error) {
		if err := a.Decline(actor, reason, s.now()); err != nil {
			return nil, err
		}
		return []stagedEvent{{eventType: outbox.EventAppointmentDeclined, reason: a.DeclineReason}}, nil
	})
	if err == nil {
		s.logger.Info("appointment declined", "appointment_id", a.ID)
	}
	return a, err
}

type CounterOfferInput struct {
	ScheduledAt *time.Time
	LocationID  *string
}

func (s *Service) CounterOffer(ctx context.Context, callerID, id string, in CounterOfferInput) (domain.Appointment, error) {
	if in.ScheduledAt != nil && !in.ScheduledAt.After(s.now()) {
		return domain.Appointment{}, fmt.Errorf("%w: proposed time must be in the future", domain.ErrValidation)
	}
	if in.LocationID != nil && *in.LocationID != "" {
		if _, err := s.locations.Get(ctx, *in.LocationID); err != nil {
			if storage.IsNotFound(err) {
				return domain.Appointment{}, fmt.Errorf("%w: location does not exist", domain.ErrValidation)
			}
			return domain.Appointment{}, err
		}
	}
	a, err := s.mutate(ctx, callerID, id, func(a *domain.Appointment, actor domain.Party) ([]stagedEvent, error) {
		if err := a.CounterOffer(actor, in.ScheduledAt, in.LocationID, s.maxCounters, s.now()); err != nil {
			return nil, err
		}
		return []stagedEvent{{eventType: outbox.EventAppointmentCounterOffered}}, nil
	})
	if err == nil {
		s.logger.Info("appointment counter-offered", "appointment_id", a.ID, "round", a.CounterOfferCount)
	}
	return a, err
}

func (s *Service) Cancel(ctx context.Context, callerID, id, reason string) (domain.Appointment, error) {
	if err := s.screen(ctx, reason); err != nil {
		return domain.Appointment{}, err
	}
	a, err := s.mutate(ctx, callerID, id, func(a *domain.Appointment, actor domain.Party) ([]stagedEvent, error) {
		if err := a.Cancel(actor, reason, s.now()); err != nil {
			return nil, err
		}
		return []stagedEvent{{eventType: outbox.EventAppointmentCancelled, reason: a.CancelReason}}, nil
	})
	if err == nil {
		s.logger.Info("appointment cancelled", "appointment_id", a.ID)
	}
	return a, err
}

// CheckIn records the caller's arrival. The second check-in also completes
// the appointment, so one request can stage two events.
func (s *Service) CheckIn(ctx context.Context, callerID, id string) (domain.Appointment, error) {
	var completed bool
	a, err := s.mutate(ctx, callerID, id, func(a *domain.Appointment, actor domain.Party) ([]stagedEvent, error) {
		already := a.CheckedIn(actor)
		if err := a.CheckIn(actor, s.now()); err != nil {
			return nil, err
		}
		if already {
			return nil, nil
		}
		events := []stagedEvent{{eventType: outbox.EventAppointmentCheckedIn}}
		if a.BothCheckedIn() {
			if err := a.Complete(s.now()); err != nil {
				return nil, err
			}
			completed = true
			events = append(events, stagedEvent{eventType: outbox.EventAppointmentCompleted})
		}
		return events, nil
	})
	if err == nil {
		s.logger.Info("appointment check-in", "appointment_id", a.ID, "completed", completed)
	}
	return a, err
}

func (s *Service) screen(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	if err := s.moderation.Screen(ctx, text); err != nil {
		if errors.Is(err, moderation.ErrRejected) {
			return fmt.Errorf("%w: reason was rejected by the content filter", domain.ErrValidation)
		}
		s.logger.Warn("moderation check failed, allowing text", "err", err)
	}
	return nil
}

func (s *Service) stageEvent(ctx context.Context, tx pgx.Tx, eventType string, a domain.Appointment, actorUserID, reason string) error {
	evt, err := outbox.AppointmentEvent(eventType, a, actorUserID, reason)
	if err != nil {
		return err
	}
	return s.outbox.Insert(ctx, tx, evt)
}
