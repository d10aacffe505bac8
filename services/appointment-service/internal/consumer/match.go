package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/pawmeet/pawmeet/services/appointment-service/internal/match"
	"github.com/pawmeet/pawmeet/services/appointment-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

type matchPayload struct {
	MatchID    string `json:"match_id"`
	State      string `json:"state"`
	PetOneID   string `json:"pet_one_id"`
	OwnerOneID string `json:"owner_one_id"`
	PetTwoID   string `json:"pet_two_id"`
	OwnerTwoID string `json:"owner_two_id"`
}

// MatchHandler applies match.created.v1 and match.updated.v1 events to the
// local match cache so precondition checks can read match state locally.
func MatchHandler(repo *storage.MatchRepository, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var p matchPayload
		if err := json.Unmarshal(msg.Value, &p); err != nil {
			logger.Error("bad match event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if p.MatchID == "" {
			logger.Warn("match event without match_id ignored", "topic", msg.Topic)
			return nil
		}
		rec := match.Record{
			ID:         p.MatchID,
			State:      p.State,
			PetOneID:   p.PetOneID,
			OwnerOneID: p.OwnerOneID,
			PetTwoID:   p.PetTwoID,
			OwnerTwoID: p.OwnerTwoID,
		}
		if err := repo.Upsert(ctx, rec); err != nil {
			return err
		}
		logger.Info("match cache updated", "match_id", p.MatchID, "state", p.State)
		return nil
	}
}
