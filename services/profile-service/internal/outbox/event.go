package outbox

import (
	"encoding/json"

	"github.com/pawmeet/pawmeet/services/profile-service/internal/storage"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (production-style: event per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	EventMatchCreated = "match.created.v1"
	EventMatchUpdated = "match.updated.v1"
)

func MatchEvent(eventType string, m storage.Match) (Event, error) {
	payload, err := json.Marshal(map[string]any{
		"match_id":     m.ID,
		"state":        m.State,
		"pet_one_id":   m.PetOneID,
		"owner_one_id": m.OwnerOneID,
		"pet_two_id":   m.PetTwoID,
		"owner_two_id": m.OwnerTwoID,
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "match",
		AggregateID:   m.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
