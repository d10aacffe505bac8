package match

import (
	"context"
	"errors"
)

// State values mirror the match lifecycle owned by profile-service.
// Appointments may only be scheduled against an active match.
const (
	StateActive  = "active"
	StateEnded   = "ended"
	StateBlocked = "blocked"
)

var ErrNotFound = errors.New("match not found")

// Record is the slice of a match the negotiation engine needs: the two pets
// and their owners, plus whether the match still permits scheduling.
type Record struct {
	ID         string
	State      string
	PetOneID   string
	OwnerOneID string
	PetTwoID   string
	OwnerTwoID string
}

// Provider resolves a match id to its Record. Production deployments back
// this with profile-service; the default implementation reads the local
// event-fed cache so appointment-service keeps working when profile-service
// is unreachable.
type Provider interface {
	GetMatch(ctx context.Context, matchID string) (Record, error)
}

// Store is the subset of the storage layer the cache provider needs.
type Store interface {
	GetMatch(ctx context.Context, matchID string) (Record, error)
}

type cacheProvider struct {
	store Store
}

func NewCacheProvider(store Store) Provider {
	return &cacheProvider{store: store}
}

func (p *cacheProvider) GetMatch(ctx context.Context, matchID string) (Record, error) {
	return p.store.GetMatch(ctx, matchID)
}
