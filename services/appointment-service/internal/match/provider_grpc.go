//go:build protogen

package match

import (
	"context"
	"time"

	"github.com/pawmeet/pawmeet/libs/grpcx"
	matchv1 "github.com/pawmeet/pawmeet/protos/gen/match/v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type grpcProvider struct {
	client   matchv1.MatchContextServiceClient
	fallback Provider
}

// NewProfileProvider resolves matches through profile-service's gRPC API,
// falling back to the local cache when the address is unset or the dial
// fails at startup.
func NewProfileProvider(addr string, fallback Provider) (Provider, error) {
	if addr == "" {
		return fallback, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := grpcx.Dial(ctx, addr, grpcx.DialOptions{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	return &grpcProvider{client: matchv1.NewMatchContextServiceClient(conn), fallback: fallback}, nil
}

func (p *grpcProvider) GetMatch(ctx context.Context, matchID string) (Record, error) {
	resp, err := p.client.GetMatch(ctx, &matchv1.MatchRequest{MatchId: matchID})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Record{}, ErrNotFound
		}
		if p.fallback != nil {
			return p.fallback.GetMatch(ctx, matchID)
		}
		return Record{}, err
	}
	return Record{
		ID:         resp.GetMatchId(),
		State:      resp.GetState(),
		PetOneID:   resp.GetPetOneId(),
		OwnerOneID: resp.GetOwnerOneId(),
		PetTwoID:   resp.GetPetTwoId(),
		OwnerTwoID: resp.GetOwnerTwoId(),
	}, nil
}
