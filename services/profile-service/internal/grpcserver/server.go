//go:build protogen

package grpcserver

import (
	"context"

	"github.com/pawmeet/pawmeet/libs/db"
	matchv1 "github.com/pawmeet/pawmeet/protos/gen/match/v1"
	"github.com/pawmeet/pawmeet/services/profile-service/internal/storage"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type server struct {
	matchv1.UnimplementedMatchContextServiceServer
	pool *db.Pool
	repo *storage.Repository
}

func Register(grpcServer *grpc.Server, pool *db.Pool, repo *storage.Repository) {
	matchv1.RegisterMatchContextServiceServer(grpcServer, &server{pool: pool, repo: repo})
}

func (s *server) GetMatch(ctx context.Context, req *matchv1.MatchRequest) (*matchv1.MatchResponse, error) {
	if req.GetMatchId() == "" {
		return nil, status.Error(codes.InvalidArgument, "match_id is required")
	}
	m, err := s.repo.GetMatch(ctx, req.GetMatchId())
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, status.Error(codes.NotFound, "match not found")
		}
		return nil, status.Error(codes.Internal, "match lookup failed")
	}
	return &matchv1.MatchResponse{
		MatchId:    m.ID,
		State:      m.State,
		PetOneId:   m.PetOneID,
		OwnerOneId: m.OwnerOneID,
		PetTwoId:   m.PetTwoID,
		OwnerTwoId: m.OwnerTwoID,
	}, nil
}
