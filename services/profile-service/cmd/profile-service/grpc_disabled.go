//go:build !protogen

package main

import (
	"context"
	"log/slog"

	"github.com/pawmeet/pawmeet/libs/db"
	"github.com/pawmeet/pawmeet/services/profile-service/internal/storage"
)

func startGrpcServer(_ context.Context, _ *slog.Logger, _ *db.Pool, _ *storage.Repository) error {
	return nil
}
