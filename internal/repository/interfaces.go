package repository

import (
	"context"

	"github.com/smallbiznis/valora-connect/internal/domain"
	"github.com/smallbiznis/valora-connect/internal/domain/connection"
)

// ConnectionStore persists one record per (tenant, nonce) install handshake.
//
// FindPending and FindLatest return (nil, nil) when nothing matches.
// Complete must be a single compare-and-set on "access token is unset".
type ConnectionStore interface {
	Create(ctx context.Context, tenantID, nonce string) (*connection.PendingConnection, error)
	FindPending(ctx context.Context, tenantID, nonce string) (*connection.PendingConnection, error)
	FindLatest(ctx context.Context, tenantID, nonce string) (*connection.PendingConnection, error)
	Complete(ctx context.Context, record *connection.PendingConnection, accessToken string) error
	Abandon(ctx context.Context, record *connection.PendingConnection) error
}

// UserRepository exposes the local accounts that answer login challenges.
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (domain.LoginUser, error)
	Create(ctx context.Context, user domain.LoginUser) (domain.LoginUser, error)
}
