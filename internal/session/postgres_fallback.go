package session

import (
	"context"
	"time"

	"github.com/yash1258/TeamSync-sub000/internal/store"
)

// PostgresFallback keeps refresh sessions in the relational store when
// Redis is not configured. Same contract, slower revocation scans.
type PostgresFallback struct {
	db *store.PostgresStore
}

func NewPostgresFallback(db *store.PostgresStore) *PostgresFallback {
	return &PostgresFallback{db: db}
}

func (s *PostgresFallback) SaveRefreshSession(ctx context.Context, tokenHash string, identity store.Identity, expiresAt time.Time) error {
	return s.db.SaveRefreshSession(ctx, tokenHash, identity.ID, expiresAt)
}

func (s *PostgresFallback) LookupRefreshSession(ctx context.Context, tokenHash string) (store.Identity, error) {
	return s.db.LookupRefreshSession(ctx, tokenHash)
}

func (s *PostgresFallback) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	return s.db.RevokeRefreshSession(ctx, tokenHash)
}
