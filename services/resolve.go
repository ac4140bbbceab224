// Package services holds the check-in and credit rules. Every operation runs
// as one store transaction; adapters never see business logic.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"ticketchain-backend/models"
	"ticketchain-backend/store"
)

// Clock returns the current time. Tests pin it.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

// NormalizeWallet lower-cases and trims an address so lookups are
// case-insensitive.
func NormalizeWallet(w string) string {
	return strings.ToLower(strings.TrimSpace(w))
}

// resolveUser accepts either a user id or a wallet address.
func resolveUser(ctx context.Context, tx store.Tx, ref string) (*models.User, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, models.Validation("user reference is required")
	}
	u, err := tx.GetUser(ctx, ref)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	u, err = tx.GetUserByWallet(ctx, NormalizeWallet(ref))
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.NotFound("user %s not found", ref)
	}
	return u, err
}

func getEvent(ctx context.Context, tx store.Tx, id string) (*models.Event, error) {
	e, err := tx.GetEvent(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.NotFound("event %s not found", id)
	}
	return e, err
}
