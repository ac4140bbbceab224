// Package store defines the persistence boundary of the ledger. Every adapter
// (memory, JSON file, SQLite, PostgreSQL) implements Store, and all business
// rules live above it in package services.
package store

import (
	"context"
	"time"

	"ticketchain-backend/models"
)

// ParticipationFilter narrows ListParticipations by equality. Empty fields
// match everything.
type ParticipationFilter struct {
	EventID string
	UserID  string
	Status  models.AttendanceStatus
}

// EventFilter narrows ListEvents by equality. Empty fields match everything.
type EventFilter struct {
	OrganizerID string
}

// Tx is the set of record operations available inside a transaction.
//
// Getters return models.ErrNotFound for missing records. Create methods
// return models.ErrAlreadyExists when a uniqueness rule is violated. Lists are
// ordered oldest first.
type Tx interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByWallet(ctx context.Context, wallet string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	UpdateUser(ctx context.Context, u *models.User) error
	// AdjustCreditScore adds delta to the cached score in place and returns
	// the resulting score.
	AdjustCreditScore(ctx context.Context, userID string, delta int, at time.Time) (int, error)

	GetEvent(ctx context.Context, id string) (*models.Event, error)
	CreateEvent(ctx context.Context, e *models.Event) error
	UpdateEvent(ctx context.Context, e *models.Event) error
	ListEvents(ctx context.Context, f EventFilter) ([]models.Event, error)

	GetParticipation(ctx context.Context, eventID, userID string) (*models.Participation, error)
	CreateParticipation(ctx context.Context, p *models.Participation) error
	UpdateParticipation(ctx context.Context, p *models.Participation) error
	// CheckInParticipation stores the check-in columns of p only if the stored
	// row is not already checked in, otherwise models.ErrAlreadyCheckedIn.
	CheckInParticipation(ctx context.Context, p *models.Participation) error
	ListParticipations(ctx context.Context, f ParticipationFilter) ([]models.Participation, error)

	AppendCreditLog(ctx context.Context, e *models.CreditLogEntry) error
	ListCreditLog(ctx context.Context, userID string) ([]models.CreditLogEntry, error)

	CreateFeedback(ctx context.Context, f *models.Feedback) error
	ListFeedback(ctx context.Context, eventID string) ([]models.Feedback, error)
}

// Store runs units of work. WithTx commits when fn returns nil and discards
// every change otherwise. View runs fn against a read-only snapshot.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}
