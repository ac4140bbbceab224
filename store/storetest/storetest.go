// Package storetest holds the behavioural checks every store.Store adapter
// must pass.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketchain-backend/models"
	"ticketchain-backend/store"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) store.Store

var base = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

// Run executes the shared adapter checks.
func Run(t *testing.T, newStore Factory) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("Events", func(t *testing.T) { testEvents(t, newStore(t)) })
	t.Run("Participations", func(t *testing.T) { testParticipations(t, newStore(t)) })
	t.Run("CheckInGuard", func(t *testing.T) { testCheckInGuard(t, newStore(t)) })
	t.Run("CreditLog", func(t *testing.T) { testCreditLog(t, newStore(t)) })
	t.Run("Feedback", func(t *testing.T) { testFeedback(t, newStore(t)) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
}

func NewUser(wallet string) *models.User {
	return &models.User{
		ID:            uuid.NewString(),
		WalletAddress: wallet,
		Name:          "user " + wallet,
		CreditScore:   models.InitialCreditScore,
		CreatedAt:     base,
		UpdatedAt:     base,
	}
}

func NewEvent(organizerID string, start time.Time) *models.Event {
	return &models.Event{
		ID:          uuid.NewString(),
		Title:       "Go meetup",
		Location:    "Hall A",
		StartTime:   start,
		OrganizerID: organizerID,
		Status:      models.EventStatusUpcoming,
		CreatedAt:   base,
	}
}

func NewParticipation(eventID, userID string, at time.Time) *models.Participation {
	return &models.Participation{
		ID:               uuid.NewString(),
		EventID:          eventID,
		UserID:           userID,
		RegistrationTime: at,
		AttendanceStatus: models.AttendancePending,
	}
}

func tx(t *testing.T, s store.Store, fn func(ctx context.Context, tx store.Tx) error) {
	t.Helper()
	require.NoError(t, s.WithTx(context.Background(), fn))
}

func view(t *testing.T, s store.Store, fn func(ctx context.Context, tx store.Tx) error) {
	t.Helper()
	require.NoError(t, s.View(context.Background(), fn))
}

func testUsers(t *testing.T, s store.Store) {
	u := NewUser("0xaaa")
	tx(t, s, func(ctx context.Context, tx store.Tx) error { return tx.CreateUser(ctx, u) })

	dup := NewUser("0xaaa")
	err := s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error { return tx.CreateUser(ctx, dup) })
	assert.True(t, errors.Is(err, models.ErrAlreadyExists), "got %v", err)

	view(t, s, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "0xaaa", got.WalletAddress)
		assert.Equal(t, models.InitialCreditScore, got.CreditScore)

		byWallet, err := tx.GetUserByWallet(ctx, "0xaaa")
		require.NoError(t, err)
		assert.Equal(t, u.ID, byWallet.ID)

		_, err = tx.GetUser(ctx, uuid.NewString())
		assert.True(t, errors.Is(err, models.ErrNotFound))
		_, err = tx.GetUserByWallet(ctx, "0xbbb")
		assert.True(t, errors.Is(err, models.ErrNotFound))
		return nil
	})

	tx(t, s, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetUser(ctx, u.ID)
		if err != nil {
			return err
		}
		got.CreditScore = 115
		got.UpdatedAt = base.Add(time.Hour)
		return tx.UpdateUser(ctx, got)
	})
	view(t, s, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, 115, got.CreditScore)
		assert.True(t, got.UpdatedAt.Equal(base.Add(time.Hour)))
		return nil
	})

	var score int
	tx(t, s, func(ctx context.Context, tx store.Tx) error {
		var err error
		score, err = tx.AdjustCreditScore(ctx, u.ID, -20, base.Add(2*time.Hour))
		return err
	})
	assert.Equal(t, 95, score)
	view(t, s, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, 95, got.CreditScore)
		assert.True(t, got.UpdatedAt.Equal(base.Add(2*time.Hour)))
		return nil
	})
	err = s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.AdjustCreditScore(ctx, uuid.NewString(), 1, base)
		return err
	})
	assert.True(t, errors.Is(err, models.ErrNotFound), "got %v", err)

	missing := NewUser("0xccc")
	err = s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error { return tx.UpdateUser(ctx, missing) })
	assert.True(t, errors.Is(err, models.ErrNotFound), "got %v", err)
}

func testEvents(t *testing.T, s store.Store) {
	org := NewUser("0xorg")
	other := NewUser("0xother")
	late := NewEvent(org.ID, base.Add(48*time.Hour))
	early := NewEvent(org.ID, base.Add(24*time.Hour))
	foreign := NewEvent(other.ID, base)
	tx(t, s, func(ctx context.Context, tx store.Tx) error {
		for _, u := range []*models.User{org, other} {
			if err := tx.CreateUser(ctx, u); err != nil {
				return err
			}
		}
		for _, e := range []*models.Event{late, early, foreign} {
			if err := tx.CreateEvent(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})

	view(t, s, func(ctx context.Context, tx store.Tx) error {
		all, err := tx.ListEvents(ctx, store.EventFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, foreign.ID, all[0].ID)

		mine, err := tx.ListEvents(ctx, store.EventFilter{OrganizerID: org.ID})
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, early.ID, mine[0].ID)
		assert.Equal(t, late.ID, mine[1].ID)

		got, err := tx.GetEvent(ctx, early.ID)
		require.NoError(t, err)
		assert.True(t, got.StartTime.Equal(early.StartTime))
		assert.Nil(t, got.ChainEventID)

		_, err = tx.GetEvent(ctx, uuid.NewString())
		assert.True(t, errors.Is(err, models.ErrNotFound))
		return nil
	})

	chainID := int64(7)
	tx(t, s, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetEvent(ctx, early.ID)
		if err != nil {
			return err
		}
		got.ChainEventID = &chainID
		return tx.UpdateEvent(ctx, got)
	})
	view(t, s, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetEvent(ctx, early.ID)
		require.NoError(t, err)
		require.NotNil(t, got.ChainEventID)
		assert.Equal(t, int64(7), *got.ChainEventID)
		return nil
	})
}

func seedEventWithUsers(t *testing.T, s store.Store, wallets ...string) (*models.Event, []*models.User) {
	t.Helper()
	org := NewUser("0xorganizer")
	ev := NewEvent(org.ID, base)
	users := make([]*models.User, 0, len(wallets))
	for _, w := range wallets {
		users = append(users, NewUser(w))
	}
	tx(t, s, func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateUser(ctx, org); err != nil {
			return err
		}
		for _, u := range users {
			if err := tx.CreateUser(ctx, u); err != nil {
				return err
			}
		}
		return tx.CreateEvent(ctx, ev)
	})
	return ev, users
}

func testParticipations(t *testing.T, s store.Store) {
	ev, users := seedEventWithUsers(t, s, "0x1", "0x2")
	p1 := NewParticipation(ev.ID, users[0].ID, base.Add(-2*time.Hour))
	p2 := NewParticipation(ev.ID, users[1].ID, base.Add(-time.Hour))
	p2.AttendanceStatus = models.AttendanceApproved
	tx(t, s, func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateParticipation(ctx, p1); err != nil {
			return err
		}
		return tx.CreateParticipation(ctx, p2)
	})

	dup := NewParticipation(ev.ID, users[0].ID, base)
	err := s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error { return tx.CreateParticipation(ctx, dup) })
	assert.True(t, errors.Is(err, models.ErrAlreadyExists), "got %v", err)

	view(t, s, func(ctx context.Context, tx store.Tx) error {
		all, err := tx.ListParticipations(ctx, store.ParticipationFilter{EventID: ev.ID})
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, p1.ID, all[0].ID)

		pending, err := tx.ListParticipations(ctx, store.ParticipationFilter{EventID: ev.ID, Status: models.AttendancePending})
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, users[0].ID, pending[0].UserID)

		byUser, err := tx.ListParticipations(ctx, store.ParticipationFilter{UserID: users[1].ID})
		require.NoError(t, err)
		require.Len(t, byUser, 1)
		assert.Equal(t, models.AttendanceApproved, byUser[0].AttendanceStatus)

		_, err = tx.GetParticipation(ctx, ev.ID, uuid.NewString())
		assert.True(t, errors.Is(err, models.ErrNotFound))
		return nil
	})

	tx(t, s, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.GetParticipation(ctx, ev.ID, users[0].ID)
		if err != nil {
			return err
		}
		p.AttendanceStatus = models.AttendanceRejected
		return tx.UpdateParticipation(ctx, p)
	})
	view(t, s, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.GetParticipation(ctx, ev.ID, users[0].ID)
		require.NoError(t, err)
		assert.Equal(t, models.AttendanceRejected, p.AttendanceStatus)
		assert.Nil(t, p.CheckInTime)
		return nil
	})
}

func testCheckInGuard(t *testing.T, s store.Store) {
	ev, users := seedEventWithUsers(t, s, "0x1")
	p := NewParticipation(ev.ID, users[0].ID, base.Add(-time.Hour))
	tx(t, s, func(ctx context.Context, tx store.Tx) error { return tx.CreateParticipation(ctx, p) })

	at := base.Add(5 * time.Minute)
	checked := *p
	checked.CheckInTime = &at
	checked.PunctualityScore = 5
	tx(t, s, func(ctx context.Context, tx store.Tx) error { return tx.CheckInParticipation(ctx, &checked) })

	err := s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.CheckInParticipation(ctx, &checked)
	})
	assert.True(t, errors.Is(err, models.ErrAlreadyCheckedIn), "got %v", err)

	view(t, s, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetParticipation(ctx, ev.ID, users[0].ID)
		require.NoError(t, err)
		assert.Equal(t, models.AttendanceCheckedIn, got.AttendanceStatus)
		assert.Equal(t, 5, got.PunctualityScore)
		require.NotNil(t, got.CheckInTime)
		assert.True(t, got.CheckInTime.Equal(at))
		return nil
	})

	// A recorded check-in time blocks re-scoring whatever the status says.
	tx(t, s, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetParticipation(ctx, ev.ID, users[0].ID)
		if err != nil {
			return err
		}
		got.AttendanceStatus = models.AttendanceApproved
		return tx.UpdateParticipation(ctx, got)
	})
	rescored := checked
	rescored.PunctualityScore = 10
	err = s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.CheckInParticipation(ctx, &rescored)
	})
	assert.True(t, errors.Is(err, models.ErrAlreadyCheckedIn), "got %v", err)
	view(t, s, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetParticipation(ctx, ev.ID, users[0].ID)
		require.NoError(t, err)
		assert.Equal(t, models.AttendanceApproved, got.AttendanceStatus)
		assert.Equal(t, 5, got.PunctualityScore)
		return nil
	})

	missing := NewParticipation(ev.ID, uuid.NewString(), base)
	err = s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.CheckInParticipation(ctx, missing)
	})
	assert.True(t, errors.Is(err, models.ErrNotFound), "got %v", err)
}

func testCreditLog(t *testing.T, s store.Store) {
	ev, users := seedEventWithUsers(t, s, "0x1", "0x2")
	eventID := ev.ID
	entries := []*models.CreditLogEntry{
		{ID: uuid.NewString(), UserID: users[0].ID, EventID: &eventID, Action: models.ActionCheckIn, PointsChange: 5, Reason: "Check-in punctuality: 5 min late", CreatedAt: base},
		{ID: uuid.NewString(), UserID: users[1].ID, Action: models.ActionFeedbackGiven, PointsChange: 2, Reason: "Provided event feedback", CreatedAt: base.Add(time.Second)},
		{ID: uuid.NewString(), UserID: users[0].ID, Action: models.ActionBlockchainCheckIn, PointsChange: 0, Reason: "mirrored", TransactionHash: "0xfeed", CreatedAt: base.Add(2 * time.Second)},
	}
	tx(t, s, func(ctx context.Context, tx store.Tx) error {
		for _, e := range entries {
			if err := tx.AppendCreditLog(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})

	view(t, s, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.ListCreditLog(ctx, users[0].ID)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, entries[0].ID, got[0].ID)
		require.NotNil(t, got[0].EventID)
		assert.Equal(t, ev.ID, *got[0].EventID)
		assert.Equal(t, 5, got[0].PointsChange)
		assert.Equal(t, "0xfeed", got[1].TransactionHash)
		assert.Nil(t, got[1].EventID)

		none, err := tx.ListCreditLog(ctx, uuid.NewString())
		require.NoError(t, err)
		assert.Empty(t, none)
		return nil
	})
}

func testFeedback(t *testing.T, s store.Store) {
	ev, users := seedEventWithUsers(t, s, "0x1", "0x2")
	fb := &models.Feedback{
		ID:           uuid.NewString(),
		EventID:      ev.ID,
		ReviewerID:   users[0].ID,
		RevieweeID:   users[1].ID,
		RevieweeType: models.RevieweeSpeaker,
		Rating:       4,
		Comment:      "great talk",
		CreatedAt:    base,
	}
	tx(t, s, func(ctx context.Context, tx store.Tx) error { return tx.CreateFeedback(ctx, fb) })

	view(t, s, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.ListFeedback(ctx, ev.ID)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 4, got[0].Rating)
		assert.Equal(t, "great talk", got[0].Comment)

		other, err := tx.ListFeedback(ctx, uuid.NewString())
		require.NoError(t, err)
		assert.Empty(t, other)
		return nil
	})
}

func testRollback(t *testing.T, s store.Store) {
	boom := errors.New("boom")
	u := NewUser("0xrollback")
	err := s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateUser(ctx, u); err != nil {
			return err
		}
		if err := tx.AppendCreditLog(ctx, &models.CreditLogEntry{ID: uuid.NewString(), UserID: u.ID, Action: models.ActionCreditUpdate, PointsChange: 3, CreatedAt: base}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	view(t, s, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetUser(ctx, u.ID)
		assert.True(t, errors.Is(err, models.ErrNotFound))
		entries, err := tx.ListCreditLog(ctx, u.ID)
		require.NoError(t, err)
		assert.Empty(t, entries)
		return nil
	})
}
