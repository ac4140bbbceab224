package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"ticketchain-backend/logging"
	"ticketchain-backend/models"
	"ticketchain-backend/store"
)

// Registry manages users, events and participations.
type Registry struct {
	store  store.Store
	mirror *Mirror
	log    logging.Logger
	now    Clock
}

func NewRegistry(s store.Store, mirror *Mirror, log logging.Logger) *Registry {
	return &Registry{
		store:  s,
		mirror: mirror,
		log:    log.With("component", "registry"),
		now:    systemClock,
	}
}

func (r *Registry) CreateUser(ctx context.Context, req *models.CreateUserRequest) (*models.User, error) {
	wallet := NormalizeWallet(req.WalletAddress)
	if wallet == "" {
		return nil, models.Validation("wallet_address is required")
	}
	now := r.now()
	u := &models.User{
		ID:            uuid.NewString(),
		WalletAddress: wallet,
		Name:          strings.TrimSpace(req.Name),
		Email:         strings.TrimSpace(req.Email),
		CreditScore:   models.InitialCreditScore,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := r.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateUser(ctx, u)
	})
	if errors.Is(err, models.ErrAlreadyExists) {
		return nil, models.AlreadyExists("user with wallet %s already exists", wallet)
	}
	if err != nil {
		return nil, err
	}
	r.log.Info(ctx, "user created", "user_id", u.ID, "wallet", u.WalletAddress)
	return u, nil
}

func (r *Registry) GetUser(ctx context.Context, ref string) (*models.User, error) {
	var u *models.User
	err := r.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		u, err = resolveUser(ctx, tx, ref)
		return err
	})
	return u, err
}

// CreateEvent stores a new upcoming event. The organizer may be given by id
// or wallet and is stored by id.
func (r *Registry) CreateEvent(ctx context.Context, req *models.CreateEventRequest) (*models.Event, error) {
	if strings.TrimSpace(req.Title) == "" || req.StartTime.IsZero() || strings.TrimSpace(req.OrganizerID) == "" {
		return nil, models.Validation("missing required fields: title, date_time, organizer_id")
	}
	if req.MaxAttendees < 0 {
		return nil, models.Validation("max_attendees must not be negative")
	}

	var ev *models.Event
	err := r.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		organizer, err := resolveUser(ctx, tx, req.OrganizerID)
		if err != nil {
			return err
		}
		ev = &models.Event{
			ID:           uuid.NewString(),
			Title:        strings.TrimSpace(req.Title),
			Description:  req.Description,
			Location:     req.Location,
			StartTime:    req.StartTime.UTC(),
			MaxAttendees: req.MaxAttendees,
			OrganizerID:  organizer.ID,
			Status:       models.EventStatusUpcoming,
			CreatedAt:    r.now(),
		}
		return tx.CreateEvent(ctx, ev)
	})
	if err != nil {
		return nil, err
	}
	r.log.Info(ctx, "event created", "event_id", ev.ID, "organizer_id", ev.OrganizerID)

	if req.UseBlockchain && r.mirror.Enabled() {
		r.mirror.RegisterEvent(ev.ID)
	}
	return ev, nil
}

func (r *Registry) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var ev *models.Event
	err := r.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		ev, err = getEvent(ctx, tx, id)
		return err
	})
	return ev, err
}

func (r *Registry) ListEvents(ctx context.Context) ([]models.Event, error) {
	var out []models.Event
	err := r.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.ListEvents(ctx, store.EventFilter{})
		return err
	})
	return out, err
}

// registrable lists the statuses a participation may be created with.
func registrable(s models.AttendanceStatus) bool {
	switch s {
	case models.AttendancePending, models.AttendanceRegistered, models.AttendanceApproved:
		return true
	}
	return false
}

// RegisterParticipant creates the participation of a user in an event. A
// second registration of the same pair is rejected. Events with a positive
// MaxAttendees accept that many non-rejected participants.
func (r *Registry) RegisterParticipant(ctx context.Context, eventID, userRef string, status models.AttendanceStatus) (*models.Participation, error) {
	if status == "" {
		status = models.AttendancePending
	}
	if !registrable(status) {
		return nil, models.Validation("cannot register with status %q", status)
	}

	var p *models.Participation
	err := r.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		ev, err := getEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		u, err := resolveUser(ctx, tx, userRef)
		if err != nil {
			return err
		}
		if ev.MaxAttendees > 0 {
			existing, err := tx.ListParticipations(ctx, store.ParticipationFilter{EventID: ev.ID})
			if err != nil {
				return err
			}
			taken := 0
			for _, e := range existing {
				if e.AttendanceStatus != models.AttendanceRejected {
					taken++
				}
			}
			if taken >= ev.MaxAttendees {
				return models.Validation("event %s is full", ev.ID)
			}
		}
		p = &models.Participation{
			ID:               uuid.NewString(),
			EventID:          ev.ID,
			UserID:           u.ID,
			RegistrationTime: r.now(),
			AttendanceStatus: status,
		}
		err = tx.CreateParticipation(ctx, p)
		if errors.Is(err, models.ErrAlreadyExists) {
			return models.AlreadyExists("user %s is already registered for event %s", userRef, eventID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	r.log.Info(ctx, "participant registered", "event_id", p.EventID, "user_id", p.UserID, "status", p.AttendanceStatus)
	return p, nil
}

// UpdateParticipantStatus moves a participation between pre-attendance
// states. Checking in goes through CheckInEngine so it is scored; once
// checked in, the only allowed move is to checked_out.
func (r *Registry) UpdateParticipantStatus(ctx context.Context, eventID, userRef string, status models.AttendanceStatus) (*models.Participation, error) {
	if !status.Valid() {
		return nil, models.Validation("unknown attendance status %q", status)
	}
	if status == models.AttendanceCheckedIn {
		return nil, models.Validation("use check-in to mark attendance")
	}

	var p *models.Participation
	err := r.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := resolveUser(ctx, tx, userRef)
		if err != nil {
			return err
		}
		p, err = tx.GetParticipation(ctx, eventID, u.ID)
		if errors.Is(err, models.ErrNotFound) {
			return models.NotFound("user %s is not registered for event %s", userRef, eventID)
		}
		if err != nil {
			return err
		}
		switch {
		case status == models.AttendanceCheckedOut:
			if p.AttendanceStatus != models.AttendanceCheckedIn {
				return models.Validation("only checked-in participants can check out")
			}
			at := r.now()
			p.CheckOutTime = &at
		case p.HasCheckedIn():
			return models.Validation("participant already checked in; only check-out is allowed")
		}
		p.AttendanceStatus = status
		return tx.UpdateParticipation(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	r.log.Info(ctx, "participant status updated", "event_id", p.EventID, "user_id", p.UserID, "status", p.AttendanceStatus)
	return p, nil
}

// ListParticipants returns the event's participations, optionally only those
// with the given status.
func (r *Registry) ListParticipants(ctx context.Context, eventID string, status models.AttendanceStatus) ([]models.Participation, error) {
	if status != "" && !status.Valid() {
		return nil, models.Validation("unknown attendance status %q", status)
	}
	var out []models.Participation
	err := r.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := getEvent(ctx, tx, eventID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListParticipations(ctx, store.ParticipationFilter{EventID: eventID, Status: status})
		return err
	})
	return out, err
}

func (r *Registry) ListPending(ctx context.Context, eventID string) ([]models.Participation, error) {
	return r.ListParticipants(ctx, eventID, models.AttendancePending)
}

func (r *Registry) ListOrganizingEvents(ctx context.Context, userRef string) ([]models.Event, error) {
	var out []models.Event
	err := r.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := resolveUser(ctx, tx, userRef)
		if err != nil {
			return err
		}
		out, err = tx.ListEvents(ctx, store.EventFilter{OrganizerID: u.ID})
		return err
	})
	return out, err
}

// ListAttendingEvents returns the events the user is registered for, ordered
// by start time. With upcomingOnly set, events that already started are left
// out.
func (r *Registry) ListAttendingEvents(ctx context.Context, userRef string, upcomingOnly bool) ([]models.Event, error) {
	now := r.now()
	var out []models.Event
	err := r.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := resolveUser(ctx, tx, userRef)
		if err != nil {
			return err
		}
		parts, err := tx.ListParticipations(ctx, store.ParticipationFilter{UserID: u.ID})
		if err != nil {
			return err
		}
		out = make([]models.Event, 0, len(parts))
		for _, p := range parts {
			ev, err := tx.GetEvent(ctx, p.EventID)
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if upcomingOnly && !ev.StartTime.After(now) {
				continue
			}
			out = append(out, *ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortEvents(out)
	return out, nil
}

func sortEvents(evs []models.Event) {
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].StartTime.Before(evs[j].StartTime) })
}

// Ticket builds the QR payload "wallet:eventID:nonce" for a registered,
// non-rejected participant.
func (r *Registry) Ticket(ctx context.Context, eventID, userRef string) (*models.Ticket, error) {
	var t *models.Ticket
	err := r.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := resolveUser(ctx, tx, userRef)
		if err != nil {
			return err
		}
		p, err := tx.GetParticipation(ctx, eventID, u.ID)
		if errors.Is(err, models.ErrNotFound) {
			return models.NotFound("user %s is not registered for event %s", userRef, eventID)
		}
		if err != nil {
			return err
		}
		if p.AttendanceStatus == models.AttendanceRejected {
			return models.Validation("registration was rejected")
		}
		nonce := make([]byte, 8)
		if _, err := rand.Read(nonce); err != nil {
			return fmt.Errorf("ticket nonce: %w", err)
		}
		t = &models.Ticket{
			EventID:       eventID,
			UserID:        u.ID,
			WalletAddress: u.WalletAddress,
			Payload:       fmt.Sprintf("%s:%s:%s", u.WalletAddress, eventID, hex.EncodeToString(nonce)),
		}
		return nil
	})
	return t, err
}

// SeedSampleData creates a demo organizer and an event starting in a day.
// The user is reused if it already exists.
func (r *Registry) SeedSampleData(ctx context.Context) (*models.User, *models.Event, error) {
	const wallet = "0x1234567890123456789012345678901234567890"
	u, err := r.CreateUser(ctx, &models.CreateUserRequest{
		WalletAddress: wallet,
		Name:          "Test User",
		Email:         "test@example.com",
	})
	if errors.Is(err, models.ErrAlreadyExists) {
		u, err = r.GetUser(ctx, wallet)
	}
	if err != nil {
		return nil, nil, err
	}
	ev, err := r.CreateEvent(ctx, &models.CreateEventRequest{
		Title:        "Sample Web3 Conference",
		Description:  "A test event for the ticketing system",
		Location:     "Virtual",
		StartTime:    r.now().Add(24 * time.Hour),
		MaxAttendees: 100,
		OrganizerID:  u.ID,
	})
	if err != nil {
		return nil, nil, err
	}
	return u, ev, nil
}
