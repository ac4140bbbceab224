// Package memory is an in-process Store. Writers are serialized and each
// transaction works on a private copy of the state that replaces the live
// state only on commit.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"ticketchain-backend/models"
	"ticketchain-backend/store"
)

var errReadOnly = errors.New("write in read-only transaction")

type state struct {
	Users          map[string]models.User
	Wallets        map[string]string
	Events         map[string]models.Event
	Participations map[string]models.Participation
	CreditLog      []models.CreditLogEntry
	Feedback       []models.Feedback
}

func newState() *state {
	return &state{
		Users:          map[string]models.User{},
		Wallets:        map[string]string{},
		Events:         map[string]models.Event{},
		Participations: map[string]models.Participation{},
	}
}

func (s *state) clone() *state {
	c := &state{
		Users:          make(map[string]models.User, len(s.Users)),
		Wallets:        make(map[string]string, len(s.Wallets)),
		Events:         make(map[string]models.Event, len(s.Events)),
		Participations: make(map[string]models.Participation, len(s.Participations)),
		CreditLog:      append([]models.CreditLogEntry(nil), s.CreditLog...),
		Feedback:       append([]models.Feedback(nil), s.Feedback...),
	}
	for k, v := range s.Users {
		c.Users[k] = v
	}
	for k, v := range s.Wallets {
		c.Wallets[k] = v
	}
	for k, v := range s.Events {
		c.Events[k] = v
	}
	for k, v := range s.Participations {
		c.Participations[k] = v
	}
	return c
}

// Store keeps everything in maps guarded by a RWMutex.
type Store struct {
	mu    sync.RWMutex
	state *state
	// persist, when set, must durably record next before it becomes live.
	persist func(next *state) error
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{state: newState()}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.clone()
	if err := fn(ctx, &memTx{st: next}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.persist != nil {
		if err := s.persist(next); err != nil {
			return err
		}
	}
	s.state = next
	return nil
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ctx, &memTx{st: s.state, readOnly: true})
}

func (s *Store) Close() error { return nil }

type memTx struct {
	st       *state
	readOnly bool
}

func participationKey(eventID, userID string) string {
	return eventID + "/" + userID
}

func (t *memTx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

func (t *memTx) GetUser(_ context.Context, id string) (*models.User, error) {
	u, ok := t.st.Users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &u, nil
}

func (t *memTx) GetUserByWallet(ctx context.Context, wallet string) (*models.User, error) {
	id, ok := t.st.Wallets[wallet]
	if !ok {
		return nil, models.ErrNotFound
	}
	return t.GetUser(ctx, id)
}

func (t *memTx) CreateUser(_ context.Context, u *models.User) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.Users[u.ID]; ok {
		return models.ErrAlreadyExists
	}
	if _, ok := t.st.Wallets[u.WalletAddress]; ok {
		return models.ErrAlreadyExists
	}
	t.st.Users[u.ID] = *u
	t.st.Wallets[u.WalletAddress] = u.ID
	return nil
}

func (t *memTx) UpdateUser(_ context.Context, u *models.User) error {
	if err := t.writable(); err != nil {
		return err
	}
	old, ok := t.st.Users[u.ID]
	if !ok {
		return models.ErrNotFound
	}
	if old.WalletAddress != u.WalletAddress {
		if _, taken := t.st.Wallets[u.WalletAddress]; taken {
			return models.ErrAlreadyExists
		}
		delete(t.st.Wallets, old.WalletAddress)
		t.st.Wallets[u.WalletAddress] = u.ID
	}
	t.st.Users[u.ID] = *u
	return nil
}

func (t *memTx) AdjustCreditScore(_ context.Context, userID string, delta int, at time.Time) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	u, ok := t.st.Users[userID]
	if !ok {
		return 0, models.ErrNotFound
	}
	u.CreditScore += delta
	u.UpdatedAt = at
	t.st.Users[userID] = u
	return u.CreditScore, nil
}

func (t *memTx) GetEvent(_ context.Context, id string) (*models.Event, error) {
	e, ok := t.st.Events[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &e, nil
}

func (t *memTx) CreateEvent(_ context.Context, e *models.Event) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.Events[e.ID]; ok {
		return models.ErrAlreadyExists
	}
	t.st.Events[e.ID] = *e
	return nil
}

func (t *memTx) UpdateEvent(_ context.Context, e *models.Event) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.Events[e.ID]; !ok {
		return models.ErrNotFound
	}
	t.st.Events[e.ID] = *e
	return nil
}

func (t *memTx) ListEvents(_ context.Context, f store.EventFilter) ([]models.Event, error) {
	out := make([]models.Event, 0)
	for _, e := range t.st.Events {
		if f.OrganizerID != "" && e.OrganizerID != f.OrganizerID {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}

func (t *memTx) GetParticipation(_ context.Context, eventID, userID string) (*models.Participation, error) {
	p, ok := t.st.Participations[participationKey(eventID, userID)]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &p, nil
}

func (t *memTx) CreateParticipation(_ context.Context, p *models.Participation) error {
	if err := t.writable(); err != nil {
		return err
	}
	key := participationKey(p.EventID, p.UserID)
	if _, ok := t.st.Participations[key]; ok {
		return models.ErrAlreadyExists
	}
	t.st.Participations[key] = *p
	return nil
}

func (t *memTx) UpdateParticipation(_ context.Context, p *models.Participation) error {
	if err := t.writable(); err != nil {
		return err
	}
	key := participationKey(p.EventID, p.UserID)
	if _, ok := t.st.Participations[key]; !ok {
		return models.ErrNotFound
	}
	t.st.Participations[key] = *p
	return nil
}

func (t *memTx) CheckInParticipation(_ context.Context, p *models.Participation) error {
	if err := t.writable(); err != nil {
		return err
	}
	key := participationKey(p.EventID, p.UserID)
	cur, ok := t.st.Participations[key]
	if !ok {
		return models.ErrNotFound
	}
	if cur.HasCheckedIn() {
		return models.ErrAlreadyCheckedIn
	}
	cur.CheckInTime = p.CheckInTime
	cur.AttendanceStatus = models.AttendanceCheckedIn
	cur.PunctualityScore = p.PunctualityScore
	t.st.Participations[key] = cur
	return nil
}

func (t *memTx) ListParticipations(_ context.Context, f store.ParticipationFilter) ([]models.Participation, error) {
	out := make([]models.Participation, 0)
	for _, p := range t.st.Participations {
		if f.EventID != "" && p.EventID != f.EventID {
			continue
		}
		if f.UserID != "" && p.UserID != f.UserID {
			continue
		}
		if f.Status != "" && p.AttendanceStatus != f.Status {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RegistrationTime.Equal(out[j].RegistrationTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].RegistrationTime.Before(out[j].RegistrationTime)
	})
	return out, nil
}

func (t *memTx) AppendCreditLog(_ context.Context, e *models.CreditLogEntry) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.st.CreditLog = append(t.st.CreditLog, *e)
	return nil
}

func (t *memTx) ListCreditLog(_ context.Context, userID string) ([]models.CreditLogEntry, error) {
	out := make([]models.CreditLogEntry, 0)
	for _, e := range t.st.CreditLog {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *memTx) CreateFeedback(_ context.Context, f *models.Feedback) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.st.Feedback = append(t.st.Feedback, *f)
	return nil
}

func (t *memTx) ListFeedback(_ context.Context, eventID string) ([]models.Feedback, error) {
	out := make([]models.Feedback, 0)
	for _, f := range t.st.Feedback {
		if eventID == "" || f.EventID == eventID {
			out = append(out, f)
		}
	}
	return out, nil
}
