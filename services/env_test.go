package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ticketchain-backend/logging"
	"ticketchain-backend/metrics"
	"ticketchain-backend/models"
	"ticketchain-backend/store"
	"ticketchain-backend/store/memory"
)

var eventStart = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	store    store.Store
	ledger   *CreditLedger
	engine   *CheckInEngine
	feedback *FeedbackService
	registry *Registry
	mirror   *Mirror
	now      time.Time
}

func (e *testEnv) clock() time.Time { return e.now }

func newTestEnv(t *testing.T, rec ChainRecorder) *testEnv {
	t.Helper()
	s := memory.New()
	log := logging.Nop()
	m := metrics.Nop{}

	env := &testEnv{store: s, now: eventStart.Add(-24 * time.Hour)}
	env.ledger = NewCreditLedger(s, log, m)
	env.mirror = NewMirror(rec, s, env.ledger, log, m, MirrorConfig{MaxRetries: 2, BaseDelay: time.Millisecond, Timeout: time.Second})
	env.engine = NewCheckInEngine(s, env.ledger, env.mirror, log, m)
	env.feedback = NewFeedbackService(s, env.ledger, log, m)
	env.registry = NewRegistry(s, env.mirror, log)

	env.ledger.now = env.clock
	env.engine.now = env.clock
	env.feedback.now = env.clock
	env.registry.now = env.clock
	t.Cleanup(func() { _ = env.mirror.Close(context.Background()) })
	return env
}

func (e *testEnv) user(t *testing.T, wallet string) *models.User {
	t.Helper()
	u, err := e.registry.CreateUser(context.Background(), &models.CreateUserRequest{WalletAddress: wallet, Name: wallet})
	require.NoError(t, err)
	return u
}

func (e *testEnv) event(t *testing.T, organizer *models.User, start time.Time) *models.Event {
	t.Helper()
	ev, err := e.registry.CreateEvent(context.Background(), &models.CreateEventRequest{
		Title:       "Go meetup",
		Location:    "Hall A",
		StartTime:   start,
		OrganizerID: organizer.ID,
	})
	require.NoError(t, err)
	return ev
}

func (e *testEnv) register(t *testing.T, ev *models.Event, u *models.User) *models.Participation {
	t.Helper()
	p, err := e.registry.RegisterParticipant(context.Background(), ev.ID, u.ID, "")
	require.NoError(t, err)
	return p
}

func (e *testEnv) score(t *testing.T, ref string) int {
	t.Helper()
	u, err := e.registry.GetUser(context.Background(), ref)
	require.NoError(t, err)
	return u.CreditScore
}

func (e *testEnv) history(t *testing.T, ref string) []models.CreditLogEntry {
	t.Helper()
	h, err := e.ledger.History(context.Background(), ref)
	require.NoError(t, err)
	return h
}

func (e *testEnv) requireConsistent(t *testing.T, ref string) {
	t.Helper()
	a, err := e.ledger.Audit(context.Background(), ref)
	require.NoError(t, err)
	require.True(t, a.Consistent, "cached %d, derived %d", a.Cached, a.Derived)
}

// fakeRecorder records calls and fails the first `failures` of each kind.
type fakeRecorder struct {
	mu            sync.Mutex
	failures      int
	checkIns      []string
	registrations []string
	nextEventID   int64
	err           error
}

func (f *fakeRecorder) RecordCheckIn(_ context.Context, chainEventID int64, wallet string) (*models.ChainReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkIns = append(f.checkIns, wallet)
	if len(f.checkIns) <= f.failures {
		return nil, f.err
	}
	return &models.ChainReceipt{TransactionHash: "0xcheckin", BlockNumber: 10}, nil
}

func (f *fakeRecorder) RecordEventRegistration(_ context.Context, name, _ string, _ time.Time) (*models.ChainReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registrations = append(f.registrations, name)
	if len(f.registrations) <= f.failures {
		return nil, f.err
	}
	f.nextEventID++
	id := f.nextEventID
	return &models.ChainReceipt{TransactionHash: "0xevent", BlockNumber: 9, EventID: &id}, nil
}

func (f *fakeRecorder) calls() (checkIns, registrations int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.checkIns), len(f.registrations)
}
