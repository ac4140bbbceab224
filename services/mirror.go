package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"ticketchain-backend/logging"
	"ticketchain-backend/metrics"
	"ticketchain-backend/models"
	"ticketchain-backend/store"
)

// ChainRecorder writes actions to the smart contract. Implemented by
// contracts.TicketChain.
type ChainRecorder interface {
	RecordCheckIn(ctx context.Context, chainEventID int64, wallet string) (*models.ChainReceipt, error)
	RecordEventRegistration(ctx context.Context, name, location string, at time.Time) (*models.ChainReceipt, error)
}

// Mirror operation names, used as metric labels.
const (
	MirrorOpCheckIn       = "checkin"
	MirrorOpRegisterEvent = "register_event"
)

type MirrorConfig struct {
	MaxRetries int
	Timeout    time.Duration
	BaseDelay  time.Duration
}

// Mirror sends committed actions to the chain in the background. Failures are
// logged and counted, and never reach the caller of the original operation.
// On success a zero-point entry carrying the transaction hash is logged.
type Mirror struct {
	recorder ChainRecorder
	store    store.Store
	ledger   *CreditLedger
	log      logging.Logger
	metrics  metrics.Recorder
	cfg      MirrorConfig

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewMirror returns a Mirror. A nil recorder yields a disabled Mirror whose
// dispatches are no-ops.
func NewMirror(rec ChainRecorder, s store.Store, ledger *CreditLedger, log logging.Logger, m metrics.Recorder, cfg MirrorConfig) *Mirror {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Mirror{
		recorder: rec,
		store:    s,
		ledger:   ledger,
		log:      log.With("component", "mirror"),
		metrics:  m,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (m *Mirror) Enabled() bool {
	return m != nil && m.recorder != nil
}

// CheckIn mirrors the participant's check-in once the event has a chain id.
func (m *Mirror) CheckIn(eventID, userID string) {
	m.dispatch(MirrorOpCheckIn, func(ctx context.Context) error { return m.mirrorCheckIn(ctx, eventID, userID) })
}

// RegisterEvent registers the event on chain and stores the returned id.
func (m *Mirror) RegisterEvent(eventID string) {
	m.dispatch(MirrorOpRegisterEvent, func(ctx context.Context) error { return m.mirrorEvent(ctx, eventID) })
}

func (m *Mirror) dispatch(op string, fn func(ctx context.Context) error) {
	if !m.Enabled() {
		return
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.log.Warn(m.ctx, "mirror closed, dropping dispatch", "op", op)
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		start := time.Now()
		err := fn(m.ctx)
		outcome := "success"
		switch {
		case errors.Is(err, errSkipped):
			outcome = "skipped"
		case err != nil:
			outcome = "failure"
			m.log.Error(m.ctx, "mirror failed", "op", op, "error", err)
		}
		m.metrics.RecordMirror(op, outcome, time.Since(start))
	}()
}

var errSkipped = errors.New("nothing to mirror")

// call runs fn with exponential backoff, each attempt bounded by cfg.Timeout.
func (m *Mirror) call(ctx context.Context, op string, fn func(ctx context.Context) (*models.ChainReceipt, error)) (*models.ChainReceipt, error) {
	var receipt *models.ChainReceipt
	b := retry.WithMaxRetries(uint64(m.cfg.MaxRetries), retry.NewExponential(m.cfg.BaseDelay))
	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		actx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
		r, err := fn(actx)
		if err != nil {
			m.log.Warn(ctx, "mirror attempt failed", "op", op, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		receipt = r
		return nil
	})
	return receipt, err
}

func (m *Mirror) mirrorCheckIn(ctx context.Context, eventID, userID string) error {
	var (
		chainID int64
		wallet  string
	)
	err := m.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		ev, err := getEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if ev.ChainEventID == nil {
			return errSkipped
		}
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		chainID, wallet = *ev.ChainEventID, u.WalletAddress
		return nil
	})
	if err != nil {
		return err
	}

	receipt, err := m.call(ctx, MirrorOpCheckIn, func(ctx context.Context) (*models.ChainReceipt, error) {
		return m.recorder.RecordCheckIn(ctx, chainID, wallet)
	})
	if err != nil {
		return err
	}

	var entry *models.CreditLogEntry
	err = m.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		entry, err = m.ledger.Apply(ctx, tx, u, Change{
			EventID:         &eventID,
			Action:          models.ActionBlockchainCheckIn,
			Reason:          "Check-in recorded on blockchain",
			TransactionHash: receipt.TransactionHash,
		})
		return err
	})
	if err != nil {
		return err
	}
	m.ledger.observe(entry)
	m.log.Info(ctx, "check-in mirrored", "event_id", eventID, "user_id", userID, "tx", receipt.TransactionHash)
	return nil
}

func (m *Mirror) mirrorEvent(ctx context.Context, eventID string) error {
	var ev *models.Event
	err := m.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		ev, err = getEvent(ctx, tx, eventID)
		return err
	})
	if err != nil {
		return err
	}
	if ev.ChainEventID != nil {
		return errSkipped
	}

	receipt, err := m.call(ctx, MirrorOpRegisterEvent, func(ctx context.Context) (*models.ChainReceipt, error) {
		return m.recorder.RecordEventRegistration(ctx, ev.Title, ev.Location, ev.StartTime)
	})
	if err != nil {
		return err
	}

	var entry *models.CreditLogEntry
	err = m.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		cur, err := getEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if receipt.EventID != nil {
			cur.ChainEventID = receipt.EventID
			if err := tx.UpdateEvent(ctx, cur); err != nil {
				return err
			}
		}
		organizer, err := tx.GetUser(ctx, cur.OrganizerID)
		if err != nil {
			return err
		}
		entry, err = m.ledger.Apply(ctx, tx, organizer, Change{
			EventID:         &cur.ID,
			Action:          models.ActionEventRegistered,
			Reason:          "Event registered on blockchain",
			TransactionHash: receipt.TransactionHash,
		})
		return err
	})
	if err != nil {
		return err
	}
	m.ledger.observe(entry)
	m.log.Info(ctx, "event mirrored", "event_id", eventID, "tx", receipt.TransactionHash)
	return nil
}

// Wait blocks until every dispatched mirror call has finished.
func (m *Mirror) Wait() {
	if m == nil {
		return
	}
	m.wg.Wait()
}

// Close stops accepting dispatches and waits for in-flight calls. If ctx
// ends first the calls are cancelled and ctx's error is returned.
func (m *Mirror) Close(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.cancel()
		<-done
		return ctx.Err()
	}
}
