package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"ticketchain-backend/logging"
	"ticketchain-backend/metrics"
	"ticketchain-backend/models"
	"ticketchain-backend/store"
)

// CreditLedger owns the credit log and the cached score derived from it.
// Every score change goes through Apply, so a user's cached score always
// equals models.InitialCreditScore plus the sum of their log entries.
type CreditLedger struct {
	store   store.Store
	log     logging.Logger
	metrics metrics.Recorder
	now     Clock
}

func NewCreditLedger(s store.Store, log logging.Logger, m metrics.Recorder) *CreditLedger {
	return &CreditLedger{
		store:   s,
		log:     log.With("component", "ledger"),
		metrics: m,
		now:     systemClock,
	}
}

// Change describes one entry to append.
type Change struct {
	EventID         *string
	Action          string
	Delta           int
	Reason          string
	TransactionHash string
}

// Apply appends an entry for u and moves u's cached score by the same delta.
// It must run inside tx; u.CreditScore is updated to the stored value.
func (l *CreditLedger) Apply(ctx context.Context, tx store.Tx, u *models.User, c Change) (*models.CreditLogEntry, error) {
	if c.Action == "" {
		return nil, models.Validation("credit action is required")
	}
	now := l.now()
	entry := &models.CreditLogEntry{
		ID:              uuid.NewString(),
		UserID:          u.ID,
		EventID:         c.EventID,
		Action:          c.Action,
		PointsChange:    c.Delta,
		Reason:          c.Reason,
		TransactionHash: c.TransactionHash,
		CreatedAt:       now,
	}
	if err := tx.AppendCreditLog(ctx, entry); err != nil {
		return nil, fmt.Errorf("append credit log: %w", err)
	}
	score, err := tx.AdjustCreditScore(ctx, u.ID, c.Delta, now)
	if err != nil {
		return nil, fmt.Errorf("adjust credit score: %w", err)
	}
	u.CreditScore = score
	u.UpdatedAt = now
	return entry, nil
}

// observe reports committed entries.
func (l *CreditLedger) observe(entries ...*models.CreditLogEntry) {
	for _, e := range entries {
		if e != nil {
			l.metrics.RecordCreditChange(e.Action, e.PointsChange)
		}
	}
}

// LogCreditChange appends one entry for the user identified by id or wallet
// and applies its delta to the cached score.
func (l *CreditLedger) LogCreditChange(ctx context.Context, userRef string, c Change) (*models.CreditLogEntry, error) {
	var entry *models.CreditLogEntry
	err := l.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := resolveUser(ctx, tx, userRef)
		if err != nil {
			return err
		}
		entry, err = l.Apply(ctx, tx, u, c)
		return err
	})
	if err != nil {
		return nil, err
	}
	l.observe(entry)
	l.log.Info(ctx, "credit change logged", "user_id", entry.UserID, "action", entry.Action, "delta", entry.PointsChange)
	return entry, nil
}

// UpdateUserCredits sets the score to newScore and logs the difference as a
// credit_update entry.
func (l *CreditLedger) UpdateUserCredits(ctx context.Context, userRef string, newScore int, reason string) (*models.CreditUpdate, error) {
	var (
		result *models.CreditUpdate
		entry  *models.CreditLogEntry
	)
	err := l.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := resolveUser(ctx, tx, userRef)
		if err != nil {
			return err
		}
		old := u.CreditScore
		if reason == "" {
			reason = "Manual credit update"
		}
		entry, err = l.Apply(ctx, tx, u, Change{
			Action: models.ActionCreditUpdate,
			Delta:  newScore - old,
			Reason: reason,
		})
		if err != nil {
			return err
		}
		result = &models.CreditUpdate{OldScore: old, NewScore: u.CreditScore, Change: u.CreditScore - old}
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.observe(entry)
	l.log.Info(ctx, "credit score updated", "user_id", entry.UserID, "old", result.OldScore, "new", result.NewScore)
	return result, nil
}

// History returns the user's entries, newest first.
func (l *CreditLedger) History(ctx context.Context, userRef string) ([]models.CreditLogEntry, error) {
	var out []models.CreditLogEntry
	err := l.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := resolveUser(ctx, tx, userRef)
		if err != nil {
			return err
		}
		out, err = tx.ListCreditLog(ctx, u.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func audit(ctx context.Context, tx store.Tx, u *models.User) (*models.CreditAudit, error) {
	entries, err := tx.ListCreditLog(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	derived := models.InitialCreditScore
	for _, e := range entries {
		derived += e.PointsChange
	}
	return &models.CreditAudit{
		UserID:     u.ID,
		Cached:     u.CreditScore,
		Derived:    derived,
		Consistent: derived == u.CreditScore,
		Entries:    len(entries),
	}, nil
}

// Audit recomputes the score from the log and compares it with the cache.
func (l *CreditLedger) Audit(ctx context.Context, userRef string) (*models.CreditAudit, error) {
	var res *models.CreditAudit
	err := l.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := resolveUser(ctx, tx, userRef)
		if err != nil {
			return err
		}
		res, err = audit(ctx, tx, u)
		return err
	})
	return res, err
}

// Reconcile resets a drifted cached score to the value derived from the log.
// It reports the audit taken before the repair and whether a repair happened.
func (l *CreditLedger) Reconcile(ctx context.Context, userRef string) (*models.CreditAudit, bool, error) {
	var (
		res      *models.CreditAudit
		repaired bool
	)
	err := l.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := resolveUser(ctx, tx, userRef)
		if err != nil {
			return err
		}
		res, err = audit(ctx, tx, u)
		if err != nil || res.Consistent {
			return err
		}
		u.CreditScore = res.Derived
		u.UpdatedAt = l.now()
		repaired = true
		return tx.UpdateUser(ctx, u)
	})
	if err != nil {
		return nil, false, err
	}
	if repaired {
		l.log.Warn(ctx, "cached credit score repaired", "user_id", res.UserID, "cached", res.Cached, "derived", res.Derived)
	}
	return res, repaired, nil
}
