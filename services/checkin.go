package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"ticketchain-backend/logging"
	"ticketchain-backend/metrics"
	"ticketchain-backend/models"
	"ticketchain-backend/store"
)

// Punctuality scoring. A check-in at or before the start earns OnTimeScore,
// one within GracePeriod after it earns GraceScore, anything later LateScore.
const (
	OnTimeScore = 10
	GraceScore  = 5
	LateScore   = -5
	GracePeriod = 15 * time.Minute
)

// Punctuality tiers, used as metric labels.
const (
	TierOnTime = "on_time"
	TierGrace  = "grace"
	TierLate   = "late"
)

// Classify scores a check-in at `at` for an event starting at `start`.
// minutesLate is the lateness rounded to whole minutes, never negative.
func Classify(start, at time.Time) (score, minutesLate int) {
	delta := at.Sub(start)
	minutesLate = int(math.Round(delta.Minutes()))
	if minutesLate < 0 {
		minutesLate = 0
	}
	switch {
	case delta <= 0:
		score = OnTimeScore
	case delta <= GracePeriod:
		score = GraceScore
	default:
		score = LateScore
	}
	return score, minutesLate
}

// Tier names the bucket a score falls in.
func Tier(score int) string {
	switch score {
	case OnTimeScore:
		return TierOnTime
	case GraceScore:
		return TierGrace
	}
	return TierLate
}

// punctualityReason keys off the raw lateness, so a check-in a few seconds
// after start reads "0 min late" rather than "on time".
func punctualityReason(late time.Duration, minutesLate int) string {
	if late > 0 {
		return fmt.Sprintf("Check-in punctuality: %d min late", minutesLate)
	}
	return "Check-in punctuality: on time"
}

type CheckInEngine struct {
	store   store.Store
	ledger  *CreditLedger
	mirror  *Mirror
	log     logging.Logger
	metrics metrics.Recorder
	now     Clock
}

func NewCheckInEngine(s store.Store, ledger *CreditLedger, mirror *Mirror, log logging.Logger, m metrics.Recorder) *CheckInEngine {
	return &CheckInEngine{
		store:   s,
		ledger:  ledger,
		mirror:  mirror,
		log:     log.With("component", "checkin"),
		metrics: m,
		now:     systemClock,
	}
}

// CheckIn records attendance for the user (id or wallet) at the event, scores
// it and credits the result. A nil at means now. When mirror is set the
// check-in is also sent to the chain after the local commit.
func (e *CheckInEngine) CheckIn(ctx context.Context, eventID, userRef string, at *time.Time, mirror bool) (*models.CheckInResult, error) {
	checkInTime := e.now()
	if at != nil {
		checkInTime = at.UTC()
	}

	var (
		res   *models.CheckInResult
		event *models.Event
		user  *models.User
	)
	err := e.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
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
		ev, err := getEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if p.HasCheckedIn() {
			return models.AlreadyCheckedIn("user %s already checked in to event %s", userRef, eventID)
		}

		score, minutesLate := Classify(ev.StartTime, checkInTime)
		p.CheckInTime = &checkInTime
		p.PunctualityScore = score
		p.AttendanceStatus = models.AttendanceCheckedIn
		if err := tx.CheckInParticipation(ctx, p); err != nil {
			if errors.Is(err, models.ErrAlreadyCheckedIn) {
				return models.AlreadyCheckedIn("user %s already checked in to event %s", userRef, eventID)
			}
			return err
		}

		entry, err := e.ledger.Apply(ctx, tx, u, Change{
			EventID: &ev.ID,
			Action:  models.ActionCheckIn,
			Delta:   score,
			Reason:  punctualityReason(checkInTime.Sub(ev.StartTime), minutesLate),
		})
		if err != nil {
			return err
		}

		res = &models.CheckInResult{
			PunctualityScore: score,
			MinutesLate:      minutesLate,
			NewCreditScore:   u.CreditScore,
			Participation:    p,
			Entry:            entry,
		}
		event, user = ev, u
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.RecordCheckIn(Tier(res.PunctualityScore))
	e.ledger.observe(res.Entry)
	e.log.Info(ctx, "participant checked in",
		"event_id", event.ID, "user_id", user.ID,
		"score", res.PunctualityScore, "minutes_late", res.MinutesLate)

	if mirror && e.mirror.Enabled() {
		e.mirror.CheckIn(event.ID, user.ID)
	}
	return res, nil
}
