package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"ticketchain-backend/logging"
	"ticketchain-backend/metrics"
	"ticketchain-backend/models"
	"ticketchain-backend/store"
)

const (
	ReviewerBonus   = 2
	HighRatingBonus = 5
	HighRating      = 4
)

type FeedbackService struct {
	store   store.Store
	ledger  *CreditLedger
	log     logging.Logger
	metrics metrics.Recorder
	now     Clock
}

func NewFeedbackService(s store.Store, ledger *CreditLedger, log logging.Logger, m metrics.Recorder) *FeedbackService {
	return &FeedbackService{
		store:   s,
		ledger:  ledger,
		log:     log.With("component", "feedback"),
		metrics: m,
		now:     systemClock,
	}
}

func validateFeedback(req *models.FeedbackRequest) error {
	var missing []string
	if strings.TrimSpace(req.EventID) == "" {
		missing = append(missing, "event_id")
	}
	if strings.TrimSpace(req.ReviewerID) == "" {
		missing = append(missing, "reviewer_id")
	}
	if strings.TrimSpace(req.RevieweeID) == "" {
		missing = append(missing, "reviewee_id")
	}
	if len(missing) > 0 {
		return models.Validation("missing required fields: %s", strings.Join(missing, ", "))
	}
	if req.Rating < 1 || req.Rating > 5 {
		return models.Validation("rating must be between 1 and 5")
	}
	switch req.RevieweeType {
	case models.RevieweeOrganizer, models.RevieweeSpeaker:
	default:
		return models.Validation("reviewee_type must be organizer or speaker")
	}
	return nil
}

// tryResolve is resolveUser that treats an unknown user as nil.
func tryResolve(ctx context.Context, tx store.Tx, ref string) (*models.User, error) {
	u, err := resolveUser(ctx, tx, ref)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	return u, err
}

// partyID is the resolved user's ID, or the raw reference when no user matches.
func partyID(u *models.User, ref string) string {
	if u != nil {
		return u.ID
	}
	return ref
}

// SubmitFeedback stores a rating and credits both sides: the reviewer always,
// the reviewee only for a high rating. Parties that do not resolve to a user
// are not credited.
func (s *FeedbackService) SubmitFeedback(ctx context.Context, req *models.FeedbackRequest) (*models.Feedback, error) {
	if err := validateFeedback(req); err != nil {
		return nil, err
	}

	var (
		fb      *models.Feedback
		entries []*models.CreditLogEntry
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		entries = nil
		ev, err := getEvent(ctx, tx, req.EventID)
		if err != nil {
			return err
		}
		reviewer, err := tryResolve(ctx, tx, req.ReviewerID)
		if err != nil {
			return err
		}
		reviewee, err := tryResolve(ctx, tx, req.RevieweeID)
		if err != nil {
			return err
		}

		fb = &models.Feedback{
			ID:           uuid.NewString(),
			EventID:      ev.ID,
			ReviewerID:   partyID(reviewer, req.ReviewerID),
			RevieweeID:   partyID(reviewee, req.RevieweeID),
			RevieweeType: req.RevieweeType,
			Rating:       req.Rating,
			Comment:      req.Comment,
			CreatedAt:    s.now(),
		}
		if err := tx.CreateFeedback(ctx, fb); err != nil {
			return fmt.Errorf("create feedback: %w", err)
		}

		if reviewer != nil {
			entry, err := s.ledger.Apply(ctx, tx, reviewer, Change{
				EventID: &ev.ID,
				Action:  models.ActionFeedbackGiven,
				Delta:   ReviewerBonus,
				Reason:  "Provided event feedback",
			})
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}

		if req.Rating < HighRating {
			return nil
		}
		if reviewee != nil {
			entry, err := s.ledger.Apply(ctx, tx, reviewee, Change{
				EventID: &ev.ID,
				Action:  models.ActionFeedbackReceived,
				Delta:   HighRatingBonus,
				Reason:  fmt.Sprintf("High rating (%d/5) as %s", req.Rating, req.RevieweeType),
			})
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordFeedback(fb.Rating)
	s.ledger.observe(entries...)
	s.log.Info(ctx, "feedback submitted", "event_id", fb.EventID, "rating", fb.Rating, "credited", len(entries))
	return fb, nil
}

func (s *FeedbackService) ListEventFeedback(ctx context.Context, eventID string) ([]models.Feedback, error) {
	var out []models.Feedback
	err := s.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := getEvent(ctx, tx, eventID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListFeedback(ctx, eventID)
		return err
	})
	return out, err
}
