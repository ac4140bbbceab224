package models

import (
	"time"
)

const (
	RevieweeOrganizer = "organizer"
	RevieweeSpeaker   = "speaker"
)

type Feedback struct {
	ID           string    `json:"id" db:"id"`
	EventID      string    `json:"event_id" db:"event_id"`
	ReviewerID   string    `json:"reviewer_id" db:"reviewer_id"`
	RevieweeID   string    `json:"reviewee_id" db:"reviewee_id"`
	RevieweeType string    `json:"reviewee_type" db:"reviewee_type"`
	Rating       int       `json:"rating" db:"rating"`
	Comment      string    `json:"comment" db:"comment"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type FeedbackRequest struct {
	EventID      string `json:"event_id"`
	ReviewerID   string `json:"reviewer_id"`
	RevieweeID   string `json:"reviewee_id"`
	RevieweeType string `json:"reviewee_type"`
	Rating       int    `json:"rating"`
	Comment      string `json:"comment"`
}
