package models

import (
	"time"
)

// EventStatusUpcoming is the status every event is created with.
const EventStatusUpcoming = "upcoming"

// Event represents a scheduled event owned by an organizer
type Event struct {
	ID           string    `json:"id" db:"id"`
	Title        string    `json:"title" db:"title"`
	Description  string    `json:"description" db:"description"`
	Location     string    `json:"location" db:"location"`
	StartTime    time.Time `json:"date_time" db:"date_time"`
	MaxAttendees int       `json:"max_attendees" db:"max_attendees"`
	OrganizerID  string    `json:"organizer_id" db:"organizer_id"`
	Status       string    `json:"status" db:"status"`
	// ChainEventID is the contract-side id once the event has been mirrored.
	ChainEventID *int64    `json:"blockchain_event_id,omitempty" db:"blockchain_event_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type CreateEventRequest struct {
	Title         string    `json:"title" binding:"required"`
	Description   string    `json:"description"`
	Location      string    `json:"location"`
	StartTime     time.Time `json:"date_time" binding:"required"`
	MaxAttendees  int       `json:"max_attendees"`
	OrganizerID   string    `json:"organizer_id" binding:"required"`
	UseBlockchain bool      `json:"use_blockchain"`
}
