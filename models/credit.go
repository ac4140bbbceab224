package models

import (
	"time"
)

// Credit log actions
const (
	ActionCheckIn           = "check_in"
	ActionCreditUpdate      = "credit_update"
	ActionEventRegistered   = "event_registered"
	ActionBlockchainCheckIn = "blockchain_checkin"
	ActionFeedbackGiven     = "feedback_given"
	ActionFeedbackReceived  = "feedback_received"
)

// CreditLogEntry is an immutable record of one score change
type CreditLogEntry struct {
	ID              string    `json:"id" db:"id"`
	UserID          string    `json:"user_id" db:"user_id"`
	EventID         *string   `json:"event_id,omitempty" db:"event_id"`
	Action          string    `json:"action" db:"action"`
	PointsChange    int       `json:"points_change" db:"points_change"`
	Reason          string    `json:"reason" db:"reason"`
	TransactionHash string    `json:"transaction_hash,omitempty" db:"transaction_hash"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// CreditUpdate is the outcome of setting an absolute score
type CreditUpdate struct {
	OldScore int `json:"old_score"`
	NewScore int `json:"new_score"`
	Change   int `json:"change"`
}

// CreditAudit compares the cached score against the log
type CreditAudit struct {
	UserID     string `json:"user_id"`
	Cached     int    `json:"cached_score"`
	Derived    int    `json:"derived_score"`
	Consistent bool   `json:"consistent"`
	Entries    int    `json:"entries"`
}
