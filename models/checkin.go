package models

import (
	"time"
)

type CheckInRequest struct {
	UserID        string     `json:"user_id" binding:"required"`
	CheckInTime   *time.Time `json:"check_in_time"`
	UseBlockchain bool       `json:"use_blockchain"`
}

// CheckInResult is returned by a successful check-in
type CheckInResult struct {
	PunctualityScore int             `json:"punctuality_score"`
	MinutesLate      int             `json:"minutes_late"`
	NewCreditScore   int             `json:"new_credit_score"`
	Participation    *Participation  `json:"participation"`
	Entry            *CreditLogEntry `json:"credit_entry"`
}

// ChainReceipt identifies a mined mirror transaction
type ChainReceipt struct {
	TransactionHash string `json:"transaction_hash"`
	BlockNumber     uint64 `json:"block_number"`
	// EventID is set for event registrations only.
	EventID *int64 `json:"event_id,omitempty"`
}
