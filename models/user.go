package models

import (
	"time"
)

// InitialCreditScore is the score every user starts with.
const InitialCreditScore = 100

// User represents an account identified by id or wallet address
type User struct {
	ID            string    `json:"id" db:"id"`
	WalletAddress string    `json:"wallet_address" db:"wallet_address"`
	Name          string    `json:"name" db:"name"`
	Email         string    `json:"email" db:"email"`
	CreditScore   int       `json:"credit_score" db:"credit_score"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

type CreateUserRequest struct {
	WalletAddress string `json:"wallet_address" binding:"required"`
	Name          string `json:"name"`
	Email         string `json:"email"`
}

// UpdateCreditsRequest sets a user's score to an absolute value
type UpdateCreditsRequest struct {
	NewScore *int   `json:"new_score" binding:"required"`
	Reason   string `json:"reason"`
}
