package models

import (
	"time"
)

// AttendanceStatus is the lifecycle state of a participation
type AttendanceStatus string

const (
	AttendancePending    AttendanceStatus = "pending"
	AttendanceRegistered AttendanceStatus = "registered"
	AttendanceApproved   AttendanceStatus = "approved"
	AttendanceRejected   AttendanceStatus = "rejected"
	AttendanceCheckedIn  AttendanceStatus = "checked_in"
	AttendanceCheckedOut AttendanceStatus = "checked_out"
)

// Valid reports whether s is a known status.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePending, AttendanceRegistered, AttendanceApproved,
		AttendanceRejected, AttendanceCheckedIn, AttendanceCheckedOut:
		return true
	}
	return false
}

// Participation links one user to one event
type Participation struct {
	ID               string           `json:"id" db:"id"`
	EventID          string           `json:"event_id" db:"event_id"`
	UserID           string           `json:"user_id" db:"user_id"`
	RegistrationTime time.Time        `json:"registration_time" db:"registration_time"`
	CheckInTime      *time.Time       `json:"check_in_time,omitempty" db:"check_in_time"`
	CheckOutTime     *time.Time       `json:"check_out_time,omitempty" db:"check_out_time"`
	AttendanceStatus AttendanceStatus `json:"attendance_status" db:"attendance_status"`
	PunctualityScore int              `json:"punctuality_score" db:"punctuality_score"`
}

// HasCheckedIn reports whether the participation has ever been checked in.
// A check-in stays on record through check-out and later status changes.
func (p *Participation) HasCheckedIn() bool {
	return p.CheckInTime != nil ||
		p.AttendanceStatus == AttendanceCheckedIn ||
		p.AttendanceStatus == AttendanceCheckedOut
}

type RegisterRequest struct {
	UserID string           `json:"user_id" binding:"required"`
	Status AttendanceStatus `json:"status"`
}

type UpdateStatusRequest struct {
	Status AttendanceStatus `json:"status" binding:"required"`
}

// Ticket is the QR payload handed to a registered participant
type Ticket struct {
	EventID       string `json:"event_id"`
	UserID        string `json:"user_id"`
	WalletAddress string `json:"wallet_address"`
	Payload       string `json:"qr_data"`
}
