package assignment

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
)

// IsOpen reports whether an attempt blocks a new one from starting.
func (s PaymentStatus) IsOpen() bool {
	return s == PaymentPending || s == PaymentProcessing || s == PaymentCompleted
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:    {PaymentProcessing, PaymentFailed},
	PaymentProcessing: {PaymentCompleted, PaymentFailed},
}

func CanAdvancePayment(from, to PaymentStatus) bool {
	for _, s := range paymentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Payment is one settlement attempt for an assignment. A failed attempt is
// never reopened; retrying records a new attempt with the same amount.
type Payment struct {
	ID            string          `yaml:"id" json:"id"`
	AssignmentID  string          `yaml:"assignment_id" json:"assignment_id"`
	CandidateID   string          `yaml:"candidate_id" json:"candidate_id"`
	Attempt       int             `yaml:"attempt" json:"attempt"`
	Status        PaymentStatus   `yaml:"status" json:"status"`
	Amount        decimal.Decimal `yaml:"amount" json:"amount"`
	Currency      string          `yaml:"currency" json:"currency"`
	TransactionID string          `yaml:"transaction_id,omitempty" json:"transaction_id,omitempty"`
	FailureReason string          `yaml:"failure_reason,omitempty" json:"failure_reason,omitempty"`
	ProcessedDate *time.Time      `yaml:"processed_date,omitempty" json:"processed_date,omitempty"`
	CreatedAt     time.Time       `yaml:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `yaml:"updated_at" json:"updated_at"`
}
