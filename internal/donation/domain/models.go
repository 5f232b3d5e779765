package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

const CurrencyINR = "INR"

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

type Method string

const (
	MethodProviderAOrder    Method = "provider_a_order"
	MethodProviderBRedirect Method = "provider_b_redirect"
	MethodManualIntent      Method = "manual_intent"
)

// ParseMethod accepts the canonical method names and the provider names older clients send.
func ParseMethod(raw string) (Method, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(MethodProviderAOrder), "razorpay":
		return MethodProviderAOrder, true
	case string(MethodProviderBRedirect), "phonepe":
		return MethodProviderBRedirect, true
	case string(MethodManualIntent), "upi":
		return MethodManualIntent, true
	default:
		return "", false
	}
}

// Outcome is what a verified provider signal says about a payment.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomePending Outcome = "pending"
)

// Status maps a terminal outcome to the donation status it settles into.
func (o Outcome) Status() (Status, bool) {
	switch o {
	case OutcomeSuccess:
		return StatusSuccess, true
	case OutcomeFailure:
		return StatusFailed, true
	default:
		return "", false
	}
}

type Donation struct {
	ID                    snowflake.ID    `gorm:"primaryKey" json:"id"`
	DonorID               string          `gorm:"column:donor_id;not null;index:idx_donations_donor" json:"donor_id"`
	OrphanageID           snowflake.ID    `gorm:"column:orphanage_id;not null" json:"orphanage_id"`
	Amount                decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Currency              string          `gorm:"column:currency;not null" json:"currency"`
	Method                Method          `gorm:"column:method;not null" json:"method"`
	Status                Status          `gorm:"column:status;not null;index:idx_donations_status" json:"status"`
	ProviderTransactionID *string         `gorm:"column:provider_transaction_id" json:"provider_transaction_id,omitempty"`
	Note                  string          `gorm:"column:note" json:"note,omitempty"`
	CreatedAt             time.Time       `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"column:updated_at;not null" json:"updated_at"`
	SettledAt             *time.Time      `gorm:"column:settled_at" json:"settled_at,omitempty"`
}

func (Donation) TableName() string { return "donations" }
