package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/donara/pkg/db/pagination"
)

// Service is the donation ledger gateway: the only writer of donation rows.
type Service interface {
	Create(ctx context.Context, req CreateDonationRequest) (*Donation, error)
	ApplyStatus(ctx context.Context, req ApplyStatusRequest) (ApplyResult, error)
	Get(ctx context.Context, id snowflake.ID) (*Donation, error)
	GetForDonor(ctx context.Context, donorID string, id snowflake.ID) (*Donation, error)
	ListByDonor(ctx context.Context, req ListDonationsRequest) (ListDonationsResponse, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Donation, error)
	CountPendingBefore(ctx context.Context, before time.Time) (int64, error)
}

// SettledNotifier is told once per donation, after its terminal write commits.
type SettledNotifier interface {
	DonationSettled(ctx context.Context, donation Donation)
}

type CreateDonationRequest struct {
	DonorID     string
	OrphanageID snowflake.ID
	Amount      decimal.Decimal
	Currency    string
	Method      Method
	Note        string
}

type ApplyStatusRequest struct {
	DonationID            snowflake.ID
	Outcome               Outcome
	ProviderTransactionID string
}

// ApplyResult reports the donation as stored after the call. Changed is true
// only for the caller whose write moved the donation out of pending.
type ApplyResult struct {
	Donation *Donation
	Changed  bool
}

type ListDonationsRequest struct {
	DonorID    string
	Pagination pagination.Pagination
}

type ListDonationsResponse struct {
	Donations []*Donation         `json:"donations"`
	PageInfo  pagination.PageInfo `json:"page_info"`
}
