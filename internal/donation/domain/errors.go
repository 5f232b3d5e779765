package domain

import (
	"errors"

	"github.com/smallbiznis/donara/internal/amount"
)

var (
	ErrNotFound          = errors.New("donation_not_found")
	ErrConflictingStatus = errors.New("conflicting_status")
	ErrInvalidAmount     = amount.ErrInvalidAmount
	ErrInvalidCurrency   = errors.New("invalid_currency")
	ErrInvalidDonor      = errors.New("invalid_donor")
	ErrInvalidOrphanage  = errors.New("invalid_orphanage")
	ErrUnsupportedMethod = errors.New("unsupported_method")
	ErrInvalidOutcome    = errors.New("invalid_outcome")
)
