// Package email renders the donor-facing templates and hands them to SMTP.
package email

import (
	"context"
	"errors"
)

var (
	ErrNoRecipients    = errors.New("email: no recipients")
	ErrUnknownTemplate = errors.New("email: unknown template")
)

// Message is one templated email. Template names a file under templates/
// without its .html suffix.
type Message struct {
	To       []string
	Subject  string
	Template string
	Data     any
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

const TemplateDonationSettled = "donation_settled"

// DonationSettled fills the donation_settled template.
type DonationSettled struct {
	Success               bool
	DonorName             string
	Amount                string
	Currency              string
	OrphanageName         string
	ProviderTransactionID string
	DonationID            string
}
