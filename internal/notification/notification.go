package notification

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	donationdomain "github.com/smallbiznis/donara/internal/donation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultPublishTimeout = 5 * time.Second

// Event is the settled-donation message every channel receives.
type Event struct {
	DonationID            string          `json:"donation_id"`
	DonorID               string          `json:"donor_id"`
	OrphanageID           string          `json:"orphanage_id"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	Method                string          `json:"method"`
	Status                string          `json:"status"`
	ProviderTransactionID string          `json:"provider_transaction_id,omitempty"`
	SettledAt             time.Time       `json:"settled_at"`
}

func EventFromDonation(d donationdomain.Donation) Event {
	event := Event{
		DonationID:  d.ID.String(),
		DonorID:     d.DonorID,
		OrphanageID: d.OrphanageID.String(),
		Amount:      d.Amount,
		Currency:    d.Currency,
		Method:      string(d.Method),
		Status:      string(d.Status),
		SettledAt:   d.UpdatedAt,
	}
	if d.ProviderTransactionID != nil {
		event.ProviderTransactionID = *d.ProviderTransactionID
	}
	if d.SettledAt != nil {
		event.SettledAt = *d.SettledAt
	}
	return event
}

// Publisher delivers an event on one channel.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, event Event) error
}

type Params struct {
	fx.In

	Log        *zap.Logger
	Publishers []Publisher `group:"notification_publishers"`
}

// Dispatcher fans a settled donation out to every configured publisher.
// Failures are logged and never reach the ledger.
type Dispatcher struct {
	log        *zap.Logger
	publishers []Publisher
	timeout    time.Duration
}

func NewDispatcher(p Params) *Dispatcher {
	publishers := make([]Publisher, 0, len(p.Publishers))
	for _, publisher := range p.Publishers {
		if publisher != nil {
			publishers = append(publishers, publisher)
		}
	}
	return &Dispatcher{
		log:        p.Log.Named("notification"),
		publishers: publishers,
		timeout:    defaultPublishTimeout,
	}
}

func (d *Dispatcher) DonationSettled(ctx context.Context, donation donationdomain.Donation) {
	if len(d.publishers) == 0 {
		return
	}
	event := EventFromDonation(donation)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	for _, publisher := range d.publishers {
		if err := publisher.Publish(ctx, event); err != nil {
			d.log.Warn("notification publish failed",
				zap.String("publisher", publisher.Name()),
				zap.String("donation_id", event.DonationID),
				zap.Error(err),
			)
			continue
		}
		d.log.Debug("notification published",
			zap.String("publisher", publisher.Name()),
			zap.String("donation_id", event.DonationID),
		)
	}
}

var _ donationdomain.SettledNotifier = (*Dispatcher)(nil)
