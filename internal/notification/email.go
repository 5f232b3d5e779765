package notification

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/donara/internal/providers/email"
)

// Contact is what the notification channels need to reach a donor.
type Contact struct {
	Name        string
	Email       string
	DeviceToken string
}

type Donors interface {
	DonorContact(ctx context.Context, uid string) (Contact, error)
}

type Orphanages interface {
	DisplayName(ctx context.Context, id snowflake.ID) (string, error)
}

type EmailPublisher struct {
	sender     email.Sender
	donors     Donors
	orphanages Orphanages
}

func NewEmailPublisher(sender email.Sender, donors Donors, orphanages Orphanages) *EmailPublisher {
	return &EmailPublisher{sender: sender, donors: donors, orphanages: orphanages}
}

func (p *EmailPublisher) Name() string { return "email" }

func (p *EmailPublisher) Publish(ctx context.Context, event Event) error {
	contact, err := p.donors.DonorContact(ctx, event.DonorID)
	if err != nil {
		return err
	}
	to := strings.TrimSpace(contact.Email)
	if to == "" {
		return nil
	}

	orphanageName := ""
	if p.orphanages != nil {
		if id, err := snowflake.ParseString(event.OrphanageID); err == nil {
			orphanageName, _ = p.orphanages.DisplayName(ctx, id)
		}
	}
	if orphanageName == "" {
		orphanageName = "the orphanage"
	}

	success := event.Status == "success"
	subject := "Your donation was received"
	if !success {
		subject = "Your donation could not be completed"
	}

	return p.sender.Send(ctx, email.Message{
		To:       []string{to},
		Subject:  subject,
		Template: email.TemplateDonationSettled,
		Data: email.DonationSettled{
			Success:               success,
			DonorName:             firstNonEmpty(contact.Name, "friend"),
			Amount:                event.Amount.StringFixed(2),
			Currency:              event.Currency,
			OrphanageName:         orphanageName,
			ProviderTransactionID: event.ProviderTransactionID,
			DonationID:            event.DonationID,
		},
	})
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
