package notification

import (
	"context"
	"errors"
	"strings"

	"firebase.google.com/go/v4/messaging"
	"github.com/smallbiznis/donara/internal/config"
	"go.uber.org/zap"
)

type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMPublisher announces successful donations on the public topic and tells
// the donor directly on their device.
type FCMPublisher struct {
	client messageSender
	donors Donors
	topic  string
}

func NewFCMPublisher(client messageSender, donors Donors, topic string) *FCMPublisher {
	return &FCMPublisher{client: client, donors: donors, topic: strings.TrimSpace(topic)}
}

func (p *FCMPublisher) Name() string { return "fcm" }

func (p *FCMPublisher) Publish(ctx context.Context, event Event) error {
	data := map[string]string{
		"donation_id":  event.DonationID,
		"orphanage_id": event.OrphanageID,
		"status":       event.Status,
		"amount":       event.Amount.StringFixed(2),
		"currency":     event.Currency,
	}

	var errs []error
	if p.topic != "" && event.Status == "success" {
		_, err := p.client.Send(ctx, &messaging.Message{
			Topic: p.topic,
			Data:  data,
			Notification: &messaging.Notification{
				Title: "New donation received",
				Body:  event.Currency + " " + event.Amount.StringFixed(2) + " donated",
			},
		})
		if err != nil {
			errs = append(errs, err)
		}
	}

	if p.donors != nil {
		contact, err := p.donors.DonorContact(ctx, event.DonorID)
		if err != nil {
			errs = append(errs, err)
		} else if contact.DeviceToken != "" {
			_, err := p.client.Send(ctx, &messaging.Message{
				Token:        contact.DeviceToken,
				Data:         data,
				Notification: donorNotification(event),
			})
			if err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func donorNotification(event Event) *messaging.Notification {
	if event.Status == "success" {
		return &messaging.Notification{
			Title: "Thank you for your donation",
			Body:  "Your donation of " + event.Currency + " " + event.Amount.StringFixed(2) + " was successful.",
		}
	}
	return &messaging.Notification{
		Title: "Donation not completed",
		Body:  "Your donation of " + event.Currency + " " + event.Amount.StringFixed(2) + " did not go through.",
	}
}

func newFCMPublisher(client *messaging.Client, donors Donors, cfg config.Config, log *zap.Logger) Publisher {
	if client == nil {
		return nil
	}
	log.Info("fcm publisher initialized", zap.String("topic", cfg.Firebase.DonationTopic))
	return NewFCMPublisher(client, donors, cfg.Firebase.DonationTopic)
}
