package notification

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	donationdomain "github.com/smallbiznis/donara/internal/donation/domain"
	orphanagedomain "github.com/smallbiznis/donara/internal/orphanage/domain"
	"github.com/smallbiznis/donara/internal/providers/email"
	userdomain "github.com/smallbiznis/donara/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(newDonors, newOrphanages),
	fx.Provide(
		fx.Annotate(newKafkaPublisher, fx.ResultTags(`group:"notification_publishers"`)),
		fx.Annotate(newFCMPublisher, fx.ResultTags(`group:"notification_publishers"`)),
		fx.Annotate(newEmailPublisher, fx.ResultTags(`group:"notification_publishers"`)),
	),
	fx.Provide(NewDispatcher),
	fx.Provide(func(d *Dispatcher) donationdomain.SettledNotifier { return d }),
)

func newEmailPublisher(sender email.Sender, donors Donors, orphanages Orphanages, log *zap.Logger) Publisher {
	if sender == nil {
		return nil
	}
	log.Info("email publisher initialized")
	return NewEmailPublisher(sender, donors, orphanages)
}


type donorDirectory struct {
	users userdomain.Service
}

func newDonors(users userdomain.Service) Donors {
	return donorDirectory{users: users}
}

func (d donorDirectory) DonorContact(ctx context.Context, uid string) (Contact, error) {
	user, err := d.users.Get(ctx, uid)
	if err != nil {
		if errors.Is(err, userdomain.ErrNotFound) {
			return Contact{}, nil
		}
		return Contact{}, err
	}
	return Contact{Name: user.Name, Email: user.Email, DeviceToken: user.FCMToken}, nil
}

type orphanageDirectory struct {
	orphanages orphanagedomain.Service
}

func newOrphanages(orphanages orphanagedomain.Service) Orphanages {
	return orphanageDirectory{orphanages: orphanages}
}

func (d orphanageDirectory) DisplayName(ctx context.Context, id snowflake.ID) (string, error) {
	item, err := d.orphanages.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return item.Name, nil
}
