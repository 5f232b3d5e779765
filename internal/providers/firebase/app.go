package firebase

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/messaging"
	"github.com/smallbiznis/donara/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

var Module = fx.Module("providers.firebase",
	fx.Provide(NewApp),
	fx.Provide(NewAuthClient),
	fx.Provide(NewMessagingClient),
)

// NewApp initializes the Firebase Admin SDK. It returns nil when Firebase is disabled.
func NewApp(cfg config.Config, log *zap.Logger) (*firebase.App, error) {
	if !cfg.Firebase.Enabled {
		log.Info("firebase disabled")
		return nil, nil
	}

	var appCfg *firebase.Config
	if cfg.Firebase.ProjectID != "" {
		appCfg = &firebase.Config{ProjectID: cfg.Firebase.ProjectID}
	}
	opts := []option.ClientOption{}
	if cfg.Firebase.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
	}

	app, err := firebase.NewApp(context.Background(), appCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase: %w", err)
	}
	log.Info("firebase initialized", zap.String("project_id", cfg.Firebase.ProjectID))
	return app, nil
}

func NewAuthClient(app *firebase.App) (*auth.Client, error) {
	if app == nil {
		return nil, nil
	}
	return app.Auth(context.Background())
}

func NewMessagingClient(app *firebase.App) (*messaging.Client, error) {
	if app == nil {
		return nil, nil
	}
	return app.Messaging(context.Background())
}
