package auth

import (
	"context"

	"github.com/smallbiznis/donara/internal/auth/domain"
	"github.com/smallbiznis/donara/internal/auth/repository"
	"github.com/smallbiznis/donara/internal/auth/service"
	"github.com/smallbiznis/donara/internal/auth/session"
	"github.com/smallbiznis/donara/internal/clock"
	"github.com/smallbiznis/donara/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("auth.service",
	fx.Provide(repository.New),
	fx.Provide(service.New),
	fx.Provide(newSessionManager),
	fx.Invoke(bootstrapAdmin),
)

type sessionParams struct {
	fx.In

	Cfg   config.Config
	Clock clock.Clock `optional:"true"`
}

func newSessionManager(p sessionParams) *session.Manager {
	return session.NewManagerWithClock(p.Cfg, p.Clock)
}

func bootstrapAdmin(lc fx.Lifecycle, svc domain.Service, cfg config.Config, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return service.Bootstrap(ctx, svc, cfg, log.Named("auth.bootstrap"))
		},
	})
}
