package payment

import (
	"context"
	"net/http"
	"time"

	"github.com/smallbiznis/donara/internal/config"
	"github.com/smallbiznis/donara/internal/payment/adapters"
	"github.com/smallbiznis/donara/internal/payment/adapters/phonepe"
	"github.com/smallbiznis/donara/internal/payment/adapters/razorpay"
	"github.com/smallbiznis/donara/internal/payment/reconcile"
	"github.com/smallbiznis/donara/internal/payment/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(newRegistry),
	fx.Provide(reconcile.New),
	fx.Invoke(registerShutdown),
)

func newRegistry(cfg config.Config, providers *config.ProvidersHolder, log *zap.Logger) *adapters.Registry {
	timeout := cfg.Payments.ProviderTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	return adapters.NewRegistry(
		razorpay.NewAdapter(providers, client, log),
		phonepe.NewAdapter(providers, client, cfg.PublicBaseURL, log),
	)
}

func registerShutdown(lc fx.Lifecycle, coordinator *reconcile.Coordinator, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := coordinator.Shutdown(ctx); err != nil {
				log.Warn("payment workers still running at shutdown", zap.Error(err))
			}
			return nil
		},
	})
}
