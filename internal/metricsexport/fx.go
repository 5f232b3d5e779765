package metricsexport

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/donara/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("metrics.export",
	fx.Provide(NewPusher),
	fx.Provide(NewExporter),
	fx.Invoke(registerExporter),
)

// Exporter periodically pushes the donation registry. It keeps its own
// registry so the push carries only exported series.
type Exporter struct {
	registry *prometheus.Registry
	pusher   Pusher
	interval time.Duration
	log      *zap.Logger
}

type ExporterParams struct {
	fx.In

	Cfg    config.Config
	DB     *gorm.DB
	Log    *zap.Logger
	Pusher Pusher `optional:"true"`
}

// NewExporter returns nil when no pusher is configured.
func NewExporter(p ExporterParams) (*Exporter, error) {
	if p.Pusher == nil {
		return nil, nil
	}
	registry := prometheus.NewRegistry()
	collector := NewDonationCollector(p.DB, p.Log, prometheus.Labels{
		"service": strings.TrimSpace(p.Cfg.AppName),
		"env":     strings.TrimSpace(p.Cfg.Environment),
	})
	if err := registry.Register(collector); err != nil {
		return nil, err
	}

	interval := p.Cfg.Metrics.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Exporter{
		registry: registry,
		pusher:   p.Pusher,
		interval: interval,
		log:      p.Log.Named("metrics.export"),
	}, nil
}

func (e *Exporter) PushOnce(ctx context.Context) error {
	if e == nil || e.pusher == nil {
		return nil
	}
	return e.pusher.Push(ctx, e.registry)
}

func (e *Exporter) run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.push(ctx)
	for {
		select {
		case <-ticker.C:
			e.push(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (e *Exporter) push(ctx context.Context) {
	pushCtx, cancel := context.WithTimeout(ctx, defaultPushTimeout)
	defer cancel()
	if err := e.PushOnce(pushCtx); err != nil && ctx.Err() == nil {
		e.log.Warn("metrics push failed", zap.Error(err))
	}
}

func registerExporter(lc fx.Lifecycle, e *Exporter, log *zap.Logger) {
	if e == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("starting metrics export", zap.Duration("interval", e.interval))
			go func() {
				defer close(done)
				e.run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
