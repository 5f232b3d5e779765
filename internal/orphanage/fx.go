package orphanage

import (
	"github.com/smallbiznis/donara/internal/orphanage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("orphanage.service",
	fx.Provide(service.New),
)
