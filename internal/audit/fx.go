package audit

import (
	"github.com/smallbiznis/donara/internal/audit/repository"
	"github.com/smallbiznis/donara/internal/audit/service"
	"go.uber.org/fx"
)

// Module records admin actions. The repository stays private to the module;
// other packages only see domain.Service.
var Module = fx.Module("audit",
	fx.Provide(fx.Private, repository.Provide),
	fx.Provide(service.NewService),
)
