package audit

import (
	"github.com/saasfoundry/tenantops/internal/audit/repository"
	"github.com/saasfoundry/tenantops/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
