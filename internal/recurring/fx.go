package recurring

import (
	"github.com/saasfoundry/tenantops/internal/recurring/repository"
	"github.com/saasfoundry/tenantops/internal/recurring/service"
	"go.uber.org/fx"
)

var Module = fx.Module("recurring",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
