package supportsession

import (
	sessiondomain "github.com/saasfoundry/tenantops/internal/supportsession/domain"
	"github.com/saasfoundry/tenantops/internal/supportsession/notifier"
	"github.com/saasfoundry/tenantops/internal/supportsession/repository"
	"github.com/saasfoundry/tenantops/internal/supportsession/service"
	"go.uber.org/fx"
)

var Module = fx.Module("supportsession",
	fx.Provide(repository.Provide),
	fx.Provide(func(n *notifier.HTTPNotifier) sessiondomain.Notifier { return n }),
	fx.Provide(notifier.New),
	fx.Provide(service.NewService),
)
