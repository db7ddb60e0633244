package payment

import (
	"github.com/saasfoundry/tenantops/internal/config"
	"github.com/saasfoundry/tenantops/internal/payment/adapters"
	"github.com/saasfoundry/tenantops/internal/payment/adapters/powertranz"
	paymentdomain "github.com/saasfoundry/tenantops/internal/payment/domain"
	"github.com/saasfoundry/tenantops/internal/payment/repository"
	"github.com/saasfoundry/tenantops/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			powertranz.NewFactory(),
		)
	}),
	fx.Provide(func(registry *adapters.Registry, cfg config.Config) (paymentdomain.Adapter, error) {
		return registry.NewAdapter("powertranz", webhook.AdapterConfigFromEnv(cfg))
	}),
	fx.Provide(webhook.NewService),
)
