package secretstore

import "go.uber.org/fx"

var Module = fx.Module("secretstore",
	fx.Provide(New),
)
