package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/saasfoundry/tenantops/internal/audit"
	"github.com/saasfoundry/tenantops/internal/clock"
	"github.com/saasfoundry/tenantops/internal/config"
	"github.com/saasfoundry/tenantops/internal/logger"
	"github.com/saasfoundry/tenantops/internal/payment"
	"github.com/saasfoundry/tenantops/internal/recurring"
	"github.com/saasfoundry/tenantops/internal/scheduler"
	"github.com/saasfoundry/tenantops/internal/secretstore"
	"github.com/saasfoundry/tenantops/internal/supportsession"
	"github.com/saasfoundry/tenantops/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domain services driven by the sweep jobs. No HTTP server here.
		audit.Module,
		supportsession.Module,
		recurring.Module,
		payment.Module,
		secretstore.Module,

		scheduler.Module,
		fx.Invoke(scheduler.Run),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
