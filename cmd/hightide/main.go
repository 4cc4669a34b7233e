package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hightide/internal/affiliate"
	"github.com/smallbiznis/hightide/internal/apikey"
	"github.com/smallbiznis/hightide/internal/audit"
	"github.com/smallbiznis/hightide/internal/authorization"
	"github.com/smallbiznis/hightide/internal/campaign"
	"github.com/smallbiznis/hightide/internal/clock"
	"github.com/smallbiznis/hightide/internal/commission"
	"github.com/smallbiznis/hightide/internal/config"
	"github.com/smallbiznis/hightide/internal/customer"
	"github.com/smallbiznis/hightide/internal/migration"
	"github.com/smallbiznis/hightide/internal/notification"
	"github.com/smallbiznis/hightide/internal/observability"
	"github.com/smallbiznis/hightide/internal/payment"
	"github.com/smallbiznis/hightide/internal/payout"
	"github.com/smallbiznis/hightide/internal/providers"
	"github.com/smallbiznis/hightide/internal/ratelimit"
	"github.com/smallbiznis/hightide/internal/scheduler"
	"github.com/smallbiznis/hightide/internal/server"
	"github.com/smallbiznis/hightide/internal/tracking"
	"github.com/smallbiznis/hightide/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		providers.Module,
		ratelimit.Module,

		// Access control
		audit.Module,
		authorization.Module,
		apikey.Module,

		// Affiliate program
		affiliate.Module,
		campaign.Module,
		customer.Module,
		tracking.Module,
		payment.Module,
		commission.Module,
		payout.Module,
		notification.Module,

		// Schema and bootstrap admin key before anything serves traffic.
		migration.Module,

		server.Module,
		scheduler.Module,
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
