package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hightide/internal/affiliate"
	"github.com/smallbiznis/hightide/internal/audit"
	"github.com/smallbiznis/hightide/internal/authorization"
	"github.com/smallbiznis/hightide/internal/campaign"
	"github.com/smallbiznis/hightide/internal/clock"
	"github.com/smallbiznis/hightide/internal/commission"
	"github.com/smallbiznis/hightide/internal/config"
	"github.com/smallbiznis/hightide/internal/notification"
	"github.com/smallbiznis/hightide/internal/observability"
	"github.com/smallbiznis/hightide/internal/payout"
	"github.com/smallbiznis/hightide/internal/providers"
	"github.com/smallbiznis/hightide/internal/ratelimit"
	"github.com/smallbiznis/hightide/internal/scheduler"
	"github.com/smallbiznis/hightide/pkg/db"
	"go.uber.org/fx"
)

// Standalone worker: runs the notification dispatcher and payout generation
// without the HTTP surface. Run the API with SCHEDULER_ENABLED=false when
// this worker is deployed.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		providers.Module,
		ratelimit.Module,

		// Domain services required by scheduler jobs
		audit.Module,
		authorization.Module,
		affiliate.Module,
		campaign.Module,
		commission.Module,
		payout.Module,
		notification.Module,

		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
