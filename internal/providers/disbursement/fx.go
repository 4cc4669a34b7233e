package disbursement

import (
	"github.com/smallbiznis/hightide/internal/config"
	payoutdomain "github.com/smallbiznis/hightide/internal/payout/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("disbursement",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) payoutdomain.DisbursementRail {
	rail := NewPayPalRail(cfg.PayPal, nil, log)
	if !rail.Configured() {
		log.Info("paypal rail not configured, payouts are reconciled manually")
		return Noop{}
	}
	return rail
}
