package disbursement

import (
	"context"

	payoutdomain "github.com/smallbiznis/hightide/internal/payout/domain"
)

// Noop is used when no rail credentials are configured.
type Noop struct{}

func (Noop) Configured() bool { return false }

func (Noop) Disburse(context.Context, payoutdomain.Batch) (payoutdomain.Receipt, error) {
	return payoutdomain.Receipt{}, ErrNotConfigured
}
