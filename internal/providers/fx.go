package providers

import (
	"github.com/smallbiznis/hightide/internal/providers/disbursement"
	"github.com/smallbiznis/hightide/internal/providers/email"
	"github.com/smallbiznis/hightide/internal/providers/pdf"
	"go.uber.org/fx"
)

// Module wires the outbound collaborators: mail, statement rendering and the
// payout rail.
var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
	disbursement.Module,
)
