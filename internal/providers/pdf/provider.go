package pdf

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("pdf",
	fx.Provide(New),
)

// Provider renders documents handed to affiliates.
type Provider interface {
	GenerateStatement(ctx context.Context, data StatementData) ([]byte, error)
}

type MarotoProvider struct{}

func New() Provider {
	return &MarotoProvider{}
}
