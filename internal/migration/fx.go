package migration

import (
	"context"

	apikeydomain "github.com/smallbiznis/hightide/internal/apikey/domain"
	"github.com/smallbiznis/hightide/internal/config"
	"github.com/smallbiznis/hightide/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, keys apikeydomain.Service, log *zap.Logger) error {
		if err := Apply(conn); err != nil {
			return err
		}
		return seed.EnsureBootstrapAdmin(context.Background(), keys, cfg, log.Named("seed"))
	}),
)
