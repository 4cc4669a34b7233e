package seed

import (
	"context"
	"strings"

	apikeydomain "github.com/smallbiznis/hightide/internal/apikey/domain"
	"github.com/smallbiznis/hightide/internal/config"
	"go.uber.org/zap"
)

const bootstrapAdminKeyName = "bootstrap admin"

// EnsureBootstrapAdmin stores BOOTSTRAP_ADMIN_API_KEY as an admin key so a
// fresh install can reach the admin API. It is a no-op once the key exists.
func EnsureBootstrapAdmin(ctx context.Context, keys apikeydomain.Service, cfg config.Config, log *zap.Logger) error {
	secret := strings.TrimSpace(cfg.Bootstrap.AdminAPIKey)
	if secret == "" {
		if cfg.IsProduction() {
			log.Warn("no bootstrap admin api key configured")
		}
		return nil
	}

	created, err := keys.EnsureSecret(ctx, apikeydomain.CreateRequest{
		Name: bootstrapAdminKeyName,
		Role: apikeydomain.RoleAdmin,
	}, secret)
	if err != nil {
		return err
	}
	if created {
		log.Info("bootstrap admin api key stored")
	}
	return nil
}
