package campaign

import (
	"github.com/smallbiznis/hightide/internal/campaign/repository"
	"github.com/smallbiznis/hightide/internal/campaign/service"
	"go.uber.org/fx"
)

var Module = fx.Module("campaign.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
