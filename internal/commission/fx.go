package commission

import (
	"github.com/smallbiznis/hightide/internal/commission/domain"
	"github.com/smallbiznis/hightide/internal/commission/repository"
	"github.com/smallbiznis/hightide/internal/commission/service"
	"go.uber.org/fx"
)

var Module = fx.Module("commission.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(
		func(s *service.Service) domain.Calculator { return s },
		func(s *service.Service) domain.Service { return s },
	),
)
