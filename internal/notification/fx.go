package notification

import (
	"github.com/smallbiznis/hightide/internal/notification/domain"
	"github.com/smallbiznis/hightide/internal/notification/repository"
	"github.com/smallbiznis/hightide/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(
		func(s *service.Service) domain.Outbox { return s },
		func(s *service.Service) domain.Dispatcher { return s },
	),
)
