package payment

import (
	"github.com/smallbiznis/hightide/internal/clock"
	"github.com/smallbiznis/hightide/internal/config"
	"github.com/smallbiznis/hightide/internal/payment/adapters/stripe"
	"github.com/smallbiznis/hightide/internal/payment/domain"
	"github.com/smallbiznis/hightide/internal/payment/repository"
	"github.com/smallbiznis/hightide/internal/payment/service"
	"github.com/smallbiznis/hightide/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config, clk clock.Clock) domain.Adapter {
		return stripe.New(cfg.Stripe.WebhookSecret, cfg.Stripe.WebhookTolerance, clk.Now)
	}),
	fx.Provide(service.New),
	fx.Provide(func(s *service.Service) domain.Normalizer { return s }),
	fx.Provide(webhook.NewService),
)
