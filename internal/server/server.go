package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	affiliatedomain "github.com/smallbiznis/hightide/internal/affiliate/domain"
	apikeydomain "github.com/smallbiznis/hightide/internal/apikey/domain"
	auditdomain "github.com/smallbiznis/hightide/internal/audit/domain"
	"github.com/smallbiznis/hightide/internal/authorization"
	campaigndomain "github.com/smallbiznis/hightide/internal/campaign/domain"
	commissiondomain "github.com/smallbiznis/hightide/internal/commission/domain"
	"github.com/smallbiznis/hightide/internal/config"
	"github.com/smallbiznis/hightide/internal/observability"
	obslogger "github.com/smallbiznis/hightide/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/hightide/internal/observability/metrics"
	obstracing "github.com/smallbiznis/hightide/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/hightide/internal/payment/domain"
	payoutdomain "github.com/smallbiznis/hightide/internal/payout/domain"
	"github.com/smallbiznis/hightide/internal/ratelimit"
	trackingdomain "github.com/smallbiznis/hightide/internal/tracking/domain"
	trackingservice "github.com/smallbiznis/hightide/internal/tracking/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	apiKeySvc     apikeydomain.Service
	authzSvc      authorization.Service
	auditSvc      auditdomain.Service
	affiliateSvc  affiliatedomain.Service
	campaignSvc   campaigndomain.Service
	trackingSvc   trackingdomain.Service
	webhookSvc    paymentdomain.WebhookService
	commissionSvc commissiondomain.Service
	payoutSvc     payoutdomain.Service
	limiter       ratelimit.RateLimiter
	ipHasher      trackingservice.IPHasher
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	APIKeySvc     apikeydomain.Service
	AuthzSvc      authorization.Service
	AuditSvc      auditdomain.Service
	AffiliateSvc  affiliatedomain.Service
	CampaignSvc   campaigndomain.Service
	TrackingSvc   trackingdomain.Service
	WebhookSvc    paymentdomain.WebhookService
	CommissionSvc commissiondomain.Service
	PayoutSvc     payoutdomain.Service
	Limiter       ratelimit.RateLimiter `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics   `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		apiKeySvc:     p.APIKeySvc,
		authzSvc:      p.AuthzSvc,
		auditSvc:      p.AuditSvc,
		affiliateSvc:  p.AffiliateSvc,
		campaignSvc:   p.CampaignSvc,
		trackingSvc:   p.TrackingSvc,
		webhookSvc:    p.WebhookSvc,
		commissionSvc: p.CommissionSvc,
		payoutSvc:     p.PayoutSvc,
		limiter:       p.Limiter,
		ipHasher:      trackingservice.NewIPHasher(p.Cfg.Tracking.IPHashSalt),
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerPublicRoutes()
	svc.registerAdminRoutes()
	svc.registerPortalRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPublicRoutes() {
	s.engine.GET("/health", s.Health)

	track := s.engine.Group("/track", s.TrackRateLimit())
	{
		track.GET("/click", s.TrackClick)
		track.POST("/lead", s.TrackLead)
	}

	s.engine.POST("/webhooks/stripe", s.HandleStripeWebhook)
	s.engine.POST("/invites/:code/accept", s.TrackRateLimit(), s.AcceptInvite)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.APIKeyRequired())

	// -------- Affiliates --------
	admin.POST("/affiliates", s.authorizeAction(authorization.ObjectAffiliate, authorization.ActionAffiliateCreate), s.CreateAffiliate)
	admin.GET("/affiliates", s.authorizeAction(authorization.ObjectAffiliate, authorization.ActionAffiliateView), s.ListAffiliates)
	admin.GET("/affiliates/:id", s.authorizeAction(authorization.ObjectAffiliate, authorization.ActionAffiliateView), s.GetAffiliate)
	admin.PATCH("/affiliates/:id", s.authorizeAction(authorization.ObjectAffiliate, authorization.ActionAffiliateUpdate), s.UpdateAffiliate)
	admin.PUT("/affiliates/:id/payout-method", s.authorizeAction(authorization.ObjectAffiliate, authorization.ActionAffiliatePayoutMethod), s.SetAffiliatePayoutMethod)
	admin.POST("/affiliates/:id/api-keys", s.authorizeAction(authorization.ObjectAPIKey, authorization.ActionAPIKeyCreate), s.CreateAffiliateAPIKey)

	// -------- Campaigns --------
	admin.POST("/campaigns", s.authorizeAction(authorization.ObjectCampaign, authorization.ActionCampaignCreate), s.CreateCampaign)
	admin.GET("/campaigns", s.authorizeAction(authorization.ObjectCampaign, authorization.ActionCampaignView), s.ListCampaigns)

	// -------- Commissions --------
	admin.GET("/commissions", s.authorizeAction(authorization.ObjectCommission, authorization.ActionCommissionView), s.ListCommissions)
	admin.POST("/commissions/approve", s.authorizeAction(authorization.ObjectCommission, authorization.ActionCommissionApprove), s.ApproveCommissions)
	admin.POST("/commissions/void", s.authorizeAction(authorization.ObjectCommission, authorization.ActionCommissionVoid), s.VoidCommissions)

	// -------- Payouts --------
	admin.GET("/payouts", s.authorizeAction(authorization.ObjectPayout, authorization.ActionPayoutView), s.ListPayouts)
	admin.GET("/payouts/:id", s.authorizeAction(authorization.ObjectPayout, authorization.ActionPayoutView), s.GetPayout)
	admin.GET("/payouts/:id/statement.pdf", s.authorizeAction(authorization.ObjectPayout, authorization.ActionPayoutStatement), s.GetPayoutStatement)
	admin.POST("/payouts/generate", s.authorizeAction(authorization.ObjectPayout, authorization.ActionPayoutGenerate), s.GeneratePayouts)
	admin.POST("/payouts/approve", s.authorizeAction(authorization.ObjectPayout, authorization.ActionPayoutApprove), s.ApprovePayouts)
	admin.POST("/payouts/deny", s.authorizeAction(authorization.ObjectPayout, authorization.ActionPayoutDeny), s.DenyPayouts)
	admin.POST("/payouts/pay", s.authorizeAction(authorization.ObjectPayout, authorization.ActionPayoutPay), s.PayPayouts)
	admin.POST("/payouts/revert", s.authorizeAction(authorization.ObjectPayout, authorization.ActionPayoutRevert), s.RevertPayouts)

	// -------- API keys --------
	admin.GET("/api-keys", s.authorizeAction(authorization.ObjectAPIKey, authorization.ActionAPIKeyView), s.ListAPIKeys)
	admin.POST("/api-keys", s.authorizeAction(authorization.ObjectAPIKey, authorization.ActionAPIKeyCreate), s.CreateAPIKey)
	admin.POST("/api-keys/:key_id/rotate", s.authorizeAction(authorization.ObjectAPIKey, authorization.ActionAPIKeyRotate), s.RotateAPIKey)
	admin.DELETE("/api-keys/:key_id", s.authorizeAction(authorization.ObjectAPIKey, authorization.ActionAPIKeyRevoke), s.RevokeAPIKey)

	// -------- Audit --------
	admin.GET("/audit-logs", s.authorizeAction(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}

func (s *Server) registerPortalRoutes() {
	me := s.engine.Group("/api/me", s.APIKeyRequired())

	me.GET("", s.authorizeAction(authorization.ObjectPortal, authorization.ActionPortalView), s.PortalMe)
	me.GET("/commissions", s.authorizeAction(authorization.ObjectPortal, authorization.ActionPortalView), s.PortalCommissions)
	me.GET("/payouts", s.authorizeAction(authorization.ObjectPortal, authorization.ActionPortalView), s.PortalPayouts)
	me.GET("/payouts/:id/statement.pdf", s.authorizeAction(authorization.ObjectPortal, authorization.ActionPortalStatement), s.PortalPayoutStatement)
	me.POST("/invites", s.authorizeAction(authorization.ObjectPortal, authorization.ActionPortalInvite), s.PortalInvite)
	me.PUT("/payout-method", s.authorizeAction(authorization.ObjectPortal, authorization.ActionPortalPayoutMethod), s.PortalSetPayoutMethod)
}

// Health pings the database; the endpoint stays 200 so probes see the
// degraded state in the body.
func (s *Server) Health(c *gin.Context) {
	status := "ok"
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			err = sqlDB.PingContext(ctx)
			cancel()
		}
		if err != nil {
			obslogger.FromContext(c.Request.Context()).Warn("health check database ping failed", zap.Error(err))
			status = "degraded"
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}
