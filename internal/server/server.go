package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/saasfoundry/tenantops/internal/audit/domain"
	"github.com/saasfoundry/tenantops/internal/config"
	obsmetrics "github.com/saasfoundry/tenantops/internal/observability/metrics"
	paymentdomain "github.com/saasfoundry/tenantops/internal/payment/domain"
	"github.com/saasfoundry/tenantops/internal/ratelimit"
	recurringdomain "github.com/saasfoundry/tenantops/internal/recurring/domain"
	sessiondomain "github.com/saasfoundry/tenantops/internal/supportsession/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) {}),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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
	engine         *gin.Engine
	cfg            config.Config
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	sessionSvc     sessiondomain.Service
	recurringSvc   recurringdomain.Service
	paymentSvc     paymentdomain.Service
	auditSvc       auditdomain.Service
	webhookLimiter *ratelimit.WebhookLimiter
	metrics        *obsmetrics.SchedulerMetrics
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	SessionSvc     sessiondomain.Service
	RecurringSvc   recurringdomain.Service
	PaymentSvc     paymentdomain.Service
	AuditSvc       auditdomain.Service       `optional:"true"`
	WebhookLimiter *ratelimit.WebhookLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		db:             p.DB,
		log:            p.Log.Named("server"),
		genID:          p.GenID,
		sessionSvc:     p.SessionSvc,
		recurringSvc:   p.RecurringSvc,
		paymentSvc:     p.PaymentSvc,
		auditSvc:       p.AuditSvc,
		webhookLimiter: p.WebhookLimiter,
		metrics:        obsmetrics.Scheduler(),
	}

	svc.registerAPIRoutes()
	svc.registerPublicRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	sessions := api.Group("/support/sessions")
	sessions.POST("", s.CreateSupportSession)
	sessions.GET("", s.ListSupportSessions)
	sessions.GET("/:id/valid", s.CheckSupportSession)
	sessions.POST("/:id/end", s.EndSupportSession)

	recurring := api.Group("/recurring")
	recurring.POST("", s.CreateRecurringSchedule)
	recurring.GET("", s.ListRecurringSchedules)
	recurring.GET("/:id", s.GetRecurringSchedule)
	recurring.GET("/:id/transactions", s.ListRecurringTransactions)
	recurring.POST("/:id/pause", s.PauseRecurringSchedule)
	recurring.POST("/:id/resume", s.ResumeRecurringSchedule)
	recurring.POST("/:id/cancel", s.CancelRecurringSchedule)
	recurring.POST("/:id/pay", s.PayRecurringScheduleNow)

	api.GET("/audit-logs", s.ListAuditLogs)
}

func (s *Server) registerPublicRoutes() {
	s.engine.POST("/payment/:provider/webhook", s.WebhookRateLimit(), s.HandlePaymentWebhook)
	s.engine.POST("/support/session/callback", s.HandleSupportSessionCallback)
}
