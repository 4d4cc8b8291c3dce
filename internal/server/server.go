package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/smallbiznis/clinova/internal/audit"
	auditdomain "github.com/smallbiznis/clinova/internal/audit/domain"
	"github.com/smallbiznis/clinova/internal/clinic"
	"github.com/smallbiznis/clinova/internal/clock"
	"github.com/smallbiznis/clinova/internal/config"
	"github.com/smallbiznis/clinova/internal/credentials"
	"github.com/smallbiznis/clinova/internal/events"
	"github.com/smallbiznis/clinova/internal/hold"
	holddomain "github.com/smallbiznis/clinova/internal/hold/domain"
	"github.com/smallbiznis/clinova/internal/observability"
	obsmiddleware "github.com/smallbiznis/clinova/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/clinova/internal/observability/metrics"
	"github.com/smallbiznis/clinova/internal/overbooking"
	"github.com/smallbiznis/clinova/internal/payout"
	payoutdomain "github.com/smallbiznis/clinova/internal/payout/domain"
	providerspayout "github.com/smallbiznis/clinova/internal/providers/payout"
	"github.com/smallbiznis/clinova/internal/ratelimit"
)

var Module = fx.Module("http.server",
	config.Module,
	observability.Module,
	clock.Module,
	audit.Module,
	events.Module,
	clinic.Module,
	overbooking.Module,
	hold.Module,
	credentials.Module,
	providerspayout.Module,
	payout.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
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
	engine    *gin.Engine
	cfg       config.Config
	db        *gorm.DB
	genID     *snowflake.Node
	holdSvc   holddomain.Service
	payoutSvc payoutdomain.Service
	processor payoutdomain.Processor
	auditSvc  auditdomain.Service
	limiter   *ratelimit.AdmissionLimiter
}

type ServerParams struct {
	fx.In

	Gin       *gin.Engine
	Cfg       config.Config
	DB        *gorm.DB
	GenID     *snowflake.Node
	HoldSvc   holddomain.Service
	PayoutSvc payoutdomain.Service
	Processor payoutdomain.Processor
	AuditSvc  auditdomain.Service
	Limiter   *ratelimit.AdmissionLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:    p.Gin,
		cfg:       p.Cfg,
		db:        p.DB,
		genID:     p.GenID,
		holdSvc:   p.HoldSvc,
		payoutSvc: p.PayoutSvc,
		processor: p.Processor,
		auditSvc:  p.AuditSvc,
		limiter:   p.Limiter,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1", TenantMiddleware())

	v1.POST("/holds", s.rateLimitHolds(), s.CreateHold)
	v1.GET("/holds/:id", s.GetHold)

	v1.POST("/payout-events", s.HandlePayoutEvent)
	v1.GET("/payout-requests", s.ListPayoutRequests)
	v1.GET("/payout-requests/:id", s.GetPayoutRequest)

	v1.GET("/audit-logs", s.ListAuditLogs)
}
