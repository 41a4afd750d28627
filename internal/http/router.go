package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/neurobridge-remedy/internal/http/handlers"
	httpMW "github.com/yungbote/neurobridge-remedy/internal/http/middleware"
	"github.com/yungbote/neurobridge-remedy/internal/observability"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	CORSOrigins []string
	Metrics     *observability.Metrics

	HealthHandler      *httpH.HealthHandler
	JobHandler         *httpH.JobHandler
	PlanHandler        *httpH.PlanHandler
	RemediationHandler *httpH.RemediationHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.CORSOrigins))
	r.Use(httpMW.Metrics(cfg.Metrics))

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	v1 := r.Group("/v1")
	{
		if cfg.JobHandler != nil {
			v1.POST("/content/jobs", cfg.JobHandler.CreateContentJob)
			v1.GET("/jobs/:id", cfg.JobHandler.GetJob)
		}
		if cfg.PlanHandler != nil {
			v1.POST("/plans", cfg.PlanHandler.SubmitPlan)
			v1.GET("/plans/:id/aggregate", cfg.PlanHandler.GetAggregate)
		}
		if cfg.RemediationHandler != nil {
			v1.POST("/remediation/escalate", cfg.RemediationHandler.Escalate)
			v1.GET("/prerequisites", cfg.RemediationHandler.Discover)
			v1.DELETE("/prerequisites/cache", cfg.RemediationHandler.InvalidateCache)
		}
	}
	return r
}
