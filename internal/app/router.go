package app

import (
	"github.com/gin-gonic/gin"

	apphttp "github.com/yungbote/neurobridge-remedy/internal/http"
	"github.com/yungbote/neurobridge-remedy/internal/observability"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/logger"
)

func wireRouter(log *logger.Logger, cfg Config, handlers Handlers) *gin.Engine {
	serviceName := ""
	if cfg.Otel.Enabled {
		serviceName = cfg.Otel.ServiceName
	}
	return apphttp.NewRouter(apphttp.RouterConfig{
		Log:                log.With("component", "HTTP"),
		ServiceName:        serviceName,
		CORSOrigins:        cfg.CORSOrigins,
		Metrics:            observability.Current(),
		HealthHandler:      handlers.Health,
		JobHandler:         handlers.Jobs,
		PlanHandler:        handlers.Plans,
		RemediationHandler: handlers.Remediation,
	})
}
