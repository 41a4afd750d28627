package app

import (
	httpH "github.com/yungbote/neurobridge-remedy/internal/http/handlers"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/logger"
)

type Handlers struct {
	Health      *httpH.HealthHandler
	Jobs        *httpH.JobHandler
	Plans       *httpH.PlanHandler
	Remediation *httpH.RemediationHandler
}

func wireHandlers(log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:      httpH.NewHealthHandler(),
		Jobs:        httpH.NewJobHandler(services.Runner, services.Registry),
		Plans:       httpH.NewPlanHandler(services.Plans),
		Remediation: httpH.NewRemediationHandler(services.Escalator, services.Prerequisites),
	}
}
