package app

import (
	"gorm.io/gorm"

	contentrepo "github.com/yungbote/neurobridge-remedy/internal/data/repos/content"
	jobrepo "github.com/yungbote/neurobridge-remedy/internal/data/repos/jobs"
	remrepo "github.com/yungbote/neurobridge-remedy/internal/data/repos/remediation"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/logger"
)

type Repos struct {
	Jobs              jobrepo.JobRepo
	Artifacts         contentrepo.ArtifactRepo
	PlanRecords       remrepo.PlanRecordRepo
	EscalationLogs    remrepo.EscalationLogRepo
	PrerequisiteCache remrepo.PrerequisiteCacheRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Jobs:              jobrepo.NewJobRepo(db, log),
		Artifacts:         contentrepo.NewArtifactRepo(db, log),
		PlanRecords:       remrepo.NewPlanRecordRepo(db, log),
		EscalationLogs:    remrepo.NewEscalationLogRepo(db, log),
		PrerequisiteCache: remrepo.NewPrerequisiteCacheRepo(db, log),
	}
}
