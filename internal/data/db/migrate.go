package db

import (
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-remedy/internal/domain/content"
	"github.com/yungbote/neurobridge-remedy/internal/domain/jobs"
	"github.com/yungbote/neurobridge-remedy/internal/domain/remediation"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// Jobs
		&jobs.Job{},

		// Content artifacts
		&content.ArtifactRecord{},
		&content.ScopeStatus{},

		// Remediation
		&remediation.PlanRecord{},
		&remediation.EscalationLog{},
		&remediation.PrerequisiteCacheEntry{},
	)
}
