package remediation

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/yungbote/neurobridge-remedy/internal/domain/remediation"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/neurobridge-remedy/internal/pkg/errors"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/logger"
)

type PrerequisiteCacheRepo interface {
	Get(dbc dbctx.Context, gapCode, gradeLevel, subject string) (*domain.PrerequisiteCacheEntry, error)
	// PutIfAbsent stores entry unless one already exists for its key.
	PutIfAbsent(dbc dbctx.Context, entry *domain.PrerequisiteCacheEntry) error
	Invalidate(dbc dbctx.Context, gapCode, gradeLevel, subject string) error
}

type prerequisiteCacheRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPrerequisiteCacheRepo(db *gorm.DB, baseLog *logger.Logger) PrerequisiteCacheRepo {
	return &prerequisiteCacheRepo{db: db, log: baseLog.With("repo", "PrerequisiteCacheRepo")}
}

func (r *prerequisiteCacheRepo) Get(dbc dbctx.Context, gapCode, gradeLevel, subject string) (*domain.PrerequisiteCacheEntry, error) {
	var entry domain.PrerequisiteCacheEntry
	err := dbc.Resolve(r.db).
		Where("gap_code = ? AND grade_level = ? AND subject = ?", gapCode, gradeLevel, subject).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *prerequisiteCacheRepo) PutIfAbsent(dbc dbctx.Context, entry *domain.PrerequisiteCacheEntry) error {
	if entry == nil || entry.GapCode == "" {
		return pkgerrors.ErrInvalidArgument
	}
	return dbc.Resolve(r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(entry).Error
}

func (r *prerequisiteCacheRepo) Invalidate(dbc dbctx.Context, gapCode, gradeLevel, subject string) error {
	return dbc.Resolve(r.db).
		Where("gap_code = ? AND grade_level = ? AND subject = ?", gapCode, gradeLevel, subject).
		Delete(&domain.PrerequisiteCacheEntry{}).Error
}
