package jobs

import (
	"errors"
	"time"

	"gorm.io/gorm"

	domain "github.com/yungbote/neurobridge-remedy/internal/domain/jobs"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/neurobridge-remedy/internal/pkg/errors"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/logger"
)

type JobRepo interface {
	Create(dbc dbctx.Context, job *domain.Job) error
	GetByID(dbc dbctx.Context, id string) (*domain.Job, error)
	GetByIDs(dbc dbctx.Context, ids []string) ([]*domain.Job, error)
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id string, disallowedStatuses []string, updates map[string]interface{}) (bool, error)
}

type jobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRepo(db *gorm.DB, baseLog *logger.Logger) JobRepo {
	return &jobRepo{
		db:  db,
		log: baseLog.With("repo", "JobRepo"),
	}
}

func (r *jobRepo) Create(dbc dbctx.Context, job *domain.Job) error {
	if job == nil || job.ID == "" {
		return pkgerrors.ErrInvalidArgument
	}
	return dbc.Resolve(r.db).Create(job).Error
}

func (r *jobRepo) GetByID(dbc dbctx.Context, id string) (*domain.Job, error) {
	if id == "" {
		return nil, pkgerrors.ErrNotFound
	}
	var job domain.Job
	err := dbc.Resolve(r.db).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *jobRepo) GetByIDs(dbc dbctx.Context, ids []string) ([]*domain.Job, error) {
	var out []*domain.Job
	if len(ids) == 0 {
		return out, nil
	}
	if err := dbc.Resolve(r.db).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateFieldsUnlessStatus applies updates only while the row is not in one
// of disallowedStatuses. It reports whether a row changed.
func (r *jobRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id string, disallowedStatuses []string, updates map[string]interface{}) (bool, error) {
	if id == "" {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}

	q := dbc.Resolve(r.db).Model(&domain.Job{}).Where("id = ?", id)
	if len(disallowedStatuses) == 1 {
		q = q.Where("status <> ?", disallowedStatuses[0])
	} else if len(disallowedStatuses) > 1 {
		q = q.Where("status NOT IN ?", disallowedStatuses)
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
