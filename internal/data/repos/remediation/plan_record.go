package remediation

import (
	"errors"
	"time"

	"gorm.io/gorm"

	domain "github.com/yungbote/neurobridge-remedy/internal/domain/remediation"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/neurobridge-remedy/internal/pkg/errors"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/logger"
)

type PlanRecordRepo interface {
	Create(dbc dbctx.Context, rec *domain.PlanRecord) error
	GetByID(dbc dbctx.Context, id string) (*domain.PlanRecord, error)
	GetByPlanJobID(dbc dbctx.Context, planJobID string) (*domain.PlanRecord, error)
	UpdateFields(dbc dbctx.Context, id string, updates map[string]interface{}) error
}

type planRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPlanRecordRepo(db *gorm.DB, baseLog *logger.Logger) PlanRecordRepo {
	return &planRecordRepo{db: db, log: baseLog.With("repo", "PlanRecordRepo")}
}

func (r *planRecordRepo) Create(dbc dbctx.Context, rec *domain.PlanRecord) error {
	if rec == nil || rec.ID == "" {
		return pkgerrors.ErrInvalidArgument
	}
	return dbc.Resolve(r.db).Create(rec).Error
}

func (r *planRecordRepo) GetByID(dbc dbctx.Context, id string) (*domain.PlanRecord, error) {
	return r.first(dbc, "id = ?", id)
}

func (r *planRecordRepo) GetByPlanJobID(dbc dbctx.Context, planJobID string) (*domain.PlanRecord, error) {
	return r.first(dbc, "plan_job_id = ?", planJobID)
}

func (r *planRecordRepo) first(dbc dbctx.Context, where string, arg string) (*domain.PlanRecord, error) {
	if arg == "" {
		return nil, pkgerrors.ErrNotFound
	}
	var rec domain.PlanRecord
	err := dbc.Resolve(r.db).Where(where, arg).Order("created_at DESC").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *planRecordRepo) UpdateFields(dbc dbctx.Context, id string, updates map[string]interface{}) error {
	if id == "" {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return dbc.Resolve(r.db).Model(&domain.PlanRecord{}).Where("id = ?", id).Updates(updates).Error
}
