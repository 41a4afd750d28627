package remediation

import (
	"errors"

	"gorm.io/gorm"

	domain "github.com/yungbote/neurobridge-remedy/internal/domain/remediation"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/neurobridge-remedy/internal/pkg/errors"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/logger"
)

type EscalationLogRepo interface {
	Create(dbc dbctx.Context, rec *domain.EscalationLog) error
	GetByID(dbc dbctx.Context, id string) (*domain.EscalationLog, error)
	ListByGap(dbc dbctx.Context, gapCode, studentID string) ([]*domain.EscalationLog, error)
}

type escalationLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEscalationLogRepo(db *gorm.DB, baseLog *logger.Logger) EscalationLogRepo {
	return &escalationLogRepo{db: db, log: baseLog.With("repo", "EscalationLogRepo")}
}

func (r *escalationLogRepo) Create(dbc dbctx.Context, rec *domain.EscalationLog) error {
	if rec == nil || rec.ID == "" {
		return pkgerrors.ErrInvalidArgument
	}
	return dbc.Resolve(r.db).Create(rec).Error
}

func (r *escalationLogRepo) GetByID(dbc dbctx.Context, id string) (*domain.EscalationLog, error) {
	var rec domain.EscalationLog
	err := dbc.Resolve(r.db).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *escalationLogRepo) ListByGap(dbc dbctx.Context, gapCode, studentID string) ([]*domain.EscalationLog, error) {
	var out []*domain.EscalationLog
	err := dbc.Resolve(r.db).
		Where("gap_code = ? AND student_id = ?", gapCode, studentID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
