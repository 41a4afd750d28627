package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/yungbote/neurobridge-remedy/internal/domain/content"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/neurobridge-remedy/internal/pkg/errors"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/logger"
)

type ArtifactRepo interface {
	Append(dbc dbctx.Context, scopeID, key string, item any) (string, error)
	Set(dbc dbctx.Context, scopeID, key string, value any) (string, error)
	MarkStatus(dbc dbctx.Context, scopeID, status string) error
	GetStatus(dbc dbctx.Context, scopeID string) (string, error)
	ReadScope(dbc dbctx.Context, scopeID string) (map[string]any, error)
}

type artifactRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewArtifactRepo(db *gorm.DB, baseLog *logger.Logger) ArtifactRepo {
	return &artifactRepo{
		db:  db,
		log: baseLog.With("repo", "ArtifactRepo"),
	}
}

func (r *artifactRepo) Append(dbc dbctx.Context, scopeID, key string, item any) (string, error) {
	rec, err := newRecord(scopeID, key, domain.WriteAppend, item)
	if err != nil {
		return "", err
	}
	if err := dbc.Resolve(r.db).Create(rec).Error; err != nil {
		return "", err
	}
	return strconv.FormatUint(rec.ID, 10), nil
}

// Set replaces whatever value is stored under (scope, key).
func (r *artifactRepo) Set(dbc dbctx.Context, scopeID, key string, value any) (string, error) {
	rec, err := newRecord(scopeID, key, domain.WriteSet, value)
	if err != nil {
		return "", err
	}
	err = dbc.Resolve(r.db).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("scope_id = ? AND key = ? AND mode = ?", scopeID, key, domain.WriteSet).
			Delete(&domain.ArtifactRecord{}).Error; err != nil {
			return err
		}
		return txx.Create(rec).Error
	})
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(rec.ID, 10), nil
}

func (r *artifactRepo) MarkStatus(dbc dbctx.Context, scopeID, status string) error {
	if scopeID == "" || status == "" {
		return pkgerrors.ErrInvalidArgument
	}
	row := domain.ScopeStatus{ScopeID: scopeID, Status: status, UpdatedAt: time.Now()}
	return dbc.Resolve(r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scope_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
	}).Create(&row).Error
}

func (r *artifactRepo) GetStatus(dbc dbctx.Context, scopeID string) (string, error) {
	var row domain.ScopeStatus
	err := dbc.Resolve(r.db).Where("scope_id = ?", scopeID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", pkgerrors.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return row.Status, nil
}

// ReadScope assembles every key of a scope into one document: append keys
// become lists in insertion order, set keys hold their single value.
func (r *artifactRepo) ReadScope(dbc dbctx.Context, scopeID string) (map[string]any, error) {
	var rows []domain.ArtifactRecord
	if err := dbc.Resolve(r.db).
		Where("scope_id = ?", scopeID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	status, err := r.GetStatus(dbc, scopeID)
	if err != nil && !errors.Is(err, pkgerrors.ErrNotFound) {
		return nil, err
	}
	if len(rows) == 0 && status == "" {
		return nil, pkgerrors.ErrNotFound
	}

	doc := map[string]any{}
	for _, row := range rows {
		var v any
		if err := json.Unmarshal(row.Value, &v); err != nil {
			return nil, fmt.Errorf("decode artifact %d: %w", row.ID, err)
		}
		if row.Mode == domain.WriteSet {
			doc[row.Key] = v
			continue
		}
		list, _ := doc[row.Key].([]any)
		doc[row.Key] = append(list, v)
	}
	if status != "" {
		doc["status"] = status
	}
	return doc, nil
}

func newRecord(scopeID, key, mode string, value any) (*domain.ArtifactRecord, error) {
	if scopeID == "" || key == "" {
		return nil, pkgerrors.ErrInvalidArgument
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	return &domain.ArtifactRecord{
		ScopeID:   scopeID,
		Key:       key,
		Mode:      mode,
		Value:     datatypes.JSON(raw),
		CreatedAt: time.Now(),
	}, nil
}
