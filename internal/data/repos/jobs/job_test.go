package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/neurobridge-remedy/internal/data/repos/testutil"
	domain "github.com/yungbote/neurobridge-remedy/internal/domain/jobs"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/neurobridge-remedy/internal/pkg/errors"
	"gorm.io/datatypes"
)

func TestJobRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewJobRepo(db, testutil.Logger(t))

	job := &domain.Job{
		ID:      "job-1",
		Kind:    domain.KindContent,
		Status:  domain.StatusPending,
		Payload: datatypes.JSON([]byte(`{"topic":"fractions"}`)),
	}
	if err := repo.Create(dbc, job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByID(dbc, "job-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Kind != domain.KindContent || got.Status != domain.StatusPending {
		t.Fatalf("GetByID: unexpected row %+v", got)
	}

	if _, err := repo.GetByID(dbc, "missing"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("GetByID missing: want ErrNotFound got %v", err)
	}

	ok, err := repo.UpdateFieldsUnlessStatus(dbc, "job-1", domain.TerminalStatuses(), map[string]interface{}{
		"status":   domain.StatusCompleted,
		"progress": 100,
	})
	if err != nil || !ok {
		t.Fatalf("UpdateFieldsUnlessStatus: ok=%v err=%v", ok, err)
	}

	ok, err = repo.UpdateFieldsUnlessStatus(dbc, "job-1", domain.TerminalStatuses(), map[string]interface{}{
		"status": domain.StatusInProgress,
	})
	if err != nil {
		t.Fatalf("UpdateFieldsUnlessStatus guarded: %v", err)
	}
	if ok {
		t.Fatalf("UpdateFieldsUnlessStatus: terminal row was overwritten")
	}

	rows, err := repo.GetByIDs(dbc, []string{"job-1", "missing"})
	if err != nil || len(rows) != 1 {
		t.Fatalf("GetByIDs: err=%v len=%d", err, len(rows))
	}
	if rows[0].Status != domain.StatusCompleted || rows[0].Progress != 100 {
		t.Fatalf("GetByIDs: unexpected row %+v", rows[0])
	}
}
