package content

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/neurobridge-remedy/internal/data/repos/testutil"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/neurobridge-remedy/internal/pkg/errors"
)

func TestArtifactRepoAppendSetAndRead(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewArtifactRepo(db, testutil.Logger(t))

	if _, err := repo.ReadScope(dbc, "scope-1"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("ReadScope empty: want ErrNotFound got %v", err)
	}

	if _, err := repo.Append(dbc, "scope-1", "texts", map[string]any{"stage": "reading"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := repo.Append(dbc, "scope-1", "texts", map[string]any{"stage": "writing"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := repo.Set(dbc, "scope-1", "practice_questions", []string{"q1"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := repo.Set(dbc, "scope-1", "practice_questions", []string{"q2", "q3"}); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	if err := repo.MarkStatus(dbc, "scope-1", "completed"); err != nil {
		t.Fatalf("MarkStatus: %v", err)
	}
	if err := repo.MarkStatus(dbc, "scope-1", "completed"); err != nil {
		t.Fatalf("MarkStatus twice: %v", err)
	}

	doc, err := repo.ReadScope(dbc, "scope-1")
	if err != nil {
		t.Fatalf("ReadScope: %v", err)
	}
	texts, _ := doc["texts"].([]any)
	if len(texts) != 2 {
		t.Fatalf("texts: want=2 got=%d", len(texts))
	}
	first, _ := texts[0].(map[string]any)
	if first["stage"] != "reading" {
		t.Fatalf("texts order: got %v", texts)
	}
	pq, _ := doc["practice_questions"].([]any)
	if len(pq) != 2 || pq[0] != "q2" {
		t.Fatalf("practice_questions: got %v", doc["practice_questions"])
	}
	if doc["status"] != "completed" {
		t.Fatalf("status: got %v", doc["status"])
	}
}
