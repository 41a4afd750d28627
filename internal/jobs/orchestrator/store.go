package orchestrator

import (
	"context"

	contentrepo "github.com/yungbote/neurobridge-remedy/internal/data/repos/content"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/dbctx"
)

// RepoStore serves ArtifactStore from the artifact repository.
type RepoStore struct {
	Repo contentrepo.ArtifactRepo
}

func NewRepoStore(repo contentrepo.ArtifactRepo) *RepoStore {
	return &RepoStore{Repo: repo}
}

func (s *RepoStore) Append(ctx context.Context, scopeID, key string, item any) (string, error) {
	return s.Repo.Append(dbctx.Context{Ctx: ctx}, scopeID, key, item)
}

func (s *RepoStore) Set(ctx context.Context, scopeID, key string, value any) (string, error) {
	return s.Repo.Set(dbctx.Context{Ctx: ctx}, scopeID, key, value)
}

func (s *RepoStore) MarkStatus(ctx context.Context, scopeID, status string) error {
	return s.Repo.MarkStatus(dbctx.Context{Ctx: ctx}, scopeID, status)
}

func (s *RepoStore) ReadScope(ctx context.Context, scopeID string) (map[string]any, error) {
	return s.Repo.ReadScope(dbctx.Context{Ctx: ctx}, scopeID)
}
