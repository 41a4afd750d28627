package pgvector

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvec "github.com/pgvector/pgvector-go"
)

const documentsTable = "similarity_documents"

// Match is one nearest-neighbour hit.
type Match struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// Search runs cosine similarity queries over corpora stored in one pgvector table.
type Search struct {
	pool *pgxpool.Pool
	dims int
}

// Connect opens a pool against dsn and makes sure the documents table exists.
func Connect(ctx context.Context, dsn string, dims int) (*Search, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s := &Search{pool: pool, dims: dims}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Search) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			corpus    TEXT NOT NULL,
			id        TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			metadata  JSONB NOT NULL DEFAULT '{}'::jsonb,
			PRIMARY KEY (corpus, id)
		)`, documentsTable, s.dims),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to prepare similarity schema: %w", err)
		}
	}
	return nil
}

// Query returns the topK nearest documents of corpus. Each filter is an
// exact match on a top-level metadata key.
func (s *Search) Query(ctx context.Context, corpus string, vector []float32, filters map[string]string, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	sql, args := buildQuery(corpus, vector, filters, topK)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", corpus, err)
	}
	defer rows.Close()

	out := make([]Match, 0, topK)
	for rows.Next() {
		var (
			m   Match
			raw []byte
		)
		if err := rows.Scan(&m.ID, &m.Score, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &m.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata for %s: %w", m.ID, err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func buildQuery(corpus string, vector []float32, filters map[string]string, topK int) (string, []any) {
	args := []any{pgvec.NewVector(vector), corpus}
	var where strings.Builder
	where.WriteString("corpus = $2")

	keys := make([]string, 0, len(filters))
	for k, v := range filters {
		if strings.TrimSpace(v) != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, k, filters[k])
		fmt.Fprintf(&where, " AND metadata->>$%d = $%d", len(args)-1, len(args))
	}
	args = append(args, topK)

	sql := fmt.Sprintf(
		`SELECT id, 1 - (embedding <=> $1) AS score, metadata::text
		   FROM %s
		  WHERE %s
		  ORDER BY embedding <=> $1
		  LIMIT $%d`,
		documentsTable, where.String(), len(args),
	)
	return sql, args
}

// Upsert stores or replaces one document of corpus.
func (s *Search) Upsert(ctx context.Context, corpus, id string, vector []float32, metadata map[string]any) error {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+documentsTable+` (corpus, id, embedding, metadata)
		 VALUES ($1, $2, $3, $4::jsonb)
		 ON CONFLICT (corpus, id) DO UPDATE SET embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata`,
		corpus, id, pgvec.NewVector(vector), string(meta),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert %s/%s: %w", corpus, id, err)
	}
	return nil
}

func (s *Search) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}
