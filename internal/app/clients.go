package app

import (
	"context"
	"fmt"

	"github.com/yungbote/neurobridge-remedy/internal/jobs/orchestrator"
	"github.com/yungbote/neurobridge-remedy/internal/platform/openai"
	"github.com/yungbote/neurobridge-remedy/internal/platform/pgvector"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/logger"
	"github.com/yungbote/neurobridge-remedy/internal/realtime/bus"
)

// Clients holds the external connections. Embedder and Search stay nil when
// their backing service is not configured, which turns off the similarity
// layer of prerequisite discovery.
type Clients struct {
	Bus       bus.Bus
	Generator orchestrator.ContentGenerator
	Embedder  *openai.Embedder
	Search    *pgvector.Search
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	if cfg.RedisAddr != "" {
		b, err := bus.NewRedisBus(log, cfg.RedisAddr, cfg.RedisChannel)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis bus: %w", err)
		}
		out.Bus = b
	} else {
		out.Bus = bus.NewMemoryBus(256)
	}

	if cfg.OpenAI.APIKey != "" {
		client, err := openai.NewClient(log, cfg.OpenAI)
		if err != nil {
			out.close()
			return Clients{}, fmt.Errorf("init openai client: %w", err)
		}
		out.Generator = openai.NewGenerator(client)
		out.Embedder = openai.NewEmbedder(client)
	} else {
		log.Warn("OPENAI_API_KEY not set, using offline content generator")
		out.Generator = openai.OfflineGenerator{}
	}

	if cfg.PgvectorDSN != "" {
		if out.Embedder == nil {
			log.Warn("PGVECTOR_DSN set without OPENAI_API_KEY, similarity layer disabled")
		} else {
			search, err := pgvector.Connect(ctx, cfg.PgvectorDSN, cfg.OpenAI.Dimensions)
			if err != nil {
				out.close()
				return Clients{}, fmt.Errorf("init pgvector: %w", err)
			}
			out.Search = search
		}
	}
	return out, nil
}

func (c Clients) close() {
	if c.Search != nil {
		c.Search.Close()
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
}
