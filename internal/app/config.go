package app

import (
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/neurobridge-remedy/internal/observability"
	"github.com/yungbote/neurobridge-remedy/internal/platform/envutil"
	"github.com/yungbote/neurobridge-remedy/internal/platform/openai"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/logger"
)

type Config struct {
	Port        string
	CORSOrigins []string

	DatabaseDriver string
	DatabaseDSN    string

	RedisAddr    string
	RedisChannel string

	OpenAI      openai.Config
	PgvectorDSN string

	StageConcurrency int
	StageTimeout     time.Duration

	MasteryThreshold float64
	ScriptedScores   []float64

	EphemeralJobTTL       time.Duration
	RegistrySweepInterval time.Duration
	ShutdownTimeout       time.Duration

	MetricsEnabled        bool
	MetricsScrapeInterval time.Duration

	Otel observability.OtelConfig
}

var defaultScriptedScores = []float64{0.65, 0.75, 0.85}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:        envutil.String("PORT", "8080"),
		CORSOrigins: splitList(envutil.String("CORS_ORIGINS", "")),

		DatabaseDriver: strings.ToLower(envutil.String("DATABASE_DRIVER", "sqlite")),
		DatabaseDSN:    envutil.String("DATABASE_DSN", "file:remedy.db?cache=shared"),

		RedisAddr:    envutil.String("REDIS_ADDR", ""),
		RedisChannel: envutil.String("REDIS_CHANNEL", "remedy.events"),

		OpenAI: openai.Config{
			APIKey:         envutil.String("OPENAI_API_KEY", ""),
			BaseURL:        envutil.String("OPENAI_BASE_URL", ""),
			Model:          envutil.String("OPENAI_MODEL", openai.DefaultModel),
			EmbeddingModel: envutil.String("OPENAI_EMBEDDING_MODEL", openai.DefaultEmbeddingModel),
			Dimensions:     envutil.Int("EMBEDDING_DIMENSIONS", openai.DefaultDimensions),
			Timeout:        envutil.Seconds("OPENAI_TIMEOUT_SECONDS", 60),
			MaxRetries:     envutil.Int("OPENAI_MAX_RETRIES", openai.DefaultMaxRetries),
		},
		PgvectorDSN: envutil.String("PGVECTOR_DSN", ""),

		StageConcurrency: envutil.Int("STAGE_CONCURRENCY", 8),
		StageTimeout:     envutil.Seconds("STAGE_TIMEOUT_SECONDS", 0),

		MasteryThreshold: envutil.Float("MASTERY_THRESHOLD", 0.8),

		EphemeralJobTTL:       envutil.Seconds("EPHEMERAL_JOB_TTL_SECONDS", 3600),
		RegistrySweepInterval: envutil.Seconds("REGISTRY_SWEEP_INTERVAL_SECONDS", 60),
		ShutdownTimeout:       envutil.Seconds("SHUTDOWN_TIMEOUT_SECONDS", 30),

		MetricsEnabled:        envutil.Bool("METRICS_ENABLED", false),
		MetricsScrapeInterval: envutil.Seconds("METRICS_SCRAPE_INTERVAL_SECONDS", 10),

		Otel: observability.OtelConfig{
			Enabled:      envutil.Bool("OTEL_ENABLED", false),
			ServiceName:  envutil.String("OTEL_SERVICE_NAME", "remedy"),
			Environment:  envutil.String("APP_ENV", "development"),
			Version:      envutil.String("APP_VERSION", ""),
			Endpoint:     envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:      observability.ParseHeaders(envutil.String("OTEL_EXPORTER_OTLP_HEADERS", "")),
			Insecure:     envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", false),
			SamplerRatio: envutil.Float("OTEL_SAMPLER_RATIO", 0.1),
		},
	}
	if v := envutil.Float("OPENAI_TEMPERATURE", -1); v >= 0 {
		cfg.OpenAI.Temperature = &v
	}

	scores, err := parseScores(envutil.String("ESCALATION_SCRIPTED_SCORES", ""))
	if err != nil {
		log.Warn("Invalid ESCALATION_SCRIPTED_SCORES, using defaults", "error", err)
	}
	if len(scores) == 0 {
		scores = defaultScriptedScores
	}
	cfg.ScriptedScores = scores

	if cfg.MasteryThreshold <= 0 || cfg.MasteryThreshold > 1 {
		log.Warn("MASTERY_THRESHOLD out of range, using 0.8", "value", cfg.MasteryThreshold)
		cfg.MasteryThreshold = 0.8
	}
	if cfg.StageConcurrency < 0 {
		cfg.StageConcurrency = 0
	}
	if cfg.DatabaseDriver != "postgres" && cfg.DatabaseDriver != "sqlite" {
		log.Warn("Unknown DATABASE_DRIVER, using sqlite", "value", cfg.DatabaseDriver)
		cfg.DatabaseDriver = "sqlite"
	}

	log.Info("Config loaded",
		"database_driver", cfg.DatabaseDriver,
		"redis", cfg.RedisAddr != "",
		"openai", cfg.OpenAI.APIKey != "",
		"pgvector", cfg.PgvectorDSN != "",
		"stage_concurrency", cfg.StageConcurrency,
		"mastery_threshold", cfg.MasteryThreshold,
	)
	return cfg
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseScores(raw string) ([]float64, error) {
	parts := splitList(raw)
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}
