package app

import (
	"github.com/yungbote/neurobridge-remedy/internal/jobs/orchestrator"
	"github.com/yungbote/neurobridge-remedy/internal/jobs/registry"
	"github.com/yungbote/neurobridge-remedy/internal/jobs/runner"
	"github.com/yungbote/neurobridge-remedy/internal/modules/prerequisites"
	"github.com/yungbote/neurobridge-remedy/internal/modules/remediation"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/logger"
	"github.com/yungbote/neurobridge-remedy/internal/realtime/bus"
)

type Services struct {
	Registry      *registry.Registry
	Store         *orchestrator.RepoStore
	Runner        *runner.Runner
	Prerequisites *prerequisites.Cascade
	Cases         *prerequisites.CaseIndex
	Escalator     *remediation.Escalator
	Plans         *remediation.PlanOrchestrator
	Notifier      *bus.JobNotifier
}

func wireServices(log *logger.Logger, cfg Config, repos Repos, clients Clients) Services {
	log.Info("Wiring services...")

	notifier := bus.NewJobNotifier(clients.Bus, log)
	reg := registry.New(repos.Jobs, log, registry.Options{
		EphemeralTTL: cfg.EphemeralJobTTL,
		Notifier:     notifier,
	})
	store := orchestrator.NewRepoStore(repos.Artifacts)
	engine := &orchestrator.Engine{
		Generator:    clients.Generator,
		Store:        store,
		Concurrency:  cfg.StageConcurrency,
		StageTimeout: cfg.StageTimeout,
	}
	collector := &orchestrator.Collector{Store: store, Events: clients.Bus, Log: log}
	run := runner.New(reg, engine, collector, log)

	// Nil pointers must not leak into the interfaces below.
	var (
		embedder prerequisites.Embedder
		search   prerequisites.SimilaritySearch
		docs     prerequisites.DocumentWriter
	)
	if clients.Embedder != nil {
		embedder = clients.Embedder
	}
	if clients.Search != nil {
		search = clients.Search
		docs = clients.Search
	}
	cascade := prerequisites.New(repos.PrerequisiteCache, embedder, search, nil, log)
	cases := prerequisites.NewCaseIndex(embedder, docs)

	escalator := remediation.NewEscalator(run, cascade, remediation.ScriptedScorer{Scores: cfg.ScriptedScores}, log, remediation.EscalatorOptions{
		MasteryThreshold: cfg.MasteryThreshold,
		Logs:             repos.EscalationLogs,
		Plans:            repos.PlanRecords,
		Cases:            cases,
		Events:           clients.Bus,
	})
	plans := remediation.NewPlanOrchestrator(reg, run, repos.PlanRecords, store, clients.Bus, log)

	return Services{
		Registry:      reg,
		Store:         store,
		Runner:        run,
		Prerequisites: cascade,
		Cases:         cases,
		Escalator:     escalator,
		Plans:         plans,
		Notifier:      notifier,
	}
}
