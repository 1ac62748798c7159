package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/ratebench-backend/internal/jobs/worker"
	"github.com/yungbote/ratebench-backend/internal/modules/generation"
	"github.com/yungbote/ratebench-backend/internal/modules/tournament"
	"github.com/yungbote/ratebench-backend/internal/platform/logger"
	"github.com/yungbote/ratebench-backend/internal/services"
)

type Services struct {
	Configuration services.ConfigurationService
	GenerationRun services.GenerationRunService
	Rating        services.RatingService
	SettingsSync  *services.SettingsSync

	Bracket *tournament.Bracket
	Worker  *generation.Worker
	Poller  *worker.Poller
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, clients Clients, r Repos) Services {
	log.Info("Wiring services...")

	bracket := tournament.New(tournament.Deps{
		Log:         log,
		Instances:   r.PromptInstance,
		Completions: r.Completion,
		Matches:     r.RatingMatch,
		Winners:     r.FinalWinner,
	})
	genWorker := generation.NewWorker(generation.WorkerDeps{
		Log:            log,
		Providers:      clients.Providers,
		Brackets:       bracket,
		Configurations: r.Configuration,
		Instances:      r.PromptInstance,
		Runs:           r.GenerationRun,
		Completions:    r.Completion,
		BatchSize:      cfg.GenerationBatchSize,
	})

	runs := services.NewGenerationRunService(
		db, log,
		r.Configuration, r.PromptInstance, r.GenerationRun,
		genWorker, bracket, clients.Lease,
		services.GenerationRunConfig{LeaseTTL: cfg.WorkerLeaseTTL},
	)

	var poller *worker.Poller
	if cfg.WorkerPollEnabled {
		poller = worker.NewPoller(log, runs, cfg.WorkerPollInterval)
	}

	return Services{
		Configuration: services.NewConfigurationService(log, r.Configuration, r.PromptInstance, r.FinalWinner),
		GenerationRun: runs,
		Rating: services.NewRatingService(
			db, log,
			r.Configuration, r.PromptInstance, r.Completion,
			r.RatingMatch, r.RatingResponse, r.FinalWinner,
			bracket,
			services.RatingConfig{
				LockTimeout:        cfg.RatingLockTimeout,
				CandidateSample:    cfg.RatingCandidateSample,
				MaxAcquireAttempts: cfg.RatingAcquireAttempts,
			},
		),
		SettingsSync: services.NewSettingsSync(cfg.SeedConfigPath, log, r.Configuration, r.PromptInstance),
		Bracket:      bracket,
		Worker:       genWorker,
		Poller:       poller,
	}
}
