package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/ratebench-backend/internal/data/repos"
	"github.com/yungbote/ratebench-backend/internal/platform/logger"
)

type Repos struct {
	Configuration  repos.ConfigurationRepo
	PromptInstance repos.PromptInstanceRepo
	GenerationRun  repos.GenerationRunRepo
	Completion     repos.CompletionRepo
	RatingMatch    repos.RatingMatchRepo
	RatingResponse repos.RatingResponseRepo
	FinalWinner    repos.FinalWinnerRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Configuration:  repos.NewConfigurationRepo(db, log),
		PromptInstance: repos.NewPromptInstanceRepo(db, log),
		GenerationRun:  repos.NewGenerationRunRepo(db, log),
		Completion:     repos.NewCompletionRepo(db, log),
		RatingMatch:    repos.NewRatingMatchRepo(db, log),
		RatingResponse: repos.NewRatingResponseRepo(db, log),
		FinalWinner:    repos.NewFinalWinnerRepo(db, log),
	}
}
