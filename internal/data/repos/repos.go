package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/ratebench-backend/internal/data/repos/generation"
	"github.com/yungbote/ratebench-backend/internal/data/repos/rating"
	"github.com/yungbote/ratebench-backend/internal/platform/logger"
)

type ConfigurationRepo = generation.ConfigurationRepo
type PromptInstanceRepo = generation.PromptInstanceRepo
type GenerationRunRepo = generation.GenerationRunRepo
type CompletionRepo = generation.CompletionRepo

type RatingMatchRepo = rating.RatingMatchRepo
type RatingResponseRepo = rating.RatingResponseRepo
type FinalWinnerRepo = rating.FinalWinnerRepo

func NewConfigurationRepo(db *gorm.DB, baseLog *logger.Logger) ConfigurationRepo {
	return generation.NewConfigurationRepo(db, baseLog)
}
func NewPromptInstanceRepo(db *gorm.DB, baseLog *logger.Logger) PromptInstanceRepo {
	return generation.NewPromptInstanceRepo(db, baseLog)
}
func NewGenerationRunRepo(db *gorm.DB, baseLog *logger.Logger) GenerationRunRepo {
	return generation.NewGenerationRunRepo(db, baseLog)
}
func NewCompletionRepo(db *gorm.DB, baseLog *logger.Logger) CompletionRepo {
	return generation.NewCompletionRepo(db, baseLog)
}

func NewRatingMatchRepo(db *gorm.DB, baseLog *logger.Logger) RatingMatchRepo {
	return rating.NewRatingMatchRepo(db, baseLog)
}
func NewRatingResponseRepo(db *gorm.DB, baseLog *logger.Logger) RatingResponseRepo {
	return rating.NewRatingResponseRepo(db, baseLog)
}
func NewFinalWinnerRepo(db *gorm.DB, baseLog *logger.Logger) FinalWinnerRepo {
	return rating.NewFinalWinnerRepo(db, baseLog)
}
