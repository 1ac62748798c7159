package rating

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/ratebench-backend/internal/domain"
	"github.com/yungbote/ratebench-backend/internal/platform/dbctx"
	"github.com/yungbote/ratebench-backend/internal/platform/logger"
)

type RatingResponseRepo interface {
	Create(dbc dbctx.Context, resp *types.RatingResponse) (*types.RatingResponse, error)
	Exists(dbc dbctx.Context, matchID, userID uuid.UUID) (bool, error)
	ListByMatch(dbc dbctx.Context, matchID uuid.UUID) ([]*types.RatingResponse, error)
	CountByUser(dbc dbctx.Context, userID uuid.UUID) (int64, error)
}

type ratingResponseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRatingResponseRepo(db *gorm.DB, baseLog *logger.Logger) RatingResponseRepo {
	return &ratingResponseRepo{
		db:  db,
		log: baseLog.With("repo", "RatingResponseRepo"),
	}
}

func (r *ratingResponseRepo) Create(dbc dbctx.Context, resp *types.RatingResponse) (*types.RatingResponse, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if resp == nil {
		return nil, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(resp).Error; err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *ratingResponseRepo) Exists(dbc dbctx.Context, matchID, userID uuid.UUID) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.RatingResponse{}).
		Where("rating_match_id = ? AND user_id = ?", matchID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *ratingResponseRepo) ListByMatch(dbc dbctx.Context, matchID uuid.UUID) ([]*types.RatingResponse, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.RatingResponse
	if err := transaction.WithContext(dbc.Ctx).
		Where("rating_match_id = ?", matchID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ratingResponseRepo) CountByUser(dbc dbctx.Context, userID uuid.UUID) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.RatingResponse{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}
