package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/ratebench-backend/internal/domain"
	"github.com/yungbote/ratebench-backend/internal/http/response"
	"github.com/yungbote/ratebench-backend/internal/services"
)

type RatingHandler struct {
	rating services.RatingService
}

func NewRatingHandler(rating services.RatingService) *RatingHandler {
	return &RatingHandler{rating: rating}
}

// POST /api/rating/next
func (h *RatingHandler) NextMatch(c *gin.Context) {
	assignment, err := h.rating.NextMatch(c.Request.Context())
	if err != nil {
		response.RespondServiceError(c, "next_match_failed", err)
		return
	}
	if assignment == nil {
		response.RespondOK(c, gin.H{"assignment": nil, "message": "No matches available"})
		return
	}
	response.RespondOK(c, gin.H{"assignment": assignment})
}

// POST /api/rating/matches/:id/release
func (h *RatingHandler) Release(c *gin.Context) {
	id, ok := pathID(c, "invalid_match_id")
	if !ok {
		return
	}
	if err := h.rating.Release(c.Request.Context(), id); err != nil {
		response.RespondServiceError(c, "release_match_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

type submitRatingRequest struct {
	Outcome            types.Outcome `json:"outcome"`
	RejectionReasonIDs []uuid.UUID   `json:"rejectionReasonIds"`
	Notes              string        `json:"notes"`
}

// POST /api/rating/matches/:id/submit
func (h *RatingHandler) Submit(c *gin.Context) {
	id, ok := pathID(c, "invalid_match_id")
	if !ok {
		return
	}
	var req submitRatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, services.CodeValidation, err)
		return
	}
	res, err := h.rating.Submit(c.Request.Context(), services.SubmitInput{
		MatchID:            id,
		Outcome:            req.Outcome,
		RejectionReasonIDs: req.RejectionReasonIDs,
		Notes:              req.Notes,
	})
	if err != nil {
		response.RespondServiceError(c, "submit_rating_failed", err)
		return
	}
	response.RespondOK(c, res)
}

// GET /api/configurations/:id/rating/progress
func (h *RatingHandler) Progress(c *gin.Context) {
	id, ok := pathID(c, "invalid_configuration_id")
	if !ok {
		return
	}
	progress, err := h.rating.Progress(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, "rating_progress_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"progress": progress})
}

// GET /api/configurations/:id/results
func (h *RatingHandler) Results(c *gin.Context) {
	id, ok := pathID(c, "invalid_configuration_id")
	if !ok {
		return
	}
	results, err := h.rating.Results(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, "rating_results_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"results": results})
}
