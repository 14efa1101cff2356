package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/aml-screening/internal/models"
)

// ErrInvalidVerdict is returned for verdicts outside the review vocabulary
var ErrInvalidVerdict = errors.New("verdict must be one of investigating, cleared, escalated, reviewed")

// FlagReviewStore persists analyst dispositions
type FlagReviewStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Flag, error)
	SaveReview(ctx context.Context, flagID uuid.UUID, review *models.Review, status string) error
}

// SummaryInvalidator drops cached aggregates after a flag changes
type SummaryInvalidator interface {
	InvalidateSummary(ctx context.Context)
}

// ReviewRequest represents an analyst's disposition of a flag
type ReviewRequest struct {
	Verdict string `json:"verdict" binding:"required"`
	Notes   string `json:"notes"`
}

// ReviewService records analyst reviews of flags
type ReviewService struct {
	flags   FlagReviewStore
	summary SummaryInvalidator
	now     func() time.Time
}

// NewReviewService creates a new review service. summary may be nil.
func NewReviewService(flags FlagReviewStore, summary SummaryInvalidator) *ReviewService {
	return &ReviewService{flags: flags, summary: summary, now: time.Now}
}

// ReviewFlag stores the verdict and moves the flag to the matching status
func (s *ReviewService) ReviewFlag(ctx context.Context, flagID uuid.UUID, req *ReviewRequest, reviewer string) (*models.Flag, error) {
	switch req.Verdict {
	case models.FlagStatusInvestigating, models.FlagStatusCleared,
		models.FlagStatusEscalated, models.FlagStatusReviewed:
	default:
		return nil, ErrInvalidVerdict
	}

	review := &models.Review{
		Verdict:    req.Verdict,
		Notes:      req.Notes,
		Reviewer:   reviewer,
		ReviewedAt: s.now().UTC(),
	}
	if err := s.flags.SaveReview(ctx, flagID, review, req.Verdict); err != nil {
		return nil, fmt.Errorf("failed to review flag %s: %w", flagID, err)
	}

	if s.summary != nil {
		s.summary.InvalidateSummary(ctx)
	}

	log.Info().
		Str("flag_id", flagID.String()).
		Str("verdict", req.Verdict).
		Str("reviewer", reviewer).
		Msg("Flag reviewed")

	return s.flags.GetByID(ctx, flagID)
}
