package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/enterprise/aml-screening/internal/models"
	"github.com/enterprise/aml-screening/internal/repositories"
)

type mockFlagReviews struct {
	mock.Mock
}

func (m *mockFlagReviews) GetByID(ctx context.Context, id uuid.UUID) (*models.Flag, error) {
	args := m.Called(ctx, id)
	f, _ := args.Get(0).(*models.Flag)
	return f, args.Error(1)
}

func (m *mockFlagReviews) SaveReview(ctx context.Context, flagID uuid.UUID, review *models.Review, status string) error {
	return m.Called(ctx, flagID, review, status).Error(0)
}

type countingInvalidator struct {
	calls int
}

func (c *countingInvalidator) InvalidateSummary(context.Context) {
	c.calls++
}

func TestReviewService_ReviewFlag(t *testing.T) {
	flagID := uuid.New()
	store := &mockFlagReviews{}
	inv := &countingInvalidator{}

	store.On("SaveReview", mock.Anything, flagID, mock.MatchedBy(func(r *models.Review) bool {
		return r.Verdict == models.FlagStatusCleared && r.Reviewer == "analyst@bank.test" && !r.ReviewedAt.IsZero()
	}), models.FlagStatusCleared).Return(nil)
	store.On("GetByID", mock.Anything, flagID).Return(&models.Flag{ID: flagID, Status: models.FlagStatusCleared}, nil)

	flag, err := NewReviewService(store, inv).ReviewFlag(context.Background(), flagID,
		&ReviewRequest{Verdict: models.FlagStatusCleared, Notes: "known payroll"}, "analyst@bank.test")
	require.NoError(t, err)
	assert.Equal(t, models.FlagStatusCleared, flag.Status)
	assert.Equal(t, 1, inv.calls)
	store.AssertExpectations(t)
}

func TestReviewService_RejectsUnknownVerdict(t *testing.T) {
	store := &mockFlagReviews{}

	_, err := NewReviewService(store, nil).ReviewFlag(context.Background(), uuid.New(), &ReviewRequest{Verdict: "pending"}, "a")
	assert.ErrorIs(t, err, ErrInvalidVerdict)
	store.AssertNotCalled(t, "SaveReview", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReviewService_MissingFlag(t *testing.T) {
	store := &mockFlagReviews{}
	store.On("SaveReview", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(repositories.ErrFlagNotFound)

	_, err := NewReviewService(store, nil).ReviewFlag(context.Background(), uuid.New(), &ReviewRequest{Verdict: models.FlagStatusEscalated}, "a")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}
