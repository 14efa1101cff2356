package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/enterprise/aml-screening/internal/models"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Create(ctx context.Context, entry *models.AuditLogEntry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *mockStore) List(ctx context.Context, q models.AuditQuery) ([]*models.AuditLogEntry, int, error) {
	args := m.Called(ctx, q)
	logs, _ := args.Get(0).([]*models.AuditLogEntry)
	return logs, args.Int(1), args.Error(2)
}

func (m *mockStore) Stats(ctx context.Context, q models.AuditQuery) (models.AuditStats, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(models.AuditStats), args.Error(1)
}

func TestLogger_RecordSwallowsStoreErrors(t *testing.T) {
	store := &mockStore{}
	store.On("Create", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	assert.NotPanics(t, func() {
		NewLogger(store).Record(context.Background(), &models.AuditLogEntry{
			TransactionID: uuid.New(),
			Status:        models.AuditStatusError,
		})
	})
	store.AssertExpectations(t)
}

func TestLogger_RecordSurvivesCancelledContext(t *testing.T) {
	store := &mockStore{}
	store.On("Create", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), mock.Anything).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	NewLogger(store).Record(ctx, &models.AuditLogEntry{TransactionID: uuid.New()})
	store.AssertExpectations(t)
}

func TestLogger_Query(t *testing.T) {
	txID := uuid.New()
	store := &mockStore{}
	want := models.AuditQuery{TransactionID: &txID, Status: models.AuditStatusSuccess, Limit: 50}
	entries := []*models.AuditLogEntry{{ID: uuid.New(), TransactionID: txID, Status: models.AuditStatusSuccess}}

	store.On("List", mock.Anything, want).Return(entries, 3, nil)
	store.On("Stats", mock.Anything, want).Return(models.AuditStats{Total: 3, Successful: 2, TotalCost: 0.123456}, nil)

	page, err := NewLogger(store).Query(context.Background(), models.AuditQuery{TransactionID: &txID, Status: models.AuditStatusSuccess})
	require.NoError(t, err)

	assert.Equal(t, entries, page.Logs)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 66.67, page.SuccessRate)
	assert.Equal(t, 0.12, page.TotalCost)
	assert.Equal(t, 50, page.Limit)
	store.AssertExpectations(t)
}

func TestLogger_QueryClampsLimitAndEmptyResult(t *testing.T) {
	store := &mockStore{}
	want := models.AuditQuery{Limit: maxLimit}
	store.On("List", mock.Anything, want).Return(nil, 0, nil)
	store.On("Stats", mock.Anything, want).Return(models.AuditStats{}, nil)

	page, err := NewLogger(store).Query(context.Background(), models.AuditQuery{Limit: 10000, Offset: -5})
	require.NoError(t, err)
	assert.NotNil(t, page.Logs)
	assert.Empty(t, page.Logs)
	assert.Equal(t, 0.0, page.SuccessRate)
}

func TestSuccessRate(t *testing.T) {
	assert.Equal(t, 0.0, SuccessRate(models.AuditStats{}))
	assert.Equal(t, 100.0, SuccessRate(models.AuditStats{Total: 4, Successful: 4}))
	assert.Equal(t, 33.33, SuccessRate(models.AuditStats{Total: 3, Successful: 1}))
}
