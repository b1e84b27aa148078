package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/mvstories/internal/domain"
	"github.com/prn-tf/mvstories/internal/repository"
)

// =============================================================================
// Mock Objects
// =============================================================================

type mockObjects struct {
	mock.Mock
}

func (m *mockObjects) Create(ctx context.Context, in repository.CreateInput, identity domain.Identity) (*domain.Metadata, error) {
	args := m.Called(ctx, in, identity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Metadata), args.Error(1)
}

func (m *mockObjects) Find(ctx context.Context, t domain.ObjectType, id string) (*domain.Metadata, error) {
	args := m.Called(ctx, t, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Metadata), args.Error(1)
}

func (m *mockObjects) List(ctx context.Context, t domain.ObjectType, userID string) ([]*domain.Metadata, error) {
	args := m.Called(ctx, t, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Metadata), args.Error(1)
}

func (m *mockObjects) Update(ctx context.Context, t domain.ObjectType, id, requesterID string, patch repository.Patch) (*domain.Metadata, error) {
	args := m.Called(ctx, t, id, requesterID, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Metadata), args.Error(1)
}

func (m *mockObjects) Delete(ctx context.Context, t domain.ObjectType, id, requesterID string) (*repository.DeleteResult, error) {
	args := m.Called(ctx, t, id, requesterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.DeleteResult), args.Error(1)
}

func (m *mockObjects) DeleteAllForUser(ctx context.Context, userID string) (*repository.DeletionSummary, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.DeletionSummary), args.Error(1)
}

func (m *mockObjects) ReadData(ctx context.Context, meta *domain.Metadata, format string) (*repository.Content, error) {
	args := m.Called(ctx, meta, format)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Content), args.Error(1)
}

func (m *mockObjects) DataFormat(ctx context.Context, meta *domain.Metadata) (string, error) {
	args := m.Called(ctx, meta)
	return args.String(0), args.Error(1)
}

func (m *mockObjects) ReadCompanionSession(ctx context.Context, meta *domain.Metadata) ([]byte, error) {
	args := m.Called(ctx, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func metadataList(n int) []*domain.Metadata {
	list := make([]*domain.Metadata, n)
	for i := range list {
		list[i] = &domain.Metadata{}
	}
	return list
}

// =============================================================================
// QuotaService Tests
// =============================================================================

func TestQuotaCheckLimit(t *testing.T) {
	tests := []struct {
		name    string
		count   int
		limit   int
		wantErr bool
	}{
		{"below limit", 2, 3, false},
		{"at limit", 3, 3, true},
		{"over limit", 5, 3, true},
		{"zero limit", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			objects := new(mockObjects)
			objects.On("List", mock.Anything, domain.TypeStory, "alice").Return(metadataList(tt.count), nil)

			quota := NewQuotaService(objects, 10, tt.limit, zerolog.Nop())
			err := quota.CheckLimit(context.Background(), "alice", domain.TypeStory)

			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, domain.ErrQuotaExceeded)
			var quotaErr *domain.QuotaError
			require.True(t, errors.As(err, &quotaErr))
			assert.Equal(t, tt.count, quotaErr.Current)
			assert.Equal(t, tt.limit, quotaErr.Limit)
			assert.Equal(t, domain.TypeStory, quotaErr.Type)
		})
	}
}

func TestQuotaStorageFailurePropagates(t *testing.T) {
	objects := new(mockObjects)
	failure := &domain.StorageError{Op: "list", Err: errors.New("timeout")}
	objects.On("List", mock.Anything, domain.TypeSession, "alice").Return(nil, failure)

	quota := NewQuotaService(objects, 10, 10, zerolog.Nop())
	err := quota.CheckLimit(context.Background(), "alice", domain.TypeSession)
	assert.ErrorIs(t, err, domain.ErrStorageFailure)
}

func TestQuotaCountRequiresUser(t *testing.T) {
	quota := NewQuotaService(new(mockObjects), 10, 10, zerolog.Nop())
	_, err := quota.Count(context.Background(), "", domain.TypeSession)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestQuotaSummary(t *testing.T) {
	objects := new(mockObjects)
	objects.On("List", mock.Anything, domain.TypeSession, "alice").Return(metadataList(9), nil)
	objects.On("List", mock.Anything, domain.TypeStory, "alice").Return(metadataList(2), nil)

	quota := NewQuotaService(objects, 10, 3, zerolog.Nop())
	summary, err := quota.Summary(context.Background(), domain.Identity{Subject: "alice", Name: "Alice"})
	require.NoError(t, err)

	assert.Equal(t, "alice", summary.UserID)
	assert.Equal(t, "Alice", summary.UserName)
	assert.Equal(t, QuotaUsage{
		Current: 9, Limit: 10, Remaining: 1, UsagePercent: 90, LimitReached: false, NearLimit: true,
	}, summary.Sessions)
	assert.Equal(t, QuotaUsage{
		Current: 2, Limit: 3, Remaining: 1, UsagePercent: 66.7, LimitReached: false, NearLimit: false,
	}, summary.Stories)
	assert.Equal(t, QuotaOverall{
		TotalObjects: 11, TotalLimit: 13, AnyLimitReached: false, AnyNearLimit: true,
	}, summary.Overall)
	objects.AssertExpectations(t)
}

func TestQuotaUsage(t *testing.T) {
	tests := []struct {
		name    string
		current int
		limit   int
		want    QuotaUsage
	}{
		{"empty", 0, 100, QuotaUsage{Current: 0, Limit: 100, Remaining: 100}},
		{"full", 100, 100, QuotaUsage{Current: 100, Limit: 100, Remaining: 0, UsagePercent: 100, LimitReached: true, NearLimit: true}},
		{"over", 7, 5, QuotaUsage{Current: 7, Limit: 5, Remaining: 0, UsagePercent: 140, LimitReached: true, NearLimit: true}},
		{"zero limit", 0, 0, QuotaUsage{Current: 0, Limit: 0, Remaining: 0, UsagePercent: 0, LimitReached: true, NearLimit: true}},
		{"one third", 1, 3, QuotaUsage{Current: 1, Limit: 3, Remaining: 2, UsagePercent: 33.3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, usage(tt.current, tt.limit))
		})
	}
}
