package memory

import (
	"context"
	"testing"
	"time"

	"zkcred-be/internal/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func owner(s string) *string { return &s }

func TestVerificationRepositoryCreateAssignsIdentity(t *testing.T) {
	repo := NewVerificationRepository()
	rec := &entity.VerificationRecord{OwnerId: owner("u1"), Status: entity.VerificationStatusVerified}

	require.NoError(t, repo.Create(context.Background(), rec))
	assert.NotEqual(t, uuid.Nil, rec.Id)
	assert.False(t, rec.CreatedAt.IsZero())

	got, err := repo.FindByID(context.Background(), rec.Id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.Id, got.Id)

	missing, err := repo.FindByID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestVerificationRepositoryRejectsDuplicateId(t *testing.T) {
	repo := NewVerificationRepository()
	rec := &entity.VerificationRecord{Id: uuid.New(), Status: entity.VerificationStatusVerified}

	require.NoError(t, repo.Create(context.Background(), rec))
	assert.Error(t, repo.Create(context.Background(), rec))
}

func TestVerificationRepositoryOwnerQuery(t *testing.T) {
	repo := NewVerificationRepository()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, &entity.VerificationRecord{
			OwnerId:   owner("alice"),
			Status:    entity.VerificationStatusVerified,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, repo.Create(ctx, &entity.VerificationRecord{OwnerId: owner("bob"), Status: entity.VerificationStatusVerified}))
	require.NoError(t, repo.Create(ctx, &entity.VerificationRecord{OwnerId: owner("alice"), Status: "pending", CreatedAt: base.Add(24 * time.Hour)}))
	require.NoError(t, repo.Create(ctx, &entity.VerificationRecord{Status: entity.VerificationStatusVerified}))

	got, err := repo.FindVerifiedByOwner(ctx, "alice", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, base.Add(4*time.Hour), got[0].CreatedAt)
	assert.Equal(t, base.Add(2*time.Hour), got[2].CreatedAt)
	for _, r := range got {
		assert.Equal(t, entity.VerificationStatusVerified, r.Status)
	}

	none, err := repo.FindVerifiedByOwner(ctx, "carol", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSessionEventRepositoryKeepsOrder(t *testing.T) {
	repo := NewSessionEventRepository()
	ctx := context.Background()
	for _, phase := range []string{"initializing", "extracting", "error"} {
		require.NoError(t, repo.Create(ctx, &entity.SessionEvent{SessionId: "s1", Phase: phase}))
	}

	got, err := repo.FindBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "error", got[2].Phase)
}
