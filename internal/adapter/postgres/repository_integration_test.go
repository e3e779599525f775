package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pscheid92/projectpulse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sentAt = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func records(senderID, projectID int64, content string, unreadFor ...int64) []domain.DeliveryRecord {
	out := []domain.DeliveryRecord{{
		SenderID: senderID, RecipientID: senderID, ConversationID: projectID,
		Content: content, SentAt: sentAt, IsRead: true,
	}}
	for _, id := range unreadFor {
		out = append(out, domain.DeliveryRecord{
			SenderID: senderID, RecipientID: id, ConversationID: projectID,
			Content: content, SentAt: sentAt,
		})
	}
	return out
}

func TestParticipants(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewMembershipRepo(pool)
	ctx := context.Background()

	projectID := seedProject(t, pool, "Apollo", 9, 7, 12)

	members, err := repo.Participants(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 9, 12}, members)
}

func TestParticipants_EmptyProject(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewMembershipRepo(pool)

	projectID := seedProject(t, pool, "Empty")

	members, err := repo.Participants(context.Background(), projectID)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestParticipants_UnknownProject(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewMembershipRepo(pool)

	_, err := repo.Participants(context.Background(), 999)
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
}

func TestSaveBatch_AssignsIDs(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewMessageRepo(pool)
	ctx := context.Background()
	projectID := seedProject(t, pool, "Apollo", 7, 9, 12)

	saved, err := repo.SaveBatch(ctx, records(9, projectID, "kickoff at 10", 7, 12))
	require.NoError(t, err)
	require.Len(t, saved, 3)

	for _, rec := range saved {
		assert.NotZero(t, rec.ID)
		assert.True(t, rec.SentAt.Equal(sentAt))
	}
	assert.Equal(t, int64(9), saved[0].RecipientID)
	assert.True(t, saved[0].IsRead)
}

func TestSaveBatch_IsAtomic(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewMessageRepo(pool)
	ctx := context.Background()
	projectID := seedProject(t, pool, "Apollo", 7, 9)

	batch := records(9, projectID, "half written", 7)
	// Empty content violates the CHECK constraint on the last row.
	batch = append(batch, domain.DeliveryRecord{SenderID: 9, RecipientID: 8, ConversationID: projectID, SentAt: sentAt})

	_, err := repo.SaveBatch(ctx, batch)
	require.Error(t, err)

	var count int
	require.NoError(t, pool.QueryRow(ctx, "SELECT COUNT(*) FROM messages").Scan(&count))
	assert.Zero(t, count)
}

func TestSaveBatch_Empty(t *testing.T) {
	pool := setupTestDB(t)
	saved, err := NewMessageRepo(pool).SaveBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestUnreadCounts(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewMessageRepo(pool)
	ctx := context.Background()
	projectID := seedProject(t, pool, "Apollo", 7, 9, 12)
	otherID := seedProject(t, pool, "Zeus", 7, 9)

	_, err := repo.SaveBatch(ctx, records(9, projectID, "one", 7, 12))
	require.NoError(t, err)
	_, err = repo.SaveBatch(ctx, records(9, projectID, "two", 7))
	require.NoError(t, err)
	_, err = repo.SaveBatch(ctx, records(9, otherID, "elsewhere", 7))
	require.NoError(t, err)

	counts, err := repo.UnreadCounts(ctx, projectID, []int64{7, 9, 12, 44})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{7: 2, 9: 0, 12: 1, 44: 0}, counts)

	total, err := repo.CountUnread(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	byProject, err := repo.CountUnreadByConversation(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{projectID: 2, otherID: 1}, byProject)
}

func TestMarkConversationRead(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewMessageRepo(pool)
	ctx := context.Background()
	projectID := seedProject(t, pool, "Apollo", 7, 9)
	otherID := seedProject(t, pool, "Zeus", 7, 9)

	_, err := repo.SaveBatch(ctx, records(9, projectID, "one", 7))
	require.NoError(t, err)
	_, err = repo.SaveBatch(ctx, records(9, projectID, "two", 7))
	require.NoError(t, err)
	_, err = repo.SaveBatch(ctx, records(9, otherID, "untouched", 7))
	require.NoError(t, err)

	updated, err := repo.MarkConversationRead(ctx, 7, projectID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	again, err := repo.MarkConversationRead(ctx, 7, projectID)
	require.NoError(t, err)
	assert.Zero(t, again)

	byProject, err := repo.CountUnreadByConversation(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{otherID: 1}, byProject)
}

func TestListConversation_OrderedAndScoped(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewMessageRepo(pool)
	ctx := context.Background()
	projectID := seedProject(t, pool, "Apollo", 7, 9)

	later := records(9, projectID, "second", 7)
	for i := range later {
		later[i].SentAt = sentAt.Add(time.Minute)
	}
	_, err := repo.SaveBatch(ctx, later)
	require.NoError(t, err)
	_, err = repo.SaveBatch(ctx, records(7, projectID, "first", 9))
	require.NoError(t, err)

	msgs, err := repo.ListConversation(ctx, 7, projectID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
	for _, m := range msgs {
		assert.Equal(t, int64(7), m.RecipientID)
		assert.Equal(t, projectID, m.ConversationID)
	}
	assert.True(t, msgs[0].IsRead)
	assert.False(t, msgs[1].IsRead)
}

func TestMigrationStatus_UpToDate(t *testing.T) {
	pool := setupTestDB(t)

	require.NoError(t, RunMigrationsWithLock(context.Background(), pool))

	current, target, err := MigrationStatus(context.Background(), pool)
	require.NoError(t, err)
	assert.Equal(t, target, current)
	assert.Equal(t, int32(2), target)
}
