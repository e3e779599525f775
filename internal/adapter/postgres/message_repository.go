package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/projectpulse/internal/domain"
)

const (
	insertMessageSQL = `
		INSERT INTO messages (sender_id, recipient_id, project_id, content, sent_at, is_read)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	markConversationReadSQL = `
		UPDATE messages SET is_read = TRUE
		WHERE recipient_id = $1 AND project_id = $2 AND NOT is_read`

	unreadCountsSQL = `
		SELECT u.id, COUNT(m.id)
		FROM unnest($2::bigint[]) AS u(id)
		LEFT JOIN messages m
			ON m.recipient_id = u.id AND m.project_id = $1 AND NOT m.is_read
		GROUP BY u.id`

	listConversationSQL = `
		SELECT id, sender_id, recipient_id, project_id, content, sent_at, is_read
		FROM messages
		WHERE recipient_id = $1 AND project_id = $2
		ORDER BY sent_at, id`

	countUnreadSQL = `
		SELECT COUNT(*) FROM messages WHERE recipient_id = $1 AND NOT is_read`

	countUnreadByProjectSQL = `
		SELECT project_id, COUNT(*)
		FROM messages
		WHERE recipient_id = $1 AND NOT is_read
		GROUP BY project_id`
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

// SaveBatch inserts all records in one transaction and returns them with
// their ids. Either every record is stored or none is.
func (r *MessageRepo) SaveBatch(ctx context.Context, records []domain.DeliveryRecord) ([]domain.DeliveryRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(insertMessageSQL, rec.SenderID, rec.RecipientID, rec.ConversationID, rec.Content, rec.SentAt, rec.IsRead)
	}

	results := tx.SendBatch(ctx, batch)
	saved := make([]domain.DeliveryRecord, len(records))
	for i, rec := range records {
		if err := results.QueryRow().Scan(&rec.ID); err != nil {
			_ = results.Close()
			return nil, fmt.Errorf("failed to insert delivery record for recipient %d: %w", rec.RecipientID, err)
		}
		saved[i] = rec
	}
	if err := results.Close(); err != nil {
		return nil, fmt.Errorf("failed to close insert batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit delivery records: %w", err)
	}
	return saved, nil
}

func (r *MessageRepo) MarkConversationRead(ctx context.Context, userID, conversationID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, markConversationReadSQL, userID, conversationID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark conversation read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *MessageRepo) UnreadCounts(ctx context.Context, conversationID int64, userIDs []int64) (map[int64]int64, error) {
	rows, err := r.pool.Query(ctx, unreadCountsSQL, conversationID, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query unread counts: %w", err)
	}
	return collectCounts(rows)
}

func (r *MessageRepo) ListConversation(ctx context.Context, userID, conversationID int64) ([]domain.DeliveryRecord, error) {
	rows, err := r.pool.Query(ctx, listConversationSQL, userID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}

	records, err := pgx.CollectRows(rows, pgx.RowToStructByPos[domain.DeliveryRecord])
	if err != nil {
		return nil, fmt.Errorf("failed to scan conversation: %w", err)
	}
	return records, nil
}

func (r *MessageRepo) CountUnread(ctx context.Context, userID int64) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, countUnreadSQL, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

func (r *MessageRepo) CountUnreadByConversation(ctx context.Context, userID int64) (map[int64]int64, error) {
	rows, err := r.pool.Query(ctx, countUnreadByProjectSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unread counts by project: %w", err)
	}
	return collectCounts(rows)
}

func collectCounts(rows pgx.Rows) (map[int64]int64, error) {
	defer rows.Close()

	counts := make(map[int64]int64)
	for rows.Next() {
		var key, count int64
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[key] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read counts: %w", err)
	}
	return counts, nil
}
