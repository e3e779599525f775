package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/projectpulse/internal/domain"
)

// A project without members still yields one row (NULL user_id), which
// tells an empty project apart from an unknown one.
const participantsSQL = `
	SELECT pm.user_id
	FROM projects p
	LEFT JOIN project_members pm ON pm.project_id = p.id
	WHERE p.id = $1
	ORDER BY pm.user_id`

type MembershipRepo struct {
	pool *pgxpool.Pool
}

var _ domain.MembershipResolver = (*MembershipRepo)(nil)

func NewMembershipRepo(pool *pgxpool.Pool) *MembershipRepo {
	return &MembershipRepo{pool: pool}
}

func (r *MembershipRepo) Participants(ctx context.Context, conversationID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, participantsSQL, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query project members: %w", err)
	}
	defer rows.Close()

	found := false
	var members []int64
	for rows.Next() {
		found = true
		var userID *int64
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan project member: %w", err)
		}
		if userID != nil {
			members = append(members, *userID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read project members: %w", err)
	}

	if !found {
		return nil, domain.ErrConversationNotFound
	}
	return members, nil
}
