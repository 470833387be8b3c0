package repository

import (
	"context"

	"github.com/sysu-ecnc-dev/task-vision/backend/internal/domain"
)

func (r *Repository) CreateMessage(ctx context.Context, m *domain.Message) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO messages (id, sender_id, sender_name, content, created_at)
		VALUES (:id, :sender_id, :sender_name, :content, :created_at)
	`

	if _, err := r.dbpool.NamedExecContext(ctx, query, m); err != nil {
		return translate(err)
	}

	return nil
}

// ListMessages 取最近的 limit 条消息，按时间正序返回
func (r *Repository) ListMessages(ctx context.Context, limit int) ([]*domain.Message, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, sender_id, sender_name, content, created_at FROM (
			SELECT id, sender_id, sender_name, content, created_at
			FROM messages
			ORDER BY created_at DESC
			LIMIT $1
		) recent
		ORDER BY created_at
	`

	messages := make([]*domain.Message, 0)
	if err := r.dbpool.SelectContext(ctx, &messages, query, limit); err != nil {
		return nil, translate(err)
	}

	return messages, nil
}
