package postgres

import (
	"context"
	"database/sql"
	"time"

	"venuelive/internal/core/domain"

	"github.com/google/uuid"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

/*
	-- Messages: exactly one of conversation_id / group_id is set.
	CREATE TABLE messages (
		id               UUID PRIMARY KEY,
		conversation_id  UUID REFERENCES conversations(id),
		group_id         UUID REFERENCES groups(id),
		sender_id        UUID NOT NULL REFERENCES profiles(id),
		content          TEXT NOT NULL,
		file_url         TEXT,
		deleted          BOOLEAN NOT NULL DEFAULT false,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK ((conversation_id IS NULL) <> (group_id IS NULL))
	);
	CREATE INDEX idx_messages_conversation ON messages (conversation_id, created_at DESC);
	CREATE INDEX idx_messages_group ON messages (group_id, created_at DESC);
*/

func (r *MessageRepo) Save(ctx context.Context, m *domain.Message) error {
	if m.ID == uuid.Nil {
		return domain.ErrInvalidMessage
	}
	if (m.ConversationID == nil) == (m.GroupID == nil) {
		return domain.ErrInvalidMessage
	}
	exec := GetExecutor(ctx, r.db)
	_, err := exec.ExecContext(ctx, `
		INSERT INTO messages (
			id, conversation_id, group_id, sender_id, content, file_url, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		m.ID,
		m.ConversationID,
		m.GroupID,
		m.SenderID,
		m.Content,
		m.FileURL,
		m.CreatedAt,
	)
	return err
}

func (r *MessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	if id == uuid.Nil {
		return nil, domain.ErrInvalidMessage
	}
	exec := GetExecutor(ctx, r.db)
	m := &domain.Message{ID: id}
	err := exec.QueryRowContext(ctx, `
		SELECT conversation_id, group_id, sender_id, content, file_url, deleted, created_at
		FROM messages WHERE id = $1
	`, id).Scan(&m.ConversationID, &m.GroupID, &m.SenderID, &m.Content, &m.FileURL, &m.Deleted, &m.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *MessageRepo) MarkDeleted(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return domain.ErrInvalidMessage
	}
	exec := GetExecutor(ctx, r.db)
	result, err := exec.ExecContext(ctx, `
		UPDATE messages SET deleted = true WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

func (r *MessageRepo) ListPage(
	ctx context.Context,
	conversationID, groupID *uuid.UUID,
	cursor *time.Time,
	take int,
) ([]domain.Message, error) {
	if (conversationID == nil) == (groupID == nil) {
		return nil, domain.ErrInvalidChannelKey
	}
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, `
		SELECT id, conversation_id, group_id, sender_id, content, file_url, deleted, created_at
		FROM messages
		WHERE (conversation_id = $1 OR group_id = $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at DESC
		LIMIT $4
	`, conversationID, groupID, cursor, take)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(
			&m.ID,
			&m.ConversationID,
			&m.GroupID,
			&m.SenderID,
			&m.Content,
			&m.FileURL,
			&m.Deleted,
			&m.CreatedAt,
		); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
