package postgres

import (
	"context"
	"database/sql"

	"venuelive/internal/core/domain"

	"github.com/google/uuid"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

/*
	-- Conversations: one row per unordered member pair. The pair is
	-- normalised (member_one_id < member_two_id) before insert, so the
	-- unique index enforces at-most-one conversation per pair.
	CREATE TABLE conversations (
		id             UUID PRIMARY KEY,
		member_one_id  UUID NOT NULL REFERENCES profiles(id),
		member_two_id  UUID NOT NULL REFERENCES profiles(id),
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (member_one_id, member_two_id)
	);
*/

func (r *ConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	if id == uuid.Nil {
		return nil, domain.ErrInvalidConversationID
	}
	exec := GetExecutor(ctx, r.db)
	c := &domain.Conversation{ID: id}
	err := exec.QueryRowContext(ctx, `
		SELECT member_one_id, member_two_id, created_at
		FROM conversations WHERE id = $1
	`, id).Scan(&c.MemberOneID, &c.MemberTwoID, &c.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrConversationNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *ConversationRepo) GetOrCreate(ctx context.Context, a, b uuid.UUID) (*domain.Conversation, error) {
	if a == uuid.Nil || b == uuid.Nil || a == b {
		return nil, domain.ErrInvalidProfileID
	}
	one, two := domain.NormalizePair(a, b)
	c := &domain.Conversation{MemberOneID: one, MemberTwoID: two}
	// The no-op DO UPDATE makes RETURNING yield the existing row on
	// conflict, so a duplicate request resolves to the same conversation.
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, `
		INSERT INTO conversations (id, member_one_id, member_two_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (member_one_id, member_two_id)
		DO UPDATE SET member_one_id = EXCLUDED.member_one_id
		RETURNING id, created_at
	`, uuid.New(), one, two).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ConversationRepo) ListForProfile(ctx context.Context, profileID uuid.UUID) ([]domain.ChatSummary, error) {
	if profileID == uuid.Nil {
		return nil, domain.ErrInvalidProfileID
	}
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, `
		SELECT c.id,
		       other.id, other.name, other.avatar_url,
		       last.created_at, last.content, last.deleted
		FROM conversations c
		JOIN profiles other
		  ON other.id = CASE WHEN c.member_one_id = $1 THEN c.member_two_id ELSE c.member_one_id END
		LEFT JOIN LATERAL (
			SELECT created_at, content, deleted
			FROM messages m
			WHERE m.conversation_id = c.id
			ORDER BY m.created_at DESC
			LIMIT 1
		) last ON true
		WHERE c.member_one_id = $1 OR c.member_two_id = $1
	`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ChatSummary
	for rows.Next() {
		var (
			s       domain.ChatSummary
			otherID uuid.UUID
			lastAt  sql.NullTime
			content sql.NullString
			deleted sql.NullBool
		)
		if err := rows.Scan(&s.ID, &otherID, &s.Name, &s.AvatarURL, &lastAt, &content, &deleted); err != nil {
			return nil, err
		}
		s.Kind = domain.KindConversation
		s.MemberIDs = []uuid.UUID{profileID, otherID}
		if lastAt.Valid {
			s.LastMessageAt = lastAt.Time
		}
		if content.Valid && !(deleted.Valid && deleted.Bool) {
			s.LastMessagePreview = content.String
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
