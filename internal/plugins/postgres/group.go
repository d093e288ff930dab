package postgres

import (
	"context"
	"database/sql"
	"time"

	"venuelive/internal/core/domain"

	"github.com/google/uuid"
)

type GroupRepo struct {
	db *sql.DB
}

func NewGroupRepo(db *sql.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

/*
	CREATE TABLE groups (
		id               UUID PRIMARY KEY,
		name             TEXT NOT NULL,
		avatar_url       TEXT,
		last_message_id  UUID,
		last_message_at  TIMESTAMPTZ,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE group_members (
		group_id    UUID NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
		profile_id  UUID NOT NULL REFERENCES profiles(id),
		joined_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (group_id, profile_id)
	);
*/

func (r *GroupRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Group, error) {
	if id == uuid.Nil {
		return nil, domain.ErrInvalidGroupID
	}
	exec := GetExecutor(ctx, r.db)
	g := &domain.Group{ID: id}
	err := exec.QueryRowContext(ctx, `
		SELECT name, avatar_url, last_message_id, last_message_at, created_at
		FROM groups WHERE id = $1
	`, id).Scan(&g.Name, &g.AvatarURL, &g.LastMessageID, &g.LastMessageAt, &g.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrGroupNotFound
		}
		return nil, err
	}
	rows, err := exec.QueryContext(ctx, `
		SELECT profile_id FROM group_members WHERE group_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var pid uuid.UUID
		if err := rows.Scan(&pid); err != nil {
			return nil, err
		}
		g.MemberIDs = append(g.MemberIDs, pid)
	}
	return g, rows.Err()
}

func (r *GroupRepo) Create(ctx context.Context, g *domain.Group) error {
	if g.ID == uuid.Nil {
		return domain.ErrInvalidGroupID
	}
	if len(g.MemberIDs) == 0 {
		return domain.ErrInvalidProfileID
	}
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, `
		INSERT INTO groups (id, name, avatar_url)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, g.ID, g.Name, g.AvatarURL).Scan(&g.CreatedAt)
	if err != nil {
		return err
	}
	for _, pid := range g.MemberIDs {
		if _, err := exec.ExecContext(ctx, `
			INSERT INTO group_members (group_id, profile_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, g.ID, pid); err != nil {
			return err
		}
	}
	return nil
}

func (r *GroupRepo) IsMember(ctx context.Context, groupID, profileID uuid.UUID) (bool, error) {
	if groupID == uuid.Nil {
		return false, domain.ErrInvalidGroupID
	}
	exec := GetExecutor(ctx, r.db)
	var exists bool
	err := exec.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM group_members WHERE group_id = $1 AND profile_id = $2
		)
	`, groupID, profileID).Scan(&exists)
	return exists, err
}

func (r *GroupRepo) SetLastMessage(ctx context.Context, groupID, messageID uuid.UUID, at time.Time) error {
	if groupID == uuid.Nil {
		return domain.ErrInvalidGroupID
	}
	exec := GetExecutor(ctx, r.db)
	result, err := exec.ExecContext(ctx, `
		UPDATE groups SET last_message_id = $2, last_message_at = $3
		WHERE id = $1
	`, groupID, messageID, at)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrGroupNotFound
	}
	return nil
}

func (r *GroupRepo) ListForProfile(ctx context.Context, profileID uuid.UUID) ([]domain.ChatSummary, error) {
	if profileID == uuid.Nil {
		return nil, domain.ErrInvalidProfileID
	}
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, `
		SELECT g.id, g.name, g.avatar_url, g.last_message_at,
		       last.content, last.deleted
		FROM groups g
		JOIN group_members gm ON gm.group_id = g.id AND gm.profile_id = $1
		LEFT JOIN messages last ON last.id = g.last_message_id
	`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ChatSummary
	for rows.Next() {
		var (
			s       domain.ChatSummary
			lastAt  sql.NullTime
			content sql.NullString
			deleted sql.NullBool
		)
		if err := rows.Scan(&s.ID, &s.Name, &s.AvatarURL, &lastAt, &content, &deleted); err != nil {
			return nil, err
		}
		s.Kind = domain.KindGroup
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
