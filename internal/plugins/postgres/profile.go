package postgres

import (
	"context"
	"database/sql"

	"venuelive/internal/core/domain"

	"github.com/google/uuid"
)

type ProfileRepo struct {
	db *sql.DB
}

func NewProfileRepo(db *sql.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

/*
	-- Profiles (owned by the platform; this service reads them and
	-- writes only the active flag)
	CREATE TABLE profiles (
		id          UUID PRIMARY KEY,
		user_id     UUID NOT NULL UNIQUE,
		name        TEXT NOT NULL,
		avatar_url  TEXT,
		active      BOOLEAN NOT NULL DEFAULT false,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);
*/

func (r *ProfileRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	if id == uuid.Nil {
		return nil, domain.ErrInvalidProfileID
	}
	exec := GetExecutor(ctx, r.db)
	p := &domain.Profile{ID: id}
	err := exec.QueryRowContext(ctx, `
		SELECT user_id, name, avatar_url, active, created_at
		FROM profiles WHERE id = $1
	`, id).Scan(&p.UserID, &p.Name, &p.AvatarURL, &p.Active, &p.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrProfileNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *ProfileRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	if userID == uuid.Nil {
		return nil, domain.ErrInvalidProfileID
	}
	exec := GetExecutor(ctx, r.db)
	p := &domain.Profile{UserID: userID}
	err := exec.QueryRowContext(ctx, `
		SELECT id, name, avatar_url, active, created_at
		FROM profiles WHERE user_id = $1
	`, userID).Scan(&p.ID, &p.Name, &p.AvatarURL, &p.Active, &p.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrProfileNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *ProfileRepo) SetActive(ctx context.Context, profileID uuid.UUID, active bool) error {
	if profileID == uuid.Nil {
		return domain.ErrInvalidProfileID
	}
	exec := GetExecutor(ctx, r.db)
	result, err := exec.ExecContext(ctx, `
		UPDATE profiles SET active = $2 WHERE id = $1
	`, profileID, active)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrProfileNotFound
	}
	return nil
}
