package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

// ProfileRepository keeps the display identity used to resolve senders.
type ProfileRepository interface {
	Upsert(ctx context.Context, profile models.Profile) error
}

// ProfileRepo is a sqlx implementation of ProfileRepository.
type ProfileRepo struct {
	db *sqlx.DB
}

// NewProfileRepo constructs a ProfileRepo.
func NewProfileRepo(db *sqlx.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// Upsert stores the latest display name and avatar for a user. Rows that
// already match are left alone.
func (r *ProfileRepo) Upsert(ctx context.Context, profile models.Profile) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO profiles (id, display_name, avatar_url) VALUES ($1, $2, $3)
        ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name, avatar_url = EXCLUDED.avatar_url, updated_at = NOW()
        WHERE profiles.display_name <> EXCLUDED.display_name OR profiles.avatar_url <> EXCLUDED.avatar_url`,
		profile.ID, profile.DisplayName, profile.AvatarURL)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}
