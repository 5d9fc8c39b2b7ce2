package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/horike37/serverless-application/pkg/database"
	apperrors "github.com/horike37/serverless-application/pkg/errors"
	"github.com/horike37/serverless-application/services/user/internal/domain"
)

const (
	createProfileSQL = `
		INSERT INTO users (user_id, user_display_name, self_introduction, icon_image_url, sync_index, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	getProfileSQL = `
		SELECT user_id, user_display_name, self_introduction, icon_image_url, sync_index, created_at, updated_at
		FROM users
		WHERE user_id = $1`

	updateProfileInfoSQL = `
		UPDATE users
		SET user_display_name = $1, self_introduction = $2, sync_index = TRUE, updated_at = $3
		WHERE user_id = $4
		RETURNING user_id, user_display_name, self_introduction, icon_image_url, sync_index, created_at, updated_at`
)

// ProfileRepository implements repository.ProfileRepository on the users
// table.
type ProfileRepository struct {
	db  database.DBTX
	now func() time.Time
}

// NewProfileRepository creates a PostgreSQL-backed profile repository.
func NewProfileRepository(db database.DBTX) *ProfileRepository {
	return &ProfileRepository{db: db, now: time.Now}
}

// Create inserts the profile. The primary key makes this a conditional
// create: the loser of a concurrent insert gets AlreadyExists.
func (r *ProfileRepository) Create(ctx context.Context, u *domain.PlatformUser) (err error) {
	ctx, end := database.TraceQuery(ctx, "CreateProfile", createProfileSQL)
	defer func() { end(err) }()

	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.now().UTC()
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}

	_, err = r.db.Exec(ctx, createProfileSQL,
		u.UserID,
		u.DisplayName,
		u.SelfIntroduction,
		u.IconImageURL,
		u.SyncIndex,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("user", "user_id", u.UserID)
		}
		return fmt.Errorf("insert user profile: %w", err)
	}
	return nil
}

// GetByID returns the profile for userID.
func (r *ProfileRepository) GetByID(ctx context.Context, userID string) (u *domain.PlatformUser, err error) {
	ctx, end := database.TraceQuery(ctx, "GetProfile", getProfileSQL)
	defer func() { end(err) }()

	u, err = scanProfile(r.db.QueryRow(ctx, getProfileSQL, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("user", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("get user profile: %w", err)
	}
	return u, nil
}

// UpdateInfo updates the editable profile fields and flags the row for
// reindexing.
func (r *ProfileRepository) UpdateInfo(ctx context.Context, userID, displayName, selfIntroduction string) (u *domain.PlatformUser, err error) {
	ctx, end := database.TraceQuery(ctx, "UpdateProfileInfo", updateProfileInfoSQL)
	defer func() { end(err) }()

	u, err = scanProfile(r.db.QueryRow(ctx, updateProfileInfoSQL, displayName, selfIntroduction, r.now().UTC(), userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("user", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("update user profile: %w", err)
	}
	return u, nil
}

func scanProfile(row pgx.Row) (*domain.PlatformUser, error) {
	var u domain.PlatformUser
	if err := row.Scan(
		&u.UserID,
		&u.DisplayName,
		&u.SelfIntroduction,
		&u.IconImageURL,
		&u.SyncIndex,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &u, nil
}
