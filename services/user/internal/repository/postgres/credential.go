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
	createCredentialSQL = `
		INSERT INTO federated_credentials (user_id, password, provider, created_at)
		VALUES ($1, $2, $3, $4)`

	getCredentialSQL = `
		SELECT user_id, password, provider, created_at
		FROM federated_credentials
		WHERE user_id = $1`
)

// CredentialRepository implements repository.CredentialRepository. The
// password column holds the sealed secret; this type never sees plaintext.
type CredentialRepository struct {
	db  database.DBTX
	now func() time.Time
}

// NewCredentialRepository creates a PostgreSQL-backed credential repository.
func NewCredentialRepository(db database.DBTX) *CredentialRepository {
	return &CredentialRepository{db: db, now: time.Now}
}

// Create inserts the credential, at most one per user id.
func (r *CredentialRepository) Create(ctx context.Context, c *domain.FederatedCredential) (err error) {
	ctx, end := database.TraceQuery(ctx, "CreateCredential", createCredentialSQL)
	defer func() { end(err) }()

	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.now().UTC()
	}

	_, err = r.db.Exec(ctx, createCredentialSQL, c.UserID, c.Password, string(c.Provider), c.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("federated credential", "user_id", c.UserID)
		}
		return fmt.Errorf("insert federated credential: %w", err)
	}
	return nil
}

// Get returns the credential stored for userID.
func (r *CredentialRepository) Get(ctx context.Context, userID string) (c *domain.FederatedCredential, err error) {
	ctx, end := database.TraceQuery(ctx, "GetCredential", getCredentialSQL)
	defer func() { end(err) }()

	var (
		cred     domain.FederatedCredential
		provider string
	)
	err = r.db.QueryRow(ctx, getCredentialSQL, userID).Scan(&cred.UserID, &cred.Password, &provider, &cred.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("federated credential", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("get federated credential: %w", err)
	}
	cred.Provider = domain.Provider(provider)
	return &cred, nil
}
