package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/horike37/serverless-application/pkg/database"
)

const getAliasSQL = `SELECT alias_user_id FROM user_aliases WHERE user_id = $1`

// AliasRepository implements repository.AliasRepository. Aliases are a
// single hop: the returned id is never looked up again.
type AliasRepository struct {
	db database.DBTX
}

// NewAliasRepository creates a PostgreSQL-backed alias lookup.
func NewAliasRepository(db database.DBTX) *AliasRepository {
	return &AliasRepository{db: db}
}

// GetAlias returns the alias target for userID. A missing row is not an
// error.
func (r *AliasRepository) GetAlias(ctx context.Context, userID string) (alias string, ok bool, err error) {
	ctx, end := database.TraceQuery(ctx, "GetAlias", getAliasSQL)
	defer func() { end(err) }()

	err = r.db.QueryRow(ctx, getAliasSQL, userID).Scan(&alias)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get user alias: %w", err)
	}
	if alias == "" {
		return "", false, nil
	}
	return alias, true, nil
}
