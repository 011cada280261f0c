package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/koinonia/community/internal/database"
	"github.com/koinonia/community/internal/model"
)

// CommunityRepo provides read access to communities. Communities and
// their verification policies are created by an administrative approval
// workflow outside this service, so no write methods are exposed.
type CommunityRepo struct {
	db *sql.DB
}

// NewCommunityRepo returns a new CommunityRepo bound to the given database.
func NewCommunityRepo(db *sql.DB) *CommunityRepo { return &CommunityRepo{db: db} }

// GetByID returns a single community. It returns ErrCommunityNotFound
// when no community with the given ID exists.
func (r *CommunityRepo) GetByID(ctx context.Context, id uint64) (model.Community, error) {
	const q = `SELECT id, name, requires_verification, min_verifications_required, created_at
	           FROM communities WHERE id = ?`
	var c model.Community
	err := database.Extract(ctx, r.db).QueryRowContext(ctx, q, id).Scan(
		&c.ID, &c.Name, &c.RequiresVerification, &c.MinVerificationsRequired, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Community{}, ErrCommunityNotFound
		}
		return model.Community{}, err
	}
	return c, nil
}

// List returns all communities ordered by name. Used by browse
// endpoints; an empty slice is returned when none exist.
func (r *CommunityRepo) List(ctx context.Context) ([]model.Community, error) {
	const q = `SELECT id, name, requires_verification, min_verifications_required, created_at
	           FROM communities ORDER BY name`
	rows, err := database.Extract(ctx, r.db).QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	communities := make([]model.Community, 0)
	for rows.Next() {
		var c model.Community
		if err := rows.Scan(&c.ID, &c.Name, &c.RequiresVerification, &c.MinVerificationsRequired, &c.CreatedAt); err != nil {
			return nil, err
		}
		communities = append(communities, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return communities, nil
}
