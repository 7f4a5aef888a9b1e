package profiles

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository loads posting profiles.
type Repository interface {
	GetProfile(ctx context.Context, orgID int64) (Profile, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the profile repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// GetProfile returns the organization's configured role mapping. Roles with
// no row fall back to DefaultCodes at resolution time.
func (r *repository) GetProfile(ctx context.Context, orgID int64) (Profile, error) {
	rows, err := r.db.Query(ctx, `SELECT role, account_code FROM posting_profiles WHERE org_id = $1`, orgID)
	if err != nil {
		return Profile{}, err
	}
	defer rows.Close()
	profile := Profile{OrgID: orgID, Codes: make(map[Role]string)}
	for rows.Next() {
		var role, code string
		if err := rows.Scan(&role, &code); err != nil {
			return Profile{}, err
		}
		profile.Codes[Role(role)] = code
	}
	return profile, rows.Err()
}
