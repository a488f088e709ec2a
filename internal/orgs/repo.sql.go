package orgs

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ten-platform/ten/internal/shared"
)

// ErrDuplicateSlug indicates the organization slug is already taken.
var ErrDuplicateSlug = errors.New("orgs: slug already taken")

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListOrganizations returns all organizations ordered by name.
func (r *Repository) ListOrganizations(ctx context.Context) ([]Organization, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, public_id, name, slug, is_active, created_at, updated_at FROM organizations ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orgs []Organization
	for rows.Next() {
		var org Organization
		if err := rows.Scan(&org.ID, &org.PublicID, &org.Name, &org.Slug, &org.IsActive, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

// GetOrganization fetches an organization by ID.
func (r *Repository) GetOrganization(ctx context.Context, id int64) (Organization, error) {
	var org Organization
	err := r.pool.QueryRow(ctx,
		`SELECT id, public_id, name, slug, is_active, created_at, updated_at FROM organizations WHERE id = $1`, id).
		Scan(&org.ID, &org.PublicID, &org.Name, &org.Slug, &org.IsActive, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Organization{}, shared.ErrNotFound
		}
		return Organization{}, err
	}
	return org, nil
}

// InsertOrganization creates an organization.
func (r *Repository) InsertOrganization(ctx context.Context, publicID, name, slug string) (Organization, error) {
	var org Organization
	err := r.pool.QueryRow(ctx,
		`INSERT INTO organizations (public_id, name, slug, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, TRUE, NOW(), NOW())
		 RETURNING id, public_id, name, slug, is_active, created_at, updated_at`,
		publicID, name, slug).
		Scan(&org.ID, &org.PublicID, &org.Name, &org.Slug, &org.IsActive, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Organization{}, ErrDuplicateSlug
		}
		return Organization{}, err
	}
	return org, nil
}

// UpdateOrganization updates name and active flag.
func (r *Repository) UpdateOrganization(ctx context.Context, id int64, name string, isActive bool) (Organization, error) {
	var org Organization
	err := r.pool.QueryRow(ctx,
		`UPDATE organizations SET name = $2, is_active = $3, updated_at = NOW() WHERE id = $1
		 RETURNING id, public_id, name, slug, is_active, created_at, updated_at`,
		id, name, isActive).
		Scan(&org.ID, &org.PublicID, &org.Name, &org.Slug, &org.IsActive, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Organization{}, shared.ErrNotFound
		}
		return Organization{}, err
	}
	return org, nil
}

// AddMember links a user to the organization. Idempotent.
func (r *Repository) AddMember(ctx context.Context, orgID, userID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO org_members (org_id, user_id, created_at) VALUES ($1, $2, NOW()) ON CONFLICT DO NOTHING`,
		orgID, userID)
	return err
}

// RemoveMember unlinks a user from the organization. Idempotent.
func (r *Repository) RemoveMember(ctx context.Context, orgID, userID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM org_members WHERE org_id = $1 AND user_id = $2`, orgID, userID)
	return err
}

// MemberIDs lists user IDs belonging to the organization.
func (r *Repository) MemberIDs(ctx context.Context, orgID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM org_members WHERE org_id = $1 ORDER BY user_id`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
