package db

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/omnibridge/backend/internal/models"
)

const userColumns = `id, tracker_account_id, email, name, organization_id, is_active, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.TrackerAccount, &u.Email, &u.Name, &u.OrganizationID, &u.IsActive, &u.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// UserByEmail prefers an active identity when several accounts share an email.
func (t *pgTx) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE email = $1
		ORDER BY is_active DESC, updated_at DESC
		LIMIT 1
	`, strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row)
}

func (t *pgTx) UserByID(ctx context.Context, id string) (*models.User, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (t *pgTx) UpsertOrganization(ctx context.Context, trackerID, name string) (string, error) {
	var id string
	err := t.tx.QueryRow(ctx, `
		INSERT INTO organizations (id, tracker_id, name, is_active, updated_at)
		VALUES ($1, $2, $3, TRUE, NOW())
		ON CONFLICT (tracker_id) DO UPDATE SET
			name = EXCLUDED.name,
			is_active = TRUE,
			updated_at = NOW()
		RETURNING id
	`, uuid.NewString(), trackerID, name).Scan(&id)
	return id, err
}

func (t *pgTx) DeactivateOrganizationsExcept(ctx context.Context, trackerIDs []string) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE organizations SET is_active = FALSE, updated_at = NOW()
		WHERE is_active AND NOT (tracker_id = ANY($1))
	`, trackerIDs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) UpsertUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return t.tx.QueryRow(ctx, `
		INSERT INTO users (id, tracker_account_id, email, name, organization_id, is_active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (tracker_account_id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			organization_id = EXCLUDED.organization_id,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()
		RETURNING id
	`, u.ID, u.TrackerAccount, strings.ToLower(strings.TrimSpace(u.Email)), u.Name, u.OrganizationID, u.IsActive).Scan(&u.ID)
}

func (t *pgTx) DeactivateUsersExcept(ctx context.Context, accountIDs []string) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE users SET is_active = FALSE, updated_at = NOW()
		WHERE is_active AND NOT (tracker_account_id = ANY($1))
	`, accountIDs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) ListOrganizations(ctx context.Context, activeOnly bool) ([]models.Organization, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, tracker_id, name, is_active, updated_at
		FROM organizations
		WHERE ($1 = FALSE OR is_active)
		ORDER BY name ASC
	`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Organization
	for rows.Next() {
		var o models.Organization
		if err := rows.Scan(&o.ID, &o.TrackerID, &o.Name, &o.IsActive, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
