package orgs

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PostgresService implements the Service interface using PostgreSQL.
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService.
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

// CreateOrganization creates a new organization.
func (s *PostgresService) CreateOrganization(ctx context.Context, org *Organization) error {
	if org.Slug == "" {
		org.Slug = generateSlug(org.Name)
	}
	if org.Status == "" {
		org.Status = OrgStatusActive
	}

	query := `
		INSERT INTO organizations (name, slug, display_name, description, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		org.Name, org.Slug, org.DisplayName, org.Description, org.Status).
		Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

const orgColumns = `id, name, slug, display_name, description, status, created_at, updated_at`

func scanOrg(row *sql.Row) (*Organization, error) {
	org := &Organization{}
	var description sql.NullString
	err := row.Scan(
		&org.ID, &org.Name, &org.Slug, &org.DisplayName, &description,
		&org.Status, &org.CreatedAt, &org.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrOrgNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	org.Description = description.String
	return org, nil
}

// GetOrganization retrieves an organization by ID.
func (s *PostgresService) GetOrganization(ctx context.Context, id int64) (*Organization, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE id = $1 AND status != 'deleted'`, id)
	return scanOrg(row)
}

// GetOrganizationBySlug retrieves an organization by slug.
func (s *PostgresService) GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE slug = $1 AND status != 'deleted'`, slug)
	return scanOrg(row)
}

// ListOrganizations lists organizations the user is an active member of.
func (s *PostgresService) ListOrganizations(ctx context.Context, userID int64) ([]*Organization, error) {
	query := `
		SELECT o.id, o.name, o.slug, o.display_name, o.description, o.status, o.created_at, o.updated_at
		FROM organizations o
		JOIN memberships m ON m.organization_id = o.id
		WHERE m.user_id = $1 AND m.status = 'approved' AND o.status = 'active'
		ORDER BY o.name ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var result []*Organization
	for rows.Next() {
		org := &Organization{}
		var description sql.NullString
		if err := rows.Scan(
			&org.ID, &org.Name, &org.Slug, &org.DisplayName, &description,
			&org.Status, &org.CreatedAt, &org.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		org.Description = description.String
		result = append(result, org)
	}
	return result, rows.Err()
}

// UpdateOrganization updates display fields of an organization.
func (s *PostgresService) UpdateOrganization(ctx context.Context, org *Organization) error {
	query := `
		UPDATE organizations
		SET display_name = $1, description = $2, updated_at = NOW()
		WHERE id = $3 AND status != 'deleted'
	`
	result, err := s.db.ExecContext(ctx, query, org.DisplayName, org.Description, org.ID)
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrOrgNotFound
	}
	return nil
}

// DeleteOrganization soft-deletes an organization. Memberships are kept
// for audit history.
func (s *PostgresService) DeleteOrganization(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE organizations SET status = 'deleted', updated_at = NOW() WHERE id = $1 AND status != 'deleted'`, id)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrOrgNotFound
	}
	return nil
}

// generateSlug produces a URL-safe slug from a name.
func generateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ', r == '-', r == '_':
			return '-'
		default:
			return -1
		}
	}, slug)
	return strings.Trim(slug, "-")
}
