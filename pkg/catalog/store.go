package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/platemill/platemill/pkg/authz"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const productColumns = `id, organization_id, category_id, name, sku, description, price_cents, status, image_key, created_by, created_at, updated_at`

func validateProduct(p *Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: product name is required", authz.ErrInvalidInput)
	}
	if strings.TrimSpace(p.SKU) == "" {
		return fmt.Errorf("%w: product sku is required", authz.ErrInvalidInput)
	}
	if p.PriceCents < 0 {
		return fmt.Errorf("%w: price must not be negative", authz.ErrInvalidInput)
	}
	return nil
}

// CreateProduct inserts a product. The (organization_id, sku) pair is
// unique; a duplicate returns ErrSKUExists.
func (s *PostgresStore) CreateProduct(ctx context.Context, product *Product) (*Product, error) {
	if err := validateProduct(product); err != nil {
		return nil, err
	}
	if product.Status == "" {
		product.Status = StatusActive
	}

	query := `
		INSERT INTO products (organization_id, category_id, name, sku, description, price_cents, status, image_key, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		product.OrganizationID, product.CategoryID, product.Name, product.SKU,
		product.Description, product.PriceCents, product.Status, product.ImageKey,
		product.CreatedBy).
		Scan(&product.ID, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSKUExists
		}
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return product, nil
}

func scanProduct(scanner interface{ Scan(...interface{}) error }) (*Product, error) {
	p := &Product{}
	var categoryID sql.NullInt64
	var description, imageKey sql.NullString
	err := scanner.Scan(
		&p.ID, &p.OrganizationID, &categoryID, &p.Name, &p.SKU, &description,
		&p.PriceCents, &p.Status, &imageKey, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}
	if categoryID.Valid {
		p.CategoryID = &categoryID.Int64
	}
	p.Description = description.String
	p.ImageKey = imageKey.String
	return p, nil
}

// GetProduct retrieves a product scoped to an organization.
func (s *PostgresStore) GetProduct(ctx context.Context, orgID, productID int64) (*Product, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE organization_id = $1 AND id = $2`,
		orgID, productID)
	return scanProduct(row)
}

// ListProducts lists products for an organization, newest first.
func (s *PostgresStore) ListProducts(ctx context.Context, orgID int64, filter ListFilter) ([]*Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE organization_id = $1`
	args := []interface{}{orgID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.CategoryID != nil {
		args = append(args, *filter.CategoryID)
		query += fmt.Sprintf(" AND category_id = $%d", len(args))
	}

	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []*Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// UpdateProduct updates mutable product fields.
func (s *PostgresStore) UpdateProduct(ctx context.Context, product *Product) (*Product, error) {
	if err := validateProduct(product); err != nil {
		return nil, err
	}

	query := `
		UPDATE products
		SET category_id = $3, name = $4, sku = $5, description = $6, price_cents = $7, updated_at = NOW()
		WHERE organization_id = $1 AND id = $2
		RETURNING ` + productColumns
	row := s.db.QueryRowContext(ctx, query,
		product.OrganizationID, product.ID, product.CategoryID, product.Name,
		product.SKU, product.Description, product.PriceCents)

	updated, err := scanProduct(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSKUExists
		}
		return nil, err
	}
	return updated, nil
}

// SetProductStatus archives or restores a product.
func (s *PostgresStore) SetProductStatus(ctx context.Context, orgID, productID int64, status ProductStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: invalid product status %q", authz.ErrInvalidInput, status)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE products SET status = $3, updated_at = NOW() WHERE organization_id = $1 AND id = $2`,
		orgID, productID, status)
	if err != nil {
		return fmt.Errorf("failed to set product status: %w", err)
	}
	return requireRow(result, ErrProductNotFound)
}

// SetProductImage records the storage key of an uploaded product image.
func (s *PostgresStore) SetProductImage(ctx context.Context, orgID, productID int64, imageKey string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE products SET image_key = $3, updated_at = NOW() WHERE organization_id = $1 AND id = $2`,
		orgID, productID, imageKey)
	if err != nil {
		return fmt.Errorf("failed to set product image: %w", err)
	}
	return requireRow(result, ErrProductNotFound)
}

// DeleteProduct permanently removes a product.
func (s *PostgresStore) DeleteProduct(ctx context.Context, orgID, productID int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM products WHERE organization_id = $1 AND id = $2`,
		orgID, productID)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return requireRow(result, ErrProductNotFound)
}

const comboColumns = `id, organization_id, name, description, price_cents, product_ids, status, created_by, created_at, updated_at`

func validateCombo(c *Combo) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: combo name is required", authz.ErrInvalidInput)
	}
	if c.PriceCents < 0 {
		return fmt.Errorf("%w: price must not be negative", authz.ErrInvalidInput)
	}
	if len(c.ProductIDs) == 0 {
		return fmt.Errorf("%w: combo needs at least one product", authz.ErrInvalidInput)
	}
	return nil
}

// CreateCombo inserts a combo. Product ids are stored as a bigint array.
func (s *PostgresStore) CreateCombo(ctx context.Context, combo *Combo) (*Combo, error) {
	if err := validateCombo(combo); err != nil {
		return nil, err
	}
	if combo.Status == "" {
		combo.Status = StatusActive
	}

	query := `
		INSERT INTO combos (organization_id, name, description, price_cents, product_ids, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		combo.OrganizationID, combo.Name, combo.Description, combo.PriceCents,
		pq.Array(combo.ProductIDs), combo.Status, combo.CreatedBy).
		Scan(&combo.ID, &combo.CreatedAt, &combo.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create combo: %w", err)
	}
	return combo, nil
}

func scanCombo(scanner interface{ Scan(...interface{}) error }) (*Combo, error) {
	c := &Combo{}
	var description sql.NullString
	var productIDs pq.Int64Array
	err := scanner.Scan(
		&c.ID, &c.OrganizationID, &c.Name, &description, &c.PriceCents,
		&productIDs, &c.Status, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrComboNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan combo: %w", err)
	}
	c.Description = description.String
	c.ProductIDs = productIDs
	return c, nil
}

// GetCombo retrieves a combo scoped to an organization.
func (s *PostgresStore) GetCombo(ctx context.Context, orgID, comboID int64) (*Combo, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+comboColumns+` FROM combos WHERE organization_id = $1 AND id = $2`,
		orgID, comboID)
	return scanCombo(row)
}

// ListCombos lists combos for an organization, newest first.
func (s *PostgresStore) ListCombos(ctx context.Context, orgID int64, filter ListFilter) ([]*Combo, error) {
	query := `SELECT ` + comboColumns + ` FROM combos WHERE organization_id = $1`
	args := []interface{}{orgID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list combos: %w", err)
	}
	defer rows.Close()

	var combos []*Combo
	for rows.Next() {
		c, err := scanCombo(rows)
		if err != nil {
			return nil, err
		}
		combos = append(combos, c)
	}
	return combos, rows.Err()
}

// UpdateCombo updates mutable combo fields.
func (s *PostgresStore) UpdateCombo(ctx context.Context, combo *Combo) (*Combo, error) {
	if err := validateCombo(combo); err != nil {
		return nil, err
	}

	query := `
		UPDATE combos
		SET name = $3, description = $4, price_cents = $5, product_ids = $6, updated_at = NOW()
		WHERE organization_id = $1 AND id = $2
		RETURNING ` + comboColumns
	row := s.db.QueryRowContext(ctx, query,
		combo.OrganizationID, combo.ID, combo.Name, combo.Description,
		combo.PriceCents, pq.Array(combo.ProductIDs))
	return scanCombo(row)
}

// SetComboStatus archives or restores a combo.
func (s *PostgresStore) SetComboStatus(ctx context.Context, orgID, comboID int64, status ProductStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: invalid combo status %q", authz.ErrInvalidInput, status)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE combos SET status = $3, updated_at = NOW() WHERE organization_id = $1 AND id = $2`,
		orgID, comboID, status)
	if err != nil {
		return fmt.Errorf("failed to set combo status: %w", err)
	}
	return requireRow(result, ErrComboNotFound)
}

// DeleteCombo permanently removes a combo.
func (s *PostgresStore) DeleteCombo(ctx context.Context, orgID, comboID int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM combos WHERE organization_id = $1 AND id = $2`,
		orgID, comboID)
	if err != nil {
		return fmt.Errorf("failed to delete combo: %w", err)
	}
	return requireRow(result, ErrComboNotFound)
}

// CreateCategory inserts a category.
func (s *PostgresStore) CreateCategory(ctx context.Context, category *Category) (*Category, error) {
	if strings.TrimSpace(category.Name) == "" {
		return nil, fmt.Errorf("%w: category name is required", authz.ErrInvalidInput)
	}

	query := `
		INSERT INTO categories (organization_id, name, position)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err := s.db.QueryRowContext(ctx, query,
		category.OrganizationID, category.Name, category.Position).
		Scan(&category.ID, &category.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	return category, nil
}

// ListCategories lists categories in display order.
func (s *PostgresStore) ListCategories(ctx context.Context, orgID int64) ([]*Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, organization_id, name, position, created_at
		 FROM categories WHERE organization_id = $1 ORDER BY position, name`,
		orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []*Category
	for rows.Next() {
		c := &Category{}
		if err := rows.Scan(&c.ID, &c.OrganizationID, &c.Name, &c.Position, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// UpdateCategory renames or repositions a category.
func (s *PostgresStore) UpdateCategory(ctx context.Context, category *Category) (*Category, error) {
	if strings.TrimSpace(category.Name) == "" {
		return nil, fmt.Errorf("%w: category name is required", authz.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE categories SET name = $3, position = $4 WHERE organization_id = $1 AND id = $2`,
		category.OrganizationID, category.ID, category.Name, category.Position)
	if err != nil {
		return nil, fmt.Errorf("failed to update category: %w", err)
	}
	if err := requireRow(result, ErrCategoryNotFound); err != nil {
		return nil, err
	}
	return category, nil
}

// DeleteCategory removes a category. Products keep their rows; the
// category_id column is set null by the foreign key.
func (s *PostgresStore) DeleteCategory(ctx context.Context, orgID, categoryID int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM categories WHERE organization_id = $1 AND id = $2`,
		orgID, categoryID)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	return requireRow(result, ErrCategoryNotFound)
}

func requireRow(result sql.Result, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
