package catalog

import (
	"context"
	"errors"
	"time"
)

// ProductStatus is the lifecycle state of a product or combo.
type ProductStatus string

const (
	StatusActive   ProductStatus = "active"
	StatusArchived ProductStatus = "archived"
)

// Valid reports whether the status is a known lifecycle state.
func (s ProductStatus) Valid() bool {
	return s == StatusActive || s == StatusArchived
}

// Product is a single sellable item scoped to an organization.
type Product struct {
	ID             int64         `json:"id"`
	OrganizationID int64         `json:"organization_id"`
	CategoryID     *int64        `json:"category_id,omitempty"`
	Name           string        `json:"name"`
	SKU            string        `json:"sku"`
	Description    string        `json:"description,omitempty"`
	PriceCents     int64         `json:"price_cents"`
	Status         ProductStatus `json:"status"`
	ImageKey       string        `json:"image_key,omitempty"`
	CreatedBy      int64         `json:"created_by"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Combo bundles several products under one price.
type Combo struct {
	ID             int64         `json:"id"`
	OrganizationID int64         `json:"organization_id"`
	Name           string        `json:"name"`
	Description    string        `json:"description,omitempty"`
	PriceCents     int64         `json:"price_cents"`
	ProductIDs     []int64       `json:"product_ids"`
	Status         ProductStatus `json:"status"`
	CreatedBy      int64         `json:"created_by"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Category groups products for display ordering.
type Category struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Name           string    `json:"name"`
	Position       int       `json:"position"`
	CreatedAt      time.Time `json:"created_at"`
}

// ListFilter narrows product listings.
type ListFilter struct {
	Status     ProductStatus
	CategoryID *int64
	Limit      int
	Offset     int
}

// Sentinel errors for catalog operations.
var (
	ErrProductNotFound  = errors.New("catalog: product not found")
	ErrComboNotFound    = errors.New("catalog: combo not found")
	ErrCategoryNotFound = errors.New("catalog: category not found")
	ErrSKUExists        = errors.New("catalog: sku already exists")
)

// Store is the catalog persistence interface.
type Store interface {
	CreateProduct(ctx context.Context, product *Product) (*Product, error)
	GetProduct(ctx context.Context, orgID, productID int64) (*Product, error)
	ListProducts(ctx context.Context, orgID int64, filter ListFilter) ([]*Product, error)
	UpdateProduct(ctx context.Context, product *Product) (*Product, error)
	SetProductStatus(ctx context.Context, orgID, productID int64, status ProductStatus) error
	SetProductImage(ctx context.Context, orgID, productID int64, imageKey string) error
	DeleteProduct(ctx context.Context, orgID, productID int64) error

	CreateCombo(ctx context.Context, combo *Combo) (*Combo, error)
	GetCombo(ctx context.Context, orgID, comboID int64) (*Combo, error)
	ListCombos(ctx context.Context, orgID int64, filter ListFilter) ([]*Combo, error)
	UpdateCombo(ctx context.Context, combo *Combo) (*Combo, error)
	SetComboStatus(ctx context.Context, orgID, comboID int64, status ProductStatus) error
	DeleteCombo(ctx context.Context, orgID, comboID int64) error

	CreateCategory(ctx context.Context, category *Category) (*Category, error)
	ListCategories(ctx context.Context, orgID int64) ([]*Category, error)
	UpdateCategory(ctx context.Context, category *Category) (*Category, error)
	DeleteCategory(ctx context.Context, orgID, categoryID int64) error
}
