package catalog

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platemill/platemill/pkg/authz"
	"github.com/platemill/platemill/pkg/contextkeys"
	"github.com/platemill/platemill/pkg/httputil"
	"github.com/platemill/platemill/pkg/middleware"
	"github.com/platemill/platemill/pkg/uploads"
)

// maxImageSize bounds product image uploads.
const maxImageSize = 5 << 20

// Handler serves catalog HTTP endpoints.
type Handler struct {
	store  Store
	images uploads.Storage
	logger *logrus.Logger
}

// NewHandler creates a catalog handler. images may be nil when upload
// routes are not exposed.
func NewHandler(store Store, images uploads.Storage, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{store: store, images: images, logger: logger}
}

// RegisterRoutes registers catalog routes behind the permission gate.
func (h *Handler) RegisterRoutes(r *mux.Router, gate *middleware.Gate) {
	// Products
	r.Handle("/organizations/{org_id}/products", gate.Require(middleware.GateConfig{
		Action: authz.ActionRead, Resource: authz.ResourceProduct, OrgVar: "org_id",
	})(http.HandlerFunc(h.ListProducts))).Methods("GET")

	r.Handle("/organizations/{org_id}/products", gate.Require(middleware.GateConfig{
		Action: authz.ActionCreate, Resource: authz.ResourceProduct, OrgVar: "org_id",
	})(http.HandlerFunc(h.CreateProduct))).Methods("POST")

	r.Handle("/organizations/{org_id}/products/{product_id}", gate.Require(middleware.GateConfig{
		Action: authz.ActionRead, Resource: authz.ResourceProduct, OrgVar: "org_id", ResourceIDVar: "product_id",
	})(http.HandlerFunc(h.GetProduct))).Methods("GET")

	r.Handle("/organizations/{org_id}/products/{product_id}", gate.Require(middleware.GateConfig{
		Action: authz.ActionUpdate, Resource: authz.ResourceProduct, OrgVar: "org_id", ResourceIDVar: "product_id",
	})(http.HandlerFunc(h.UpdateProduct))).Methods("PUT")

	// Deleting a product additionally requires that the caller created
	// it; owners bypass the condition through the role table.
	r.Handle("/organizations/{org_id}/products/{product_id}", gate.Require(middleware.GateConfig{
		Action: authz.ActionDelete, Resource: authz.ResourceProduct, OrgVar: "org_id", ResourceIDVar: "product_id",
		Condition: h.productOwnership,
	})(http.HandlerFunc(h.DeleteProduct))).Methods("DELETE")

	r.Handle("/organizations/{org_id}/products/{product_id}/archive", gate.Require(middleware.GateConfig{
		Action: authz.ActionArchive, Resource: authz.ResourceProduct, OrgVar: "org_id", ResourceIDVar: "product_id",
	})(http.HandlerFunc(h.ArchiveProduct))).Methods("POST")

	r.Handle("/organizations/{org_id}/products/{product_id}/restore", gate.Require(middleware.GateConfig{
		Action: authz.ActionRestore, Resource: authz.ResourceProduct, OrgVar: "org_id", ResourceIDVar: "product_id",
	})(http.HandlerFunc(h.RestoreProduct))).Methods("POST")

	if h.images != nil {
		r.Handle("/organizations/{org_id}/products/{product_id}/image", gate.Require(middleware.GateConfig{
			Action: authz.ActionUpdate, Resource: authz.ResourceProduct, OrgVar: "org_id", ResourceIDVar: "product_id",
		})(http.HandlerFunc(h.UploadProductImage))).Methods("POST")

		r.Handle("/organizations/{org_id}/products/{product_id}/image", gate.Require(middleware.GateConfig{
			Action: authz.ActionRead, Resource: authz.ResourceProduct, OrgVar: "org_id", ResourceIDVar: "product_id",
		})(http.HandlerFunc(h.GetProductImage))).Methods("GET")
	}

	// Combos
	r.Handle("/organizations/{org_id}/combos", gate.Require(middleware.GateConfig{
		Action: authz.ActionRead, Resource: authz.ResourceCombo, OrgVar: "org_id",
	})(http.HandlerFunc(h.ListCombos))).Methods("GET")

	r.Handle("/organizations/{org_id}/combos", gate.Require(middleware.GateConfig{
		Action: authz.ActionCreate, Resource: authz.ResourceCombo, OrgVar: "org_id",
	})(http.HandlerFunc(h.CreateCombo))).Methods("POST")

	r.Handle("/organizations/{org_id}/combos/{combo_id}", gate.Require(middleware.GateConfig{
		Action: authz.ActionRead, Resource: authz.ResourceCombo, OrgVar: "org_id", ResourceIDVar: "combo_id",
	})(http.HandlerFunc(h.GetCombo))).Methods("GET")

	r.Handle("/organizations/{org_id}/combos/{combo_id}", gate.Require(middleware.GateConfig{
		Action: authz.ActionUpdate, Resource: authz.ResourceCombo, OrgVar: "org_id", ResourceIDVar: "combo_id",
	})(http.HandlerFunc(h.UpdateCombo))).Methods("PUT")

	r.Handle("/organizations/{org_id}/combos/{combo_id}", gate.Require(middleware.GateConfig{
		Action: authz.ActionDelete, Resource: authz.ResourceCombo, OrgVar: "org_id", ResourceIDVar: "combo_id",
	})(http.HandlerFunc(h.DeleteCombo))).Methods("DELETE")

	r.Handle("/organizations/{org_id}/combos/{combo_id}/archive", gate.Require(middleware.GateConfig{
		Action: authz.ActionArchive, Resource: authz.ResourceCombo, OrgVar: "org_id", ResourceIDVar: "combo_id",
	})(http.HandlerFunc(h.ArchiveCombo))).Methods("POST")

	// Categories
	r.Handle("/organizations/{org_id}/categories", gate.Require(middleware.GateConfig{
		Action: authz.ActionRead, Resource: authz.ResourceCategory, OrgVar: "org_id",
	})(http.HandlerFunc(h.ListCategories))).Methods("GET")

	r.Handle("/organizations/{org_id}/categories", gate.Require(middleware.GateConfig{
		Action: authz.ActionCreate, Resource: authz.ResourceCategory, OrgVar: "org_id",
	})(http.HandlerFunc(h.CreateCategory))).Methods("POST")

	r.Handle("/organizations/{org_id}/categories/{category_id}", gate.Require(middleware.GateConfig{
		Action: authz.ActionUpdate, Resource: authz.ResourceCategory, OrgVar: "org_id", ResourceIDVar: "category_id",
	})(http.HandlerFunc(h.UpdateCategory))).Methods("PUT")

	r.Handle("/organizations/{org_id}/categories/{category_id}", gate.Require(middleware.GateConfig{
		Action: authz.ActionDelete, Resource: authz.ResourceCategory, OrgVar: "org_id", ResourceIDVar: "category_id",
	})(http.HandlerFunc(h.DeleteCategory))).Methods("DELETE")
}

// productOwnership loads the target product and requires that the caller
// created it. A missing product yields no condition; the handler reports
// 404 after the table check passes.
func (h *Handler) productOwnership(r *http.Request) (*authz.Condition, error) {
	vars := mux.Vars(r)
	orgID, err := strconv.ParseInt(vars["org_id"], 10, 64)
	if err != nil {
		return nil, nil
	}
	productID, err := strconv.ParseInt(vars["product_id"], 10, 64)
	if err != nil {
		return nil, nil
	}

	product, err := h.store.GetProduct(r.Context(), orgID, productID)
	if errors.Is(err, ErrProductNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load product for ownership check: %w", err)
	}

	return &authz.Condition{
		RequireOwnership: true,
		ResourceOwnerID:  product.CreatedBy,
	}, nil
}

func (h *Handler) orgID(r *http.Request) (int64, bool) {
	return contextkeys.GetOrgID(r.Context())
}

// ListProducts lists products, optionally filtered by status and category.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(r)
	if !ok {
		httputil.WriteInternal(w)
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid limit")
		return
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid offset")
		return
	}

	filter := ListFilter{
		Status: ProductStatus(httputil.ParseQueryString(r, "status", "")),
		Limit:  limit,
		Offset: offset,
	}
	if raw := httputil.ParseQueryString(r, "category_id", ""); raw != "" {
		categoryID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid category_id")
			return
		}
		filter.CategoryID = &categoryID
	}

	products, err := h.store.ListProducts(r.Context(), orgID, filter)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if products == nil {
		products = []*Product{}
	}
	httputil.WriteData(w, products)
}

type productRequest struct {
	Name        string `json:"name"`
	SKU         string `json:"sku"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	CategoryID  *int64 `json:"category_id"`
}

// CreateProduct creates a product owned by the caller.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(r)
	if !ok {
		httputil.WriteInternal(w)
		return
	}
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req productRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	product := &Product{
		OrganizationID: orgID,
		CategoryID:     req.CategoryID,
		Name:           req.Name,
		SKU:            req.SKU,
		Description:    req.Description,
		PriceCents:     req.PriceCents,
		CreatedBy:      authCtx.User.ID,
	}
	created, err := h.store.CreateProduct(r.Context(), product)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	httputil.WriteCreated(w, created)
}

// GetProduct returns one product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(r)
	if !ok {
		httputil.WriteInternal(w)
		return
	}
	productID, ok := httputil.ParsePathInt64OrError(w, r, "product_id")
	if !ok {
		return
	}

	product, err := h.store.GetProduct(r.Context(), orgID, productID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	httputil.WriteData(w, product)
}

// UpdateProduct updates a product's mutable fields.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(r)
	if !ok {
		httputil.WriteInternal(w)
		return
	}
	productID, ok := httputil.ParsePathInt64OrError(w, r, "product_id")
	if !ok {
		return
	}

	var req productRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	product := &Product{
		ID:             productID,
		OrganizationID: orgID,
		CategoryID:     req.CategoryID,
		Name:           req.Name,
		SKU:            req.SKU,
		Description:    req.Description,
		PriceCents:     req.PriceCents,
	}
	updated, err := h.store.UpdateProduct(r.Context(), product)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	httputil.WriteData(w, updated)
}

// DeleteProduct permanently removes a product and its stored image.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(r)
	if !ok {
		httputil.WriteInternal(w)
		return
	}
	productID, ok := httputil.ParsePathInt64OrError(w, r, "product_id")
	if !ok {
		return
	}

	product, err := h.store.GetProduct(r.Context(), orgID, productID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	if err := h.store.DeleteProduct(r.Context(), orgID, productID); err != nil {
		h.writeStoreError(w, err)
		return
	}

	if h.images != nil && product.ImageKey != "" {
		if err := h.images.Delete(r.Context(), product.ImageKey); err != nil {
			h.logger.WithError(err).WithField("image_key", product.ImageKey).
				Warn("failed to delete product image")
		}
	}
	httputil.WriteNoContent(w)
}

// ArchiveProduct marks a product archived.
func (h *Handler) ArchiveProduct(w http.ResponseWriter, r *http.Request) {
	h.setProductStatus(w, r, StatusArchived)
}

// RestoreProduct returns an archived product to active.
func (h *Handler) RestoreProduct(w http.ResponseWriter, r *http.Request) {
	h.setProductStatus(w, r, StatusActive)
}

func (h *Handler) setProductStatus(w http.ResponseWriter, r *http.Request, status ProductStatus) {
	orgID, ok := h.orgID(r)
	if !ok {
		httputil.WriteInternal(w)
		return
	}
	productID, ok := httputil.ParsePathInt64OrError(w, r, "product_id")
	if !ok {
		return
	}

	if err := h.store.SetProductStatus(r.Context(), orgID, productID, status); err != nil {
		h.writeStoreError(w, err)
		return
	}
	httputil.WriteData(w, map[string]interface{}{"id": productID, "status": status})
}

// UploadProductImage accepts a multipart image upload and records the
// storage key on the product.
func (h *Handler) UploadProductImage(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(r)
	if !ok {
		httputil.WriteInternal(w)
		return
	}
	productID, ok := httputil.ParsePathInt64OrError(w, r, "product_id")
	if !ok {
		return
	}

	if _, err := h.store.GetProduct(r.Context(), orgID, productID); err != nil {
		h.writeStoreError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageSize)
	if err := r.ParseMultipartForm(maxImageSize); err != nil {
		httputil.WriteBadRequest(w, "invalid multipart upload")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		httputil.WriteBadRequest(w, "image file is required")
		return
	}
	defer file.Close()

	key, err := uploads.NewImageKey(orgID, productID, header.Filename)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := h.images.Put(r.Context(), key, file, contentType); err != nil {
		h.logger.WithError(err).Error("failed to store product image")
		httputil.WriteInternal(w)
		return
	}

	if err := h.store.SetProductImage(r.Context(), orgID, productID, key); err != nil {
		h.writeStoreError(w, err)
		return
	}
	httputil.WriteData(w, map[string]interface{}{"id": productID, "image_key": key})
}

// GetProductImage streams the stored product image.
func (h *Handler) GetProductImage(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(r)
	if !ok {
		httputil.WriteInternal(w)
		return
	}
	productID, ok := httputil.ParsePathInt64OrError(w, r, "product_id")
	if !ok {
		return
	}

	product, err := h.store.GetProduct(r.Context(), orgID, productID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if product.ImageKey == "" {
		httputil.WriteNotFound(w, "product has no image")
		return
	}

	rc, contentType, err := h.images.Get(r.Context(), product.ImageKey)
	if errors.Is(err, uploads.ErrNotFound) {
		httputil.WriteNotFound(w, "product image not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("failed to fetch product image")
		httputil.WriteInternal(w)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WithError(err).Warn("failed to stream product image")
	}
}

type comboRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	PriceCents  int64   `json:"price_cents"`
	ProductIDs  []int64 `json:"product_ids"`
}

// ListCombos lists combos.
func (h *Handler) ListCombos(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(r)
	if !ok {
		httputil.WriteInternal(w)
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid limit")
		return
	}

	filter := ListFilter{
		Status: ProductStatus(httputil.ParseQueryString(r, "status", "")),
		Limit:  limit,
	}
	combos, err := h.store.ListCombos(r.Context(), orgID, filter)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if combos == nil {
		combos = []*Combo{}
	}
	httputil.WriteData(w, combos)
}

// CreateCombo creates a combo owned by the caller.
func (h *Handler) CreateCombo(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(r)
	if !ok {
		httputil.WriteInternal(w)
		return
	}
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req comboRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	combo := &Combo{
		OrganizationID: orgID,
		Name:           req.Name,
		Description:    req.Description,
		PriceCents:     req.PriceCents,
		ProductIDs:     req.ProductIDs,
		CreatedBy:      authCtx.User.ID,
	}
	created, err := h.store.CreateCombo(r.Context(), combo)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	httputil.WriteCreated(w, created)
}

// GetCombo returns one combo.
func (h *Handler) GetCombo(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(r)
	if !ok {
		httputil.WriteInternal(w)
		return
	}
	comboID, ok := httputil.ParsePathInt64OrError(w, r, "combo_id")
	if !ok {
		return
	}

	combo, err := h.store.GetCombo(r.Context(), orgID, comboID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	httputil.WriteData(w, combo)
}

// UpdateCombo updates a combo's mutable fields.
func (h *Handler) UpdateCombo(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(r)
	if !ok {
		httputil.WriteInternal(w)
		return
	}
	comboID, ok := httputil.ParsePathInt64OrError(w, r, "combo_id")
	if !ok {
		return
	}

	var req comboRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	combo := &Combo{
		ID:             comboID,
		OrganizationID: orgID,
		Name:           req.Name,
		Description:    req.Description,
		PriceCents:     req.PriceCents,
		ProductIDs:     req.ProductIDs,
	}
	updated, err := h.store.UpdateCombo(r.Context(), combo)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	httputil.WriteData(w, updated)
}

// DeleteCombo permanently removes a combo.
func (h *Handler) DeleteCombo(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(r)
	if !ok {
		httputil.WriteInternal(w)
		return
	}
	comboID, ok := httputil.ParsePathInt64OrError(w, r, "combo_id")
	if !ok {
		return
	}

	if err := h.store.DeleteCombo(r.Context(), orgID, comboID); err != nil {
		h.writeStoreError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// ArchiveCombo marks a combo archived.
func (h *Handler) ArchiveCombo(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(r)
	if !ok {
		httputil.WriteInternal(w)
		return
	}
	comboID, ok := httputil.ParsePathInt64OrError(w, r, "combo_id")
	if !ok {
		return
	}

	if err := h.store.SetComboStatus(r.Context(), orgID, comboID, StatusArchived); err != nil {
		h.writeStoreError(w, err)
		return
	}
	httputil.WriteData(w, map[string]interface{}{"id": comboID, "status": StatusArchived})
}

type categoryRequest struct {
	Name     string `json:"name"`
	Position int    `json:"position"`
}

// ListCategories lists categories in display order.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(r)
	if !ok {
		httputil.WriteInternal(w)
		return
	}

	categories, err := h.store.ListCategories(r.Context(), orgID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if categories == nil {
		categories = []*Category{}
	}
	httputil.WriteData(w, categories)
}

// CreateCategory creates a category.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(r)
	if !ok {
		httputil.WriteInternal(w)
		return
	}

	var req categoryRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	category := &Category{
		OrganizationID: orgID,
		Name:           req.Name,
		Position:       req.Position,
	}
	created, err := h.store.CreateCategory(r.Context(), category)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	httputil.WriteCreated(w, created)
}

// UpdateCategory renames or repositions a category.
func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(r)
	if !ok {
		httputil.WriteInternal(w)
		return
	}
	categoryID, ok := httputil.ParsePathInt64OrError(w, r, "category_id")
	if !ok {
		return
	}

	var req categoryRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	category := &Category{
		ID:             categoryID,
		OrganizationID: orgID,
		Name:           req.Name,
		Position:       req.Position,
	}
	updated, err := h.store.UpdateCategory(r.Context(), category)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	httputil.WriteData(w, updated)
}

// DeleteCategory removes a category.
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(r)
	if !ok {
		httputil.WriteInternal(w)
		return
	}
	categoryID, ok := httputil.ParsePathInt64OrError(w, r, "category_id")
	if !ok {
		return
	}

	if err := h.store.DeleteCategory(r.Context(), orgID, categoryID); err != nil {
		h.writeStoreError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrComboNotFound),
		errors.Is(err, ErrCategoryNotFound):
		httputil.WriteNotFound(w, err.Error())
	case errors.Is(err, ErrSKUExists):
		httputil.WriteConflict(w, "a product with this sku already exists")
	case errors.Is(err, authz.ErrInvalidInput):
		httputil.WriteBadRequest(w, err.Error())
	default:
		h.logger.WithError(err).Error("catalog store operation failed")
		httputil.WriteInternal(w)
	}
}
