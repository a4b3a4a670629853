package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platemill/platemill/pkg/auth"
	"github.com/platemill/platemill/pkg/authz"
	"github.com/platemill/platemill/pkg/contextkeys"
	"github.com/platemill/platemill/pkg/middleware"
	"github.com/platemill/platemill/pkg/uploads"
)

type fakeStore struct {
	Store // panic on anything not overridden

	products map[int64]*Product
	created  *Product
	deleted  []int64
	imageKey string
	statuses map[int64]ProductStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		products: make(map[int64]*Product),
		statuses: make(map[int64]ProductStatus),
	}
}

func (f *fakeStore) CreateProduct(_ context.Context, product *Product) (*Product, error) {
	product.ID = int64(len(f.products) + 100)
	product.Status = StatusActive
	f.products[product.ID] = product
	f.created = product
	return product, nil
}

func (f *fakeStore) GetProduct(_ context.Context, orgID, productID int64) (*Product, error) {
	p, ok := f.products[productID]
	if !ok || p.OrganizationID != orgID {
		return nil, ErrProductNotFound
	}
	return p, nil
}

func (f *fakeStore) DeleteProduct(_ context.Context, orgID, productID int64) error {
	if _, ok := f.products[productID]; !ok {
		return ErrProductNotFound
	}
	delete(f.products, productID)
	f.deleted = append(f.deleted, productID)
	return nil
}

func (f *fakeStore) SetProductStatus(_ context.Context, orgID, productID int64, status ProductStatus) error {
	if _, ok := f.products[productID]; !ok {
		return ErrProductNotFound
	}
	f.statuses[productID] = status
	return nil
}

func (f *fakeStore) SetProductImage(_ context.Context, orgID, productID int64, imageKey string) error {
	if _, ok := f.products[productID]; !ok {
		return ErrProductNotFound
	}
	f.imageKey = imageKey
	return nil
}

// capturingEvaluator allows everything unless deny is set, remembering the
// last check it saw.
type capturingEvaluator struct {
	deny bool
	last *authz.Check
}

func (e *capturingEvaluator) Evaluate(_ context.Context, check authz.Check) (authz.Decision, error) {
	e.last = &check
	if e.deny {
		return authz.Deny(authz.ReasonInsufficientRole), nil
	}
	if check.Condition != nil && check.Condition.RequireOwnership &&
		check.Condition.ResourceOwnerID != check.UserID {
		return authz.Deny(authz.ReasonNotResourceOwner), nil
	}
	return authz.Allow(), nil
}

func (e *capturingEvaluator) OperatorGated(authz.Action) bool { return false }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(&strings.Builder{})
	return logger
}

func newTestRouter(t *testing.T, store Store, images uploads.Storage, eval middleware.Evaluator) *mux.Router {
	t.Helper()
	router := mux.NewRouter()
	gate := middleware.NewGate(eval, quietLogger())
	NewHandler(store, images, quietLogger()).RegisterRoutes(router, gate)
	return router
}

func asUser(r *http.Request, userID int64) *http.Request {
	ctx := contextkeys.WithAuth(r.Context(), &auth.AuthContext{User: &auth.User{ID: userID, IsActive: true}})
	return r.WithContext(ctx)
}

func TestCreateProductSetsCreator(t *testing.T) {
	store := newFakeStore()
	router := newTestRouter(t, store, nil, &capturingEvaluator{})

	body := `{"name":"Espresso","sku":"SKU-1","price_cents":350}`
	r := asUser(httptest.NewRequest("POST", "/organizations/1/products", strings.NewReader(body)), 7)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, store.created)
	assert.Equal(t, int64(7), store.created.CreatedBy)
	assert.Equal(t, int64(1), store.created.OrganizationID)
}

func TestGatedRouteDenies(t *testing.T) {
	store := newFakeStore()
	router := newTestRouter(t, store, nil, &capturingEvaluator{deny: true})

	r := asUser(httptest.NewRequest("GET", "/organizations/1/products", nil), 7)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"FORBIDDEN"`)
}

func TestUnauthenticatedRejected(t *testing.T) {
	router := newTestRouter(t, newFakeStore(), nil, &capturingEvaluator{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/organizations/1/products", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDeleteProductOwnershipCondition(t *testing.T) {
	store := newFakeStore()
	store.products[10] = &Product{ID: 10, OrganizationID: 1, Name: "Espresso", SKU: "SKU-1", CreatedBy: 7}
	eval := &capturingEvaluator{}
	router := newTestRouter(t, store, nil, eval)

	// Another manager who did not create the product is refused.
	r := asUser(httptest.NewRequest("DELETE", "/organizations/1/products/10", nil), 8)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusForbidden, w.Code)
	require.NotNil(t, eval.last)
	require.NotNil(t, eval.last.Condition)
	assert.True(t, eval.last.Condition.RequireOwnership)
	assert.Equal(t, int64(7), eval.last.Condition.ResourceOwnerID)
	assert.Empty(t, store.deleted)

	// The creator may delete it.
	r = asUser(httptest.NewRequest("DELETE", "/organizations/1/products/10", nil), 7)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []int64{10}, store.deleted)
}

func TestArchiveProduct(t *testing.T) {
	store := newFakeStore()
	store.products[10] = &Product{ID: 10, OrganizationID: 1, CreatedBy: 7}
	router := newTestRouter(t, store, nil, &capturingEvaluator{})

	r := asUser(httptest.NewRequest("POST", "/organizations/1/products/10/archive", nil), 7)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, StatusArchived, store.statuses[10])
}

func TestUploadAndServeProductImage(t *testing.T) {
	store := newFakeStore()
	store.products[10] = &Product{ID: 10, OrganizationID: 1, CreatedBy: 7}
	images, err := uploads.NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	router := newTestRouter(t, store, images, &capturingEvaluator{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "photo.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("pixels"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	r := asUser(httptest.NewRequest("POST", "/organizations/1/products/10/image", &buf), 7)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data struct {
			ImageKey string `json:"image_key"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.True(t, strings.HasPrefix(envelope.Data.ImageKey, "orgs/1/products/10/"))
	assert.Equal(t, envelope.Data.ImageKey, store.imageKey)

	// Serve it back.
	store.products[10].ImageKey = store.imageKey
	r = asUser(httptest.NewRequest("GET", "/organizations/1/products/10/image", nil), 7)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "pixels", w.Body.String())
}

func TestUploadRejectsBadExtension(t *testing.T) {
	store := newFakeStore()
	store.products[10] = &Product{ID: 10, OrganizationID: 1, CreatedBy: 7}
	images, err := uploads.NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	router := newTestRouter(t, store, images, &capturingEvaluator{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "script.sh")
	require.NoError(t, err)
	_, err = part.Write([]byte("#!/bin/sh"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	r := asUser(httptest.NewRequest("POST", "/organizations/1/products/10/image", &buf), 7)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetProductNotFoundResponse(t *testing.T) {
	router := newTestRouter(t, newFakeStore(), nil, &capturingEvaluator{})

	r := asUser(httptest.NewRequest("GET", "/organizations/1/products/99", nil), 7)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"NOT_FOUND"`)
}
