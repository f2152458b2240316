package admin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sisl-bd/eshop/internal/catalog"
	"github.com/sisl-bd/eshop/internal/documents"
	"github.com/sisl-bd/eshop/internal/quotations"
	"github.com/sisl-bd/eshop/internal/rbac"
	"github.com/sisl-bd/eshop/internal/shared"
	"github.com/sisl-bd/eshop/internal/view"
)

// ============================================================================
// FAKES
// ============================================================================

type fakeCatalog struct {
	CatalogService

	products    []catalog.Product
	created     []catalog.ProductInput
	cloneCalls  []catalog.CloneInput
	cloneErr    error
	categories  []catalog.Category
	categoryErr error
}

func (f *fakeCatalog) Categories(context.Context) ([]catalog.Category, error) {
	return f.categories, nil
}

func (f *fakeCatalog) CreateCategory(_ context.Context, in catalog.CategoryInput) (catalog.Category, error) {
	if f.categoryErr != nil {
		return catalog.Category{}, f.categoryErr
	}
	return catalog.Category{ID: 9, Name: in.Name}, nil
}

func (f *fakeCatalog) Brands(context.Context) ([]catalog.Brand, error) {
	return []catalog.Brand{{ID: 3, Name: "Mitsubishi"}}, nil
}

func (f *fakeCatalog) Products(context.Context, catalog.ProductFilter) ([]catalog.Product, int, error) {
	return f.products, len(f.products), nil
}

func (f *fakeCatalog) ProductWithLinks(_ context.Context, id int64) (catalog.Product, catalog.Links, error) {
	for _, p := range f.products {
		if p.ID == id {
			return p, catalog.Links{}, nil
		}
	}
	return catalog.Product{}, catalog.Links{}, catalog.ErrNotFound
}

func (f *fakeCatalog) CreateProduct(_ context.Context, in catalog.ProductInput) (catalog.Product, error) {
	f.created = append(f.created, in)
	return catalog.Product{ID: 20, Name: in.Name}, nil
}

func (f *fakeCatalog) Clone(_ context.Context, _ int64, sourceID int64, in catalog.CloneInput) (catalog.Product, error) {
	f.cloneCalls = append(f.cloneCalls, in)
	if f.cloneErr != nil {
		return catalog.Product{}, f.cloneErr
	}
	return catalog.Product{ID: sourceID + 100, Name: in.Name, SKU: in.SKU}, nil
}

type statusCall struct {
	actor, id int64
	status    quotations.Status
}

type fakeQuotations struct {
	QuotationService

	quotation  *quotations.Quotation
	statuses   []statusCall
	addedLines []quotations.LineInput
	deleted    []int64
}

func (f *fakeQuotations) Get(_ context.Context, id int64) (*quotations.Quotation, error) {
	if f.quotation == nil || f.quotation.ID != id {
		return nil, quotations.ErrNotFound
	}
	return f.quotation, nil
}

func (f *fakeQuotations) UpdateStatus(_ context.Context, actorID, id int64, status quotations.Status) (*quotations.Quotation, error) {
	f.statuses = append(f.statuses, statusCall{actor: actorID, id: id, status: status})
	q := *f.quotation
	q.Status = status
	return &q, nil
}

func (f *fakeQuotations) AddLine(_ context.Context, _ int64, in quotations.LineInput) (*quotations.Quotation, error) {
	f.addedLines = append(f.addedLines, in)
	return f.quotation, nil
}

func (f *fakeQuotations) DeleteLine(_ context.Context, _ int64, lineID int64) (*quotations.Quotation, error) {
	f.deleted = append(f.deleted, lineID)
	q := *f.quotation
	q.TotalAmount = decimal.RequireFromString("100")
	return &q, nil
}

type fakeDocuments struct {
	generated int
}

func (f *fakeDocuments) Generate(context.Context, *quotations.Quotation) (documents.Document, error) {
	f.generated++
	return documents.Document{Name: "quotation_41_20261015093000.pdf"}, nil
}

func (f *fakeDocuments) Locate(*quotations.Quotation) (documents.Document, bool) {
	return documents.Document{}, false
}

type permStore struct {
	perms map[int64][]string
}

func (s permStore) UserPermissions(_ context.Context, userID int64) ([]string, error) {
	return s.perms[userID], nil
}

func (permStore) EnsureRole(context.Context, string, string) (rbac.Role, error) {
	return rbac.Role{}, nil
}

func (permStore) EnsurePermission(context.Context, string, string) (rbac.Permission, error) {
	return rbac.Permission{}, nil
}

func (permStore) GrantPermission(context.Context, int64, int64) error { return nil }

func (permStore) AssignRole(context.Context, int64, int64) error { return nil }


// ============================================================================
// HARNESS
// ============================================================================

const (
	staffID    = int64(1)
	customerID = int64(5)
)

type harness struct {
	router     http.Handler
	catalog    *fakeCatalog
	quotations *fakeQuotations
	documents  *fakeDocuments
	session    *shared.Session
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	templates, err := view.NewEngine("/media/")
	require.NoError(t, err)

	h := &harness{
		catalog: &fakeCatalog{products: []catalog.Product{
			{ID: 7, Name: "FR-E820-0.75K", SKU: "FR-E820", OriginalPrice: decimal.RequireFromString("120")},
		}},
		quotations: &fakeQuotations{quotation: &quotations.Quotation{
			ID: 41, OrderNumber: "20261015093000", Status: quotations.StatusPending,
			TotalAmount: decimal.RequireFromString("270"),
		}},
		documents: &fakeDocuments{},
	}
	rbacSvc := rbac.NewService(permStore{perms: map[int64][]string{staffID: shared.StaffScopes()}})
	handler := NewHandler(nil, h.catalog, h.quotations, h.documents, templates,
		shared.NewCSRFManager("csrfsecret"), rbac.Middleware{Service: rbacSvc})

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess := &shared.Session{ID: "test"}
			if user := req.Header.Get("X-Test-User"); user != "" {
				sess.SetUser(user, "user"+user)
			}
			h.session = sess
			next.ServeHTTP(w, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
		})
	})
	r.Route("/admin", handler.MountRoutes)
	h.router = r
	return h
}

func (h *harness) do(req *http.Request, userID int64) *httptest.ResponseRecorder {
	if userID > 0 {
		req.Header.Set("X-Test-User", strconv.FormatInt(userID, 10))
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *harness) post(path string, form url.Values, userID int64) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return h.do(req, userID)
}

func (h *harness) flash() *shared.FlashMessage {
	return h.session.PopFlash()
}

// ============================================================================
// ACCESS
// ============================================================================

func TestAdminRequiresStaff(t *testing.T) {
	h := newHarness(t)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/admin/products/", nil), 0)
	assert.Equal(t, http.StatusFound, rec.Code)

	rec = h.do(httptest.NewRequest(http.MethodGet, "/admin/products/", nil), customerID)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.post("/admin/quotations/41/status", url.Values{"status": {"C"}}, customerID)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, h.quotations.statuses)

	rec = h.do(httptest.NewRequest(http.MethodGet, "/admin/products/", nil), staffID)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "FR-E820-0.75K")
}

// ============================================================================
// CATALOG
// ============================================================================

func TestCreateCategoryConflictRerendersForm(t *testing.T) {
	h := newHarness(t)
	h.catalog.categoryErr = &catalog.ConflictError{Field: "name", Message: "A category named 'PLC' already exists."}

	rec := h.post("/admin/categories/", url.Values{"name": {"PLC"}}, staffID)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "A category named &#39;PLC&#39; already exists.")
}

func TestCreateProductParsesForm(t *testing.T) {
	h := newHarness(t)
	form := url.Values{
		"category_id":        {"1"},
		"brand_id":           {"3"},
		"name":               {"FR-E840-1.5K"},
		"sku":                {"FR-E840"},
		"original_price":     {"250.50"},
		"discounted_price":   {""},
		"country_of_origin":  {"Japan"},
		"spec_input_voltage": {"3-phase 380-480V"},
		"related":            {"7"},
		"compatible":         {"7", "7"},
	}

	rec := h.post("/admin/products/", form, staffID)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/products/", rec.Header().Get("Location"))

	require.Len(t, h.catalog.created, 1)
	in := h.catalog.created[0]
	assert.Equal(t, int64(1), in.CategoryID)
	assert.Equal(t, int64(3), in.BrandID)
	assert.True(t, decimal.RequireFromString("250.5").Equal(in.OriginalPrice))
	assert.False(t, in.DiscountedPrice.Valid)
	assert.Equal(t, map[string]string{"input_voltage": "3-phase 380-480V"}, in.Specs)
	assert.Equal(t, []int64{7}, in.Related)
	assert.Equal(t, []int64{7, 7}, in.Compatible)
}

func TestCreateProductRejectsBadPrice(t *testing.T) {
	h := newHarness(t)

	rec := h.post("/admin/products/", url.Values{"name": {"X"}, "original_price": {"abc"}}, staffID)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Enter a number.")
	assert.Contains(t, rec.Body.String(), `value="abc"`)
	assert.Empty(t, h.catalog.created)
}

func TestCloneProduct(t *testing.T) {
	h := newHarness(t)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/admin/products/7/clone", nil), staffID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="model_name"`)

	rec = h.post("/admin/products/7/clone", url.Values{"model_name": {"FR-E820-1.5K"}, "sku": {"FR-E820-15"}}, staffID)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/products/107/", rec.Header().Get("Location"))
	assert.Equal(t, []catalog.CloneInput{{Name: "FR-E820-1.5K", SKU: "FR-E820-15"}}, h.catalog.cloneCalls)
	msg := h.flash()
	require.NotNil(t, msg)
	assert.Equal(t, shared.FlashSuccess, msg.Kind)
}

func TestCloneProductDuplicateFlashesError(t *testing.T) {
	h := newHarness(t)
	h.catalog.cloneErr = &catalog.ConflictError{Field: "sku", Message: "A product with SKU 'FR-E820' already exists."}

	rec := h.post("/admin/products/7/clone", url.Values{"model_name": {"Other"}, "sku": {"FR-E820"}}, staffID)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/products/7/clone", rec.Header().Get("Location"))
	msg := h.flash()
	require.NotNil(t, msg)
	assert.Equal(t, shared.FlashError, msg.Kind)
	assert.Equal(t, "A product with SKU 'FR-E820' already exists.", msg.Message)
}

func TestCloneProductMissingFields(t *testing.T) {
	h := newHarness(t)
	h.catalog.cloneErr = shared.ValidationErrors{"model_name": "Model Name is required to clone the product."}

	rec := h.post("/admin/products/7/clone", url.Values{"sku": {"NEW"}}, staffID)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Model Name is required to clone the product.")
}

// ============================================================================
// QUOTATIONS
// ============================================================================

func TestUpdateQuotationStatus(t *testing.T) {
	h := newHarness(t)

	rec := h.post("/admin/quotations/41/status", url.Values{"status": {"d"}}, staffID)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/quotations/41/", rec.Header().Get("Location"))
	assert.Equal(t, []statusCall{{actor: staffID, id: 41, status: quotations.StatusDelivered}}, h.quotations.statuses)
	assert.Equal(t, "Status changed to Delivered.", h.flash().Message)

	rec = h.post("/admin/quotations/41/status", url.Values{"status": {"Q"}}, staffID)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, shared.FlashError, h.flash().Kind)
	assert.Len(t, h.quotations.statuses, 1)
}

func TestShowQuotation(t *testing.T) {
	h := newHarness(t)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/admin/quotations/41/", nil), staffID)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "20261015093000")
	assert.Contains(t, body, "No PDF on file.")

	rec = h.do(httptest.NewRequest(http.MethodGet, "/admin/quotations/99/", nil), staffID)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddLineRejectsMalformedQuantity(t *testing.T) {
	h := newHarness(t)

	rec := h.post("/admin/quotations/41/lines", url.Values{"product_id": {"7"}, "quantity": {"many"}, "unit_price": {"10"}}, staffID)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Empty(t, h.quotations.addedLines)
	msg := h.flash()
	require.NotNil(t, msg)
	assert.Equal(t, "Enter a whole number.", msg.Message)

	rec = h.post("/admin/quotations/41/lines", url.Values{"product_id": {"7"}, "quantity": {"3"}, "unit_price": {"100"}, "discount_percent": {"10"}}, staffID)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Len(t, h.quotations.addedLines, 1)
	assert.Equal(t, 3, h.quotations.addedLines[0].Quantity)
}

func TestDeleteLineReportsNewTotal(t *testing.T) {
	h := newHarness(t)

	rec := h.post("/admin/quotations/41/lines/2/delete", url.Values{}, staffID)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, []int64{2}, h.quotations.deleted)
	assert.Equal(t, "Line removed. Total is now 100.00.", h.flash().Message)
}

func TestRegenerateDocument(t *testing.T) {
	h := newHarness(t)

	rec := h.post("/admin/quotations/41/document", url.Values{}, staffID)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, 1, h.documents.generated)
}
