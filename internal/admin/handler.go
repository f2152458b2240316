// Package admin serves the staff back office: catalog maintenance and
// quotation management.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sisl-bd/eshop/internal/catalog"
	"github.com/sisl-bd/eshop/internal/documents"
	"github.com/sisl-bd/eshop/internal/platform/httpx"
	"github.com/sisl-bd/eshop/internal/quotations"
	"github.com/sisl-bd/eshop/internal/rbac"
	"github.com/sisl-bd/eshop/internal/shared"
	"github.com/sisl-bd/eshop/internal/view"
)

// CatalogService is the catalog maintenance API.
type CatalogService interface {
	Categories(ctx context.Context) ([]catalog.Category, error)
	Category(ctx context.Context, id int64) (catalog.Category, error)
	CreateCategory(ctx context.Context, in catalog.CategoryInput) (catalog.Category, error)
	UpdateCategory(ctx context.Context, id int64, in catalog.CategoryInput) error
	DeleteCategory(ctx context.Context, id int64) error

	Brands(ctx context.Context) ([]catalog.Brand, error)
	Brand(ctx context.Context, id int64) (catalog.Brand, error)
	CreateBrand(ctx context.Context, in catalog.BrandInput) (catalog.Brand, error)
	UpdateBrand(ctx context.Context, id int64, in catalog.BrandInput) error
	DeleteBrand(ctx context.Context, id int64) error

	Banners(ctx context.Context) ([]catalog.Banner, error)
	Banner(ctx context.Context, id int64) (catalog.Banner, error)
	CreateBanner(ctx context.Context, in catalog.BannerInput) (catalog.Banner, error)
	UpdateBanner(ctx context.Context, id int64, in catalog.BannerInput) error
	DeleteBanner(ctx context.Context, id int64) error

	Products(ctx context.Context, filter catalog.ProductFilter) ([]catalog.Product, int, error)
	ProductWithLinks(ctx context.Context, id int64) (catalog.Product, catalog.Links, error)
	CreateProduct(ctx context.Context, in catalog.ProductInput) (catalog.Product, error)
	UpdateProduct(ctx context.Context, id int64, in catalog.ProductInput) error
	DeleteProduct(ctx context.Context, actorID, id int64) error
	Clone(ctx context.Context, actorID, sourceID int64, in catalog.CloneInput) (catalog.Product, error)
}

// QuotationService is the staff side of the quotation engine.
type QuotationService interface {
	Get(ctx context.Context, id int64) (*quotations.Quotation, error)
	List(ctx context.Context, filter quotations.ListFilter) ([]quotations.Quotation, int, error)
	UpdateStatus(ctx context.Context, actorID, id int64, status quotations.Status) (*quotations.Quotation, error)
	UpdateNotes(ctx context.Context, id int64, notes string) error
	AddLine(ctx context.Context, quotationID int64, in quotations.LineInput) (*quotations.Quotation, error)
	UpdateLine(ctx context.Context, quotationID, lineID int64, in quotations.LineInput) (*quotations.Quotation, error)
	DeleteLine(ctx context.Context, quotationID, lineID int64) (*quotations.Quotation, error)
	Delete(ctx context.Context, actorID, id int64) error
}

// DocumentService regenerates quotation PDFs after staff edits.
type DocumentService interface {
	Generate(ctx context.Context, q *quotations.Quotation) (documents.Document, error)
	Locate(q *quotations.Quotation) (documents.Document, bool)
}

// Handler serves /admin.
type Handler struct {
	logger     *slog.Logger
	catalog    CatalogService
	quotations QuotationService
	documents  DocumentService
	templates  *view.Engine
	csrf       *shared.CSRFManager
	rbac       rbac.Middleware
}

// NewHandler constructs the admin handler.
func NewHandler(
	logger *slog.Logger,
	catalogSvc CatalogService,
	quotationSvc QuotationService,
	documentSvc DocumentService,
	templates *view.Engine,
	csrf *shared.CSRFManager,
	rbac rbac.Middleware,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:     logger,
		catalog:    catalogSvc,
		quotations: quotationSvc,
		documents:  documentSvc,
		templates:  templates,
		csrf:       csrf,
		rbac:       rbac,
	}
}

// MountRoutes registers the admin routes. Mount under /admin.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(shared.StaffScopes()...)).Get("/", h.dashboard)

	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermCatalogManage))

		r.Get("/categories/", h.listCategories)
		r.Get("/categories/new", h.newCategory)
		r.Post("/categories/", h.createCategory)
		r.Get("/categories/{id}/", h.editCategory)
		r.Post("/categories/{id}/", h.updateCategory)
		r.Post("/categories/{id}/delete", h.deleteCategory)

		r.Get("/brands/", h.listBrands)
		r.Get("/brands/new", h.newBrand)
		r.Post("/brands/", h.createBrand)
		r.Get("/brands/{id}/", h.editBrand)
		r.Post("/brands/{id}/", h.updateBrand)
		r.Post("/brands/{id}/delete", h.deleteBrand)

		r.Get("/banners/", h.listBanners)
		r.Get("/banners/new", h.newBanner)
		r.Post("/banners/", h.createBanner)
		r.Get("/banners/{id}/", h.editBanner)
		r.Post("/banners/{id}/", h.updateBanner)
		r.Post("/banners/{id}/delete", h.deleteBanner)

		r.Get("/products/", h.listProducts)
		r.Get("/products/new", h.newProduct)
		r.Post("/products/", h.createProduct)
		r.Get("/products/{id}/", h.editProduct)
		r.Post("/products/{id}/", h.updateProduct)
		r.Post("/products/{id}/delete", h.deleteProduct)
		r.Get("/products/{id}/clone", h.showClone)
		r.Post("/products/{id}/clone", h.cloneProduct)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermOrdersManage))

		r.Get("/quotations/", h.listQuotations)
		r.Get("/quotations/{id}/", h.showQuotation)
		r.Post("/quotations/{id}/status", h.updateStatus)
		r.Post("/quotations/{id}/notes", h.updateNotes)
		r.Post("/quotations/{id}/document", h.regenerateDocument)
		r.Post("/quotations/{id}/delete", h.deleteQuotation)
		r.Post("/quotations/{id}/lines", h.addLine)
		r.Post("/quotations/{id}/lines/{lineID}", h.updateLine)
		r.Post("/quotations/{id}/lines/{lineID}/delete", h.deleteLine)
	})
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	pending := quotations.StatusPending
	recent, total, err := h.quotations.List(r.Context(), quotations.ListFilter{Status: &pending, Limit: 10})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "admin/index.html", "Administration", map[string]any{
		"Pending":      recent,
		"PendingTotal": total,
	})
}

// ============================================================================
// HELPERS
// ============================================================================

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data map[string]any) {
	if err := h.templates.Render(w, status, name, view.NewTemplateData(r, h.csrf, title, data)); err != nil {
		h.logger.Error("render admin template", slog.String("template", name), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := httpx.StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("admin request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	http.Error(w, http.StatusText(status), status)
}

// done flashes message and redirects to target after a successful change.
func (h *Handler) done(w http.ResponseWriter, r *http.Request, target, message string) {
	flash(r, shared.FlashSuccess, message)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// rejected handles failures of a mutation that has no form to re-render:
// user errors become a flash on target, anything else fails the request.
func (h *Handler) rejected(w http.ResponseWriter, r *http.Request, target string, err error) {
	if errors.Is(err, shared.ErrValidation) || errors.Is(err, shared.ErrDuplicate) {
		flash(r, shared.FlashError, err.Error())
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	h.fail(w, r, err)
}

func flash(r *http.Request, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
}

func actorID(r *http.Request) int64 {
	id, _ := shared.CurrentUserID(r.Context())
	return id
}

func pathID(r *http.Request, key string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.ErrNotFound
	}
	return id, nil
}

// formErrors turns err into field messages when the user can fix it.
func formErrors(err error) (shared.ValidationErrors, bool) {
	if verrs := shared.FieldErrors(err); verrs != nil {
		return verrs, true
	}
	var conflict *catalog.ConflictError
	if errors.As(err, &conflict) {
		return shared.ValidationErrors{conflict.Field: conflict.Message}, true
	}
	if errors.Is(err, shared.ErrDuplicate) {
		return shared.ValidationErrors{"__all__": err.Error()}, true
	}
	return nil, false
}
