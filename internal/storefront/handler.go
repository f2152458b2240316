package storefront

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sisl-bd/eshop/internal/catalog"
	"github.com/sisl-bd/eshop/internal/documents"
	"github.com/sisl-bd/eshop/internal/observability"
	"github.com/sisl-bd/eshop/internal/platform/httpx"
	"github.com/sisl-bd/eshop/internal/quotations"
	"github.com/sisl-bd/eshop/internal/rbac"
	"github.com/sisl-bd/eshop/internal/shared"
	"github.com/sisl-bd/eshop/internal/view"
	"github.com/sisl-bd/eshop/jobs"
)

// Catalog is the read side of the catalog used by public pages.
type Catalog interface {
	Home(ctx context.Context) (catalog.HomePage, error)
	ProductBySKU(ctx context.Context, sku string) (catalog.ProductDetail, error)
	CategoryByName(ctx context.Context, name string) (catalog.CategoryPage, error)
	BrandPage(ctx context.Context, id int64) (catalog.Brand, []catalog.Product, error)
	Search(ctx context.Context, q string) ([]catalog.Product, error)
}

// Quotations submits and reads discount requests.
type Quotations interface {
	Submit(ctx context.Context, req quotations.SubmitRequest) (*quotations.Quotation, error)
	Get(ctx context.Context, id int64) (*quotations.Quotation, error)
	List(ctx context.Context, filter quotations.ListFilter) ([]quotations.Quotation, int, error)
}

// Documents generates and recovers quotation PDFs.
type Documents interface {
	Generate(ctx context.Context, q *quotations.Quotation) (documents.Document, error)
	Ensure(ctx context.Context, id int64) (*quotations.Quotation, documents.Document, error)
	Locate(q *quotations.Quotation) (documents.Document, bool)
}

// NotifyQueue schedules the operator notification.
type NotifyQueue interface {
	EnqueueQuotationNotify(ctx context.Context, payload jobs.QuotationNotifyPayload) error
}

// Permissions answers staff checks for pages shared with customers.
type Permissions interface {
	HasAny(ctx context.Context, userID int64, perms ...string) (bool, error)
}

// Handler serves the public catalog and the discount request flow.
type Handler struct {
	logger      *slog.Logger
	catalog     Catalog
	quotations  Quotations
	documents   Documents
	queue       NotifyQueue
	permissions Permissions
	templates   *view.Engine
	csrf        *shared.CSRFManager
	rbac        rbac.Middleware
	metrics     *observability.Metrics
}

// Params groups the handler dependencies.
type Params struct {
	Logger      *slog.Logger
	Catalog     Catalog
	Quotations  Quotations
	Documents   Documents
	Queue       NotifyQueue
	Permissions Permissions
	Templates   *view.Engine
	CSRF        *shared.CSRFManager
	RBAC        rbac.Middleware
	Metrics     *observability.Metrics
}

// NewHandler constructs the storefront handler.
func NewHandler(p Params) *Handler {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:      logger,
		catalog:     p.Catalog,
		quotations:  p.Quotations,
		documents:   p.Documents,
		queue:       p.Queue,
		permissions: p.Permissions,
		templates:   p.Templates,
		csrf:        p.CSRF,
		rbac:        p.RBAC,
		metrics:     p.Metrics,
	}
}

// MountRoutes registers the public routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.home)
	r.Get("/product/", h.redirectHome)
	r.Get("/product//", h.redirectHome)
	r.Get("/product/{sku}", h.product)
	r.Get("/product/{sku}/", h.product)
	r.Get("/category/{name}/", h.category)
	r.Get("/brand/{id}/", h.brand)
	r.Get("/search/", h.search)

	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuthenticated())
		r.Get("/ask-discount/{sku}/", h.showDiscountForm)
		r.Post("/ask-discount/{sku}/", h.submitDiscount)
		r.Get("/quotation/{id}/", h.quotation)
		r.Get("/quotation/{id}/document", h.quotationDocument)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermOrdersView, shared.PermOrdersManage))
		r.Get("/order-management/", h.orderManagement)
	})
}

// ============================================================================
// CATALOG PAGES
// ============================================================================

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	page, err := h.catalog.Home(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/home.html", "SISL Mitsubishi eShop", page)
}

func (h *Handler) redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *Handler) product(w http.ResponseWriter, r *http.Request) {
	sku := strings.TrimSpace(chi.URLParam(r, "sku"))
	if sku == "" || strings.EqualFold(sku, "none") {
		h.redirectHome(w, r)
		return
	}
	detail, err := h.catalog.ProductBySKU(r.Context(), sku)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/product.html", detail.Product.Name, detail)
}

func (h *Handler) category(w http.ResponseWriter, r *http.Request) {
	page, err := h.catalog.CategoryByName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/category.html", page.Category.Name, page)
}

type brandPage struct {
	Brand    catalog.Brand
	Products []catalog.Product
}

func (h *Handler) brand(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		h.fail(w, r, catalog.ErrNotFound)
		return
	}
	brand, products, err := h.catalog.BrandPage(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/brand.html", brand.Name, brandPage{Brand: brand, Products: products})
}

type searchPage struct {
	Query    string
	Products []catalog.Product
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	products, err := h.catalog.Search(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/search.html", "Search", searchPage{Query: q, Products: products})
}

// ============================================================================
// DISCOUNT REQUESTS
// ============================================================================

func (h *Handler) showDiscountForm(w http.ResponseWriter, r *http.Request) {
	detail, err := h.catalog.ProductBySKU(r.Context(), chi.URLParam(r, "sku"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/ask_discount.html", "Ask for discount", newDiscountForm(detail))
}

type successPage struct {
	Quotation    *quotations.Quotation
	Document     documents.Document
	HasDocument  bool
	Notification bool
}

func (h *Handler) submitDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	detail, err := h.catalog.ProductBySKU(ctx, chi.URLParam(r, "sku"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := newDiscountForm(detail)
	req, parseErrs := parseDiscountForm(r, &form)
	userID, _ := shared.CurrentUserID(ctx)
	req.CustomerID = userID

	var q *quotations.Quotation
	if len(parseErrs) == 0 {
		q, err = h.quotations.Submit(ctx, req)
	} else {
		err = parseErrs
	}
	if err != nil {
		if !errors.Is(err, shared.ErrValidation) && !errors.Is(err, quotations.ErrOrderNumberConflict) {
			h.metrics.QuotationSubmitted(observability.OutcomeFailed)
			h.fail(w, r, err)
			return
		}
		h.metrics.QuotationSubmitted(observability.OutcomeRejected)
		form.Errors = shared.FieldErrors(err)
		if form.Errors == nil {
			form.Errors = shared.ValidationErrors{"__all__": submitMessage(err)}
		}
		form.OrderNumber = ""
		if len(form.Lines) == 0 {
			form.Lines = newDiscountForm(detail).Lines
		}
		h.render(w, r, http.StatusBadRequest, "pages/ask_discount.html", "Ask for discount", form)
		return
	}
	h.metrics.QuotationSubmitted(observability.OutcomeAccepted)
	logger := h.logger.With(slog.Int64("quotation_id", q.ID), slog.String("order_number", q.OrderNumber))
	page := successPage{Quotation: q}

	doc, err := h.documents.Generate(ctx, q)
	h.metrics.DocumentGenerated(err)
	if err != nil {
		logger.Error("generate quotation document", slog.Any("error", err))
		flash(r, shared.FlashWarning, "Your request was saved, but its PDF could not be generated yet. Use the download link to retry.")
	} else {
		page.Document, page.HasDocument = doc, true
	}

	payload := jobs.QuotationNotifyPayload{QuotationID: q.ID, ProductID: detail.Product.ID}
	if err := h.queue.EnqueueQuotationNotify(ctx, payload); err != nil {
		logger.Error("enqueue quotation notification", slog.Any("error", err))
		flash(r, shared.FlashWarning, "Your request was saved, but our sales team has not been notified yet. Please contact us if you do not hear back.")
	} else {
		page.Notification = true
	}
	if page.HasDocument && page.Notification {
		flash(r, shared.FlashSuccess, "Your discount request has been submitted.")
	}
	h.render(w, r, http.StatusOK, "pages/quotation_success.html", "Discount request submitted", page)
}

func submitMessage(err error) string {
	switch {
	case errors.Is(err, quotations.ErrNoLines):
		return "Add at least one product line."
	case errors.Is(err, quotations.ErrCustomerRequired):
		return "You must be logged in to request a discount."
	case errors.Is(err, quotations.ErrOrderNumberConflict):
		return "Another request was placed at the same moment. Please submit again."
	default:
		return err.Error()
	}
}

// ============================================================================
// QUOTATIONS
// ============================================================================

type quotationPage struct {
	Quotation   *quotations.Quotation
	Document    documents.Document
	HasDocument bool
}

func (h *Handler) quotation(w http.ResponseWriter, r *http.Request) {
	q, ok := h.loadVisibleQuotation(w, r)
	if !ok {
		return
	}
	page := quotationPage{Quotation: q}
	page.Document, page.HasDocument = h.documents.Locate(q)
	h.render(w, r, http.StatusOK, "pages/quotation.html", "Quotation "+q.OrderNumber, page)
}

func (h *Handler) quotationDocument(w http.ResponseWriter, r *http.Request) {
	q, ok := h.loadVisibleQuotation(w, r)
	if !ok {
		return
	}
	_, doc, err := h.documents.Ensure(r.Context(), q.ID)
	if err != nil {
		h.logger.Error("ensure quotation document", slog.Int64("quotation_id", q.ID), slog.Any("error", err))
		flash(r, shared.FlashError, "The quotation PDF is not available right now. Please try again later.")
		http.Redirect(w, r, "/quotation/"+strconv.FormatInt(q.ID, 10)+"/", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, doc.URL, http.StatusFound)
}

// loadVisibleQuotation returns the quotation when the caller owns it or is
// staff. Other callers get 404 so ids are not disclosed.
func (h *Handler) loadVisibleQuotation(w http.ResponseWriter, r *http.Request) (*quotations.Quotation, bool) {
	id, ok := pathID(r, "id")
	if !ok {
		h.fail(w, r, quotations.ErrNotFound)
		return nil, false
	}
	q, err := h.quotations.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	userID, _ := shared.CurrentUserID(r.Context())
	if q.CustomerID != nil && *q.CustomerID == userID {
		return q, true
	}
	staff, err := h.permissions.HasAny(r.Context(), userID, shared.PermOrdersView, shared.PermOrdersManage)
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	if !staff {
		h.fail(w, r, quotations.ErrNotFound)
		return nil, false
	}
	return q, true
}

// ============================================================================
// ORDER MANAGEMENT
// ============================================================================

type orderManagementPage struct {
	Quotations []quotations.Quotation
	Statuses   []quotations.Status
	Status     string
	Search     string
	Pagination shared.Pagination
	Total      int
}

func (h *Handler) orderManagement(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page := orderManagementPage{Statuses: quotations.Statuses(), Search: strings.TrimSpace(query.Get("q"))}
	filter := quotations.ListFilter{Search: page.Search}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, err := quotations.ParseStatus(raw)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		filter.Status = &status
		page.Status = string(status)
	}
	pageNo, _ := strconv.Atoi(query.Get("page"))
	window := shared.NewPagination(pageNo, 0, 0)
	filter.Limit = window.PerPage
	filter.Offset = window.Offset()

	items, total, err := h.quotations.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page.Quotations = items
	page.Total = total
	page.Pagination = shared.NewPagination(window.Page, window.PerPage, total)
	h.render(w, r, http.StatusOK, "pages/order_management.html", "Order management", page)
}

// ============================================================================
// HELPERS
// ============================================================================

func flash(r *http.Request, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
}

func pathID(r *http.Request, key string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	if err := h.templates.Render(w, status, name, view.NewTemplateData(r, h.csrf, title, data)); err != nil {
		h.logger.Error("render template", slog.String("template", name), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

type errorPage struct {
	Status  int
	Message string
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := httpx.StatusFor(err)
	message := http.StatusText(status)
	if status >= http.StatusInternalServerError {
		h.logger.Error("storefront request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	} else if status == http.StatusBadRequest {
		message = err.Error()
	}
	h.render(w, r, status, "pages/error.html", message, errorPage{Status: status, Message: message})
}
