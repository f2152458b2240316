package admin

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sisl-bd/eshop/internal/catalog"
	"github.com/sisl-bd/eshop/internal/quotations"
	"github.com/sisl-bd/eshop/internal/shared"
)

const quotationsPerPage = 25

func quotationURL(id int64) string {
	return "/admin/quotations/" + strconv.FormatInt(id, 10) + "/"
}

func (h *Handler) listQuotations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	pageNo, _ := strconv.Atoi(query.Get("page"))
	window := shared.NewPagination(pageNo, quotationsPerPage, 0)
	filter := quotations.ListFilter{
		Search: strings.TrimSpace(query.Get("q")),
		Limit:  window.PerPage,
		Offset: window.Offset(),
	}
	status := strings.TrimSpace(query.Get("status"))
	if status != "" {
		parsed, err := quotations.ParseStatus(status)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		filter.Status = &parsed
		status = string(parsed)
	}
	items, total, err := h.quotations.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "admin/quotations.html", "Quotations", map[string]any{
		"Quotations": items,
		"Statuses":   quotations.Statuses(),
		"Status":     status,
		"Search":     filter.Search,
		"Total":      total,
		"Pagination": shared.NewPagination(window.Page, window.PerPage, total),
	})
}

func (h *Handler) showQuotation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.quotations.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	doc, hasDoc := h.documents.Locate(q)
	products, _, err := h.catalog.Products(r.Context(), catalog.ProductFilter{})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "admin/quotation.html", "Quotation "+q.OrderNumber, map[string]any{
		"Quotation":   q,
		"Statuses":    quotations.Statuses(),
		"Products":    products,
		"Document":    doc,
		"HasDocument": hasDoc,
	})
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status, err := quotations.ParseStatus(r.PostFormValue("status"))
	if err != nil {
		h.rejected(w, r, quotationURL(id), err)
		return
	}
	q, err := h.quotations.UpdateStatus(r.Context(), actorID(r), id, status)
	if err != nil {
		h.rejected(w, r, quotationURL(id), err)
		return
	}
	h.done(w, r, quotationURL(id), "Status changed to "+q.Status.Label()+".")
}

func (h *Handler) updateNotes(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.quotations.UpdateNotes(r.Context(), id, r.PostFormValue("notes")); err != nil {
		h.rejected(w, r, quotationURL(id), err)
		return
	}
	h.done(w, r, quotationURL(id), "Notes saved.")
}

func (h *Handler) deleteQuotation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.quotations.Delete(r.Context(), actorID(r), id); err != nil {
		h.rejected(w, r, quotationURL(id), err)
		return
	}
	h.done(w, r, "/admin/quotations/", "Quotation deleted.")
}

// regenerateDocument renders a fresh PDF, typically after lines changed.
func (h *Handler) regenerateDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.quotations.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.documents.Generate(r.Context(), q); err != nil {
		h.logger.Error("regenerate quotation document", slog.Int64("quotation_id", id), slog.Any("error", err))
		flash(r, shared.FlashError, "The PDF could not be generated. Please try again later.")
		http.Redirect(w, r, quotationURL(id), http.StatusSeeOther)
		return
	}
	h.done(w, r, quotationURL(id), "A new PDF was generated.")
}

// ============================================================================
// LINES
// ============================================================================

func (h *Handler) addLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	in, verrs := parseLine(r)
	if len(verrs) > 0 {
		h.rejected(w, r, quotationURL(id), verrs)
		return
	}
	q, err := h.quotations.AddLine(r.Context(), id, in)
	if err != nil {
		h.rejected(w, r, quotationURL(id), err)
		return
	}
	h.done(w, r, quotationURL(id), "Line added. Total is now "+q.TotalAmount.StringFixed(2)+".")
}

func (h *Handler) updateLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	lineID, err := pathID(r, "lineID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	in, verrs := parseLine(r)
	if len(verrs) > 0 {
		h.rejected(w, r, quotationURL(id), verrs)
		return
	}
	q, err := h.quotations.UpdateLine(r.Context(), id, lineID, in)
	if err != nil {
		h.rejected(w, r, quotationURL(id), err)
		return
	}
	h.done(w, r, quotationURL(id), "Line saved. Total is now "+q.TotalAmount.StringFixed(2)+".")
}

func (h *Handler) deleteLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	lineID, err := pathID(r, "lineID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := h.quotations.DeleteLine(r.Context(), id, lineID)
	if err != nil {
		h.rejected(w, r, quotationURL(id), err)
		return
	}
	h.done(w, r, quotationURL(id), "Line removed. Total is now "+q.TotalAmount.StringFixed(2)+".")
}

func parseLine(r *http.Request) (quotations.LineInput, shared.ValidationErrors) {
	verrs := shared.ValidationErrors{}
	in := quotations.LineInput{Description: r.PostFormValue("description")}
	if id := optionalID(verrs, "product_id", r.PostFormValue("product_id")); id != nil {
		in.ProductID = *id
	}
	if raw := strings.TrimSpace(r.PostFormValue("quantity")); raw != "" {
		qty, err := strconv.Atoi(raw)
		if err != nil {
			verrs.Add("quantity", "Enter a whole number.")
		}
		in.Quantity = qty
	}
	in.UnitPrice = lineDecimal(verrs, "unit_price", r.PostFormValue("unit_price"))
	in.DiscountPercent = lineDecimal(verrs, "discount_percent", r.PostFormValue("discount_percent"))
	return in, verrs
}

func lineDecimal(verrs shared.ValidationErrors, field, raw string) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		verrs.Add(field, "Enter a number.")
		return decimal.Zero
	}
	return d
}
