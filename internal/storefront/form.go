package storefront

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sisl-bd/eshop/internal/catalog"
	"github.com/sisl-bd/eshop/internal/quotations"
	"github.com/sisl-bd/eshop/internal/shared"
)

// extraLines is the number of blank rows offered below the requested product.
const extraLines = 2

// LineRow is one editable row of the discount request form.
type LineRow struct {
	ProductID       string
	Description     string
	Quantity        string
	UnitPrice       string
	DiscountPercent string
}

// DiscountForm is the discount request form state.
type DiscountForm struct {
	Product     catalog.Product
	Choices     []catalog.Product
	Notes       string
	Lines       []LineRow
	OrderNumber string
	Errors      shared.ValidationErrors
}

// LineError returns the message for field of row i.
func (f DiscountForm) LineError(i int, field string) string {
	return f.Errors[fmt.Sprintf("lines[%d].%s", i, field)]
}

func newDiscountForm(detail catalog.ProductDetail) DiscountForm {
	product := detail.Product
	form := DiscountForm{
		Product: product,
		Choices: lineChoices(detail),
		Lines: []LineRow{{
			ProductID:       strconv.FormatInt(product.ID, 10),
			Quantity:        "1",
			UnitPrice:       product.OriginalPrice.StringFixed(2),
			DiscountPercent: "0",
		}},
	}
	for i := 0; i < extraLines && len(form.Choices) > 1; i++ {
		form.Lines = append(form.Lines, LineRow{})
	}
	return form
}

// lineChoices offers the product itself plus its related and compatible
// products for extra rows.
func lineChoices(detail catalog.ProductDetail) []catalog.Product {
	seen := map[int64]bool{detail.Product.ID: true}
	choices := []catalog.Product{detail.Product}
	for _, set := range [][]catalog.Product{detail.Related, detail.Compatible} {
		for _, p := range set {
			if !seen[p.ID] {
				seen[p.ID] = true
				choices = append(choices, p)
			}
		}
	}
	return choices
}

// parseDiscountForm reads the posted rows. Rows left entirely blank are
// dropped and malformed numbers are reported against their row.
func parseDiscountForm(r *http.Request, form *DiscountForm) (quotations.SubmitRequest, shared.ValidationErrors) {
	verrs := shared.ValidationErrors{}
	form.Notes = r.PostFormValue("notes")
	req := quotations.SubmitRequest{Notes: form.Notes}

	productIDs := r.PostForm["product_id"]
	descriptions := r.PostForm["description"]
	quantities := r.PostForm["quantity"]
	prices := r.PostForm["unit_price"]
	discounts := r.PostForm["discount_percent"]

	form.Lines = form.Lines[:0]
	for i := range productIDs {
		row := LineRow{
			ProductID:       strings.TrimSpace(productIDs[i]),
			Description:     at(descriptions, i),
			Quantity:        strings.TrimSpace(at(quantities, i)),
			UnitPrice:       strings.TrimSpace(at(prices, i)),
			DiscountPercent: strings.TrimSpace(at(discounts, i)),
		}
		if row.ProductID == "" && row.Quantity == "" && row.UnitPrice == "" {
			continue
		}
		idx := len(form.Lines)
		form.Lines = append(form.Lines, row)
		prefix := fmt.Sprintf("lines[%d].", idx)

		line := quotations.LineInput{Description: row.Description}
		if id, err := strconv.ParseInt(row.ProductID, 10, 64); err == nil {
			line.ProductID = id
		} else {
			verrs.Add(prefix+"product_id", "Select a valid choice.")
		}
		if row.Quantity != "" {
			if qty, err := strconv.Atoi(row.Quantity); err == nil {
				line.Quantity = qty
			} else {
				verrs.Add(prefix+"quantity", "Enter a whole number.")
			}
		}
		line.UnitPrice = parseDecimal(verrs, prefix+"unit_price", row.UnitPrice, true)
		line.DiscountPercent = parseDecimal(verrs, prefix+"discount_percent", row.DiscountPercent, false)
		req.Lines = append(req.Lines, line)
	}
	if len(req.Lines) == 0 {
		verrs.Add("__all__", "Add at least one product line.")
	}
	return req, verrs
}

func parseDecimal(verrs shared.ValidationErrors, field, raw string, required bool) decimal.Decimal {
	if raw == "" {
		if required {
			verrs.Add(field, "This field is required.")
		}
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		verrs.Add(field, "Enter a number.")
		return decimal.Zero
	}
	return d
}

func at(values []string, i int) string {
	if i < len(values) {
		return values[i]
	}
	return ""
}
