package quotations

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/sisl-bd/eshop/internal/shared"
)

var (
	maxUnitPrice = decimal.New(1, 8)
	// maxTotal is the first value the NUMERIC(20,6) total column rejects.
	maxTotal = decimal.New(1, 14)
)

const (
	msgInvalidChoice = "Select a valid choice. That choice is not one of the available choices."
	msgTotalTooLarge = "Ensure that the quotation total has no more than 14 digits before the decimal point."
)

// LineInput is one submitted quotation line.
type LineInput struct {
	ProductID       int64           `form:"product_id" validate:"required,gt=0"`
	Description     string          `form:"description" validate:"max=255"`
	Quantity        int             `form:"quantity" validate:"required,gte=1,lte=2147483647"` // INTEGER column
	UnitPrice       decimal.Decimal `form:"unit_price" validate:"-"`
	DiscountPercent decimal.Decimal `form:"discount_percent" validate:"-"`
}

// SubmitRequest is the discount request submitted by a customer.
type SubmitRequest struct {
	CustomerID int64       `form:"customer_id" validate:"-"`
	Notes      string      `form:"notes" validate:"max=5000"`
	Lines      []LineInput `form:"lines" validate:"dive"`
}

func validateSubmit(v *validator.Validate, req SubmitRequest) error {
	verrs := shared.ValidateStruct(v, req)
	lines := make([]Line, 0, len(req.Lines))
	for i, line := range req.Lines {
		validateAmounts(verrs, fmt.Sprintf("lines[%d].", i), line)
		lines = append(lines, lineFromInput(line))
	}
	if len(verrs) == 0 && sumLines(lines).GreaterThanOrEqual(maxTotal) {
		verrs.Add("__all__", msgTotalTooLarge)
	}
	return verrs.Err()
}

func validateLine(v *validator.Validate, line LineInput) error {
	verrs := shared.ValidateStruct(v, line)
	validateAmounts(verrs, "", line)
	if len(verrs) == 0 && lineFromInput(line).LineTotal().GreaterThanOrEqual(maxTotal) {
		verrs.Add("__all__", msgTotalTooLarge)
	}
	return verrs.Err()
}

// invalidProduct reports an unknown product against the line's product field.
func invalidProduct(prefix string) shared.ValidationErrors {
	return shared.ValidationErrors{prefix + "product_id": msgInvalidChoice}
}

func validateAmounts(verrs shared.ValidationErrors, prefix string, line LineInput) {
	switch {
	case line.UnitPrice.IsNegative():
		verrs.Add(prefix+"unit_price", "Ensure this value is greater than or equal to 0.")
	case line.UnitPrice.GreaterThanOrEqual(maxUnitPrice):
		verrs.Add(prefix+"unit_price", "Ensure that there are no more than 8 digits before the decimal point.")
	case !line.UnitPrice.Equal(line.UnitPrice.Round(2)):
		verrs.Add(prefix+"unit_price", "Ensure that there are no more than 2 decimal places.")
	}
	switch {
	case line.DiscountPercent.IsNegative():
		verrs.Add(prefix+"discount_percent", "Ensure this value is greater than or equal to 0.")
	case line.DiscountPercent.GreaterThan(hundred):
		verrs.Add(prefix+"discount_percent", "Ensure this value is less than or equal to 100.")
	case !line.DiscountPercent.Equal(line.DiscountPercent.Round(2)):
		verrs.Add(prefix+"discount_percent", "Ensure that there are no more than 2 decimal places.")
	}
}

func lineFromInput(in LineInput) Line {
	return Line{
		ProductID:       in.ProductID,
		Description:     strings.TrimSpace(in.Description),
		Quantity:        in.Quantity,
		UnitPrice:       in.UnitPrice,
		DiscountPercent: in.DiscountPercent,
	}
}
