package quotations

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sisl-bd/eshop/internal/shared"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLineTotal(t *testing.T) {
	cases := []struct {
		name     string
		line     Line
		expected string
	}{
		{"ten percent off", Line{Quantity: 3, UnitPrice: dec("100"), DiscountPercent: dec("10")}, "270"},
		{"no discount", Line{Quantity: 2, UnitPrice: dec("19.99"), DiscountPercent: decimal.Zero}, "39.98"},
		{"full discount", Line{Quantity: 5, UnitPrice: dec("42.50"), DiscountPercent: dec("100")}, "0"},
		{"fractional discount keeps precision", Line{Quantity: 3, UnitPrice: dec("33.33"), DiscountPercent: dec("12.5")}, "87.49125"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, dec(tc.expected).Equal(tc.line.LineTotal()), "got %s", tc.line.LineTotal())
		})
	}
}

func TestComputeTotalIsExactSum(t *testing.T) {
	q := Quotation{Lines: []Line{
		{Quantity: 1, UnitPrice: dec("0.10"), DiscountPercent: decimal.Zero},
		{Quantity: 1, UnitPrice: dec("0.20"), DiscountPercent: decimal.Zero},
		{Quantity: 3, UnitPrice: dec("33.33"), DiscountPercent: dec("12.5")},
	}}
	assert.Equal(t, "87.79125", q.ComputeTotal().String())
	assert.Equal(t, "87.79", q.ComputeTotal().StringFixed(2))
	assert.True(t, Quotation{}.ComputeTotal().IsZero())
}

func TestOrderNumberAndSubject(t *testing.T) {
	at := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
	number := OrderNumber(at)
	assert.Equal(t, "ORD20240305140709", number)
	assert.Len(t, number, 17)
	assert.Equal(t, "Discount Request for order no: ORD20240305140709 on 2024-03-05", Subject(number, at))
}

func TestParseStatus(t *testing.T) {
	for _, s := range Statuses() {
		parsed, err := ParseStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	parsed, err := ParseStatus(" c ")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, parsed)
	assert.Equal(t, "Confirmed", parsed.Label())

	_, err = ParseStatus("Z")
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestQuotationDisplayFallbacks(t *testing.T) {
	q := Quotation{}
	assert.Equal(t, "Anonymous", q.Customer())
	assert.Equal(t, "N/A", q.NotesOrNA())
	assert.Zero(t, q.FirstProductID())

	q = Quotation{CustomerName: "rahim", Notes: "urgent", Lines: []Line{{ProductID: 4}}}
	assert.Equal(t, "rahim", q.Customer())
	assert.Equal(t, "urgent", q.NotesOrNA())
	assert.Equal(t, int64(4), q.FirstProductID())
}
