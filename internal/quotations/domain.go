package quotations

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the single-letter order status code.
type Status string

const (
	// StatusPending is the initial status of every submitted quotation.
	StatusPending Status = "P"
	// StatusConfirmed marks an order accepted by staff.
	StatusConfirmed Status = "C"
	// StatusCanceled marks an abandoned order.
	StatusCanceled Status = "X"
	// StatusDelivered marks a fulfilled order.
	StatusDelivered Status = "D"
)

var statusLabels = map[Status]string{
	StatusPending:   "Pending",
	StatusConfirmed: "Confirmed",
	StatusCanceled:  "Canceled",
	StatusDelivered: "Delivered",
}

// Statuses lists every status in display order.
func Statuses() []Status {
	return []Status{StatusPending, StatusConfirmed, StatusCanceled, StatusDelivered}
}

// Valid reports whether s is a known status code.
func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Label returns the human readable status name.
func (s Status) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// ParseStatus accepts a status code, ignoring surrounding space and case.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q: %w", raw, ErrInvalidStatus)
	}
	return s, nil
}

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Line is one product row of a quotation.
type Line struct {
	ID              int64
	QuotationID     int64
	ProductID       int64
	ProductName     string
	ProductSKU      string
	Description     string
	Quantity        int
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
	Position        int
}

// LineTotal is quantity × unit price × (1 − discount/100), exact.
func (l Line) LineTotal() decimal.Decimal {
	factor := one.Sub(l.DiscountPercent.Shift(-2))
	return decimal.NewFromInt(int64(l.Quantity)).Mul(l.UnitPrice).Mul(factor)
}

// Quotation is a discount request header with its ordered lines.
type Quotation struct {
	ID           int64
	CustomerID   *int64
	CustomerName string
	CreatedAt    time.Time
	Notes        string
	TotalAmount  decimal.Decimal
	OrderNumber  string
	Subject      string
	Status       Status
	DocumentName string
	NotifiedAt   *time.Time
	Lines        []Line
}

// ComputeTotal sums the line totals without intermediate rounding.
func (q Quotation) ComputeTotal() decimal.Decimal {
	return sumLines(q.Lines)
}

// Customer returns the customer display name, "Anonymous" when unknown.
func (q Quotation) Customer() string {
	if strings.TrimSpace(q.CustomerName) == "" {
		return "Anonymous"
	}
	return q.CustomerName
}

// NotesOrNA returns the notes, "N/A" when blank.
func (q Quotation) NotesOrNA() string {
	if strings.TrimSpace(q.Notes) == "" {
		return "N/A"
	}
	return q.Notes
}

// Notified reports whether the operator notification was delivered.
func (q Quotation) Notified() bool {
	return q.NotifiedAt != nil
}

// FirstProductID returns the product of the first line, zero when empty.
func (q Quotation) FirstProductID() int64 {
	if len(q.Lines) == 0 {
		return 0
	}
	return q.Lines[0].ProductID
}

func sumLines(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.LineTotal())
	}
	return total
}

// ListFilter narrows order management listings.
type ListFilter struct {
	Status *Status
	Search string
	Limit  int
	Offset int
}
