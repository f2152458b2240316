package quotations

import (
	"fmt"
	"time"
)

const (
	orderNumberPrefix = "ORD"
	orderNumberLayout = "20060102150405"
)

// OrderNumber derives the order number from the submission time.
func OrderNumber(at time.Time) string {
	return orderNumberPrefix + at.Format(orderNumberLayout)
}

// Subject builds the quotation subject line.
func Subject(orderNumber string, at time.Time) string {
	return fmt.Sprintf("Discount Request for order no: %s on %s", orderNumber, at.Format(time.DateOnly))
}
