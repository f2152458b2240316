package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sisl-bd/eshop/internal/catalog"
	"github.com/sisl-bd/eshop/internal/quotations"
)

// ErrNoRecipient reports a dispatcher without an operator address.
var ErrNoRecipient = errors.New("notify: operator recipient not configured")

// Dispatcher mails submitted quotations to the operator.
type Dispatcher struct {
	sender    Sender
	from      string
	recipient string
	logger    *slog.Logger
}

// NewDispatcher wires the sender to the configured operator address.
func NewDispatcher(sender Sender, cfg Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	recipient := strings.TrimSpace(cfg.Recipient)
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = recipient
	}
	return &Dispatcher{sender: sender, from: from, recipient: recipient, logger: logger}
}

// Subject is the mail subject for a discount request on product.
func Subject(productName string) string {
	return fmt.Sprintf("Discount request for %s", productName)
}

// Body is the plain-text mail body for q.
func Body(q *quotations.Quotation) string {
	return fmt.Sprintf("User %s requested a multi-line discount.\nQuotation ID: %d\n\nPlease find the attached PDF for full details.",
		q.Customer(), q.ID)
}

// Notify sends the quotation document to the operator. Transport errors are
// returned to the caller.
func (d *Dispatcher) Notify(ctx context.Context, q *quotations.Quotation, product catalog.Product, documentPath string) error {
	if d.recipient == "" {
		return ErrNoRecipient
	}
	if q == nil {
		return fmt.Errorf("notify: quotation required")
	}
	msg := Message{
		From:    d.from,
		To:      []string{d.recipient},
		Subject: Subject(product.Name),
		Body:    Body(q),
	}
	if documentPath != "" {
		msg.Attachments = []string{documentPath}
	}
	if err := d.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify quotation %d: %w", q.ID, err)
	}
	d.logger.Info("quotation notification sent",
		slog.Int64("quotation_id", q.ID),
		slog.String("order_number", q.OrderNumber),
		slog.String("recipient", d.recipient))
	return nil
}
