package quotations

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/sisl-bd/eshop/internal/catalog"
	"github.com/sisl-bd/eshop/internal/shared"
)

// ProductReader resolves the products referenced by quotation lines.
type ProductReader interface {
	GetProduct(ctx context.Context, id int64) (catalog.Product, error)
}

// Service implements the quotation lifecycle.
type Service struct {
	repo     Repository
	products ProductReader
	validate *validator.Validate
	now      func() time.Time
}

// NewService constructs the quotation service.
func NewService(repo Repository, products ProductReader) *Service {
	return &Service{repo: repo, products: products, validate: shared.NewValidator(), now: time.Now}
}

// WithClock replaces the clock used for order numbers and timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ============================================================================
// SUBMISSION
// ============================================================================

// Submit validates a discount request and persists the header, its lines
// and the computed total in one transaction.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Quotation, error) {
	if req.CustomerID <= 0 {
		return nil, ErrCustomerRequired
	}
	if len(req.Lines) == 0 {
		return nil, ErrNoLines
	}
	if err := validateSubmit(s.validate, req); err != nil {
		return nil, err
	}

	lines := make([]Line, len(req.Lines))
	unknown := shared.ValidationErrors{}
	for i, in := range req.Lines {
		product, err := s.products.GetProduct(ctx, in.ProductID)
		if errors.Is(err, shared.ErrNotFound) {
			unknown.Add(fmt.Sprintf("lines[%d].product_id", i), msgInvalidChoice)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve product %d: %w", in.ProductID, err)
		}
		line := lineFromInput(in)
		line.ProductName = product.Name
		line.ProductSKU = product.SKU
		line.Position = i + 1
		lines[i] = line
	}
	if err := unknown.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	customerID := req.CustomerID
	q := &Quotation{
		CustomerID:  &customerID,
		CreatedAt:   now,
		Notes:       strings.TrimSpace(req.Notes),
		OrderNumber: OrderNumber(now),
		Status:      StatusPending,
	}
	q.Subject = Subject(q.OrderNumber, now)

	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.Create(ctx, q); err != nil {
			return err
		}
		for i := range lines {
			lines[i].QuotationID = q.ID
			err := repo.InsertLine(ctx, &lines[i])
			if errors.Is(err, ErrProductNotFound) {
				return invalidProduct(fmt.Sprintf("lines[%d].", i))
			}
			if err != nil {
				return err
			}
		}
		return repo.UpdateTotal(ctx, q.ID, sumLines(lines))
	})
	if err != nil {
		return nil, fmt.Errorf("submit quotation: %w", err)
	}
	return s.repo.Get(ctx, q.ID)
}

// ============================================================================
// QUERIES
// ============================================================================

// Get returns a quotation with its lines.
func (s *Service) Get(ctx context.Context, id int64) (*Quotation, error) {
	if id <= 0 {
		return nil, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// List returns quotations newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Quotation, int, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	return s.repo.List(ctx, filter)
}

// ============================================================================
// STAFF OPERATIONS
// ============================================================================

// UpdateStatus moves a quotation to any status and records the change.
func (s *Service) UpdateStatus(ctx context.Context, actorID, id int64, status Status) (*Quotation, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("status %q: %w", status, ErrInvalidStatus)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		current, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if current.Status == status {
			return nil
		}
		if err := repo.UpdateStatus(ctx, id, status); err != nil {
			return err
		}
		return repo.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   shared.AuditQuotationStatus,
			Entity:   "quotation",
			EntityID: strconv.FormatInt(id, 10),
			Meta:     map[string]any{"from": string(current.Status), "to": string(status), "order_number": current.OrderNumber},
			At:       s.now(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("update quotation status: %w", err)
	}
	return s.repo.Get(ctx, id)
}

// UpdateNotes replaces the quotation notes.
func (s *Service) UpdateNotes(ctx context.Context, id int64, notes string) error {
	notes = strings.TrimSpace(notes)
	if len(notes) > 5000 {
		return shared.ValidationErrors{"notes": "Ensure this value has at most 5000 characters."}
	}
	return s.repo.UpdateNotes(ctx, id, notes)
}

// RecomputeTotal recalculates and stores the total from the current lines.
func (s *Service) RecomputeTotal(ctx context.Context, id int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		total, err = recompute(ctx, repo, id)
		return err
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("recompute total: %w", err)
	}
	return total, nil
}

// AddLine appends a line and recomputes the total.
func (s *Service) AddLine(ctx context.Context, quotationID int64, in LineInput) (*Quotation, error) {
	if err := validateLine(s.validate, in); err != nil {
		return nil, err
	}
	err := s.mutateLines(ctx, quotationID, func(ctx context.Context, repo Repository) error {
		line := lineFromInput(in)
		line.QuotationID = quotationID
		return productChoice(repo.InsertLine(ctx, &line))
	})
	if err != nil {
		return nil, fmt.Errorf("add quotation line: %w", err)
	}
	return s.repo.Get(ctx, quotationID)
}

// UpdateLine edits a line and recomputes the total.
func (s *Service) UpdateLine(ctx context.Context, quotationID, lineID int64, in LineInput) (*Quotation, error) {
	if err := validateLine(s.validate, in); err != nil {
		return nil, err
	}
	err := s.mutateLines(ctx, quotationID, func(ctx context.Context, repo Repository) error {
		line := lineFromInput(in)
		line.ID = lineID
		line.QuotationID = quotationID
		return productChoice(repo.UpdateLine(ctx, line))
	})
	if err != nil {
		return nil, fmt.Errorf("update quotation line: %w", err)
	}
	return s.repo.Get(ctx, quotationID)
}

// DeleteLine removes a line and recomputes the total. The last line of a
// quotation cannot be removed.
func (s *Service) DeleteLine(ctx context.Context, quotationID, lineID int64) (*Quotation, error) {
	err := s.mutateLines(ctx, quotationID, func(ctx context.Context, repo Repository) error {
		lines, err := repo.ListLines(ctx, quotationID)
		if err != nil {
			return err
		}
		if len(lines) <= 1 {
			return shared.ValidationErrors{"lines": "A quotation needs at least one line."}
		}
		return repo.DeleteLine(ctx, quotationID, lineID)
	})
	if err != nil {
		return nil, fmt.Errorf("delete quotation line: %w", err)
	}
	return s.repo.Get(ctx, quotationID)
}

// Delete removes a quotation and its lines.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		current, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := repo.Delete(ctx, id); err != nil {
			return err
		}
		return repo.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   shared.AuditQuotationDelete,
			Entity:   "quotation",
			EntityID: strconv.FormatInt(id, 10),
			Meta:     map[string]any{"order_number": current.OrderNumber, "total": current.TotalAmount.StringFixed(2)},
			At:       s.now(),
		})
	})
	if err != nil {
		return fmt.Errorf("delete quotation: %w", err)
	}
	return nil
}

// SetDocument records the generated PDF file name.
func (s *Service) SetDocument(ctx context.Context, id int64, name string) error {
	return s.repo.SetDocument(ctx, id, name)
}

// MarkNotified records the successful operator notification.
func (s *Service) MarkNotified(ctx context.Context, id int64) error {
	return s.repo.MarkNotified(ctx, id, s.now())
}

func (s *Service) mutateLines(ctx context.Context, quotationID int64, fn func(context.Context, Repository) error) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.Lock(ctx, quotationID); err != nil {
			return err
		}
		if err := fn(ctx, repo); err != nil {
			return err
		}
		_, err := recompute(ctx, repo, quotationID)
		return err
	})
}

func productChoice(err error) error {
	if errors.Is(err, ErrProductNotFound) {
		return invalidProduct("")
	}
	return err
}

func recompute(ctx context.Context, repo Repository, id int64) (decimal.Decimal, error) {
	lines, err := repo.ListLines(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	total := sumLines(lines)
	if total.GreaterThanOrEqual(maxTotal) {
		return decimal.Zero, shared.ValidationErrors{"__all__": msgTotalTooLarge}
	}
	if err := repo.UpdateTotal(ctx, id, total); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}
