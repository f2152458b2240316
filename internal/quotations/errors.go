package quotations

import (
	"fmt"

	"github.com/sisl-bd/eshop/internal/shared"
)

var (
	// ErrNotFound is returned when a quotation or line does not exist.
	ErrNotFound = fmt.Errorf("quotations: %w", shared.ErrNotFound)
	// ErrProductNotFound is returned when a line references an unknown product.
	ErrProductNotFound = fmt.Errorf("quotations: product %w", shared.ErrNotFound)
	// ErrOrderNumberConflict is returned when the derived order number is taken.
	ErrOrderNumberConflict = fmt.Errorf("quotations: order number %w", shared.ErrDuplicate)
	// ErrCustomerRequired is returned when a submission has no customer.
	ErrCustomerRequired = fmt.Errorf("quotations: customer identity required: %w", shared.ErrValidation)
	// ErrNoLines is returned when a submission has no lines.
	ErrNoLines = fmt.Errorf("quotations: at least one line required: %w", shared.ErrValidation)
	// ErrInvalidStatus is returned for unknown status codes.
	ErrInvalidStatus = fmt.Errorf("quotations: invalid status: %w", shared.ErrValidation)
)
