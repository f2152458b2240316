package catalog

import (
	"fmt"

	"github.com/sisl-bd/eshop/internal/shared"
)

var (
	// ErrNotFound is returned when a catalog record does not exist.
	ErrNotFound = fmt.Errorf("catalog: %w", shared.ErrNotFound)
	// ErrDuplicate is returned when a unique name or SKU is already taken.
	ErrDuplicate = fmt.Errorf("catalog: %w", shared.ErrDuplicate)
)

// ConflictError carries a user-facing message for a uniqueness conflict.
type ConflictError struct {
	Field   string
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// Unwrap lets errors.Is match ErrDuplicate.
func (e *ConflictError) Unwrap() error { return ErrDuplicate }

func nameTaken(name string) error {
	return &ConflictError{Field: "name", Message: fmt.Sprintf("A product with Model Name '%s' already exists.", name)}
}

func skuTaken(sku string) error {
	return &ConflictError{Field: "sku", Message: fmt.Sprintf("A product with SKU '%s' already exists.", sku)}
}
