package checkout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrIncompleteProfile   = errors.New("incomplete shipping profile")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrOrderCreationFailed = errors.New("order creation failed")
	ErrTimeout             = errors.New("request timed out")
	ErrValidation          = errors.New("validation error")

	// ErrCommitOutcomeUnknown is returned by Store.WithTx when the commit
	// itself failed, so the transaction may or may not be durable.
	ErrCommitOutcomeUnknown = errors.New("commit outcome unknown")
)

// Shortage is one cart line that asks for more than the product has.
type Shortage struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name,omitempty"`
	Requested   int       `json:"requested"`
	Available   int       `json:"available"`
}

// InsufficientStockError lists every offending line, not only the first.
type InsufficientStockError struct {
	Shortages []Shortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		name := s.ProductName
		if name == "" {
			name = s.ProductID.String()
		}
		parts = append(parts, fmt.Sprintf("%s (requested %d, available %d)", name, s.Requested, s.Available))
	}
	return "insufficient stock: " + strings.Join(parts, ", ")
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

type IncompleteProfileError struct {
	Missing []string
}

func (e *IncompleteProfileError) Error() string {
	return "incomplete shipping profile: missing " + strings.Join(e.Missing, ", ")
}

func (e *IncompleteProfileError) Is(target error) bool {
	return target == ErrIncompleteProfile
}

// ValidationError is a field-local input problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
