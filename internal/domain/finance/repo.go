package finance

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CategorySum is one rollup row produced by SumByCategory.
type CategorySum struct {
	Type     TransactionType `json:"type"`
	Category string          `json:"category"`
	Total    float64         `json:"total"`
	Count    int             `json:"count"`
}

// Repository defines storage for financial transactions. The ledger is
// append-only: no update or delete.
type Repository interface {
	Create(ctx context.Context, t *Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	ListByReceipt(ctx context.Context, receiptID uuid.UUID) ([]*Transaction, error)
	List(ctx context.Context, limit, offset int) ([]*Transaction, int, error)
	// SumByCategory rolls up entries whose occurred_at falls within
	// [from, to), grouped by type and category.
	SumByCategory(ctx context.Context, from, to time.Time) ([]CategorySum, error)
}
