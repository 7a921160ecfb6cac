package inventory

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines storage for inventory transactions. There is no
// update or delete: stock history is append-only.
type Repository interface {
	Create(ctx context.Context, t *Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	ListByReceipt(ctx context.Context, receiptID uuid.UUID) ([]*Transaction, error)
	ListBySKU(ctx context.Context, sku string, limit, offset int) ([]*Transaction, int, error)
	List(ctx context.Context, limit, offset int) ([]*Transaction, int, error)
	// OnHand returns the signed sum of all quantities for the SKU.
	OnHand(ctx context.Context, sku string) (int, error)
}
