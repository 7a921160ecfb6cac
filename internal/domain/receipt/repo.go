package receipt

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines storage operations for receipts and their line
// items. Line items are written once with the receipt and read back with
// it; they are never edited individually.
type Repository interface {
	Create(ctx context.Context, r *Receipt) error
	GetByID(ctx context.Context, id uuid.UUID) (*Receipt, error)
	// GetForUpdate loads the receipt and takes a row lock so that
	// concurrent payment attempts against the same receipt serialize.
	// Must be called inside a transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Receipt, error)
	GetByEncounter(ctx context.Context, encounterID string) (*Receipt, error)
	Update(ctx context.Context, r *Receipt) error
	List(ctx context.Context, limit, offset int) ([]*Receipt, int, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Receipt, int, error)
}
