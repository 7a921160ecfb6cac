package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service provides business logic for stock movements. Automation-driven
// postings (sale deductions, refund restocks) come from the engine;
// manual adjustments come through PostAdjustment.
type Service struct {
	transactions Repository
}

func NewService(r Repository) *Service {
	return &Service{transactions: r}
}

// PostAdjustment records a manual stock correction.
func (s *Service) PostAdjustment(ctx context.Context, sku string, quantity int, actorID string) (*Transaction, error) {
	if sku == "" {
		return nil, fmt.Errorf("sku is required")
	}
	if quantity == 0 {
		return nil, fmt.Errorf("quantity must not be zero")
	}
	if actorID == "" {
		return nil, fmt.Errorf("actor identity is required")
	}
	t := &Transaction{
		SKU:        sku,
		Type:       TypeAdjustment,
		Quantity:   quantity,
		CreatedBy:  actorID,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.transactions.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	return s.transactions.GetByID(ctx, id)
}

func (s *Service) ListByReceipt(ctx context.Context, receiptID uuid.UUID) ([]*Transaction, error) {
	return s.transactions.ListByReceipt(ctx, receiptID)
}

func (s *Service) ListBySKU(ctx context.Context, sku string, limit, offset int) ([]*Transaction, int, error) {
	return s.transactions.ListBySKU(ctx, sku, limit, offset)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Transaction, int, error) {
	return s.transactions.List(ctx, limit, offset)
}

// OnHand returns the current stock level for a SKU.
func (s *Service) OnHand(ctx context.Context, sku string) (int, error) {
	if sku == "" {
		return 0, fmt.Errorf("sku is required")
	}
	return s.transactions.OnHand(ctx, sku)
}
