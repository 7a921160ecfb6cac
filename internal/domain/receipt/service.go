package receipt

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Service provides business logic for the receipt domain. Status changes
// are not exposed here: payments, voids, and refunds go through the
// automation engine so their ledger effects stay atomic.
type Service struct {
	receipts Repository
}

func NewService(r Repository) *Service {
	return &Service{receipts: r}
}

// CreateDraft validates and stores a receipt created directly by a
// billing actor. The total is always recomputed from the line items.
func (s *Service) CreateDraft(ctx context.Context, rc *Receipt, actorID string) error {
	if actorID == "" {
		return fmt.Errorf("actor identity is required")
	}
	if rc.PatientID == "" {
		return fmt.Errorf("patient_id is required")
	}
	if len(rc.LineItems) == 0 {
		return fmt.Errorf("at least one line item is required")
	}
	for i, li := range rc.LineItems {
		if li.Description == "" {
			return fmt.Errorf("line item %d: description is required", i)
		}
		if li.Quantity <= 0 {
			return fmt.Errorf("line item %d: quantity must be positive", i)
		}
		if li.UnitPrice < 0 {
			return fmt.Errorf("line item %d: unit price must not be negative", i)
		}
	}
	if rc.Discount < 0 || rc.Tax < 0 {
		return fmt.Errorf("discount and tax must not be negative")
	}

	rc.Status = StatusDraft
	rc.CreatedBy = actorID
	rc.AmountCollected = 0
	rc.AmountRefunded = 0
	rc.Total = rc.ComputeTotal()
	if rc.Total < 0 {
		return fmt.Errorf("total must not be negative")
	}
	return s.receipts.Create(ctx, rc)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Receipt, error) {
	return s.receipts.GetByID(ctx, id)
}

func (s *Service) GetByEncounter(ctx context.Context, encounterID string) (*Receipt, error) {
	return s.receipts.GetByEncounter(ctx, encounterID)
}

func (s *Service) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Receipt, int, error) {
	return s.receipts.Search(ctx, params, limit, offset)
}
