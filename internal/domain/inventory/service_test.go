package inventory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

// =========== Mock Repository ===========

type mockInventoryRepo struct {
	store []*Transaction
}

func newMockInventoryRepo() *mockInventoryRepo {
	return &mockInventoryRepo{}
}

func (m *mockInventoryRepo) Create(_ context.Context, t *Transaction) error {
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	m.store = append(m.store, t)
	return nil
}

func (m *mockInventoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Transaction, error) {
	for _, t := range m.store {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockInventoryRepo) ListByReceipt(_ context.Context, receiptID uuid.UUID) ([]*Transaction, error) {
	var result []*Transaction
	for _, t := range m.store {
		if t.ReceiptID != nil && *t.ReceiptID == receiptID {
			result = append(result, t)
		}
	}
	return result, nil
}

func (m *mockInventoryRepo) ListBySKU(_ context.Context, sku string, limit, offset int) ([]*Transaction, int, error) {
	var result []*Transaction
	for _, t := range m.store {
		if t.SKU == sku {
			result = append(result, t)
		}
	}
	return result, len(result), nil
}

func (m *mockInventoryRepo) List(_ context.Context, limit, offset int) ([]*Transaction, int, error) {
	return m.store, len(m.store), nil
}

func (m *mockInventoryRepo) OnHand(_ context.Context, sku string) (int, error) {
	sum := 0
	for _, t := range m.store {
		if t.SKU == sku {
			sum += t.Quantity
		}
	}
	return sum, nil
}

// =========== Tests ===========

func TestPostAdjustment_Success(t *testing.T) {
	svc := NewService(newMockInventoryRepo())
	tx, err := svc.PostAdjustment(context.Background(), "V1", 10, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.Type != TypeAdjustment {
		t.Errorf("expected adjustment type, got %s", tx.Type)
	}
	if tx.CreatedBy != "user-1" {
		t.Errorf("expected created_by user-1, got %q", tx.CreatedBy)
	}
	if tx.OccurredAt.IsZero() {
		t.Error("expected occurred_at to be set")
	}
}

func TestPostAdjustment_Validation(t *testing.T) {
	svc := NewService(newMockInventoryRepo())

	if _, err := svc.PostAdjustment(context.Background(), "", 5, "user-1"); err == nil {
		t.Error("expected error for missing sku")
	}
	if _, err := svc.PostAdjustment(context.Background(), "V1", 0, "user-1"); err == nil {
		t.Error("expected error for zero quantity")
	}
	if _, err := svc.PostAdjustment(context.Background(), "V1", 5, ""); err == nil {
		t.Error("expected error for missing actor")
	}
}

func TestOnHand_SumsSignedQuantities(t *testing.T) {
	repo := newMockInventoryRepo()
	svc := NewService(repo)

	if _, err := svc.PostAdjustment(context.Background(), "V1", 10, "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Simulate a sale deduction and a refund restock.
	rid := uuid.New()
	repo.Create(context.Background(), &Transaction{SKU: "V1", Type: TypeOut, Quantity: -3, ReceiptID: &rid, CreatedBy: "user-1", OccurredAt: time.Now()})
	repo.Create(context.Background(), &Transaction{SKU: "V1", Type: TypeIn, Quantity: 1, ReceiptID: &rid, CreatedBy: "user-1", OccurredAt: time.Now()})

	onHand, err := svc.OnHand(context.Background(), "V1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if onHand != 8 {
		t.Errorf("expected on-hand 8, got %d", onHand)
	}

	other, _ := svc.OnHand(context.Background(), "V2")
	if other != 0 {
		t.Errorf("expected on-hand 0 for unknown sku, got %d", other)
	}
}

func TestOnHand_RequiresSKU(t *testing.T) {
	svc := NewService(newMockInventoryRepo())
	if _, err := svc.OnHand(context.Background(), ""); err == nil {
		t.Error("expected error for empty sku")
	}
}

func TestListByReceipt(t *testing.T) {
	repo := newMockInventoryRepo()
	svc := NewService(repo)

	rid := uuid.New()
	other := uuid.New()
	repo.Create(context.Background(), &Transaction{SKU: "V1", Type: TypeOut, Quantity: -1, ReceiptID: &rid})
	repo.Create(context.Background(), &Transaction{SKU: "V2", Type: TypeOut, Quantity: -2, ReceiptID: &other})

	items, err := svc.ListByReceipt(context.Background(), rid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].SKU != "V1" {
		t.Errorf("expected only the V1 posting for receipt, got %+v", items)
	}
}
