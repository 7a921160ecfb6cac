package receipt

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
)

// =========== Mock Repository ===========

type mockReceiptRepo struct {
	store map[uuid.UUID]*Receipt
}

func newMockReceiptRepo() *mockReceiptRepo {
	return &mockReceiptRepo{store: make(map[uuid.UUID]*Receipt)}
}

func (m *mockReceiptRepo) Create(_ context.Context, rc *Receipt) error {
	rc.ID = uuid.New()
	for i, li := range rc.LineItems {
		li.ID = uuid.New()
		li.ReceiptID = rc.ID
		li.Sequence = i
	}
	m.store[rc.ID] = rc
	return nil
}

func (m *mockReceiptRepo) GetByID(_ context.Context, id uuid.UUID) (*Receipt, error) {
	rc, ok := m.store[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return rc, nil
}

func (m *mockReceiptRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Receipt, error) {
	return m.GetByID(ctx, id)
}

func (m *mockReceiptRepo) GetByEncounter(_ context.Context, encounterID string) (*Receipt, error) {
	for _, rc := range m.store {
		if rc.EncounterID == encounterID {
			return rc, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockReceiptRepo) Update(_ context.Context, rc *Receipt) error {
	if _, ok := m.store[rc.ID]; !ok {
		return fmt.Errorf("not found")
	}
	m.store[rc.ID] = rc
	return nil
}

func (m *mockReceiptRepo) List(_ context.Context, limit, offset int) ([]*Receipt, int, error) {
	var result []*Receipt
	for _, rc := range m.store {
		result = append(result, rc)
	}
	return result, len(result), nil
}

func (m *mockReceiptRepo) Search(_ context.Context, params map[string]string, limit, offset int) ([]*Receipt, int, error) {
	var result []*Receipt
	for _, rc := range m.store {
		if p, ok := params["patient"]; ok && rc.PatientID != p {
			continue
		}
		if s, ok := params["status"]; ok && string(rc.Status) != s {
			continue
		}
		result = append(result, rc)
	}
	return result, len(result), nil
}

// =========== Helper ===========

func newTestService() *Service {
	return NewService(newMockReceiptRepo())
}

func validDraft() *Receipt {
	return &Receipt{
		PatientID:   "pat-1",
		EncounterID: "enc-1",
		LineItems: []*LineItem{
			{Description: "office visit", Quantity: 1, UnitPrice: 50, Category: "consultation"},
			{Description: "vaccine vial", Quantity: 1, UnitPrice: 100, Category: "pharmacy", SKU: strPtr("V1")},
		},
	}
}

// =========== Tests ===========

func TestCreateDraft_Success(t *testing.T) {
	svc := newTestService()
	rc := validDraft()
	if err := svc.CreateDraft(context.Background(), rc, "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rc.Status != StatusDraft {
		t.Errorf("expected status draft, got %s", rc.Status)
	}
	if rc.Total != 150 {
		t.Errorf("expected computed total 150, got %v", rc.Total)
	}
	if rc.CreatedBy != "user-1" {
		t.Errorf("expected created_by user-1, got %q", rc.CreatedBy)
	}
	if rc.ID == uuid.Nil {
		t.Error("expected assigned id")
	}
}

func TestCreateDraft_OverridesClientTotals(t *testing.T) {
	svc := newTestService()
	rc := validDraft()
	rc.Total = 1
	rc.AmountCollected = 999
	if err := svc.CreateDraft(context.Background(), rc, "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rc.Total != 150 {
		t.Errorf("expected recomputed total 150, got %v", rc.Total)
	}
	if rc.AmountCollected != 0 {
		t.Errorf("expected amount_collected reset to 0, got %v", rc.AmountCollected)
	}
}

func TestCreateDraft_RequiresActor(t *testing.T) {
	svc := newTestService()
	if err := svc.CreateDraft(context.Background(), validDraft(), ""); err == nil {
		t.Error("expected error for missing actor")
	}
}

func TestCreateDraft_RequiresPatient(t *testing.T) {
	svc := newTestService()
	rc := validDraft()
	rc.PatientID = ""
	if err := svc.CreateDraft(context.Background(), rc, "user-1"); err == nil {
		t.Error("expected error for missing patient")
	}
}

func TestCreateDraft_RequiresLineItems(t *testing.T) {
	svc := newTestService()
	rc := validDraft()
	rc.LineItems = nil
	if err := svc.CreateDraft(context.Background(), rc, "user-1"); err == nil {
		t.Error("expected error for empty line items")
	}
}

func TestCreateDraft_RejectsBadLineItems(t *testing.T) {
	svc := newTestService()

	rc := validDraft()
	rc.LineItems[0].Quantity = 0
	if err := svc.CreateDraft(context.Background(), rc, "user-1"); err == nil {
		t.Error("expected error for zero quantity")
	}

	rc = validDraft()
	rc.LineItems[1].UnitPrice = -5
	if err := svc.CreateDraft(context.Background(), rc, "user-1"); err == nil {
		t.Error("expected error for negative unit price")
	}

	rc = validDraft()
	rc.LineItems[0].Description = ""
	if err := svc.CreateDraft(context.Background(), rc, "user-1"); err == nil {
		t.Error("expected error for missing description")
	}
}

func TestCreateDraft_RejectsNegativeTotal(t *testing.T) {
	svc := newTestService()
	rc := validDraft()
	rc.Discount = 500
	if err := svc.CreateDraft(context.Background(), rc, "user-1"); err == nil {
		t.Error("expected error when discount drives total negative")
	}
}

func TestGetByEncounter(t *testing.T) {
	svc := newTestService()
	rc := validDraft()
	if err := svc.CreateDraft(context.Background(), rc, "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found, err := svc.GetByEncounter(context.Background(), "enc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found.ID != rc.ID {
		t.Errorf("expected receipt %s, got %s", rc.ID, found.ID)
	}

	if _, err := svc.GetByEncounter(context.Background(), "enc-unknown"); err == nil {
		t.Error("expected error for unknown encounter")
	}
}

func TestSearch_FiltersByStatus(t *testing.T) {
	svc := newTestService()
	rc := validDraft()
	if err := svc.CreateDraft(context.Background(), rc, "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items, total, err := svc.Search(context.Background(), map[string]string{"status": "draft"}, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Errorf("expected 1 draft receipt, got %d", total)
	}

	items, total, _ = svc.Search(context.Background(), map[string]string{"status": "paid"}, 10, 0)
	if total != 0 || len(items) != 0 {
		t.Errorf("expected no paid receipts, got %d", total)
	}
}
