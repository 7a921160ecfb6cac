package finance

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

// =========== Mock Repository ===========

type mockFinanceRepo struct {
	store []*Transaction
}

func newMockFinanceRepo() *mockFinanceRepo {
	return &mockFinanceRepo{}
}

func (m *mockFinanceRepo) Create(_ context.Context, t *Transaction) error {
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	m.store = append(m.store, t)
	return nil
}

func (m *mockFinanceRepo) GetByID(_ context.Context, id uuid.UUID) (*Transaction, error) {
	for _, t := range m.store {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockFinanceRepo) ListByReceipt(_ context.Context, receiptID uuid.UUID) ([]*Transaction, error) {
	var result []*Transaction
	for _, t := range m.store {
		if t.ReceiptID != nil && *t.ReceiptID == receiptID {
			result = append(result, t)
		}
	}
	return result, nil
}

func (m *mockFinanceRepo) List(_ context.Context, limit, offset int) ([]*Transaction, int, error) {
	return m.store, len(m.store), nil
}

func (m *mockFinanceRepo) SumByCategory(_ context.Context, from, to time.Time) ([]CategorySum, error) {
	type key struct {
		typ      TransactionType
		category string
	}
	grouped := map[key]*CategorySum{}
	var order []key
	for _, t := range m.store {
		if t.OccurredAt.Before(from) || !t.OccurredAt.Before(to) {
			continue
		}
		k := key{t.Type, t.Category}
		s, ok := grouped[k]
		if !ok {
			s = &CategorySum{Type: t.Type, Category: t.Category}
			grouped[k] = s
			order = append(order, k)
		}
		s.Total += t.Amount
		s.Count++
	}
	var sums []CategorySum
	for _, k := range order {
		sums = append(sums, *grouped[k])
	}
	return sums, nil
}

// =========== Tests ===========

func day(d int) time.Time {
	return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC)
}

func TestReport_RollsUpByCategory(t *testing.T) {
	repo := newMockFinanceRepo()
	svc := NewService(repo)

	ctx := context.Background()
	repo.Create(ctx, &Transaction{Type: TypeIncome, Amount: 50, Category: "consultation", OccurredAt: day(1)})
	repo.Create(ctx, &Transaction{Type: TypeIncome, Amount: 100, Category: "consultation", OccurredAt: day(2)})
	repo.Create(ctx, &Transaction{Type: TypeIncome, Amount: 200, Category: "pharmacy", OccurredAt: day(3)})
	repo.Create(ctx, &Transaction{Type: TypeExpense, Amount: 40, Category: "refund", OccurredAt: day(3)})

	report, err := svc.Report(ctx, day(1), day(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.TotalIncome != 350 {
		t.Errorf("expected total income 350, got %.2f", report.TotalIncome)
	}
	if report.TotalExpense != 40 {
		t.Errorf("expected total expense 40, got %.2f", report.TotalExpense)
	}
	if report.Net != 310 {
		t.Errorf("expected net 310, got %.2f", report.Net)
	}
	if len(report.Income) != 2 {
		t.Fatalf("expected 2 income categories, got %d", len(report.Income))
	}
	for _, line := range report.Income {
		if line.Category == "consultation" {
			if line.Total != 150 || line.Count != 2 {
				t.Errorf("consultation: expected total 150 count 2, got %.2f/%d", line.Total, line.Count)
			}
		}
	}
}

func TestReport_BucketsByOccurredAt(t *testing.T) {
	repo := newMockFinanceRepo()
	svc := NewService(repo)

	ctx := context.Background()
	// Backfilled entry: recorded now, occurred in the past.
	repo.Create(ctx, &Transaction{Type: TypeIncome, Amount: 75, Category: "lab", OccurredAt: day(2)})
	repo.Create(ctx, &Transaction{Type: TypeIncome, Amount: 25, Category: "lab", OccurredAt: day(15)})

	report, err := svc.Report(ctx, day(1), day(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.TotalIncome != 75 {
		t.Errorf("expected only the in-window entry, got total %.2f", report.TotalIncome)
	}
}

func TestReport_WindowIsHalfOpen(t *testing.T) {
	repo := newMockFinanceRepo()
	svc := NewService(repo)

	ctx := context.Background()
	repo.Create(ctx, &Transaction{Type: TypeIncome, Amount: 10, Category: "lab", OccurredAt: day(1)})
	repo.Create(ctx, &Transaction{Type: TypeIncome, Amount: 20, Category: "lab", OccurredAt: day(10)})

	report, err := svc.Report(ctx, day(1), day(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.TotalIncome != 10 {
		t.Errorf("expected boundary entry at to to be excluded, got total %.2f", report.TotalIncome)
	}
}

func TestReport_EmptyWindow(t *testing.T) {
	svc := NewService(newMockFinanceRepo())
	report, err := svc.Report(context.Background(), day(1), day(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.TotalIncome != 0 || report.TotalExpense != 0 || report.Net != 0 {
		t.Errorf("expected zero totals, got %+v", report)
	}
	if len(report.Income) != 0 || len(report.Expense) != 0 {
		t.Errorf("expected no category lines, got %+v", report)
	}
}

func TestReport_Validation(t *testing.T) {
	svc := NewService(newMockFinanceRepo())

	if _, err := svc.Report(context.Background(), time.Time{}, day(10)); err == nil {
		t.Error("expected error for zero from")
	}
	if _, err := svc.Report(context.Background(), day(10), day(1)); err == nil {
		t.Error("expected error for inverted window")
	}
	if _, err := svc.Report(context.Background(), day(5), day(5)); err == nil {
		t.Error("expected error for empty window")
	}
}

func TestListByReceipt_FinanceEntries(t *testing.T) {
	repo := newMockFinanceRepo()
	svc := NewService(repo)

	ctx := context.Background()
	rid := uuid.New()
	other := uuid.New()
	repo.Create(ctx, &Transaction{Type: TypeIncome, Amount: 50, Category: "consultation", ReceiptID: &rid, OccurredAt: day(1)})
	repo.Create(ctx, &Transaction{Type: TypeExpense, Amount: 50, Category: "refund", ReceiptID: &rid, OccurredAt: day(2)})
	repo.Create(ctx, &Transaction{Type: TypeIncome, Amount: 10, Category: "lab", ReceiptID: &other, OccurredAt: day(1)})

	items, err := svc.ListByReceipt(ctx, rid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("expected 2 entries for receipt, got %d", len(items))
	}
}
