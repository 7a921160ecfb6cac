package finance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CategoryLine is one row of a reconciliation report.
type CategoryLine struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
	Count    int     `json:"count"`
}

// Report is a financial rollup over a window, grouped by category and
// bucketed by occurred_at.
type Report struct {
	From         time.Time      `json:"from"`
	To           time.Time      `json:"to"`
	Income       []CategoryLine `json:"income"`
	Expense      []CategoryLine `json:"expense"`
	TotalIncome  float64        `json:"total_income"`
	TotalExpense float64        `json:"total_expense"`
	Net          float64        `json:"net"`
}

type Service struct {
	transactions Repository
}

func NewService(r Repository) *Service {
	return &Service{transactions: r}
}

// Report builds a reconciliation rollup for [from, to).
func (s *Service) Report(ctx context.Context, from, to time.Time) (*Report, error) {
	if from.IsZero() || to.IsZero() {
		return nil, fmt.Errorf("from and to are required")
	}
	if !to.After(from) {
		return nil, fmt.Errorf("to must be after from")
	}
	sums, err := s.transactions.SumByCategory(ctx, from, to)
	if err != nil {
		return nil, err
	}
	report := &Report{From: from, To: to}
	for _, sum := range sums {
		line := CategoryLine{Category: sum.Category, Total: sum.Total, Count: sum.Count}
		switch sum.Type {
		case TypeIncome:
			report.Income = append(report.Income, line)
			report.TotalIncome += sum.Total
		case TypeExpense:
			report.Expense = append(report.Expense, line)
			report.TotalExpense += sum.Total
		}
	}
	report.Net = report.TotalIncome - report.TotalExpense
	return report, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	return s.transactions.GetByID(ctx, id)
}

func (s *Service) ListByReceipt(ctx context.Context, receiptID uuid.UUID) ([]*Transaction, error) {
	return s.transactions.ListByReceipt(ctx, receiptID)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Transaction, int, error) {
	return s.transactions.List(ctx, limit, offset)
}
