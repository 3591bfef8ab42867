package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kilianp07/ndf/core/expense"
	"github.com/kilianp07/ndf/core/model"
)

type fakeSheets struct {
	sheets []model.ExpenseSheet
	last   expense.SheetFilter
}

func (f *fakeSheets) ListSheets(_ context.Context, filter expense.SheetFilter) ([]model.ExpenseSheet, error) {
	f.last = filter
	return f.sheets, nil
}

type fakeDepts []model.Department

func (f fakeDepts) ListDepartments(context.Context) ([]model.Department, error) { return f, nil }

func sheet(dept string, month time.Month, total float64) model.ExpenseSheet {
	return model.ExpenseSheet{
		DepartmentID: dept, Status: model.StatusApproved, Total: total,
		CreatedAt: time.Date(2024, month, 10, 9, 0, 0, 0, time.UTC),
	}
}

func TestAggregate(t *testing.T) {
	rows := Aggregate([]model.ExpenseSheet{
		sheet("sales", time.May, 30), sheet("sales", time.May, 10), sheet("sales", time.May, 50),
		sheet("sales", time.May, 20), sheet("sales", time.May, 40),
		sheet("sales", time.June, 12.5),
		sheet("dsf", time.May, 200), sheet("dsf", time.May, 100),
	})
	want := []Row{
		{DepartmentID: "dsf", Month: "2024-05", Count: 2, Total: 300, Mean: 150, Median: 100, P90: 200},
		{DepartmentID: "sales", Month: "2024-05", Count: 5, Total: 150, Mean: 30, Median: 30, P90: 50},
		{DepartmentID: "sales", Month: "2024-06", Count: 1, Total: 12.5, Mean: 12.5, Median: 12.5, P90: 12.5},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestSummary(t *testing.T) {
	fs := &fakeSheets{sheets: []model.ExpenseSheet{sheet("sales", time.May, 10.1), sheet("sales", time.May, 20.2)}}
	svc := NewService(fs, fakeDepts{{ID: "sales", Code: "SAL"}})
	admin := model.User{ID: "a", Role: model.RoleAdmin}
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	sum, err := svc.Summary(context.Background(), admin, Query{From: from, To: to, DepartmentID: "sales"})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Count != 2 || sum.Total != 30.3 {
		t.Fatalf("unexpected totals %d %v", sum.Count, sum.Total)
	}
	if sum.Rows[0].DepartmentCode != "SAL" {
		t.Fatalf("department code not resolved: %+v", sum.Rows[0])
	}
	if fs.last.Status != model.StatusApproved || len(fs.last.DepartmentIDs) != 1 || !fs.last.CreatedTo.Equal(to) {
		t.Fatalf("unexpected filter %+v", fs.last)
	}
}

func TestSummaryRules(t *testing.T) {
	svc := NewService(&fakeSheets{}, fakeDepts{})
	ctx := context.Background()
	if _, err := svc.Summary(ctx, model.User{ID: "e", Role: model.RoleEmployee}, Query{}); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.Summary(ctx, model.User{Role: model.RoleAdmin}, Query{From: day, To: day})
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
