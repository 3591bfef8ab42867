// Package report aggregates approved expense sheets for administrators.
package report

import (
	"context"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/ndf/core/expense"
	"github.com/kilianp07/ndf/core/model"
)

// Query bounds a summary. To is exclusive. An empty DepartmentID selects
// every department.
type Query struct {
	From         time.Time
	To           time.Time
	DepartmentID string
}

// Row aggregates the approved sheets of one department for one month.
// Median is the lower median for an even count.
type Row struct {
	DepartmentID   string  `json:"department_id"`
	DepartmentCode string  `json:"department_code"`
	Month          string  `json:"month"`
	Count          int     `json:"count"`
	Total          float64 `json:"total"`
	Mean           float64 `json:"mean"`
	Median         float64 `json:"median"`
	P90            float64 `json:"p90"`
}

// Summary is the result of Service.Summary.
type Summary struct {
	From  time.Time `json:"from"`
	To    time.Time `json:"to"`
	Rows  []Row     `json:"rows"`
	Count int       `json:"count"`
	Total float64   `json:"total"`
}

// Departments resolves department codes.
type Departments interface {
	ListDepartments(ctx context.Context) ([]model.Department, error)
}

// Sheets lists sheets.
type Sheets interface {
	ListSheets(ctx context.Context, f expense.SheetFilter) ([]model.ExpenseSheet, error)
}

type Service struct {
	sheets Sheets
	depts  Departments
}

func NewService(sheets Sheets, depts Departments) *Service {
	return &Service{sheets: sheets, depts: depts}
}

// Approved lists the approved sheets matching q. Admins only.
func (s *Service) Approved(ctx context.Context, actor model.User, q Query) ([]model.ExpenseSheet, error) {
	if !actor.IsAdmin() {
		return nil, model.ErrForbidden
	}
	if !q.From.IsZero() && !q.To.IsZero() && !q.To.After(q.From) {
		return nil, model.Invalidf("to must be after from")
	}
	f := expense.SheetFilter{Status: model.StatusApproved, CreatedFrom: q.From, CreatedTo: q.To}
	if q.DepartmentID != "" {
		f.DepartmentIDs = []string{q.DepartmentID}
	}
	return s.sheets.ListSheets(ctx, f)
}

// Summary groups approved sheets by department and creation month.
func (s *Service) Summary(ctx context.Context, actor model.User, q Query) (Summary, error) {
	sheets, err := s.Approved(ctx, actor, q)
	if err != nil {
		return Summary{}, err
	}
	depts, err := s.depts.ListDepartments(ctx)
	if err != nil {
		return Summary{}, err
	}
	codes := make(map[string]string, len(depts))
	for _, d := range depts {
		codes[d.ID] = d.Code
	}
	out := Summary{From: q.From, To: q.To, Rows: Aggregate(sheets)}
	for i := range out.Rows {
		out.Rows[i].DepartmentCode = codes[out.Rows[i].DepartmentID]
		out.Count += out.Rows[i].Count
		out.Total += out.Rows[i].Total
	}
	out.Total = expense.RoundCents(out.Total)
	return out, nil
}

type groupKey struct {
	dept  string
	month string
}

// Aggregate computes one row per department and month, ordered by month
// then department.
func Aggregate(sheets []model.ExpenseSheet) []Row {
	groups := make(map[groupKey][]float64)
	for _, s := range sheets {
		k := groupKey{dept: s.DepartmentID, month: s.CreatedAt.UTC().Format("2006-01")}
		groups[k] = append(groups[k], s.Total)
	}
	rows := make([]Row, 0, len(groups))
	for k, totals := range groups {
		sort.Float64s(totals)
		var sum float64
		for _, v := range totals {
			sum += v
		}
		rows = append(rows, Row{
			DepartmentID: k.dept,
			Month:        k.month,
			Count:        len(totals),
			Total:        expense.RoundCents(sum),
			Mean:         expense.RoundCents(stat.Mean(totals, nil)),
			Median:       stat.Quantile(0.5, stat.Empirical, totals, nil),
			P90:          stat.Quantile(0.9, stat.Empirical, totals, nil),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Month != rows[j].Month {
			return rows[i].Month < rows[j].Month
		}
		return rows[i].DepartmentID < rows[j].DepartmentID
	})
	return rows
}
