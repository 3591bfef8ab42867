// Package export writes expense sheets as flat cost rows.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/kilianp07/ndf/core/model"
)

// Row is one cost item with the columns of its sheet.
type Row struct {
	SheetID     string  `json:"sheet_id"`
	Status      string  `json:"status"`
	Employee    string  `json:"employee"`
	Department  string  `json:"department"`
	SubmittedAt string  `json:"submitted_at"`
	DecidedAt   string  `json:"decided_at,omitempty"`
	CostID      string  `json:"cost_id"`
	CostType    string  `json:"cost_type"`
	Date        string  `json:"date"`
	Description string  `json:"description,omitempty"`
	Distance    float64 `json:"distance,omitempty"`
	Quantity    float64 `json:"quantity,omitempty"`
	Amount      float64 `json:"amount,omitempty"`
	Rate        float64 `json:"rate"`
	Total       float64 `json:"total"`
}

var header = []string{
	"sheet_id", "status", "employee", "department", "submitted_at", "decided_at",
	"cost_id", "cost_type", "date", "description", "distance", "quantity", "amount", "rate", "total",
}

// Flatten turns sheets into rows. users and depts resolve e-mails and
// department codes; unknown IDs are written as is.
func Flatten(sheets []model.ExpenseSheet, users map[string]model.User, depts map[string]model.Department) []Row {
	var rows []Row
	for _, s := range sheets {
		employee := s.UserID
		if u, ok := users[s.UserID]; ok {
			employee = u.Email
		}
		dept := s.DepartmentID
		if d, ok := depts[s.DepartmentID]; ok {
			dept = d.Code
		}
		var decided string
		if s.DecidedAt != nil {
			decided = s.DecidedAt.UTC().Format(time.RFC3339)
		}
		for _, c := range s.Costs {
			rows = append(rows, Row{
				SheetID:     s.ID,
				Status:      string(s.Status),
				Employee:    employee,
				Department:  dept,
				SubmittedAt: s.CreatedAt.UTC().Format(time.RFC3339),
				DecidedAt:   decided,
				CostID:      c.ID,
				CostType:    string(c.Type),
				Date:        c.Date.String(),
				Description: c.Description,
				Distance:    c.Distance,
				Quantity:    c.Quantity,
				Amount:      c.Amount,
				Rate:        c.RateValue,
				Total:       c.Total,
			})
		}
	}
	return rows
}

// Write encodes rows in format "csv" or "json".
func Write(w io.Writer, format string, rows []Row) error {
	switch format {
	case "csv":
		return WriteCSV(w, rows)
	case "json":
		return WriteJSON(w, rows)
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}
}

// WriteJSON writes rows as a JSON array.
func WriteJSON(w io.Writer, rows []Row) error {
	if rows == nil {
		rows = []Row{}
	}
	enc := json.NewEncoder(w)
	return enc.Encode(rows)
}

// WriteCSV writes rows with a header line.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.SheetID, r.Status, r.Employee, r.Department, r.SubmittedAt, r.DecidedAt,
			r.CostID, r.CostType, r.Date, r.Description,
			num(r.Distance), num(r.Quantity), num(r.Amount), num(r.Rate), num(r.Total),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
