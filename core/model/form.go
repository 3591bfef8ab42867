package model

import (
	"fmt"
	"time"
)

// CostType selects how a cost item is computed.
type CostType string

const (
	// CostKm multiplies a travelled distance by a per-kilometre rate.
	CostKm CostType = "km"
	// CostFixed multiplies a quantity by a flat amount.
	CostFixed CostType = "fixed"
	// CostPercentage reimburses a percentage of a spent amount.
	CostPercentage CostType = "percentage"
)

// ParseCostType validates s as a CostType.
func ParseCostType(s string) (CostType, error) {
	switch CostType(s) {
	case CostKm, CostFixed, CostPercentage:
		return CostType(s), nil
	default:
		return "", fmt.Errorf("unknown cost type %q", s)
	}
}

func (t CostType) String() string { return string(t) }

// Form is a template listing the cost types available to a sheet.
type Form struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Active      bool       `json:"active"`
	Costs       []FormCost `json:"costs"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Cost returns the form cost with the given ID.
func (f Form) Cost(id string) (FormCost, bool) {
	for _, c := range f.Costs {
		if c.ID == id {
			return c, true
		}
	}
	return FormCost{}, false
}

// FormCost is one reimbursable cost type of a form.
type FormCost struct {
	ID        string   `json:"id"`
	FormID    string   `json:"form_id"`
	Name      string   `json:"name"`
	Type      CostType `json:"type"`
	ValidFrom *Date    `json:"valid_from,omitempty"`
	ValidTo   *Date    `json:"valid_to,omitempty"`
	Rates     []Rate   `json:"rates"`
}

// Rate is the reimbursement value effective over [StartDate, EndDate].
// A nil EndDate is open-ended.
type Rate struct {
	ID         string  `json:"id"`
	FormCostID string  `json:"form_cost_id"`
	Value      float64 `json:"value"`
	StartDate  Date    `json:"start_date"`
	EndDate    *Date   `json:"end_date,omitempty"`
}

// Covers reports whether the rate is effective on day.
func (r Rate) Covers(day Date) bool {
	return day.Within(&r.StartDate, r.EndDate)
}

// Overlaps reports whether both rates share at least one day.
func (r Rate) Overlaps(o Rate) bool {
	if r.EndDate != nil && r.EndDate.Before(o.StartDate) {
		return false
	}
	if o.EndDate != nil && o.EndDate.Before(r.StartDate) {
		return false
	}
	return true
}
