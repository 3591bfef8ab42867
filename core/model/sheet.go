package model

import "time"

// SheetStatus is the approval state of an expense sheet.
type SheetStatus string

const (
	StatusPending  SheetStatus = "pending"
	StatusApproved SheetStatus = "approved"
	StatusRejected SheetStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s SheetStatus) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// Decided reports whether the sheet left the pending state.
func (s SheetStatus) Decided() bool { return s == StatusApproved || s == StatusRejected }

// ExpenseSheet is a single reimbursement request.
type ExpenseSheet struct {
	ID              string      `json:"id"`
	UserID          string      `json:"user_id"`
	DepartmentID    string      `json:"department_id"`
	FormID          string      `json:"form_id"`
	Description     string      `json:"description,omitempty"`
	Status          SheetStatus `json:"status"`
	Total           float64     `json:"total"`
	Costs           []SheetCost `json:"costs"`
	DecidedBy       string      `json:"decided_by,omitempty"`
	DecidedAt       *time.Time  `json:"decided_at,omitempty"`
	RejectionReason string      `json:"rejection_reason,omitempty"`
	DSFSentAt       *time.Time  `json:"dsf_sent_at,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Cost returns the cost item with the given ID.
func (s ExpenseSheet) Cost(id string) (SheetCost, bool) {
	for _, c := range s.Costs {
		if c.ID == id {
			return c, true
		}
	}
	return SheetCost{}, false
}

// Attachments lists every attachment of the sheet in cost order.
func (s ExpenseSheet) Attachments() []Attachment {
	var out []Attachment
	for _, c := range s.Costs {
		out = append(out, c.Attachments...)
	}
	return out
}

// SheetCost is one computed cost item of a sheet. RateID and RateValue are
// frozen at submission time.
type SheetCost struct {
	ID          string       `json:"id"`
	SheetID     string       `json:"sheet_id"`
	FormCostID  string       `json:"form_cost_id"`
	Type        CostType     `json:"type"`
	Date        Date         `json:"date"`
	Description string       `json:"description,omitempty"`
	Distance    float64      `json:"distance,omitempty"`
	Steps       []Step       `json:"steps,omitempty"`
	Quantity    float64      `json:"quantity,omitempty"`
	Amount      float64      `json:"amount,omitempty"`
	RateID      string       `json:"rate_id"`
	RateValue   float64      `json:"rate_value"`
	Total       float64      `json:"total"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Step is one leg of a kilometric trip.
type Step struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	DistanceKm float64 `json:"distance_km"`
}

// Attachment is a receipt file stored for a cost item.
type Attachment struct {
	ID          string    `json:"id"`
	SheetCostID string    `json:"sheet_cost_id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Path        string    `json:"-"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}
