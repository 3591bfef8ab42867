package events

import (
	"time"

	"github.com/kilianp07/ndf/core/model"
)

// SheetSubmitted is published when an employee submits a sheet. Approvers
// lists the users allowed to decide it.
type SheetSubmitted struct {
	Sheet      model.ExpenseSheet
	Department model.Department
	Approvers  []string
}

// SheetUpdated is published when a pending sheet is edited.
type SheetUpdated struct {
	Sheet model.ExpenseSheet
}

// SheetApproved is published once a sheet is approved.
type SheetApproved struct {
	Sheet      model.ExpenseSheet
	Department model.Department
	By         string
}

// SheetRejected is published once a sheet is rejected.
type SheetRejected struct {
	Sheet      model.ExpenseSheet
	Department model.Department
	By         string
	Reason     string
}

// DSFDispatched is published after the finance bundle was mailed.
type DSFDispatched struct {
	SheetID    string
	Department model.Department
	Amount     float64
	Recipients []string
	Pages      int
	Time       time.Time
}

// DSFFailed is published when compiling or mailing the bundle failed.
type DSFFailed struct {
	SheetID string
	Err     error
	Time    time.Time
}
