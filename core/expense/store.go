package expense

import (
	"context"
	"io"
	"time"

	"github.com/kilianp07/ndf/core/model"
)

// Directory stores users, departments and memberships.
type Directory interface {
	CreateUser(ctx context.Context, u model.User) (model.User, error)
	GetUser(ctx context.Context, id string) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)

	CreateDepartment(ctx context.Context, d model.Department) (model.Department, error)
	GetDepartment(ctx context.Context, id string) (model.Department, error)
	GetDepartmentByCode(ctx context.Context, code string) (model.Department, error)
	ListDepartments(ctx context.Context) ([]model.Department, error)

	AddMembership(ctx context.Context, m model.Membership) error
	UserMemberships(ctx context.Context, userID string) (model.Memberships, error)
	DepartmentMemberships(ctx context.Context, departmentID string) (model.Memberships, error)
}

// FormReader resolves the form a sheet is submitted against.
type FormReader interface {
	GetForm(ctx context.Context, id string) (model.Form, error)
}

// SheetFilter narrows ListSheets. Zero fields are ignored.
type SheetFilter struct {
	UserID        string
	DepartmentIDs []string
	Status        model.SheetStatus
	CreatedFrom   time.Time
	CreatedTo     time.Time
	// DSFPending selects approved sheets of DSF departments not yet mailed.
	DSFPending bool
}

// Decision is the outcome written by Approve or Reject.
type Decision struct {
	Status    model.SheetStatus
	By        string
	At        time.Time
	Reason    string
	UpdatedAt time.Time
}

// SheetStore persists expense sheets with their cost items.
type SheetStore interface {
	CreateSheet(ctx context.Context, s model.ExpenseSheet) error
	// UpdateSheet rewrites the sheet row and its cost items. Cost items whose
	// ID is absent from s are removed with their attachments.
	UpdateSheet(ctx context.Context, s model.ExpenseSheet) error
	GetSheet(ctx context.Context, id string) (model.ExpenseSheet, error)
	ListSheets(ctx context.Context, f SheetFilter) ([]model.ExpenseSheet, error)
	DeleteSheet(ctx context.Context, id string) error
	// DecideSheet moves a pending sheet to d.Status. It fails with
	// model.ErrInvalidState when the sheet is no longer pending.
	DecideSheet(ctx context.Context, id string, d Decision) error
	MarkDSFSent(ctx context.Context, id string, at time.Time) error
	AddAttachment(ctx context.Context, a model.Attachment) error
}

// FileStorage keeps attachment contents.
type FileStorage interface {
	Save(ctx context.Context, sheetID, name string, r io.Reader, limit int64) (path string, size int64, err error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
	DeleteSheet(ctx context.Context, sheetID string) error
}
