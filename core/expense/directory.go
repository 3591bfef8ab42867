package expense

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/ndf/core/model"
)

// Organisation manages users, departments and memberships.
type Organisation struct {
	dir Directory
	now func() time.Time
}

// NewOrganisation returns an Organisation backed by dir.
func NewOrganisation(dir Directory) *Organisation {
	return &Organisation{dir: dir, now: func() time.Time { return time.Now().UTC() }}
}

func requireAdmin(actor *model.User) error {
	// nil actor is the CLI bootstrap path.
	if actor != nil && !actor.IsAdmin() {
		return fmt.Errorf("%w: admin only", model.ErrForbidden)
	}
	return nil
}

// CreateUser registers a user. actor nil bypasses the admin check.
func (o *Organisation) CreateUser(ctx context.Context, actor *model.User, u model.User) (model.User, error) {
	if err := requireAdmin(actor); err != nil {
		return model.User{}, err
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return model.User{}, model.Invalidf("invalid e-mail %q", u.Email)
	}
	if u.Role == "" {
		u.Role = model.RoleEmployee
	}
	if !u.Role.Valid() {
		return model.User{}, model.Invalidf("unknown role %q", u.Role)
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = o.now()
	return o.dir.CreateUser(ctx, u)
}

// CreateDepartment registers a department with a unique code.
func (o *Organisation) CreateDepartment(ctx context.Context, actor *model.User, d model.Department) (model.Department, error) {
	if err := requireAdmin(actor); err != nil {
		return model.Department{}, err
	}
	d.Name = strings.TrimSpace(d.Name)
	d.Code = strings.ToUpper(strings.TrimSpace(d.Code))
	if d.Name == "" || d.Code == "" {
		return model.Department{}, model.Invalidf("department name and code are required")
	}
	if d.Email != "" {
		if _, err := mail.ParseAddress(d.Email); err != nil {
			return model.Department{}, model.Invalidf("invalid e-mail %q", d.Email)
		}
	}
	if d.IsDSF && d.Email == "" {
		return model.Department{}, model.Invalidf("the DSF department needs an e-mail")
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.CreatedAt = o.now()
	return o.dir.CreateDepartment(ctx, d)
}

// AddMember links a user to a department, optionally as head.
func (o *Organisation) AddMember(ctx context.Context, actor *model.User, m model.Membership) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if _, err := o.dir.GetUser(ctx, m.UserID); err != nil {
		return fmt.Errorf("user %s: %w", m.UserID, err)
	}
	if _, err := o.dir.GetDepartment(ctx, m.DepartmentID); err != nil {
		return fmt.Errorf("department %s: %w", m.DepartmentID, err)
	}
	return o.dir.AddMembership(ctx, m)
}

// Departments lists every department.
func (o *Organisation) Departments(ctx context.Context) ([]model.Department, error) {
	return o.dir.ListDepartments(ctx)
}

// Users lists every user. Admin only.
func (o *Organisation) Users(ctx context.Context, actor *model.User) ([]model.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return o.dir.ListUsers(ctx)
}

// Me returns the actor together with their memberships.
func (o *Organisation) Me(ctx context.Context, actor model.User) (model.User, model.Memberships, error) {
	ms, err := o.dir.UserMemberships(ctx, actor.ID)
	return actor, ms, err
}
