package store

import (
	"context"

	"github.com/kilianp07/ndf/core/model"
)

type userRow struct {
	ID        string `db:"id"`
	Email     string `db:"email"`
	FirstName string `db:"first_name"`
	LastName  string `db:"last_name"`
	Role      string `db:"role"`
	CreatedAt int64  `db:"created_at"`
}

func (r userRow) model() model.User {
	return model.User{
		ID:        r.ID,
		Email:     r.Email,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Role:      model.Role(r.Role),
		CreatedAt: fromUnix(r.CreatedAt),
	}
}

type departmentRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	Code      string `db:"code"`
	Email     string `db:"email"`
	IsDSF     bool   `db:"is_dsf"`
	CreatedAt int64  `db:"created_at"`
}

func (r departmentRow) model() model.Department {
	return model.Department{
		ID:        r.ID,
		Name:      r.Name,
		Code:      r.Code,
		Email:     r.Email,
		IsDSF:     r.IsDSF,
		CreatedAt: fromUnix(r.CreatedAt),
	}
}

const (
	userColumns       = `id, email, first_name, last_name, role, created_at`
	departmentColumns = `id, name, code, email, is_dsf, created_at`
)

// CreateUser inserts u.
func (s *Store) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	_, err := s.exec(ctx, s.db, `INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.FirstName, u.LastName, string(u.Role), unix(u.CreatedAt))
	if err != nil {
		return model.User{}, err
	}
	u.CreatedAt = fromUnix(unix(u.CreatedAt))
	return u, nil
}

// GetUser returns the user with id.
func (s *Store) GetUser(ctx context.Context, id string) (model.User, error) {
	var r userRow
	err := s.db.GetContext(ctx, &r, s.db.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	if err != nil {
		return model.User{}, mapErr(err)
	}
	return r.model(), nil
}

// GetUserByEmail returns the user registered with email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	var r userRow
	err := s.db.GetContext(ctx, &r, s.db.Rebind(`SELECT `+userColumns+` FROM users WHERE email = ?`), email)
	if err != nil {
		return model.User{}, mapErr(err)
	}
	return r.model(), nil
}

// ListUsers returns every user ordered by e-mail.
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+userColumns+` FROM users ORDER BY email`); err != nil {
		return nil, mapErr(err)
	}
	out := make([]model.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

// CreateDepartment inserts d.
func (s *Store) CreateDepartment(ctx context.Context, d model.Department) (model.Department, error) {
	_, err := s.exec(ctx, s.db, `INSERT INTO departments (`+departmentColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.Code, d.Email, d.IsDSF, unix(d.CreatedAt))
	if err != nil {
		return model.Department{}, err
	}
	d.CreatedAt = fromUnix(unix(d.CreatedAt))
	return d, nil
}

// GetDepartment returns the department with id.
func (s *Store) GetDepartment(ctx context.Context, id string) (model.Department, error) {
	var r departmentRow
	err := s.db.GetContext(ctx, &r, s.db.Rebind(`SELECT `+departmentColumns+` FROM departments WHERE id = ?`), id)
	if err != nil {
		return model.Department{}, mapErr(err)
	}
	return r.model(), nil
}

// GetDepartmentByCode returns the department with the given code.
func (s *Store) GetDepartmentByCode(ctx context.Context, code string) (model.Department, error) {
	var r departmentRow
	err := s.db.GetContext(ctx, &r, s.db.Rebind(`SELECT `+departmentColumns+` FROM departments WHERE code = ?`), code)
	if err != nil {
		return model.Department{}, mapErr(err)
	}
	return r.model(), nil
}

// ListDepartments returns every department ordered by name.
func (s *Store) ListDepartments(ctx context.Context) ([]model.Department, error) {
	var rows []departmentRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+departmentColumns+` FROM departments ORDER BY name`); err != nil {
		return nil, mapErr(err)
	}
	out := make([]model.Department, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

// AddMembership inserts or updates the link between a user and a department.
func (s *Store) AddMembership(ctx context.Context, m model.Membership) error {
	_, err := s.exec(ctx, s.db, `INSERT INTO memberships (user_id, department_id, is_head) VALUES (?, ?, ?)
        ON CONFLICT (user_id, department_id) DO UPDATE SET is_head = excluded.is_head`,
		m.UserID, m.DepartmentID, m.IsHead)
	return err
}

type membershipRow struct {
	UserID       string `db:"user_id"`
	DepartmentID string `db:"department_id"`
	IsHead       bool   `db:"is_head"`
}

func (s *Store) memberships(ctx context.Context, column, id string) (model.Memberships, error) {
	var rows []membershipRow
	q := `SELECT user_id, department_id, is_head FROM memberships WHERE ` + column + ` = ? ORDER BY user_id, department_id`
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), id); err != nil {
		return nil, mapErr(err)
	}
	out := make(model.Memberships, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Membership{UserID: r.UserID, DepartmentID: r.DepartmentID, IsHead: r.IsHead})
	}
	return out, nil
}

// UserMemberships lists the departments of a user.
func (s *Store) UserMemberships(ctx context.Context, userID string) (model.Memberships, error) {
	return s.memberships(ctx, "user_id", userID)
}

// DepartmentMemberships lists the members of a department.
func (s *Store) DepartmentMemberships(ctx context.Context, departmentID string) (model.Memberships, error) {
	return s.memberships(ctx, "department_id", departmentID)
}
