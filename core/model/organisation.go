package model

import "time"

// Role grants application-wide permissions.
type Role string

const (
	RoleEmployee Role = "employee"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleEmployee || r == RoleAdmin }

// User is a person submitting or deciding expense sheets.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// FullName returns "First Last", falling back to the e-mail.
func (u User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.LastName != "":
		return u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Email
	}
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// Department groups users. Sheets submitted to a department flagged IsDSF
// are forwarded to finance once approved.
type Department struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	Email     string    `json:"email,omitempty"`
	IsDSF     bool      `json:"is_dsf"`
	CreatedAt time.Time `json:"created_at"`
}

// Membership links a user to a department.
type Membership struct {
	UserID       string `json:"user_id"`
	DepartmentID string `json:"department_id"`
	IsHead       bool   `json:"is_head"`
}

// Memberships is the set of departments of one or several users.
type Memberships []Membership

// IsMember reports whether userID belongs to departmentID.
func (ms Memberships) IsMember(userID, departmentID string) bool {
	for _, m := range ms {
		if m.UserID == userID && m.DepartmentID == departmentID {
			return true
		}
	}
	return false
}

// IsHead reports whether userID heads departmentID.
func (ms Memberships) IsHead(userID, departmentID string) bool {
	for _, m := range ms {
		if m.UserID == userID && m.DepartmentID == departmentID && m.IsHead {
			return true
		}
	}
	return false
}

// HeadedBy lists the departments headed by userID.
func (ms Memberships) HeadedBy(userID string) []string {
	var ids []string
	for _, m := range ms {
		if m.UserID == userID && m.IsHead {
			ids = append(ids, m.DepartmentID)
		}
	}
	return ids
}
