package expense

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/ndf/core/model"
	"github.com/kilianp07/ndf/internal/eventbus"
)

type memDirectory struct {
	mu    sync.Mutex
	users map[string]model.User
	depts map[string]model.Department
	ms    model.Memberships
}

func newMemDirectory() *memDirectory {
	return &memDirectory{users: map[string]model.User{}, depts: map[string]model.Department{}}
}

func (d *memDirectory) CreateUser(_ context.Context, u model.User) (model.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.users {
		if e.Email == u.Email {
			return model.User{}, model.ErrConflict
		}
	}
	d.users[u.ID] = u
	return u, nil
}

func (d *memDirectory) GetUser(_ context.Context, id string) (model.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return u, nil
}

func (d *memDirectory) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, model.ErrNotFound
}

func (d *memDirectory) ListUsers(context.Context) ([]model.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]model.User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, u)
	}
	return out, nil
}

func (d *memDirectory) CreateDepartment(_ context.Context, dep model.Department) (model.Department, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.depts[dep.ID] = dep
	return dep, nil
}

func (d *memDirectory) GetDepartment(_ context.Context, id string) (model.Department, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	dep, ok := d.depts[id]
	if !ok {
		return model.Department{}, model.ErrNotFound
	}
	return dep, nil
}

func (d *memDirectory) GetDepartmentByCode(_ context.Context, code string) (model.Department, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, dep := range d.depts {
		if dep.Code == code {
			return dep, nil
		}
	}
	return model.Department{}, model.ErrNotFound
}

func (d *memDirectory) ListDepartments(context.Context) ([]model.Department, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]model.Department, 0, len(d.depts))
	for _, dep := range d.depts {
		out = append(out, dep)
	}
	return out, nil
}

func (d *memDirectory) AddMembership(_ context.Context, m model.Membership) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ms = append(d.ms, m)
	return nil
}

func (d *memDirectory) UserMemberships(_ context.Context, userID string) (model.Memberships, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out model.Memberships
	for _, m := range d.ms {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (d *memDirectory) DepartmentMemberships(_ context.Context, deptID string) (model.Memberships, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out model.Memberships
	for _, m := range d.ms {
		if m.DepartmentID == deptID {
			out = append(out, m)
		}
	}
	return out, nil
}

type memForms map[string]model.Form

func (f memForms) GetForm(_ context.Context, id string) (model.Form, error) {
	form, ok := f[id]
	if !ok {
		return model.Form{}, model.ErrNotFound
	}
	return form, nil
}

type memSheets struct {
	mu     sync.Mutex
	sheets map[string]model.ExpenseSheet
}

func newMemSheets() *memSheets { return &memSheets{sheets: map[string]model.ExpenseSheet{}} }

func (m *memSheets) CreateSheet(_ context.Context, s model.ExpenseSheet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sheets[s.ID] = s
	return nil
}

func (m *memSheets) UpdateSheet(_ context.Context, s model.ExpenseSheet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sheets[s.ID]
	if !ok {
		return model.ErrNotFound
	}
	if cur.Status != model.StatusPending {
		return model.ErrInvalidState
	}
	m.sheets[s.ID] = s
	return nil
}

func (m *memSheets) GetSheet(_ context.Context, id string) (model.ExpenseSheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sheets[id]
	if !ok {
		return model.ExpenseSheet{}, model.ErrNotFound
	}
	return s, nil
}

func (m *memSheets) ListSheets(_ context.Context, f SheetFilter) ([]model.ExpenseSheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ExpenseSheet
	for _, s := range m.sheets {
		if f.UserID != "" && s.UserID != f.UserID {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		if len(f.DepartmentIDs) > 0 {
			found := false
			for _, d := range f.DepartmentIDs {
				found = found || d == s.DepartmentID
			}
			if !found {
				continue
			}
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memSheets) DeleteSheet(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sheets[id]; ok && s.Status != model.StatusPending {
		return model.ErrInvalidState
	}
	delete(m.sheets, id)
	return nil
}

func (m *memSheets) DecideSheet(_ context.Context, id string, d Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sheets[id]
	if !ok {
		return model.ErrNotFound
	}
	if s.Status != model.StatusPending {
		return model.ErrInvalidState
	}
	s.Status = d.Status
	s.DecidedBy = d.By
	at := d.At
	s.DecidedAt = &at
	s.RejectionReason = d.Reason
	m.sheets[id] = s
	return nil
}

func (m *memSheets) MarkDSFSent(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sheets[id]
	s.DSFSentAt = &at
	m.sheets[id] = s
	return nil
}

func (m *memSheets) AddAttachment(_ context.Context, a model.Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sheets {
		for i, c := range s.Costs {
			if c.ID == a.SheetCostID {
				if s.Status != model.StatusPending {
					return model.ErrInvalidState
				}
				s.Costs[i].Attachments = append(s.Costs[i].Attachments, a)
				m.sheets[id] = s
				return nil
			}
		}
	}
	return model.ErrNotFound
}

type memFiles struct {
	mu      sync.Mutex
	files   map[string][]byte
	deleted []string
}

func newMemFiles() *memFiles { return &memFiles{files: map[string][]byte{}} }

func (f *memFiles) Save(_ context.Context, sheetID, name string, r io.Reader, limit int64) (string, int64, error) {
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", 0, err
	}
	if int64(len(b)) > limit {
		return "", 0, ErrTooLarge
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p := sheetID + "/" + name
	f.files[p] = b
	return p, int64(len(b)), nil
}

func (f *memFiles) Open(_ context.Context, path string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.files[path]
	if !ok {
		return nil, model.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *memFiles) Delete(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, path)
	f.deleted = append(f.deleted, path)
	return nil
}

func (f *memFiles) DeleteSheet(_ context.Context, sheetID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, sheetID+"/")
	return nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []any
}

func (b *recordingBus) Publish(e eventbus.Event) {
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
}
func (b *recordingBus) Subscribe() <-chan eventbus.Event  { return make(chan eventbus.Event) }
func (b *recordingBus) Unsubscribe(<-chan eventbus.Event) {}
func (b *recordingBus) Close()                            {}

func (b *recordingBus) last() any {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return nil
	}
	return b.events[len(b.events)-1]
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)         {}
func (nopLogger) Debugw(string, map[string]any) {}
func (nopLogger) Infof(string, ...any)          {}
func (nopLogger) Warnf(string, ...any)          {}
func (nopLogger) Errorf(string, ...any)         {}
