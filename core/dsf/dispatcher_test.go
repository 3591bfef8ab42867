package dsf

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ndf/core/events"
	"github.com/kilianp07/ndf/core/expense"
	"github.com/kilianp07/ndf/core/model"
	"github.com/kilianp07/ndf/internal/eventbus"
)

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)         {}
func (nopLogger) Debugw(string, map[string]any) {}
func (nopLogger) Infof(string, ...any)          {}
func (nopLogger) Warnf(string, ...any)          {}
func (nopLogger) Errorf(string, ...any)         {}

type sheets struct {
	expense.SheetStore
	mu   sync.Mutex
	byID map[string]model.ExpenseSheet
}

func (s *sheets) GetSheet(_ context.Context, id string) (model.ExpenseSheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.byID[id]
	if !ok {
		return model.ExpenseSheet{}, model.ErrNotFound
	}
	return v, nil
}

func (s *sheets) ListSheets(_ context.Context, f expense.SheetFilter) ([]model.ExpenseSheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ExpenseSheet
	for _, v := range s.byID {
		if f.DSFPending && (v.Status != model.StatusApproved || v.DSFSentAt != nil || v.DepartmentID != "dsf") {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *sheets) MarkDSFSent(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.byID[id]
	if v.DSFSentAt != nil {
		return model.ErrInvalidState
	}
	v.DSFSentAt = &at
	s.byID[id] = v
	return nil
}

type directory struct {
	expense.Directory
	depts map[string]model.Department
}

func (d directory) GetUser(_ context.Context, id string) (model.User, error) {
	switch id {
	case "emp":
		return model.User{ID: "emp", FirstName: "Zoé", LastName: "Durand"}, nil
	case "head":
		return model.User{ID: "head", FirstName: "Marc", LastName: "Petit"}, nil
	}
	return model.User{}, model.ErrNotFound
}

func (d directory) GetDepartment(_ context.Context, id string) (model.Department, error) {
	if v, ok := d.depts[id]; ok {
		return v, nil
	}
	return model.Department{}, model.ErrNotFound
}

type forms struct{}

func (forms) GetForm(_ context.Context, id string) (model.Form, error) {
	return model.Form{ID: id, Name: "Déplacements"}, nil
}

type compiler struct {
	err error
}

func (c compiler) Compile(_ context.Context, b Bundle) (Document, error) {
	if c.err != nil {
		return Document{}, c.err
	}
	return Document{Filename: "ndf-" + b.Sheet.ID + ".pdf", PDF: []byte("%PDF-"), Pages: 2}, nil
}

type mailer struct {
	mu   sync.Mutex
	sent []Message
	err  error
	// gate blocks Send until closed when set
	gate chan struct{}
}

func (m *mailer) Send(_ context.Context, msg Message) error {
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type memLock struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *memLock) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, ErrLocked
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, nil
}

type bus struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (b *bus) Publish(e eventbus.Event) {
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
}
func (b *bus) Subscribe() <-chan eventbus.Event  { return make(chan eventbus.Event) }
func (b *bus) Unsubscribe(<-chan eventbus.Event) {}
func (b *bus) Close()                            {}

type fixture struct {
	d      *Dispatcher
	sheets *sheets
	mail   *mailer
	bus    *bus
}

func newFixture(t *testing.T, cfg Config, c Compiler) fixture {
	t.Helper()
	decided := time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)
	st := &sheets{byID: map[string]model.ExpenseSheet{
		"s1": {ID: "s1", UserID: "emp", DepartmentID: "dsf", FormID: "f", Status: model.StatusApproved,
			Total: 42.5, DecidedBy: "head", DecidedAt: &decided},
		"s2": {ID: "s2", UserID: "emp", DepartmentID: "dsf", FormID: "f", Status: model.StatusPending},
		"s3": {ID: "s3", UserID: "emp", DepartmentID: "sales", FormID: "f", Status: model.StatusApproved},
	}}
	dir := directory{depts: map[string]model.Department{
		"dsf":   {ID: "dsf", Name: "Finances", Code: "DSF", IsDSF: true, Email: "dsf@example.org"},
		"sales": {ID: "sales", Name: "Ventes", Code: "SAL"},
	}}
	m := &mailer{}
	b := &bus{}
	if c == nil {
		c = compiler{}
	}
	d := NewDispatcher(Deps{
		Sheets: st, Directory: dir, Forms: forms{}, Compiler: c, Mailer: m,
		Locker: &memLock{held: map[string]bool{}}, Bus: b, Log: nopLogger{},
	}, cfg)
	return fixture{d: d, sheets: st, mail: m, bus: b}
}

func TestSendMailsOnce(t *testing.T) {
	f := newFixture(t, Config{SubjectPrefix: "[NDF] "}, nil)
	ctx := context.Background()

	require.NoError(t, f.d.Send(ctx, "s1"))
	require.Equal(t, 1, f.mail.count())
	msg := f.mail.sent[0]
	assert.Equal(t, []string{"dsf@example.org"}, msg.To)
	assert.Equal(t, "[NDF] Zoé Durand s1", msg.Subject)
	assert.Equal(t, "ndf-s1.pdf", msg.Attachment.Filename)
	assert.True(t, strings.Contains(msg.Body, "Marc Petit"))

	s, _ := f.sheets.GetSheet(ctx, "s1")
	require.NotNil(t, s.DSFSentAt)

	require.NoError(t, f.d.Send(ctx, "s1"))
	assert.Equal(t, 1, f.mail.count(), "already sent sheets are skipped")

	require.Len(t, f.bus.events, 1)
	ev, ok := f.bus.events[0].(events.DSFDispatched)
	require.True(t, ok)
	assert.Equal(t, 42.5, ev.Amount)
	assert.Equal(t, 2, ev.Pages)
}

func TestSendUsesConfiguredRecipients(t *testing.T) {
	f := newFixture(t, Config{Recipients: []string{"compta@example.org", "audit@example.org"}}, nil)
	require.NoError(t, f.d.Send(context.Background(), "s1"))
	assert.Equal(t, []string{"compta@example.org", "audit@example.org"}, f.mail.sent[0].To)
}

func TestSendRejectsIneligibleSheets(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	ctx := context.Background()
	if err := f.d.Send(ctx, "s2"); !errors.Is(err, model.ErrInvalidState) {
		t.Fatalf("pending sheet: expected ErrInvalidState, got %v", err)
	}
	if err := f.d.Send(ctx, "s3"); !errors.Is(err, model.ErrInvalidState) {
		t.Fatalf("non DSF sheet: expected ErrInvalidState, got %v", err)
	}
	if err := f.d.Send(ctx, "nope"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if f.mail.count() != 0 {
		t.Fatalf("nothing should be sent")
	}
}

func TestSendFailureIsLeftForRetry(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.mail.err = errors.New("relay down")
	ctx := context.Background()

	if err := f.d.Send(ctx, "s1"); err == nil {
		t.Fatalf("expected error")
	}
	s, _ := f.sheets.GetSheet(ctx, "s1")
	if s.DSFSentAt != nil {
		t.Fatalf("failed sheet must stay pending for DSF")
	}
	if _, ok := f.bus.events[0].(events.DSFFailed); !ok {
		t.Fatalf("expected DSFFailed, got %T", f.bus.events[0])
	}

	f.mail.err = nil
	sent, err := f.d.Retry(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	sent, err = f.d.Retry(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
}

func TestCompileFailure(t *testing.T) {
	f := newFixture(t, Config{}, compiler{err: errors.New("bad font")})
	if err := f.d.Send(context.Background(), "s1"); err == nil {
		t.Fatalf("expected error")
	}
	if f.mail.count() != 0 {
		t.Fatalf("nothing should be sent")
	}
}

func TestApprovalHookSendsAsynchronously(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.mail.gate = make(chan struct{})
	ctx := context.Background()
	s1, _ := f.sheets.GetSheet(ctx, "s1")
	dsfDept := model.Department{ID: "dsf", IsDSF: true}

	// concurrent approvals of the same sheet send it once
	f.d.SheetApproved(ctx, s1, dsfDept)
	f.d.SheetApproved(ctx, s1, dsfDept)
	f.d.SheetApproved(ctx, model.ExpenseSheet{ID: "s3"}, model.Department{ID: "sales"})
	close(f.mail.gate)
	f.d.Wait()
	assert.Equal(t, 1, f.mail.count())
}

func TestCompileDoesNotSend(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	doc, err := f.d.Compile(context.Background(), "s2")
	require.NoError(t, err)
	assert.Equal(t, "ndf-s2.pdf", doc.Filename)
	assert.Equal(t, 0, f.mail.count())
}
