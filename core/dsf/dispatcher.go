package dsf

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/ndf/core/events"
	"github.com/kilianp07/ndf/core/expense"
	"github.com/kilianp07/ndf/core/logger"
	"github.com/kilianp07/ndf/core/model"
	"github.com/kilianp07/ndf/core/monitoring"
	"github.com/kilianp07/ndf/internal/eventbus"
)

// Config tunes delivery.
type Config struct {
	// Recipients override the e-mail of the DSF department.
	Recipients    []string
	SubjectPrefix string
	LockTTL       time.Duration
	// Timeout bounds one asynchronous delivery after approval.
	Timeout time.Duration
}

// Deps groups the collaborators of a Dispatcher. Bus and Monitor are
// optional.
type Deps struct {
	Sheets    expense.SheetStore
	Directory expense.Directory
	Forms     expense.FormReader
	Compiler  Compiler
	Mailer    Mailer
	Locker    Locker
	Bus       eventbus.EventBus
	Monitor   monitoring.Monitor
	Log       logger.Logger
}

// Dispatcher compiles approved DSF sheets and mails them at most once.
type Dispatcher struct {
	Deps
	cfg Config
	now func() time.Time
	wg  sync.WaitGroup
}

func NewDispatcher(d Deps, cfg Config) *Dispatcher {
	if d.Monitor == nil {
		d.Monitor = monitoring.NopMonitor{}
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &Dispatcher{Deps: d, cfg: cfg, now: time.Now}
}

// Bundle loads everything rendered for a sheet.
func (d *Dispatcher) Bundle(ctx context.Context, sheetID string) (Bundle, error) {
	s, err := d.Sheets.GetSheet(ctx, sheetID)
	if err != nil {
		return Bundle{}, err
	}
	return d.bundle(ctx, s)
}

func (d *Dispatcher) bundle(ctx context.Context, s model.ExpenseSheet) (Bundle, error) {
	b := Bundle{Sheet: s, Generated: d.now()}
	var err error
	if b.Employee, err = d.Directory.GetUser(ctx, s.UserID); err != nil {
		return Bundle{}, fmt.Errorf("employee %s: %w", s.UserID, err)
	}
	if b.Department, err = d.Directory.GetDepartment(ctx, s.DepartmentID); err != nil {
		return Bundle{}, fmt.Errorf("department %s: %w", s.DepartmentID, err)
	}
	if b.Form, err = d.Forms.GetForm(ctx, s.FormID); err != nil {
		return Bundle{}, fmt.Errorf("form %s: %w", s.FormID, err)
	}
	if s.DecidedBy != "" {
		// a deleted approver only blanks the header line
		if u, err := d.Directory.GetUser(ctx, s.DecidedBy); err == nil {
			b.Approver = u
		}
	}
	return b, nil
}

// Compile renders the bundle of a sheet without sending it.
func (d *Dispatcher) Compile(ctx context.Context, sheetID string) (Document, error) {
	b, err := d.Bundle(ctx, sheetID)
	if err != nil {
		return Document{}, err
	}
	return d.Compiler.Compile(ctx, b)
}

// Send mails the bundle of an approved DSF sheet. Sheets already sent are
// skipped. It returns ErrLocked when another worker is sending the sheet.
func (d *Dispatcher) Send(ctx context.Context, sheetID string) error {
	release, err := d.Locker.Acquire(ctx, "dsf:"+sheetID, d.cfg.LockTTL)
	if err != nil {
		return err
	}
	defer release()

	s, err := d.Sheets.GetSheet(ctx, sheetID)
	if err != nil {
		return err
	}
	if s.DSFSentAt != nil {
		d.Log.Debugf("sheet %s already sent at %s", s.ID, s.DSFSentAt.Format(time.RFC3339))
		return nil
	}
	if s.Status != model.StatusApproved {
		return fmt.Errorf("%w: sheet %s is %s", model.ErrInvalidState, s.ID, s.Status)
	}
	b, err := d.bundle(ctx, s)
	if err != nil {
		return d.fail(s.ID, err)
	}
	if !b.Department.IsDSF {
		return fmt.Errorf("%w: department %s is not the DSF", model.ErrInvalidState, b.Department.Code)
	}
	to := d.recipients(b.Department)
	if len(to) == 0 {
		return d.fail(s.ID, fmt.Errorf("no DSF recipient configured"))
	}
	doc, err := d.Compiler.Compile(ctx, b)
	if err != nil {
		return d.fail(s.ID, fmt.Errorf("compile: %w", err))
	}
	for _, name := range doc.Skipped {
		d.Log.Warnf("sheet %s: attachment %s replaced by a notice", s.ID, name)
	}
	msg := Message{
		To:         to,
		Subject:    fmt.Sprintf("%s%s %s", d.cfg.SubjectPrefix, b.Employee.FullName(), s.ID),
		Body:       body(b, doc),
		Attachment: doc,
	}
	if err := d.Mailer.Send(ctx, msg); err != nil {
		return d.fail(s.ID, fmt.Errorf("mail: %w", err))
	}
	at := d.now().UTC()
	if err := d.Sheets.MarkDSFSent(ctx, s.ID, at); err != nil && !errors.Is(err, model.ErrInvalidState) {
		// the mail left; the retry job would send it twice
		d.Monitor.CaptureException(err, map[string]string{"sheet": s.ID, "stage": "mark_sent"})
		return fmt.Errorf("mark sent: %w", err)
	}
	d.Log.Infof("sheet %s sent to DSF (%d pages)", s.ID, doc.Pages)
	d.publish(events.DSFDispatched{
		SheetID:    s.ID,
		Department: b.Department,
		Amount:     s.Total,
		Recipients: to,
		Pages:      doc.Pages,
		Time:       at,
	})
	return nil
}

func (d *Dispatcher) recipients(dept model.Department) []string {
	if len(d.cfg.Recipients) > 0 {
		return d.cfg.Recipients
	}
	if dept.Email != "" {
		return []string{dept.Email}
	}
	return nil
}

func (d *Dispatcher) fail(sheetID string, err error) error {
	d.Log.Errorf("dsf delivery of sheet %s failed: %v", sheetID, err)
	d.Monitor.CaptureException(err, map[string]string{"sheet": sheetID, "stage": "dsf"})
	d.publish(events.DSFFailed{SheetID: sheetID, Err: err, Time: d.now()})
	return err
}

func (d *Dispatcher) publish(e eventbus.Event) {
	if d.Bus != nil {
		d.Bus.Publish(e)
	}
}

// Retry sends every approved DSF sheet not yet mailed and returns how many
// were sent.
func (d *Dispatcher) Retry(ctx context.Context) (int, error) {
	pending, err := d.Sheets.ListSheets(ctx, expense.SheetFilter{DSFPending: true})
	if err != nil {
		return 0, err
	}
	sent := 0
	var errs []error
	for _, s := range pending {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		switch err := d.Send(ctx, s.ID); {
		case err == nil:
			sent++
		case errors.Is(err, ErrLocked):
			d.Log.Debugf("sheet %s locked, skipping", s.ID)
		default:
			errs = append(errs, fmt.Errorf("sheet %s: %w", s.ID, err))
		}
	}
	return sent, errors.Join(errs...)
}

// SheetApproved starts an asynchronous delivery for DSF departments.
func (d *Dispatcher) SheetApproved(_ context.Context, sheet model.ExpenseSheet, dept model.Department) {
	if !dept.IsDSF {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer monitoring.Swallow(d.Monitor, map[string]string{"sheet": sheet.ID, "stage": "dsf"})
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
		defer cancel()
		if err := d.Send(ctx, sheet.ID); err != nil && !errors.Is(err, ErrLocked) {
			d.Log.Warnf("sheet %s left for retry: %v", sheet.ID, err)
		}
	}()
}

// Wait blocks until asynchronous deliveries finish.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func body(b Bundle, doc Document) string {
	s := fmt.Sprintf("Note de frais %s de %s (%s).\nMontant total : %.2f EUR.\nApprouvée par %s.\n",
		b.Sheet.ID, b.Employee.FullName(), b.Department.Name, b.Sheet.Total, b.Approver.FullName())
	if len(doc.Skipped) > 0 {
		s += fmt.Sprintf("\n%d justificatif(s) illisible(s) remplacé(s) par un avertissement.\n", len(doc.Skipped))
	}
	return s
}

var _ expense.ApprovalHook = (*Dispatcher)(nil)
