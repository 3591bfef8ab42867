package expense

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ndf/core/events"
	"github.com/kilianp07/ndf/core/model"
)

var (
	employee = model.User{ID: "emp", Email: "emp@example.org", Role: model.RoleEmployee}
	head     = model.User{ID: "head", Email: "head@example.org", Role: model.RoleEmployee}
	coHead   = model.User{ID: "cohead", Email: "cohead@example.org", Role: model.RoleEmployee}
	admin    = model.User{ID: "admin", Email: "admin@example.org", Role: model.RoleAdmin}
	outsider = model.User{ID: "out", Email: "out@example.org", Role: model.RoleEmployee}
)

type fixture struct {
	svc    *Service
	sheets *memSheets
	files  *memFiles
	bus    *recordingBus
	dir    *memDirectory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := newMemDirectory()
	for _, u := range []model.User{employee, head, coHead, admin, outsider} {
		dir.users[u.ID] = u
	}
	dir.depts["sales"] = model.Department{ID: "sales", Name: "Sales", Code: "SAL"}
	dir.depts["dsf"] = model.Department{ID: "dsf", Name: "Finance", Code: "DSF", IsDSF: true, Email: "dsf@example.org"}
	dir.ms = model.Memberships{
		{UserID: "emp", DepartmentID: "sales"},
		{UserID: "head", DepartmentID: "sales", IsHead: true},
		{UserID: "cohead", DepartmentID: "sales", IsHead: true},
		{UserID: "out", DepartmentID: "dsf"},
	}
	from := model.MustDate("2024-01-01")
	forms := memForms{
		"travel": {
			ID: "travel", Name: "Travel", Active: true,
			Costs: []model.FormCost{
				{ID: "km", Name: "Mileage", Type: model.CostKm, ValidFrom: &from, Rates: []model.Rate{
					{ID: "r-km", Value: 0.5, StartDate: from},
				}},
				{ID: "meal", Name: "Meal", Type: model.CostFixed, Rates: []model.Rate{
					{ID: "r-meal", Value: 15, StartDate: from},
				}},
			},
		},
		"old": {ID: "old", Name: "Old", Active: false},
	}
	f := &fixture{sheets: newMemSheets(), files: newMemFiles(), bus: &recordingBus{}, dir: dir}
	f.svc = NewService(f.sheets, dir, forms, f.files, f.bus, nopLogger{})
	f.svc.SetClock(func() time.Time { return time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC) })
	return f
}

func travelInput() SheetInput {
	return SheetInput{
		DepartmentID: "sales",
		FormID:       "travel",
		Description:  "customer visit",
		Costs: []CostInput{
			{FormCostID: "km", Date: model.MustDate("2024-04-10"), Steps: []model.Step{
				{From: "Lyon", To: "Grenoble", DistanceKm: 110},
				{From: "Grenoble", To: "Lyon", DistanceKm: 110.5},
			}},
			{FormCostID: "meal", Date: model.MustDate("2024-04-10"), Quantity: 2},
		},
	}
}

func TestSubmitComputesTotals(t *testing.T) {
	f := newFixture(t)
	sheet, err := f.svc.Submit(context.Background(), employee, travelInput())
	require.NoError(t, err)

	assert.Equal(t, model.StatusPending, sheet.Status)
	require.Len(t, sheet.Costs, 2)
	assert.Equal(t, 220.5, sheet.Costs[0].Distance)
	assert.Equal(t, 110.25, sheet.Costs[0].Total)
	assert.Equal(t, "r-km", sheet.Costs[0].RateID)
	assert.Equal(t, 30.0, sheet.Costs[1].Total)
	assert.Equal(t, 140.25, sheet.Total)
	for _, c := range sheet.Costs {
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, sheet.ID, c.SheetID)
	}

	ev, ok := f.bus.last().(events.SheetSubmitted)
	require.True(t, ok, "expected SheetSubmitted, got %T", f.bus.last())
	assert.ElementsMatch(t, []string{"head", "cohead"}, ev.Approvers)
}

func TestSubmitRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := travelInput()
	if _, err := f.svc.Submit(ctx, outsider, in); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected forbidden for non member, got %v", err)
	}

	in = travelInput()
	in.FormID = "old"
	if _, err := f.svc.Submit(ctx, employee, in); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error for inactive form, got %v", err)
	}

	in = travelInput()
	in.Costs = nil
	if _, err := f.svc.Submit(ctx, employee, in); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error for empty sheet, got %v", err)
	}

	in = travelInput()
	in.Costs[0].FormCostID = "unknown"
	if _, err := f.svc.Submit(ctx, employee, in); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error for foreign cost, got %v", err)
	}

	in = travelInput()
	in.Costs[0].Date = model.MustDate("2023-12-31")
	if _, err := f.svc.Submit(ctx, employee, in); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error for date outside window, got %v", err)
	}
}

func TestUpdateKeepsAttachmentsOfKeptCosts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sheet, err := f.svc.Submit(ctx, employee, travelInput())
	require.NoError(t, err)

	kmID, mealID := sheet.Costs[0].ID, sheet.Costs[1].ID
	a1, err := f.svc.AddAttachment(ctx, employee, sheet.ID, kmID, "ticket.pdf", "application/pdf", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	a2, err := f.svc.AddAttachment(ctx, employee, sheet.ID, mealID, "meal.png", "image/png", strings.NewReader("png"))
	require.NoError(t, err)

	in := travelInput()
	in.Costs = []CostInput{{ID: kmID, FormCostID: "km", Date: model.MustDate("2024-04-11"), Distance: 10}}
	updated, err := f.svc.Update(ctx, employee, sheet.ID, in)
	require.NoError(t, err)

	require.Len(t, updated.Costs, 1)
	assert.Equal(t, kmID, updated.Costs[0].ID)
	assert.Equal(t, 5.0, updated.Total)
	require.Len(t, updated.Costs[0].Attachments, 1)
	assert.Equal(t, a1.ID, updated.Costs[0].Attachments[0].ID)
	assert.Contains(t, f.files.deleted, a2.Path)
	_, isUpdate := f.bus.last().(events.SheetUpdated)
	assert.True(t, isUpdate)
}

func TestUpdateRequiresOwnerAndPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sheet, err := f.svc.Submit(ctx, employee, travelInput())
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, head, sheet.ID, travelInput())
	assert.ErrorIs(t, err, model.ErrForbidden)

	in := travelInput()
	in.Costs[0].ID = "not-a-cost"
	_, err = f.svc.Update(ctx, employee, sheet.ID, in)
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = f.svc.Approve(ctx, head, sheet.ID)
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, employee, sheet.ID, travelInput())
	assert.ErrorIs(t, err, model.ErrInvalidState)
	assert.ErrorIs(t, f.svc.Delete(ctx, employee, sheet.ID), model.ErrInvalidState)
}

func TestUpdateRejectsRepeatedCostID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sheet, err := f.svc.Submit(ctx, employee, travelInput())
	require.NoError(t, err)
	mealID := sheet.Costs[1].ID

	in := travelInput()
	in.Costs = []CostInput{
		{ID: mealID, FormCostID: "meal", Date: model.MustDate("2024-04-10"), Quantity: 2},
		{ID: mealID, FormCostID: "meal", Date: model.MustDate("2024-04-11"), Quantity: 3},
	}
	_, err = f.svc.Update(ctx, employee, sheet.ID, in)
	require.ErrorIs(t, err, model.ErrValidation)

	got, err := f.svc.Get(ctx, employee, sheet.ID)
	require.NoError(t, err)
	assert.Equal(t, sheet.Total, got.Total)
	assert.Len(t, got.Costs, 2)
}

// decidingSheets approves the sheet right after it has been read, as a head
// acting concurrently would.
type decidingSheets struct {
	*memSheets
}

func (d decidingSheets) GetSheet(ctx context.Context, id string) (model.ExpenseSheet, error) {
	s, err := d.memSheets.GetSheet(ctx, id)
	if err != nil {
		return s, err
	}
	return s, d.memSheets.DecideSheet(ctx, id, Decision{Status: model.StatusApproved, By: "head", At: time.Now()})
}

func TestConcurrentDecisionFreezesSheet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sheet, err := f.svc.Submit(ctx, employee, travelInput())
	require.NoError(t, err)
	costID := sheet.Costs[0].ID

	racing := NewService(decidingSheets{f.sheets}, f.dir, f.svc.forms, f.files, f.bus, nopLogger{})
	_, err = racing.Update(ctx, employee, sheet.ID, travelInput())
	assert.ErrorIs(t, err, model.ErrInvalidState)

	f.sheets.sheets[sheet.ID] = sheet
	_, err = racing.AddAttachment(ctx, employee, sheet.ID, costID, "late.pdf", "application/pdf", strings.NewReader("%PDF"))
	assert.ErrorIs(t, err, model.ErrInvalidState)
	assert.Empty(t, f.files.files)

	f.sheets.sheets[sheet.ID] = sheet
	assert.ErrorIs(t, racing.Delete(ctx, employee, sheet.ID), model.ErrInvalidState)
	got, err := f.sheets.GetSheet(ctx, sheet.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, got.Status)
}

func TestDeleteRemovesFiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sheet, err := f.svc.Submit(ctx, employee, travelInput())
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Delete(ctx, head, sheet.ID), model.ErrForbidden)
	require.NoError(t, f.svc.Delete(ctx, employee, sheet.ID))
	_, err = f.svc.Get(ctx, employee, sheet.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Contains(t, f.files.deleted, sheet.ID+"/")
}

func TestGetVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sheet, err := f.svc.Submit(ctx, employee, travelInput())
	require.NoError(t, err)

	for _, u := range []model.User{employee, head, coHead, admin} {
		if _, err := f.svc.Get(ctx, u, sheet.ID); err != nil {
			t.Errorf("%s should read the sheet: %v", u.ID, err)
		}
	}
	if _, err := f.svc.Get(ctx, outsider, sheet.ID); !errors.Is(err, model.ErrForbidden) {
		t.Errorf("outsider should be forbidden, got %v", err)
	}
}

func TestListOwnForcesUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Submit(ctx, employee, travelInput())
	require.NoError(t, err)

	list, err := f.svc.ListOwn(ctx, head, SheetFilter{UserID: employee.ID})
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = f.svc.ListOwn(ctx, employee, SheetFilter{Status: model.StatusPending})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.svc.List(ctx, employee, SheetFilter{})
	assert.ErrorIs(t, err, model.ErrForbidden)
}

func TestAddAttachmentValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sheet, err := f.svc.Submit(ctx, employee, travelInput())
	require.NoError(t, err)
	costID := sheet.Costs[0].ID

	_, err = f.svc.AddAttachment(ctx, employee, sheet.ID, costID, "x.exe", "application/octet-stream", strings.NewReader("MZ"))
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = f.svc.AddAttachment(ctx, head, sheet.ID, costID, "x.pdf", "application/pdf", strings.NewReader("%PDF"))
	assert.ErrorIs(t, err, model.ErrForbidden)

	_, err = f.svc.AddAttachment(ctx, employee, sheet.ID, "nope", "x.pdf", "application/pdf", strings.NewReader("%PDF"))
	assert.ErrorIs(t, err, model.ErrNotFound)

	f.svc.SetMaxUpload(4)
	_, err = f.svc.AddAttachment(ctx, employee, sheet.ID, costID, "big.jpg", "image/jpeg", strings.NewReader("0123456789"))
	assert.ErrorIs(t, err, ErrTooLarge)

	a, err := f.svc.AddAttachment(ctx, employee, sheet.ID, costID, "../../etc/r.jpg", "image/jpeg; charset=binary", strings.NewReader("jpg"))
	require.NoError(t, err)
	assert.Equal(t, "r.jpg", a.Name)
	assert.Equal(t, "image/jpeg", a.ContentType)
	assert.True(t, strings.HasSuffix(a.Path, ".jpg"))
	assert.Equal(t, int64(3), a.Size)
}
