package expense

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/ndf/core/events"
	"github.com/kilianp07/ndf/core/logger"
	"github.com/kilianp07/ndf/core/model"
	"github.com/kilianp07/ndf/internal/eventbus"
)

// DefaultMaxUpload bounds attachment sizes when no limit is configured.
const DefaultMaxUpload int64 = 10 << 20

// allowedContentTypes maps accepted attachment types to their extension.
var allowedContentTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
}

// SheetInput is the client payload to submit or update a sheet.
type SheetInput struct {
	DepartmentID string      `json:"department_id"`
	FormID       string      `json:"form_id"`
	Description  string      `json:"description,omitempty"`
	Costs        []CostInput `json:"costs"`
}

// ApprovalHook is notified synchronously after a sheet is approved.
type ApprovalHook interface {
	SheetApproved(ctx context.Context, sheet model.ExpenseSheet, dept model.Department)
}

// Service implements the expense sheet workflow.
type Service struct {
	sheets SheetStore
	dir    Directory
	forms  FormReader
	files  FileStorage
	bus    eventbus.EventBus
	log    logger.Logger

	mu        sync.RWMutex
	hooks     []ApprovalHook
	maxUpload int64
	now       func() time.Time
}

// NewService wires the workflow to its stores. bus may be nil.
func NewService(sheets SheetStore, dir Directory, forms FormReader, files FileStorage, bus eventbus.EventBus, log logger.Logger) *Service {
	return &Service{
		sheets:    sheets,
		dir:       dir,
		forms:     forms,
		files:     files,
		bus:       bus,
		log:       log,
		maxUpload: DefaultMaxUpload,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetMaxUpload configures the attachment size limit in bytes.
func (s *Service) SetMaxUpload(n int64) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.maxUpload = n
	s.mu.Unlock()
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// AddApprovalHook registers h to run after each approval.
func (s *Service) AddApprovalHook(h ApprovalHook) {
	s.mu.Lock()
	s.hooks = append(s.hooks, h)
	s.mu.Unlock()
}

func (s *Service) clock() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now()
}

func (s *Service) publish(ev eventbus.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}

// Submit creates a pending sheet for actor.
func (s *Service) Submit(ctx context.Context, actor model.User, in SheetInput) (model.ExpenseSheet, error) {
	dept, costs, err := s.prepare(ctx, actor, in, nil)
	if err != nil {
		return model.ExpenseSheet{}, err
	}
	now := s.clock()
	sheet := model.ExpenseSheet{
		ID:           uuid.NewString(),
		UserID:       actor.ID,
		DepartmentID: in.DepartmentID,
		FormID:       in.FormID,
		Description:  strings.TrimSpace(in.Description),
		Status:       model.StatusPending,
		Costs:        costs,
		Total:        SheetTotal(costs),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for i := range sheet.Costs {
		sheet.Costs[i].ID = uuid.NewString()
		sheet.Costs[i].SheetID = sheet.ID
	}
	if err := s.sheets.CreateSheet(ctx, sheet); err != nil {
		return model.ExpenseSheet{}, fmt.Errorf("create sheet: %w", err)
	}
	s.log.Infof("sheet %s submitted by %s (%.2f EUR)", sheet.ID, actor.ID, sheet.Total)

	approvers, err := s.approvers(ctx, sheet)
	if err != nil {
		s.log.Warnf("resolve approvers for %s: %v", sheet.ID, err)
	}
	s.publish(events.SheetSubmitted{Sheet: sheet, Department: dept, Approvers: approvers})
	return sheet, nil
}

// Update replaces the content of a pending sheet owned by actor.
func (s *Service) Update(ctx context.Context, actor model.User, id string, in SheetInput) (model.ExpenseSheet, error) {
	cur, err := s.sheets.GetSheet(ctx, id)
	if err != nil {
		return model.ExpenseSheet{}, err
	}
	if cur.UserID != actor.ID {
		return model.ExpenseSheet{}, fmt.Errorf("%w: only the owner may edit a sheet", model.ErrForbidden)
	}
	if cur.Status != model.StatusPending {
		return model.ExpenseSheet{}, fmt.Errorf("%w: sheet is %s", model.ErrInvalidState, cur.Status)
	}
	_, costs, err := s.prepare(ctx, actor, in, &cur)
	if err != nil {
		return model.ExpenseSheet{}, err
	}

	kept := make(map[string]bool, len(costs))
	for i := range costs {
		if costs[i].ID == "" {
			costs[i].ID = uuid.NewString()
		} else {
			kept[costs[i].ID] = true
			if old, ok := cur.Cost(costs[i].ID); ok {
				costs[i].Attachments = old.Attachments
			}
		}
		costs[i].SheetID = cur.ID
	}
	var dropped []model.Attachment
	for _, c := range cur.Costs {
		if !kept[c.ID] {
			dropped = append(dropped, c.Attachments...)
		}
	}

	cur.DepartmentID = in.DepartmentID
	cur.FormID = in.FormID
	cur.Description = strings.TrimSpace(in.Description)
	cur.Costs = costs
	cur.Total = SheetTotal(costs)
	cur.UpdatedAt = s.clock()
	if err := s.sheets.UpdateSheet(ctx, cur); err != nil {
		return model.ExpenseSheet{}, fmt.Errorf("update sheet: %w", err)
	}
	for _, a := range dropped {
		if err := s.files.Delete(ctx, a.Path); err != nil {
			s.log.Warnf("delete attachment %s: %v", a.ID, err)
		}
	}
	s.publish(events.SheetUpdated{Sheet: cur})
	return cur, nil
}

// prepare validates the sheet header and prices every cost item. cur is the
// sheet being updated, nil on submission.
func (s *Service) prepare(ctx context.Context, actor model.User, in SheetInput, cur *model.ExpenseSheet) (model.Department, []model.SheetCost, error) {
	if in.DepartmentID == "" || in.FormID == "" {
		return model.Department{}, nil, model.Invalidf("department_id and form_id are required")
	}
	if len(in.Costs) == 0 {
		return model.Department{}, nil, model.Invalidf("at least one cost item is required")
	}
	dept, err := s.dir.GetDepartment(ctx, in.DepartmentID)
	if err != nil {
		return model.Department{}, nil, fmt.Errorf("department %s: %w", in.DepartmentID, err)
	}
	ms, err := s.dir.UserMemberships(ctx, actor.ID)
	if err != nil {
		return model.Department{}, nil, err
	}
	if !ms.IsMember(actor.ID, dept.ID) {
		return model.Department{}, nil, fmt.Errorf("%w: not a member of department %s", model.ErrForbidden, dept.Code)
	}
	form, err := s.forms.GetForm(ctx, in.FormID)
	if err != nil {
		return model.Department{}, nil, fmt.Errorf("form %s: %w", in.FormID, err)
	}
	// An inactive form still accepts edits of sheets already filed against it.
	if !form.Active && (cur == nil || cur.FormID != form.ID) {
		return model.Department{}, nil, model.Invalidf("form %q is not active", form.Name)
	}
	costs := make([]model.SheetCost, 0, len(in.Costs))
	seen := make(map[string]bool, len(in.Costs))
	for i, ci := range in.Costs {
		switch {
		case ci.ID == "":
		case cur == nil:
			ci.ID = ""
		case seen[ci.ID]:
			return model.Department{}, nil, model.Invalidf("cost item %d: id %s is listed twice", i+1, ci.ID)
		default:
			if _, ok := cur.Cost(ci.ID); !ok {
				return model.Department{}, nil, model.Invalidf("cost item %d: unknown id %s", i+1, ci.ID)
			}
			seen[ci.ID] = true
		}
		fc, ok := form.Cost(ci.FormCostID)
		if !ok {
			return model.Department{}, nil, model.Invalidf("cost item %d: form cost %s does not belong to form %q", i+1, ci.FormCostID, form.Name)
		}
		c, err := ComputeCost(fc, ci)
		if err != nil {
			return model.Department{}, nil, err
		}
		costs = append(costs, c)
	}
	return dept, costs, nil
}

// Delete removes a pending sheet owned by actor with its attachments.
func (s *Service) Delete(ctx context.Context, actor model.User, id string) error {
	cur, err := s.sheets.GetSheet(ctx, id)
	if err != nil {
		return err
	}
	if cur.UserID != actor.ID {
		return fmt.Errorf("%w: only the owner may delete a sheet", model.ErrForbidden)
	}
	if cur.Status != model.StatusPending {
		return fmt.Errorf("%w: sheet is %s", model.ErrInvalidState, cur.Status)
	}
	if err := s.sheets.DeleteSheet(ctx, id); err != nil {
		return err
	}
	if err := s.files.DeleteSheet(ctx, id); err != nil {
		s.log.Warnf("delete files of sheet %s: %v", id, err)
	}
	s.log.Infof("sheet %s deleted by %s", id, actor.ID)
	return nil
}

// Get returns a sheet readable by actor: its owner, heads of its department
// and admins.
func (s *Service) Get(ctx context.Context, actor model.User, id string) (model.ExpenseSheet, error) {
	sheet, err := s.sheets.GetSheet(ctx, id)
	if err != nil {
		return model.ExpenseSheet{}, err
	}
	if sheet.UserID == actor.ID || actor.IsAdmin() {
		return sheet, nil
	}
	ms, err := s.dir.UserMemberships(ctx, actor.ID)
	if err != nil {
		return model.ExpenseSheet{}, err
	}
	if ms.IsHead(actor.ID, sheet.DepartmentID) {
		return sheet, nil
	}
	return model.ExpenseSheet{}, fmt.Errorf("%w: sheet %s", model.ErrForbidden, id)
}

// ListOwn lists the sheets of actor matching f. f.UserID is forced.
func (s *Service) ListOwn(ctx context.Context, actor model.User, f SheetFilter) ([]model.ExpenseSheet, error) {
	f.UserID = actor.ID
	f.DepartmentIDs = nil
	f.DSFPending = false
	return s.sheets.ListSheets(ctx, f)
}

// List lists sheets for administrative views. Admin only.
func (s *Service) List(ctx context.Context, actor model.User, f SheetFilter) ([]model.ExpenseSheet, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: admin only", model.ErrForbidden)
	}
	return s.sheets.ListSheets(ctx, f)
}

// AddAttachment stores a receipt for a cost item of a pending sheet.
func (s *Service) AddAttachment(ctx context.Context, actor model.User, sheetID, costID, name, contentType string, r io.Reader) (model.Attachment, error) {
	sheet, err := s.sheets.GetSheet(ctx, sheetID)
	if err != nil {
		return model.Attachment{}, err
	}
	if sheet.UserID != actor.ID {
		return model.Attachment{}, fmt.Errorf("%w: only the owner may attach files", model.ErrForbidden)
	}
	if sheet.Status != model.StatusPending {
		return model.Attachment{}, fmt.Errorf("%w: sheet is %s", model.ErrInvalidState, sheet.Status)
	}
	if _, ok := sheet.Cost(costID); !ok {
		return model.Attachment{}, fmt.Errorf("cost %s: %w", costID, model.ErrNotFound)
	}
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	ext, ok := allowedContentTypes[ct]
	if !ok {
		return model.Attachment{}, model.Invalidf("unsupported attachment type %q", contentType)
	}
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "attachment" + ext
	}

	s.mu.RLock()
	limit := s.maxUpload
	s.mu.RUnlock()
	path, size, err := s.files.Save(ctx, sheetID, uuid.NewString()+ext, r, limit)
	if err != nil {
		return model.Attachment{}, fmt.Errorf("store attachment: %w", err)
	}
	a := model.Attachment{
		ID:          uuid.NewString(),
		SheetCostID: costID,
		Name:        name,
		ContentType: ct,
		Path:        path,
		Size:        size,
		CreatedAt:   s.clock(),
	}
	if err := s.sheets.AddAttachment(ctx, a); err != nil {
		if derr := s.files.Delete(ctx, path); derr != nil {
			s.log.Warnf("cleanup %s: %v", path, derr)
		}
		return model.Attachment{}, err
	}
	return a, nil
}

// OpenAttachment streams a stored attachment.
func (s *Service) OpenAttachment(ctx context.Context, a model.Attachment) (io.ReadCloser, error) {
	return s.files.Open(ctx, a.Path)
}

// ErrTooLarge is returned by FileStorage.Save when the limit is exceeded.
var ErrTooLarge = errors.New("attachment too large")
