package expense

import (
	"context"
	"fmt"
	"strings"

	"github.com/kilianp07/ndf/core/events"
	"github.com/kilianp07/ndf/core/model"
)

// CanApprove reports whether actor may decide sheet. submitter holds the
// memberships of the sheet owner and actorMs those of the actor.
//
// A head may not decide a sheet filed by another head of the same
// department; such sheets need an admin.
func CanApprove(actor model.User, sheet model.ExpenseSheet, actorMs, submitter model.Memberships) error {
	if actor.ID == sheet.UserID {
		return fmt.Errorf("%w: cannot decide your own sheet", model.ErrForbidden)
	}
	if actor.IsAdmin() {
		return nil
	}
	if !actorMs.IsHead(actor.ID, sheet.DepartmentID) {
		return fmt.Errorf("%w: not a head of the sheet department", model.ErrForbidden)
	}
	if submitter.IsHead(sheet.UserID, sheet.DepartmentID) {
		return fmt.Errorf("%w: sheet filed by a head requires an admin", model.ErrForbidden)
	}
	return nil
}

func (s *Service) authorizeDecision(ctx context.Context, actor model.User, sheet model.ExpenseSheet) error {
	actorMs, err := s.dir.UserMemberships(ctx, actor.ID)
	if err != nil {
		return err
	}
	ownerMs, err := s.dir.UserMemberships(ctx, sheet.UserID)
	if err != nil {
		return err
	}
	return CanApprove(actor, sheet, actorMs, ownerMs)
}

func (s *Service) decide(ctx context.Context, actor model.User, id string, status model.SheetStatus, reason string) (model.ExpenseSheet, model.Department, error) {
	sheet, err := s.sheets.GetSheet(ctx, id)
	if err != nil {
		return model.ExpenseSheet{}, model.Department{}, err
	}
	if err := s.authorizeDecision(ctx, actor, sheet); err != nil {
		return model.ExpenseSheet{}, model.Department{}, err
	}
	if sheet.Status != model.StatusPending {
		return model.ExpenseSheet{}, model.Department{}, fmt.Errorf("%w: sheet is already %s", model.ErrInvalidState, sheet.Status)
	}
	// A failed lookup must leave the sheet pending.
	dept, err := s.dir.GetDepartment(ctx, sheet.DepartmentID)
	if err != nil {
		return model.ExpenseSheet{}, model.Department{}, fmt.Errorf("department %s: %w", sheet.DepartmentID, err)
	}
	now := s.clock()
	d := Decision{Status: status, By: actor.ID, At: now, Reason: reason, UpdatedAt: now}
	if err := s.sheets.DecideSheet(ctx, id, d); err != nil {
		return model.ExpenseSheet{}, model.Department{}, err
	}
	sheet.Status = status
	sheet.DecidedBy = actor.ID
	sheet.DecidedAt = &now
	sheet.RejectionReason = reason
	sheet.UpdatedAt = now
	return sheet, dept, nil
}

// Approve moves a pending sheet to approved and runs the approval hooks.
func (s *Service) Approve(ctx context.Context, actor model.User, id string) (model.ExpenseSheet, error) {
	sheet, dept, err := s.decide(ctx, actor, id, model.StatusApproved, "")
	if err != nil {
		return sheet, err
	}
	s.log.Infof("sheet %s approved by %s", id, actor.ID)
	s.publish(events.SheetApproved{Sheet: sheet, Department: dept, By: actor.ID})

	s.mu.RLock()
	hooks := append([]ApprovalHook(nil), s.hooks...)
	s.mu.RUnlock()
	for _, h := range hooks {
		h.SheetApproved(ctx, sheet, dept)
	}
	return sheet, nil
}

// Reject moves a pending sheet to rejected. reason is mandatory.
func (s *Service) Reject(ctx context.Context, actor model.User, id, reason string) (model.ExpenseSheet, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.ExpenseSheet{}, model.Invalidf("a rejection reason is required")
	}
	sheet, dept, err := s.decide(ctx, actor, id, model.StatusRejected, reason)
	if err != nil {
		return sheet, err
	}
	s.log.Infof("sheet %s rejected by %s", id, actor.ID)
	s.publish(events.SheetRejected{Sheet: sheet, Department: dept, By: actor.ID, Reason: reason})
	return sheet, nil
}

// PendingFor lists the pending sheets actor is allowed to decide.
func (s *Service) PendingFor(ctx context.Context, actor model.User) ([]model.ExpenseSheet, error) {
	f := SheetFilter{Status: model.StatusPending}
	if !actor.IsAdmin() {
		ms, err := s.dir.UserMemberships(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		f.DepartmentIDs = ms.HeadedBy(actor.ID)
		if len(f.DepartmentIDs) == 0 {
			return nil, nil
		}
	}
	candidates, err := s.sheets.ListSheets(ctx, f)
	if err != nil {
		return nil, err
	}
	actorMs, err := s.dir.UserMemberships(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	owners := map[string]model.Memberships{}
	out := make([]model.ExpenseSheet, 0, len(candidates))
	for _, sh := range candidates {
		ms, ok := owners[sh.UserID]
		if !ok {
			if ms, err = s.dir.UserMemberships(ctx, sh.UserID); err != nil {
				return nil, err
			}
			owners[sh.UserID] = ms
		}
		if CanApprove(actor, sh, actorMs, ms) == nil {
			out = append(out, sh)
		}
	}
	return out, nil
}

// approvers returns the users that may decide sheet, admins excluded.
func (s *Service) approvers(ctx context.Context, sheet model.ExpenseSheet) ([]string, error) {
	ms, err := s.dir.DepartmentMemberships(ctx, sheet.DepartmentID)
	if err != nil {
		return nil, err
	}
	if ms.IsHead(sheet.UserID, sheet.DepartmentID) {
		return nil, nil
	}
	var out []string
	for _, m := range ms {
		if m.IsHead && m.UserID != sheet.UserID {
			out = append(out, m.UserID)
		}
	}
	return out, nil
}
